// Package netx is the JSON-over-HTTP boundary shared by the credential,
// poll, multipart-complete and ledger clients. It folds every failure into
// the common error taxonomy so callers can hand errors straight to the retry
// policy.
package netx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
)

// DefaultTimeout bounds a single request/response cycle.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of a rejected response ends up in the error.
const maxErrorBody = 512

// Client posts JSON documents and decodes JSON replies.
type Client struct {
	HTTP      *http.Client
	UserAgent string
}

func NewClient() *Client {
	return &Client{
		HTTP:      &http.Client{Timeout: DefaultTimeout},
		UserAgent: "storm4-send/" + common.AppVersion,
	}
}

// PostJSON marshals in, posts it to url and decodes a 2xx reply into out
// (out may be nil). Transport failures wrap common.ErrTransientNetwork, other
// statuses wrap common.ErrServerRejected.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", common.ErrLogicInvariant, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", common.ErrLogicInvariant, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", common.ErrTransientNetwork, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s reply: %v", common.ErrServerRejected, req.URL.Path, err)
	}
	return nil
}

// StatusError is a non-2xx reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed: %d %s; body: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// Unwrap classifies every explicit status, 404 included, as
// common.ErrServerRejected.
func (e *StatusError) Unwrap() error {
	return common.ErrServerRejected
}
