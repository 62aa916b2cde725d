// Package backend talks to the application endpoints that sit next to the
// staging bucket: the poll endpoint that reports whether a staged write was
// committed, and the idempotent multipart-complete endpoint.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/logging"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/netx"
	"github.com/sethvargo/go-retry"
)

// MaxPollBatch is the most entries a single poll call may carry.
const MaxPollBatch = 50

// PollRequest names one staged write.
type PollRequest struct {
	AnonymousID string
	RequestID   string
}

// PollInfo describes a committed object.
type PollInfo struct {
	ETag     string `json:"eTag"`
	FileID   string `json:"fileID"`
	Bucket   string `json:"bucket,omitempty"`
	CloudID  string `json:"cloudID,omitempty"`
	CloudKey string `json:"cloudKey,omitempty"`
}

// PollEntry is the backend's view of one staged write. A 404 status means
// the write has not been observed yet.
type PollEntry struct {
	Status   int       `json:"status"`
	ChangeID string    `json:"change_id,omitempty"`
	Info     *PollInfo `json:"info,omitempty"`
}

// Confirmed reports whether the write was durably committed.
func (e PollEntry) Confirmed() bool {
	return e.Status == http.StatusOK && e.Info != nil
}

// Pending reports whether the write simply has not been observed yet.
func (e PollEntry) Pending() bool {
	return e.Status == http.StatusNotFound || (e.Status == http.StatusOK && e.Info == nil)
}

type pollBody struct {
	Requests [][2]string `json:"requests"`
}

type Client struct {
	net         *netx.Client
	pollURL     string
	completeURL string
	log         logging.Logger

	// completeBackoff bounds the in-step retries of CompleteMultipart.
	completeBackoff func() retry.Backoff
}

func NewClient(client *netx.Client, pollURL, completeURL string, log logging.Logger) *Client {
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		net:         client,
		pollURL:     pollURL,
		completeURL: completeURL,
		log:         log,
		completeBackoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
		},
	}
}

// Poll asks about every request, MaxPollBatch at a time. Entries the backend
// leaves out of its reply are absent from the result.
func (c *Client) Poll(ctx context.Context, reqs []PollRequest) (map[string]PollEntry, error) {
	out := make(map[string]PollEntry, len(reqs))
	for start := 0; start < len(reqs); start += MaxPollBatch {
		batch := reqs[start:min(start+MaxPollBatch, len(reqs))]

		body := pollBody{Requests: make([][2]string, 0, len(batch))}
		for _, r := range batch {
			body.Requests = append(body.Requests, [2]string{r.AnonymousID, r.RequestID})
		}

		var reply map[string]PollEntry
		if err := c.net.PostJSON(ctx, c.pollURL, nil, body, &reply); err != nil {
			return nil, fmt.Errorf("poll: %w", err)
		}
		for id, e := range reply {
			out[id] = e
		}
	}

	c.log.Debug(ctx, "polled staged writes", "requests", len(reqs), "replies", len(out))
	return out, nil
}
