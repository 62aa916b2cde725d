package netx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
)

type echo struct {
	Value string `json:"value"`
}

func TestPostJSON(t *testing.T) {
	t.Run("success 200 OK", func(t *testing.T) {
		var gotCT, gotMethod, gotAuth string
		var gotBody []byte

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotCT = r.Header.Get("Content-Type")
			gotAuth = r.Header.Get("Authorization")
			gotBody, _ = io.ReadAll(r.Body)
			_ = json.NewEncoder(w).Encode(echo{Value: "pong"})
		}))
		defer ts.Close()

		var out echo
		err := NewClient().PostJSON(context.Background(), ts.URL, map[string]string{"Authorization": "Bearer t"}, echo{Value: "ping"}, &out)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotMethod != http.MethodPost {
			t.Fatalf("method = %q, want POST", gotMethod)
		}
		if gotCT != "application/json" {
			t.Fatalf("Content-Type = %q, want application/json", gotCT)
		}
		if gotAuth != "Bearer t" {
			t.Fatalf("Authorization = %q", gotAuth)
		}
		if strings.TrimSpace(string(gotBody)) != `{"value":"ping"}` {
			t.Fatalf("body = %q", string(gotBody))
		}
		if out.Value != "pong" {
			t.Fatalf("reply = %q, want pong", out.Value)
		}
	})

	t.Run("non-2xx -> server rejected", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("nope"))
		}))
		defer ts.Close()

		err := NewClient().PostJSON(context.Background(), ts.URL, nil, echo{}, nil)
		if !errors.Is(err, common.ErrServerRejected) {
			t.Fatalf("error = %v, want ErrServerRejected", err)
		}
		var se *StatusError
		if !errors.As(err, &se) || se.Code != http.StatusForbidden || se.Body != "nope" {
			t.Fatalf("error = %#v, want 403 StatusError", err)
		}
		if !common.IsRetryable(err) {
			t.Fatal("server rejection must be retryable")
		}
	})

	t.Run("404 -> server rejected", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		defer ts.Close()

		var out echo
		err := NewClient().PostJSON(context.Background(), ts.URL, nil, echo{}, &out)
		if !errors.Is(err, common.ErrServerRejected) {
			t.Fatalf("error = %v, want ErrServerRejected", err)
		}
		if errors.Is(err, common.ErrNotFound) {
			t.Fatalf("error = %v, must not be ErrNotFound", err)
		}
		if !common.IsRetryable(err) {
			t.Fatal("404 from an endpoint must be retryable")
		}
	})

	t.Run("undecodable reply", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}))
		defer ts.Close()

		var out echo
		err := NewClient().PostJSON(context.Background(), ts.URL, nil, echo{}, &out)
		if !errors.Is(err, common.ErrServerRejected) {
			t.Fatalf("error = %v, want ErrServerRejected", err)
		}
	})

	t.Run("network error", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		ts.Close()

		err := NewClient().PostJSON(context.Background(), ts.URL, nil, echo{}, nil)
		if !errors.Is(err, common.ErrTransientNetwork) {
			t.Fatalf("error = %v, want ErrTransientNetwork", err)
		}
	})

	t.Run("unmarshalable request", func(t *testing.T) {
		err := NewClient().PostJSON(context.Background(), "http://127.0.0.1", nil, make(chan int), nil)
		if !errors.Is(err, common.ErrLogicInvariant) {
			t.Fatalf("error = %v, want ErrLogicInvariant", err)
		}
	})
}
