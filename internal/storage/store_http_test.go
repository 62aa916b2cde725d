package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/credcache"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/staging"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// objectServer is a minimal path-style S3 endpoint.
type objectServer struct {
	mu      sync.Mutex
	objects map[string][]byte
	auth    []string
}

func (s *objectServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth = append(s.auth, r.Header.Get("Authorization"))

	switch r.Method {
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		s.objects[r.URL.Path] = b
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		b, ok := s.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Write(b)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestStore_AgainstEndpoint(t *testing.T) {
	srv := &objectServer{objects: map[string][]byte{}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	provider := credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", "session")
	s, err := New(context.Background(), "us-west-2", ts.URL, provider)
	require.NoError(t, err)

	ctx := context.Background()
	key := "staging/2/app:anon/put-if-nonexistent/temp/abc.rcrd/req1"
	require.NoError(t, s.Put(ctx, aws.Credentials{}, "staging", key, []byte("record"), nil))

	got, err := s.Get(ctx, "staging", key)
	require.NoError(t, err)
	assert.Equal(t, []byte("record"), got)

	_, err = s.Get(ctx, "staging", "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	assert.Contains(t, srv.objects, "/staging/"+key)
	require.NotEmpty(t, srv.auth)
	assert.True(t, strings.HasPrefix(srv.auth[0], "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/"), srv.auth[0])
}

// rotatingFetcher issues AKID1/anon-1, AKID2/anon-2, ... on successive fetches.
type rotatingFetcher struct {
	mu sync.Mutex
	n  int
}

func (f *rotatingFetcher) Fetch(ctx context.Context) (credcache.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return credcache.Credentials{
		AccessKeyID:     fmt.Sprintf("AKID%d", f.n),
		SecretAccessKey: "secret",
		SessionToken:    "session",
		Expires:         time.Now().Add(time.Hour),
		AnonymousID:     fmt.Sprintf("anon-%d", f.n),
	}, nil
}

func TestStore_SignsWithIdentityOfKey(t *testing.T) {
	srv := &objectServer{objects: map[string][]byte{}}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	cache := credcache.New(&rotatingFetcher{}, nil, nil)
	s, err := New(context.Background(), "us-west-2", ts.URL, cache.Provider())
	require.NoError(t, err)

	ctx := context.Background()
	target := staging.Target{Category: staging.CategoryFiles, Name: "abc", Ext: staging.ExtRecord}
	put := func() {
		creds, err := cache.Get(ctx)
		require.NoError(t, err)
		target.RequestID = staging.NewRequestID()
		key := staging.Path("app", creds.AnonymousID, target)
		require.NoError(t, s.Put(ctx, creds.AWS(), "staging", key, []byte("record"), nil))
	}

	put()
	cache.Invalidate()
	put()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.auth, 2)
	assert.True(t, strings.HasPrefix(srv.auth[0], "AWS4-HMAC-SHA256 Credential=AKID1/"), srv.auth[0])
	assert.True(t, strings.HasPrefix(srv.auth[1], "AWS4-HMAC-SHA256 Credential=AKID2/"), srv.auth[1])

	var anon1, anon2 int
	for path := range srv.objects {
		switch {
		case strings.Contains(path, "app:anon-1/"):
			anon1++
		case strings.Contains(path, "app:anon-2/"):
			anon2++
		}
	}
	assert.Equal(t, 1, anon1)
	assert.Equal(t, 1, anon2)
}
