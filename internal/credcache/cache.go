// Package credcache shares temporary storage credentials across every upload
// step. Credentials are renewed once fewer than MinRemaining remain, and
// concurrent callers during a refresh all wait on the same fetch.
package credcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/common"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/logging"
	"github.com/4th-ATechnologies/users.storm4.cloud-sub000/internal/observability"
	"github.com/aws/aws-sdk-go-v2/aws"
	"golang.org/x/sync/singleflight"
)

// MinRemaining is the validity left below which credentials are renewed.
const MinRemaining = 15 * time.Minute

const refreshKey = "refresh"

type Cache struct {
	fetcher Fetcher
	log     logging.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu    sync.Mutex
	cur   *Credentials
	group singleflight.Group
}

func New(fetcher Fetcher, log logging.Logger, metrics *observability.Metrics) *Cache {
	if log == nil {
		log = logging.Nop()
	}
	return &Cache{
		fetcher: fetcher,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// Get returns cached credentials, refreshing them first when they are missing
// or close to expiry. At most one refresh is in flight; a failed refresh is
// reported to every caller that waited on it.
func (c *Cache) Get(ctx context.Context) (Credentials, error) {
	if cur, ok := c.valid(); ok {
		return cur, nil
	}

	ch := c.group.DoChan(refreshKey, func() (any, error) {
		if cur, ok := c.valid(); ok {
			return cur, nil
		}
		// The refresh is shared, so it must outlive the caller that started it.
		fetched, err := c.fetcher.Fetch(context.WithoutCancel(ctx))
		c.metrics.RecordCredentialRefresh(err == nil)
		if err != nil {
			c.log.Warn(ctx, "credential refresh failed", "error", err)
			return nil, err
		}

		c.mu.Lock()
		c.cur = &fetched
		c.mu.Unlock()

		c.log.Debug(ctx, "credentials refreshed", "anonymous_id", fetched.AnonymousID, "expires", fetched.Expires)
		return fetched, nil
	})

	select {
	case <-ctx.Done():
		return Credentials{}, fmt.Errorf("%w: waiting for credentials: %v", common.ErrTransientNetwork, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Credentials{}, res.Err
		}
		return res.Val.(Credentials), nil
	}
}

// Invalidate drops the cached credentials so the next Get refreshes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.cur = nil
	c.mu.Unlock()
}

func (c *Cache) valid() (Credentials, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || c.cur.Expires.Sub(c.now()) < MinRemaining {
		return Credentials{}, false
	}
	return *c.cur, true
}

// Provider adapts the cache to the AWS SDK.
func (c *Cache) Provider() aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		cur, err := c.Get(ctx)
		if err != nil {
			return aws.Credentials{}, err
		}
		return cur.AWS(), nil
	})
}
