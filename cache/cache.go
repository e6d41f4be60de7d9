// Package cache is a read-through cache whose keys are scoped to the current
// session identity.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSize = 256

	keySep = "\x1f"
)

// Identity is the single source of the user id that scopes every key.
type Identity interface {
	// UserID returns false when the session is anonymous.
	UserID() (string, bool)
}

type Options struct {
	Size   int           // entries kept, DefaultSize when zero
	MaxAge time.Duration // zero keeps entries until invalidated or evicted
	Now    func() time.Time
}

type entry struct {
	resource  string
	userID    string
	value     interface{}
	fetchedAt time.Time
}

type Cache struct {
	identity Identity
	maxAge   time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries *lru.Cache[string, entry]
	epoch   uint64

	group singleflight.Group
}

func New(identity Identity, opts Options) (*Cache, error) {
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, sessionerrors.Wrapf(err, "[cache.New] lru.New")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		identity: identity,
		maxAge:   opts.MaxAge,
		now:      now,
		entries:  entries,
	}, nil
}

// Key derives the cache key for resource under the current identity. It
// returns false for an anonymous session, meaning "do not fetch".
func (c *Cache) Key(resource string, params ...string) (string, bool) {
	userID, ok := c.identity.UserID()
	if !ok || userID == "" {
		return "", false
	}
	return key(resource, userID, params), true
}

func key(resource, userID string, params []string) string {
	parts := make([]string, 0, len(params)+2)
	parts = append(parts, resource, userID)
	parts = append(parts, params...)
	return strings.Join(parts, keySep)
}

// Fetch returns the cached value for resource or calls fetch once per key,
// however many callers are waiting. fetch runs detached from any single
// caller's cancellation. The result is stored only if no invalidation
// happened while fetch ran and the identity is unchanged.
func Fetch[T any](ctx context.Context, c *Cache, resource string, params []string, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	userID, ok := c.identity.UserID()
	if !ok || userID == "" {
		metrics.CacheRequestsTotal.WithLabelValues("anonymous").Inc()
		return zero, sessionerrors.ErrNoIdentity
	}
	k := key(resource, userID, params)

	if v, ok := c.lookup(k); ok {
		if typed, ok := v.(T); ok {
			metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
			return typed, nil
		}
	}
	metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()

	epoch := c.currentEpoch()
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(fmt.Sprintf("%d%s%s", epoch, keySep, k), func() (interface{}, error) {
		val, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		if current, ok := c.identity.UserID(); !ok || current != userID {
			metrics.CacheRequestsTotal.WithLabelValues("discarded").Inc()
			log.Debug().Str("resource", resource).Msg("discarding response fetched for a previous identity")
			return nil, sessionerrors.ErrIdentityChanged
		}
		c.store(k, entry{resource: resource, userID: userID, value: val}, epoch)
		return val, nil
	})

	// Leaving abandons the wait only; the fetch completes for the other readers.
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Peek returns a cached value for the current identity without fetching.
func (c *Cache) Peek(resource string, params ...string) (interface{}, bool) {
	k, ok := c.Key(resource, params...)
	if !ok {
		return nil, false
	}
	return c.lookup(k)
}

// Invalidate drops every entry for resource, whatever its params or user.
func (c *Cache) Invalidate(resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	dropped := 0
	for _, k := range c.entries.Keys() {
		if e, ok := c.entries.Peek(k); ok && e.resource == resource {
			c.entries.Remove(k)
			dropped++
		}
	}
	metrics.CacheInvalidationsTotal.WithLabelValues("resource").Inc()
	log.Debug().Str("resource", resource).Int("dropped", dropped).Msg("cache invalidated")
}

// InvalidateAll drops every entry. When it returns, no fetch started earlier
// can store its result.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.entries.Purge()
	metrics.CacheInvalidationsTotal.WithLabelValues("all").Inc()
}

// Len is the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *Cache) lookup(k string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries.Get(k)
	if !ok {
		return nil, false
	}
	if c.maxAge > 0 && c.now().Sub(e.fetchedAt) > c.maxAge {
		c.entries.Remove(k)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) store(k string, e entry, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		metrics.CacheRequestsTotal.WithLabelValues("discarded").Inc()
		return
	}
	e.fetchedAt = c.now()
	c.entries.Add(k, e)
}

func (c *Cache) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}
