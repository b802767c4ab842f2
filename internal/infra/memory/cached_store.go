package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizwhiz/internal/app"
	"quizwhiz/internal/domain"
)

const countKey = "count"

// CachedStore wraps a question store and caches Count with a TTL to avoid
// repeated round trips from dashboards polling the pool size. Writes through
// the wrapper invalidate the cache.
type CachedStore struct {
	app.QuestionStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu        sync.RWMutex
	count     int
	expiresAt time.Time
	valid     bool
	// gen changes on every invalidation; a count read under an older
	// generation is returned but not cached.
	gen uint64
}

func NewCachedStore(inner app.QuestionStore, ttl time.Duration) *CachedStore {
	return &CachedStore{
		QuestionStore: inner,
		ttl:           ttl,
		clock:         time.Now,
		rnd:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *CachedStore) Count(ctx context.Context) (int, error) {
	if c.ttl <= 0 {
		return c.QuestionStore.Count(ctx)
	}
	if n, ok := c.cached(c.clock()); ok {
		return n, nil
	}

	result, err, _ := c.sf.Do(countKey, func() (interface{}, error) {
		now := c.clock()
		if n, ok := c.cached(now); ok {
			return n, nil
		}
		c.mu.RLock()
		gen := c.gen
		c.mu.RUnlock()
		n, err := c.QuestionStore.Count(ctx)
		if err != nil {
			return 0, err
		}
		expiresAt := now.Add(c.ttlWithJitter())
		c.mu.Lock()
		if c.gen == gen {
			c.count = n
			c.expiresAt = expiresAt
			c.valid = true
		}
		c.mu.Unlock()
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

func (c *CachedStore) Append(ctx context.Context, topic string, q domain.Question) (string, error) {
	id, err := c.QuestionStore.Append(ctx, topic, q)
	c.invalidate()
	return id, err
}

func (c *CachedStore) DeleteAll(ctx context.Context) error {
	err := c.QuestionStore.DeleteAll(ctx)
	c.invalidate()
	return err
}

func (c *CachedStore) cached(now time.Time) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.valid && c.expiresAt.After(now) {
		return c.count, true
	}
	return 0, false
}

func (c *CachedStore) invalidate() {
	c.mu.Lock()
	c.valid = false
	c.gen++
	c.mu.Unlock()
	c.sf.Forget(countKey)
}

func (c *CachedStore) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
