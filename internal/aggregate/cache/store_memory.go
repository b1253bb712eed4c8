package cache

import (
	"context"
	"sync"
	"time"

	"konkurs/internal/aggregate/models"
)

// Clock abstracts time.Now for TTL tests.
type Clock func() time.Time

type entry struct {
	profile   *models.AggregatedProfile
	listing   []*models.AggregatedProfile
	expiresAt time.Time
}

// InMemoryCache is the default single-process cache. Expired entries are
// treated as misses immediately and reaped by a background sweep.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	clock   Clock
	stop    chan struct{}
	done    chan struct{}
}

// InMemoryOption configures an InMemoryCache.
type InMemoryOption func(*InMemoryCache)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) InMemoryOption {
	return func(c *InMemoryCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewInMemoryCache creates an in-memory cache and starts its expiry sweep.
func NewInMemoryCache(opts ...InMemoryOption) *InMemoryCache {
	c := &InMemoryCache{
		entries: make(map[string]entry),
		clock:   time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	go c.sweep()
	return c
}

func (c *InMemoryCache) GetProfile(_ context.Context, key string) (*models.AggregatedProfile, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.profile == nil || c.clock().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.profile.Clone(), true, nil
}

func (c *InMemoryCache) PutProfile(_ context.Context, key string, profile *models.AggregatedProfile, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		profile:   profile.Clone(),
		expiresAt: c.clock().Add(ttl),
	}
	return nil
}

func (c *InMemoryCache) GetListing(_ context.Context, key string) ([]*models.AggregatedProfile, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || e.listing == nil || c.clock().After(e.expiresAt) {
		return nil, false, nil
	}
	return cloneListing(e.listing), true, nil
}

func (c *InMemoryCache) PutListing(_ context.Context, key string, profiles []*models.AggregatedProfile, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		listing:   cloneListing(profiles),
		expiresAt: c.clock().Add(ttl),
	}
	return nil
}

func (c *InMemoryCache) Invalidate(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Close stops the expiry sweep.
func (c *InMemoryCache) Close() error {
	close(c.stop)
	<-c.done
	return nil
}

func (c *InMemoryCache) sweep() {
	defer close(c.done)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := c.clock()
			c.mu.Lock()
			for key, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

func cloneListing(in []*models.AggregatedProfile) []*models.AggregatedProfile {
	out := make([]*models.AggregatedProfile, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}
