// Package cache memoizes aggregation results keyed by entity and by date.
// The cache is the only mutable shared state in the process; reads hand out
// deep copies so no caller ever holds the stored instance.
package cache

import (
	"context"
	"time"

	"konkurs/internal/aggregate/models"
)

// ProfileCache is the contract the orchestrator depends on. Implementations
// must be safe under concurrent access. A miss is (nil/empty, false, nil);
// errors are reserved for backing-store failures.
type ProfileCache interface {
	// GetProfile returns the cached profile for an entity key.
	GetProfile(ctx context.Context, key string) (*models.AggregatedProfile, bool, error)

	// PutProfile stores a profile under key with a ttl.
	PutProfile(ctx context.Context, key string, profile *models.AggregatedProfile, ttl time.Duration) error

	// GetListing returns a cached per-date profile listing.
	GetListing(ctx context.Context, key string) ([]*models.AggregatedProfile, bool, error)

	// PutListing stores a per-date listing under key with a ttl.
	PutListing(ctx context.Context, key string, profiles []*models.AggregatedProfile, ttl time.Duration) error

	// Invalidate drops the entry for key, if any.
	Invalidate(ctx context.Context, key string) error

	// Close releases the cache's resources.
	Close() error
}

// EntityKey builds the cache key for an entity lookup.
func EntityKey(registryNumber string) string {
	return "entity:" + registryNumber
}

// DateKey builds the cache key for a daily listing.
func DateKey(date string) string {
	return "date:" + date
}
