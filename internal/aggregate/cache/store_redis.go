package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"konkurs/internal/aggregate/models"
)

const (
	profileKeyPrefix = "konkurs:profile:"
	listingKeyPrefix = "konkurs:listing:"
)

// RedisCache is the Redis-backed cache for deployments with more than one
// instance. Profiles are stored as JSON; Redis owns TTL expiry.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a Redis-backed cache. The client lifecycle is
// managed by the caller.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) GetProfile(ctx context.Context, key string) (*models.AggregatedProfile, bool, error) {
	raw, err := c.client.Get(ctx, profileKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var profile models.AggregatedProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		// A corrupt entry behaves as a miss; the next aggregation rewrites it.
		_ = c.client.Del(ctx, profileKeyPrefix+key).Err()
		return nil, false, nil
	}
	return &profile, true, nil
}

func (c *RedisCache) PutProfile(ctx context.Context, key string, profile *models.AggregatedProfile, ttl time.Duration) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, profileKeyPrefix+key, raw, ttl).Err()
}

func (c *RedisCache) GetListing(ctx context.Context, key string) ([]*models.AggregatedProfile, bool, error) {
	raw, err := c.client.Get(ctx, listingKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var listing []*models.AggregatedProfile
	if err := json.Unmarshal(raw, &listing); err != nil {
		_ = c.client.Del(ctx, listingKeyPrefix+key).Err()
		return nil, false, nil
	}
	return listing, true, nil
}

func (c *RedisCache) PutListing(ctx context.Context, key string, profiles []*models.AggregatedProfile, ttl time.Duration) error {
	raw, err := json.Marshal(profiles)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, listingKeyPrefix+key, raw, ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, profileKeyPrefix+key, listingKeyPrefix+key).Err()
}

// Close is a no-op; the Redis client is shared and closed by its owner.
func (c *RedisCache) Close() error {
	return nil
}
