package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AvailabilityCache memoizes free-spot counts per (location, window) in Redis.
// Entries live under the location's current version; every claim or release
// bumps the version, so older entries are never read again and expire on their own.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

func availabilityKey(locationID uuid.UUID, version int64, start, end time.Time) string {
	return fmt.Sprintf("availability:%s:v%d:%d:%d", locationID, version, start.UnixNano(), end.UnixNano())
}

func availabilityVersionKey(locationID uuid.UUID) string {
	return fmt.Sprintf("availability:version:%s", locationID)
}

// Version returns the location's current cache generation. Read it before
// counting and pass it to Set, so a count taken before a concurrent claim lands
// under a retired generation.
func (c *AvailabilityCache) Version(ctx context.Context, locationID uuid.UUID) (int64, error) {
	v, err := c.client.Get(ctx, availabilityVersionKey(locationID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *AvailabilityCache) Get(ctx context.Context, locationID uuid.UUID, version int64, start, end time.Time) (int, bool, error) {
	n, err := c.client.Get(ctx, availabilityKey(locationID, version, start, end)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (c *AvailabilityCache) Set(ctx context.Context, locationID uuid.UUID, version int64, start, end time.Time, count int) error {
	return c.client.Set(ctx, availabilityKey(locationID, version, start, end), count, c.ttl).Err()
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, locationID uuid.UUID) error {
	return c.client.Incr(ctx, availabilityVersionKey(locationID)).Err()
}
