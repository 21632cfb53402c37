package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicgrid/request-service/internal/domain"
)

// RollupCache stores computed staff performance rollups in Redis.
// Rollups are pure recomputes of stored history, so the cache can be
// dropped at any time without correctness loss.
type RollupCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRollupCache constructs the cache. A nil client disables caching.
func NewRollupCache(r *Redis, ttl time.Duration) *RollupCache {
	if r == nil {
		return &RollupCache{ttl: ttl}
	}
	return &RollupCache{client: r.Client, ttl: ttl}
}

func rollupKey(staffID string, period domain.PerformancePeriod) string {
	return fmt.Sprintf("rollup:%s:%d:%d", staffID, period.Start.Unix(), period.End.Unix())
}

// Get returns the cached rollup or (nil, nil) on a miss.
func (c *RollupCache) Get(ctx context.Context, staffID string, period domain.PerformancePeriod) (*domain.StaffPerformance, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	raw, err := c.client.Get(ctx, rollupKey(staffID, period)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var perf domain.StaffPerformance
	if err := json.Unmarshal(raw, &perf); err != nil {
		return nil, err
	}
	return &perf, nil
}

// Set caches a rollup for the configured TTL.
func (c *RollupCache) Set(ctx context.Context, perf *domain.StaffPerformance) error {
	if c == nil || c.client == nil {
		return nil
	}
	period := domain.PerformancePeriod{Start: perf.PeriodStart, End: perf.PeriodEnd}
	raw, err := json.Marshal(perf)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, rollupKey(perf.StaffID, period), raw, c.ttl).Err()
}

// InvalidateStaff drops every cached rollup for a staff member.
func (c *RollupCache) InvalidateStaff(ctx context.Context, staffID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	pattern := fmt.Sprintf("rollup:%s:*", staffID)
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
