package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter bounds outbound sends per tenant over a rolling window. Allow
// must be safe under concurrent calls for the same tenant.
type RateLimiter interface {
	Allow(ctx context.Context, tenantID uuid.UUID) (bool, error)
}

// RedisRateLimiter counts sends in Redis with INCR + EXPIRE; the counter key
// lives for one window and the limit applies to whatever lands inside it.
// Shared across replicas, which makes it the production choice.
type RedisRateLimiter struct {
	redis  *redis.Client
	max    int
	window time.Duration
}

// NewRedisRateLimiter creates a limiter allowing max sends per window.
func NewRedisRateLimiter(rdb *redis.Client, max int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{redis: rdb, max: max, window: window}
}

// Allow increments the tenant's counter and reports whether this send fits
// the window.
func (rl *RedisRateLimiter) Allow(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	key := fmt.Sprintf("send_ratelimit:%s", tenantID)

	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing rate limit counter: %w", err)
	}

	// Only set the expiry on the first increment.
	if count == 1 {
		if err := rl.redis.Expire(ctx, key, rl.window).Err(); err != nil {
			return false, fmt.Errorf("setting rate limit expiry: %w", err)
		}
	}

	return count <= int64(rl.max), nil
}

// MemoryRateLimiter is an in-process limiter for single-replica deployments
// and tests.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[uuid.UUID]*windowCounter
	now     func() time.Time
}

type windowCounter struct {
	count   int
	startAt time.Time
}

// NewMemoryRateLimiter creates a limiter allowing max sends per window.
func NewMemoryRateLimiter(max int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		max:     max,
		window:  window,
		entries: make(map[uuid.UUID]*windowCounter),
		now:     time.Now,
	}
}

// Allow increments the tenant's counter and reports whether this send fits
// the window.
func (rl *MemoryRateLimiter) Allow(_ context.Context, tenantID uuid.UUID) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	wc := rl.entries[tenantID]
	if wc == nil || now.Sub(wc.startAt) >= rl.window {
		wc = &windowCounter{startAt: now}
		rl.entries[tenantID] = wc
	}
	wc.count++

	// Opportunistic eviction keeps the map from growing with idle tenants.
	for id, e := range rl.entries {
		if now.Sub(e.startAt) >= rl.window && id != tenantID {
			delete(rl.entries, id)
		}
	}

	return wc.count <= rl.max, nil
}
