// Package dedupe rejects redelivered interactions. The chat platform retries
// deliveries it considers unacknowledged; the first claim of an interaction
// id wins and later claims within the TTL are refused.
package dedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a claimed interaction id is remembered.
const DefaultTTL = 15 * time.Minute

// Guard claims interaction ids.
type Guard interface {
	// Claim returns true for the first claim of id within the TTL and false
	// for every later one.
	Claim(ctx context.Context, id string) (bool, error)
}

// Key builds the storage key for an interaction id.
func Key(id string) string {
	return fmt.Sprintf("interaction:%s", id)
}

// --- MemoryGuard ---

// MemoryGuard is an in-memory Guard for single-instance deployments.
type MemoryGuard struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]time.Time
}

// NewMemoryGuard creates a guard that remembers ids for ttl.
func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryGuard{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]time.Time),
	}
}

// Claim implements Guard.
func (g *MemoryGuard) Claim(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	key := Key(id)
	if exp, ok := g.entries[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.entries[key] = now.Add(g.ttl)
	g.sweep(now)
	return true, nil
}

// sweep drops expired entries. Caller holds mu.
func (g *MemoryGuard) sweep(now time.Time) {
	for k, exp := range g.entries {
		if !now.Before(exp) {
			delete(g.entries, k)
		}
	}
}

// Len returns the number of live entries. For testing.
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// --- RedisGuard ---

// RedisGuard is a Redis-backed Guard shared by every replica.
type RedisGuard struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisGuard creates a Redis-backed guard.
func NewRedisGuard(client redis.Cmdable, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{client: client, ttl: ttl}
}

// Claim implements Guard with SET NX EX.
func (g *RedisGuard) Claim(ctx context.Context, id string) (bool, error) {
	key := Key(id)
	ok, err := g.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %q: %w", key, err)
	}
	return ok, nil
}

// HealthCheck pings Redis.
func (g *RedisGuard) HealthCheck(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}
