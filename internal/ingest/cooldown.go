package ingest

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const cooldownKey = "jobsearch:cooldown"

// CooldownGuard is the cross-worker rate-limit signal: once any category
// worker gets an HTTP 429, every worker backs off the job-search API until
// the cooldown expires.
type CooldownGuard interface {
	Active(ctx context.Context) (bool, error)
	Trip(ctx context.Context) error
}

// RedisCooldown implements CooldownGuard with a TTL key so parallel workers
// across fanned-out invocations share the signal.
type RedisCooldown struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCooldown constructs a RedisCooldown.
func NewRedisCooldown(rdb *redis.Client, ttl time.Duration) *RedisCooldown {
	return &RedisCooldown{rdb: rdb, ttl: ttl}
}

func (g *RedisCooldown) Active(ctx context.Context) (bool, error) {
	n, err := g.rdb.Exists(ctx, cooldownKey).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *RedisCooldown) Trip(ctx context.Context) error {
	return g.rdb.Set(ctx, cooldownKey, time.Now().UTC().Format(time.RFC3339), g.ttl).Err()
}

// noopGuard is used when no redis client is wired (manual local runs).
type noopGuard struct{}

func (noopGuard) Active(context.Context) (bool, error) { return false, nil }
func (noopGuard) Trip(context.Context) error           { return nil }
