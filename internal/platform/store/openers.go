package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisAdapter satisfies KVStore over a *redis.Client.
type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := r.c.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *redisAdapter) HSet(ctx context.Context, key string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return r.c.HSet(ctx, key, fields).Err()
}

func (r *redisAdapter) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }

func (r *redisAdapter) Close() error { return r.c.Close() }

// openRedis opens a client and blocks until it answers PING, mirroring the
// old Postgres opener's guard: callers never see a seam until the backend
// is actually reachable.
func openRedis(ctx context.Context, cfg RedisConfig, s *Store) (KVStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis: empty addr")
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})

	maxAttempts := cfg.ConnectRetries
	if maxAttempts <= 0 {
		maxAttempts = 6
	}
	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}

	const (
		backoffStart   = 150 * time.Millisecond
		backoffCeiling = 2 * time.Second
	)

	var lastErr error
	backoff := backoffStart
	for range maxAttempts {
		toCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = client.Ping(toCtx).Err()
		cancel()

		if lastErr == nil {
			a := &redisAdapter{c: client}
			if s != nil {
				s.Log.Debug().Str("addr", cfg.Addr).Msg("redis connected")
			}
			return a, nil
		}
		if ctx.Err() != nil {
			_ = client.Close()
			return nil, ctx.Err()
		}
		time.Sleep(backoff)
		if backoff < backoffCeiling {
			backoff *= 2
			if backoff > backoffCeiling {
				backoff = backoffCeiling
			}
		}
	}

	_ = client.Close()
	return nil, fmt.Errorf("redis ping failed after %d attempts: %w", maxAttempts, lastErr)
}
