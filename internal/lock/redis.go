package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisLocker takes locks in Redis so several processes sharing one store
// serialize on the same keys.
type RedisLocker struct {
	client  *redislock.Client
	prefix  string
	ttl     time.Duration
	backoff time.Duration
	retries int
}

// RedisConfig configures lock lifetime and retry behaviour.
type RedisConfig struct {
	// Prefix is prepended to every key (default "lock:").
	Prefix string
	// TTL bounds how long a crashed holder can block others (default 30s).
	TTL time.Duration
	// Backoff is the wait between attempts (default 50ms).
	Backoff time.Duration
	// Retries caps the number of attempts after the first (default 100).
	Retries int
}

func NewRedisLocker(rdb redis.UniversalClient, cfg RedisConfig) *RedisLocker {
	if cfg.Prefix == "" {
		cfg.Prefix = "lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 50 * time.Millisecond
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 100
	}
	return &RedisLocker{
		client:  redislock.New(rdb),
		prefix:  cfg.Prefix,
		ttl:     cfg.TTL,
		backoff: cfg.Backoff,
		retries: cfg.Retries,
	}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (Unlock, error) {
	lk, err := r.client.Obtain(ctx, r.prefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(r.backoff), r.retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	return func() {
		// Release with a fresh context so a cancelled request still frees the key.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lk.Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			slog.Warn("Failed to release lock", "key", key, "error", err)
		}
	}, nil
}
