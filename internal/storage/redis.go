package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"billstack/internal/docstore"
)

// RedisStore keeps each document as a string value. Merges run inside a
// WATCH/MULTI transaction so concurrent writers of the same key retry rather
// than overwrite each other.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

const maxMergeRetries = 10

func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, doc []byte, mode docstore.WriteMode) error {
	full := s.prefix + key
	if mode == docstore.Replace {
		out, err := docstore.Resolve(nil, false, doc, mode)
		if err != nil {
			return err
		}
		if err := s.rdb.Set(ctx, full, out, 0).Err(); err != nil {
			return fmt.Errorf("redis set %s: %w", key, err)
		}
		return nil
	}

	txf := func(tx *redis.Tx) error {
		existing, err := tx.Get(ctx, full).Bytes()
		found := true
		if errors.Is(err, redis.Nil) {
			found = false
		} else if err != nil {
			return err
		}
		out, err := docstore.Resolve(existing, found, doc, mode)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, full, out, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxMergeRetries; i++ {
		err := s.rdb.Watch(ctx, txf, full)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis merge %s: %w", key, err)
		}
		return nil
	}
	return fmt.Errorf("redis merge %s: too much contention", key)
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
