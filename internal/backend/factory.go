package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"billstack/internal/cache"
	"billstack/internal/docstore"
	"billstack/internal/lock"
	"billstack/internal/log"
	"billstack/internal/services"
	"billstack/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Nop()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend. The primary store is wrapped
// with the offline copy first and the read-through cache last, so cache hits
// never reach either store.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		closers []func() error
		rdb     redis.UniversalClient
	)
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	if config.Type == RedisBackend || config.LockType == RedisLock {
		client, err := f.createRedisClient(ctx, config)
		if err != nil {
			return nil, err
		}
		rdb = client
		closers = append(closers, client.Close)
	}

	var primary docstore.Store
	switch config.Type {
	case SQLiteBackend:
		s, err := storage.NewSQLiteStore(config.SQLiteDBPath)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		closers = append(closers, s.Close)
		primary = s
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case RedisBackend:
		primary = storage.NewRedisStore(rdb, "")
		f.logger.Info("Initialized Redis backend", "addr", config.RedisAddr, "db", config.RedisDB)
	case MemoryBackend:
		primary = docstore.NewMemory()
		f.logger.Info("Initialized memory backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	store := primary
	if config.OfflineCachePath != "" {
		offline, err := storage.NewSQLiteStore(config.OfflineCachePath)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to initialize offline copy: %w", err)
		}
		closers = append(closers, offline.Close)
		store = docstore.NewFallback(store, offline, f.logger.Logger)
		f.logger.Info("Enabled offline copy", "path", config.OfflineCachePath)
	}

	var caches []cache.Cleaner
	if config.CacheSize > 0 {
		lru := cache.NewLRUCache[[]byte](config.CacheSize, config.CacheTTL)
		caches = append(caches, lru)
		store = docstore.NewCached(store, lru)
		f.logger.Info("Enabled document cache", "size", config.CacheSize, "ttl", config.CacheTTL)
	}

	var locker lock.Locker
	switch config.LockType {
	case RedisLock:
		locker = lock.NewRedisLocker(rdb, lock.RedisConfig{TTL: config.LockTTL})
	default:
		locker = lock.NewKeyedMutex()
	}
	f.logger.Info("Initialized locker", "type", config.LockType)

	return &BackendResult{
		Store:   store,
		Locker:  locker,
		Caches:  caches,
		Cleanup: cleanup,
	}, nil
}

func (f *DefaultFactory) createRedisClient(ctx context.Context, config Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", config.RedisAddr, err)
	}
	return client, nil
}

// Repository returns a repository over the backend scoped to one user.
func (r *BackendResult) Repository(userID string, logger *log.Logger) *services.Repository {
	return services.NewRepository(r.Store, r.Locker, userID, logger)
}

// Engine wires every service over the backend for one user.
func (r *BackendResult) Engine(userID string, cfg services.EngineConfig) *services.Engine {
	return services.NewEngine(r.Repository(userID, cfg.Logger), cfg)
}

// Close runs the cleanup function if there is one.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}
