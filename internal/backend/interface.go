package backend

import (
	"context"
	"time"

	"billstack/internal/cache"
	"billstack/internal/docstore"
	"billstack/internal/lock"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the wired store and locker plus anything that needs
// closing or sweeping for the lifetime of the process.
type BackendResult struct {
	Store   docstore.Store
	Locker  lock.Locker
	Caches  []cache.Cleaner
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Redis, used by the redis store and the redis locker
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Offline copy written next to the primary; empty disables it
	OfflineCachePath string

	// Read-through cache; zero size disables it
	CacheSize int
	CacheTTL  time.Duration

	LockType LockType
	LockTTL  time.Duration
}

// BackendType represents the type of document store
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	RedisBackend  BackendType = "redis"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, RedisBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// LockType selects the locker implementation.
type LockType string

const (
	MemoryLock LockType = "memory"
	RedisLock  LockType = "redis"
)

func (lt LockType) IsValid() bool {
	return lt == MemoryLock || lt == RedisLock
}
