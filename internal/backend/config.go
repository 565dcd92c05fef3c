package backend

import (
	"fmt"

	"billstack/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.StoreBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.StoreBackend)
	}
	lockType := LockType(appConfig.LockBackend)
	if !lockType.IsValid() {
		return Config{}, fmt.Errorf("invalid lock type in config: %s", appConfig.LockBackend)
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,

		RedisAddr:     appConfig.RedisAddr,
		RedisPassword: appConfig.RedisPassword,
		RedisDB:       appConfig.RedisDB,

		OfflineCachePath: appConfig.OfflineCachePath,
		CacheSize:        appConfig.CacheSize,
		CacheTTL:         appConfig.CacheTTL,

		LockType: lockType,
		LockTTL:  appConfig.LockTTL,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if !c.LockType.IsValid() {
		return fmt.Errorf("invalid lock type: %s", c.LockType)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case RedisBackend:
		if c.RedisAddr == "" {
			return fmt.Errorf("Redis address is required for redis backend")
		}
	case MemoryBackend:
		// nothing to check
	}

	if c.LockType == RedisLock && c.RedisAddr == "" {
		return fmt.Errorf("Redis address is required for redis locks")
	}
	if c.OfflineCachePath != "" && c.Type == SQLiteBackend && c.OfflineCachePath == c.SQLiteDBPath {
		return fmt.Errorf("offline cache path must differ from the SQLite database path")
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, RedisBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}
