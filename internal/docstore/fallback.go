package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"billstack/internal/cache"
)

// Fallback pairs a primary store with an offline copy.
//
// Writes go to the primary first and are mirrored to the offline store even
// when the primary fails; the primary error is still returned so callers see
// the failure. Reads prefer the primary and fall back to the offline copy when
// the primary errors or has no document.
type Fallback struct {
	primary Store
	offline Store
	logger  *slog.Logger
}

func NewFallback(primary, offline Store, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, offline: offline, logger: logger}
}

func (f *Fallback) Get(ctx context.Context, key string) ([]byte, bool, error) {
	doc, found, err := f.primary.Get(ctx, key)
	if err == nil && found {
		if werr := f.offline.Set(ctx, key, doc, Replace); werr != nil {
			f.logger.WarnContext(ctx, "Failed to refresh offline copy", "key", key, "error", werr)
		}
		return doc, true, nil
	}
	if err != nil {
		f.logger.WarnContext(ctx, "Primary store read failed, using offline copy", "key", key, "error", err)
	}

	doc, found, oerr := f.offline.Get(ctx, key)
	if oerr != nil {
		if err != nil {
			return nil, false, fmt.Errorf("read %s: primary: %v; offline: %w", key, err, oerr)
		}
		return nil, false, fmt.Errorf("read offline %s: %w", key, oerr)
	}
	return doc, found, nil
}

func (f *Fallback) Set(ctx context.Context, key string, doc []byte, mode WriteMode) error {
	perr := f.primary.Set(ctx, key, doc, mode)
	if oerr := f.offline.Set(ctx, key, doc, mode); oerr != nil {
		f.logger.WarnContext(ctx, "Failed to write offline copy", "key", key, "error", oerr)
	}
	if perr != nil {
		return fmt.Errorf("write %s: %w", key, perr)
	}
	return nil
}

// Cached is a read-through cache in front of a store. Writes invalidate the
// cached entry before delegating.
type Cached struct {
	next  Store
	cache cache.Cache[[]byte]
}

func NewCached(next Store, c cache.Cache[[]byte]) *Cached {
	return &Cached{next: next, cache: c}
}

func (c *Cached) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if doc, ok := c.cache.Get(key); ok {
		return slices.Clone(doc), true, nil
	}
	doc, found, err := c.next.Get(ctx, key)
	if err != nil || !found {
		return doc, found, err
	}
	c.cache.Set(key, slices.Clone(doc))
	return doc, true, nil
}

func (c *Cached) Set(ctx context.Context, key string, doc []byte, mode WriteMode) error {
	c.cache.Delete(key)
	return c.next.Set(ctx, key, doc, mode)
}
