package kv

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Cartooli/math-boredgames-sub001/internal/apperr"
)

// Fallback wraps a durable store so that write failures (quota, permission,
// a read-only disk) degrade to process memory instead of failing callers.
// Values that could not be persisted are served from the shadow layer for
// the lifetime of the process.
type Fallback struct {
	primary Store
	shadow  *Memory
	logger  *slog.Logger

	mu      sync.Mutex
	removed map[string]struct{} // removes that failed on primary
}

// NewFallback wraps primary.
func NewFallback(primary Store, logger *slog.Logger) *Fallback {
	return &Fallback{
		primary: primary,
		shadow:  NewMemory(),
		logger:  logger,
		removed: make(map[string]struct{}),
	}
}

func (f *Fallback) Get(key string) ([]byte, error) {
	f.mu.Lock()
	_, gone := f.removed[key]
	f.mu.Unlock()
	if gone {
		return nil, notFound(key)
	}
	if v, err := f.shadow.Get(key); err == nil {
		return v, nil
	}
	return f.primary.Get(key)
}

// Set never fails because of the primary backend; the failure is logged as
// apperr.ErrStoreUnavailable and the value is kept in memory.
func (f *Fallback) Set(key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.removed, key)
	f.mu.Unlock()

	if err := f.primary.Set(key, value); err != nil {
		f.logger.Warn("kv: write degraded to memory",
			slog.String("key", key),
			slog.String("error", fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err).Error()))
		return f.shadow.Set(key, value)
	}
	// Persisted: any stale shadow copy must not mask the primary.
	_ = f.shadow.Remove(key)
	return nil
}

func (f *Fallback) Remove(key string) error {
	_ = f.shadow.Remove(key)
	if err := f.primary.Remove(key); err != nil {
		f.logger.Warn("kv: remove degraded to memory",
			slog.String("key", key),
			slog.String("error", fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err).Error()))
		f.mu.Lock()
		f.removed[key] = struct{}{}
		f.mu.Unlock()
	}
	return nil
}

func (f *Fallback) KeysWithPrefix(prefix string) ([]string, error) {
	keys, err := f.primary.KeysWithPrefix(prefix)
	if err != nil {
		return nil, err
	}
	shadowKeys, _ := f.shadow.KeysWithPrefix(prefix)

	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]struct{}, len(keys)+len(shadowKeys))
	out := make([]string, 0, len(keys)+len(shadowKeys))
	for _, k := range append(keys, shadowKeys...) {
		if _, dup := seen[k]; dup {
			continue
		}
		if _, gone := f.removed[k]; gone {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return sortedKeys(out), nil
}

func (f *Fallback) Close() error {
	return f.primary.Close()
}
