// Package catalogue owns the extracted problem list and its permutation,
// persisting both as a single envelope that expires after a fixed age.
package catalogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Cartooli/math-boredgames-sub001/internal/apperr"
	"github.com/Cartooli/math-boredgames-sub001/internal/checksum"
	"github.com/Cartooli/math-boredgames-sub001/internal/extract"
	"github.com/Cartooli/math-boredgames-sub001/internal/kv"
	"github.com/Cartooli/math-boredgames-sub001/internal/models"
	"github.com/Cartooli/math-boredgames-sub001/internal/rotation"
)

// EnvelopeKey is where the serialized envelope is stored.
const EnvelopeKey = "catalogue/envelope"

// DefaultTTL is how long an envelope is served before the source is re-read.
const DefaultTTL = 7 * 24 * time.Hour

// Fetcher retrieves the raw source document.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]byte, error) { return f(ctx) }

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the time source used for BuiltAt and staleness.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// RebuildFunc is notified after every successful rebuild.
type RebuildFunc func(env *models.Envelope)

// WithOnRebuild registers a callback run after each rebuild.
func WithOnRebuild(fn RebuildFunc) Option {
	return func(c *Cache) { c.onRebuild = fn }
}

// Cache serves the envelope from memory, then from the durable store, and
// rebuilds it from the source when both are missing, unreadable or stale.
type Cache struct {
	store     kv.Store
	seeds     *rotation.SeedSource
	fetcher   Fetcher
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger
	onRebuild RebuildFunc

	group singleflight.Group

	mu      sync.RWMutex
	current *models.Envelope
}

// New creates a cache. The seed source is expected to share store.
func New(store kv.Store, seeds *rotation.SeedSource, fetcher Fetcher, logger *slog.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		seeds:   seeds,
		fetcher: fetcher,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TTL returns the configured envelope lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Stale reports whether env has outlived the TTL.
func (c *Cache) Stale(env *models.Envelope) bool {
	return env == nil || c.now().Sub(env.BuiltAt) > c.ttl
}

// GetOrBuild returns a fresh envelope, rebuilding it if necessary.
// Concurrent callers share one rebuild.
func (c *Cache) GetOrBuild(ctx context.Context) (*models.Envelope, error) {
	if env := c.memo(); env != nil {
		lookupsTotal.WithLabelValues("memory").Inc()
		return env, nil
	}
	v, err, _ := c.group.Do("envelope", func() (any, error) {
		if env := c.memo(); env != nil {
			lookupsTotal.WithLabelValues("memory").Inc()
			return env, nil
		}
		if env, ok := c.load(); ok {
			lookupsTotal.WithLabelValues("store").Inc()
			return c.remember(env), nil
		}
		lookupsTotal.WithLabelValues("rebuild").Inc()
		return c.rebuild(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Envelope), nil
}

// Refresh rebuilds the envelope from the source regardless of its age.
// Concurrent refreshes share one fetch; a lookup already in flight does not
// satisfy a refresh.
func (c *Cache) Refresh(ctx context.Context) (*models.Envelope, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.rebuild(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Envelope), nil
}

// Invalidate drops the in-memory and persisted envelope so the next
// GetOrBuild re-reads the source. The seed is kept.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
	if err := c.store.Remove(EnvelopeKey); err != nil {
		c.logger.Warn("catalogue: remove envelope failed", slog.String("error", err.Error()))
	}
}

func (c *Cache) memo() *models.Envelope {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil || c.Stale(c.current) {
		return nil
	}
	return c.current
}

// remember installs env unless a newer envelope is already in memory, and
// returns the envelope now current.
func (c *Cache) remember(env *models.Envelope) *models.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.BuiltAt.After(env.BuiltAt) {
		return c.current
	}
	c.current = env
	recordsGauge.Set(float64(len(env.Records)))
	return env
}

// load reads the persisted envelope. Any problem with it (absent,
// undecodable, inconsistent, stale) is reported as a miss.
func (c *Cache) load() (*models.Envelope, bool) {
	raw, err := c.store.Get(EnvelopeKey)
	if err != nil {
		if !kv.IsNotFound(err) {
			c.logger.Warn("catalogue: read envelope failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	env, err := Decode(raw)
	if err != nil {
		c.logger.Warn("catalogue: discarding stored envelope", slog.String("error", err.Error()))
		return nil, false
	}
	if c.Stale(env) {
		c.logger.Info("catalogue: envelope expired",
			slog.Time("built_at", env.BuiltAt),
			slog.Duration("ttl", c.ttl),
		)
		return nil, false
	}
	return env, true
}

func (c *Cache) rebuild(ctx context.Context) (*models.Envelope, error) {
	start := c.now()

	raw, err := c.fetcher.Fetch(ctx)
	if err != nil {
		rebuildsTotal.WithLabelValues("fetch_error").Inc()
		if !errors.Is(err, apperr.ErrFetch) {
			err = fmt.Errorf("%w: %v", apperr.ErrFetch, err)
		}
		return nil, fmt.Errorf("catalogue: %w", err)
	}

	records, err := extract.Extract(raw)
	if err != nil {
		rebuildsTotal.WithLabelValues("extract_error").Inc()
		return nil, fmt.Errorf("catalogue: %w", err)
	}

	perm, err := c.seeds.Permutation(len(records))
	if err != nil {
		return nil, fmt.Errorf("catalogue: %w", err)
	}

	env := &models.Envelope{
		Records:        records,
		Permutation:    perm,
		BuiltAt:        c.now(),
		SourceChecksum: checksum.Sum(raw),
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("catalogue: encode envelope: %w", err)
	}
	if err := c.store.Set(EnvelopeKey, data); err != nil {
		storeWriteFailures.Inc()
		c.logger.Warn("catalogue: envelope not persisted",
			slog.String("error", fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err).Error()),
		)
	}

	c.remember(env)
	rebuildsTotal.WithLabelValues("ok").Inc()
	c.logger.Info("catalogue: rebuilt",
		slog.Int("records", len(records)),
		slog.String("checksum", env.SourceChecksum),
		slog.Duration("elapsed", c.now().Sub(start)),
	)
	if c.onRebuild != nil {
		c.onRebuild(env)
	}
	return env, nil
}

// Decode parses a stored envelope and checks that its permutation is a
// bijection over its records.
func Decode(raw []byte) (*models.Envelope, error) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("catalogue: %w: %v", apperr.ErrDeserialization, err)
	}
	if len(env.Records) == 0 {
		return nil, fmt.Errorf("catalogue: %w: envelope has no records", apperr.ErrDeserialization)
	}
	if len(env.Permutation) != len(env.Records) || !rotation.IsPermutation(env.Permutation) {
		return nil, fmt.Errorf("catalogue: %w: permutation does not match %d records",
			apperr.ErrDeserialization, len(env.Records))
	}
	if env.BuiltAt.IsZero() {
		return nil, fmt.Errorf("catalogue: %w: missing built_at", apperr.ErrDeserialization)
	}
	return &env, nil
}
