package rotation

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Cartooli/math-boredgames-sub001/internal/kv"
)

// SeedKey is where the shuffle seed lives in the durable store.
const SeedKey = "catalogue/seed"

// SeedSource reads the persisted shuffle seed, generating and persisting a
// new one the first time it is needed.
type SeedSource struct {
	store  kv.Store
	now    func() time.Time
	logger *slog.Logger
}

// NewSeedSource creates a seed accessor over store. now defaults to time.Now.
func NewSeedSource(store kv.Store, now func() time.Time, logger *slog.Logger) *SeedSource {
	if now == nil {
		now = time.Now
	}
	return &SeedSource{store: store, now: now, logger: logger}
}

// Seed returns the persisted seed. When none exists (or it is unreadable) a
// new one is derived from the current time in milliseconds and stored. A
// failed write still returns the fresh seed; the rotation is then stable for
// this process only.
func (s *SeedSource) Seed() int64 {
	raw, err := s.store.Get(SeedKey)
	if err == nil {
		if seed, perr := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64); perr == nil {
			return seed
		}
		s.logger.Warn("rotation: stored seed unreadable, regenerating", slog.String("value", string(raw)))
	} else if !kv.IsNotFound(err) {
		s.logger.Warn("rotation: seed read failed", slog.String("error", err.Error()))
	}

	seed := s.now().UnixMilli()
	if werr := s.store.Set(SeedKey, []byte(strconv.FormatInt(seed, 10))); werr != nil {
		s.logger.Warn("rotation: seed not persisted", slog.String("error", werr.Error()))
	} else {
		s.logger.Info("rotation: generated seed", slog.Int64("seed", seed))
	}
	return seed
}

// Permutation builds the permutation for n records with the persisted seed.
func (s *SeedSource) Permutation(n int) ([]int, error) {
	perm := BuildPermutation(s.Seed(), n)
	if !IsPermutation(perm) {
		return nil, fmt.Errorf("rotation: permutation of %d is not a bijection", n)
	}
	return perm, nil
}
