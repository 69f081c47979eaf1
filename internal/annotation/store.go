// Package annotation persists per-problem user state (ratings, notes, votes,
// verification flags) and the daily visit streak on top of a kv.Store.
package annotation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/Cartooli/math-boredgames-sub001/internal/apperr"
	"github.com/Cartooli/math-boredgames-sub001/internal/kv"
	"github.com/Cartooli/math-boredgames-sub001/internal/models"
	"github.com/Cartooli/math-boredgames-sub001/internal/rotation"
)

// Store keys. Votes and verification flags are stored one key per problem.
const (
	RatingsKey     = "ratings"
	NotesKey       = "notes"
	StreakKey      = "streak"
	votePrefix     = "vote/"
	verifiedPrefix = "verified/"
)

const dateLayout = "2006-01-02"

// Option configures a Store.
type Option func(*Store)

// WithClock injects the time source used by RecordView.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the time zone calendar days are counted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// Store is the annotation store of one profile. Read-modify-write cycles are
// serialised; separate Store values over the same keys are not coordinated.
type Store struct {
	kv     kv.Store
	now    func() time.Time
	loc    *time.Location
	logger *slog.Logger

	mu sync.Mutex
}

// New creates a Store over s.
func New(s kv.Store, logger *slog.Logger, opts ...Option) *Store {
	st := &Store{kv: s, now: time.Now, loc: time.UTC, logger: logger}
	for _, o := range opts {
		o(st)
	}
	return st
}

// Rate adds a 1..5 star rating and returns the updated aggregate.
func (s *Store) Rate(id, stars int) (models.RatingAggregate, error) {
	if err := validation.Validate(stars, validation.Required, validation.Min(1), validation.Max(5)); err != nil {
		return models.RatingAggregate{}, fmt.Errorf("annotation: %w: rating %v", apperr.ErrInvalidArgument, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ratings := s.ratings()
	agg := ratings[id]
	agg.Sum += stars
	agg.Count++
	ratings[id] = agg
	s.writeJSON(RatingsKey, ratings)
	return agg, nil
}

// Rating returns the aggregate for id (zero when unrated).
func (s *Store) Rating(id int) models.RatingAggregate {
	return s.ratings()[id]
}

// SaveNote replaces the note for id. Blank text removes it.
func (s *Store) SaveNote(id int, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	notes := s.notes()
	if strings.TrimSpace(text) == "" {
		delete(notes, id)
	} else {
		notes[id] = text
	}
	s.writeJSON(NotesKey, notes)
}

// Note returns the note for id, or "".
func (s *Store) Note(id int) string {
	return s.notes()[id]
}

// ToggleVote clears the vote when it already equals dir and sets it to dir
// otherwise. It returns the resulting vote.
func (s *Store) ToggleVote(id int, dir models.Vote) (models.Vote, error) {
	if dir != models.VoteUp && dir != models.VoteDown {
		return models.VoteNone, fmt.Errorf("annotation: %w: vote direction %s", apperr.ErrInvalidArgument, dir)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := votePrefix + strconv.Itoa(id)
	if s.vote(id) == dir {
		s.remove(key)
		return models.VoteNone, nil
	}
	s.write(key, []byte(dir.String()))
	return dir, nil
}

// Vote returns the current vote for id.
func (s *Store) Vote(id int) models.Vote {
	return s.vote(id)
}

func (s *Store) vote(id int) models.Vote {
	raw, ok := s.read(votePrefix + strconv.Itoa(id))
	if !ok {
		return models.VoteNone
	}
	v, err := models.ParseVote(string(raw))
	if err != nil {
		s.corrupt(votePrefix+strconv.Itoa(id), err)
		return models.VoteNone
	}
	return v
}

// Votes lists every problem that currently holds a vote.
func (s *Store) Votes() (map[int]models.Vote, error) {
	keys, err := s.kv.KeysWithPrefix(votePrefix)
	if err != nil {
		return nil, fmt.Errorf("annotation: list votes: %w", err)
	}
	out := make(map[int]models.Vote, len(keys))
	for _, k := range keys {
		id, err := strconv.Atoi(strings.TrimPrefix(k, votePrefix))
		if err != nil {
			continue
		}
		if v := s.vote(id); v != models.VoteNone {
			out[id] = v
		}
	}
	return out, nil
}

// ToggleVerification flips the verification flag of id and returns it.
func (s *Store) ToggleVerification(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := !s.verified(id)
	s.write(verifiedPrefix+strconv.Itoa(id), []byte(strconv.FormatBool(next)))
	return next
}

// Verified reports the verification flag of id.
func (s *Store) Verified(id int) bool {
	return s.verified(id)
}

func (s *Store) verified(id int) bool {
	raw, ok := s.read(verifiedPrefix + strconv.Itoa(id))
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(string(raw))
	if err != nil {
		s.corrupt(verifiedPrefix+strconv.Itoa(id), err)
		return false
	}
	return b
}

// VerifiedIDs returns the sorted ids whose flag is set.
func (s *Store) VerifiedIDs() ([]int, error) {
	keys, err := s.kv.KeysWithPrefix(verifiedPrefix)
	if err != nil {
		return nil, fmt.Errorf("annotation: list verified: %w", err)
	}
	out := []int{}
	for _, k := range keys {
		id, err := strconv.Atoi(strings.TrimPrefix(k, verifiedPrefix))
		if err == nil && s.verified(id) {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out, nil
}

// Annotations merges all per-problem state for id.
func (s *Store) Annotations(id int) models.Annotations {
	r := s.Rating(id)
	return models.Annotations{
		ProblemID: id,
		Rating:    r,
		Average:   r.Average(),
		Note:      s.Note(id),
		Vote:      s.Vote(id),
		Verified:  s.Verified(id),
	}
}

func (s *Store) ratings() map[int]models.RatingAggregate {
	m := map[int]models.RatingAggregate{}
	s.readJSON(RatingsKey, &m)
	if m == nil {
		m = map[int]models.RatingAggregate{}
	}
	for id, agg := range m {
		if !agg.Valid() {
			s.logger.Warn("annotation: dropping invalid rating aggregate",
				slog.Int("problem_id", id), slog.Int("sum", agg.Sum), slog.Int("count", agg.Count))
			delete(m, id)
		}
	}
	return m
}

func (s *Store) notes() map[int]string {
	m := map[int]string{}
	s.readJSON(NotesKey, &m)
	if m == nil {
		m = map[int]string{}
	}
	return m
}

func (s *Store) read(key string) ([]byte, bool) {
	raw, err := s.kv.Get(key)
	if err != nil {
		if !kv.IsNotFound(err) {
			s.logger.Warn("annotation: read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return nil, false
	}
	return raw, true
}

// readJSON decodes key into dst. Corrupt data leaves dst reset to its
// zero-length state.
func (s *Store) readJSON(key string, dst any) {
	raw, ok := s.read(key)
	if !ok {
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.corrupt(key, err)
		switch m := dst.(type) {
		case *map[int]models.RatingAggregate:
			*m = map[int]models.RatingAggregate{}
		case *map[int]string:
			*m = map[int]string{}
		case *models.StreakStats:
			*m = models.StreakStats{}
		}
	}
}

func (s *Store) writeJSON(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("annotation: encode failed", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	s.write(key, data)
}

func (s *Store) write(key string, data []byte) {
	if err := s.kv.Set(key, data); err != nil {
		s.logger.Warn("annotation: write failed",
			slog.String("key", key),
			slog.String("error", fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err).Error()),
		)
	}
}

func (s *Store) remove(key string) {
	if err := s.kv.Remove(key); err != nil {
		s.logger.Warn("annotation: remove failed",
			slog.String("key", key),
			slog.String("error", fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err).Error()),
		)
	}
}

func (s *Store) corrupt(key string, err error) {
	s.logger.Warn("annotation: resetting corrupt value",
		slog.String("key", key),
		slog.String("error", fmt.Errorf("%w: %v", apperr.ErrDeserialization, err).Error()),
	)
}

// today returns the current day index in the store's location.
func (s *Store) today() int {
	return rotation.DayIndex(s.now(), s.loc)
}
