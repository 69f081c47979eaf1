// Package problemservice is the query and mutation surface over the
// catalogue cache, the daily rotation and the per-profile annotation stores.
package problemservice

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/Cartooli/math-boredgames-sub001/internal/annotation"
	"github.com/Cartooli/math-boredgames-sub001/internal/apperr"
	"github.com/Cartooli/math-boredgames-sub001/internal/catalogue"
	"github.com/Cartooli/math-boredgames-sub001/internal/kv"
	"github.com/Cartooli/math-boredgames-sub001/internal/models"
	"github.com/Cartooli/math-boredgames-sub001/internal/rotation"
)

// DefaultProfile is used when callers do not name a profile.
const DefaultProfile = "default"

const profilePrefix = "profiles/"

var profileIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Event kinds passed to EventCallback.
const (
	EventRated    = "rated"
	EventNoted    = "noted"
	EventVoted    = "voted"
	EventVerified = "verified"
	EventViewed   = "viewed"
)

// EventCallback is called after every successful annotation mutation.
// problemID is 0 for profile-wide events.
type EventCallback func(kind, profile string, problemID int)

// ProblemSummary is a lightweight catalogue entry.
type ProblemSummary struct {
	ID       int    `json:"id"`
	Date     string `json:"date"`
	HasImage bool   `json:"has_image"`
}

// DailyProblem is the selection for one day merged with a profile's state.
type DailyProblem struct {
	models.Selection
	Annotations models.Annotations `json:"annotations"`
}

// Service coordinates the catalogue and annotation stores.
type Service struct {
	cache          *catalogue.Cache
	store          kv.Store
	loc            *time.Location
	now            func() time.Time
	logger         *slog.Logger
	defaultProfile string
	onEvent        EventCallback

	mu       sync.Mutex
	profiles map[string]*annotation.Store
}

// Option configures a Service.
type Option func(*Service)

// WithLocation sets the time zone calendar days are counted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultProfile overrides DefaultProfile.
func WithDefaultProfile(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.defaultProfile = id
		}
	}
}

// WithEventCallback registers cb for annotation events.
func WithEventCallback(cb EventCallback) Option {
	return func(s *Service) { s.onEvent = cb }
}

// NewService creates a service. store is the root store; profile state is
// kept under profiles/<id>/.
func NewService(cache *catalogue.Cache, store kv.Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		cache:          cache,
		store:          store,
		loc:            time.UTC,
		now:            time.Now,
		logger:         logger,
		defaultProfile: DefaultProfile,
		profiles:       make(map[string]*annotation.Store),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Envelope returns the current catalogue envelope.
func (s *Service) Envelope(ctx context.Context) (*models.Envelope, error) {
	return s.cache.GetOrBuild(ctx)
}

// Today returns the current day index in the service's location.
func (s *Service) Today() int {
	return rotation.DayIndex(s.now(), s.loc)
}

// ProblemForOffset resolves the problem shown offset days from today.
func (s *Service) ProblemForOffset(ctx context.Context, offset int) (models.Selection, error) {
	env, err := s.cache.GetOrBuild(ctx)
	if err != nil {
		return models.Selection{}, err
	}
	return rotation.Select(env.Records, env.Permutation, s.Today(), offset)
}

// DailyProblem resolves the problem for offset and merges the profile's
// annotations for it.
func (s *Service) DailyProblem(ctx context.Context, profile string, offset int) (*DailyProblem, error) {
	sel, err := s.ProblemForOffset(ctx, offset)
	if err != nil {
		return nil, err
	}
	st, err := s.Profile(profile)
	if err != nil {
		return nil, err
	}
	return &DailyProblem{Selection: sel, Annotations: st.Annotations(sel.Record.ID)}, nil
}

// ListProblems returns every record in document order.
func (s *Service) ListProblems(ctx context.Context) ([]ProblemSummary, error) {
	env, err := s.cache.GetOrBuild(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ProblemSummary, len(env.Records))
	for i, r := range env.Records {
		out[i] = ProblemSummary{ID: r.ID, Date: r.Date, HasImage: r.HasImage()}
	}
	return out, nil
}

// Problem returns the record with the given id.
func (s *Service) Problem(ctx context.Context, id int) (models.ProblemRecord, error) {
	env, err := s.cache.GetOrBuild(ctx)
	if err != nil {
		return models.ProblemRecord{}, err
	}
	rec, ok := env.Record(id)
	if !ok {
		return models.ProblemRecord{}, fmt.Errorf("problemservice: problem %d: %w", id, apperr.ErrNotFound)
	}
	return rec, nil
}

// Image returns the decoded image of a problem and its MIME type.
func (s *Service) Image(ctx context.Context, id int) (string, []byte, error) {
	rec, err := s.Problem(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if !rec.HasImage() {
		return "", nil, fmt.Errorf("problemservice: problem %d has no image: %w", id, apperr.ErrNotFound)
	}
	data, err := rec.Image.Bytes()
	if err != nil {
		return "", nil, fmt.Errorf("problemservice: problem %d: %w", id, err)
	}
	return rec.Image.MIMEType, data, nil
}

// Annotations returns the profile's state for problem id.
func (s *Service) Annotations(ctx context.Context, profile string, id int) (models.Annotations, error) {
	st, err := s.forProblem(ctx, profile, id)
	if err != nil {
		return models.Annotations{}, err
	}
	return st.Annotations(id), nil
}

// Rate records a 1..5 rating.
func (s *Service) Rate(ctx context.Context, profile string, id, stars int) (models.Annotations, error) {
	st, err := s.forProblem(ctx, profile, id)
	if err != nil {
		return models.Annotations{}, err
	}
	if _, err := st.Rate(id, stars); err != nil {
		return models.Annotations{}, err
	}
	s.emit(EventRated, profile, id)
	return st.Annotations(id), nil
}

// SaveNote overwrites the note on a problem. Blank text removes it.
func (s *Service) SaveNote(ctx context.Context, profile string, id int, text string) (models.Annotations, error) {
	st, err := s.forProblem(ctx, profile, id)
	if err != nil {
		return models.Annotations{}, err
	}
	st.SaveNote(id, text)
	s.emit(EventNoted, profile, id)
	return st.Annotations(id), nil
}

// ToggleVote toggles an up or down vote.
func (s *Service) ToggleVote(ctx context.Context, profile string, id int, dir models.Vote) (models.Annotations, error) {
	st, err := s.forProblem(ctx, profile, id)
	if err != nil {
		return models.Annotations{}, err
	}
	if _, err := st.ToggleVote(id, dir); err != nil {
		return models.Annotations{}, err
	}
	s.emit(EventVoted, profile, id)
	return st.Annotations(id), nil
}

// ToggleVerification flips the verification flag.
func (s *Service) ToggleVerification(ctx context.Context, profile string, id int) (models.Annotations, error) {
	st, err := s.forProblem(ctx, profile, id)
	if err != nil {
		return models.Annotations{}, err
	}
	st.ToggleVerification(id)
	s.emit(EventVerified, profile, id)
	return st.Annotations(id), nil
}

// Votes lists the problems the profile currently votes on.
func (s *Service) Votes(profile string) (map[int]models.Vote, error) {
	st, err := s.Profile(profile)
	if err != nil {
		return nil, err
	}
	return st.Votes()
}

// VerifiedIDs lists the problems the profile has marked verified.
func (s *Service) VerifiedIDs(profile string) ([]int, error) {
	st, err := s.Profile(profile)
	if err != nil {
		return nil, err
	}
	return st.VerifiedIDs()
}

// RecordView counts a view of the problem offset days from today. Only
// offset zero affects the streak.
func (s *Service) RecordView(profile string, offset int) (models.StreakStats, error) {
	st, err := s.Profile(profile)
	if err != nil {
		return models.StreakStats{}, err
	}
	stats := st.RecordView(offset == 0)
	if offset == 0 {
		s.emit(EventViewed, profile, 0)
	}
	return stats, nil
}

// Streak returns the profile's streak statistics.
func (s *Service) Streak(profile string) (models.StreakStats, error) {
	st, err := s.Profile(profile)
	if err != nil {
		return models.StreakStats{}, err
	}
	return st.Streak(), nil
}

// Refresh forces a catalogue rebuild from the source.
func (s *Service) Refresh(ctx context.Context) (*models.Envelope, error) {
	return s.cache.Refresh(ctx)
}

// InvalidateCatalogue drops the current envelope; the next lookup rebuilds
// it from the source with the same seed.
func (s *Service) InvalidateCatalogue() {
	s.cache.Invalidate()
}

// CatalogueTTL returns how long an envelope is served before a rebuild.
func (s *Service) CatalogueTTL() time.Duration {
	return s.cache.TTL()
}

// NewProfile allocates a fresh profile id.
func (s *Service) NewProfile() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("problemservice: new profile: %w", err)
	}
	if _, err := s.Profile(id.String()); err != nil {
		return "", err
	}
	return id.String(), nil
}

// Profile returns the annotation store of a profile, creating the handle on
// first use. An empty id selects the default profile.
func (s *Service) Profile(id string) (*annotation.Store, error) {
	if id == "" {
		id = s.defaultProfile
	}
	if err := ValidateProfileID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.profiles[id]; ok {
		return st, nil
	}
	st := annotation.New(kv.WithPrefix(s.store, profilePrefix+id+"/"), s.logger,
		annotation.WithClock(s.now),
		annotation.WithLocation(s.loc),
	)
	s.profiles[id] = st
	return st, nil
}

// ValidateProfileID checks that id is usable as a key segment.
func ValidateProfileID(id string) error {
	err := validation.Validate(id,
		validation.Required,
		validation.Length(1, 64),
		validation.Match(profileIDRe),
	)
	if err != nil {
		return fmt.Errorf("problemservice: %w: profile id %v", apperr.ErrInvalidArgument, err)
	}
	return nil
}

func (s *Service) forProblem(ctx context.Context, profile string, id int) (*annotation.Store, error) {
	if _, err := s.Problem(ctx, id); err != nil {
		return nil, err
	}
	return s.Profile(profile)
}

func (s *Service) emit(kind, profile string, id int) {
	if s.onEvent == nil {
		return
	}
	if profile == "" {
		profile = s.defaultProfile
	}
	s.onEvent(kind, profile, id)
}
