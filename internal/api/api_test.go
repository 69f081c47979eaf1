package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Cartooli/math-boredgames-sub001/internal/catalogue"
	"github.com/Cartooli/math-boredgames-sub001/internal/kv"
	"github.com/Cartooli/math-boredgames-sub001/internal/models"
	"github.com/Cartooli/math-boredgames-sub001/internal/problemservice"
	"github.com/Cartooli/math-boredgames-sub001/internal/rotation"
	"github.com/Cartooli/math-boredgames-sub001/internal/testutil"
)

var testNow = time.Date(2025, 10, 19, 10, 0, 0, 0, time.UTC)

// testEnv builds a service over an in-memory store with ten problems and a
// fixed seed. A non-empty authToken enables token mode.
func testEnv(t *testing.T, authToken string) (*problemservice.Service, http.Handler) {
	t.Helper()
	return testEnvWithSource(t, authToken, catalogue.FetcherFunc(func(context.Context) ([]byte, error) {
		return testutil.Source(10), nil
	}), nil)
}

func testEnvWithSource(t *testing.T, authToken string, src catalogue.Fetcher, sseHandler http.Handler) (*problemservice.Service, http.Handler) {
	t.Helper()
	store := kv.NewMemory()
	_ = store.Set(rotation.SeedKey, []byte("42"))
	logger := testutil.Logger()
	clock := func() time.Time { return testNow }

	cache := catalogue.New(store, rotation.NewSeedSource(store, clock, logger), src, logger, catalogue.WithClock(clock))
	svc := problemservice.NewService(cache, store, logger, problemservice.WithClock(clock))
	return svc, NewRouter(svc, authToken != "", authToken, sseHandler)
}

func do(t *testing.T, router http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (body %s)", v, err, w.Body.String())
	}
	return v
}

func TestToday(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/problems/today", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[DailyResponse](t, w)
	if resp.Problem.ID != 5 || resp.PositionInCycle != 1 || resp.Total != 10 || !resp.IsToday {
		t.Errorf("today = %+v", resp)
	}
	if resp.Problem.ImageURL != "/api/problems/5/image" || resp.Problem.MIMEType != "image/png" {
		t.Errorf("problem = %+v", resp.Problem)
	}

	w = do(t, router, http.MethodGet, "/problems/today?offset=-1", nil)
	past := decode[DailyResponse](t, w)
	if past.IsToday || past.Date != "2025-10-18" || past.Offset != -1 {
		t.Errorf("past = %+v", past)
	}

	w = do(t, router, http.MethodGet, "/problems/today?offset=soon", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad offset = %d, want 400", w.Code)
	}
}

func TestListProblems_ETag(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/problems", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	list := decode[ProblemListResponse](t, w)
	if list.Total != 10 || len(list.Problems) != 10 || list.Problems[0].Date != "Day 1" {
		t.Errorf("list = %+v", list)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	w = do(t, router, http.MethodGet, "/problems", nil, "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", w.Code)
	}
}

func TestGetProblemAndImage(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/problems/3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if p := decode[ProblemResponse](t, w); p.ID != 3 || p.Date != "Day 3" || !p.HasImage {
		t.Errorf("problem = %+v", p)
	}

	w = do(t, router, http.MethodGet, "/problems/3/image", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("image status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}

	for path, want := range map[string]int{
		"/problems/99":       http.StatusNotFound,
		"/problems/0":        http.StatusBadRequest,
		"/problems/abc":      http.StatusBadRequest,
		"/problems/99/image": http.StatusNotFound,
	} {
		if w := do(t, router, http.MethodGet, path, nil); w.Code != want {
			t.Errorf("GET %s = %d, want %d", path, w.Code, want)
		}
	}
}

func TestAnnotationsFlow(t *testing.T) {
	_, router := testEnv(t, "")
	profile := []string{ProfileHeader, "alice"}

	w := do(t, router, http.MethodPost, "/problems/2/ratings", RateRequest{Stars: 5}, profile...)
	if w.Code != http.StatusOK {
		t.Fatalf("rate = %d, body = %s", w.Code, w.Body.String())
	}
	do(t, router, http.MethodPost, "/problems/2/ratings", RateRequest{Stars: 2}, profile...)

	w = do(t, router, http.MethodPut, "/problems/2/note", NoteRequest{Text: "draw it"}, profile...)
	if w.Code != http.StatusOK {
		t.Fatalf("note = %d", w.Code)
	}
	w = do(t, router, http.MethodPost, "/problems/2/vote", map[string]string{"direction": "down"}, profile...)
	if a := decode[models.Annotations](t, w); a.Vote != models.VoteDown {
		t.Errorf("vote = %s", a.Vote)
	}
	w = do(t, router, http.MethodPost, "/problems/2/vote", map[string]string{"direction": "down"}, profile...)
	if a := decode[models.Annotations](t, w); a.Vote != models.VoteNone {
		t.Errorf("vote after second toggle = %s", a.Vote)
	}
	do(t, router, http.MethodPost, "/problems/2/verification", nil, profile...)

	w = do(t, router, http.MethodGet, "/problems/2/annotations", nil, profile...)
	a := decode[models.Annotations](t, w)
	if a.Rating.Sum != 7 || a.Rating.Count != 2 || a.Average != 3.5 || a.Note != "draw it" || !a.Verified {
		t.Errorf("annotations = %+v", a)
	}

	// The default profile is untouched.
	w = do(t, router, http.MethodGet, "/problems/2/annotations", nil)
	if other := decode[models.Annotations](t, w); other.Rating.Count != 0 || other.Note != "" {
		t.Errorf("default profile saw alice's state: %+v", other)
	}
}

func TestVoteAndVerifiedListings(t *testing.T) {
	_, router := testEnv(t, "")
	profile := []string{ProfileHeader, "bob"}

	do(t, router, http.MethodPost, "/problems/3/vote", map[string]string{"direction": "up"}, profile...)
	do(t, router, http.MethodPost, "/problems/7/vote", map[string]string{"direction": "down"}, profile...)
	do(t, router, http.MethodPost, "/problems/9/verification", nil, profile...)
	do(t, router, http.MethodPost, "/problems/4/verification", nil, profile...)

	w := do(t, router, http.MethodGet, "/votes", nil, profile...)
	if w.Code != http.StatusOK {
		t.Fatalf("votes = %d", w.Code)
	}
	votes := decode[VotesResponse](t, w).Votes
	if len(votes) != 2 || votes[3] != models.VoteUp || votes[7] != models.VoteDown {
		t.Errorf("votes = %v", votes)
	}

	ids := decode[VerifiedResponse](t, do(t, router, http.MethodGet, "/verified", nil, profile...)).ProblemIDs
	if len(ids) != 2 || ids[0] != 4 || ids[1] != 9 {
		t.Errorf("verified = %v", ids)
	}

	if empty := decode[VotesResponse](t, do(t, router, http.MethodGet, "/votes", nil)).Votes; len(empty) != 0 {
		t.Errorf("default profile votes = %v", empty)
	}
}

func TestInvalidateCatalogue(t *testing.T) {
	var calls int
	n := 3
	src := catalogue.FetcherFunc(func(context.Context) ([]byte, error) {
		calls++
		return testutil.Source(n), nil
	})
	_, router := testEnvWithSource(t, "", src, nil)

	if list := decode[ProblemListResponse](t, do(t, router, http.MethodGet, "/problems", nil)); list.Total != 3 {
		t.Fatalf("total = %d", list.Total)
	}
	n = 4
	if w := do(t, router, http.MethodDelete, "/catalogue", nil); w.Code != http.StatusNoContent {
		t.Fatalf("invalidate = %d", w.Code)
	}
	if list := decode[ProblemListResponse](t, do(t, router, http.MethodGet, "/problems", nil)); list.Total != 4 {
		t.Errorf("total after invalidate = %d", list.Total)
	}
	if calls != 2 {
		t.Errorf("fetch calls = %d, want 2", calls)
	}
}

func TestAnnotations_Validation(t *testing.T) {
	_, router := testEnv(t, "")

	cases := []struct {
		method, path string
		body         any
		want         int
	}{
		{http.MethodPost, "/problems/2/ratings", RateRequest{Stars: 6}, http.StatusBadRequest},
		{http.MethodPost, "/problems/2/ratings", RateRequest{Stars: 0}, http.StatusBadRequest},
		{http.MethodPost, "/problems/2/vote", map[string]string{"direction": "sideways"}, http.StatusBadRequest},
		{http.MethodPost, "/problems/2/vote", map[string]string{"direction": ""}, http.StatusBadRequest},
		{http.MethodPost, "/problems/42/ratings", RateRequest{Stars: 3}, http.StatusNotFound},
		{http.MethodPut, "/problems/42/note", NoteRequest{Text: "x"}, http.StatusNotFound},
	}
	for _, c := range cases {
		if w := do(t, router, c.method, c.path, c.body); w.Code != c.want {
			t.Errorf("%s %s %+v = %d, want %d", c.method, c.path, c.body, w.Code, c.want)
		}
	}

	w := do(t, router, http.MethodGet, "/streak", nil, ProfileHeader, "../etc")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad profile header = %d, want 400", w.Code)
	}
}

func TestStreak(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/streak/views", ViewRequest{Offset: 2})
	if st := decode[models.StreakStats](t, w); st.DaysActive != 0 {
		t.Errorf("future view counted: %+v", st)
	}
	w = do(t, router, http.MethodPost, "/streak/views", nil)
	if st := decode[models.StreakStats](t, w); st.CurrentStreak != 1 || st.LastVisitDate != "2025-10-19" {
		t.Errorf("stats = %+v", st)
	}
	w = do(t, router, http.MethodGet, "/streak", nil)
	if st := decode[models.StreakStats](t, w); st.DaysActive != 1 {
		t.Errorf("streak = %+v", st)
	}
}

func TestCreateProfile(t *testing.T) {
	_, router := testEnv(t, "")
	w := do(t, router, http.MethodPost, "/profiles", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	p := decode[ProfileResponse](t, w)
	if p.ID == "" {
		t.Fatal("empty profile id")
	}
	if w := do(t, router, http.MethodGet, "/streak", nil, ProfileHeader, p.ID); w.Code != http.StatusOK {
		t.Errorf("generated id rejected: %d", w.Code)
	}
}

func TestRefreshCatalogue(t *testing.T) {
	n := 3
	src := catalogue.FetcherFunc(func(context.Context) ([]byte, error) { return testutil.Source(n), nil })
	_, router := testEnvWithSource(t, "", src, nil)

	list := decode[ProblemListResponse](t, do(t, router, http.MethodGet, "/problems", nil))
	if list.Total != 3 {
		t.Fatalf("total = %d", list.Total)
	}
	n = 5
	w := do(t, router, http.MethodPost, "/catalogue/refresh", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh = %d", w.Code)
	}
	if c := decode[CatalogueResponse](t, w); c.Records != 5 || c.SourceChecksum == "" {
		t.Errorf("refresh = %+v", c)
	}
}

func TestSourceErrors(t *testing.T) {
	failing := catalogue.FetcherFunc(func(context.Context) ([]byte, error) {
		return nil, errors.New("dial tcp: connection refused")
	})
	_, router := testEnvWithSource(t, "", failing, nil)
	if w := do(t, router, http.MethodGet, "/problems/today", nil); w.Code != http.StatusBadGateway {
		t.Errorf("fetch failure = %d, want 502", w.Code)
	}

	empty := catalogue.FetcherFunc(func(context.Context) ([]byte, error) { return []byte("## Nothing here\n"), nil })
	_, router = testEnvWithSource(t, "", empty, nil)
	if w := do(t, router, http.MethodGet, "/problems/today", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("extraction failure = %d, want 503", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodPost, "/problems/1/ratings", RateRequest{Stars: 4}, "Authorization", "Bearer secret123")
	if w.Code != http.StatusOK {
		t.Errorf("authed rate = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/problems", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	if w := do(t, router, http.MethodGet, "/problems", nil, "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/problems", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// sseStub writes headers and blocks until the request context is done.
var sseStub = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	src := catalogue.FetcherFunc(func(context.Context) ([]byte, error) { return testutil.Source(1), nil })
	_, router := testEnvWithSource(t, "secret", src, sseStub)

	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}
