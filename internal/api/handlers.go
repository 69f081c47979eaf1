package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Cartooli/math-boredgames-sub001/internal/checksum"
	"github.com/Cartooli/math-boredgames-sub001/internal/problemservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *problemservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *problemservice.Service) *Handler {
	return &Handler{svc: svc}
}

// problemID parses the {id} URL parameter, writing 400 on failure.
func problemID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		writeJSON(w, http.StatusBadRequest, errorBody("problem id must be a positive integer"))
		return 0, false
	}
	return id, true
}

// notModified sets the ETag and reports whether the client copy is current.
func notModified(w http.ResponseWriter, r *http.Request, etag string) bool {
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return true
	}
	return false
}

// ListProblems handles GET /api/problems.
//
//	@Summary		List every problem in document order
//	@Tags			problems
//	@Produce		json
//	@Success		200	{object}	ProblemListResponse
//	@Success		304	"Catalogue unchanged"
//	@Security		BearerAuth
//	@Router			/problems [get]
func (h *Handler) ListProblems(w http.ResponseWriter, r *http.Request) {
	env, err := h.svc.Envelope(r.Context())
	if err != nil {
		writeError(w, "list problems", err)
		return
	}
	if notModified(w, r, checksum.ETag(env.SourceChecksum)) {
		return
	}
	items, err := h.svc.ListProblems(r.Context())
	if err != nil {
		writeError(w, "list problems", err)
		return
	}
	writeJSON(w, http.StatusOK, ProblemListResponse{Problems: items, Total: len(items)})
}

// Today handles GET /api/problems/today.
//
//	@Summary		Get the problem for today or a day offset
//	@Tags			problems
//	@Produce		json
//	@Param			offset	query		int		false	"Days from today (negative for past days)"
//	@Param			X-Profile-ID	header	string	false	"Profile id"
//	@Success		200		{object}	DailyResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/problems/today [get]
func (h *Handler) Today(w http.ResponseWriter, r *http.Request) {
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("offset must be an integer"))
			return
		}
		offset = n
	}
	dp, err := h.svc.DailyProblem(r.Context(), profileFrom(r.Context()), offset)
	if err != nil {
		writeError(w, "daily problem", err)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, toDailyResponse(dp))
}

// GetProblem handles GET /api/problems/{id}.
//
//	@Summary		Get a single problem
//	@Tags			problems
//	@Produce		json
//	@Param			id	path		int	true	"Problem id"
//	@Success		200	{object}	ProblemResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/problems/{id} [get]
func (h *Handler) GetProblem(w http.ResponseWriter, r *http.Request) {
	id, ok := problemID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Problem(r.Context(), id)
	if err != nil {
		writeError(w, "get problem", err)
		return
	}
	writeJSON(w, http.StatusOK, toProblemResponse(rec))
}

// GetAnnotations handles GET /api/problems/{id}/annotations.
//
//	@Summary		Get the caller's annotations for a problem
//	@Tags			annotations
//	@Produce		json
//	@Param			id	path		int	true	"Problem id"
//	@Success		200	{object}	models.Annotations
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/problems/{id}/annotations [get]
func (h *Handler) GetAnnotations(w http.ResponseWriter, r *http.Request) {
	id, ok := problemID(w, r)
	if !ok {
		return
	}
	a, err := h.svc.Annotations(r.Context(), profileFrom(r.Context()), id)
	if err != nil {
		writeError(w, "get annotations", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Rate handles POST /api/problems/{id}/ratings.
//
//	@Summary		Rate a problem from 1 to 5
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int			true	"Problem id"
//	@Param			body	body		RateRequest	true	"Rating"
//	@Success		200		{object}	models.Annotations
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/problems/{id}/ratings [post]
func (h *Handler) Rate(w http.ResponseWriter, r *http.Request) {
	id, ok := problemID(w, r)
	if !ok {
		return
	}
	var req RateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := h.svc.Rate(r.Context(), profileFrom(r.Context()), id, req.Stars)
	if err != nil {
		writeError(w, "rate problem", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// SaveNote handles PUT /api/problems/{id}/note.
//
//	@Summary		Replace the note on a problem
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int			true	"Problem id"
//	@Param			body	body		NoteRequest	true	"Note"
//	@Success		200		{object}	models.Annotations
//	@Security		BearerAuth
//	@Router			/problems/{id}/note [put]
func (h *Handler) SaveNote(w http.ResponseWriter, r *http.Request) {
	id, ok := problemID(w, r)
	if !ok {
		return
	}
	var req NoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := h.svc.SaveNote(r.Context(), profileFrom(r.Context()), id, req.Text)
	if err != nil {
		writeError(w, "save note", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Vote handles POST /api/problems/{id}/vote.
//
//	@Summary		Toggle an up or down vote
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int			true	"Problem id"
//	@Param			body	body		VoteRequest	true	"Direction"
//	@Success		200		{object}	models.Annotations
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/problems/{id}/vote [post]
func (h *Handler) Vote(w http.ResponseWriter, r *http.Request) {
	id, ok := problemID(w, r)
	if !ok {
		return
	}
	var req VoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := h.svc.ToggleVote(r.Context(), profileFrom(r.Context()), id, req.Direction)
	if err != nil {
		writeError(w, "toggle vote", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Verify handles POST /api/problems/{id}/verification.
//
//	@Summary		Toggle the verified flag
//	@Tags			annotations
//	@Produce		json
//	@Param			id	path		int	true	"Problem id"
//	@Success		200	{object}	models.Annotations
//	@Security		BearerAuth
//	@Router			/problems/{id}/verification [post]
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	id, ok := problemID(w, r)
	if !ok {
		return
	}
	a, err := h.svc.ToggleVerification(r.Context(), profileFrom(r.Context()), id)
	if err != nil {
		writeError(w, "toggle verification", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListVotes handles GET /api/votes.
//
//	@Summary		List the caller's current votes
//	@Tags			annotations
//	@Produce		json
//	@Success		200	{object}	VotesResponse
//	@Security		BearerAuth
//	@Router			/votes [get]
func (h *Handler) ListVotes(w http.ResponseWriter, r *http.Request) {
	votes, err := h.svc.Votes(profileFrom(r.Context()))
	if err != nil {
		writeError(w, "list votes", err)
		return
	}
	writeJSON(w, http.StatusOK, VotesResponse{Votes: votes})
}

// ListVerified handles GET /api/verified.
//
//	@Summary		List the problems the caller marked verified
//	@Tags			annotations
//	@Produce		json
//	@Success		200	{object}	VerifiedResponse
//	@Security		BearerAuth
//	@Router			/verified [get]
func (h *Handler) ListVerified(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.VerifiedIDs(profileFrom(r.Context()))
	if err != nil {
		writeError(w, "list verified", err)
		return
	}
	writeJSON(w, http.StatusOK, VerifiedResponse{ProblemIDs: ids})
}

// Streak handles GET /api/streak.
//
//	@Summary		Get visit streak statistics
//	@Tags			streak
//	@Produce		json
//	@Success		200	{object}	models.StreakStats
//	@Security		BearerAuth
//	@Router			/streak [get]
func (h *Handler) Streak(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Streak(profileFrom(r.Context()))
	if err != nil {
		writeError(w, "get streak", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// RecordView handles POST /api/streak/views.
//
//	@Summary		Record a view; only offset 0 counts toward the streak
//	@Tags			streak
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ViewRequest	false	"Viewed offset"
//	@Success		200		{object}	models.StreakStats
//	@Security		BearerAuth
//	@Router			/streak/views [post]
func (h *Handler) RecordView(w http.ResponseWriter, r *http.Request) {
	var req ViewRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	st, err := h.svc.RecordView(profileFrom(r.Context()), req.Offset)
	if err != nil {
		writeError(w, "record view", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// CreateProfile handles POST /api/profiles.
//
//	@Summary		Allocate a new profile id
//	@Tags			profiles
//	@Produce		json
//	@Success		201	{object}	ProfileResponse
//	@Security		BearerAuth
//	@Router			/profiles [post]
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.NewProfile()
	if err != nil {
		writeError(w, "create profile", err)
		return
	}
	writeJSON(w, http.StatusCreated, ProfileResponse{ID: id})
}

// RefreshCatalogue handles POST /api/catalogue/refresh.
//
//	@Summary		Rebuild the catalogue from the source now
//	@Tags			catalogue
//	@Produce		json
//	@Success		200	{object}	CatalogueResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/catalogue/refresh [post]
func (h *Handler) RefreshCatalogue(w http.ResponseWriter, r *http.Request) {
	env, err := h.svc.Refresh(r.Context())
	if err != nil {
		writeError(w, "refresh catalogue", err)
		return
	}
	writeJSON(w, http.StatusOK, CatalogueResponse{
		Records:        len(env.Records),
		SourceChecksum: env.SourceChecksum,
		BuiltAt:        env.BuiltAt,
	})
}

// InvalidateCatalogue handles DELETE /api/catalogue.
//
//	@Summary		Drop the cached catalogue; the next request rebuilds it
//	@Tags			catalogue
//	@Success		204	"Catalogue dropped"
//	@Security		BearerAuth
//	@Router			/catalogue [delete]
func (h *Handler) InvalidateCatalogue(w http.ResponseWriter, _ *http.Request) {
	h.svc.InvalidateCatalogue()
	w.WriteHeader(http.StatusNoContent)
}
