package api

import (
	"strconv"
	"time"

	"github.com/Cartooli/math-boredgames-sub001/internal/models"
	"github.com/Cartooli/math-boredgames-sub001/internal/problemservice"
)

// RateRequest is the request body for rating a problem.
type RateRequest struct {
	Stars int `json:"stars" example:"4" validate:"required"`
}

// NoteRequest is the request body for saving a note. Empty text removes it.
type NoteRequest struct {
	Text string `json:"text" example:"Try working backwards."`
}

// VoteRequest is the request body for toggling a vote.
type VoteRequest struct {
	Direction models.Vote `json:"direction" example:"up" validate:"required"`
}

// ViewRequest is the request body for recording a view.
type ViewRequest struct {
	Offset int `json:"offset" example:"0"`
}

// ProblemResponse describes one problem. The image itself is served
// separately at ImageURL.
type ProblemResponse struct {
	ID       int    `json:"id" example:"12" validate:"required"`
	Date     string `json:"date" example:"October 3, 2025" validate:"required"`
	ImageRef string `json:"image_ref" example:"image12"`
	HasImage bool   `json:"has_image"`
	MIMEType string `json:"mime_type,omitempty" example:"image/png"`
	ImageURL string `json:"image_url,omitempty" example:"/api/problems/12/image"`
}

// DailyResponse is the problem for one day plus the caller's annotations.
type DailyResponse struct {
	Problem         ProblemResponse    `json:"problem" validate:"required"`
	PositionInCycle int                `json:"position_in_cycle" example:"3" validate:"required"`
	Total           int                `json:"total" example:"40" validate:"required"`
	Offset          int                `json:"offset" example:"0"`
	Date            string             `json:"date" example:"2025-10-19" validate:"required"`
	IsToday         bool               `json:"is_today"`
	Annotations     models.Annotations `json:"annotations"`
}

// ProblemListResponse wraps the catalogue listing.
type ProblemListResponse struct {
	Problems []problemservice.ProblemSummary `json:"problems" validate:"required"`
	Total    int                             `json:"total" example:"40" validate:"required"`
}

// VotesResponse maps problem ids to the caller's current vote.
type VotesResponse struct {
	Votes map[int]models.Vote `json:"votes" validate:"required"`
}

// VerifiedResponse lists the problems the caller marked verified.
type VerifiedResponse struct {
	ProblemIDs []int `json:"problem_ids" validate:"required"`
}

// ProfileResponse is returned after a profile is created.
type ProfileResponse struct {
	ID string `json:"id" example:"01929c4e-7f1a-7c3e-9a8b-2f1e0d9c8b7a" validate:"required"`
}

// CatalogueResponse summarises the envelope after a refresh.
type CatalogueResponse struct {
	Records        int       `json:"records" example:"40"`
	SourceChecksum string    `json:"source_checksum"`
	BuiltAt        time.Time `json:"built_at"`
}

func toProblemResponse(r models.ProblemRecord) ProblemResponse {
	out := ProblemResponse{ID: r.ID, Date: r.Date, ImageRef: r.ImageRef, HasImage: r.HasImage()}
	if r.HasImage() {
		out.MIMEType = r.Image.MIMEType
		out.ImageURL = "/api/problems/" + strconv.Itoa(r.ID) + "/image"
	}
	return out
}

func toDailyResponse(dp *problemservice.DailyProblem) DailyResponse {
	return DailyResponse{
		Problem:         toProblemResponse(dp.Record),
		PositionInCycle: dp.PositionInCycle,
		Total:           dp.Total,
		Offset:          dp.Offset,
		Date:            dp.Date,
		IsToday:         dp.IsToday(),
		Annotations:     dp.Annotations,
	}
}
