package models

import (
	"fmt"
	"strings"
)

// RatingAggregate accumulates 1..5 star ratings for one problem.
type RatingAggregate struct {
	Sum   int `json:"sum"`
	Count int `json:"count"`
}

// Average returns Sum/Count, or 0 when nothing has been rated yet.
func (r RatingAggregate) Average() float64 {
	if r.Count == 0 {
		return 0
	}
	return float64(r.Sum) / float64(r.Count)
}

// Valid reports whether the aggregate satisfies 0 <= Sum <= 5*Count.
func (r RatingAggregate) Valid() bool {
	return r.Count >= 0 && r.Sum >= 0 && r.Sum <= 5*r.Count
}

// Vote is the tri-state vote a profile holds on a problem.
type Vote int

const (
	VoteNone Vote = iota
	VoteUp
	VoteDown
)

func (v Vote) String() string {
	switch v {
	case VoteUp:
		return "up"
	case VoteDown:
		return "down"
	default:
		return "none"
	}
}

// MarshalText encodes the vote as "up", "down" or "none".
func (v Vote) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText accepts "up", "down", "none" or an empty string.
func (v *Vote) UnmarshalText(b []byte) error {
	parsed, err := ParseVote(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseVote parses a vote direction.
func ParseVote(s string) (Vote, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return VoteUp, nil
	case "down":
		return VoteDown, nil
	case "", "none":
		return VoteNone, nil
	}
	return VoteNone, fmt.Errorf("unknown vote %q", s)
}

// Annotations is the merged per-problem user state.
type Annotations struct {
	ProblemID int             `json:"problem_id"`
	Rating    RatingAggregate `json:"rating"`
	Average   float64         `json:"average"`
	Note      string          `json:"note"`
	Vote      Vote            `json:"vote"`
	Verified  bool            `json:"verified"`
}

// StreakStats tracks consecutive days on which today's problem was viewed.
type StreakStats struct {
	DaysActive    int    `json:"days_active"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
	LastVisitDate string `json:"last_visit_date,omitempty"` // YYYY-MM-DD
}
