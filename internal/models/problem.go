// Package models defines the domain types for the daily problem service.
package models

import (
	"encoding/base64"
	"fmt"
	"time"
)

// ImageData is an inline image payload taken from a data URI definition.
type ImageData struct {
	MIMEType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

// Bytes decodes the base64 payload.
func (d *ImageData) Bytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(d.Base64)
	if err != nil {
		return nil, fmt.Errorf("models: decode image payload: %w", err)
	}
	return b, nil
}

// ProblemRecord is one extracted (date, image) entry of the source document.
// Records are immutable once extracted.
type ProblemRecord struct {
	ID       int        `json:"id"`
	Date     string     `json:"date"`
	ImageRef string     `json:"image_ref"`
	Image    *ImageData `json:"image,omitempty"` // nil: text-only degradation
}

// HasImage reports whether the record carries an image payload.
func (r ProblemRecord) HasImage() bool {
	return r.Image != nil
}

// Envelope bundles extracted records with the permutation built for them.
type Envelope struct {
	Records        []ProblemRecord `json:"records"`
	Permutation    []int           `json:"permutation"`
	BuiltAt        time.Time       `json:"built_at"`
	SourceChecksum string          `json:"source_checksum,omitempty"`
}

// Record returns the record with the given id.
func (e *Envelope) Record(id int) (ProblemRecord, bool) {
	// ids are assigned densely from 1 in document order.
	if id < 1 || id > len(e.Records) {
		return ProblemRecord{}, false
	}
	r := e.Records[id-1]
	if r.ID != id {
		for _, rec := range e.Records {
			if rec.ID == id {
				return rec, true
			}
		}
		return ProblemRecord{}, false
	}
	return r, true
}

// Selection is the result of resolving a calendar day to a problem.
type Selection struct {
	Record          ProblemRecord `json:"record"`
	PositionInCycle int           `json:"position_in_cycle"` // 1-based
	Total           int           `json:"total"`
	Offset          int           `json:"offset"`
	Date            string        `json:"date"` // calendar date the offset resolves to
}

// IsToday reports whether the selection is for the current day.
func (s Selection) IsToday() bool {
	return s.Offset == 0
}
