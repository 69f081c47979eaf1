// Package extract turns a markdown export of dated problems into records.
//
// The scan runs in two passes. Pass one walks the lines in order and pairs
// each accepted date heading with the first image embed that follows it.
// Pass two collects image data definitions from anywhere in the document,
// and the two results are joined on the image reference.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/Cartooli/math-boredgames-sub001/internal/apperr"
	"github.com/Cartooli/math-boredgames-sub001/internal/models"
)

const (
	headingMarker = "##"
	embedMarker   = "!["
	minDateLen    = 4
)

var (
	// ![alt text][image3]
	embedRe = regexp.MustCompile(`!\[[^\]]*\]\[([^\]]+)\]`)
	// [image3]: <data:image/png;base64,iVBORw0...>
	definitionRe = regexp.MustCompile(`^\s*\[([^\]]+)\]:\s*<?data:([^;,\s]+);base64,([A-Za-z0-9+/=\s]+?)>?\s*$`)
)

// pairing is a pass-one match: a date and the image slot it introduces.
type pairing struct {
	date string
	ref  string
}

// Extract parses raw source text into problem records in document order.
// It returns apperr.ErrExtraction when no record could be produced.
func Extract(raw []byte) ([]models.ProblemRecord, error) {
	lines := splitLines(raw)

	pairs := scanPairings(lines)
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no dated image entries found", apperr.ErrExtraction)
	}
	payloads := scanDefinitions(lines)

	records := make([]models.ProblemRecord, 0, len(pairs))
	for i, p := range pairs {
		rec := models.ProblemRecord{
			ID:       i + 1,
			Date:     p.date,
			ImageRef: p.ref,
		}
		if img, ok := payloads[p.ref]; ok {
			rec.Image = img
		}
		records = append(records, rec)
	}
	return records, nil
}

// scanPairings is pass one. A pending date is closed by the next image
// embed; a date that never sees an embed before the next accepted heading
// is dropped.
func scanPairings(lines []string) []pairing {
	var (
		out     []pairing
		pending string
		hasDate bool
	)
	for _, line := range lines {
		if date, ok := detectHeading(line); ok {
			pending, hasDate = date, true
		}
		if !hasDate {
			continue
		}
		if ref, ok := detectEmbed(line); ok {
			out = append(out, pairing{date: pending, ref: ref})
			pending, hasDate = "", false
		}
	}
	return out
}

// scanDefinitions is pass two: every image data definition in the document,
// keyed by reference. Later definitions of the same reference win.
func scanDefinitions(lines []string) map[string]*models.ImageData {
	out := make(map[string]*models.ImageData)
	for _, line := range lines {
		ref, img, ok := detectDefinition(line)
		if !ok {
			continue
		}
		out[ref] = img
	}
	return out
}

// detectHeading returns the date text of a "##" heading line when the
// heading qualifies as a date.
func detectHeading(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, headingMarker) {
		return "", false
	}
	text := stripClosingHashes(strings.TrimSpace(strings.TrimLeft(trimmed, "#")))
	if text == "" || strings.HasPrefix(text, embedMarker) {
		return "", false
	}
	date := stripEmphasis(text)
	if len(date) < minDateLen || !hasAlphanumeric(date) {
		return "", false
	}
	return date, true
}

// stripClosingHashes drops an ATX closing sequence: "Oct 3 ##" → "Oct 3".
// Hashes glued to the text ("C#") are kept.
func stripClosingHashes(s string) string {
	body := strings.TrimRight(s, "#")
	if body == s {
		return s
	}
	if body == "" || strings.HasSuffix(body, " ") || strings.HasSuffix(body, "\t") {
		return strings.TrimSpace(body)
	}
	return s
}

// detectEmbed returns the slot name of the first image embed on the line.
func detectEmbed(line string) (string, bool) {
	m := embedRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	ref := strings.TrimSpace(m[1])
	return ref, ref != ""
}

// detectDefinition parses an image data definition line.
func detectDefinition(line string) (string, *models.ImageData, bool) {
	m := definitionRe.FindStringSubmatch(line)
	if m == nil {
		return "", nil, false
	}
	ref := strings.TrimSpace(m[1])
	payload := strings.Join(strings.Fields(m[3]), "")
	if ref == "" || payload == "" {
		return "", nil, false
	}
	return ref, &models.ImageData{MIMEType: strings.ToLower(m[2]), Base64: payload}, true
}

// stripEmphasis removes surrounding bold/italic markers: "**Oct 3**" → "Oct 3".
func stripEmphasis(s string) string {
	return strings.TrimSpace(strings.Trim(s, "*_ "))
}

func hasAlphanumeric(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// splitLines splits on \n and \r\n. No line length limit applies; data URI
// definitions can run to megabytes on a single line.
func splitLines(raw []byte) []string {
	lines := strings.Split(string(raw), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
