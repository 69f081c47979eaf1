package rotation

import (
	"fmt"
	"time"

	"github.com/Cartooli/math-boredgames-sub001/internal/apperr"
	"github.com/Cartooli/math-boredgames-sub001/internal/models"
)

const dateLayout = "2006-01-02"

// DayIndex returns the number of whole calendar days between the Unix epoch
// and the date t falls on in loc. Every instant of the same local date maps
// to the same index.
func DayIndex(t time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(midnight.Unix() / 86400)
}

// DateOf returns the YYYY-MM-DD calendar date of a day index.
func DateOf(day int) string {
	return time.Unix(int64(day)*86400, 0).UTC().Format(dateLayout)
}

// Slot reduces day+offset into [0, n). The remainder keeps the sign of the
// dividend and is then folded with an absolute value, so a negative sum -k
// lands on the same slot as +k.
func Slot(day, offset, n int) int {
	s := (day + offset) % n
	if s < 0 {
		s = -s
	}
	return s
}

// Select resolves the record shown on day+offset.
func Select(records []models.ProblemRecord, perm []int, day, offset int) (models.Selection, error) {
	n := len(perm)
	if n == 0 || len(records) != n {
		return models.Selection{}, fmt.Errorf("rotation: %w: %d records for permutation of %d",
			apperr.ErrInvalidArgument, len(records), n)
	}
	slot := Slot(day, offset, n)
	return models.Selection{
		Record:          records[perm[slot]],
		PositionInCycle: slot + 1,
		Total:           n,
		Offset:          offset,
		Date:            DateOf(day + offset),
	}, nil
}
