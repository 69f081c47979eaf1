package annotation

import (
	"log/slog"
	"time"

	"github.com/Cartooli/math-boredgames-sub001/internal/models"
	"github.com/Cartooli/math-boredgames-sub001/internal/rotation"
)

// Streak returns the stored visit statistics.
func (s *Store) Streak() models.StreakStats {
	var st models.StreakStats
	s.readJSON(StreakKey, &st)
	return st
}

// RecordView counts a visit to today's problem. Views of any other day are
// ignored. The stats change at most once per calendar day: one day after the
// last visit extends the streak, any other gap restarts it at 1.
func (s *Store) RecordView(isToday bool) models.StreakStats {
	if !isToday {
		return s.Streak()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.Streak()
	today := s.today()

	if st.LastVisitDate == "" {
		st.CurrentStreak = 1
	} else {
		last, err := time.ParseInLocation(dateLayout, st.LastVisitDate, time.UTC)
		if err != nil {
			s.corrupt(StreakKey, err)
			st.CurrentStreak = 1
		} else {
			switch gap := today - rotation.DayIndex(last, time.UTC); {
			case gap == 0:
				return st
			case gap == 1:
				st.CurrentStreak++
			default:
				// Includes a clock moved backwards.
				st.CurrentStreak = 1
			}
		}
	}

	st.DaysActive++
	st.LastVisitDate = rotation.DateOf(today)
	if st.CurrentStreak > st.LongestStreak {
		st.LongestStreak = st.CurrentStreak
	}
	s.writeJSON(StreakKey, st)
	s.logger.Debug("annotation: view recorded",
		slog.Int("current_streak", st.CurrentStreak),
		slog.Int("days_active", st.DaysActive),
	)
	return st
}
