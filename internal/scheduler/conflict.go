package scheduler

import (
	"time"

	"classbook/internal/models"
)

// MinGap is the minimum distance between two bookings of the same room on the same day.
const MinGap = 2 * time.Hour

// Conflicts reports whether a and b occupy the same room on the same calendar
// day less than MinGap apart. Exactly MinGap apart is allowed.
func Conflicts(a, b *models.Booking) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Room != b.Room || !models.SameDate(a.Date, b.Date) {
		return false
	}
	diff := a.Time.Duration() - b.Time.Duration()
	if diff < 0 {
		diff = -diff
	}
	return diff < MinGap
}

// FindConflict returns the first booking in existing that conflicts with candidate.
func FindConflict(existing []*models.Booking, candidate *models.Booking) *models.Booking {
	for _, b := range existing {
		if Conflicts(b, candidate) {
			return b
		}
	}
	return nil
}
