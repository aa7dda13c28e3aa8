package scheduler

import (
	"testing"
	"time"

	"classbook/internal/models"

	"github.com/stretchr/testify/assert"
)

func booking(room string, date time.Time, hour, minute int) *models.Booking {
	return &models.Booking{Room: room, Date: models.DateOf(date), Time: models.NewTimeOfDay(hour, minute)}
}

func TestConflicts(t *testing.T) {
	day := time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC)
	next := day.AddDate(0, 0, 1)

	tests := []struct {
		name string
		a, b *models.Booking
		want bool
	}{
		{"SameTime", booking("A101", day, 10, 0), booking("A101", day, 10, 0), true},
		{"NinetyMinutes", booking("A101", day, 10, 0), booking("A101", day, 11, 30), true},
		{"JustUnderTwoHours", booking("A101", day, 10, 0), booking("A101", day, 11, 59), true},
		{"ExactlyTwoHours", booking("A101", day, 10, 0), booking("A101", day, 12, 0), false},
		{"ThreeHours", booking("A101", day, 10, 0), booking("A101", day, 13, 0), false},
		{"EarlierWithinGap", booking("A101", day, 14, 0), booking("A101", day, 13, 0), true},
		{"OtherRoom", booking("A101", day, 10, 0), booking("B201", day, 10, 0), false},
		{"OtherDate", booking("A101", day, 10, 0), booking("A101", next, 10, 0), false},
		{"Nil", nil, booking("A101", day, 10, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Conflicts(tt.a, tt.b))
			assert.Equal(t, tt.want, Conflicts(tt.b, tt.a), "conflict rule must be symmetric")
		})
	}
}

func TestFindConflict(t *testing.T) {
	day := time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC)
	existing := []*models.Booking{
		booking("A101", day, 8, 0),
		booking("B201", day, 10, 0),
	}

	assert.Nil(t, FindConflict(existing, booking("A101", day, 10, 0)))
	assert.Same(t, existing[1], FindConflict(existing, booking("B201", day, 11, 0)))
	assert.Nil(t, FindConflict(nil, booking("B201", day, 11, 0)))
}
