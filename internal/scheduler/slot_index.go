package scheduler

import (
	"math/rand/v2"
	"time"

	"classbook/internal/models"
)

// Slot is a candidate (room, date, hour) position for a generated booking.
type Slot struct {
	Room string
	Date time.Time
	Hour int
}

func (s Slot) Time() models.TimeOfDay {
	return models.NewTimeOfDay(s.Hour, 0)
}

type slotKey struct {
	room string
	date string
	hour int
}

func keyOf(room string, date time.Time, hour int) slotKey {
	return slotKey{room: room, date: date.Format(models.DateLayout), hour: hour}
}

// SlotIndex tracks which enumerated slots are still free. Free slots live in
// a dense slice so that sampling and occupying are both O(1).
// Not safe for concurrent use.
type SlotIndex struct {
	free     []Slot
	position map[slotKey]int
	occupied map[slotKey]struct{}
}

// NewSlotIndex enumerates rooms x days x hours starting at start and marks
// the hours already used by existing bookings as occupied. Existing bookings
// outside the enumeration are remembered but never sampled.
func NewSlotIndex(rooms []string, hours []int, start time.Time, days int, existing []*models.Booking) *SlotIndex {
	idx := &SlotIndex{
		position: make(map[slotKey]int),
		occupied: make(map[slotKey]struct{}, len(existing)),
	}

	for _, b := range existing {
		idx.occupied[keyOf(b.Room, b.Date, b.Time.Hour())] = struct{}{}
	}

	first := models.DateOf(start)
	for _, room := range rooms {
		for d := 0; d < days; d++ {
			date := first.AddDate(0, 0, d)
			for _, hour := range hours {
				k := keyOf(room, date, hour)
				if _, taken := idx.occupied[k]; taken {
					continue
				}
				if _, dup := idx.position[k]; dup {
					continue
				}
				idx.position[k] = len(idx.free)
				idx.free = append(idx.free, Slot{Room: room, Date: date, Hour: hour})
			}
		}
	}

	return idx
}

// Len returns the number of free slots.
func (idx *SlotIndex) Len() int {
	return len(idx.free)
}

// Sample picks a free slot uniformly at random. It returns false when none are left.
func (idx *SlotIndex) Sample(rng *rand.Rand) (Slot, bool) {
	if len(idx.free) == 0 {
		return Slot{}, false
	}
	return idx.free[rng.IntN(len(idx.free))], true
}

// Occupy marks the slot as taken.
func (idx *SlotIndex) Occupy(s Slot) {
	k := keyOf(s.Room, s.Date, s.Hour)
	idx.occupied[k] = struct{}{}

	pos, ok := idx.position[k]
	if !ok {
		return
	}
	last := len(idx.free) - 1
	if pos != last {
		moved := idx.free[last]
		idx.free[pos] = moved
		idx.position[keyOf(moved.Room, moved.Date, moved.Hour)] = pos
	}
	idx.free = idx.free[:last]
	delete(idx.position, k)
}

func (idx *SlotIndex) IsOccupied(room string, date time.Time, hour int) bool {
	_, ok := idx.occupied[keyOf(room, date, hour)]
	return ok
}
