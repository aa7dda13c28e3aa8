package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type Status string

const (
	StatusFree     Status = "free"
	StatusReserved Status = "reserved"
)

func (s Status) Valid() bool {
	return s == StatusFree || s == StatusReserved
}

const DateLayout = "2006-01-02"

type Booking struct {
	ID        string    `json:"id" bson:"_id"`
	Date      time.Time `json:"date" bson:"date"`
	Time      TimeOfDay `json:"time" bson:"time"`
	Room      string    `json:"room" bson:"room"`
	Priority  int       `json:"priority" bson:"priority"`
	Status    Status    `json:"status" bson:"status"`
	Owner     string    `json:"owner,omitempty" bson:"owner,omitempty"`
	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// Reserved reports whether the booking is currently held by someone.
func (b *Booking) Reserved() bool {
	return b.Status == StatusReserved
}

func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// DateOf strips the clock part and returns midnight UTC of the same calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// TimeOfDay is a wall-clock time stored as minutes since midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t) * time.Minute
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < 24*60
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
