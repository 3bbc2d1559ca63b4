package models

import "time"

const (
	BookingActive    = "active"
	BookingCancelled = "cancelled"
	BookingExpired   = "expired"
)

// DefaultBookingMinutes applies when a request leaves the duration out.
const DefaultBookingMinutes = 60

type Booking struct {
	ID          int64     `json:"id" bson:"id"`
	UserID      int64     `json:"-" bson:"user_id"`
	SlotID      string    `json:"slot_id" bson:"slot_id"`
	Date        string    `json:"date" bson:"date"`             // 2026-02-14
	StartTime   string    `json:"start_time" bson:"start_time"` // 10:00
	DurationMin int       `json:"duration_min" bson:"duration_min"`
	Status      string    `json:"status" bson:"status"`
	CreatedAt   time.Time `json:"created_at" bson:"created_at"`
}

type BookingRequest struct {
	SlotID      string `json:"slot_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	DurationMin int    `json:"duration_min,omitempty"`
}

// ParseClock converts "HH:MM" to minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Overlaps reports whether two bookings on the same slot and date
// share any minute.
func (b Booking) Overlaps(o Booking) bool {
	if b.SlotID != o.SlotID || b.Date != o.Date {
		return false
	}
	start, err := ParseClock(b.StartTime)
	if err != nil {
		return false
	}
	other, err := ParseClock(o.StartTime)
	if err != nil {
		return false
	}
	return start < other+o.DurationMin && other < start+b.DurationMin
}
