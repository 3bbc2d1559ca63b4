package models

import "time"

// Session end reasons.
const (
	EndManual     = "manual"
	EndAdminForce = "admin_force"
	EndTimeout    = "timeout"
	EndDisabled   = "slot_disabled"
)

// SessionRecord is one occupancy of a slot by a user. EndedAt is nil
// while the session is active.
type SessionRecord struct {
	ID        int64      `json:"id" bson:"id"`
	UserID    int64      `json:"user_id" bson:"user_id"`
	SlotID    string     `json:"slot_id" bson:"slot_id"`
	StartedAt time.Time  `json:"started_at" bson:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty" bson:"end_reason,omitempty"`
}

// Active reports whether the session has not ended.
func (s SessionRecord) Active() bool { return s.EndedAt == nil }

// DurationMinutes is the whole number of minutes between start and end
// (or now for an active session).
func (s SessionRecord) DurationMinutes(now time.Time) int {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	return int(end.Sub(s.StartedAt) / time.Minute)
}

// OccupyResult is returned by POST /slots/:id/occupy.
type OccupyResult struct {
	SessionID  int64     `json:"session_id"`
	SlotID     string    `json:"slot_id"`
	StartedAt  time.Time `json:"started_at"`
	ConnectURL string    `json:"connect_url"`
}

// ReleaseResult is returned by the release endpoints.
type ReleaseResult struct {
	OK          bool   `json:"ok"`
	SessionID   int64  `json:"session_id"`
	NextInQueue string `json:"next_in_queue,omitempty"`
}

type SessionSummary struct {
	ID          int64      `json:"id"`
	SlotID      string     `json:"slot_id"`
	ServiceName string     `json:"service_name"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	DurationMin int        `json:"duration_min"`
	EndReason   string     `json:"end_reason,omitempty"`
}

// UserUsage is one row of the admin user list, counted over StatsWindow.
type UserUsage struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Username     string  `json:"username"`
	TelegramID   string  `json:"telegram_id,omitempty"`
	SessionsWeek int     `json:"sessions_week"`
	HoursWeek    float64 `json:"hours_week"`
}

// SlotUsage is the share of StatsWindow a slot spent occupied.
type SlotUsage struct {
	SlotID         string `json:"slot_id"`
	ServiceName    string `json:"service_name"`
	Pct            int    `json:"pct"`
	Recommendation string `json:"recommendation,omitempty"`
}

const (
	StatsWindow = 7 * 24 * time.Hour
	// BusySlotPct is the utilisation above which adding a slot is suggested.
	BusySlotPct = 70
)
