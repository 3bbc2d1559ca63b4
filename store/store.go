// Package store defines the persistence contract of the portal backend
// and an in-memory implementation used by default and in tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vditaxi/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrSlotTaken     = errors.New("slot already occupied")
	ErrConflict      = errors.New("conflict")
	ErrUsernameTaken = errors.New("username already taken")
)

// BookingConflictError carries the active booking a new one overlaps.
type BookingConflictError struct {
	Existing models.Booking
}

func (e *BookingConflictError) Error() string {
	return fmt.Sprintf("overlaps booking %s %s (%d min)", e.Existing.Date, e.Existing.StartTime, e.Existing.DurationMin)
}

func (e *BookingConflictError) Is(target error) bool { return target == ErrConflict }

type Store interface {
	CreateUser(ctx context.Context, u models.User) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
	UserByUsername(ctx context.Context, username string) (models.User, error)
	UpdateUser(ctx context.Context, u models.User) error
	// ListUsers returns every user ordered by id.
	ListUsers(ctx context.Context) ([]models.User, error)
	Favorites(ctx context.Context, userID int64) ([]string, error)
	SetFavorites(ctx context.Context, userID int64, slotIDs []string) error

	UpsertSlot(ctx context.Context, s models.SlotRecord) error
	GetSlot(ctx context.Context, id string) (models.SlotRecord, error)
	// ListSlots returns slots ordered by id.
	ListSlots(ctx context.Context, includeInactive bool) ([]models.SlotRecord, error)

	// StartSession fails with ErrSlotTaken while another session on the
	// slot is active.
	StartSession(ctx context.Context, userID int64, slotID string, at time.Time) (models.SessionRecord, error)
	ActiveSession(ctx context.Context, slotID string) (models.SessionRecord, error)
	ActiveSessions(ctx context.Context) ([]models.SessionRecord, error)
	// EndSession fails with ErrNotFound unless the session is active.
	EndSession(ctx context.Context, id int64, at time.Time, reason string) (models.SessionRecord, error)
	GetSession(ctx context.Context, id int64) (models.SessionRecord, error)
	// SessionHistory returns ended sessions, most recently started first.
	SessionHistory(ctx context.Context, userID int64, limit int) ([]models.SessionRecord, error)
	// SessionsSince returns sessions of any state started at or after since.
	SessionsSince(ctx context.Context, since time.Time) ([]models.SessionRecord, error)

	// Enqueue is idempotent: an existing entry is returned unchanged.
	Enqueue(ctx context.Context, slotID string, userID int64, at time.Time) (entry models.QueueEntry, total int, err error)
	Dequeue(ctx context.Context, slotID string, userID int64) error
	// PopQueue removes and returns the lowest position, ErrNotFound when empty.
	PopQueue(ctx context.Context, slotID string) (models.QueueEntry, error)
	QueueSize(ctx context.Context, slotID string) (int, error)

	// ListBookings returns the user's active bookings by date and time.
	ListBookings(ctx context.Context, userID int64) ([]models.Booking, error)
	// CreateBooking fails with a *BookingConflictError when the booking
	// overlaps an active one on the same slot and date.
	CreateBooking(ctx context.Context, b models.Booking) (models.Booking, error)
	CancelBooking(ctx context.Context, userID, id int64) error

	ListTemplates(ctx context.Context) ([]models.Template, error)
	GetTemplate(ctx context.Context, id int64) (models.Template, error)
	CreateTemplate(ctx context.Context, t models.Template) (models.Template, error)
	UpdateTemplate(ctx context.Context, t models.Template) error
	DeleteTemplate(ctx context.Context, id int64) error
	IncrementTemplateUsage(ctx context.Context, id int64) error
}
