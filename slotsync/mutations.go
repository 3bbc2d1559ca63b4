package slotsync

import (
	"context"
	"errors"

	"vditaxi/models"
	"vditaxi/portal"
)

// settle reloads q after a mutation. A completed call (success or a
// rejection by the portal) reloads before returning; a transport
// failure leaves the snapshot alone and refreshes in the background.
func settle[T any](ctx context.Context, s *Synchronizer, q *query[T], err error) {
	if err != nil && !portal.IsRejection(err) {
		goRefresh(s, q)
		return
	}
	if _, rerr := q.Reload(ctx); rerr != nil && !errors.Is(rerr, ErrClosed) {
		s.logger.Warn("reload after mutation failed", "query", q.name, "error", rerr)
	}
}

// Occupy claims a slot. A portal.APIError with IsConflict means someone
// got there first; the slot list is already reloaded either way.
func (s *Synchronizer) Occupy(ctx context.Context, slotID string) (models.OccupyResult, error) {
	if s.isClosed() {
		return models.OccupyResult{}, ErrClosed
	}
	// Fetches started before the request can't be trusted afterwards.
	s.slots.Invalidate()
	res, err := s.api.Occupy(ctx, slotID)
	if err == nil {
		s.slots.Invalidate()
		s.setActive(res)
	}
	settle(ctx, s, s.slots, err)
	return res, err
}

// Release ends the own session on slotID. A rejection (the session
// already expired or was taken over) also clears it.
func (s *Synchronizer) Release(ctx context.Context, slotID string) (models.ReleaseResult, error) {
	if s.isClosed() {
		return models.ReleaseResult{}, ErrClosed
	}
	s.slots.Invalidate()
	res, err := s.api.Release(ctx, slotID)
	switch {
	case err == nil:
		s.forget(slotID, "released")
	case portal.IsRejection(err):
		s.forget(slotID, "release rejected: "+err.Error())
	}
	settle(ctx, s, s.slots, err)
	return res, err
}

func (s *Synchronizer) JoinQueue(ctx context.Context, slotID string) (models.QueuePosition, error) {
	if s.isClosed() {
		return models.QueuePosition{}, ErrClosed
	}
	pos, err := s.api.JoinQueue(ctx, slotID)
	settle(ctx, s, s.slots, err)
	return pos, err
}

func (s *Synchronizer) LeaveQueue(ctx context.Context, slotID string) error {
	if s.isClosed() {
		return ErrClosed
	}
	err := s.api.LeaveQueue(ctx, slotID)
	settle(ctx, s, s.slots, err)
	return err
}

func (s *Synchronizer) CreateBooking(ctx context.Context, req models.BookingRequest) (models.Booking, error) {
	if s.isClosed() {
		return models.Booking{}, ErrClosed
	}
	b, err := s.api.CreateBooking(ctx, req)
	settle(ctx, s, s.bookings, err)
	return b, err
}

func (s *Synchronizer) CancelBooking(ctx context.Context, id int64) error {
	if s.isClosed() {
		return ErrClosed
	}
	err := s.api.CancelBooking(ctx, id)
	settle(ctx, s, s.bookings, err)
	return err
}

// SetFavorites replaces the favorite list and reloads the profile.
func (s *Synchronizer) SetFavorites(ctx context.Context, slotIDs []string) (models.Profile, error) {
	if s.isClosed() {
		return models.Profile{}, ErrClosed
	}
	p, err := s.api.SetFavorites(ctx, slotIDs)
	settle(ctx, s, s.profile, err)
	return p, err
}

// ToggleFavorite adds or removes slotID from the cached favorite list.
func (s *Synchronizer) ToggleFavorite(ctx context.Context, slotID string) (models.Profile, error) {
	current := s.profile.Snapshot().Data.Favorites
	next := make([]string, 0, len(current)+1)
	found := false
	for _, id := range current {
		if id == slotID {
			found = true
			continue
		}
		next = append(next, id)
	}
	if !found {
		next = append(next, slotID)
	}
	return s.SetFavorites(ctx, next)
}
