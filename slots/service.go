// Package slots serves the slot board: listing, occupying and releasing
// slots, the per-slot waiting queue, and the session reaper.
package slots

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"

	"vditaxi/clock"
	"vditaxi/hub"
	"vditaxi/models"
	"vditaxi/store"
)

// OccupiedError reports who holds a slot that could not be occupied.
type OccupiedError struct {
	Occupant string
}

func (e *OccupiedError) Error() string {
	return "slot already occupied by " + e.Occupant
}

func (e *OccupiedError) Is(target error) bool { return target == store.ErrSlotTaken }

// Service holds the dependencies shared by the slot handlers, template
// launches, the admin screens and the reaper.
type Service struct {
	Store  store.Store
	Events hub.Publisher
	Clock  clock.Clock
	// ConnectURL is a format string with one %s for the encoded
	// connection identifier.
	ConnectURL string
}

// connectURL builds the remote desktop client link for a slot. The
// identifier is opaque to clients.
func (s *Service) connectURL(slotID string) string {
	raw := slotID + "\x00c\x00postgresql"
	return fmt.Sprintf(s.ConnectURL, base64.StdEncoding.EncodeToString([]byte(raw)))
}

func (s *Service) userName(ctx context.Context, id int64) string {
	u, err := s.Store.UserByID(ctx, id)
	if err != nil {
		return ""
	}
	return u.Name
}

// Views computes the board as served by GET /slots.
func (s *Service) Views(ctx context.Context) ([]models.Slot, error) {
	records, err := s.Store.ListSlots(ctx, false)
	if err != nil {
		return nil, err
	}
	active, err := s.Store.ActiveSessions(ctx)
	if err != nil {
		return nil, err
	}
	bySlot := make(map[string]models.SessionRecord, len(active))
	for _, sess := range active {
		bySlot[sess.SlotID] = sess
	}

	now := s.Clock.Now()
	out := make([]models.Slot, 0, len(records))
	for _, r := range records {
		v := models.Slot{
			ID:             r.ID,
			ServiceName:    r.ServiceName,
			Tier:           r.Tier,
			Category:       r.Category,
			CategoryAccent: r.CategoryAccent,
			MonthlyCost:    r.MonthlyCost,
			Available:      true,
		}
		if sess, ok := bySlot[r.ID]; ok {
			mins := sess.DurationMinutes(now)
			v.Available = false
			v.OccupantName = s.userName(ctx, sess.UserID)
			v.SessionMinutes = &mins
		}
		if v.QueueSize, err = s.Store.QueueSize(ctx, r.ID); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Occupy starts a session for user on slotID. It fails with
// store.ErrNotFound for unknown or disabled slots and *OccupiedError
// when someone else got there first.
func (s *Service) Occupy(ctx context.Context, user models.User, slotID string) (models.OccupyResult, error) {
	slot, err := s.Store.GetSlot(ctx, slotID)
	if err != nil {
		return models.OccupyResult{}, err
	}
	if !slot.IsActive {
		return models.OccupyResult{}, store.ErrNotFound
	}

	sess, err := s.Store.StartSession(ctx, user.ID, slotID, s.Clock.Now())
	if errors.Is(err, store.ErrSlotTaken) {
		occupant := ""
		if cur, err := s.Store.ActiveSession(ctx, slotID); err == nil {
			occupant = s.userName(ctx, cur.UserID)
		}
		return models.OccupyResult{}, &OccupiedError{Occupant: occupant}
	}
	if err != nil {
		return models.OccupyResult{}, err
	}

	log.Printf("[slots] %s occupied %s (session %d)", user.Username, slotID, sess.ID)
	s.Events.Publish(ctx, models.SlotEvent{
		Event:        models.EventSlotOccupied,
		SlotID:       slotID,
		OccupantName: user.Name,
	})
	return models.OccupyResult{
		SessionID:  sess.ID,
		SlotID:     slotID,
		StartedAt:  sess.StartedAt,
		ConnectURL: s.connectURL(slotID),
	}, nil
}

// End closes an active session, hands the slot to the head of its queue
// and announces the release.
func (s *Service) End(ctx context.Context, sess models.SessionRecord, reason string) (models.ReleaseResult, error) {
	ended, err := s.Store.EndSession(ctx, sess.ID, s.Clock.Now(), reason)
	if err != nil {
		return models.ReleaseResult{}, err
	}

	next := ""
	entry, err := s.Store.PopQueue(ctx, sess.SlotID)
	switch {
	case err == nil:
		next = s.userName(ctx, entry.UserID)
	case !errors.Is(err, store.ErrNotFound):
		log.Printf("[slots] pop queue %s: %v", sess.SlotID, err)
	}

	log.Printf("[slots] session %d on %s ended (%s)", ended.ID, ended.SlotID, reason)
	s.Events.Publish(ctx, models.SlotEvent{
		Event:       models.EventSlotReleased,
		SlotID:      sess.SlotID,
		NextInQueue: next,
	})
	return models.ReleaseResult{OK: true, SessionID: ended.ID, NextInQueue: next}, nil
}

// Release ends the caller's own session on slotID. store.ErrNotFound
// means the caller holds nothing there (never had it, or it expired).
func (s *Service) Release(ctx context.Context, userID int64, slotID string) (models.ReleaseResult, error) {
	sess, err := s.Store.ActiveSession(ctx, slotID)
	if err != nil {
		return models.ReleaseResult{}, err
	}
	if sess.UserID != userID {
		return models.ReleaseResult{}, store.ErrNotFound
	}
	return s.End(ctx, sess, models.EndManual)
}

// ForceRelease ends whatever session is active on slotID.
func (s *Service) ForceRelease(ctx context.Context, slotID, reason string) (models.ReleaseResult, error) {
	sess, err := s.Store.ActiveSession(ctx, slotID)
	if err != nil {
		return models.ReleaseResult{}, err
	}
	return s.End(ctx, sess, reason)
}
