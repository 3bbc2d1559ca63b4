package slotsync

import (
	"time"

	"vditaxi/models"
)

// Session is the occupancy this client opened.
type Session struct {
	ID         int64
	SlotID     string
	StartedAt  time.Time // server time
	ConnectURL string
	// Elapsed runs on the local clock from the moment occupy returned.
	Elapsed time.Duration
}

type activeSession struct {
	res     models.OccupyResult
	localAt time.Time
	// occupant is the name the slot list showed on our slot right after
	// the occupy. It stands in for the profile name when that never loaded.
	occupant string
}

// Active returns the session opened through Occupy, if it is still
// believed to be running.
func (s *Synchronizer) Active() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Session{}, false
	}
	return Session{
		ID:         s.active.res.SessionID,
		SlotID:     s.active.res.SlotID,
		StartedAt:  s.active.res.StartedAt,
		ConnectURL: s.active.res.ConnectURL,
		Elapsed:    s.clock.Now().Sub(s.active.localAt),
	}, true
}

func (s *Synchronizer) setActive(res models.OccupyResult) {
	s.mu.Lock()
	s.active = &activeSession{res: res, localAt: s.clock.Now()}
	s.mu.Unlock()
}

// forget drops the own session if it is on slotID.
func (s *Synchronizer) forget(slotID, why string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.res.SlotID != slotID {
		return
	}
	s.logger.Info("session ended", "slot", slotID, "session", s.active.res.SessionID, "reason", why)
	s.active = nil
}

// reconcile runs on every applied slot list. The own session is gone
// once its slot shows free or held by someone else.
func (s *Synchronizer) reconcile(slots []models.Slot) {
	me := s.profile.Snapshot().Data.Name
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return
	}
	slotID := s.active.res.SlotID
	if me == "" {
		me = s.active.occupant
	}
	s.mu.Unlock()

	slot, ok := models.FindSlot(slots, slotID)
	switch {
	case !ok:
		s.forget(slotID, "slot removed")
	case slot.Available:
		s.forget(slotID, "slot released")
	case me == "":
		s.learnOccupant(slotID, slot.OccupantName)
	case slot.OccupantName != me:
		s.forget(slotID, "slot taken by "+slot.OccupantName)
	}
}

func (s *Synchronizer) learnOccupant(slotID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.res.SlotID == slotID && s.active.occupant == "" {
		s.active.occupant = name
	}
}
