package models

// Push events broadcast on /api/ws/slots.
const (
	EventSlotOccupied = "slot_occupied"
	EventSlotReleased = "slot_released"
	EventQueueChanged = "queue_changed"
)

// SlotEvent is a change hint. Receivers refetch rather than apply it.
type SlotEvent struct {
	Event        string `json:"event"`
	SlotID       string `json:"slot_id"`
	OccupantName string `json:"occupant_name,omitempty"`
	NextInQueue  string `json:"next_in_queue,omitempty"`
}

// Invalidates reports whether the event names a known slot change.
func (e SlotEvent) Invalidates() bool {
	switch e.Event {
	case EventSlotOccupied, EventSlotReleased, EventQueueChanged:
		return true
	}
	return false
}
