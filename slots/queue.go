package slots

import (
	"context"
	"errors"

	"vditaxi/models"
	"vditaxi/store"
)

// ErrSlotFree rejects queueing for a slot nobody holds.
var ErrSlotFree = errors.New("slot is free, occupy it directly")

func (s *Service) JoinQueue(ctx context.Context, userID int64, slotID string) (models.QueuePosition, error) {
	if _, err := s.Store.GetSlot(ctx, slotID); err != nil {
		return models.QueuePosition{}, err
	}
	if _, err := s.Store.ActiveSession(ctx, slotID); errors.Is(err, store.ErrNotFound) {
		return models.QueuePosition{}, ErrSlotFree
	} else if err != nil {
		return models.QueuePosition{}, err
	}

	entry, total, err := s.Store.Enqueue(ctx, slotID, userID, s.Clock.Now())
	if err != nil {
		return models.QueuePosition{}, err
	}
	s.Events.Publish(ctx, models.SlotEvent{Event: models.EventQueueChanged, SlotID: slotID})
	return models.QueuePosition{SlotID: slotID, Position: entry.Position, TotalInQueue: total}, nil
}

func (s *Service) LeaveQueue(ctx context.Context, userID int64, slotID string) error {
	if err := s.Store.Dequeue(ctx, slotID, userID); err != nil {
		return err
	}
	s.Events.Publish(ctx, models.SlotEvent{Event: models.EventQueueChanged, SlotID: slotID})
	return nil
}
