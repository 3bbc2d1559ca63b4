package models

import "time"

type QueueEntry struct {
	SlotID    string    `json:"slot_id" bson:"slot_id"`
	UserID    int64     `json:"user_id" bson:"user_id"`
	Position  int       `json:"position" bson:"position"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// QueuePosition is the caller's own enqueue outcome.
type QueuePosition struct {
	SlotID       string `json:"slot_id"`
	Position     int    `json:"position"`
	TotalInQueue int    `json:"total_in_queue"`
}

type QueueInfo struct {
	SlotID    string `json:"slot_id"`
	QueueSize int    `json:"queue_size"`
}
