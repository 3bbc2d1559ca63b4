package models

type Template struct {
	ID         int64    `json:"id" bson:"id"`
	Name       string   `json:"name" bson:"name"`
	Icon       string   `json:"icon" bson:"icon"`
	SlotIDs    []string `json:"slot_ids" bson:"slot_ids"`
	URL        string   `json:"url,omitempty" bson:"url,omitempty"`
	CreatedBy  int64    `json:"created_by,omitempty" bson:"created_by,omitempty"`
	UsageCount int      `json:"usage_count" bson:"usage_count"`
}

type TemplateRequest struct {
	Name    string   `json:"name"`
	Icon    string   `json:"icon,omitempty"`
	SlotIDs []string `json:"slot_ids"`
	URL     string   `json:"url,omitempty"`
}

// Launch statuses reported per slot.
const (
	LaunchOK       = "ok"
	LaunchOccupied = "occupied"
)

type LaunchedSlot struct {
	SlotID    string `json:"slot_id"`
	Status    string `json:"status"`
	SessionID int64  `json:"session_id,omitempty"`
	Occupant  string `json:"occupant,omitempty"`
}

type LaunchResult struct {
	TemplateID int64          `json:"template_id"`
	Sessions   []LaunchedSlot `json:"sessions"`
}
