package models

// SlotRecord is the stored form of a bookable seat.
type SlotRecord struct {
	ID             string  `json:"id" bson:"id"`
	ServiceName    string  `json:"service_name" bson:"service_name"`
	Tier           string  `json:"tier,omitempty" bson:"tier,omitempty"`
	Category       string  `json:"category" bson:"category"`
	CategoryAccent string  `json:"category_accent" bson:"category_accent"`
	MonthlyCost    float64 `json:"monthly_cost" bson:"monthly_cost"`
	URL            string  `json:"url,omitempty" bson:"url,omitempty"`
	Login          string  `json:"login,omitempty" bson:"login,omitempty"`
	Password       string  `json:"password,omitempty" bson:"password,omitempty"`
	ChromeProfile  string  `json:"chrome_profile,omitempty" bson:"chrome_profile,omitempty"`
	IsActive       bool    `json:"is_active" bson:"is_active"`
}

// Slot is the snapshot view of a seat as served by GET /slots.
// OccupantName and SessionMinutes are set iff Available is false.
type Slot struct {
	ID             string  `json:"id"`
	ServiceName    string  `json:"service_name"`
	Tier           string  `json:"tier,omitempty"`
	Category       string  `json:"category"`
	CategoryAccent string  `json:"category_accent"`
	MonthlyCost    float64 `json:"monthly_cost"`
	Available      bool    `json:"available"`
	OccupantName   string  `json:"occupant_name,omitempty"`
	SessionMinutes *int    `json:"session_minutes,omitempty"`
	QueueSize      int     `json:"queue_size"`
}

// SlotCredentials is only handed to the current occupant of a slot.
type SlotCredentials struct {
	SlotID      string `json:"slot_id"`
	ServiceName string `json:"service_name"`
	URL         string `json:"url,omitempty"`
	Login       string `json:"login,omitempty"`
	Password    string `json:"password,omitempty"`
}

// FindSlot returns the slot with the given id from a snapshot.
func FindSlot(slots []Slot, id string) (Slot, bool) {
	for _, s := range slots {
		if s.ID == id {
			return s, true
		}
	}
	return Slot{}, false
}
