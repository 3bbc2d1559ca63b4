package store

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"vditaxi/models"
)

// Memory is a Store held in process memory. A single mutex serializes
// every operation, which is what makes StartSession atomic.
type Memory struct {
	mu sync.Mutex

	users     map[int64]models.User
	favorites map[int64][]string
	slots     map[string]models.SlotRecord
	sessions  map[int64]models.SessionRecord
	active    map[string]int64 // slot id -> active session id
	queues    map[string][]models.QueueEntry
	bookings  map[int64]models.Booking
	templates map[int64]models.Template

	lastID int64
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users:     make(map[int64]models.User),
		favorites: make(map[int64][]string),
		slots:     make(map[string]models.SlotRecord),
		sessions:  make(map[int64]models.SessionRecord),
		active:    make(map[string]int64),
		queues:    make(map[string][]models.QueueEntry),
		bookings:  make(map[int64]models.Booking),
		templates: make(map[int64]models.Template),
	}
}

func (m *Memory) nextID() int64 {
	m.lastID++
	return m.lastID
}

// ---------- Users ----------

func (m *Memory) CreateUser(_ context.Context, u models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return models.User{}, ErrUsernameTaken
		}
	}
	u.ID = m.nextID()
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) UserByID(_ context.Context, id int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) UserByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, username) {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (m *Memory) UpdateUser(_ context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	m.users[u.ID] = u
	return nil
}

func (m *Memory) ListUsers(_ context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Favorites(_ context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.favorites[userID]), nil
}

func (m *Memory) SetFavorites(_ context.Context, userID int64, slotIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.favorites[userID] = slices.Clone(slotIDs)
	return nil
}

// ---------- Slots ----------

func (m *Memory) UpsertSlot(_ context.Context, s models.SlotRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[s.ID] = s
	return nil
}

func (m *Memory) GetSlot(_ context.Context, id string) (models.SlotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return models.SlotRecord{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) ListSlots(_ context.Context, includeInactive bool) ([]models.SlotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SlotRecord, 0, len(m.slots))
	for _, s := range m.slots {
		if s.IsActive || includeInactive {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------- Sessions ----------

func (m *Memory) StartSession(_ context.Context, userID int64, slotID string, at time.Time) (models.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.active[slotID]; taken {
		return models.SessionRecord{}, ErrSlotTaken
	}
	s := models.SessionRecord{
		ID:        m.nextID(),
		UserID:    userID,
		SlotID:    slotID,
		StartedAt: at,
	}
	m.sessions[s.ID] = s
	m.active[slotID] = s.ID
	return s, nil
}

func (m *Memory) ActiveSession(_ context.Context, slotID string) (models.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.active[slotID]
	if !ok {
		return models.SessionRecord{}, ErrNotFound
	}
	return m.sessions[id], nil
}

func (m *Memory) ActiveSessions(_ context.Context) ([]models.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SessionRecord, 0, len(m.active))
	for _, id := range m.active {
		out = append(out, m.sessions[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) EndSession(_ context.Context, id int64, at time.Time, reason string) (models.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.Active() {
		return models.SessionRecord{}, ErrNotFound
	}
	s.EndedAt = &at
	s.EndReason = reason
	m.sessions[id] = s
	delete(m.active, s.SlotID)
	return s, nil
}

func (m *Memory) GetSession(_ context.Context, id int64) (models.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return models.SessionRecord{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) SessionHistory(_ context.Context, userID int64, limit int) ([]models.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SessionRecord
	for _, s := range m.sessions {
		if s.UserID == userID && !s.Active() {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SessionsSince(_ context.Context, since time.Time) ([]models.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SessionRecord
	for _, s := range m.sessions {
		if !s.StartedAt.Before(since) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------- Queue ----------

func (m *Memory) Enqueue(_ context.Context, slotID string, userID int64, at time.Time) (models.QueueEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[slotID]
	for _, e := range q {
		if e.UserID == userID {
			return e, len(q), nil
		}
	}
	pos := 1
	if len(q) > 0 {
		pos = q[len(q)-1].Position + 1
	}
	e := models.QueueEntry{SlotID: slotID, UserID: userID, Position: pos, CreatedAt: at}
	m.queues[slotID] = append(q, e)
	return e, len(q) + 1, nil
}

func (m *Memory) Dequeue(_ context.Context, slotID string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[slotID]
	for i, e := range q {
		if e.UserID == userID {
			m.queues[slotID] = slices.Delete(q, i, i+1)
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) PopQueue(_ context.Context, slotID string) (models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[slotID]
	if len(q) == 0 {
		return models.QueueEntry{}, ErrNotFound
	}
	m.queues[slotID] = q[1:]
	return q[0], nil
}

func (m *Memory) QueueSize(_ context.Context, slotID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[slotID]), nil
}

// ---------- Bookings ----------

func (m *Memory) ListBookings(_ context.Context, userID int64) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if b.UserID == userID && b.Status == models.BookingActive {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (m *Memory) CreateBooking(_ context.Context, b models.Booking) (models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.bookings {
		if existing.Status == models.BookingActive && b.Overlaps(existing) {
			return models.Booking{}, &BookingConflictError{Existing: existing}
		}
	}
	b.ID = m.nextID()
	if b.Status == "" {
		b.Status = models.BookingActive
	}
	m.bookings[b.ID] = b
	return b, nil
}

func (m *Memory) CancelBooking(_ context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.UserID != userID {
		return ErrNotFound
	}
	b.Status = models.BookingCancelled
	m.bookings[id] = b
	return nil
}

// ---------- Templates ----------

func (m *Memory) ListTemplates(_ context.Context) ([]models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Template, 0, len(m.templates))
	for _, t := range m.templates {
		t.SlotIDs = slices.Clone(t.SlotIDs)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetTemplate(_ context.Context, id int64) (models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return models.Template{}, ErrNotFound
	}
	t.SlotIDs = slices.Clone(t.SlotIDs)
	return t, nil
}

func (m *Memory) CreateTemplate(_ context.Context, t models.Template) (models.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.nextID()
	t.SlotIDs = slices.Clone(t.SlotIDs)
	m.templates[t.ID] = t
	return t, nil
}

func (m *Memory) UpdateTemplate(_ context.Context, t models.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[t.ID]; !ok {
		return ErrNotFound
	}
	t.SlotIDs = slices.Clone(t.SlotIDs)
	m.templates[t.ID] = t
	return nil
}

func (m *Memory) DeleteTemplate(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.templates[id]; !ok {
		return ErrNotFound
	}
	delete(m.templates, id)
	return nil
}

func (m *Memory) IncrementTemplateUsage(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return ErrNotFound
	}
	t.UsageCount++
	m.templates[id] = t
	return nil
}
