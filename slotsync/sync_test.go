package slotsync

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"vditaxi/clock"
	"vditaxi/models"
	"vditaxi/portal"
)

// fakeAPI is an in-memory portal. Occupancy changes made with occupyAs
// are invisible to clients until they fetch.
type fakeAPI struct {
	mu        sync.Mutex
	me        string
	slots     map[string]models.Slot
	order     []string
	bookings  []models.Booking
	favorites []string
	nextID    int64
	down      bool
	noProfile bool

	slotFetches    int
	bookingFetches int
	profileFetches int
}

func newFakeAPI(me string, ids ...string) *fakeAPI {
	f := &fakeAPI{me: me, slots: make(map[string]models.Slot), nextID: 41}
	for _, id := range ids {
		f.slots[id] = models.Slot{ID: id, ServiceName: id, Available: true}
		f.order = append(f.order, id)
	}
	return f
}

func (f *fakeAPI) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slotFetches
}

func (f *fakeAPI) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func (f *fakeAPI) occupyAs(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.slots[id]
	s.Available = false
	s.OccupantName = name
	f.slots[id] = s
}

func (f *fakeAPI) Slots(ctx context.Context) ([]models.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slotFetches++
	if f.down {
		return nil, errors.New("dial tcp: connection refused")
	}
	out := make([]models.Slot, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.slots[id])
	}
	return out, nil
}

func (f *fakeAPI) Bookings(ctx context.Context) ([]models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookingFetches++
	return append([]models.Booking(nil), f.bookings...), nil
}

func (f *fakeAPI) Profile(ctx context.Context) (models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profileFetches++
	if f.noProfile {
		return models.Profile{}, &portal.APIError{Status: http.StatusInternalServerError, Detail: "Failed to load profile"}
	}
	return models.Profile{Name: f.me, Favorites: append([]string{}, f.favorites...)}, nil
}

func (f *fakeAPI) Occupy(ctx context.Context, slotID string) (models.OccupyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return models.OccupyResult{}, errors.New("dial tcp: connection refused")
	}
	s, ok := f.slots[slotID]
	if !ok {
		return models.OccupyResult{}, &portal.APIError{Status: http.StatusNotFound, Detail: "Slot not found"}
	}
	if !s.Available {
		return models.OccupyResult{}, &portal.APIError{Status: http.StatusConflict, Detail: "slot already occupied by " + s.OccupantName}
	}
	s.Available = false
	s.OccupantName = f.me
	f.slots[slotID] = s
	f.nextID++
	return models.OccupyResult{SessionID: f.nextID, SlotID: slotID, ConnectURL: "/c/" + slotID}, nil
}

func (f *fakeAPI) Release(ctx context.Context, slotID string) (models.ReleaseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.slots[slotID]
	if s.Available || s.OccupantName != f.me {
		return models.ReleaseResult{}, &portal.APIError{Status: http.StatusNotFound, Detail: "No active session for this slot"}
	}
	s.Available = true
	s.OccupantName = ""
	f.slots[slotID] = s
	return models.ReleaseResult{OK: true}, nil
}

func (f *fakeAPI) JoinQueue(ctx context.Context, slotID string) (models.QueuePosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.slots[slotID]
	if s.Available {
		return models.QueuePosition{}, &portal.APIError{Status: http.StatusBadRequest, Detail: "Slot is free, occupy it directly"}
	}
	s.QueueSize++
	f.slots[slotID] = s
	return models.QueuePosition{SlotID: slotID, Position: s.QueueSize, TotalInQueue: s.QueueSize}, nil
}

func (f *fakeAPI) LeaveQueue(ctx context.Context, slotID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.slots[slotID]
	if s.QueueSize == 0 {
		return &portal.APIError{Status: http.StatusNotFound, Detail: "You are not in the queue"}
	}
	s.QueueSize--
	f.slots[slotID] = s
	return nil
}

func (f *fakeAPI) CreateBooking(ctx context.Context, req models.BookingRequest) (models.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	b := models.Booking{ID: f.nextID, SlotID: req.SlotID, Date: req.Date, StartTime: req.StartTime, DurationMin: 60, Status: models.BookingActive}
	f.bookings = append(f.bookings, b)
	return b, nil
}

func (f *fakeAPI) CancelBooking(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range f.bookings {
		if b.ID == id {
			f.bookings = append(f.bookings[:i], f.bookings[i+1:]...)
			return nil
		}
	}
	return &portal.APIError{Status: http.StatusNotFound, Detail: "Booking not found"}
}

func (f *fakeAPI) SetFavorites(ctx context.Context, slotIDs []string) (models.Profile, error) {
	f.mu.Lock()
	f.favorites = append([]string{}, slotIDs...)
	f.mu.Unlock()
	return f.Profile(ctx)
}

func (f *fakeAPI) WebSocketURL() string { return "ws://portal.test/api/ws/slots" }
func (f *fakeAPI) Token() string        { return "token" }
func (f *fakeAPI) ClientID() string     { return "client-1" }

func startSync(t *testing.T, api API, clk *clock.FakeClock, dialer Dialer) *Synchronizer {
	t.Helper()
	cfg := Config{API: api, Clock: clk, Logger: discard, Dialer: dialer}
	if dialer == nil {
		cfg.DisablePush = true
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewRequiresAPI(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without API")
	}
}

func TestStartLoadsEverything(t *testing.T) {
	api := newFakeAPI("Anna", "ppx-1", "nbp")
	api.favorites = []string{"nbp"}
	s := startSync(t, api, clock.Fake(epoch), nil)

	if got := s.Slots(); len(got.Data) != 2 || !got.FetchedAt.Equal(epoch) || got.Loading {
		t.Fatalf("slots = %+v", got)
	}
	if got := s.Profile().Data; got.Name != "Anna" || len(got.Favorites) != 1 {
		t.Fatalf("profile = %+v", got)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}
}

func TestStartSurvivesUnreachablePortal(t *testing.T) {
	api := newFakeAPI("Anna", "ppx-1")
	api.setDown(true)
	clk := clock.Fake(epoch)
	s := startSync(t, api, clk, nil)
	if s.Slots().Err == nil {
		t.Fatal("load error not recorded")
	}
	api.setDown(false)
	clk.Advance(DefaultPollInterval)
	if snap := s.Slots(); snap.Err != nil || len(snap.Data) != 1 {
		t.Fatalf("poll did not recover: %+v", snap)
	}
}

func TestPollEveryInterval(t *testing.T) {
	api := newFakeAPI("Anna", "ppx-1")
	clk := clock.Fake(epoch)
	s := startSync(t, api, clk, nil)
	if n := api.fetches(); n != 1 {
		t.Fatalf("fetches after start = %d", n)
	}

	clk.Advance(DefaultPollInterval - time.Second)
	if n := api.fetches(); n != 1 {
		t.Fatalf("fetched early: %d", n)
	}
	clk.Advance(time.Second)
	if n := api.fetches(); n != 2 {
		t.Fatalf("fetches after one interval = %d", n)
	}
	// Snapshot age never exceeds the interval.
	if age := clk.Now().Sub(s.Slots().FetchedAt); age != 0 {
		t.Fatalf("snapshot age = %s", age)
	}

	api.occupyAs("ppx-1", "Bob")
	clk.Advance(2 * DefaultPollInterval)
	if n := api.fetches(); n != 4 {
		t.Fatalf("fetches after three intervals = %d", n)
	}
	if slot, _ := s.Slot("ppx-1"); slot.Available || slot.OccupantName != "Bob" {
		t.Fatalf("poll missed the change: %+v", slot)
	}
}

func TestPollFailureKeepsLastSnapshot(t *testing.T) {
	api := newFakeAPI("Anna", "ppx-1")
	clk := clock.Fake(epoch)
	s := startSync(t, api, clk, nil)

	api.setDown(true)
	clk.Advance(DefaultPollInterval)
	snap := s.Slots()
	if len(snap.Data) != 1 || snap.Err == nil || !snap.FetchedAt.Equal(epoch) {
		t.Fatalf("snapshot = %+v", snap)
	}
	// Polling continues after a failure.
	clk.Advance(DefaultPollInterval)
	if n := api.fetches(); n != 3 {
		t.Fatalf("fetches = %d", n)
	}
}

func TestNoFetchAfterClose(t *testing.T) {
	api := newFakeAPI("Anna", "ppx-1")
	clk := clock.Fake(epoch)
	s := startSync(t, api, clk, nil)
	clk.Advance(DefaultPollInterval)
	before := api.fetches()

	s.Close()
	clk.Advance(3 * DefaultPollInterval)
	if n := api.fetches(); n != before {
		t.Fatalf("fetches after close = %d, want %d", n, before)
	}
	if n := clk.Pending(); n != 0 {
		t.Fatalf("%d timers pending after close", n)
	}
	if _, err := s.Refresh(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("refresh after close: %v", err)
	}
	if _, err := s.Occupy(context.Background(), "ppx-1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("occupy after close: %v", err)
	}
	drained := make(chan struct{})
	go func() {
		for range s.Changes() {
		}
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("changes channel still open")
	}
	s.Close()
}

func TestOccupyConflictRefetches(t *testing.T) {
	api := newFakeAPI("Anna", "ppx-1")
	s := startSync(t, api, clock.Fake(epoch), nil)

	// Someone else takes the slot; the local snapshot still says free.
	api.occupyAs("ppx-1", "Bob")
	if slot, _ := s.Slot("ppx-1"); !slot.Available {
		t.Fatal("snapshot should be stale before occupy")
	}

	_, err := s.Occupy(context.Background(), "ppx-1")
	if !portal.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}
	slot, _ := s.Slot("ppx-1")
	if slot.Available || slot.OccupantName != "Bob" {
		t.Fatalf("slot after rejected occupy = %+v", slot)
	}
	if _, ok := s.Active(); ok {
		t.Fatal("rejected occupy left an active session")
	}
}

func TestOccupyAndRelease(t *testing.T) {
	api := newFakeAPI("Anna", "ppx-1")
	clk := clock.Fake(epoch)
	s := startSync(t, api, clk, nil)

	res, err := s.Occupy(context.Background(), "ppx-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.SessionID != 42 {
		t.Fatalf("session id = %d", res.SessionID)
	}
	if slot, _ := s.Slot("ppx-1"); slot.Available || slot.OccupantName != "Anna" {
		t.Fatalf("slot after occupy = %+v", slot)
	}

	clk.Advance(90 * time.Second)
	sess, ok := s.Active()
	if !ok || sess.ID != 42 || sess.Elapsed != 90*time.Second {
		t.Fatalf("active = %+v, %v", sess, ok)
	}

	if _, err := s.Release(context.Background(), "ppx-1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Active(); ok {
		t.Fatal("session kept after release")
	}
	if slot, _ := s.Slot("ppx-1"); !slot.Available {
		t.Fatalf("slot after release = %+v", slot)
	}
}

func TestSessionForgottenWhenSlotTakenOver(t *testing.T) {
	api := newFakeAPI("Anna", "ppx-1")
	clk := clock.Fake(epoch)
	s := startSync(t, api, clk, nil)
	if _, err := s.Occupy(context.Background(), "ppx-1"); err != nil {
		t.Fatal(err)
	}

	// The server times the session out and someone else claims the slot.
	api.occupyAs("ppx-1", "Bob")
	clk.Advance(DefaultPollInterval)
	if _, ok := s.Active(); ok {
		t.Fatal("session should be forgotten once the slot shows another occupant")
	}
}

func TestTakeoverDetectedWithoutProfile(t *testing.T) {
	api := newFakeAPI("Anna", "ppx-1")
	api.noProfile = true
	clk := clock.Fake(epoch)
	s := startSync(t, api, clk, nil)
	if s.Profile().Err == nil {
		t.Fatal("profile load should have failed")
	}
	if _, err := s.Occupy(context.Background(), "ppx-1"); err != nil {
		t.Fatal(err)
	}

	clk.Advance(DefaultPollInterval)
	if _, ok := s.Active(); !ok {
		t.Fatal("own session dropped while the slot still shows us")
	}

	api.occupyAs("ppx-1", "Bob")
	clk.Advance(DefaultPollInterval)
	if _, ok := s.Active(); ok {
		t.Fatal("session should be forgotten once the slot shows another occupant")
	}
}

func TestTransportFailureLeavesSnapshot(t *testing.T) {
	api := newFakeAPI("Anna", "ppx-1")
	s := startSync(t, api, clock.Fake(epoch), nil)
	before := s.Slots()

	api.setDown(true)
	_, err := s.Occupy(context.Background(), "ppx-1")
	if err == nil || portal.IsRejection(err) {
		t.Fatalf("err = %v, want transport failure", err)
	}
	snap := s.Slots()
	if len(snap.Data) != len(before.Data) || !snap.Data[0].Available {
		t.Fatalf("snapshot corrupted: %+v", snap.Data)
	}
}

func TestQueueAndBookingMutationsReload(t *testing.T) {
	api := newFakeAPI("Anna", "gpt-1")
	s := startSync(t, api, clock.Fake(epoch), nil)
	ctx := context.Background()

	if _, err := s.JoinQueue(ctx, "gpt-1"); !portal.IsRejection(err) {
		t.Fatalf("join free slot err = %v", err)
	}
	api.occupyAs("gpt-1", "Bob")
	pos, err := s.JoinQueue(ctx, "gpt-1")
	if err != nil || pos.Position != 1 {
		t.Fatalf("join = %+v, %v", pos, err)
	}
	if slot, _ := s.Slot("gpt-1"); slot.QueueSize != 1 {
		t.Fatalf("queue size = %d", slot.QueueSize)
	}
	if err := s.LeaveQueue(ctx, "gpt-1"); err != nil {
		t.Fatal(err)
	}
	if slot, _ := s.Slot("gpt-1"); slot.QueueSize != 0 {
		t.Fatalf("queue size after leave = %d", slot.QueueSize)
	}

	b, err := s.CreateBooking(ctx, models.BookingRequest{SlotID: "gpt-1", Date: "2026-02-15", StartTime: "10:00"})
	if err != nil {
		t.Fatal(err)
	}
	if got := s.Bookings().Data; len(got) != 1 || got[0].ID != b.ID {
		t.Fatalf("bookings = %+v", got)
	}
	if err := s.CancelBooking(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if got := s.Bookings().Data; len(got) != 0 {
		t.Fatalf("bookings after cancel = %+v", got)
	}
}

func TestToggleFavorite(t *testing.T) {
	api := newFakeAPI("Anna", "ppx-1", "nbp")
	s := startSync(t, api, clock.Fake(epoch), nil)
	ctx := context.Background()

	if _, err := s.ToggleFavorite(ctx, "nbp"); err != nil {
		t.Fatal(err)
	}
	if got := s.Profile().Data.Favorites; len(got) != 1 || got[0] != "nbp" {
		t.Fatalf("favorites = %v", got)
	}
	if _, err := s.ToggleFavorite(ctx, "nbp"); err != nil {
		t.Fatal(err)
	}
	if got := s.Profile().Data.Favorites; len(got) != 0 {
		t.Fatalf("favorites after second toggle = %v", got)
	}
}

func TestPushHintRefetches(t *testing.T) {
	api := newFakeAPI("Anna", "ppx-1")
	clk := clock.Fake(epoch)
	dialer := newFakeDialer(clk)
	s := startSync(t, api, clk, dialer)

	var conn *fakeConn
	select {
	case a := <-dialer.attempts:
		conn = a.conn
	case <-time.After(5 * time.Second):
		t.Fatal("push never dialed")
	}
	waitFor(t, "push connected", func() bool { return s.push.State() == stateConnected })

	api.occupyAs("ppx-1", "Bob")
	conn.in <- []byte(`{"event":"slot_occupied","slot_id":"ppx-1","occupant_name":"Bob"}`)
	waitFor(t, "hint refetch", func() bool {
		slot, _ := s.Slot("ppx-1")
		return !slot.Available
	})

	// Garbage and pong echoes change nothing.
	n := api.fetches()
	conn.in <- []byte("pong")
	conn.in <- []byte("{broken")
	time.Sleep(50 * time.Millisecond)
	if got := api.fetches(); got != n {
		t.Fatalf("ignored frames caused %d fetches", got-n)
	}
}

func TestChangesSignalsUpdates(t *testing.T) {
	api := newFakeAPI("Anna", "ppx-1")
	clk := clock.Fake(epoch)
	s := startSync(t, api, clk, nil)

	// Drain what Start produced.
	select {
	case <-s.Changes():
	default:
	}
	clk.Advance(DefaultPollInterval)
	select {
	case <-s.Changes():
	case <-time.After(time.Second):
		t.Fatal("no change notification after poll")
	}
}
