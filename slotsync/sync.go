// Package slotsync keeps a client's view of the portal's slots current.
//
// Three channels feed the same cache: a poll every PollInterval, push
// hints from the portal's WebSocket, and a reload after every mutation
// made through the Synchronizer. Each one replaces the whole snapshot;
// nothing is patched locally.
package slotsync

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"vditaxi/clock"
	"vditaxi/models"
	"vditaxi/portal"
)

// API is the part of the portal client the synchronizer uses.
// *portal.Client implements it.
type API interface {
	Slots(ctx context.Context) ([]models.Slot, error)
	Bookings(ctx context.Context) ([]models.Booking, error)
	Profile(ctx context.Context) (models.Profile, error)

	Occupy(ctx context.Context, slotID string) (models.OccupyResult, error)
	Release(ctx context.Context, slotID string) (models.ReleaseResult, error)
	JoinQueue(ctx context.Context, slotID string) (models.QueuePosition, error)
	LeaveQueue(ctx context.Context, slotID string) error
	CreateBooking(ctx context.Context, req models.BookingRequest) (models.Booking, error)
	CancelBooking(ctx context.Context, id int64) error
	SetFavorites(ctx context.Context, slotIDs []string) (models.Profile, error)

	WebSocketURL() string
	Token() string
	ClientID() string
}

var _ API = (*portal.Client)(nil)

const (
	DefaultPollInterval      = 30 * time.Second
	DefaultReconnectDelay    = 3 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
)

type Config struct {
	API API

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger

	PollInterval      time.Duration
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration

	// Dialer defaults to a WebSocketDialer.
	Dialer Dialer

	// DisablePush leaves polling and mutation reloads as the only
	// refresh channels.
	DisablePush bool
}

// Synchronizer owns the slot, booking and profile caches of one client.
// Create it with New, call Start once, and Close when done.
type Synchronizer struct {
	api    API
	clock  clock.Clock
	logger *slog.Logger
	poll   time.Duration

	slots    *query[[]models.Slot]
	bookings *query[[]models.Booking]
	profile  *query[models.Profile]
	push     *pusher

	changes chan struct{}
	async   sync.WaitGroup

	mu        sync.Mutex
	started   bool
	pushing   bool
	closed    bool
	pollTimer *clock.Timer
	active    *activeSession
}

func New(cfg Config) (*Synchronizer, error) {
	if cfg.API == nil {
		return nil, errors.New("slotsync: API is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WebSocketDialer{ReadTimeout: 2*cfg.HeartbeatInterval + handshakeTimeout}
	}

	s := &Synchronizer{
		api:     cfg.API,
		clock:   cfg.Clock,
		logger:  cfg.Logger.With("component", "slotsync"),
		poll:    cfg.PollInterval,
		changes: make(chan struct{}, 1),
	}
	s.slots = newQuery("slots", s.clock, cfg.API.Slots)
	s.slots.onApply = s.reconcile
	s.slots.onChange = s.notify
	s.bookings = newQuery("bookings", s.clock, cfg.API.Bookings)
	s.bookings.onChange = s.notify
	s.profile = newQuery("profile", s.clock, cfg.API.Profile)
	s.profile.onChange = s.notify

	if !cfg.DisablePush {
		header := http.Header{}
		header.Set(portal.ClientIDHeader, cfg.API.ClientID())
		if tok := cfg.API.Token(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
		s.push = newPusher(cfg.API.WebSocketURL(), header, cfg.Dialer, s.clock, s.logger,
			cfg.ReconnectDelay, cfg.HeartbeatInterval)
		s.push.onEvent = s.hint
		s.push.onReconnect = func() { goRefresh(s, s.slots) }
	}
	return s, nil
}

// Start loads every collection once, then starts polling and the push
// connection. Load failures do not stop it: they are logged and kept
// in each snapshot's Err until a later fetch succeeds.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.started:
		s.mu.Unlock()
		return errors.New("slotsync: already started")
	}
	s.started = true
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return initialLoad(gctx, s, s.profile) })
	g.Go(func() error { return initialLoad(gctx, s, s.bookings) })
	if err := g.Wait(); err != nil {
		return err
	}
	// Slots last, so the profile name is known when the own session is
	// reconciled.
	if err := initialLoad(ctx, s, s.slots); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.pollTimer = s.clock.AfterFunc(s.poll, s.pollTick)
	if s.push != nil {
		s.push.Start()
		s.pushing = true
	}
	s.logger.Info("slotsync started", "poll_interval", s.poll, "push", s.push != nil)
	return nil
}

// initialLoad swallows fetch errors but not cancellation of ctx.
func initialLoad[T any](ctx context.Context, s *Synchronizer, q *query[T]) error {
	_, err := q.Refresh(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || errors.Is(err, ErrClosed) {
		return err
	}
	s.logger.Warn("initial load failed", "query", q.name, "error", err)
	return nil
}

// Close stops polling and the push connection and waits for fetches in
// flight, whose results are discarded. No fetch starts after Close
// returns. The Changes channel is closed.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pushing := s.pushing
	if s.pollTimer != nil {
		s.pollTimer.Stop()
	}
	s.mu.Unlock()

	if pushing {
		s.push.Close()
	}
	s.slots.Close()
	s.bookings.Close()
	s.profile.Close()
	s.async.Wait()

	s.mu.Lock()
	close(s.changes)
	s.mu.Unlock()
	s.logger.Info("slotsync closed")
}

func (s *Synchronizer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Changes receives a value whenever a snapshot or the loading flag
// changes. Bursts are coalesced; read the snapshots after each receive.
func (s *Synchronizer) Changes() <-chan struct{} { return s.changes }

func (s *Synchronizer) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func (s *Synchronizer) pollTick() {
	if s.isClosed() {
		return
	}
	if _, err := s.slots.Refresh(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Warn("poll failed, keeping last snapshot", "error", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.pollTimer = s.clock.AfterFunc(s.poll, s.pollTick)
	}
}

// hint handles a push event: the slot list is marked stale and
// refreshed, joining a fetch already in flight.
func (s *Synchronizer) hint(ev models.SlotEvent) {
	s.logger.Debug("push hint", "event", ev.Event, "slot", ev.SlotID)
	s.slots.MarkStale()
	goRefresh(s, s.slots)
}

// goRefresh refreshes q in the background. Errors are logged only.
func goRefresh[T any](s *Synchronizer, q *query[T]) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.async.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.async.Done()
		if _, err := q.Refresh(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
			s.logger.Warn("background refresh failed", "query", q.name, "error", err)
		}
	}()
}

// Refresh refetches the slot list, joining a fetch already in flight.
func (s *Synchronizer) Refresh(ctx context.Context) ([]models.Slot, error) {
	return s.slots.Refresh(ctx)
}

func (s *Synchronizer) Slots() Snapshot[[]models.Slot] { return s.slots.Snapshot() }

func (s *Synchronizer) Bookings() Snapshot[[]models.Booking] { return s.bookings.Snapshot() }

func (s *Synchronizer) Profile() Snapshot[models.Profile] { return s.profile.Snapshot() }

// Slot looks one slot up in the current snapshot.
func (s *Synchronizer) Slot(id string) (models.Slot, bool) {
	return models.FindSlot(s.slots.Snapshot().Data, id)
}
