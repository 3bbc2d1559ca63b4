package slotsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"vditaxi/clock"
	"vditaxi/models"
)

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateClosing
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateDisconnected:
		return "disconnected"
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateClosing:
		return "closing"
	case stateClosed:
		return "closed"
	}
	return fmt.Sprintf("connState(%d)", int(s))
}

type pushEvent int

const (
	evStart pushEvent = iota
	evDialed
	evDialFailed
	evConnLost
	evRetryDue
	evHeartbeatDue
	evStop
	evClosed
)

func (e pushEvent) String() string {
	return [...]string{"start", "dialed", "dial_failed", "conn_lost", "retry_due", "heartbeat_due", "stop", "closed"}[e]
}

// transitions is the whole push lifecycle. Events missing for a state
// are ignored.
var transitions = map[connState]map[pushEvent]connState{
	stateDisconnected: {
		evStart:    stateConnecting,
		evRetryDue: stateConnecting,
		evStop:     stateClosing,
	},
	stateConnecting: {
		evDialed:     stateConnected,
		evDialFailed: stateDisconnected,
		evStop:       stateClosing,
	},
	stateConnected: {
		evHeartbeatDue: stateConnected,
		evConnLost:     stateDisconnected,
		evStop:         stateClosing,
	},
	stateClosing: {
		evClosed: stateClosed,
	},
}

// pingMessage is the liveness check; the server echoes pongMessage.
var (
	pingMessage = []byte("ping")
	pongMessage = []byte("pong")
)

type input struct {
	ev    pushEvent
	epoch uint64 // 0 for lifecycle events that are never stale
	conn  Conn
	err   error
}

// pusher keeps one push connection alive. A single loop goroutine owns
// the state, the connection's write side and both timers; dialer,
// reader and timer callbacks only post inputs to it.
type pusher struct {
	url       string
	header    http.Header
	dialer    Dialer
	clock     clock.Clock
	logger    *slog.Logger
	retry     time.Duration
	heartbeat time.Duration

	onEvent     func(models.SlotEvent)
	onReconnect func()
	// onTransition runs on the loop goroutine after every state change.
	onTransition func(from, to connState, ev pushEvent)

	inputs   chan input
	stop     chan struct{}
	done     chan struct{} // closed when teardown begins
	finished chan struct{}
	stopOnce sync.Once

	// loop-owned
	ctx            context.Context
	cancel         context.CancelFunc
	state          connState
	epoch          uint64
	conn           Conn
	cancelDial     context.CancelFunc
	retryTimer     *clock.Timer
	heartbeatTimer *clock.Timer
	connects       int

	mu      sync.Mutex
	current connState
}

func newPusher(url string, header http.Header, dialer Dialer, clk clock.Clock, logger *slog.Logger, retry, heartbeat time.Duration) *pusher {
	return &pusher{
		url:       url,
		header:    header,
		dialer:    dialer,
		clock:     clk,
		logger:    logger,
		retry:     retry,
		heartbeat: heartbeat,
		inputs:    make(chan input),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

// Start runs the loop until Close.
func (p *pusher) Start() {
	p.ctx, p.cancel = context.WithCancel(context.Background())
	go p.run()
}

// Close tears the connection down and waits for the loop to exit. It
// must not be called before Start.
func (p *pusher) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.finished
}

// State is the loop's current state.
func (p *pusher) State() connState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *pusher) run() {
	defer close(p.finished)
	p.apply(input{ev: evStart})
	for p.state != stateClosed {
		select {
		case in := <-p.inputs:
			if in.epoch != 0 && in.epoch != p.epoch {
				if in.conn != nil {
					in.conn.Close()
				}
				continue
			}
			p.apply(in)
		case <-p.stop:
			p.apply(input{ev: evStop})
		}
	}
}

// post hands an input to the loop, or drops it once teardown began.
func (p *pusher) post(in input) bool {
	select {
	case p.inputs <- in:
		return true
	case <-p.done:
		return false
	}
}

// apply runs in through the transition table. Entry actions may yield
// a follow-up event, which is applied before returning.
func (p *pusher) apply(in input) {
	for {
		next, ok := transitions[p.state][in.ev]
		if !ok {
			p.logger.Debug("push: event ignored", "state", p.state, "event", in.ev)
			if in.conn != nil {
				in.conn.Close()
			}
			return
		}
		prev := p.state
		p.state = next
		p.mu.Lock()
		p.current = next
		p.mu.Unlock()

		follow, more := p.enter(prev, in)
		if p.onTransition != nil {
			p.onTransition(prev, next, in.ev)
		}
		if !more {
			return
		}
		in = follow
	}
}

func (p *pusher) enter(prev connState, in input) (input, bool) {
	switch p.state {
	case stateConnecting:
		p.epoch++
		ctx, cancel := context.WithTimeout(p.ctx, handshakeTimeout)
		p.cancelDial = cancel
		go p.dial(ctx, p.epoch)

	case stateConnected:
		if prev == stateConnecting {
			p.cancelDial()
			p.conn = in.conn
			p.connects++
			p.logger.Info("push: connected", "url", p.url, "attempt", p.epoch)
			go p.read(p.epoch, p.conn)
			p.armHeartbeat()
			if p.connects > 1 && p.onReconnect != nil {
				p.onReconnect()
			}
			break
		}
		if err := p.conn.WriteMessage(pingMessage); err != nil {
			return input{ev: evConnLost, epoch: p.epoch, err: fmt.Errorf("heartbeat: %w", err)}, true
		}
		p.armHeartbeat()

	case stateDisconnected:
		p.teardownConn()
		p.logger.Warn("push: disconnected, retrying", "error", in.err, "retry_in", p.retry)
		epoch := p.epoch
		p.retryTimer = p.clock.AfterFunc(p.retry, func() {
			p.post(input{ev: evRetryDue, epoch: epoch})
		})

	case stateClosing:
		close(p.done)
		if p.retryTimer != nil {
			p.retryTimer.Stop()
		}
		p.teardownConn()
		p.cancel()
		return input{ev: evClosed}, true

	case stateClosed:
		p.logger.Debug("push: closed")
	}
	return input{}, false
}

func (p *pusher) armHeartbeat() {
	epoch := p.epoch
	p.heartbeatTimer = p.clock.AfterFunc(p.heartbeat, func() {
		p.post(input{ev: evHeartbeatDue, epoch: epoch})
	})
}

func (p *pusher) teardownConn() {
	if p.heartbeatTimer != nil {
		p.heartbeatTimer.Stop()
		p.heartbeatTimer = nil
	}
	if p.cancelDial != nil {
		p.cancelDial()
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}

func (p *pusher) dial(ctx context.Context, epoch uint64) {
	conn, err := p.dialer.Dial(ctx, p.url, p.header)
	if err != nil {
		p.post(input{ev: evDialFailed, epoch: epoch, err: err})
		return
	}
	if !p.post(input{ev: evDialed, epoch: epoch, conn: conn}) {
		conn.Close()
	}
}

func (p *pusher) read(epoch uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			p.post(input{ev: evConnLost, epoch: epoch, err: err})
			return
		}
		p.frame(data)
	}
}

// frame handles one inbound message. Each line is a JSON event; pong
// echoes, garbage and unknown events are dropped.
func (p *pusher) frame(data []byte) {
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || bytes.Equal(line, pongMessage) {
			continue
		}
		var ev models.SlotEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			p.logger.Debug("push: dropped malformed frame", "error", err)
			continue
		}
		if !ev.Invalidates() {
			p.logger.Debug("push: dropped unknown event", "event", ev.Event)
			continue
		}
		select {
		case <-p.done:
			return
		default:
		}
		if p.onEvent != nil {
			p.onEvent(ev)
		}
	}
}
