package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/onnwee/neurobot/rooms"
	"github.com/onnwee/neurobot/telemetry"
)

// State is a session's lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	}
	return "closed"
}

// Handler processes one inbound event for a session.
type Handler func(ctx context.Context, s *Session, ev Event)

// SessionOptions tune every session a Manager opens.
type SessionOptions struct {
	QueueSize    int
	SendRate     rate.Limit
	SendBurst    int
	Announce     bool
	DialTimeout  time.Duration
	CloseTimeout time.Duration
}

// DefaultSessionOptions returns the defaults used when a field is zero.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		QueueSize:    64,
		SendRate:     rate.Every(time.Second),
		SendBurst:    3,
		Announce:     true,
		DialTimeout:  30 * time.Second,
		CloseTimeout: 10 * time.Second,
	}
}

func (o SessionOptions) withDefaults() SessionOptions {
	d := DefaultSessionOptions()
	if o.QueueSize <= 0 {
		o.QueueSize = d.QueueSize
	}
	if o.SendRate <= 0 {
		o.SendRate = d.SendRate
	}
	if o.SendBurst <= 0 {
		o.SendBurst = d.SendBurst
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = d.DialTimeout
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = d.CloseTimeout
	}
	return o
}

// Session is the live connection and event wiring for one room.
type Session struct {
	Target   rooms.RoomTarget
	OpenedAt time.Time

	conn    Conn
	state   atomic.Int32
	queue   chan Event
	limiter *rate.Limiter
	logger  *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	worker    chan struct{}
	started   atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(target rooms.RoomTarget, opts SessionOptions) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Target:  target,
		queue:   make(chan Event, opts.QueueSize),
		limiter: rate.NewLimiter(opts.SendRate, opts.SendBurst),
		logger: slog.Default().With(
			slog.String("component", "chat_session"),
			slog.String("platform", target.Platform),
			slog.String("room", target.Handle),
		),
		ctx:    ctx,
		cancel: cancel,
		worker: make(chan struct{}),
		closed: make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// State reports the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) {
	for {
		cur := s.state.Load()
		// Closing and Closed are sticky.
		if State(cur) >= StateClosing && st < State(cur) {
			return
		}
		if s.state.CompareAndSwap(cur, int32(st)) {
			return
		}
	}
}

// Alive reports whether the session still has a working connection.
func (s *Session) Alive() bool { return s.State() < StateClosing }

// Send posts text to the room, waiting for the session's send budget.
func (s *Session) Send(ctx context.Context, text string) error {
	if s.conn == nil || !s.Alive() {
		return ErrConnClosed
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send pacing: %w", err)
	}
	return s.conn.Send(ctx, text)
}

// enqueue hands an event to the worker without blocking the transport.
func (s *Session) enqueue(ev Event) {
	if ev.Received.IsZero() {
		ev.Received = time.Now()
	}
	select {
	case <-s.ctx.Done():
		return
	default:
	}
	select {
	case s.queue <- ev:
	default:
		telemetry.Dropped(s.Target.Platform)
		s.logger.Warn("inbound queue full; dropping message")
	}
}

// start wires the connection to handler. Events are processed one at a time
// in arrival order; in-flight processing is not cancelled by Close.
func (s *Session) start(handler Handler) {
	s.started.Store(true)
	s.setState(StateActive)
	go func() {
		defer close(s.worker)
		for {
			select {
			case <-s.ctx.Done():
				return
			case ev := <-s.queue:
				handler(context.WithoutCancel(s.ctx), s, ev)
			}
		}
	}()
	go func() {
		select {
		case <-s.conn.Done():
			if s.Alive() {
				s.logger.Warn("connection ended unexpectedly")
				s.setState(StateClosed)
				s.cancel()
			}
		case <-s.ctx.Done():
		}
	}()
	s.conn.Listen(s.enqueue)
}

// Close disconnects gracefully, falling back to a forced close. Errors are
// logged and swallowed. Close waits for the worker to finish its current
// event, bounded by ctx.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		defer close(s.closed)
		s.setState(StateClosing)
		s.cancel()
		if s.conn != nil {
			if err := s.conn.Disconnect(ctx); err != nil {
				s.logger.Warn("graceful disconnect failed; forcing close", slog.Any("err", err))
				if err := s.conn.Close(); err != nil {
					s.logger.Warn("forced close failed", slog.Any("err", err))
				}
			}
		}
		if s.started.Load() {
			select {
			case <-s.worker:
			case <-ctx.Done():
				s.logger.Warn("session worker still busy after close")
			}
		}
		s.state.Store(int32(StateClosed))
		s.logger.Info("session closed")
	})
	<-s.closed
}

// Info is a snapshot of a session for status reporting.
type Info struct {
	Platform string    `json:"platform"`
	Room     string    `json:"room"`
	State    string    `json:"state"`
	OpenedAt time.Time `json:"opened_at"`
	Queued   int       `json:"queued"`
}

// Info returns a status snapshot.
func (s *Session) Info() Info {
	return Info{
		Platform: s.Target.Platform,
		Room:     s.Target.Handle,
		State:    s.State().String(),
		OpenedAt: s.OpenedAt,
		Queued:   len(s.queue),
	}
}
