package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/onnwee/neurobot/rooms"
	"github.com/onnwee/neurobot/telemetry"
)

// RoomSource lists the rooms the bot should be in.
type RoomSource interface {
	ListEnabled(ctx context.Context) ([]rooms.RoomTarget, error)
}

// Manager owns the session registry. Only Reconcile adds or removes entries.
type Manager struct {
	source  RoomSource
	dialers map[string]Dialer
	handler Handler
	opts    SessionOptions
	logger  *slog.Logger

	reconcileMu sync.Mutex
	// rooms already reported as having no transport; guarded by reconcileMu
	warned map[rooms.RoomTarget]struct{}

	mu       sync.RWMutex
	sessions map[rooms.RoomTarget]*Session
}

// NewManager builds a manager. Dialers are keyed by their Platform().
func NewManager(source RoomSource, handler Handler, opts SessionOptions, dialers ...Dialer) *Manager {
	m := &Manager{
		source:   source,
		dialers:  make(map[string]Dialer, len(dialers)),
		handler:  handler,
		opts:     opts.withDefaults(),
		logger:   slog.Default().With(slog.String("component", "chat_manager")),
		sessions: make(map[rooms.RoomTarget]*Session),
		warned:   make(map[rooms.RoomTarget]struct{}),
	}
	for _, d := range dialers {
		if d != nil {
			m.dialers[d.Platform()] = d
		}
	}
	return m
}

// Platforms returns the platforms with a configured transport.
func (m *Manager) Platforms() []string {
	out := make([]string, 0, len(m.dialers))
	for p := range m.dialers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Run reconciles immediately and then every interval until ctx ends, after
// which all sessions are closed.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	m.logger.Info("reconcile loop started", slog.Duration("interval", interval), slog.Any("platforms", m.Platforms()))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := m.Tick(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("reconcile tick skipped", slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
			m.CloseAll(context.Background())
			return
		case <-ticker.C:
		}
	}
}

// Tick reads the desired rooms and reconciles against them. A read failure
// leaves every session untouched.
func (m *Manager) Tick(ctx context.Context) error {
	desired, err := m.source.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("list enabled rooms: %w", err)
	}
	m.Reconcile(ctx, desired)
	return nil
}

// Reconcile converges the registry to exactly the desired set (restricted to
// platforms with a dialer). Concurrent calls are serialized.
func (m *Manager) Reconcile(ctx context.Context, desired []rooms.RoomTarget) {
	m.reconcileMu.Lock()
	defer m.reconcileMu.Unlock()
	start := time.Now()
	defer func() {
		if telemetry.ReconcileDuration != nil {
			telemetry.ReconcileDuration.Observe(time.Since(start).Seconds())
		}
	}()

	want := make(map[rooms.RoomTarget]struct{}, len(desired))
	for _, t := range desired {
		if !t.Valid() {
			continue
		}
		if _, ok := m.dialers[t.Platform]; !ok {
			if _, seen := m.warned[t]; !seen {
				m.warned[t] = struct{}{}
				m.logger.Warn("no transport for platform; room will not be joined",
					slog.String("platform", t.Platform), slog.String("room", t.String()), slog.Any("err", ErrUnknownPlatform))
			}
			continue
		}
		want[t] = struct{}{}
	}

	var toClose []*Session
	var toOpen []rooms.RoomTarget
	m.mu.Lock()
	for t, s := range m.sessions {
		_, keep := want[t]
		if !keep || !s.Alive() {
			toClose = append(toClose, s)
			delete(m.sessions, t)
		}
	}
	for t := range want {
		if _, ok := m.sessions[t]; !ok {
			toOpen = append(toOpen, t)
		}
	}
	m.mu.Unlock()

	// Closes finish before opens so a pruned room is never connected twice.
	var wg sync.WaitGroup
	for _, s := range toClose {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.CloseTimeout)
			defer cancel()
			s.Close(cctx)
		}(s)
	}
	wg.Wait()

	for _, t := range toOpen {
		wg.Add(1)
		go func(t rooms.RoomTarget) {
			defer wg.Done()
			s, err := m.open(ctx, t)
			if err != nil {
				telemetry.OpenFailed(t.Platform)
				m.logger.Warn("open session failed", slog.String("room", t.String()), slog.Any("err", err))
				return
			}
			m.mu.Lock()
			m.sessions[t] = s
			m.mu.Unlock()
		}(t)
	}
	wg.Wait()

	m.mu.RLock()
	n := len(m.sessions)
	m.mu.RUnlock()
	telemetry.SetActiveSessions(n)
	if len(toOpen) > 0 || len(toClose) > 0 {
		m.logger.Info("reconciled", slog.Int("opened_attempts", len(toOpen)), slog.Int("closed", len(toClose)), slog.Int("active", n))
	}
}

// open runs connect, join handshake, announcement and listener wiring, in
// that order.
func (m *Manager) open(ctx context.Context, t rooms.RoomTarget) (*Session, error) {
	d := m.dialers[t.Platform]
	s := newSession(t, m.opts)

	dctx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	defer cancel()
	conn, err := d.Dial(dctx, t)
	if err != nil {
		s.setState(StateClosed)
		return nil, fmt.Errorf("dial %s: %w", t, err)
	}
	s.conn = conn
	s.OpenedAt = time.Now().UTC()

	res, err := d.Join(dctx, t, conn)
	if err != nil {
		s.logger.Warn("join handshake failed", slog.Any("err", err))
		res = JoinFailed
	}
	s.setState(StateJoined)
	if m.opts.Announce {
		if err := s.Send(dctx, Announcement(res)); err != nil {
			s.logger.Warn("join announcement failed", slog.Any("err", err))
		}
	}
	s.start(m.handler)
	s.logger.Info("session active", slog.String("join", res.String()))
	return s, nil
}

// Session returns the live session for t, if any.
func (m *Manager) Session(t rooms.RoomTarget) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[t]
	return s, ok
}

// Sessions returns status snapshots sorted by room.
func (m *Manager) Sessions() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Info())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].Room < out[j].Room
	})
	return out
}

// CloseAll tears down every session.
func (m *Manager) CloseAll(ctx context.Context) {
	m.Reconcile(ctx, nil)
}
