package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/neurobot/rooms"
)

type fakeConn struct {
	mu            sync.Mutex
	log           []string // "send:<text>" and "listen" in call order
	handler       func(Event)
	disconnectErr error
	disconnected  bool
	forced        bool
	sendErr       error
	doneOnce      sync.Once
	done          chan struct{}
}

func newFakeConn() *fakeConn { return &fakeConn{done: make(chan struct{})} }

func (c *fakeConn) Listen(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = fn
	c.log = append(c.log, "listen")
}

func (c *fakeConn) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.log = append(c.log, "send:"+text)
	return nil
}

func (c *fakeConn) Disconnect(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disconnectErr != nil {
		return c.disconnectErr
	}
	c.disconnected = true
	c.end()
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forced = true
	c.end()
	return nil
}

func (c *fakeConn) end() { c.doneOnce.Do(func() { close(c.done) }) }

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) emit(ev Event) {
	c.mu.Lock()
	fn := c.handler
	c.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (c *fakeConn) entries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

type fakeDialer struct {
	platform string
	join     JoinResult
	joinErr  error

	mu       sync.Mutex
	conns    map[string]*fakeConn
	dials    map[string]int
	failDial map[string]error
	// prepare customizes a connection before it is returned.
	prepare func(*fakeConn)
}

func newFakeDialer(platform string) *fakeDialer {
	return &fakeDialer{
		platform: platform,
		join:     JoinNew,
		conns:    map[string]*fakeConn{},
		dials:    map[string]int{},
		failDial: map[string]error{},
	}
}

func (d *fakeDialer) Platform() string { return d.platform }

func (d *fakeDialer) Dial(_ context.Context, room rooms.RoomTarget) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[room.Handle]++
	if err := d.failDial[room.Handle]; err != nil {
		return nil, err
	}
	c := newFakeConn()
	if d.prepare != nil {
		d.prepare(c)
	}
	d.conns[room.Handle] = c
	return c, nil
}

func (d *fakeDialer) Join(context.Context, rooms.RoomTarget, Conn) (JoinResult, error) {
	return d.join, d.joinErr
}

func (d *fakeDialer) conn(handle string) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[handle]
}

func (d *fakeDialer) dialCount(handle string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[handle]
}

type fakeSource struct {
	mu      sync.Mutex
	targets []rooms.RoomTarget
	err     error
}

func (s *fakeSource) set(targets []rooms.RoomTarget, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets, s.err = targets, err
}

func (s *fakeSource) ListEnabled(context.Context) ([]rooms.RoomTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targets, s.err
}

func twitchRooms(handles ...string) []rooms.RoomTarget {
	out := make([]rooms.RoomTarget, 0, len(handles))
	for _, h := range handles {
		out = append(out, rooms.RoomTarget{Platform: rooms.Twitch, Handle: h})
	}
	return out
}

func liveRooms(m *Manager) []string {
	var out []string
	for _, info := range m.Sessions() {
		out = append(out, info.Platform+":"+info.Room)
	}
	sort.Strings(out)
	return out
}

func noopHandler(context.Context, *Session, Event) {}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

var errDial = errors.New("dial refused")
