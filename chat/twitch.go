package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/neurobot/rooms"
)

// TokenFunc returns the current chat token for the bot account.
type TokenFunc func(ctx context.Context) (string, error)

// MarkFunc records key once and reports whether this call created it.
type MarkFunc func(ctx context.Context, key string) (bool, error)

// UserLookup resolves a Twitch login to a user id.
type UserLookup interface {
	GetUserID(ctx context.Context, login string) (string, error)
}

// TwitchDialer opens one IRC client per Twitch room.
type TwitchDialer struct {
	Username string
	Token    TokenFunc
	// Helix validates the broadcaster during the join handshake.
	Helix UserLookup
	// Mark remembers rooms the bot has joined before.
	Mark MarkFunc

	// IRCAddress overrides the server address; TLS applies only then.
	IRCAddress string
	TLS        bool
}

func (d *TwitchDialer) Platform() string { return rooms.Twitch }

// Dial connects and waits for the server welcome.
func (d *TwitchDialer) Dial(ctx context.Context, room rooms.RoomTarget) (Conn, error) {
	if d.Username == "" || d.Token == nil {
		return nil, errors.New("twitch bot credentials not configured")
	}
	token, err := d.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("twitch token: %w", err)
	}
	if token == "" {
		return nil, errors.New("twitch token empty")
	}
	client := twitch.NewClient(d.Username, "oauth:"+strings.TrimPrefix(token, "oauth:"))
	if d.IRCAddress != "" {
		client.IrcAddress = d.IRCAddress
		client.TLS = d.TLS
	}
	c := &twitchConn{
		client:  client,
		channel: room.Handle,
		self:    strings.ToLower(d.Username),
		done:    make(chan struct{}),
	}

	connected := make(chan struct{})
	var once sync.Once
	client.OnConnect(func() { once.Do(func() { close(connected) }) })
	client.OnPrivateMessage(c.onMessage)
	client.Join(room.Handle)

	errCh := make(chan error, 1)
	go func() {
		err := client.Connect()
		c.closed.Store(true)
		close(c.done)
		errCh <- err
	}()

	select {
	case <-connected:
		return c, nil
	case err := <-errCh:
		return nil, fmt.Errorf("twitch connect: %w", err)
	case <-ctx.Done():
		// No JOIN goes out if the welcome still arrives later.
		client.Depart(room.Handle)
		go abandonDial(client, connected, errCh)
		return nil, ctx.Err()
	}
}

// abandonDial shuts down a client whose dial was given up. Disconnect only
// works once the welcome has arrived, so wait for that or for Connect to end.
func abandonDial(client *twitch.Client, connected <-chan struct{}, errCh <-chan error) {
	if client.Disconnect() == nil {
		return
	}
	select {
	case <-connected:
		_ = client.Disconnect()
	case <-errCh:
	}
}

// Join checks the broadcaster exists and records the first join.
func (d *TwitchDialer) Join(ctx context.Context, room rooms.RoomTarget, _ Conn) (JoinResult, error) {
	if d.Helix == nil {
		return JoinFailed, errors.New("helix client not configured")
	}
	if _, err := d.Helix.GetUserID(ctx, room.Handle); err != nil {
		return JoinFailed, fmt.Errorf("lookup broadcaster: %w", err)
	}
	if d.Mark == nil {
		return JoinNew, nil
	}
	first, err := d.Mark(ctx, "twitch:joined:"+room.Handle)
	if err != nil {
		return JoinFailed, fmt.Errorf("record join: %w", err)
	}
	if first {
		return JoinNew, nil
	}
	return JoinAlready, nil
}

type twitchConn struct {
	client  *twitch.Client
	channel string
	self    string
	handler atomic.Pointer[func(Event)]
	closed  atomic.Bool
	done    chan struct{}
}

func (c *twitchConn) Listen(fn func(Event)) { c.handler.Store(&fn) }

func (c *twitchConn) onMessage(msg twitch.PrivateMessage) {
	fn := c.handler.Load()
	if fn == nil {
		return
	}
	(*fn)(twitchEvent(msg, c.self))
}

func twitchEvent(msg twitch.PrivateMessage, self string) Event {
	return Event{
		MsgID:       msg.ID,
		UserID:      msg.User.ID,
		Login:       msg.User.Name,
		DisplayName: msg.User.DisplayName,
		Text:        msg.Message,
		FromSelf:    self != "" && strings.EqualFold(msg.User.Name, self),
		Received:    msg.Time,
	}
}

func (c *twitchConn) Send(_ context.Context, text string) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	c.client.Say(c.channel, text)
	return nil
}

func (c *twitchConn) Disconnect(ctx context.Context) error {
	c.client.Depart(c.channel)
	if err := c.client.Disconnect(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops the connection; the IRC client has no separate hard close.
func (c *twitchConn) Close() error {
	if c.closed.Load() {
		return nil
	}
	if err := c.client.Disconnect(); err != nil && !errors.Is(err, twitch.ErrConnectionIsNotOpen) {
		return err
	}
	return nil
}

func (c *twitchConn) Done() <-chan struct{} { return c.done }
