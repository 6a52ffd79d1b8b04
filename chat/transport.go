package chat

import (
	"context"
	"errors"
	"time"

	"github.com/onnwee/neurobot/rooms"
)

var (
	// ErrUnknownPlatform is returned for a room whose platform has no dialer.
	ErrUnknownPlatform = errors.New("no transport for platform")
	// ErrConnClosed is returned when sending on a closed connection.
	ErrConnClosed = errors.New("connection closed")
)

// Event is one inbound chat message as the transport saw it. Identity fields
// are best-effort; see ResolveIdentity.
type Event struct {
	MsgID       string
	UserID      string
	Login       string
	DisplayName string
	Text        string
	// FromSelf is set when the transport knows the bot sent the message.
	FromSelf bool
	Received time.Time
}

// Conn is an open connection to one room.
type Conn interface {
	// Listen starts delivering inbound events to fn. It is called once.
	Listen(fn func(Event))
	Send(ctx context.Context, text string) error
	// Disconnect leaves the room gracefully.
	Disconnect(ctx context.Context) error
	// Close tears the connection down without any handshake.
	Close() error
	// Done is closed once the connection has ended for any reason.
	Done() <-chan struct{}
}

// JoinResult is the outcome of the one-time join handshake.
type JoinResult int

const (
	JoinFailed JoinResult = iota
	JoinNew
	JoinAlready
)

func (r JoinResult) String() string {
	switch r {
	case JoinNew:
		return "new"
	case JoinAlready:
		return "already"
	}
	return "failed"
}

// Dialer opens connections for one platform.
type Dialer interface {
	Platform() string
	// Dial connects to room. ctx bounds the dial only; the returned Conn
	// lives until it is closed.
	Dial(ctx context.Context, room rooms.RoomTarget) (Conn, error)
	// Join performs the best-effort handshake (follow, subscribe). Its
	// result only selects the announcement.
	Join(ctx context.Context, room rooms.RoomTarget, conn Conn) (JoinResult, error)
}

// Announcement returns the chat line posted after joining a room.
func Announcement(r JoinResult) string {
	switch r {
	case JoinNew:
		return "✅ Бот подключился и оформил подписку. Для нормальной работы нужны права модератора."
	case JoinAlready:
		return "ℹ️ Уже подписан на канал. Бот подключён к чату."
	}
	return "⚠️ Бот подключился к чату. Подписка не оформлена (нужны валидные токены)."
}
