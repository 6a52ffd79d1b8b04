package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/neurobot/rooms"
	"github.com/onnwee/neurobot/youtubeapi"
)

// YouTubeAPI is the subset of the live chat client the transport uses.
type YouTubeAPI interface {
	MyChannelID(ctx context.Context) (string, error)
	ResolveChannel(ctx context.Context, handle string) (string, error)
	ActiveLiveChatID(ctx context.Context, channelID string) (string, error)
	Poll(ctx context.Context, chatID, pageToken string) (*youtubeapi.Page, error)
	Send(ctx context.Context, chatID, text string) error
	Subscribe(ctx context.Context, channelID string) (already bool, err error)
}

// maxPollErrors ends a YouTube connection after this many failed polls in a
// row; the next reconcile reopens it if the stream is still live.
const maxPollErrors = 5

var minPollInterval = youtubeapi.MinPollInterval

// YouTubeDialer opens polling connections to live chats.
type YouTubeDialer struct {
	Client func(ctx context.Context) (YouTubeAPI, error)
}

func (d *YouTubeDialer) Platform() string { return rooms.YouTube }

// Dial resolves the channel's live chat and reads past the current backlog,
// so only messages sent after joining are delivered.
func (d *YouTubeDialer) Dial(ctx context.Context, room rooms.RoomTarget) (Conn, error) {
	if d.Client == nil {
		return nil, errors.New("youtube client not configured")
	}
	api, err := d.Client(ctx)
	if err != nil {
		return nil, err
	}
	channelID, err := api.ResolveChannel(ctx, room.Handle)
	if err != nil {
		return nil, err
	}
	chatID, err := api.ActiveLiveChatID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	self, err := api.MyChannelID(ctx)
	if err != nil {
		slog.Warn("youtube: own channel unknown; echo detection off", slog.String("component", "chat_youtube"), slog.Any("err", err))
	}
	page, err := api.Poll(ctx, chatID, "")
	if err != nil {
		return nil, fmt.Errorf("initial poll: %w", err)
	}

	lctx, cancel := context.WithCancel(context.Background())
	return &youtubeConn{
		api:       api,
		channelID: channelID,
		chatID:    chatID,
		self:      self,
		pageToken: page.NextPageToken,
		interval:  page.PollInterval,
		ctx:       lctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		logger: slog.Default().With(
			slog.String("component", "chat_youtube"),
			slog.String("room", room.Handle),
		),
	}, nil
}

// Join subscribes the bot account to the channel.
func (d *YouTubeDialer) Join(ctx context.Context, _ rooms.RoomTarget, conn Conn) (JoinResult, error) {
	yc, ok := conn.(*youtubeConn)
	if !ok {
		return JoinFailed, errors.New("not a youtube connection")
	}
	already, err := yc.api.Subscribe(ctx, yc.channelID)
	if err != nil {
		return JoinFailed, err
	}
	if already {
		return JoinAlready, nil
	}
	return JoinNew, nil
}

type youtubeConn struct {
	api       YouTubeAPI
	channelID string
	chatID    string
	self      string
	pageToken string
	interval  time.Duration
	logger    *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	listened atomic.Bool
	doneOnce sync.Once
	done     chan struct{}
}

func (c *youtubeConn) Listen(fn func(Event)) {
	if !c.listened.CompareAndSwap(false, true) {
		return
	}
	go c.poll(fn)
}

func (c *youtubeConn) finish() { c.doneOnce.Do(func() { close(c.done) }) }

func (c *youtubeConn) poll(fn func(Event)) {
	defer c.finish()
	failures := 0
	for {
		wait := c.interval
		if wait < minPollInterval {
			wait = minPollInterval
		}
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(wait):
		}
		page, err := c.api.Poll(c.ctx, c.chatID, c.pageToken)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			failures++
			c.logger.Warn("live chat poll failed", slog.Int("failures", failures), slog.Any("err", err))
			if failures >= maxPollErrors {
				return
			}
			continue
		}
		failures = 0
		c.pageToken = page.NextPageToken
		c.interval = page.PollInterval
		for _, m := range page.Messages {
			fn(Event{
				MsgID:       m.ID,
				UserID:      m.AuthorID,
				DisplayName: m.AuthorName,
				Text:        m.Text,
				FromSelf:    c.self != "" && m.AuthorID == c.self,
				Received:    m.PublishedAt,
			})
		}
	}
}

func (c *youtubeConn) Send(ctx context.Context, text string) error {
	if c.ctx.Err() != nil {
		return ErrConnClosed
	}
	return c.api.Send(ctx, c.chatID, text)
}

func (c *youtubeConn) Disconnect(ctx context.Context) error {
	c.cancel()
	if !c.listened.Load() {
		c.finish()
		return nil
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *youtubeConn) Close() error {
	c.cancel()
	c.finish()
	return nil
}

func (c *youtubeConn) Done() <-chan struct{} { return c.done }
