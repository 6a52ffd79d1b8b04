// Package memory keeps the per-room conversation log the composer reads back
// as context, plus the audit trail pairing each inbound message with the
// reply it produced.
package memory

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/onnwee/neurobot/classify"
)

// Role says who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	// WindowSize is how many recent turns the composer reads.
	WindowSize = 20
	// MaxLimit caps any single Recent read.
	MaxLimit = 50
	// LineMax is the per-turn character budget when rendering.
	LineMax = 180
	// BlockMax is the character budget of a rendered window.
	BlockMax = 1200
)

// Turn is one logged utterance in a room.
type Turn struct {
	ID        int64     `json:"id"`
	Platform  string    `json:"platform"`
	Room      string    `json:"room"`
	Role      Role      `json:"role"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// LogEntry pairs an inbound message with the reply sent for it.
type LogEntry struct {
	Platform  string
	MsgID     string
	Room      string
	UserID    string
	Username  string
	Message   string
	Response  string
	Moderated bool
}

// Store appends turns and reads back recent windows.
type Store interface {
	Append(ctx context.Context, t Turn) error
	// Recent returns up to limit most recent turns, oldest first.
	Recent(ctx context.Context, platform, room string, limit int) ([]Turn, error)
}

// AuditLog records LogEntry rows idempotently by (platform, msg id).
type AuditLog interface {
	Log(ctx context.Context, e LogEntry) error
}

// ClampLimit forces limit into 1..MaxLimit.
func ClampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func speaker(t Turn) string {
	if t.Role == RoleAssistant {
		return "Ассистент"
	}
	if t.Username != "" {
		return t.Username
	}
	return "Пользователь"
}

// Render turns an oldest-first window into "speaker: text" lines. Message
// text is collapsed to single spaces and cut to LineMax characters. Turns with
// no text are left out. When the block exceeds BlockMax the oldest lines are
// dropped.
func Render(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		text := classify.CollapseSpaces(t.Message)
		if text == "" {
			continue
		}
		lines = append(lines, speaker(t)+": "+truncateRunes(text, LineMax))
	}
	size := 0
	for i, l := range lines {
		if i > 0 {
			size++
		}
		size += utf8.RuneCountInString(l)
	}
	for len(lines) > 1 && size > BlockMax {
		size -= utf8.RuneCountInString(lines[0]) + 1
		lines = lines[1:]
	}
	out := strings.Join(lines, "\n")
	if utf8.RuneCountInString(out) > BlockMax {
		r := []rune(out)
		out = string(r[len(r)-BlockMax:])
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
