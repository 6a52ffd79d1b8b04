package rooms

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config is the per-room reply configuration read for every inbound message.
type Config struct {
	Target         RoomTarget
	Enabled        bool
	Mode           ReplyMode
	Prompt         string
	NegativePrompt string
	UpdatedAt      time.Time
}

// DefaultConfig is returned for rooms with no stored row: answer everything,
// no prompts.
func DefaultConfig(t RoomTarget) Config {
	return Config{Target: t, Enabled: true, Mode: ModeAll}
}

// Store reads and writes the rooms table.
type Store struct {
	DB *sql.DB
}

// NewStore wraps db.
func NewStore(db *sql.DB) *Store { return &Store{DB: db} }

// ListEnabled returns every enabled room.
func (s *Store) ListEnabled(ctx context.Context) ([]RoomTarget, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT platform, handle FROM rooms WHERE enabled ORDER BY platform, handle`)
	if err != nil {
		return nil, fmt.Errorf("list enabled rooms: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []RoomTarget
	for rows.Next() {
		var t RoomTarget
		if err := rows.Scan(&t.Platform, &t.Handle); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// List returns every stored room, enabled or not.
func (s *Store) List(ctx context.Context) ([]Config, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT platform, handle, enabled, reply_mode, prompt, negative_prompt, updated_at
		FROM rooms ORDER BY platform, handle`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []Config
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanConfig(sc scanner) (Config, error) {
	var (
		c       Config
		mode    string
		updated sql.NullTime
	)
	if err := sc.Scan(&c.Target.Platform, &c.Target.Handle, &c.Enabled, &mode, &c.Prompt, &c.NegativePrompt, &updated); err != nil {
		return Config{}, err
	}
	m, err := ParseReplyMode(mode)
	if err != nil {
		// A hand-edited row with a bad mode behaves like an unknown room.
		slog.Warn("invalid reply mode, using all", slog.String("room", c.Target.String()), slog.String("mode", mode))
		m = ModeAll
	}
	c.Mode = m
	c.UpdatedAt = updated.Time
	return c, nil
}

// Config reads the room's settings in one query. Unknown rooms get
// DefaultConfig.
func (s *Store) Config(ctx context.Context, t RoomTarget) (Config, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT platform, handle, enabled, reply_mode, prompt, negative_prompt, updated_at
		FROM rooms WHERE platform=$1 AND handle=$2`, t.Platform, t.Handle)
	c, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultConfig(t), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("room config %s: %w", t, err)
	}
	return c, nil
}

// Enable adds the room or re-enables it, keeping existing settings.
func (s *Store) Enable(ctx context.Context, t RoomTarget) error {
	return s.exec(ctx, "enable", `INSERT INTO rooms(platform, handle, enabled) VALUES($1,$2,TRUE)
		ON CONFLICT(platform, handle) DO UPDATE SET enabled=TRUE, updated_at=NOW()`, t.Platform, t.Handle)
}

// Disable keeps the row but removes the room from the desired set.
func (s *Store) Disable(ctx context.Context, t RoomTarget) error {
	return s.exec(ctx, "disable", `UPDATE rooms SET enabled=FALSE, updated_at=NOW() WHERE platform=$1 AND handle=$2`, t.Platform, t.Handle)
}

// SetReplyMode stores m for the room, creating a disabled row if needed.
func (s *Store) SetReplyMode(ctx context.Context, t RoomTarget, m ReplyMode) error {
	return s.upsertColumn(ctx, "reply_mode", t, m.String())
}

// SetPrompt stores the positive facts prompt.
func (s *Store) SetPrompt(ctx context.Context, t RoomTarget, prompt string) error {
	return s.upsertColumn(ctx, "prompt", t, prompt)
}

// SetNegativePrompt stores the forbidden-topics prompt.
func (s *Store) SetNegativePrompt(ctx context.Context, t RoomTarget, prompt string) error {
	return s.upsertColumn(ctx, "negative_prompt", t, prompt)
}

func (s *Store) upsertColumn(ctx context.Context, column string, t RoomTarget, value string) error {
	// column is one of a fixed set of identifiers chosen above.
	q := `INSERT INTO rooms(platform, handle, enabled, ` + column + `) VALUES($1,$2,FALSE,$3)
		ON CONFLICT(platform, handle) DO UPDATE SET ` + column + `=EXCLUDED.` + column + `, updated_at=NOW()`
	return s.exec(ctx, "set "+column, q, t.Platform, t.Handle, value)
}

func (s *Store) exec(ctx context.Context, op, q string, args ...any) error {
	if _, err := s.DB.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("rooms %s: %w", op, err)
	}
	return nil
}
