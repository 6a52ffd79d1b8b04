package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
)

// PGStore keeps turns in chat_history and audit rows in chat_messages.
type PGStore struct {
	DB *sql.DB
}

// NewPGStore wraps db.
func NewPGStore(db *sql.DB) *PGStore { return &PGStore{DB: db} }

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Append inserts t. Empty user id and username are stored as NULL.
func (s *PGStore) Append(ctx context.Context, t Turn) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO chat_history(platform, room, role, user_id, username, message) VALUES($1,$2,$3,$4,$5,$6)`,
		t.Platform, t.Room, string(t.Role), nullable(t.UserID), nullable(t.Username), t.Message)
	if err != nil {
		return fmt.Errorf("append turn %s:%s: %w", t.Platform, t.Room, err)
	}
	return nil
}

// Recent reads newest-first and returns the window reversed to oldest-first.
func (s *PGStore) Recent(ctx context.Context, platform, room string, limit int) ([]Turn, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, platform, room, role, user_id, username, message, created_at
		 FROM chat_history WHERE platform=$1 AND room=$2 ORDER BY id DESC LIMIT $3`,
		platform, room, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("recent turns %s:%s: %w", platform, room, err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []Turn
	for rows.Next() {
		var (
			t        Turn
			role     string
			uid, usr sql.NullString
			created  sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.Platform, &t.Room, &role, &uid, &usr, &t.Message, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = Role(role)
		t.UserID = uid.String
		t.Username = usr.String
		t.CreatedAt = created.Time
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// Log upserts the audit row; a redelivered message refreshes the response.
func (s *PGStore) Log(ctx context.Context, e LogEntry) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO chat_messages(platform, msg_id, room, user_id, username, message, response, moderated)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT(platform, msg_id) DO UPDATE SET
		   response=EXCLUDED.response,
		   moderated=EXCLUDED.moderated,
		   updated_at=NOW()`,
		e.Platform, e.MsgID, e.Room, nullable(e.UserID), nullable(e.Username), e.Message, e.Response, e.Moderated)
	if err != nil {
		return fmt.Errorf("log message %s:%s: %w", e.Platform, e.MsgID, err)
	}
	return nil
}
