// Package testutil holds helpers shared by package tests: a Postgres fixture
// and canned HTTP servers for the external APIs the bot talks to.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/neurobot/db"
)

// SetupTestDB opens TEST_PG_DSN with the pgx driver and brings the schema up
// to date. Tests sharing one database should scope their rows with UniqueRoom.
// It skips the test if TEST_PG_DSN is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := database.PingContext(ctx); err != nil {
		t.Fatalf("ping test database: %v", err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return database
}

// UniqueRoom returns a room handle no other test uses and removes every row
// recorded for it on platform when the test ends.
func UniqueRoom(t *testing.T, database *sql.DB, platform string) string {
	t.Helper()
	room := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	t.Cleanup(func() {
		ctx := context.Background()
		for _, q := range []string{
			`DELETE FROM chat_history WHERE platform=$1 AND room=$2`,
			`DELETE FROM chat_messages WHERE platform=$1 AND room=$2`,
			`DELETE FROM rooms WHERE platform=$1 AND handle=$2`,
		} {
			if _, err := database.ExecContext(ctx, q, platform, room); err != nil {
				t.Logf("cleanup %s:%s: %v", platform, room, err)
			}
		}
	})
	return room
}
