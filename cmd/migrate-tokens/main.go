// Command migrate-tokens encrypts OAuth tokens stored in plaintext.
//
// Rows with encryption_version=0 are rewritten as version 1 (AES-256-GCM)
// using ENCRYPTION_KEY, so the bot can read them after encryption is turned on.
//
// Usage:
//
//	migrate-tokens [--dry-run] [--provider twitch|youtube] [--status]
//
// Environment Variables:
//
//	DB_DSN: Database connection string (required)
//	ENCRYPTION_KEY: Base64-encoded 32-byte encryption key (required)
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/onnwee/neurobot/crypto"
	"github.com/onnwee/neurobot/db"
)

// tokenRow is a plaintext oauth_tokens row.
type tokenRow struct {
	Provider     string
	AccessToken  string
	RefreshToken string
}

func main() {
	dryRun := flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	provider := flag.String("provider", "", "Migrate one provider only (default: all)")
	status := flag.Bool("status", false, "Report encryption status after migrating")
	flag.Parse()

	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		slog.Error("DB_DSN environment variable is required")
		os.Exit(1)
	}
	key := os.Getenv("ENCRYPTION_KEY")
	if key == "" {
		slog.Error("ENCRYPTION_KEY environment variable is required for migration")
		os.Exit(1)
	}
	encryptor, err := crypto.NewAESEncryptor(key)
	if err != nil {
		slog.Error("failed to initialize encryptor", slog.Any("err", err))
		os.Exit(1)
	}

	database, err := db.Connect(dsn)
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() { _ = database.Close() }()

	ctx := context.Background()
	if err := database.PingContext(ctx); err != nil {
		slog.Error("failed to ping database", slog.Any("err", err))
		os.Exit(1)
	}

	if err := migrateTokens(ctx, database, encryptor, *dryRun, *provider); err != nil {
		slog.Error("migration failed", slog.Any("err", err))
		os.Exit(1)
	}
	if *status {
		if err := reportStatus(ctx, database); err != nil {
			slog.Error("status report failed", slog.Any("err", err))
			os.Exit(1)
		}
	}
	slog.Info("migration completed successfully")
}

// migrateTokens encrypts every plaintext row, optionally limited to one provider.
func migrateTokens(ctx context.Context, database *sql.DB, enc crypto.Encryptor, dryRun bool, provider string) error {
	query := `SELECT provider, COALESCE(access_token, ''), COALESCE(refresh_token, '')
		FROM oauth_tokens WHERE COALESCE(encryption_version, 0) = 0`
	var args []any
	if provider != "" {
		query += " AND provider = $1"
		args = append(args, provider)
	}
	query += " ORDER BY provider"

	rows, err := database.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query plaintext tokens: %w", err)
	}
	var tokens []tokenRow
	for rows.Next() {
		var tr tokenRow
		if err := rows.Scan(&tr.Provider, &tr.AccessToken, &tr.RefreshToken); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan token row: %w", err)
		}
		tokens = append(tokens, tr)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close token rows: %w", err)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating token rows: %w", err)
	}

	if len(tokens) == 0 {
		slog.Info("no plaintext tokens found to migrate")
		return nil
	}
	slog.Info("found plaintext tokens to migrate", slog.Int("count", len(tokens)), slog.Bool("dry_run", dryRun))

	failed := 0
	for _, tr := range tokens {
		logger := slog.With(slog.String("provider", tr.Provider))
		if dryRun {
			logger.Info("would migrate token (dry-run)")
			continue
		}
		if err := migrateToken(ctx, database, enc, tr); err != nil {
			logger.Error("failed to migrate token", slog.Any("err", err))
			failed++
			continue
		}
		logger.Info("migrated token")
	}
	if failed > 0 {
		return fmt.Errorf("migration completed with %d errors", failed)
	}
	return nil
}

// migrateToken encrypts one row in place. The version guard keeps a
// concurrent writer's freshly encrypted row from being double-encrypted.
func migrateToken(ctx context.Context, database *sql.DB, enc crypto.Encryptor, tr tokenRow) error {
	var access, refresh string
	var err error
	if tr.AccessToken != "" {
		if access, err = crypto.EncryptString(enc, tr.AccessToken); err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
	}
	if tr.RefreshToken != "" {
		if refresh, err = crypto.EncryptString(enc, tr.RefreshToken); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	res, err := database.ExecContext(ctx, `
		UPDATE oauth_tokens
		SET access_token = $1, refresh_token = $2, encryption_version = 1, encryption_key_id = $3, updated_at = NOW()
		WHERE provider = $4 AND COALESCE(encryption_version, 0) = 0`,
		access, refresh, enc.KeyID(), tr.Provider)
	if err != nil {
		return fmt.Errorf("update token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("expected 1 row updated, got %d (token may have been modified concurrently)", n)
	}
	return nil
}

// reportStatus logs how many rows sit at each encryption version.
func reportStatus(ctx context.Context, database *sql.DB) error {
	rows, err := database.QueryContext(ctx, `
		SELECT COALESCE(encryption_version, 0), COUNT(*)
		FROM oauth_tokens GROUP BY 1 ORDER BY 1`)
	if err != nil {
		return fmt.Errorf("query status: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var version, count int
		if err := rows.Scan(&version, &count); err != nil {
			return fmt.Errorf("scan status row: %w", err)
		}
		desc := "plaintext"
		if version == 1 {
			desc = "encrypted (AES-256-GCM)"
		} else if version != 0 {
			desc = fmt.Sprintf("unknown version %d", version)
		}
		slog.Info("token encryption status", slog.Int("encryption_version", version), slog.String("description", desc), slog.Int("count", count))
	}
	return rows.Err()
}
