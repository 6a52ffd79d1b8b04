package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// migrationDirs are tried in order after MIGRATIONS_DIR: the repo root, the db
// package itself, a sibling package under test, and the container image.
var migrationDirs = []string{"db/migrations", "migrations", "../db/migrations", "/app/db/migrations"}

func findMigrations() (string, error) {
	candidates := migrationDirs
	if p := os.Getenv("MIGRATIONS_DIR"); p != "" {
		candidates = append([]string{p}, candidates...)
	}
	for _, dir := range candidates {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", dir, err)
		}
		return "file://" + abs, nil
	}
	return "", fmt.Errorf("no migrations directory in %v", candidates)
}

// Migrator runs the versioned SQL files under a source URL against one database.
type Migrator struct {
	m   *migrate.Migrate
	log *slog.Logger
}

// NewMigrator binds db to the migrations at sourceURL ("file:///abs/path").
// An empty sourceURL locates db/migrations on disk.
func NewMigrator(db *sql.DB, sourceURL string) (*Migrator, error) {
	if sourceURL == "" {
		var err error
		if sourceURL, err = findMigrations(); err != nil {
			return nil, err
		}
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrate postgres driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}
	return &Migrator{m: m, log: slog.Default().With(slog.String("component", "db_migrate"))}, nil
}

// run executes fn, asking golang-migrate to stop after the current file if
// ctx is cancelled first.
func (mg *Migrator) run(ctx context.Context, fn func() error) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case mg.m.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()
	return fn()
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (mg *Migrator) Up(ctx context.Context) error {
	err := mg.run(ctx, mg.m.Up)
	if errors.Is(err, migrate.ErrNoChange) {
		mg.log.Info("database schema is up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return mg.checkClean("migrations applied")
}

// Down rolls back n migrations.
func (mg *Migrator) Down(ctx context.Context, n int) error {
	err := mg.run(ctx, func() error { return mg.m.Steps(-n) })
	if errors.Is(err, migrate.ErrNoChange) {
		mg.log.Info("no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("roll back migrations: %w", err)
	}
	return mg.checkClean("migrations rolled back")
}

// Version reports the applied version; 0 means nothing has been applied.
func (mg *Migrator) Version() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("migration version: %w", err)
	}
	return v, dirty, nil
}

func (mg *Migrator) checkClean(msg string) error {
	v, dirty, err := mg.Version()
	if err != nil {
		mg.log.Warn("could not determine migration version", slog.Any("err", err))
		return nil
	}
	if dirty {
		return fmt.Errorf("database is dirty at version %d; fix the failed migration by hand", v)
	}
	mg.log.Info(msg, slog.Uint64("version", uint64(v)))
	return nil
}

// Setup brings the schema up to date. Versioned migrations are preferred; when
// the migrations directory is not shipped the embedded Migrate statements are
// applied instead.
func Setup(ctx context.Context, db *sql.DB) error {
	src, err := findMigrations()
	if err != nil {
		slog.Warn("versioned migrations unavailable, applying embedded schema",
			slog.String("component", "db_migrate"), slog.Any("err", err))
		return Migrate(ctx, db)
	}
	return RunMigrationsFromPath(ctx, db, src)
}

// RunMigrations applies pending migrations from db/migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return RunMigrationsFromPath(ctx, db, "")
}

// RunMigrationsFromPath applies pending migrations from sourceURL.
func RunMigrationsFromPath(ctx context.Context, db *sql.DB, sourceURL string) error {
	mg, err := NewMigrator(db, sourceURL)
	if err != nil {
		return err
	}
	return mg.Up(ctx)
}

// MigrateDown rolls back the most recent migration. Development use only.
func MigrateDown(ctx context.Context, db *sql.DB) error {
	mg, err := NewMigrator(db, "")
	if err != nil {
		return err
	}
	return mg.Down(ctx, 1)
}

// GetMigrationVersion returns the current migration version and dirty state.
func GetMigrationVersion(db *sql.DB) (uint, bool, error) {
	mg, err := NewMigrator(db, "")
	if err != nil {
		return 0, false, err
	}
	return mg.Version()
}
