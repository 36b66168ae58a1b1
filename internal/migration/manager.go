// Package migration wraps golang-migrate against the single Postgres
// schema this module owns (jobs, artifacts, batches, batch_members,
// comparisons). The teacher's migration manager coordinated Postgres and
// ClickHouse together; this module has no analytics database, so it keeps
// only the Postgres half, generalized to this schema.
package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"webscope/internal/config"
	"webscope/internal/infrastructure/database"
)

// Manager owns the Postgres migration runner and the connection behind it.
type Manager struct {
	config *config.Config
	logger *slog.Logger
	runner *migrate.Migrate
	db     *database.PostgresDB
	path   string
}

// NewManager connects to Postgres and builds the migration runner.
func NewManager(cfg *config.Config, logger *slog.Logger) (*Manager, error) {
	db, err := database.NewPostgresDB(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect for migrations: %w", err)
	}

	path := cfg.Database.MigrationsPath
	if path == "" {
		path = filepath.Join("internal", "migration", "migrations")
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{
		MigrationsTable: "schema_migrations",
		DatabaseName:    cfg.Database.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	runner, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", path), "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration runner: %w", err)
	}

	return &Manager{config: cfg, logger: logger, runner: runner, db: db, path: path}, nil
}

// Up runs all pending migrations, or steps forward if steps > 0.
func (m *Manager) Up(ctx context.Context, steps int) error {
	m.logger.Info("running migrations up", "steps", steps)
	var err error
	if steps == 0 {
		err = m.runner.Up()
	} else {
		err = m.runner.Steps(steps)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("no pending migrations")
		return nil
	}
	return err
}

// Down rolls back steps migrations (default 1 when steps == 0).
func (m *Manager) Down(ctx context.Context, steps int) error {
	if steps == 0 {
		steps = 1
	}
	m.logger.Info("rolling back migrations", "steps", steps)
	err := m.runner.Steps(-steps)
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Goto migrates to an explicit version.
func (m *Manager) Goto(version uint) error {
	err := m.runner.Migrate(version)
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Force sets the recorded version without running any migration, clearing
// a dirty state after a manual fix.
func (m *Manager) Force(version int) error {
	return m.runner.Force(version)
}

// Drop removes every object golang-migrate knows how to drop.
func (m *Manager) Drop() error {
	return m.runner.Drop()
}

// Status reports the runner's current version and dirty state.
func (m *Manager) Status(ctx context.Context) Status {
	version, dirty, err := m.runner.Version()
	status := Status{MigrationsPath: m.path, TotalMigrations: m.countMigrations()}

	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		status.State = "not_initialized"
	case err != nil:
		status.State = "error"
		status.Error = err.Error()
	case dirty:
		status.State = "dirty"
		status.CurrentVersion = version
		status.IsDirty = true
	default:
		status.State = "healthy"
		status.CurrentVersion = version
	}
	return status
}

// AutoMigrate runs pending migrations if the config enables it at startup.
func (m *Manager) AutoMigrate(ctx context.Context) error {
	if !m.config.Database.AutoMigrate {
		return errors.New("auto-migration is disabled")
	}
	return m.Up(ctx, 0)
}

// Shutdown closes the migration runner and its underlying connection.
func (m *Manager) Shutdown() error {
	var lastErr error
	if m.runner != nil {
		if sourceErr, dbErr := m.runner.Close(); sourceErr != nil || dbErr != nil {
			lastErr = errors.Join(sourceErr, dbErr)
		}
	}
	if m.db != nil {
		if err := m.db.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Create writes a timestamped pair of empty up/down migration files.
func (m *Manager) Create(name string) (up, down string, err error) {
	if err := os.MkdirAll(m.path, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create migrations directory: %w", err)
	}

	timestamp := time.Now().Format("20060102150405")
	up = filepath.Join(m.path, fmt.Sprintf("%s_%s.up.sql", timestamp, name))
	down = filepath.Join(m.path, fmt.Sprintf("%s_%s.down.sql", timestamp, name))

	if err := os.WriteFile(up, []byte("-- Migration: "+name+"\n\n"), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write up migration: %w", err)
	}
	if err := os.WriteFile(down, []byte("-- Rollback: "+name+"\n\n"), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write down migration: %w", err)
	}
	return up, down, nil
}

func (m *Manager) countMigrations() int {
	count := 0
	filepath.WalkDir(m.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".up.sql") {
			count++
		}
		return nil
	})
	return count
}
