// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store opens identity storage backends and manages their schema.
package store

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/multilogin/internal/identity"
	"github.com/holomush/multilogin/internal/identity/postgres"
	"github.com/holomush/multilogin/internal/identity/sqlite"
)

// Backend names a storage backend.
type Backend string

// Supported backends.
const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendMemory   Backend = "memory"
)

func (b Backend) migrationsDir() string {
	return "migrations/" + string(b)
}

// Config selects and locates a backend.
type Config struct {
	Type Backend
	// Path is the SQLite database file.
	Path string
	// URL is the PostgreSQL connection string.
	URL string
	// AutoMigrate applies pending migrations before the repository is returned.
	AutoMigrate bool
}

// MigrationURL returns the URL NewMigrator expects for cfg.
func (c Config) MigrationURL() (string, error) {
	switch c.Type {
	case BackendSQLite:
		if c.Path == "" {
			return "", oops.Code("CONFIG_INVALID").Errorf("database.path is required for sqlite")
		}
		return "sqlite://" + c.Path, nil
	case BackendPostgres:
		if c.URL == "" {
			return "", oops.Code("CONFIG_INVALID").Errorf("database.url is required for postgres")
		}
		return c.URL, nil
	case BackendMemory:
		return "", oops.Code("CONFIG_INVALID").Errorf("memory backend has no schema to migrate")
	}
	return "", oops.Code("CONFIG_INVALID").With("type", string(c.Type)).Errorf("unknown database type")
}

// Closer releases backend resources.
type Closer func() error

// Open connects to the backend named by cfg and returns its repository.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (identity.Repository, Closer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Type == BackendMemory {
		logger.Warn("using in-memory identity store; locks are lost on restart")
		return identity.NewMemoryRepository(), func() error { return nil }, nil
	}

	if cfg.AutoMigrate {
		if err := migrateUp(cfg, logger); err != nil {
			return nil, nil, err
		}
	}

	switch cfg.Type {
	case BackendSQLite:
		repo, err := sqlite.Open(ctx, cfg.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	case BackendPostgres:
		pool, err := postgres.Open(ctx, cfg.URL, logger)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewRepository(pool), func() error { pool.Close(); return nil }, nil
	}
	return nil, nil, oops.Code("CONFIG_INVALID").With("type", string(cfg.Type)).Errorf("unknown database type")
}

func migrateUp(cfg Config, logger *slog.Logger) error {
	migrationURL, err := cfg.MigrationURL()
	if err != nil {
		return err
	}
	migrator, err := NewMigrator(migrationURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	pending, err := migrator.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	if err := migrator.Up(); err != nil {
		return err
	}
	logger.Info("applied migrations", "backend", string(cfg.Type), "count", len(pending))
	return nil
}
