// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sqlite implements identity.Repository on an embedded SQLite
// database using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	// Register the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/holomush/multilogin/internal/identity"
)

// busyTimeoutMillis bounds how long a writer waits on a locked database.
const busyTimeoutMillis = 5000

// timeLayout is the on-disk timestamp encoding.
const timeLayout = time.RFC3339Nano

// DSN returns the driver data source name for path with WAL journaling and
// a busy timeout applied to every pooled connection.
func DSN(path string) string {
	return "file:" + path +
		"?_pragma=busy_timeout(" + strconv.Itoa(busyTimeoutMillis) + ")" +
		"&_pragma=journal_mode(WAL)"
}

// Repository implements identity.Repository using SQLite.
type Repository struct {
	db *sql.DB
}

var _ identity.Repository = (*Repository)(nil)

// Open opens (creating if needed) the database at path. Parent directories
// are created. The schema is managed by the migrator and must already exist.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, oops.Code("DB_CONNECT_FAILED").Errorf("sqlite database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "create database directory").
			With("path", path).
			Wrap(err)
	}

	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "open database").With("path", path).Wrap(err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping database").With("path", path).Wrap(err)
	}

	logger.Info("sqlite identity store opened", "path", path)
	return &Repository{db: db}, nil
}

// Close closes the database.
func (r *Repository) Close() error {
	if err := r.db.Close(); err != nil {
		return oops.With("operation", "close database").Wrap(err)
	}
	return nil
}

// Get retrieves the identity bound to name.
func (r *Repository) Get(ctx context.Context, name string) (*identity.Identity, error) {
	var (
		ident              identity.Identity
		id                 string
		createdAt, updated string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT name, uuid, auth_provider, created_at, updated_at
		FROM identities
		WHERE name = ?
	`, name).Scan(&ident.Name, &id, &ident.AuthorityLabel, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.With("name", name).Wrap(identity.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "select identity").With("name", name).Wrap(err)
	}

	if ident.UUID, err = uuid.Parse(id); err != nil {
		return nil, oops.With("operation", "parse stored uuid").With("name", name).With("uuid", id).Wrap(err)
	}
	if ident.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, oops.With("operation", "parse created_at").With("name", name).Wrap(err)
	}
	if ident.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, oops.With("operation", "parse updated_at").With("name", name).Wrap(err)
	}
	return &ident, nil
}

// Create inserts a new identity. A name conflict yields ErrAlreadyExists.
func (r *Repository) Create(ctx context.Context, ident *identity.Identity) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (name, uuid, auth_provider, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, ident.Name, ident.UUID.String(), ident.AuthorityLabel,
		ident.CreatedAt.UTC().Format(timeLayout), ident.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return oops.With("operation", "insert identity").With("name", ident.Name).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.With("operation", "insert identity").With("name", ident.Name).Wrap(err)
	}
	if n == 0 {
		return oops.With("name", ident.Name).Wrap(identity.ErrAlreadyExists)
	}
	return nil
}

// UpdateAuthority changes the lock label.
func (r *Repository) UpdateAuthority(ctx context.Context, name, label string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE identities SET auth_provider = ?, updated_at = ? WHERE name = ?`,
		label, at.UTC().Format(timeLayout), name)
	return checkAffected(res, err, "update authority", name)
}

// UpdateUUID replaces the identifier.
func (r *Repository) UpdateUUID(ctx context.Context, name string, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE identities SET uuid = ?, updated_at = ? WHERE name = ?`,
		id.String(), at.UTC().Format(timeLayout), name)
	return checkAffected(res, err, "update uuid", name)
}

// Delete removes the identity.
func (r *Repository) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE name = ?`, name)
	return checkAffected(res, err, "delete identity", name)
}

func checkAffected(res sql.Result, err error, operation, name string) error {
	if err != nil {
		return oops.With("operation", operation).With("name", name).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.With("operation", operation).With("name", name).Wrap(err)
	}
	if n == 0 {
		return oops.With("operation", operation).With("name", name).Wrap(identity.ErrNotFound)
	}
	return nil
}
