// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements identity.Repository using PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/multilogin/internal/identity"
)

// poolIface is the subset of pgxpool.Pool used by the repository.
type poolIface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements identity.Repository using PostgreSQL.
type Repository struct {
	pool poolIface
}

var _ identity.Repository = (*Repository)(nil)

// NewRepository creates a new Repository.
func NewRepository(pool poolIface) *Repository {
	return &Repository{pool: pool}
}

// Get retrieves the identity bound to name.
func (r *Repository) Get(ctx context.Context, name string) (*identity.Identity, error) {
	var (
		ident identity.Identity
		id    string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT name, uuid, auth_provider, created_at, updated_at
		FROM identities
		WHERE name = $1
	`, name).Scan(&ident.Name, &id, &ident.AuthorityLabel, &ident.CreatedAt, &ident.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("name", name).Wrap(identity.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "select identity").With("name", name).Wrap(err)
	}

	ident.UUID, err = uuid.Parse(id)
	if err != nil {
		return nil, oops.With("operation", "parse stored uuid").
			With("name", name).
			With("uuid", id).
			Wrap(err)
	}
	return &ident, nil
}

// Create inserts a new identity.
func (r *Repository) Create(ctx context.Context, ident *identity.Identity) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO identities (name, uuid, auth_provider, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ident.Name, ident.UUID.String(), ident.AuthorityLabel, ident.CreatedAt, ident.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return oops.With("name", ident.Name).Wrap(identity.ErrAlreadyExists)
	}
	if err != nil {
		return oops.With("operation", "insert identity").With("name", ident.Name).Wrap(err)
	}
	return nil
}

// UpdateAuthority changes the lock label.
func (r *Repository) UpdateAuthority(ctx context.Context, name, label string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE identities SET auth_provider = $2, updated_at = $3
		WHERE name = $1
	`, name, label, at)
	return r.checkUpdate(tag, err, "update authority", name)
}

// UpdateUUID replaces the identifier.
func (r *Repository) UpdateUUID(ctx context.Context, name string, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE identities SET uuid = $2, updated_at = $3
		WHERE name = $1
	`, name, id.String(), at)
	return r.checkUpdate(tag, err, "update uuid", name)
}

// Delete removes the identity.
func (r *Repository) Delete(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM identities WHERE name = $1`, name)
	return r.checkUpdate(tag, err, "delete identity", name)
}

func (r *Repository) checkUpdate(tag pgconn.CommandTag, err error, operation, name string) error {
	if err != nil {
		return oops.With("operation", operation).With("name", name).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.With("operation", operation).With("name", name).Wrap(identity.ErrNotFound)
	}
	return nil
}
