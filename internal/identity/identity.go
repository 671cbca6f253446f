// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Sentinel errors returned by Repository implementations.
var (
	// ErrNotFound is returned when no identity exists for a name.
	ErrNotFound = errors.New("identity not found")

	// ErrAlreadyExists is returned by Create when the name is taken.
	ErrAlreadyExists = errors.New("identity already exists")
)

// Error codes attached to store failures.
const (
	CodeStorageFailed = "IDENTITY_STORAGE_FAILED"
	CodeNotFound      = "IDENTITY_NOT_FOUND"
	CodeInvalid       = "IDENTITY_INVALID"
)

// Identity is the persisted binding of a name to an identifier.
type Identity struct {
	Name           string
	UUID           uuid.UUID
	AuthorityLabel string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewIdentity creates a validated Identity stamped with now.
func NewIdentity(name string, id uuid.UUID, label string, now time.Time) (*Identity, error) {
	if err := validate(name, label); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		return nil, oops.Code(CodeInvalid).With("name", name).Errorf("identifier cannot be nil")
	}
	return &Identity{
		Name:           name,
		UUID:           id,
		AuthorityLabel: label,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func validate(name, label string) error {
	if name == "" {
		return oops.Code(CodeInvalid).Errorf("name cannot be empty")
	}
	if label == "" {
		return oops.Code(CodeInvalid).With("name", name).Errorf("authority label cannot be empty")
	}
	return nil
}

// Repository is the storage adapter for identities. Names are compared
// case-sensitively.
type Repository interface {
	// Get returns the identity for name or ErrNotFound.
	Get(ctx context.Context, name string) (*Identity, error)

	// Create inserts a new identity. Returns ErrAlreadyExists if the name
	// is already bound.
	Create(ctx context.Context, ident *Identity) error

	// UpdateAuthority changes the lock label. Returns ErrNotFound if no row
	// exists.
	UpdateAuthority(ctx context.Context, name, label string, at time.Time) error

	// UpdateUUID replaces the identifier. Administrative use only.
	UpdateUUID(ctx context.Context, name string, id uuid.UUID, at time.Time) error

	// Delete removes the identity. Returns ErrNotFound if no row exists.
	Delete(ctx context.Context, name string) error
}
