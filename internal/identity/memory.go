// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// MemoryRepository is a non-durable Repository for tests and local
// development.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]Identity
}

// Ensure MemoryRepository implements the interface.
var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]Identity)}
}

// Get returns a copy of the identity for name.
func (r *MemoryRepository) Get(_ context.Context, name string) (*Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[name]
	if !ok {
		return nil, oops.With("name", name).Wrap(ErrNotFound)
	}
	return &row, nil
}

// Create inserts ident.
func (r *MemoryRepository) Create(_ context.Context, ident *Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[ident.Name]; ok {
		return oops.With("name", ident.Name).Wrap(ErrAlreadyExists)
	}
	r.rows[ident.Name] = *ident
	return nil
}

// UpdateAuthority changes the lock label.
func (r *MemoryRepository) UpdateAuthority(_ context.Context, name, label string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[name]
	if !ok {
		return oops.With("name", name).Wrap(ErrNotFound)
	}
	row.AuthorityLabel = label
	row.UpdatedAt = at
	r.rows[name] = row
	return nil
}

// UpdateUUID replaces the identifier.
func (r *MemoryRepository) UpdateUUID(_ context.Context, name string, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[name]
	if !ok {
		return oops.With("name", name).Wrap(ErrNotFound)
	}
	row.UUID = id
	row.UpdatedAt = at
	r.rows[name] = row
	return nil
}

// Delete removes the identity.
func (r *MemoryRepository) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[name]; !ok {
		return oops.With("name", name).Wrap(ErrNotFound)
	}
	delete(r.rows, name)
	return nil
}

// Len returns the number of stored identities.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}
