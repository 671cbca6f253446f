// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Store enforces the identity lock rules on top of a Repository.
//
// Every read-then-write sequence for a name runs inside a per-name critical
// section, and creation tolerates a concurrent insert by another process,
// so two first-time logins for one name always converge on one identifier.
type Store struct {
	repo   Repository
	logger *slog.Logger
	locks  *keyedMutex
	now    func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a Store over repo.
func NewStore(repo Repository, opts ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, oops.Code(CodeInvalid).Errorf("identity repository is required")
	}
	s := &Store{
		repo:   repo,
		logger: slog.Default(),
		locks:  newKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "identity")
	return s, nil
}

// Get returns the identity bound to name.
func (s *Store) Get(ctx context.Context, name string) (*Identity, error) {
	ident, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, s.wrap(err, "get identity", name)
	}
	return ident, nil
}

// GetLock returns the authority label name is locked to. found is false for
// a never-seen name.
func (s *Store) GetLock(ctx context.Context, name string) (label string, found bool, err error) {
	ident, err := s.repo.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.wrap(err, "get lock", name)
	}
	return ident.AuthorityLabel, true, nil
}

// GetUUID returns the identifier bound to name.
func (s *Store) GetUUID(ctx context.Context, name string) (id uuid.UUID, found bool, err error) {
	ident, err := s.repo.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, s.wrap(err, "get uuid", name)
	}
	return ident.UUID, true, nil
}

// GetOrCreateIdentity performs UUID takeover. For a new name it stores
// incoming under label and returns incoming. For a known name it relabels the
// lock to label and returns the stored identifier, discarding incoming.
func (s *Store) GetOrCreateIdentity(ctx context.Context, name string, incoming uuid.UUID, label string) (uuid.UUID, error) {
	if err := validate(name, label); err != nil {
		return uuid.Nil, err
	}

	unlock := s.locks.lock(name)
	defer unlock()

	existing, created, err := s.getOrCreate(ctx, name, incoming, label)
	if err != nil {
		return uuid.Nil, err
	}
	if created {
		s.logger.InfoContext(ctx, "identity created",
			"name", name, "uuid", incoming.String(), "authority", label)
		return incoming, nil
	}

	if err := s.relabel(ctx, existing, label); err != nil {
		return uuid.Nil, err
	}
	if existing.UUID != incoming {
		s.logger.InfoContext(ctx, "identifier taken over",
			"name", name,
			"incoming_uuid", incoming.String(),
			"stored_uuid", existing.UUID.String(),
			"authority", label)
	}
	return existing.UUID, nil
}

// Verify is the strict-match alternative to GetOrCreateIdentity. It creates
// the identity for a new name and returns true; for a known name it returns
// true only when incoming equals the stored identifier, relabelling the lock
// on a match.
func (s *Store) Verify(ctx context.Context, name string, incoming uuid.UUID, label string) (bool, error) {
	if err := validate(name, label); err != nil {
		return false, err
	}

	unlock := s.locks.lock(name)
	defer unlock()

	existing, created, err := s.getOrCreate(ctx, name, incoming, label)
	if err != nil {
		return false, err
	}
	if created {
		return true, nil
	}
	if existing.UUID != incoming {
		s.logger.WarnContext(ctx, "identifier mismatch",
			"name", name,
			"incoming_uuid", incoming.String(),
			"stored_uuid", existing.UUID.String(),
			"authority", label)
		return false, nil
	}
	if err := s.relabel(ctx, existing, label); err != nil {
		return false, err
	}
	return true, nil
}

// SetLock is the administrative lock override. An existing identity is
// relabelled and keeps its identifier. A missing identity is created only
// when id is supplied.
func (s *Store) SetLock(ctx context.Context, name string, id *uuid.UUID, label string) error {
	if err := validate(name, label); err != nil {
		return err
	}

	unlock := s.locks.lock(name)
	defer unlock()

	existing, err := s.repo.Get(ctx, name)
	switch {
	case err == nil:
		return s.relabel(ctx, existing, label)
	case !errors.Is(err, ErrNotFound):
		return s.wrap(err, "set lock", name)
	case id == nil:
		return oops.Code(CodeNotFound).
			With("name", name).
			Wrap(ErrNotFound)
	}

	ident, err := NewIdentity(name, *id, label, s.now())
	if err != nil {
		return err
	}
	if err := s.repo.Create(ctx, ident); err != nil {
		return s.wrap(err, "set lock", name)
	}
	s.logger.InfoContext(ctx, "identity created by override",
		"name", name, "uuid", id.String(), "authority", label)
	return nil
}

// OverrideUUID replaces the identifier bound to name. Administrative use only.
func (s *Store) OverrideUUID(ctx context.Context, name string, id uuid.UUID) error {
	if name == "" || id == uuid.Nil {
		return oops.Code(CodeInvalid).With("name", name).Errorf("name and identifier are required")
	}

	unlock := s.locks.lock(name)
	defer unlock()

	if err := s.repo.UpdateUUID(ctx, name, id, s.now()); err != nil {
		return s.wrap(err, "override uuid", name)
	}
	s.logger.WarnContext(ctx, "identifier overridden", "name", name, "uuid", id.String())
	return nil
}

// Delete removes the identity bound to name. Administrative use only.
func (s *Store) Delete(ctx context.Context, name string) error {
	unlock := s.locks.lock(name)
	defer unlock()

	if err := s.repo.Delete(ctx, name); err != nil {
		return s.wrap(err, "delete identity", name)
	}
	s.logger.InfoContext(ctx, "identity deleted", "name", name)
	return nil
}

// getOrCreate must be called with the name lock held. It returns the
// existing identity, or created=true after inserting a new one. An insert
// that loses a race with another process falls back to reading the winner.
func (s *Store) getOrCreate(ctx context.Context, name string, incoming uuid.UUID, label string) (*Identity, bool, error) {
	existing, err := s.repo.Get(ctx, name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, s.wrap(err, "get identity", name)
	}

	ident, err := NewIdentity(name, incoming, label, s.now())
	if err != nil {
		return nil, false, err
	}
	err = s.repo.Create(ctx, ident)
	if err == nil {
		return ident, true, nil
	}
	if !errors.Is(err, ErrAlreadyExists) {
		return nil, false, s.wrap(err, "create identity", name)
	}

	existing, err = s.repo.Get(ctx, name)
	if err != nil {
		return nil, false, s.wrap(err, "get identity after conflict", name)
	}
	return existing, false, nil
}

// relabel updates the lock label if it changed.
func (s *Store) relabel(ctx context.Context, existing *Identity, label string) error {
	if existing.AuthorityLabel == label {
		return nil
	}
	if err := s.repo.UpdateAuthority(ctx, existing.Name, label, s.now()); err != nil {
		return s.wrap(err, "update authority", existing.Name)
	}
	s.logger.InfoContext(ctx, "lock switched",
		"name", existing.Name,
		"from", existing.AuthorityLabel,
		"to", label)
	existing.AuthorityLabel = label
	return nil
}

func (s *Store) wrap(err error, operation, name string) error {
	code := CodeStorageFailed
	if errors.Is(err, ErrNotFound) {
		code = CodeNotFound
	}
	return oops.Code(code).
		With("operation", operation).
		With("name", name).
		Wrap(err)
}
