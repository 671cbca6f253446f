// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pipeline_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/holomush/multilogin/internal/authority"
	"github.com/holomush/multilogin/internal/failure"
	"github.com/holomush/multilogin/internal/identity"
	"github.com/holomush/multilogin/internal/pipeline"
)

// mockAuthority is a testify mock for call-expectation tests.
type mockAuthority struct {
	mock.Mock
	label string
}

func newMockAuthority(label string) *mockAuthority {
	return &mockAuthority{label: label}
}

func (m *mockAuthority) Label() string { return m.label }

func (m *mockAuthority) Authenticate(ctx context.Context, name, serverID string) (*authority.Profile, error) {
	args := m.Called(ctx, name, serverID)
	var p *authority.Profile
	if v := args.Get(0); v != nil {
		p = v.(*authority.Profile)
	}
	return p, args.Error(1)
}

// funcAuthority runs fn and counts calls. Used for timing tests.
type funcAuthority struct {
	label     string
	fn        func(ctx context.Context, name string) (*authority.Profile, error)
	calls     atomic.Int32
	cancelled atomic.Bool
}

func (f *funcAuthority) Label() string { return f.label }

func (f *funcAuthority) Authenticate(ctx context.Context, name, _ string) (*authority.Profile, error) {
	f.calls.Add(1)
	p, err := f.fn(ctx, name)
	if ctx.Err() != nil {
		f.cancelled.Store(true)
	}
	return p, err
}

// after returns an authority that answers with profile after d, or with the
// context error if ctx ends first.
func after(label string, d time.Duration, profile *authority.Profile) *funcAuthority {
	return &funcAuthority{label: label, fn: func(ctx context.Context, _ string) (*authority.Profile, error) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return profile, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}}
}

func profileFor(name string) *authority.Profile {
	return &authority.Profile{
		Name: name,
		ID:   uuid.New(),
		Properties: []authority.Property{
			{Name: "textures", Value: "dGV4dHVyZXM=", Signature: "c2ln"},
		},
	}
}

// brokenRepo injects storage errors around a MemoryRepository.
type brokenRepo struct {
	*identity.MemoryRepository
	getErr    error
	createErr error
}

func (r *brokenRepo) Get(ctx context.Context, name string) (*identity.Identity, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.MemoryRepository.Get(ctx, name)
}

func (r *brokenRepo) Create(ctx context.Context, ident *identity.Identity) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.MemoryRepository.Create(ctx, ident)
}

type fixture struct {
	repo     *brokenRepo
	store    *identity.Store
	failures *failure.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := &brokenRepo{MemoryRepository: identity.NewMemoryRepository()}
	s, err := identity.NewStore(repo)
	require.NoError(t, err)
	return &fixture{repo: repo, store: s, failures: failure.NewRecorder()}
}

// fastOptions scales the production timeouts down for tests.
func fastOptions() pipeline.Options {
	return pipeline.Options{
		PerAuthorityTimeout: 100 * time.Millisecond,
		DiscoveryTimeout:    160 * time.Millisecond,
	}
}

func (f *fixture) pipeline(t *testing.T, opts pipeline.Options, auths ...authority.Authority) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(auths, f.store, f.failures, opts)
	require.NoError(t, err)
	return p
}

func (f *fixture) lock(t *testing.T, name string, id uuid.UUID, label string) {
	t.Helper()
	_, err := f.store.GetOrCreateIdentity(context.Background(), name, id, label)
	require.NoError(t, err)
}
