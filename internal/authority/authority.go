// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package authority

import (
	"context"
	"errors"
)

// Authority verifies that a player joined a server session.
type Authority interface {
	// Label identifies the authority. It is the lock key stored against
	// names this authority verified.
	Label() string

	// Authenticate returns the verified profile, or nil when the player is
	// not verified. Errors describe why verification could not happen and
	// are never fatal to the caller.
	Authenticate(ctx context.Context, name, serverID string) (*Profile, error)
}

// Upstream performs a single has-joined verification call.
type Upstream interface {
	HasJoined(ctx context.Context, name, serverID string) (*Profile, error)
}

// UpstreamFunc adapts a function to the Upstream interface.
type UpstreamFunc func(ctx context.Context, name, serverID string) (*Profile, error)

// HasJoined calls f.
func (f UpstreamFunc) HasJoined(ctx context.Context, name, serverID string) (*Profile, error) {
	return f(ctx, name, serverID)
}

// Error codes attached to authority failures.
const (
	CodeUnreachable   = "AUTHORITY_UNREACHABLE"
	CodeProtocolError = "AUTHORITY_PROTOCOL_ERROR"
)

// ErrNoUpstream is returned by NewOfficial when no upstream is configured.
var ErrNoUpstream = errors.New("upstream is required")
