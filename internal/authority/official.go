// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package authority

import (
	"context"

	"github.com/samber/oops"
)

// Official delegates verification to a single pre-trusted upstream.
type Official struct {
	label    string
	upstream Upstream
}

// NewOfficial creates an Official authority.
func NewOfficial(label string, upstream Upstream) (*Official, error) {
	if label == "" {
		return nil, oops.Code("PIPELINE_CONFIG_INVALID").Errorf("authority label is required")
	}
	if upstream == nil {
		return nil, oops.Code("PIPELINE_CONFIG_INVALID").With("label", label).Wrap(ErrNoUpstream)
	}
	return &Official{label: label, upstream: upstream}, nil
}

// Label returns the authority label.
func (o *Official) Label() string {
	return o.label
}

// Authenticate forwards to the upstream. Upstream errors are returned for
// logging and always mean "not verified".
func (o *Official) Authenticate(ctx context.Context, name, serverID string) (*Profile, error) {
	profile, err := o.upstream.HasJoined(ctx, name, serverID)
	if err != nil {
		return nil, oops.With("authority", o.label).Wrap(err)
	}
	return profile, nil
}
