// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/samber/oops"
)

// Holder publishes the current Pipeline. Attempts already running keep the
// pipeline they started with when a reload swaps in a new one.
type Holder struct {
	current atomic.Pointer[Pipeline]
}

// NewHolder creates a Holder serving p.
func NewHolder(p *Pipeline) *Holder {
	h := &Holder{}
	h.current.Store(p)
	return h
}

// Load returns the current pipeline.
func (h *Holder) Load() *Pipeline {
	return h.current.Load()
}

// Replace installs p and returns the previous pipeline.
func (h *Holder) Replace(p *Pipeline) (*Pipeline, error) {
	if p == nil {
		return nil, oops.Code(CodeConfigInvalid).Errorf("pipeline is required")
	}
	return h.current.Swap(p), nil
}

// Authenticate runs the attempt on the current pipeline.
func (h *Holder) Authenticate(ctx context.Context, name, serverID string) (*Result, error) {
	p := h.current.Load()
	if p == nil {
		return nil, oops.Code("PIPELINE_UNAVAILABLE").Errorf("no pipeline configured")
	}
	return p.Authenticate(ctx, name, serverID)
}
