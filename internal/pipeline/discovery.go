// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pipeline

import (
	"context"

	"github.com/holomush/multilogin/internal/authority"
)

type raceResult struct {
	index   int
	profile *authority.Profile
}

// race queries every authority concurrently and returns the earliest success
// in configured order. It returns as soon as that winner is decided, which
// is when some authority has succeeded and all authorities before it have
// finished. On return the shared context is cancelled so losers abort their
// I/O, and the buffered channel lets them exit without a reader.
func (p *Pipeline) race(ctx context.Context, a *attempt) (*authority.Profile, authority.Authority) {
	n := len(p.authorities)
	if n == 0 {
		return nil, nil
	}

	dctx, cancel := context.WithTimeout(ctx, p.opts.DiscoveryTimeout)
	defer cancel()

	results := make(chan raceResult, n)
	for i, auth := range p.authorities {
		go func() {
			actx, acancel := context.WithTimeout(dctx, p.opts.PerAuthorityTimeout)
			defer acancel()
			results <- raceResult{index: i, profile: a.call(actx, auth)}
		}()
	}

	done := make([]bool, n)
	profiles := make([]*authority.Profile, n)
	for remaining := n; remaining > 0; remaining-- {
		select {
		case r := <-results:
			done[r.index] = true
			profiles[r.index] = r.profile
			if w := decided(done, profiles); w >= 0 {
				return profiles[w], p.authorities[w]
			}
		case <-dctx.Done():
			a.logger.InfoContext(ctx, "discovery deadline reached", "pending", remaining)
			return firstSuccess(profiles, p.authorities)
		}
	}
	return nil, nil
}

// decided returns the index of the winner if it is already determined, or
// -1 when an earlier authority is still outstanding or none succeeded yet.
func decided(done []bool, profiles []*authority.Profile) int {
	for i := range done {
		if !done[i] {
			return -1
		}
		if profiles[i] != nil {
			return i
		}
	}
	return -1
}

func firstSuccess(profiles []*authority.Profile, auths []authority.Authority) (*authority.Profile, authority.Authority) {
	for i, prof := range profiles {
		if prof != nil {
			return prof, auths[i]
		}
	}
	return nil, nil
}
