// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package pipeline decides, for one join attempt, which authority vouches for
// a name and which identifier the name is bound to.
//
// A name that has logged in before is locked to the authority that verified
// it and only that authority is consulted. A new name is offered to every
// enabled authority at once, and the earliest success in configured order
// wins. Rejections are deferred: Authenticate returns a placeholder profile
// and records the reason for the host to collect when it disconnects the
// player.
package pipeline
