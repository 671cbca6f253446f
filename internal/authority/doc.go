// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authority implements credential authorities: upstream services that
// vouch that a claimed player name joined a server session.
//
// Two authorities are provided:
//   - Official forwards to a single pre-trusted upstream (by default the
//     official session server).
//   - Federated speaks the session-server "hasJoined" protocol against an
//     operator-supplied endpoint and caches profile properties.
//
// An Authority returns (nil, nil) when the player is not verified. A non-nil
// error carries the reason (unreachable, protocol error) for logging only;
// callers treat it exactly like "not verified".
package authority
