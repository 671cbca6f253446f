// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package identity binds player names to stable identifiers.
//
// Each name maps to exactly one Identity: a UUID fixed at first successful
// authentication and the label of the authority that last verified it (the
// lock). Store layers per-name serialization and the takeover rules on top
// of a Repository, which is implemented per storage backend in the postgres
// and sqlite subpackages.
package identity
