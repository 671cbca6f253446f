// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package authority

import (
	"crypto/md5" //nolint:gosec // offline identifiers are defined as MD5 name-based UUIDs
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Property is a signed profile attribute such as skin textures.
// Value and Signature are opaque and forwarded unchanged.
type Property struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Signature string `json:"signature,omitempty"`
}

// Profile is a verified player profile.
type Profile struct {
	Name       string
	ID         uuid.UUID
	Properties []Property
}

// profileJSON is the session-server wire form of a Profile.
type profileJSON struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Properties []Property `json:"properties"`
}

// WithID returns a copy of p carrying id. Properties are copied.
func (p *Profile) WithID(id uuid.UUID) *Profile {
	return &Profile{
		Name:       p.Name,
		ID:         id,
		Properties: CloneProperties(p.Properties),
	}
}

// MarshalJSON encodes the profile in session-server form with a
// hyphenless id.
func (p Profile) MarshalJSON() ([]byte, error) {
	props := p.Properties
	if props == nil {
		props = []Property{}
	}
	//nolint:wrapcheck // plain struct encoding
	return json.Marshal(profileJSON{
		ID:         strings.ReplaceAll(p.ID.String(), "-", ""),
		Name:       p.Name,
		Properties: props,
	})
}

// UnmarshalJSON decodes a session-server profile. The id may be hyphenated
// or not.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var raw profileJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return oops.Code("AUTHORITY_PROTOCOL_ERROR").With("operation", "decode profile").Wrap(err)
	}
	id, err := ParseID(raw.ID)
	if err != nil {
		return err
	}
	p.ID = id
	p.Name = raw.Name
	p.Properties = raw.Properties
	return nil
}

// idGroupWidths are the hex digit counts of the five hyphen-separated groups.
var idGroupWidths = [5]int{8, 4, 4, 4, 12}

// ParseID parses a profile identifier with or without hyphens. Hyphenless
// input is split at offsets 8, 12, 16 and 20. Groups shorter than their
// canonical width are left-padded with zeros; longer groups are rejected.
func ParseID(s string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, oops.Code("AUTHORITY_PROTOCOL_ERROR").Errorf("profile id is empty")
	}

	var groups []string
	if strings.Contains(s, "-") {
		groups = strings.Split(s, "-")
	} else {
		if len(s) <= 20 {
			return uuid.Nil, oops.Code("AUTHORITY_PROTOCOL_ERROR").
				With("id", s).
				Errorf("profile id too short")
		}
		groups = []string{s[0:8], s[8:12], s[12:16], s[16:20], s[20:]}
	}
	if len(groups) != len(idGroupWidths) {
		return uuid.Nil, oops.Code("AUTHORITY_PROTOCOL_ERROR").
			With("id", s).
			Errorf("profile id must have 5 groups, got %d", len(groups))
	}

	var b strings.Builder
	b.Grow(32)
	for i, g := range groups {
		width := idGroupWidths[i]
		if g == "" || len(g) > width {
			return uuid.Nil, oops.Code("AUTHORITY_PROTOCOL_ERROR").
				With("id", s).
				Errorf("profile id group %d has invalid length %d", i, len(g))
		}
		b.WriteString(strings.Repeat("0", width-len(g)))
		b.WriteString(g)
	}

	raw, err := hex.DecodeString(b.String())
	if err != nil {
		return uuid.Nil, oops.Code("AUTHORITY_PROTOCOL_ERROR").With("id", s).Wrap(err)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, oops.Code("AUTHORITY_PROTOCOL_ERROR").With("id", s).Wrap(err)
	}
	return id, nil
}

// OfflineUUID returns the deterministic identifier used for names no
// authority vouched for: a version 3 UUID over "OfflinePlayer:" + name.
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name)) //nolint:gosec // identifier derivation, not security
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.UUID(sum)
}

// CloneProperties returns a copy of props, preserving order. A nil input
// yields nil.
func CloneProperties(props []Property) []Property {
	if props == nil {
		return nil
	}
	out := make([]Property, len(props))
	copy(out, props)
	return out
}
