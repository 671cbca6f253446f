// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package authority

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// PropertyCacheTTL is how long cached profile properties stay valid.
const PropertyCacheTTL = 30 * time.Minute

// Federated verifies players against an operator-supplied session server.
//
// Every Authenticate call sends the hasJoined request; a cache hit never
// skips it. Serving a cached profile would accept a join whose session the
// server never confirmed.
//
// The cache holds property payloads only, keyed by name and label. When a
// verified response carries no properties, the cached ones for that name
// are attached to it.
type Federated struct {
	label  string
	client *SessionClient
	cache  PropertyCache
	ttl    time.Duration
}

// FederatedOption configures a Federated authority.
type FederatedOption func(*Federated)

// WithPropertyCache sets the property cache. The default is an in-memory cache.
func WithPropertyCache(c PropertyCache) FederatedOption {
	return func(f *Federated) {
		if c != nil {
			f.cache = c
		}
	}
}

// WithCacheTTL overrides PropertyCacheTTL.
func WithCacheTTL(d time.Duration) FederatedOption {
	return func(f *Federated) {
		if d > 0 {
			f.ttl = d
		}
	}
}

// NewFederated creates a Federated authority using client.
func NewFederated(label string, client *SessionClient, opts ...FederatedOption) (*Federated, error) {
	if label == "" {
		return nil, oops.Code("PIPELINE_CONFIG_INVALID").Errorf("authority label is required")
	}
	if client == nil {
		return nil, oops.Code("PIPELINE_CONFIG_INVALID").
			With("label", label).
			Errorf("session client is required")
	}
	f := &Federated{
		label:  label,
		client: client,
		ttl:    PropertyCacheTTL,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.cache == nil {
		f.cache = NewMemoryCache()
	}
	return f, nil
}

// Label returns the authority label.
func (f *Federated) Label() string {
	return f.label
}

// Endpoint returns the session server root.
func (f *Federated) Endpoint() string {
	return f.client.BaseURL()
}

// Authenticate performs the hasJoined request.
func (f *Federated) Authenticate(ctx context.Context, name, serverID string) (*Profile, error) {
	profile, err := f.client.HasJoined(ctx, name, serverID)
	if err != nil {
		return nil, oops.With("authority", f.label).Wrap(err)
	}
	if profile == nil {
		return nil, nil
	}

	key := cacheKey(name, f.label)
	if len(profile.Properties) > 0 {
		f.cache.Set(ctx, key, profile.Properties, f.ttl)
	} else if cached, ok := f.cache.Get(ctx, key); ok {
		profile.Properties = cached
	}
	return profile, nil
}

func cacheKey(name, label string) string {
	return name + ":" + label
}
