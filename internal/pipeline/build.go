// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pipeline

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/multilogin/internal/authority"
)

// ProviderType selects the authority implementation for a ProviderConfig.
type ProviderType string

// Provider types.
const (
	ProviderOfficial  ProviderType = "OFFICIAL"
	ProviderFederated ProviderType = "FEDERATED"
)

// ParseProviderType parses s case-insensitively.
func ParseProviderType(s string) (ProviderType, error) {
	switch t := ProviderType(strings.ToUpper(strings.TrimSpace(s))); t {
	case ProviderOfficial, ProviderFederated:
		return t, nil
	}
	return "", oops.Code(CodeConfigInvalid).With("type", s).Errorf("unknown provider type")
}

// ProviderConfig is one entry of the configured chain.
type ProviderConfig struct {
	Type  ProviderType
	Label string
	// Endpoint is the federated API root. Ignored for OFFICIAL.
	Endpoint string
	Enabled  bool
	// Order is the position in the chain. Ties keep input order.
	Order int
}

// Factory instantiates an authority from its configuration.
type Factory interface {
	NewAuthority(cfg ProviderConfig) (authority.Authority, error)
}

// DefaultFactory builds the stock authorities.
type DefaultFactory struct {
	// Official is the upstream the OFFICIAL authority forwards to.
	Official authority.Upstream
	// HTTPClient is shared by federated session clients. Optional.
	HTTPClient *http.Client
	// HTTPTimeout bounds each federated request.
	HTTPTimeout time.Duration
	// Cache holds federated property payloads. Optional.
	Cache authority.PropertyCache
}

// NewAuthority implements Factory.
func (f DefaultFactory) NewAuthority(cfg ProviderConfig) (authority.Authority, error) {
	switch cfg.Type {
	case ProviderOfficial:
		if f.Official == nil {
			return nil, oops.Code(CodeConfigInvalid).With("label", cfg.Label).Wrap(authority.ErrNoUpstream)
		}
		official, err := authority.NewOfficial(cfg.Label, f.Official)
		if err != nil {
			return nil, err
		}
		return official, nil

	case ProviderFederated:
		if cfg.Endpoint == "" {
			return nil, oops.Code(CodeConfigInvalid).With("label", cfg.Label).Errorf("federated provider requires an endpoint")
		}
		var clientOpts []authority.SessionClientOption
		if f.HTTPClient != nil {
			clientOpts = append(clientOpts, authority.WithHTTPClient(f.HTTPClient))
		}
		if f.HTTPTimeout > 0 {
			clientOpts = append(clientOpts, authority.WithTimeout(f.HTTPTimeout))
		}
		client, err := authority.NewSessionClient(cfg.Endpoint, clientOpts...)
		if err != nil {
			return nil, oops.With("label", cfg.Label).Wrap(err)
		}
		var fedOpts []authority.FederatedOption
		if f.Cache != nil {
			fedOpts = append(fedOpts, authority.WithPropertyCache(f.Cache))
		}
		federated, err := authority.NewFederated(cfg.Label, client, fedOpts...)
		if err != nil {
			return nil, err
		}
		return federated, nil
	}
	return nil, oops.Code(CodeConfigInvalid).
		With("label", cfg.Label).
		With("type", string(cfg.Type)).
		Errorf("unknown provider type")
}

// Deps are the collaborators Build wires into a Pipeline.
type Deps struct {
	Store    IdentityStore
	Failures FailureRecorder
	Factory  Factory
	Options  Options
}

// Build constructs a Pipeline from configuration. Disabled entries are
// skipped and never instantiated. Labels must be unique across all entries,
// enabled or not, since they are the lock keys stored against names.
func Build(cfgs []ProviderConfig, deps Deps) (*Pipeline, error) {
	if deps.Factory == nil {
		return nil, oops.Code(CodeConfigInvalid).Errorf("authority factory is required")
	}

	seen := make(map[string]struct{}, len(cfgs))
	enabled := make([]ProviderConfig, 0, len(cfgs))
	for _, cfg := range cfgs {
		if err := checkLabel(cfg.Label); err != nil {
			return nil, err
		}
		if _, dup := seen[cfg.Label]; dup {
			return nil, oops.Code(CodeConfigInvalid).With("label", cfg.Label).Errorf("duplicate authority label")
		}
		seen[cfg.Label] = struct{}{}
		if cfg.Enabled {
			enabled = append(enabled, cfg)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool { return enabled[i].Order < enabled[j].Order })

	auths := make([]authority.Authority, 0, len(enabled))
	for _, cfg := range enabled {
		a, err := deps.Factory.NewAuthority(cfg)
		if err != nil {
			return nil, err
		}
		auths = append(auths, a)
	}
	return New(auths, deps.Store, deps.Failures, deps.Options)
}
