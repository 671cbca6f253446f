// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pipeline_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/multilogin/internal/authority"
	"github.com/holomush/multilogin/internal/pipeline"
	"github.com/holomush/multilogin/pkg/errutil"
)

// recordingFactory builds mock authorities and remembers what it built.
type recordingFactory struct {
	built []pipeline.ProviderConfig
	err   error
}

func (f *recordingFactory) NewAuthority(cfg pipeline.ProviderConfig) (authority.Authority, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.built = append(f.built, cfg)
	return newMockAuthority(cfg.Label), nil
}

func TestParseProviderType(t *testing.T) {
	typ, err := pipeline.ParseProviderType("official")
	require.NoError(t, err)
	assert.Equal(t, pipeline.ProviderOfficial, typ)

	typ, err = pipeline.ParseProviderType(" Federated ")
	require.NoError(t, err)
	assert.Equal(t, pipeline.ProviderFederated, typ)

	_, err = pipeline.ParseProviderType("BLESSING")
	errutil.AssertErrorCode(t, err, pipeline.CodeConfigInvalid)
}

func TestBuild_SkipsDisabledAndSortsByOrder(t *testing.T) {
	f := newFixture(t)
	factory := &recordingFactory{}

	p, err := pipeline.Build([]pipeline.ProviderConfig{
		{Type: pipeline.ProviderFederated, Label: "LittleSkin", Endpoint: "https://littleskin.cn/api/yggdrasil", Enabled: true, Order: 2},
		{Type: pipeline.ProviderFederated, Label: "Disabled", Endpoint: "https://example.invalid", Enabled: false, Order: 0},
		{Type: pipeline.ProviderOfficial, Label: "OFFICIAL", Enabled: true, Order: 1},
	}, pipeline.Deps{Store: f.store, Failures: f.failures, Factory: factory})
	require.NoError(t, err)

	assert.Equal(t, []string{"OFFICIAL", "LittleSkin"}, p.Labels())
	require.Len(t, factory.built, 2, "disabled provider never instantiated")
}

func TestBuild_Rejects(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		cfgs    []pipeline.ProviderConfig
		factory pipeline.Factory
	}{
		{
			name: "duplicate label across enabled and disabled",
			cfgs: []pipeline.ProviderConfig{
				{Type: pipeline.ProviderOfficial, Label: "OFFICIAL", Enabled: true},
				{Type: pipeline.ProviderOfficial, Label: "OFFICIAL", Enabled: false},
			},
			factory: &recordingFactory{},
		},
		{
			name:    "reserved label",
			cfgs:    []pipeline.ProviderConfig{{Type: pipeline.ProviderOfficial, Label: pipeline.UnverifiedLabel, Enabled: true}},
			factory: &recordingFactory{},
		},
		{
			name:    "empty label",
			cfgs:    []pipeline.ProviderConfig{{Type: pipeline.ProviderOfficial, Enabled: true}},
			factory: &recordingFactory{},
		},
		{
			name:    "unknown type",
			cfgs:    []pipeline.ProviderConfig{{Type: "BLESSING", Label: "X", Enabled: true}},
			factory: pipeline.DefaultFactory{},
		},
		{
			name:    "federated without endpoint",
			cfgs:    []pipeline.ProviderConfig{{Type: pipeline.ProviderFederated, Label: "X", Enabled: true}},
			factory: pipeline.DefaultFactory{},
		},
		{
			name:    "official without upstream",
			cfgs:    []pipeline.ProviderConfig{{Type: pipeline.ProviderOfficial, Label: "OFFICIAL", Enabled: true}},
			factory: pipeline.DefaultFactory{},
		},
		{
			name:    "relative federated endpoint",
			cfgs:    []pipeline.ProviderConfig{{Type: pipeline.ProviderFederated, Label: "X", Endpoint: "/api", Enabled: true}},
			factory: pipeline.DefaultFactory{},
		},
		{
			name:    "factory error",
			cfgs:    []pipeline.ProviderConfig{{Type: pipeline.ProviderOfficial, Label: "OFFICIAL", Enabled: true}},
			factory: &recordingFactory{err: errors.New("boom")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := pipeline.Build(tt.cfgs, pipeline.Deps{Store: f.store, Failures: f.failures, Factory: tt.factory})
			require.Error(t, err)
			assert.Nil(t, p)
		})
	}
}

func TestBuild_RequiresFactory(t *testing.T) {
	f := newFixture(t)
	_, err := pipeline.Build(nil, pipeline.Deps{Store: f.store, Failures: f.failures})
	errutil.AssertErrorCode(t, err, pipeline.CodeConfigInvalid)
}

func TestDefaultFactory_EndToEnd(t *testing.T) {
	want := profileFor("Steve")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("username") != "Steve" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		body, err := want.MarshalJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	officialClient, err := authority.NewSessionClient(srv.URL)
	require.NoError(t, err)

	f := newFixture(t)
	p, err := pipeline.Build([]pipeline.ProviderConfig{
		{Type: pipeline.ProviderOfficial, Label: "OFFICIAL", Enabled: true, Order: 0},
		{Type: pipeline.ProviderFederated, Label: "LittleSkin", Endpoint: srv.URL + "/", Enabled: true, Order: 1},
	}, pipeline.Deps{
		Store:    f.store,
		Failures: f.failures,
		Factory: pipeline.DefaultFactory{
			Official:    officialClient,
			HTTPClient:  srv.Client(),
			HTTPTimeout: time.Second,
			Cache:       authority.NewMemoryCache(),
		},
	})
	require.NoError(t, err)

	res, err := p.Authenticate(context.Background(), "Steve", "nonce")
	require.NoError(t, err)
	require.True(t, res.Accepted())
	assert.Equal(t, "OFFICIAL", res.Authority)
	assert.Equal(t, want.ID, res.Profile.ID)
	assert.Equal(t, want.Properties, res.Profile.Properties)

	res, err = p.Authenticate(context.Background(), "Herobrine", "nonce")
	require.NoError(t, err)
	assert.False(t, res.Accepted())
}
