// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/multilogin/internal/config"
	"github.com/holomush/multilogin/internal/observability"
	"github.com/holomush/multilogin/internal/pipeline"
	"github.com/holomush/multilogin/pkg/errutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.Database = config.DatabaseConfig{Type: "memory"}
	cfg.Pipeline = []config.ProviderEntry{{Type: "OFFICIAL", Label: "OFFICIAL"}}
	return cfg
}

func TestService_BuildAndReload(t *testing.T) {
	ctx := context.Background()
	svc, err := newService(ctx, memoryConfig(), discardLogger())
	require.NoError(t, err)
	defer svc.Close()

	assert.True(t, svc.ready())
	assert.Equal(t, []string{"OFFICIAL"}, svc.holder.Load().Labels())

	next := memoryConfig()
	next.Pipeline = append(next.Pipeline, config.ProviderEntry{
		Type:     "FEDERATED",
		Label:    "LittleSkin",
		Endpoint: "https://littleskin.example/api/yggdrasil",
	})
	require.NoError(t, svc.reload(next))
	assert.Equal(t, []string{"OFFICIAL", "LittleSkin"}, svc.holder.Load().Labels())
}

func TestService_ReloadFailureKeepsPipeline(t *testing.T) {
	svc, err := newService(context.Background(), memoryConfig(), discardLogger())
	require.NoError(t, err)
	defer svc.Close()
	before := svc.holder.Load()

	broken := memoryConfig()
	broken.Pipeline = []config.ProviderEntry{{Type: "FEDERATED", Label: "F"}}
	err = svc.reload(broken)
	require.Error(t, err)
	assert.Equal(t, pipeline.CodeConfigInvalid, errutil.Code(err))
	assert.Same(t, before, svc.holder.Load())
}

func TestHandleReload_CountsResults(t *testing.T) {
	svc, err := newService(context.Background(), memoryConfig(), discardLogger())
	require.NoError(t, err)
	defer svc.Close()

	obs := observability.NewServer("127.0.0.1:0", svc.ready)

	handleReload(svc, func() (*config.Config, error) { return memoryConfig(), nil }, obs, discardLogger())
	handleReload(svc, func() (*config.Config, error) { return nil, oops.Errorf("bad file") }, obs, discardLogger())
	handleReload(svc, nil, obs, discardLogger())

	assert.InDelta(t, 1, testutil.ToFloat64(obs.Metrics().ReloadsTotal.WithLabelValues("ok")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(obs.Metrics().ReloadsTotal.WithLabelValues("error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(obs.Metrics().AuthoritiesConfigured), 0)
}

func TestRunServe_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, memoryConfig(), nil, discardLogger())
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}

func TestRunServe_InvalidListenAddr(t *testing.T) {
	cfg := memoryConfig()
	cfg.MetricsAddr = ""
	cfg.ListenAddr = "256.0.0.1:bad"

	err := runServe(context.Background(), cfg, nil, discardLogger())
	require.Error(t, err)
}

func TestMonitorServerErrors_CancelsOnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	errCh <- oops.Errorf("listener died")

	monitorServerErrors(ctx, cancel, errCh, "test")
	assert.Error(t, ctx.Err())
}

func TestMonitorServerErrors_ClosedChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error)
	close(errCh)

	monitorServerErrors(ctx, cancel, errCh, "test")
	assert.NoError(t, ctx.Err())
}
