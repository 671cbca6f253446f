// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/multilogin/internal/authority"
	"github.com/holomush/multilogin/internal/authority/rediscache"
	"github.com/holomush/multilogin/internal/config"
	"github.com/holomush/multilogin/internal/failure"
	"github.com/holomush/multilogin/internal/identity"
	"github.com/holomush/multilogin/internal/observability"
	"github.com/holomush/multilogin/internal/pipeline"
	"github.com/holomush/multilogin/internal/sessionserver"
	"github.com/holomush/multilogin/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session server",
		Long: `Run the session server. Game hosts point their hasJoined
verification at this process. SIGHUP reloads the authority chain from
the config file without dropping in-flight joins.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := setupLogging(cfg)
			if err != nil {
				return err
			}
			reload := func() (*config.Config, error) { return loadConfig(cmd) }
			return runServe(cmd.Context(), cfg, reload, logger)
		},
	}

	cmd.Flags().String("listen-addr", "", "session server listen address")
	cmd.Flags().String("metrics-addr", "", "metrics/health HTTP address")
	cmd.Flags().String("log-format", "", "log format (json or text)")
	cmd.Flags().Bool("allow-unverified", false, "admit names no authority verified")
	cmd.Flags().Bool("admin-locks", false, "expose lock override routes on the session server")

	return cmd
}

// service owns the long-lived collaborators shared across pipeline reloads.
type service struct {
	logger     *slog.Logger
	identities *identity.Store
	failures   *failure.Recorder
	cache      authority.PropertyCache
	cacheType  string
	holder     *pipeline.Holder
	closers    []func() error
}

func newService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*service, error) {
	s := &service{
		logger: logger,
		failures: failure.NewRecorder(
			failure.WithTTL(cfg.Failures.TTL),
			failure.WithMaxEntries(cfg.Failures.MaxEntries),
		),
		cacheType: cfg.Cache.Type,
	}

	identities, closeStore, err := openIdentities(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s.identities = identities
	s.closers = append(s.closers, closeStore)

	switch cfg.Cache.Type {
	case config.CacheRedis:
		cache, err := rediscache.New(ctx, cfg.Cache.RedisURL, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.cache = cache
		s.closers = append(s.closers, cache.Close)
	default:
		s.cache = authority.NewMemoryCache()
	}

	p, err := s.build(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.holder = pipeline.NewHolder(p)
	return s, nil
}

// build constructs a pipeline over the shared store, recorder and cache.
func (s *service) build(cfg *config.Config) (*pipeline.Pipeline, error) {
	factory := pipeline.DefaultFactory{
		HTTPTimeout: cfg.HTTPTimeout,
		Cache:       s.cache,
	}
	if cfg.Official.SessionURL != "" {
		upstream, err := authority.NewOfficialSessionClient(cfg.Official.SessionURL, authority.WithTimeout(cfg.HTTPTimeout))
		if err != nil {
			return nil, err
		}
		factory.Official = upstream
	}

	opts := cfg.PipelineOptions()
	opts.Logger = s.logger
	return pipeline.Build(cfg.Providers(), pipeline.Deps{
		Store:    s.identities,
		Failures: s.failures,
		Factory:  factory,
		Options:  opts,
	})
}

// reload swaps in a pipeline built from cfg. Storage and cache settings are
// fixed for the life of the process.
func (s *service) reload(cfg *config.Config) error {
	if cfg.Cache.Type != s.cacheType {
		s.logger.Warn("cache type change requires a restart", "active", s.cacheType, "configured", cfg.Cache.Type)
	}
	p, err := s.build(cfg)
	if err != nil {
		return err
	}
	if _, err := s.holder.Replace(p); err != nil {
		return err
	}
	s.logger.Info("authority chain reloaded", "authorities", p.Labels())
	return nil
}

func (s *service) ready() bool {
	return s.holder.Load() != nil
}

// Close releases backends in reverse order of acquisition.
func (s *service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("failed to release resource", "error", err)
		}
	}
	s.closers = nil
}

// runServe runs until ctx is cancelled, a server fails, or SIGINT/SIGTERM
// arrives. reloadConfig is consulted on SIGHUP.
func runServe(ctx context.Context, cfg *config.Config, reloadConfig func() (*config.Config, error), logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	svc, err := newService(ctx, cfg, logger)
	if err != nil {
		return oops.With("operation", "start service").Wrap(err)
	}
	defer svc.Close()

	var obsServer *observability.Server
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, svc.ready)
		pipeline.RegisterMetrics(obsServer.Registry())
		obsServer.Metrics().AuthoritiesConfigured.Set(float64(len(svc.holder.Load().Labels())))
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	sessCfg := sessionserver.Config{
		Addr:          cfg.ListenAddr,
		Authenticator: svc.holder,
		Failures:      svc.failures,
		Logger:        logger,
	}
	if cfg.AdminLocks {
		sessCfg.Locks = svc.identities
	}
	sessServer, err := sessionserver.NewServer(sessCfg)
	if err != nil {
		stopServers(logger, obsServer, nil)
		return err
	}
	sessErrCh, err := sessServer.Start()
	if err != nil {
		stopServers(logger, obsServer, nil)
		return oops.With("operation", "start session server").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, sessErrCh, "session")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	logger.Info("multilogin ready",
		"listen_addr", sessServer.Addr(),
		"authorities", svc.holder.Load().Labels(),
		"database", cfg.Database.Type)

	for running := true; running; {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				handleReload(svc, reloadConfig, obsServer, logger)
				continue
			}
			logger.Info("received shutdown signal", "signal", sig)
			running = false
		case <-ctx.Done():
			logger.Info("context cancelled, shutting down")
			running = false
		}
	}

	stopServers(logger, obsServer, sessServer)
	logger.Info("shutdown complete")
	return nil
}

func handleReload(svc *service, reloadConfig func() (*config.Config, error), obs *observability.Server, logger *slog.Logger) {
	result := "ok"
	err := func() error {
		if reloadConfig == nil {
			return oops.Errorf("reload is not configured")
		}
		cfg, err := reloadConfig()
		if err != nil {
			return err
		}
		return svc.reload(cfg)
	}()
	if err != nil {
		result = "error"
		errutil.LogError(logger, "reload failed; keeping current authority chain", err)
	}
	if obs != nil {
		obs.Metrics().ReloadsTotal.WithLabelValues(result).Inc()
		obs.Metrics().AuthoritiesConfigured.Set(float64(len(svc.holder.Load().Labels())))
	}
}

// stoppable is satisfied by both HTTP servers.
type stoppable interface {
	Stop(ctx context.Context) error
}

func stopServers(logger *slog.Logger, obs *observability.Server, sess *sessionserver.Server) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	var servers []stoppable
	if sess != nil {
		servers = append(servers, sess)
	}
	if obs != nil {
		servers = append(servers, obs)
	}
	for _, srv := range servers {
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping server", "error", err)
		}
	}
}

// monitorServerErrors cancels ctx when a server reports a serve error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
