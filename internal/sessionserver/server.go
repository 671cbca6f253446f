// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sessionserver exposes the authentication pipeline to the game host
// over HTTP. The join endpoint mirrors the session server hasJoined contract
// so a host can point its session URL at this process.
package sessionserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/samber/oops"

	"github.com/holomush/multilogin/internal/failure"
	"github.com/holomush/multilogin/internal/pipeline"
)

// Authenticator runs one join attempt.
type Authenticator interface {
	Authenticate(ctx context.Context, name, serverID string) (*pipeline.Result, error)
}

// FailureTaker hands out a recorded rejection once.
type FailureTaker interface {
	TakeAndClear(name string) (failure.Failure, bool)
}

// LockAdmin is the administrative lock surface.
type LockAdmin interface {
	GetLock(ctx context.Context, name string) (label string, found bool, err error)
	SetLock(ctx context.Context, name string, id *uuid.UUID, label string) error
}

// Config wires the server's collaborators.
type Config struct {
	Addr          string
	Authenticator Authenticator
	Failures      FailureTaker
	// Locks enables the /admin/locks routes when set.
	Locks  LockAdmin
	Logger *slog.Logger
}

// Server serves the join and admin endpoints.
type Server struct {
	addr       string
	handler    http.Handler
	logger     *slog.Logger
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates a Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Authenticator == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("authenticator is required")
	}
	if cfg.Failures == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("failure taker is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "sessionserver")

	return &Server{
		addr:    cfg.Addr,
		handler: newRouter(cfg, logger),
		logger:  logger,
	}, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func newRouter(cfg Config, logger *slog.Logger) http.Handler {
	h := &handlers{
		auth:     cfg.Authenticator,
		failures: cfg.Failures,
		locks:    cfg.Locks,
		logger:   logger,
	}

	r := mux.NewRouter()
	r.Use(recovery(logger))
	r.Use(logging(logger))

	r.HandleFunc("/sessionserver/session/minecraft/hasJoined", h.hasJoined).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/failures/{name}/take", h.takeFailure).Methods(http.MethodPost)
	if cfg.Locks != nil {
		admin.HandleFunc("/locks/{name}", h.getLock).Methods(http.MethodGet)
		admin.HandleFunc("/locks/{name}", h.setLock).Methods(http.MethodPut)
	}
	return r
}

// Start begins serving. The returned channel receives a serve error, and is
// closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("session server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("session server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("session server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_session_server").Wrap(err)
		}
	}
	s.logger.Info("session server stopped")
	return nil
}

// Addr returns the listening address, or "" when not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
