// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/multilogin/internal/config"
	"github.com/holomush/multilogin/internal/identity"
	"github.com/holomush/multilogin/internal/logging"
	"github.com/holomush/multilogin/internal/store"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the multilogin CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "multilogin",
		Short: "multilogin - multi-authority join authentication",
		Long: `multilogin verifies players joining a game server against an
ordered chain of credential authorities and locks each name to the
authority that first verified it.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/multilogin/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("database.type", "", "identity store backend (sqlite, postgres, memory)")
	cmd.PersistentFlags().String("database.path", "", "sqlite database file")
	cmd.PersistentFlags().String("database.url", "", "postgres connection string")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewLockCmd())

	return cmd
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configFile, cmd.Flags())
}

func setupLogging(cfg *config.Config) (*slog.Logger, error) {
	return logging.SetDefault(logging.Options{
		Service: "multilogin",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
	})
}

// openIdentities opens the configured backend and wraps it in the lock rules.
// The returned closer releases the backend.
func openIdentities(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*identity.Store, store.Closer, error) {
	repo, closer, err := store.Open(ctx, cfg.Store(), logger)
	if err != nil {
		return nil, nil, err
	}
	identities, err := identity.NewStore(repo, identity.WithLogger(logger))
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return identities, closer, nil
}
