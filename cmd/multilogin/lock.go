// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/multilogin/internal/identity"
)

// NewLockCmd creates the lock administration command group.
func NewLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect and override identity locks",
		Long: `Inspect and override the authority each name is locked to. These
commands operate directly on the identity store.`,
	}

	cmd.AddCommand(newLockGetCmd())
	cmd.AddCommand(newLockSetCmd())
	cmd.AddCommand(newLockDeleteCmd())
	cmd.AddCommand(newLockOverrideUUIDCmd())

	return cmd
}

func newLockGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show the identity bound to a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentities(cmd, func(ctx context.Context, s *identity.Store) error {
				ident, err := s.Get(ctx, args[0])
				if err != nil {
					return err
				}
				cmd.Printf("Name:      %s\nUUID:      %s\nAuthority: %s\nUpdated:   %s\n",
					ident.Name, ident.UUID, ident.AuthorityLabel, ident.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
				return nil
			})
		},
	}
}

func newLockSetCmd() *cobra.Command {
	var rawID string
	cmd := &cobra.Command{
		Use:   "set NAME AUTHORITY",
		Short: "Lock a name to an authority",
		Long: `Lock a name to an authority label. An existing identity keeps its
UUID. A name with no identity is created only when --uuid is given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id *uuid.UUID
			if rawID != "" {
				parsed, err := parseUUID(rawID)
				if err != nil {
					return err
				}
				id = &parsed
			}
			return withIdentities(cmd, func(ctx context.Context, s *identity.Store) error {
				if err := s.SetLock(ctx, args[0], id, args[1]); err != nil {
					return err
				}
				cmd.Printf("Locked %s to %s\n", args[0], args[1])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rawID, "uuid", "", "UUID to bind when the name has no identity yet")
	return cmd
}

func newLockDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Remove the identity bound to a name",
		Long: `Remove the identity bound to a name. The next successful join for
the name creates a fresh identity under whichever authority verifies it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentities(cmd, func(ctx context.Context, s *identity.Store) error {
				if err := s.Delete(ctx, args[0]); err != nil {
					return err
				}
				cmd.Printf("Deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newLockOverrideUUIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "override-uuid NAME UUID",
		Short: "Replace the UUID bound to a name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUUID(args[1])
			if err != nil {
				return err
			}
			return withIdentities(cmd, func(ctx context.Context, s *identity.Store) error {
				if err := s.OverrideUUID(ctx, args[0], id); err != nil {
					return err
				}
				cmd.Printf("Bound %s to %s\n", args[0], id)
				return nil
			})
		},
	}
}

func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, oops.Code("INVALID_UUID").With("input", s).Wrap(err)
	}
	return id, nil
}

func withIdentities(cmd *cobra.Command, fn func(context.Context, *identity.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	identities, closer, err := openIdentities(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closer(); closeErr != nil {
			slog.Warn("failed to close identity store", "error", closeErr)
		}
	}()
	return fn(ctx, identities)
}
