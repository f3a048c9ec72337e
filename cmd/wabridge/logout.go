package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete stored credentials so the next start pairs again",
		Long: "Delete the stored session credentials. The network session itself is not " +
			"notified; use POST /api/v1/logout on a running server for that.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogout(cmd.Context())
		},
	}
}

func runLogout(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, closeStore, err := openCredentialStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Delete(ctx); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}

	slog.Info("stored credentials deleted", "backend", cfg.CredentialsBackend)
	return nil
}
