package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/wabridge/internal/config"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "wabridge",
		Short:         "Bridge a messaging session to a web UI and a send-message API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if configPath != "" {
				return os.Setenv("WABRIDGE_CONFIG", configPath)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides WABRIDGE_CONFIG)")
	root.AddCommand(serveCmd(), logoutCmd())

	return root
}

// loadConfig loads the configuration and installs the process logger at the
// configured level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	return cfg, nil
}
