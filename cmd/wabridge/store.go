package main

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/wabridge/internal/adapter/driven/filestore"
	sqliteadapter "github.com/ericfisherdev/wabridge/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/wabridge/internal/config"
	"github.com/ericfisherdev/wabridge/internal/domain/port/driven"
)

// openCredentialStore builds the configured credential backend. The returned
// close function releases backend resources and is never nil.
func openCredentialStore(ctx context.Context, cfg *config.Config) (driven.CredentialStore, func(), error) {
	if cfg.CredentialsBackend != config.BackendSQLite {
		slog.Info("using file credential store", "dir", cfg.AuthDir)
		return filestore.New(cfg.AuthDir), func() {}, nil
	}

	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}
	slog.Info("database opened", "path", cfg.DBPath)

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		closeDB()
		return nil, nil, err
	}
	slog.Info("migrations complete")

	return sqliteadapter.NewCredentialRepo(db, cfg.SecretKey), closeDB, nil
}
