package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/wabridge/internal/adapter/driven/gateway"
	"github.com/ericfisherdev/wabridge/internal/adapter/driven/qrcode"
	httphandler "github.com/ericfisherdev/wabridge/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/wabridge/internal/adapter/driving/web"
	wshandler "github.com/ericfisherdev/wabridge/internal/adapter/driving/ws"
	"github.com/ericfisherdev/wabridge/internal/application"
)

// qrImageSize is the pixel width of the pairing image pushed to the UI.
const qrImageSize = 256

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the messaging connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	// 1. Load configuration (fail fast on invalid values).
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"gateway_url", cfg.GatewayURL,
		"protocol_version", cfg.ProtocolVersion,
		"credentials_backend", cfg.CredentialsBackend,
		"phone_prefix", cfg.PhonePrefix,
		"api_token_set", cfg.APIToken != "",
	)
	if cfg.APIToken == "" {
		slog.Warn("WABRIDGE_API_TOKEN is empty, every send request will be rejected")
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the credential store and load the saved session. A store that
	// cannot be read is fatal; starting unpaired would discard the session.
	store, closeStore, err := openCredentialStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	creds, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	slog.Info("credentials loaded", "entries", len(creds), "paired", !creds.IsEmpty())

	// 4. Wire adapters and services.
	client := gateway.NewClient(cfg.GatewayURL, cfg.ProtocolVersion, cfg.RequestTimeout, slog.Default())
	notifier := application.NewNotifier(qrcode.NewRenderer(qrImageSize), slog.Default())
	inbound := application.NewInboundHandler(client, slog.Default())
	connSvc := application.NewConnectionService(client, store, notifier, inbound, creds, slog.Default())
	sendSvc := application.NewSendService(client, connSvc, cfg.APIToken, cfg.PhonePrefix, slog.Default())

	// 5. Start the connection state machine.
	connDone := make(chan struct{})
	go func() {
		defer close(connDone)
		connSvc.Start(ctx)
	}()

	// 6. Register routes: API, push channel, and UI shell.
	mux := http.NewServeMux()
	httphandler.RegisterAPIRoutes(mux, httphandler.NewHandler(sendSvc, connSvc, slog.Default()))
	wshandler.RegisterRoutes(mux, wshandler.NewHandler(notifier, slog.Default()))
	webhandler.RegisterRoutes(mux, webhandler.NewHandler(connSvc, slog.Default()))

	handler := httphandler.ApplyMiddleware(mux, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// A send resolves and then delivers, each bounded by the request timeout.
		WriteTimeout: 2*cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	slog.Info("wabridge started", "listen_addr", cfg.ListenAddr)

	// 7. Wait for a shutdown signal or a server failure.
	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-srvErr:
		runErr = fmt.Errorf("http server: %w", err)
		stop()
	}

	// 8. Graceful shutdown with 10s timeout for HTTP drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	select {
	case <-connDone:
	case <-shutdownCtx.Done():
		slog.Warn("connection service did not stop before shutdown deadline")
	}

	slog.Info("shutdown complete")
	return runErr
}
