package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	licenseadapter "github.com/analyticspro/walletlens/internal/adapter/driven/license"
	sqliteadapter "github.com/analyticspro/walletlens/internal/adapter/driven/sqlite"
	walletadapter "github.com/analyticspro/walletlens/internal/adapter/driven/wallet"
	httphandler "github.com/analyticspro/walletlens/internal/adapter/driving/http"
	"github.com/analyticspro/walletlens/internal/application"
	"github.com/analyticspro/walletlens/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"authority", cfg.AuthorityURL,
		"heartbeat_interval", cfg.HeartbeatInterval,
		"refresh_interval", cfg.RefreshInterval,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on the writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	snapshotStore := sqliteadapter.NewSnapshotRepo(db)
	licenseClient := licenseadapter.NewClient(cfg.AuthorityURL)
	extractor := walletadapter.NewExtractor(walletadapter.DefaultSelectors())

	// 6. Create the session lifecycle controller and evaluate the stored
	// credential once. A rejected credential resolves to Unauthenticated,
	// not a startup failure.
	policy := application.PolicyFailClosed
	if cfg.HeartbeatFailOpen {
		policy = application.PolicyFailOpen
	}
	sessionSvc := application.NewSessionService(
		credentialStore,
		licenseClient,
		cfg.AuthorityOrigin,
		cfg.HeartbeatInterval,
		policy,
	)
	if err := sessionSvc.Start(ctx); err != nil {
		return err
	}

	// 7. Create and start the refresh pipeline.
	countdown := application.NewCountdown()
	refreshSvc := application.NewRefreshService(
		snapshotStore,
		extractor,
		sessionSvc,
		countdown,
		cfg.RefreshInterval,
		cfg.SnapshotKeep,
		cfg.ConversionRate,
	)
	go refreshSvc.Start(ctx)

	// 8. Create the HTTP handler and register routes.
	apiHandler := httphandler.NewHandler(
		sessionSvc,
		refreshSvc,
		countdown,
		cfg.AuthorityURL,
		cfg.AuthorityOrigin,
		slog.Default(),
	)
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("walletlens started",
		"listen_addr", cfg.ListenAddr,
		"session_state", sessionSvc.Status().State.String(),
		"heartbeat_policy", policy.String(),
	)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with a 10s drain timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
