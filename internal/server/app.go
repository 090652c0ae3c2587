// Package server initializes and runs the sync server: it opens the
// database, applies migrations, repairs partition drift, wires the
// services to the HTTP surface, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/haexhub/haex-sync/internal/cryptox"
	"github.com/haexhub/haex-sync/internal/logging"
	"github.com/haexhub/haex-sync/internal/server/config"
	"github.com/haexhub/haex-sync/internal/server/httpapi"
	"github.com/haexhub/haex-sync/internal/server/identity"
	"github.com/haexhub/haex-sync/internal/server/repositories/repomanager"
	"github.com/haexhub/haex-sync/internal/server/services"
)

// App owns the process-wide resources.
type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *http.Server
}

// NewApp builds the full dependency graph from configuration.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewJSON()

	if cfg.DatabaseDSN == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager()
	if err := repos.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	if err := repos.Partitions(db).EnsureAll(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("partition repair error: %w", err)
	}

	var enc *cryptox.Encryptor
	if cfg.StorageEncryptionKey != "" {
		enc, err = cryptox.NewEncryptor(cfg.StorageEncryptionKey)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("encryptor init error: %w", err)
		}
	} else {
		logger.Warn(ctx, "STORAGE_ENCRYPTION_KEY is not set; credential service disabled")
	}

	store, err := services.NewStorageService(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}
	if !store.Configured() {
		logger.Warn(ctx, "object storage is not configured; storage routes will return 503")
	}

	idp := identity.NewClient(cfg.AuthURL, cfg.AuthServiceKey, cfg.AuthJWTSecret)
	syncSvc := services.NewSyncService(db, repos)
	vaultSvc := services.NewVaultService(db, repos)
	credSvc := services.NewCredentialService(db, repos, enc)

	api := httpapi.NewServer(cfg, logger, idp, idp, syncSvc, vaultSvc, credSvc, store, repos.Tiers(db))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: api.Handler(),
	}

	return &App{config: cfg, logger: logger, db: db, server: srv}, nil
}

// Run serves until the context is cancelled or a signal arrives, then
// drains connections within the shutdown deadline.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "starting server", "addr", app.server.Addr, "environment", app.config.Environment)
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return app.db.Close()
}
