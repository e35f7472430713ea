package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Simplici0/printbill/internal/catalog"
	"github.com/Simplici0/printbill/internal/config"
	"github.com/Simplici0/printbill/internal/db"
	"github.com/Simplici0/printbill/internal/gst"
	"github.com/Simplici0/printbill/internal/migrations"
	"github.com/Simplici0/printbill/internal/observability"
	"github.com/Simplici0/printbill/internal/pricing"
	"github.com/Simplici0/printbill/internal/seed"
	"github.com/Simplici0/printbill/internal/session"
	"github.com/Simplici0/printbill/internal/store"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel, cfg.IsDev())
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalw("server stopped", "error", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) error {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := migrations.Up(database); err != nil {
		return err
	}
	stats, err := seed.Run(database, seed.Config{
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
		GSTPercent:    cfg.DefaultGSTPercent,
	})
	if err != nil {
		return err
	}
	logger.Infow("seed complete", "inserts", stats.Inserts)

	catalogs := catalog.NewCache(catalog.SQLProvider{DB: database}, logger)
	if cfg.CatalogDir != "" {
		if err := watchCatalogs(ctx, cfg, database, catalogs, logger); err != nil {
			return err
		}
	}

	rates, err := pricing.LoadRateCard(ctx, database)
	if err != nil {
		return err
	}

	estimates, closeStore, err := openStore(ctx, cfg, database, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	drafts, err := store.OpenDrafts(cfg.DraftsPath)
	if err != nil {
		return err
	}
	defer drafts.Close()

	sessions := session.NewManager(session.Deps{
		Catalogs:   catalogs,
		GST:        gst.SQLProvider{DB: database},
		Pricing:    pricing.Engine{Rates: rates},
		Debounce:   cfg.RecalcDebounce,
		DefaultGST: cfg.DefaultGSTPercent,
		Log:        logger,
	}, estimates, drafts)
	defer sessions.Shutdown()

	srv := &server{
		auth:     newAuthService(database, cfg.SessionSecret),
		sessions: sessions,
		store:    estimates,
		drafts:   drafts,
		catalogs: catalogs,
		log:      logger,
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("listening", "addr", httpSrv.Addr, "store", cfg.StoreBackend)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// watchCatalogs imports the catalog directory once and keeps it in sync.
func watchCatalogs(ctx context.Context, cfg config.Config, database *sql.DB, cache *catalog.Cache, logger *zap.SugaredLogger) error {
	dir, err := filepath.Abs(cfg.CatalogDir)
	if err != nil {
		return err
	}
	im := catalog.Importer{DB: database, Cache: cache, Log: logger}
	n, err := im.ImportDir(ctx, dir)
	if err != nil {
		return err
	}
	logger.Infow("catalogs imported", "dir", dir, "catalogs", n)

	go func() {
		if err := im.Watch(ctx, dir, cfg.CatalogDebounce); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorw("catalog watcher stopped", "dir", dir, "error", err)
		}
	}()
	return nil
}

func openStore(ctx context.Context, cfg config.Config, database *sql.DB, logger *zap.SugaredLogger) (store.Store, func(), error) {
	if cfg.StoreBackend != config.StoreFirestore {
		return store.NewSQLite(database), func() {}, nil
	}
	fs, err := store.OpenFirestore(ctx, cfg.FirestoreProjectID)
	if err != nil {
		return nil, nil, err
	}
	return fs, func() {
		if err := fs.Close(); err != nil {
			logger.Warnw("close firestore", "error", err)
		}
	}, nil
}
