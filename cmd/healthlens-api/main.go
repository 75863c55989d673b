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

	"github.com/healthlens/healthlens/internal/api"
	"github.com/healthlens/healthlens/internal/api/uistatic"
	"github.com/healthlens/healthlens/internal/auth"
	"github.com/healthlens/healthlens/internal/catalog"
	catalogpostgres "github.com/healthlens/healthlens/internal/catalog/postgres"
	catalogsqlite "github.com/healthlens/healthlens/internal/catalog/sqlite"
	"github.com/healthlens/healthlens/internal/config"
	"github.com/healthlens/healthlens/internal/migrations"
	"github.com/healthlens/healthlens/internal/nl2sql"
	"github.com/healthlens/healthlens/internal/observability"
	duckdbengine "github.com/healthlens/healthlens/internal/query/duckdb"
	"github.com/healthlens/healthlens/internal/schema"
	"github.com/healthlens/healthlens/internal/storage"
	s3store "github.com/healthlens/healthlens/internal/storage/s3"
	"github.com/healthlens/healthlens/internal/warehouse"
)

func main() {
	cfg, err := config.LoadFromEnv("healthlens-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	catalogRepo, closeCatalog, err := openCatalog(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to open catalog", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeCatalog()

	store := warehouse.NewStore(cfg.Warehouse.DataDir)
	defer func() { _ = store.Close() }()

	var translator nl2sql.Translator
	if cfg.AI.Enabled {
		translator, err = nl2sql.NewOpenAITranslator(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize query translator", slog.Any("error", err))
			os.Exit(1)
		}
	}

	var archive storage.ObjectStore
	if cfg.Archive.Enabled {
		archive, err = s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.Archive.Endpoint,
			Region:           cfg.Archive.Region,
			Bucket:           cfg.Archive.Bucket,
			AccessKeyID:      cfg.Archive.AccessKeyID,
			SecretAccessKey:  cfg.Archive.SecretAccessKey,
			UseSSL:           cfg.Archive.UseSSL,
			Prefix:           cfg.Archive.Prefix,
			AutoCreateBucket: cfg.Archive.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize upload archive", slog.Any("error", err))
			os.Exit(1)
		}
	}

	deps := api.Dependencies{
		Logger:       logger,
		Catalog:      catalogRepo,
		Warehouse:    store,
		Introspector: schema.NewIntrospector(catalogRepo, store, cfg.Upload.SampleRows),
		QueryEngine:  duckdbengine.NewEngine(store),
		Translator:   translator,
		Archive:      archive,
		UI:           uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			api.CheckCatalog(catalogRepo),
			api.CheckWarehouse(store),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func openCatalog(ctx context.Context, cfg config.Config, logger *slog.Logger) (catalog.Repository, func(), error) {
	switch cfg.Catalog.Driver {
	case "postgres":
		db, err := catalogpostgres.Open(ctx, catalogpostgres.DBConfig{
			DSN:             cfg.Catalog.DSN,
			MaxOpenConns:    cfg.Catalog.MaxOpenConns,
			MaxIdleConns:    cfg.Catalog.MaxIdleConns,
			ConnMaxIdleTime: cfg.Catalog.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		applied, err := migrations.NewRunner().Up(ctx, db, 0)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		if applied > 0 {
			logger.Info("applied catalog migrations", slog.Int("count", applied))
		}
		return catalogpostgres.NewRepository(db), func() { _ = db.Close() }, nil
	default:
		db, err := catalogsqlite.Open(ctx, cfg.Catalog.Path)
		if err != nil {
			return nil, nil, err
		}
		return catalogsqlite.NewRepository(db), func() { _ = db.Close() }, nil
	}
}
