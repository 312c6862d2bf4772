package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/snapspend-backend/api/routes"
	"github.com/angelmondragon/snapspend-backend/internal/analytics"
	"github.com/angelmondragon/snapspend-backend/internal/auth"
	"github.com/angelmondragon/snapspend-backend/internal/export"
	"github.com/angelmondragon/snapspend-backend/internal/extraction"
	"github.com/angelmondragon/snapspend-backend/internal/receiptimages"
	"github.com/angelmondragon/snapspend-backend/internal/receipts"
	"github.com/angelmondragon/snapspend-backend/internal/users"
	"github.com/angelmondragon/snapspend-backend/pkg/auth/session"
	"github.com/angelmondragon/snapspend-backend/pkg/config"
	"github.com/angelmondragon/snapspend-backend/pkg/db"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
	"github.com/angelmondragon/snapspend-backend/pkg/logo"
	"github.com/angelmondragon/snapspend-backend/pkg/metrics"
	"github.com/angelmondragon/snapspend-backend/pkg/migrate"
	"github.com/angelmondragon/snapspend-backend/pkg/openai"
	"github.com/angelmondragon/snapspend-backend/pkg/redis"
	"github.com/angelmondragon/snapspend-backend/pkg/storage/gcs"
	"github.com/angelmondragon/snapspend-backend/pkg/storage/s3"
)

const shutdownTimeout = 15 * time.Second

type objectStore interface {
	receiptimages.ObjectStore
	Ping(ctx context.Context) error
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "snapspend-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "snapspend-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create auth service", err)
		os.Exit(1)
	}

	summaryCache, err := analytics.NewCache(redisClient, cfg.Analytics.CacheTTL)
	if err != nil {
		logg.Error(ctx, "failed to create analytics cache", err)
		os.Exit(1)
	}

	receiptService, err := receipts.NewService(receipts.ServiceParams{
		DB:              dbClient,
		Invalidator:     summaryCache,
		Logo:            logo.NewBuilder(cfg.Logo),
		Logger:          logg,
		DefaultCurrency: cfg.Scan.DefaultCurrency,
		MaxRangeRows:    cfg.Analytics.MaxReceipts,
	})
	if err != nil {
		logg.Error(ctx, "failed to create receipts service", err)
		os.Exit(1)
	}

	analyticsService, err := analytics.NewService(analytics.ServiceParams{
		Receipts:  receiptService,
		Cache:     summaryCache,
		Logger:    logg,
		TopStores: cfg.Analytics.TopStores,
	})
	if err != nil {
		logg.Error(ctx, "failed to create analytics service", err)
		os.Exit(1)
	}

	exportService, err := export.NewService(receiptService)
	if err != nil {
		logg.Error(ctx, "failed to create export service", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := routes.Dependencies{
		DB:        dbClient,
		Redis:     redisClient,
		Limiter:   redisClient,
		Gatherer:  registry,
		Sessions:  sessionManager,
		Auth:      authService,
		Receipts:  receiptService,
		Analytics: analyticsService,
		Export:    exportService,
	}

	closers := []func() error{dbClient.Close, redisClient.Close}

	store, closeStore, err := newObjectStore(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap object storage", err)
		os.Exit(1)
	}
	if store != nil {
		imageService, err := receiptimages.NewService(receiptimages.ServiceParams{
			Store:          store,
			UploadTTL:      cfg.Storage.UploadURLExpiry,
			ReadTTL:        cfg.Storage.DownloadURLExpiry,
			MaxUploadBytes: int64(cfg.Storage.MaxUploadMB) << 20,
		})
		if err != nil {
			logg.Error(ctx, "failed to create image service", err)
			os.Exit(1)
		}
		deps.Storage = store
		deps.Images = imageService
		if closeStore != nil {
			closers = append(closers, closeStore)
		}
	}

	if cfg.OpenAI.APIKey != "" {
		chatClient, err := openai.NewClient(cfg.OpenAI.APIKey,
			openai.WithBaseURL(cfg.OpenAI.BaseURL),
			openai.WithModel(cfg.OpenAI.Model),
			openai.WithTimeout(cfg.OpenAI.Timeout),
		)
		if err != nil {
			logg.Error(ctx, "failed to create openai client", err)
			os.Exit(1)
		}
		extractor, err := extraction.New(extraction.Params{
			Client:          chatClient,
			Metrics:         metrics.NewExtractionMetrics(registry),
			Logger:          logg,
			DefaultCurrency: cfg.Scan.DefaultCurrency,
			MaxImageBytes:   cfg.Scan.MaxImageBytes(),
		})
		if err != nil {
			logg.Error(ctx, "failed to create extractor", err)
			os.Exit(1)
		}
		deps.Extractor = extractor
	} else {
		logg.Warn(ctx, "openai api key missing, receipt scanning disabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"addr":    addr,
		"storage": cfg.Storage.NormalizedDriver(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "graceful shutdown failed", err)
			exitCode = 1
		}
		cancel()
	}

	var closeErr error
	for _, closeFn := range closers {
		closeErr = multierr.Append(closeErr, closeFn())
	}
	if closeErr != nil {
		logg.Error(context.Background(), "error closing resources", closeErr)
	}
	os.Exit(exitCode)
}

// newObjectStore returns the configured bucket client, or nil when storage is
// disabled.
func newObjectStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (objectStore, func() error, error) {
	switch cfg.Storage.NormalizedDriver() {
	case config.StorageDriverGCS:
		client, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	case config.StorageDriverS3:
		client, err := s3.NewClient(ctx, cfg.S3, logg)
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	default:
		logg.Warn(ctx, "object storage disabled, receipt photos unavailable")
		return nil, nil, nil
	}
}
