// Command footprint-server starts the Footprint HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/footprint-prints/footprint/internal/cache"
	"github.com/footprint-prints/footprint/internal/config"
	"github.com/footprint-prints/footprint/internal/delivery"
	"github.com/footprint-prints/footprint/internal/limiter"
	"github.com/footprint-prints/footprint/internal/migrate"
	"github.com/footprint-prints/footprint/internal/model"
	"github.com/footprint-prints/footprint/internal/order"
	"github.com/footprint-prints/footprint/internal/pricing"
	"github.com/footprint-prints/footprint/internal/provider"
	"github.com/footprint-prints/footprint/internal/repository/postgres"
	httpserver "github.com/footprint-prints/footprint/internal/server/http"
	"github.com/footprint-prints/footprint/internal/service"
	"github.com/footprint-prints/footprint/internal/storage"
	"github.com/footprint-prints/footprint/internal/styles"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and serves the HTTP API until a signal arrives.
func main() {
	cfg, err := config.Load(os.Args[0], os.Args[1:], os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	newLogger := zap.NewProduction
	if cfg.Dev {
		newLogger = zap.NewDevelopment
	}
	logger, _ := newLogger()
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)
	if cfg.JWTSecret == "" {
		logger.Warn("no jwt secret (--jwt-secret); every caller is anonymous and admin routes are closed")
	}

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	ver, err := migrate.Up(ctx, cfg.DSN, logger)
	if err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}
	logger.Info("schema ready", zap.Int64("version", ver))

	// DB pool
	db, err := postgres.New(ctx, cfg.DSN, int32(cfg.MaxConns))
	if err != nil {
		logger.Fatal("postgres.New", zap.Error(err))
	}
	defer db.Close()
	ledgerRepo := postgres.NewTransformationRepo(db, logger)

	// Redis-backed state, or in-process fallbacks
	var (
		rdb    *redis.Client
		fast   cache.Cache
		lim    limiter.Limiter
		drafts order.Persister
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis url", zap.Error(err))
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		fast = cache.NewRedis(rdb, cfg.CacheTTL)
		lim = limiter.NewRedis(rdb, cfg.MaxConcurrent, cfg.SlotTTL, logger)
		drafts = order.NewRedisPersister(rdb, order.DraftTTL)
	} else {
		logger.Warn("no redis url; cache, concurrency slots and drafts are per-process")
		fast = cache.NewMemory()
		lim = limiter.NewMemory(cfg.MaxConcurrent)
		drafts = order.NewMemoryPersister()
	}

	catalog := styles.Default()
	if cfg.StylesFile != "" {
		if catalog, err = styles.LoadFile(cfg.StylesFile); err != nil {
			logger.Fatal("styles", zap.Error(err))
		}
	}

	// AI providers
	hc := provider.DefaultHTTPClient()
	clients := map[string]provider.Transformer{}
	if cfg.Gemini.APIKey != "" {
		clients[model.ProviderNanoBanana] = provider.NewGemini(provider.GeminiConfig{
			BaseURL: cfg.Gemini.BaseURL, APIKey: cfg.Gemini.APIKey, Model: cfg.Gemini.Model, HTTPClient: hc,
		})
	}
	if cfg.Replicate.Token != "" {
		clients[model.ProviderReplicate] = provider.NewReplicate(provider.ReplicateConfig{
			BaseURL: cfg.Replicate.BaseURL, Token: cfg.Replicate.Token, Model: cfg.Replicate.Model,
			CostPerRun: cfg.Replicate.CostPerRun, HTTPClient: hc,
		})
	}
	router := provider.NewRouter(clients)
	if !router.Has(cfg.DefaultProvider) {
		logger.Warn("default provider not configured", zap.String("provider", cfg.DefaultProvider))
	}

	objects := storage.NewSupabase(storage.Config{
		URL: cfg.Storage.URL, ServiceKey: cfg.Storage.ServiceKey, Bucket: cfg.Storage.Bucket, Retries: 3,
	})

	// Services
	transformSvc := service.NewTransformService(fast, ledgerRepo, lim, router, objects, provider.HTTPFetcher{Client: hc}, catalog,
		service.TransformConfig{
			ProviderTimeout: cfg.ProviderTimeout,
			FetchTimeout:    cfg.FetchTimeout,
			DefaultProvider: cfg.DefaultProvider,
			ResultFolder:    cfg.Storage.Folder,
		}, logger)
	ledgerSvc := service.NewLedgerService(ledgerRepo)
	authSvc := service.NewAuthService([]byte(cfg.JWTSecret))

	app := httpserver.New(httpserver.Deps{
		Auth:      authSvc,
		Transform: transformSvc,
		Ledger:    ledgerSvc,
		Discounts: pricing.DefaultEngine(),
		Styles:    catalog,
		Drafts:    drafts,
		Calendar:  delivery.NewCalendar(nil, israel()),
		Health: func(ctx context.Context) (map[string]string, error) {
			modes := map[string]string{"ledger": "postgres", "cache": "memory"}
			if err := db.Ping(ctx); err != nil {
				return modes, fmt.Errorf("postgres: %w", err)
			}
			if rdb != nil {
				modes["cache"] = "redis"
				if err := rdb.Ping(ctx).Err(); err != nil {
					return modes, fmt.Errorf("redis: %w", err)
				}
			}
			return modes, nil
		},
		Log: logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("graceful shutdown", zap.Error(err))
		}
		transformSvc.Wait()
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}

// israel is the delivery calendar zone; UTC when tzdata is unavailable.
func israel() *time.Location {
	loc, err := time.LoadLocation("Asia/Jerusalem")
	if err != nil {
		return time.UTC
	}
	return loc
}
