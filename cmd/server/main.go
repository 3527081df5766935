package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/david/property-catalog/internal/api"
	"github.com/david/property-catalog/internal/auth"
	"github.com/david/property-catalog/internal/catalog"
	"github.com/david/property-catalog/internal/config"
	"github.com/david/property-catalog/internal/db"
	"github.com/david/property-catalog/internal/ingest"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := cfg.Log.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := ingest.LoadRegistry(cfg.Source.RegistryPath)
	if err != nil {
		logger.Fatalf("Failed to load catalog registry: %v", err)
	}
	if cfg.Source.BaseURL != "" {
		reg.Source.BaseURL = cfg.Source.BaseURL
	}
	if cfg.Source.FeaturedCount > 0 {
		reg.FeaturedCount = cfg.Source.FeaturedCount
	}
	if reg.Source.BaseURL == "" {
		logger.Fatal("Catalog source URL is not configured (CATALOG_SOURCE_URL)")
	}

	fetchCfg := reg.Source.Fetch.Override(cfg.Source.TimeoutSeconds, cfg.Source.MaxRetries, cfg.Source.RateLimitRPS)
	fetcher, err := ingest.NewFetcher(cfg.Source.Fetcher, fetchCfg, cfg.Source.AllowPrivateHosts, logger)
	if err != nil {
		logger.Fatalf("Failed to create fetcher: %v", err)
	}

	adapters, err := ingest.NewSheetAdapters(reg, fetcher, ingest.AdapterOptions{
		FailureThreshold: cfg.Source.BreakerThreshold,
		ResetTimeout:     cfg.Source.BreakerReset,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to build adapters: %v", err)
	}
	aggregator := catalog.NewAggregator(adapters, logger)
	aggregator.Parallelism = cfg.Source.Parallelism

	var store catalog.Store
	switch cfg.Cache.Backend {
	case "redis":
		rs := catalog.NewRedisStore(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.Retention)
		defer rs.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rs.Ping(pingCtx); err != nil {
			logger.WithError(err).Warn("Redis is unreachable; cache reads will miss until it recovers")
		}
		cancel()
		store = rs
	default:
		store = catalog.NewMemoryStore(cfg.Cache.MaxEntries)
	}
	cache := catalog.NewCache(aggregator, store, catalog.Options{
		TTL:          cfg.Cache.TTL,
		SingleFlight: cfg.Cache.SingleFlight,
	}, logger)

	if cfg.Cache.WarmEnabled {
		warmer := catalog.NewWarmer(cache, cfg.Cache.WarmSchedule, nil, logger)
		if err := warmer.Start(); err != nil {
			logger.Fatalf("Failed to start cache warmer: %v", err)
		}
		defer warmer.Stop()
	}

	deps := api.Deps{
		Cache:       cache,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	}
	for _, c := range reg.All() {
		deps.Categories = append(deps.Categories, api.CategoryInfo{ID: c.ID, Label: c.Label})
	}

	pool, err := db.Connect(ctx, cfg.Database.URL)
	switch {
	case errors.Is(err, db.ErrNoDatabase):
		logger.Warn("DATABASE_URL is not set; lead capture is disabled")
	case err != nil:
		logger.Fatalf("Failed to connect to database: %v", err)
	default:
		defer pool.Close()
		if err := db.ApplyMigrations(ctx, pool, logger); err != nil {
			logger.Fatalf("Migration failed: %v", err)
		}
		deps.Leads = db.NewLeadStore(pool)
	}

	deps.AuthService, err = auth.NewService(auth.Options{
		Secret:     cfg.Admin.Secret,
		SecretHash: cfg.Admin.SecretHash,
		JWTSecret:  cfg.Admin.JWTSecret,
		TokenTTL:   cfg.Admin.TokenTTL,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to configure admin auth: %v", err)
	}

	srv := api.NewServer(deps)
	go func() {
		logger.WithFields(logrus.Fields{
			"port":       cfg.Server.Port,
			"categories": len(adapters),
			"cache":      cfg.Cache.Backend,
		}).Info("Server starting")
		if err := srv.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}
