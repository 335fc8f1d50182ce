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

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/binito/despesify/api"
	"github.com/binito/despesify/internal/config"
	"github.com/binito/despesify/internal/db"
	"github.com/binito/despesify/internal/metrics"
	"github.com/binito/despesify/internal/nif"
	"github.com/binito/despesify/internal/services"
	"github.com/binito/despesify/internal/storage"
)

func main() {
	// amounts go out as JSON numbers, not quoted strings
	decimal.MarshalJSONWithoutQuotes = true

	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath, true)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	ctx := context.Background()
	m := metrics.New()
	var opts []api.Option

	// Database is optional: without it decoding still works, nothing is kept
	var cache nif.Cache
	store, err := db.Connect(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Warn("database not available, running without persistence", zap.Error(err))
	} else {
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
		cache = store
		opts = append(opts, api.WithStore(store))
	}

	scans, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		logger.Warn("MinIO storage not available, scans will not be stored", zap.Error(err))
	} else {
		opts = append(opts, api.WithStorage(scans))
	}

	var remote nif.Remote
	if cfg.NIF.APIKey != "" {
		remote = nif.NewClient(cfg.NIF.BaseURL, cfg.NIF.APIKey, cfg.NIF.RatePerSecond,
			time.Duration(cfg.NIF.TimeoutSecs)*time.Second, logger)
	}
	if cache != nil || remote != nil {
		opts = append(opts, api.WithCompanies(nif.NewService(cache, remote, logger)))
	}
	opts = append(opts, api.WithMetrics(m))

	processor := services.NewQRProcessorFromConfig(cfg, logger, m)
	handler := api.NewHandler(cfg, processor, logger, opts...)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting despesify QR service",
			zap.String("addr", addr),
			zap.String("version", api.Version),
			zap.Bool("database", store != nil),
			zap.Bool("storage", scans != nil),
			zap.Bool("nif_remote", remote != nil),
			zap.Bool("fallback_scanner", cfg.Detection.Fallback),
			zap.Strings("endpoints", []string{
				"POST /api/qr-reader",
				"GET  /api/faturas",
				"GET  /api/faturas/{id}",
				"POST /api/nif-lookup",
				"GET  /health",
				"GET  /metrics",
			}),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
