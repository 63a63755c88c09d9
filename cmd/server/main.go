package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/flagdeck/flagdeck/internal/api"
	"github.com/flagdeck/flagdeck/internal/audit"
	"github.com/flagdeck/flagdeck/internal/bus"
	"github.com/flagdeck/flagdeck/internal/cache"
	"github.com/flagdeck/flagdeck/internal/config"
	"github.com/flagdeck/flagdeck/internal/coordinator"
	"github.com/flagdeck/flagdeck/internal/db"
	"github.com/flagdeck/flagdeck/internal/notifier"
	"github.com/flagdeck/flagdeck/internal/store"
	"github.com/flagdeck/flagdeck/internal/telemetry"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "flagdeck").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("validate config")
	}
	if cfg.AppEnv == "dev" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	telemetry.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence: postgres in production, memory for local development.
	// The pool is shared between the flag store and the audit sink.
	var (
		st   store.Store
		sink audit.Sink
	)
	switch cfg.StoreType {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("create database pool")
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("database unreachable")
		}
		st = store.NewPostgresStore(pool)
		sink = audit.NewPostgresSink(pool)
	default:
		st = store.NewMemoryStore()
		sink = audit.NewMemorySink()
	}

	// Cache and invalidation bus: Redis when configured, in-process
	// otherwise. A single-instance deployment needs no broker.
	var (
		kv cache.KV
		b  bus.Bus
	)
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis unreachable")
		}
		defer rdb.Close()
		kv = cache.NewRedisKV(rdb)
		b = bus.NewRedisBus(rdb, logger)
	} else {
		logger.Warn().Msg("REDIS_URL not set, cache and invalidation bus run in-process")
		kv = cache.NewMemoryKV()
		b = bus.NewMemoryBus()
	}
	defer b.Close()

	flagCache := cache.New(kv, b, cfg.CacheTTL, logger)
	trail := audit.NewTrail(sink, cfg.AuditQueueSize, logger)
	defer trail.Close()

	coord := coordinator.New(st, flagCache, trail, logger)
	if err := coord.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("subscribe to invalidations")
	}

	n := notifier.New(b, coord, logger)
	if err := n.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start notifier")
	}

	srvAPI := api.NewServer(coord, n, cfg.AdminAPIKey, cfg.RateLimitPerIP, logger)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srvAPI.Router(),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 0, // the stream endpoint writes indefinitely
		IdleTimeout:  60 * time.Second,
		// Stream handlers watch the request context; deriving it from ctx
		// lets shutdown close long-lived connections.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	cancel() // closes stream connections so Shutdown can drain
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics shutdown")
	}
	logger.Info().Msg("stopped")
}
