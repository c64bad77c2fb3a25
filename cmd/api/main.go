package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/loanbook/pkg/arrears"
	"github.com/mcclellann/loanbook/pkg/cache"
	"github.com/mcclellann/loanbook/pkg/config"
	"github.com/mcclellann/loanbook/pkg/store"
	"github.com/mcclellann/loanbook/pkg/sweep"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func openStorage(cfg *config.Config, log *logrus.Logger) (store.Storage, error) {
	switch cfg.DBDriver {
	case "postgres":
		return store.NewPostgresStore(cfg.DBConn, log)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return store.NewSQLiteStore(cfg.DBConn, log)
	}
}

func openCache(ctx context.Context, cfg *config.Config, log *logrus.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryCache(cfg.CacheTTL)
	}
	rc := cache.NewRedisCache(cfg.RedisAddr, cfg.CacheTTL, log)
	if err := rc.Ping(ctx); err != nil {
		log.WithError(err).Warn("Redis unreachable, falling back to in-memory cache")
		rc.Close()
		return cache.NewMemoryCache(cfg.CacheTTL)
	}
	log.WithField("addr", cfg.RedisAddr).Info("Using Redis cache")
	return rc
}

func main() {
	// Initialize logger
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	storage, err := openStorage(cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize %s store: %v", cfg.DBDriver, err)
	}
	defer storage.Close()

	engine, err := arrears.NewEngine(cfg.AccrualPeriodDays)
	if err != nil {
		log.Fatalf("Invalid accrual period: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := NewServer(storage, openCache(ctx, cfg, log), engine, log)

	// Nightly arrears sweep
	sweeper := sweep.NewSweeper(storage, engine, log)
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.SweepSchedule, func() {
		log.Info("Running arrears sweep...")
		if _, err := sweeper.Run(ctx, time.Now().UTC()); err != nil {
			log.WithError(err).Error("Arrears sweep finished with errors")
		}
	})
	if err != nil {
		log.Fatalf("Invalid SWEEP_SCHEDULE %q: %v", cfg.SweepSchedule, err)
	}
	scheduler.Start()

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Server starting on %s (accrual period %d days)", cfg.Addr(), cfg.AccrualPeriodDays)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Errorf("Server failed: %v", err)
	case <-ctx.Done():
		log.Info("Shutting down server...")
	}

	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error during server shutdown: %v", err)
	}
	log.Info("Server exited")
}
