package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"caex-inspector-backend/config"
	"caex-inspector-backend/internal/answer"
	"caex-inspector-backend/internal/api"
	"caex-inspector-backend/internal/carryforward"
	"caex-inspector-backend/internal/db"
	"caex-inspector-backend/internal/fleet"
	"caex-inspector-backend/internal/gate"
	"caex-inspector-backend/internal/lifecycle"
	"caex-inspector-backend/internal/notification"
	"caex-inspector-backend/internal/override"
	"caex-inspector-backend/internal/photo"
	"caex-inspector-backend/internal/report"
	"caex-inspector-backend/internal/store"
	"caex-inspector-backend/internal/watch"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Log)
	logger.WithField("path", configPath).Info("configuration loaded")

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	hub := watch.NewHub(logger)
	overrides := override.New(cfg.OverrideCache.TTL, cfg.OverrideCache.Cleanup)

	photos, err := photo.New(cfg.Photos.Dir, cfg.Photos.ThumbnailWidth)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize photo storage")
	}
	reports, err := report.NewWriter(cfg.Reports.Dir)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize report writer")
	}

	var webpushOptions *webpush.Options
	var notifier lifecycle.Notifier
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions, logger)
		pool.Start(ctx)
		notifier = pool
		logger.WithField("workers", cfg.WorkerPool.Size).Info("push notifications enabled")
	} else {
		logger.Warn("VAPID keys are not configured, push notifications disabled")
	}

	svc := api.Services{
		Store:     appStore,
		Fleet:     fleet.NewService(appStore, cfg.Equipment, hub, overrides, photos, logger),
		Lifecycle: lifecycle.NewManager(appStore, overrides, hub, notifier, photos, logger),
		Answers:   answer.NewService(appStore, overrides, hub, photos, logger),
		Gate:      gate.New(appStore),
		Carry:     carryforward.NewResolver(appStore, hub),
		Reports:   reports,
		Hub:       hub,
	}
	router := api.NewRouter(api.NewHandler(svc, webpushOptions, logger), cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server ListenAndServe")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("HTTP server Shutdown")
	}

	logger.Info("server gracefully stopped")
}
