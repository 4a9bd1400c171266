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

	"go.uber.org/zap"

	"github.com/tgienger/taskmanager/internal/api"
	"github.com/tgienger/taskmanager/internal/config"
	"github.com/tgienger/taskmanager/internal/db"
	"github.com/tgienger/taskmanager/internal/events"
	"github.com/tgienger/taskmanager/internal/logger"
)

// Version information set via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("stmd %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting stmd...",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr),
	)

	dsn := cfg.DB.DSN
	if dsn == "" {
		dsn, err = db.DefaultPath()
		if err != nil {
			log.Fatal("Could not resolve database path", zap.Error(err))
		}
	}

	store, err := db.Open(db.Options{DSN: dsn, MaxOpenConns: cfg.DB.MaxOpenConns}, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 5*time.Second)
	user, err := store.EnsureDefaultUser(seedCtx)
	seedCancel()
	if err != nil {
		log.Fatal("Seeding default user failed", zap.Error(err))
	}
	log.Info("Default user ready", zap.Int64("user_id", user.ID), zap.String("email", user.Email))

	countCtx, countCancel := context.WithTimeout(context.Background(), 5*time.Second)
	count, err := store.TaskCount(countCtx)
	countCancel()
	if err != nil {
		log.Fatal("Counting tasks failed", zap.Error(err))
	}
	log.Info("Task store loaded", zap.Stringer("dialect", store.Dialect()), zap.Int("tasks", count))

	var publisher events.Publisher = events.Nop{}
	if cfg.MQ.URL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.MQ.URL)
		if err != nil {
			// Events are optional; the API keeps working without them.
			log.Warn("Event publisher unavailable, continuing without events", zap.Error(err))
		} else {
			publisher = amqpPub
			log.Info("Publishing task events", zap.String("exchange", events.ExchangeName))
		}
	}

	svc := api.NewTaskService(store, publisher, log)
	handler := api.NewTaskHandler(svc, log)
	router := api.NewRouter(handler, api.RouterConfig{AllowedOrigins: cfg.CORS.AllowedOrigins}, store, log)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down stmd gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}

	if err := publisher.Close(); err != nil {
		log.Warn("Closing event publisher failed", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		log.Warn("Closing task store failed", zap.Error(err))
	}

	log.Info("stmd shutdown complete")
}
