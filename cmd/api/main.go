package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/enlisted/internal/config"
	"github.com/jwebster45206/enlisted/internal/handlers"
	"github.com/jwebster45206/enlisted/internal/logger"
	"github.com/jwebster45206/enlisted/internal/middleware"
	"github.com/jwebster45206/enlisted/internal/services"
	"github.com/jwebster45206/enlisted/internal/services/queue"
	"github.com/jwebster45206/enlisted/internal/storage"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Enlisted API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"storage", cfg.StorageBackend,
		"policy", cfg.Policy)

	// Redis carries the host event queue and pub/sub; with the SQLite backend
	// it is optional and events are applied synchronously without it.
	var rdb *redis.Client
	if client, err := services.NewRedisClient(cfg.RedisURL); err != nil {
		log.Warn("Invalid REDIS_URL", "error", err)
	} else {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(pingCtx).Err()
		pingCancel()
		switch {
		case err == nil:
			rdb = client
			log.Info("Redis connection established successfully")
		case cfg.StorageBackend == config.BackendRedis:
			// Storage will keep retrying below
			rdb = client
		default:
			log.Warn("Redis unavailable, host events will be applied synchronously", "error", err)
			_ = client.Close()
		}
	}

	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	store, err := storage.FromConfig(storageCtx, cfg, rdb, log)
	if err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage connection established successfully")

	mux := http.NewServeMux()

	var cache services.Cache
	var enqueuer handlers.Enqueuer
	var locker handlers.Locker
	if rdb != nil {
		cache = services.NewRedisService(rdb, log)
		enqueuer = queue.NewHostEventQueue(queue.NewClientFrom(rdb, log), log)
		locker = queue.NewSessionLock(rdb)

		eventsHandler := handlers.NewEventsHandler(rdb, log)
		mux.Handle("/v1/events/", eventsHandler)
	}

	healthHandler := handlers.NewHealthHandler(store, cache, log)
	mux.Handle("/health", healthHandler)

	sessionHandler := handlers.NewSessionHandler(store, enqueuer, log).
		WithDefaultPolicy(cfg.Policy).
		WithLocker(locker)
	mux.Handle("/v1/sessions", sessionHandler)
	mux.Handle("/v1/sessions/", sessionHandler)

	policyHandler := handlers.NewPolicyHandler(log, store)
	mux.Handle("/v1/policies", policyHandler)
	mux.Handle("/v1/policies/", policyHandler)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     middleware.Logger(mux, log),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the SSE endpoint holds connections open
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	// Close storage connection (closes the shared Redis client too)
	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}
	if rdb != nil && cfg.StorageBackend != config.BackendRedis {
		if err := rdb.Close(); err != nil {
			log.Error("Error closing Redis connection", "error", err)
		}
	}

	log.Info("Server exited")
}
