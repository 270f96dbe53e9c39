package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/enlisted/internal/config"
	"github.com/jwebster45206/enlisted/internal/logger"
	"github.com/jwebster45206/enlisted/internal/services/queue"
	"github.com/jwebster45206/enlisted/internal/storage"
	"github.com/jwebster45206/enlisted/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Enlisted Worker",
		"environment", cfg.Environment,
		"redis_url", cfg.RedisURL,
		"storage", cfg.StorageBackend)

	// Initialize queue service
	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}()

	hostEvents := queue.NewHostEventQueue(queueClient, log)
	log.Info("Queue service initialized successfully")

	// Initialize storage service. The Redis backend shares the queue's client
	// so closing storage is left to the queue client.
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	store, err := storage.FromConfig(storageCtx, cfg, queueClient.GetRedisClient(), log)
	if err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	if cfg.StorageBackend == config.BackendSQLite {
		defer func() {
			if err := store.Close(); err != nil {
				log.Error("Error closing storage", "error", err)
			}
		}()
	}
	log.Info("Storage service initialized successfully")

	processor := worker.NewEventProcessor(store, log)
	w := worker.New(hostEvents, processor, queueClient.GetRedisClient(), log, cfg.WorkerID)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("Worker started, waiting for host events...")

	<-quit
	log.Info("Worker shutdown signal received")

	w.Stop()

	// Give worker time to finish current request
	time.Sleep(2 * time.Second)

	log.Info("Worker exited")
}
