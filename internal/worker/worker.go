package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/internal/services"
	"github.com/jwebster45206/enlisted/internal/services/events"
	"github.com/jwebster45206/enlisted/internal/services/queue"
	queuePkg "github.com/jwebster45206/enlisted/pkg/queue"
	"github.com/redis/go-redis/v9"
)

const (
	workerTimeout = 5 * time.Second
	doneTTL       = 24 * time.Hour
)

// Worker drains the host event queue. Events for one session are applied
// by one worker at a time.
type Worker struct {
	id          string
	queue       *queue.HostEventQueue
	processor   *EventProcessor
	broadcaster *events.Broadcaster
	lock        *queue.SessionLock
	cache       services.Cache
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a new worker instance
func New(q *queue.HostEventQueue, processor *EventProcessor, redisClient *redis.Client, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Worker{
		id:          workerID,
		queue:       q,
		processor:   processor,
		broadcaster: events.NewBroadcaster(redisClient, log),
		lock:        queue.NewSessionLock(redisClient),
		cache:       services.NewRedisService(redisClient, log),
		log:         log.With("worker_id", workerID),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// WithCache replaces the cache used to skip requests already applied.
// Returns the Worker for method chaining
func (w *Worker) WithCache(c services.Cache) *Worker {
	w.cache = c
	return w
}

// ID returns the worker's lock owner ID
func (w *Worker) ID() string { return w.id }

// Start begins processing requests from the queue
func (w *Worker) Start() error {
	w.log.Info("Worker starting")

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down")
			return nil
		default:
			if err := w.processNextRequest(); err != nil {
				w.log.Error("Error processing request", "error", err)
				// Continue processing even on error
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested")
	w.cancel()
}

// processNextRequest pulls the next request from the queue and processes it
func (w *Worker) processNextRequest() error {
	// Block waiting for next request (timeout to check for shutdown)
	ctx, cancel := context.WithTimeout(w.ctx, workerTimeout)
	defer cancel()

	req, err := w.queue.BlockingDequeueRequest(ctx, workerTimeout)
	if err != nil {
		return fmt.Errorf("failed to dequeue request: %w", err)
	}
	if req == nil {
		return nil
	}

	w.log.Info("Received request from queue",
		"request_id", req.RequestID,
		"event", req.Event.Type,
		"session_id", req.SessionID.String(),
	)

	locked, err := w.acquireSessionLock(req.SessionID)
	if err != nil {
		return err
	}
	if !locked {
		// Another worker holds this session. Re-queue at the end.
		w.log.Info("Session already locked, re-queueing request",
			"request_id", req.RequestID,
			"session_id", req.SessionID.String(),
		)
		if err := w.queue.EnqueueRequest(w.ctx, req); err != nil {
			return fmt.Errorf("failed to re-queue request: %w", err)
		}
		return nil
	}

	defer w.releaseSessionLock(req.SessionID)
	return w.processRequest(req)
}

func doneKey(requestID string) string {
	return fmt.Sprintf("host-event-done:%s", requestID)
}

// acquireSessionLock returns true if the lock was acquired, false if
// another holder has it
func (w *Worker) acquireSessionLock(sessionID uuid.UUID) (bool, error) {
	return w.lock.Acquire(w.ctx, sessionID, w.id)
}

// releaseSessionLock deletes the lock only if this worker owns it
func (w *Worker) releaseSessionLock(sessionID uuid.UUID) {
	if err := w.lock.Release(w.ctx, sessionID, w.id); err != nil {
		w.log.Error("Failed to release session lock", "error", err, "session_id", sessionID.String())
	}
}

// processRequest applies one request and publishes the outcome
func (w *Worker) processRequest(req *queuePkg.Request) error {
	start := time.Now()

	if req.RequestID != "" {
		done, err := w.cache.Exists(w.ctx, doneKey(req.RequestID))
		if err != nil {
			w.log.Warn("Failed to check for duplicate request", "error", err, "request_id", req.RequestID)
		} else if done {
			w.log.Info("Skipping duplicate request", "request_id", req.RequestID)
			return nil
		}
	}

	listener := w.broadcaster.ForSession(w.ctx, req.SessionID)
	result, err := w.processor.ProcessHostEvent(w.ctx, req, listener)
	if err != nil {
		w.log.Error("Failed to process host event",
			"error", err,
			"request_id", req.RequestID,
			"session_id", req.SessionID.String(),
		)
		if qErr := w.queue.Fail(w.ctx, req, err); qErr != nil {
			w.log.Error("Failed to record failed request", "error", qErr)
		}
		if pubErr := w.broadcaster.PublishHostEventFailed(w.ctx, req.SessionID, req.RequestID, err.Error()); pubErr != nil {
			w.log.Error("Failed to publish failure event", "error", pubErr)
		}
		return fmt.Errorf("failed to process host event: %w", err)
	}

	if req.RequestID != "" {
		if err := w.cache.Set(w.ctx, doneKey(req.RequestID), w.id, doneTTL); err != nil {
			w.log.Warn("Failed to mark request done", "error", err, "request_id", req.RequestID)
		}
	}

	w.log.Info("Host event processed successfully",
		"request_id", req.RequestID,
		"event", req.Event.Type,
		"changed", result.Changed,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if err := w.broadcaster.PublishHostEventProcessed(w.ctx, req.SessionID, req.RequestID, result); err != nil {
		w.log.Error("Failed to publish completion event", "error", err)
	}
	return nil
}
