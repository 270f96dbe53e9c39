package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jwebster45206/enlisted/pkg/queue"
	"github.com/redis/go-redis/v9"
)

const (
	hostEventsKey = "host-events"
	failedKey     = "host-events:failed"
)

// FailedRequest is a request the worker gave up on.
type FailedRequest struct {
	Request  *queue.Request `json:"request"`
	Error    string         `json:"error"`
	FailedAt time.Time      `json:"failed_at"`
}

// HostEventQueue is the list of host events waiting for the worker
type HostEventQueue struct {
	client *Client
	logger *slog.Logger
}

func NewHostEventQueue(client *Client, logger *slog.Logger) *HostEventQueue {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HostEventQueue{
		client: client,
		logger: logger,
	}
}

// EnqueueRequest adds a request to the end of the queue
func (q *HostEventQueue) EnqueueRequest(ctx context.Context, req *queue.Request) error {
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}

	if err := q.client.rdb.RPush(ctx, hostEventsKey, data).Err(); err != nil {
		q.logger.Error("Failed to enqueue host event", "error", err, "session_id", req.SessionID)
		return fmt.Errorf("failed to enqueue request: %w", err)
	}

	q.logger.Debug("Enqueued host event",
		"request_id", req.RequestID,
		"session_id", req.SessionID,
		"event", req.Event.Type)
	return nil
}

// DequeueRequest removes and returns the next request
// Returns nil if queue is empty
func (q *HostEventQueue) DequeueRequest(ctx context.Context) (*queue.Request, error) {
	result, err := q.client.rdb.LPop(ctx, hostEventsKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Queue is empty
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}
	return parse(result)
}

// BlockingDequeueRequest waits up to timeout for a request.
// Returns nil when the wait times out
func (q *HostEventQueue) BlockingDequeueRequest(ctx context.Context, timeout time.Duration) (*queue.Request, error) {
	result, err := q.client.rdb.BLPop(ctx, timeout, hostEventsKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, nil // Shutting down or caller deadline
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}
	return parse(result[1])
}

func parse(raw string) (*queue.Request, error) {
	req, err := queue.FromJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}

// Peek returns up to limit queued requests without removing them. A limit of
// zero or less returns everything.
func (q *HostEventQueue) Peek(ctx context.Context, limit int) ([]*queue.Request, error) {
	end := int64(limit - 1)
	if limit <= 0 {
		end = -1 // Get all
	}
	raw, err := q.client.rdb.LRange(ctx, hostEventsKey, 0, end).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to peek requests: %w", err)
	}

	reqs := make([]*queue.Request, 0, len(raw))
	for _, r := range raw {
		req, err := parse(r)
		if err != nil {
			q.logger.Warn("Skipping unreadable queued request", "error", err)
			continue
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Depth returns the number of queued requests
func (q *HostEventQueue) Depth(ctx context.Context) (int, error) {
	count, err := q.client.rdb.LLen(ctx, hostEventsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(count), nil
}

// Fail records a request the worker could not apply
func (q *HostEventQueue) Fail(ctx context.Context, req *queue.Request, cause error) error {
	data, err := json.Marshal(FailedRequest{Request: req, Error: cause.Error(), FailedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to serialize failed request: %w", err)
	}
	if err := q.client.rdb.RPush(ctx, failedKey, data).Err(); err != nil {
		return fmt.Errorf("failed to record failed request: %w", err)
	}
	return nil
}

// Failed returns the recorded failures, oldest first
func (q *HostEventQueue) Failed(ctx context.Context) ([]FailedRequest, error) {
	raw, err := q.client.rdb.LRange(ctx, failedKey, 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read failed requests: %w", err)
	}
	out := make([]FailedRequest, 0, len(raw))
	for _, r := range raw {
		var f FailedRequest
		if err := json.Unmarshal([]byte(r), &f); err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}
