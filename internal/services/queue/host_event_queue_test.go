package queue

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/pkg/queue"
	"github.com/jwebster45206/enlisted/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	redisURL := "redis://" + mr.Addr()

	client, err := NewClient(redisURL, logger)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create queue client: %v", err)
	}

	return client, mr
}

func TestHostEventQueue_EnqueueAndDequeue(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewHostEventQueue(client, nil)
	ctx := context.Background()
	sessionID := uuid.New()

	events := []session.EventType{
		session.EventBattleStarted,
		session.EventBattleEnded,
		session.EventDailyTick,
	}
	for _, et := range events {
		req := queue.NewHostEventRequest(sessionID, session.Event{Type: et, BattleID: "battle_1"}, nil)
		require.NoError(t, q.EnqueueRequest(ctx, req))
	}

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, depth)

	// FIFO
	for _, want := range events {
		req, err := q.DequeueRequest(ctx)
		require.NoError(t, err)
		require.NotNil(t, req)
		assert.Equal(t, want, req.Event.Type)
		assert.Equal(t, sessionID, req.SessionID)
		assert.Equal(t, queue.RequestTypeHostEvent, req.Type)
	}

	req, err := q.DequeueRequest(ctx)
	require.NoError(t, err)
	assert.Nil(t, req, "empty queue should return nil")
}

func TestHostEventQueue_BlockingDequeue(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewHostEventQueue(client, nil)
	ctx := context.Background()

	req := queue.NewHostEventRequest(uuid.New(), session.Event{Type: session.EventDailyTick}, nil)
	require.NoError(t, q.EnqueueRequest(ctx, req))

	got, err := q.BlockingDequeueRequest(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, req.RequestID, got.RequestID)
}

func TestHostEventQueue_BlockingDequeueCancelled(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewHostEventQueue(client, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := q.BlockingDequeueRequest(ctx, time.Second)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestHostEventQueue_Peek(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewHostEventQueue(client, nil)
	ctx := context.Background()
	sessionID := uuid.New()

	for i := 0; i < 3; i++ {
		req := queue.NewHostEventRequest(sessionID, session.Event{Type: session.EventDailyTick}, nil)
		require.NoError(t, q.EnqueueRequest(ctx, req))
	}
	// Unreadable entries are skipped
	require.NoError(t, client.rdb.RPush(ctx, hostEventsKey, "not json").Err())

	reqs, err := q.Peek(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, reqs, 2)

	reqs, err = q.Peek(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, reqs, 3)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, depth, "peek must not remove anything")
}

func TestHostEventQueue_DequeueRejectsMissingSession(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewHostEventQueue(client, nil)
	require.NoError(t, client.rdb.RPush(context.Background(), hostEventsKey, `{"request_id":"r1","type":"host_event"}`).Err())

	req, err := q.DequeueRequest(context.Background())
	assert.Error(t, err)
	assert.Nil(t, req)
}

func TestHostEventQueue_Fail(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer client.Close()

	q := NewHostEventQueue(client, nil)
	ctx := context.Background()

	req := queue.NewHostEventRequest(uuid.New(), session.Event{Type: "bogus"}, nil)
	require.NoError(t, q.Fail(ctx, req, errors.New("unknown event type")))

	failed, err := q.Failed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, req.RequestID, failed[0].Request.RequestID)
	assert.Equal(t, "unknown event type", failed[0].Error)
	assert.False(t, failed[0].FailedAt.IsZero())
}
