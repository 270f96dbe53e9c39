package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLock(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	lock := NewSessionLock(client.GetRedisClient())
	id := uuid.New()

	ok, err := lock.Acquire(ctx, id, "worker-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, SessionLockTTL, mr.TTL(LockKey(id)))

	ok, err = lock.Acquire(ctx, id, "api-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Only the owner releases
	require.NoError(t, lock.Release(ctx, id, "api-1"))
	assert.True(t, mr.Exists(LockKey(id)))
	require.NoError(t, lock.Release(ctx, id, "worker-1"))
	assert.False(t, mr.Exists(LockKey(id)))

	// A crashed holder's lock expires
	ok, err = lock.Acquire(ctx, id, "worker-2")
	require.NoError(t, err)
	require.True(t, ok)
	mr.FastForward(SessionLockTTL + time.Second)
	ok, err = lock.Acquire(ctx, id, "api-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
