package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionLockTTL bounds how long a crashed holder can keep a session locked.
const SessionLockTTL = 30 * time.Second

// SessionLock serialises writers of one session across the API and the
// workers. Holders identify themselves with an owner token and only the
// owner can release.
type SessionLock struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionLock creates a lock over rdb using SessionLockTTL.
func NewSessionLock(rdb *redis.Client) *SessionLock {
	return &SessionLock{rdb: rdb, ttl: SessionLockTTL}
}

// LockKey is the Redis key guarding a session.
func LockKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session-lock:%s", sessionID.String())
}

// Acquire returns true if owner now holds the lock, false if someone else
// does.
func (l *SessionLock) Acquire(ctx context.Context, sessionID uuid.UUID, owner string) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, LockKey(sessionID), owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release deletes the lock only if owner holds it.
func (l *SessionLock) Release(ctx context.Context, sessionID uuid.UUID, owner string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{LockKey(sessionID)}, owner).Err(); err != nil {
		return fmt.Errorf("failed to release session lock: %w", err)
	}
	return nil
}
