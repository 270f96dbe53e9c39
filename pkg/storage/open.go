package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/pkg/host"
	"github.com/jwebster45206/enlisted/pkg/session"
)

// ErrSessionNotFound is returned by OpenSession when no record exists.
var ErrSessionNotFound = errors.New("session not found")

// OpenSession loads a record and builds a session over world with its
// balance policy. The load-time sweep runs before returning, so l sees any
// anomalies it corrects. l may be nil.
func OpenSession(ctx context.Context, st Storage, id uuid.UUID, world *host.Snapshot, l session.Listener, logger *slog.Logger) (*session.Session, error) {
	rec, err := st.LoadSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if rec == nil {
		return nil, ErrSessionNotFound
	}

	policy, err := st.GetPolicy(ctx, rec.PolicyName)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy %q: %w", rec.PolicyName, err)
	}

	s := session.New(rec, world, policy, logger)
	if l != nil {
		s.WithListener(l)
	}
	s.Sweep()
	return s, nil
}

// CommitSession stamps and persists the session's record.
func CommitSession(ctx context.Context, st Storage, s *session.Session) error {
	s.Touch()
	if err := st.SaveSession(ctx, s.Record); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
