package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/session"
)

// ErrPolicyNotFound is returned when a named balance policy does not exist.
var ErrPolicyNotFound = errors.New("policy not found")

// Storage defines a unified interface for all storage operations
// This interface combines session persistence (Redis or SQLite) with policy loading (filesystem)
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Session operations. LoadSession returns nil, nil when the session does not exist.
	SaveSession(ctx context.Context, rec *session.Record) error
	LoadSession(ctx context.Context, id uuid.UUID) (*session.Record, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error

	// Balance policy operations (filesystem-backed)
	ListPolicies(ctx context.Context) ([]string, error)
	GetPolicy(ctx context.Context, name string) (*enlistment.Policy, error)
}
