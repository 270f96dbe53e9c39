package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/session"
)

// MockStorage is a mock implementation of Storage for testing
type MockStorage struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID][]byte
	policies  map[string]*enlistment.Policy
	pingError error
	saveError error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage holding the default policy
func NewMockStorage() *MockStorage {
	def := enlistment.DefaultPolicy()
	return &MockStorage{
		sessions: make(map[uuid.UUID][]byte),
		policies: map[string]*enlistment.Policy{def.Name: def},
	}
}

// SetPingSuccess configures the mock to succeed on ping
func (m *MockStorage) SetPingSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = nil
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetSaveError configures the mock to fail on SaveSession
func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

// SaveSession stores a JSON copy of rec so later changes to rec are not seen
func (m *MockStorage) SaveSession(ctx context.Context, rec *session.Record) error {
	if rec == nil {
		return errors.New("session cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	rec.UpdatedAt = time.Now()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	m.sessions[rec.ID] = data
	return nil
}

// LoadSession mocks loading a session
func (m *MockStorage) LoadSession(ctx context.Context, id uuid.UUID) (*session.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, exists := m.sessions[id]
	if !exists {
		return nil, nil // Return nil for not found
	}
	var rec session.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &rec, nil
}

// DeleteSession mocks deleting a session
func (m *MockStorage) DeleteSession(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// ListPolicies mocks listing balance policies
func (m *MockStorage) ListPolicies(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.policies))
	for name := range m.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// GetPolicy mocks getting a policy by name. An empty name means the default policy.
func (m *MockStorage) GetPolicy(ctx context.Context, name string) (*enlistment.Policy, error) {
	if name == "" {
		name = enlistment.DefaultPolicy().Name
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.policies[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, name)
	}
	cp := *p
	return &cp, nil
}

// AddPolicy adds a policy to the mock storage (for testing)
func (m *MockStorage) AddPolicy(p *enlistment.Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.Name] = p
}
