package queue

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/pkg/host"
	"github.com/jwebster45206/enlisted/pkg/session"
)

// RequestType identifies the type of request in the queue
type RequestType string

const (
	// RequestTypeHostEvent is a host signal forwarded by the adapter
	RequestTypeHostEvent RequestType = "host_event"
)

// Request represents a unified request in the queue
type Request struct {
	RequestID string      `json:"request_id"`
	Type      RequestType `json:"type"`
	SessionID uuid.UUID   `json:"session_id"`

	// Host event fields
	Event session.Event  `json:"event"`
	World *host.Snapshot `json:"world,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewHostEventRequest builds a queued host event with a fresh request ID.
func NewHostEventRequest(sessionID uuid.UUID, ev session.Event, world *host.Snapshot) *Request {
	return &Request{
		RequestID:  uuid.New().String(),
		Type:       RequestTypeHostEvent,
		SessionID:  sessionID,
		Event:      ev,
		World:      world,
		EnqueuedAt: time.Now(),
	}
}

// UnmarshalJSON deserializes the request from JSON in Redis
func (r *Request) UnmarshalJSON(data []byte) error {
	type Alias Request
	aux := &struct {
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.SessionID == uuid.Nil {
		return errors.New("request has no session_id")
	}
	return nil
}

// ToJSON converts the request to JSON bytes for Redis
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a request from JSON bytes
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
