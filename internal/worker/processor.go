package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jwebster45206/enlisted/pkg/queue"
	"github.com/jwebster45206/enlisted/pkg/session"
	"github.com/jwebster45206/enlisted/pkg/storage"
)

// EventProcessor applies queued host events to stored sessions.
type EventProcessor struct {
	storage storage.Storage
	logger  *slog.Logger
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(st storage.Storage, logger *slog.Logger) *EventProcessor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &EventProcessor{
		storage: st,
		logger:  logger,
	}
}

// ProcessHostEvent loads the request's session over the request's world,
// applies the event and saves the record. The record is saved even when the
// event only triggered load-time corrections.
func (p *EventProcessor) ProcessHostEvent(ctx context.Context, req *queue.Request, l session.Listener) (session.EventResult, error) {
	if req.Type != queue.RequestTypeHostEvent {
		return session.EventResult{}, fmt.Errorf("unknown request type: %s", req.Type)
	}

	s, err := storage.OpenSession(ctx, p.storage, req.SessionID, req.World, l, p.logger)
	if err != nil {
		return session.EventResult{}, err
	}

	result, err := s.HandleEvent(req.Event)
	if err != nil {
		return result, fmt.Errorf("failed to handle %s: %w", req.Event.Type, err)
	}

	if err := storage.CommitSession(ctx, p.storage, s); err != nil {
		return result, err
	}

	p.logger.Debug("Host event applied",
		"request_id", req.RequestID,
		"session_id", req.SessionID,
		"event", req.Event.Type,
		"changed", result.Changed)
	return result, nil
}
