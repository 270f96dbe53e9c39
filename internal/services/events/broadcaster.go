package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/pkg/battle"
	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/session"
	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeStatusChanged        EventType = "enlistment.status_changed"
	EventTypeAnomaly              EventType = "enlistment.anomaly"
	EventTypeParticipationDecided EventType = "battle.participation_decided"
	EventTypeHostEventProcessed   EventType = "host_event.processed"
	EventTypeHostEventFailed      EventType = "host_event.failed"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Channel returns the pub/sub channel for a session
func Channel(sessionID uuid.UUID) string {
	return fmt.Sprintf("enlistment-events:%s", sessionID.String())
}

// Broadcaster publishes events to Redis Pub/Sub
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishHostEventProcessed publishes a host_event.processed event
func (b *Broadcaster) PublishHostEventProcessed(ctx context.Context, sessionID uuid.UUID, requestID string, result session.EventResult) error {
	return b.publish(ctx, sessionID, Event{
		Type:      EventTypeHostEventProcessed,
		RequestID: requestID,
		SessionID: sessionID.String(),
		Data:      result,
	})
}

// PublishHostEventFailed publishes a host_event.failed event
func (b *Broadcaster) PublishHostEventFailed(ctx context.Context, sessionID uuid.UUID, requestID string, errorMsg string) error {
	return b.publish(ctx, sessionID, Event{
		Type:      EventTypeHostEventFailed,
		RequestID: requestID,
		SessionID: sessionID.String(),
		Data: map[string]any{
			"status": "failed",
			"error":  errorMsg,
		},
	})
}

// ForSession returns a listener that publishes everything a session raises
// to that session's channel. Publish errors are logged and dropped.
func (b *Broadcaster) ForSession(ctx context.Context, sessionID uuid.UUID) session.Listener {
	return &sessionPublisher{b: b, ctx: ctx, sessionID: sessionID}
}

type sessionPublisher struct {
	b         *Broadcaster
	ctx       context.Context
	sessionID uuid.UUID
}

func (p *sessionPublisher) OnStatusChanged(c enlistment.StatusChange) {
	p.send(EventTypeStatusChanged, c)
}

func (p *sessionPublisher) OnAnomaly(a enlistment.Anomaly) {
	p.send(EventTypeAnomaly, a)
}

func (p *sessionPublisher) OnBattleParticipationDecided(d battle.Decision) {
	p.send(EventTypeParticipationDecided, d)
}

func (p *sessionPublisher) send(t EventType, data any) {
	_ = p.b.publish(p.ctx, p.sessionID, Event{
		Type:      t,
		SessionID: p.sessionID.String(),
		Data:      data,
	})
}

// publish sends an event to the session-specific channel
func (b *Broadcaster) publish(ctx context.Context, sessionID uuid.UUID, event Event) error {
	channel := Channel(sessionID)

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"request_id", event.RequestID,
	)

	return nil
}
