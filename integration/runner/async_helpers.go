package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/internal/handlers"
	"github.com/jwebster45206/enlisted/pkg/host"
	"github.com/jwebster45206/enlisted/pkg/session"
)

var (
	// PollInterval is how often to check the session for updates
	PollInterval = 250 * time.Millisecond
	// EventTimeout is max time to wait for the worker to apply a host event
	EventTimeout = 15 * time.Second
)

// PostEvent sends a host event. When the API queues it the request_id is
// returned and applied is false; when the API applies it inline (no queue
// configured) applied is true.
func PostEvent(ctx context.Context, client *http.Client, baseURL string, sessionID uuid.UUID, ev session.Event, world *host.Snapshot) (requestID string, applied bool, err error) {
	reqBody, err := json.Marshal(handlers.EventRequest{Event: ev, World: world})
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal event request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/sessions/%s/events", baseURL, sessionID.String())
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", false, fmt.Errorf("failed to create event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("failed to send event request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return "", true, nil
	case http.StatusAccepted:
		var queued handlers.EventQueuedResponse
		if err := json.NewDecoder(resp.Body).Decode(&queued); err != nil {
			return "", false, fmt.Errorf("failed to parse event response: %w", err)
		}
		return queued.RequestID, false, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return "", false, fmt.Errorf("events endpoint returned %d: %s", resp.StatusCode, string(body))
	}
}

// GetRecord retrieves the stored session record
func GetRecord(ctx context.Context, client *http.Client, baseURL string, sessionID uuid.UUID) (*session.Record, error) {
	url := fmt.Sprintf("%s/v1/sessions/%s", baseURL, sessionID.String())
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create session request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send session request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("session endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var rec session.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &rec, nil
}

// PollForEventProcessed polls the session until its updated_at moves past
// since. The worker commits every event it handles, even a no-op.
func PollForEventProcessed(ctx context.Context, client *http.Client, baseURL string, sessionID uuid.UUID, since time.Time) (*session.Record, error) {
	timeout := time.After(EventTimeout)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, fmt.Errorf("timeout waiting for host event to be processed (waited %v)", EventTimeout)
		case <-ticker.C:
			rec, err := GetRecord(ctx, client, baseURL, sessionID)
			if err != nil {
				// Keep polling
				continue
			}
			if rec.UpdatedAt.After(since) {
				return rec, nil
			}
		}
	}
}
