package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/internal/handlers"
	"github.com/jwebster45206/enlisted/pkg/session"
)

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode == http.StatusOK
}

// do sends a JSON request and decodes a JSON response into out.
// A non-2xx status comes back as an error carrying the API's message.
func do(client *http.Client, method, url string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp handlers.ErrorResponse
		if err := json.Unmarshal(raw, &errResp); err != nil || errResp.Error == "" {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(raw))
		}
		if errResp.Code != "" {
			return fmt.Errorf("%s (%s)", errResp.Error, errResp.Code)
		}
		return fmt.Errorf("%s", errResp.Error)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func listPolicies(client *http.Client, baseURL string) ([]string, error) {
	var resp struct {
		Policies []string `json:"policies"`
	}
	if err := do(client, http.MethodGet, baseURL+"/v1/policies", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Policies, nil
}

func createSession(client *http.Client, baseURL, policy string) (*session.Record, error) {
	var rec session.Record
	err := do(client, http.MethodPost, baseURL+"/v1/sessions", handlers.CreateSessionRequest{Policy: policy}, &rec)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func sessionURL(baseURL string, id uuid.UUID, action string) string {
	return baseURL + "/v1/sessions/" + id.String() + "/" + action
}

func getQuery(client *http.Client, baseURL string, id uuid.UUID) (*session.Query, error) {
	var q session.Query
	if err := do(client, http.MethodPost, sessionURL(baseURL, id, "queries"), handlers.WorldRequest{}, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func sendCommand(client *http.Client, baseURL string, id uuid.UUID, cmd session.Command) (*handlers.CommandResponse, error) {
	var resp handlers.CommandResponse
	err := do(client, http.MethodPost, sessionURL(baseURL, id, "commands"), handlers.CommandRequest{Command: cmd}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func getEconomy(client *http.Client, baseURL string, id uuid.UUID) (*handlers.EconomyResponse, error) {
	var resp handlers.EconomyResponse
	if err := do(client, http.MethodPost, sessionURL(baseURL, id, "economy"), handlers.WorldRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// sendEvent queues a host event. The result arrives on the event stream.
func sendEvent(client *http.Client, baseURL string, id uuid.UUID, ev session.Event) (*handlers.EventQueuedResponse, error) {
	var resp handlers.EventQueuedResponse
	if err := do(client, http.MethodPost, sessionURL(baseURL, id, "events"), handlers.EventRequest{Event: ev}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SSEEvent is one server-sent event.
type SSEEvent struct {
	Type string
	Data map[string]any
}

// listenToSSE streams session events until the connection closes.
// The returned channel is closed when the stream ends.
func listenToSSE(baseURL string, id uuid.UUID) (<-chan SSEEvent, error) {
	resp, err := http.Get(baseURL + "/v1/events/sessions/" + id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	ch := make(chan SSEEvent, 16)
	go func() {
		defer close(ch)
		defer func() {
			_ = resp.Body.Close()
		}()

		var eventType string
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				eventType = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				var data map[string]any
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data); err != nil {
					continue
				}
				ch <- SSEEvent{Type: eventType, Data: data}
				eventType = ""
			}
		}
	}()
	return ch, nil
}
