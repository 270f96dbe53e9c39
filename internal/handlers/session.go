package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/enlisted/pkg/battle"
	"github.com/jwebster45206/enlisted/pkg/economy"
	"github.com/jwebster45206/enlisted/pkg/enlistment"
	"github.com/jwebster45206/enlisted/pkg/host"
	"github.com/jwebster45206/enlisted/pkg/menu"
	"github.com/jwebster45206/enlisted/pkg/queue"
	"github.com/jwebster45206/enlisted/pkg/session"
	"github.com/jwebster45206/enlisted/pkg/storage"
)

const maxBodyBytes = 1 << 20

var (
	// LockWait is how long a write waits for another holder of the session
	// lock before giving up with 503.
	LockWait = 2 * time.Second
	lockPoll = 50 * time.Millisecond
)

// Enqueuer accepts host events for the worker.
type Enqueuer interface {
	EnqueueRequest(ctx context.Context, req *queue.Request) error
}

// Locker is the per-session write lock the workers also take.
type Locker interface {
	Acquire(ctx context.Context, sessionID uuid.UUID, owner string) (bool, error)
	Release(ctx context.Context, sessionID uuid.UUID, owner string) error
}

// collector keeps the events raised while serving one request.
type collector struct {
	enlistment.Recorder
	Decisions []battle.Decision
}

func (c *collector) OnBattleParticipationDecided(d battle.Decision) {
	c.Decisions = append(c.Decisions, d)
}

// Raised is the events a request caused, returned alongside its result.
type Raised struct {
	StatusChanges []enlistment.StatusChange `json:"status_changes,omitempty"`
	Anomalies     []enlistment.Anomaly      `json:"anomalies,omitempty"`
	Decisions     []battle.Decision         `json:"decisions,omitempty"`
}

func (c *collector) raised() Raised {
	return Raised{StatusChanges: c.Changes, Anomalies: c.Anomalies, Decisions: c.Decisions}
}

type CreateSessionRequest struct {
	Policy string `json:"policy,omitempty"`
}

type WorldRequest struct {
	World *host.Snapshot `json:"world,omitempty"`
}

type CommandRequest struct {
	session.Command
	World *host.Snapshot `json:"world,omitempty"`
}

type CommandResponse struct {
	Result session.CommandResult `json:"result"`
	Query  session.Query         `json:"query"`
	Joins  []host.Join           `json:"joins,omitempty"`
	Raised
}

type EncounterRequest struct {
	Encounter battle.Encounter `json:"encounter"`
	World     *host.Snapshot   `json:"world,omitempty"`
}

type EncounterResponse struct {
	Decision battle.Decision `json:"decision"`
	Allows   bool            `json:"allows"`
	Joins    []host.Join     `json:"joins,omitempty"`
	Raised
}

type MenuRequest struct {
	menu.Request
	World *host.Snapshot `json:"world,omitempty"`
}

type EconomyResponse struct {
	Report      economy.Report `json:"report"`
	IncomeLines []economy.Line `json:"income_lines"`
	DailyWage   int            `json:"daily_wage"`
}

type EventRequest struct {
	Event session.Event  `json:"event"`
	World *host.Snapshot `json:"world,omitempty"`
	Sync  bool           `json:"sync,omitempty"` // apply now instead of queueing
}

type EventQueuedResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

type EventResponse struct {
	Result session.EventResult `json:"result"`
	Query  session.Query       `json:"query"`
	Raised
}

type RestoreResponse struct {
	Query session.Query `json:"query"`
	Raised
}

type SessionHandler struct {
	storage storage.Storage
	queue   Enqueuer
	locker  Locker
	policy  string
	logger  *slog.Logger
}

// NewSessionHandler serves sessions. A nil queue applies host events
// synchronously.
func NewSessionHandler(st storage.Storage, q Enqueuer, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SessionHandler{
		storage: st,
		queue:   q,
		logger:  logger,
	}
}

// WithDefaultPolicy sets the policy used when a create request names none.
// Returns the SessionHandler for method chaining
func (h *SessionHandler) WithDefaultPolicy(name string) *SessionHandler {
	h.policy = name
	return h
}

// WithLocker makes every write take the session lock first. Without one,
// writes are only serialised within this process by the caller.
// Returns the SessionHandler for method chaining
func (h *SessionHandler) WithLocker(l Locker) *SessionHandler {
	h.locker = l
	return h
}

// ServeHTTP handles HTTP requests for sessions
// Routes:
// POST   /v1/sessions                  - Create a session
// GET    /v1/sessions/{id}             - Read the stored record
// DELETE /v1/sessions/{id}             - Delete a session
// POST   /v1/sessions/{id}/commands    - Apply a command
// POST   /v1/sessions/{id}/queries     - Answer every query
// POST   /v1/sessions/{id}/encounters  - Decide encounter participation
// POST   /v1/sessions/{id}/menus       - Route a top-level menu
// POST   /v1/sessions/{id}/economy     - Economy isolation report
// POST   /v1/sessions/{id}/events      - Queue (or apply) a host event
// GET    /v1/sessions/{id}/save        - Save data
// POST   /v1/sessions/{id}/restore     - Restore save data
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions"), "/")
	if path == "" {
		if r.Method != http.MethodPost {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
			return
		}
		h.handleCreate(w, r)
		return
	}

	parts := strings.Split(path, "/")
	if len(parts) > 2 {
		writeError(w, h.logger, http.StatusNotFound, "Not found")
		return
	}
	id, err := uuid.Parse(parts[0])
	if err != nil {
		h.logger.Warn("Invalid session ID", "id", parts[0], "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.handleRead(w, r, id)
		case http.MethodDelete:
			h.handleDelete(w, r, id)
		default:
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET, DELETE")
		}
		return
	}

	action := parts[1]
	want := http.MethodPost
	if action == "save" {
		want = http.MethodGet
	}
	if r.Method != want {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only "+want+" is supported.")
		return
	}

	switch action {
	case "commands":
		h.handleCommand(w, r, id)
	case "queries":
		h.handleQuery(w, r, id)
	case "encounters":
		h.handleEncounter(w, r, id)
	case "menus":
		h.handleMenu(w, r, id)
	case "economy":
		h.handleEconomy(w, r, id)
	case "events":
		h.handleEvent(w, r, id)
	case "save":
		h.handleSave(w, r, id)
	case "restore":
		h.handleRestore(w, r, id)
	default:
		writeError(w, h.logger, http.StatusNotFound, "Not found")
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func (h *SessionHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	h.logger.Warn("Invalid request body", "error", err, "path", r.URL.Path)
	writeError(w, h.logger, http.StatusBadRequest, "Invalid request body: "+err.Error())
	return false
}

// lock takes the session lock for a load-modify-commit, waiting up to
// LockWait. It writes the error response and returns false when the lock
// cannot be had. The returned func releases it.
func (h *SessionHandler) lock(w http.ResponseWriter, r *http.Request, id uuid.UUID) (func(), bool) {
	if h.locker == nil {
		return func() {}, true
	}
	owner := "api-" + uuid.New().String()
	ctx, cancel := context.WithTimeout(r.Context(), LockWait)
	defer cancel()

	for {
		ok, err := h.locker.Acquire(ctx, id, owner)
		if err != nil {
			h.logger.Error("Failed to lock session", "error", err, "session_id", id.String())
			writeError(w, h.logger, http.StatusInternalServerError, "Failed to lock session")
			return nil, false
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			h.logger.Warn("Session busy", "session_id", id.String())
			w.Header().Set("Retry-After", "1")
			writeError(w, h.logger, http.StatusServiceUnavailable, "Session is busy, try again")
			return nil, false
		case <-time.After(lockPoll):
		}
	}

	return func() {
		// The request context may already be done; release regardless.
		if err := h.locker.Release(context.WithoutCancel(r.Context()), id, owner); err != nil {
			h.logger.Error("Failed to unlock session", "error", err, "session_id", id.String())
		}
	}, true
}

// open loads the session, writing the error response when it cannot.
func (h *SessionHandler) open(w http.ResponseWriter, r *http.Request, id uuid.UUID, world *host.Snapshot, l session.Listener) (*session.Session, bool) {
	s, err := storage.OpenSession(r.Context(), h.storage, id, world, l, h.logger)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "Session not found")
			return nil, false
		}
		h.logger.Error("Failed to open session", "error", err, "session_id", id.String())
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to open session")
		return nil, false
	}
	return s, true
}

func (h *SessionHandler) commit(w http.ResponseWriter, r *http.Request, s *session.Session) bool {
	if err := storage.CommitSession(r.Context(), h.storage, s); err != nil {
		h.logger.Error("Failed to save session", "error", err, "session_id", s.Record.ID.String())
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to save session")
		return false
	}
	return true
}

func (h *SessionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Policy == "" {
		req.Policy = h.policy
	}

	if _, err := h.storage.GetPolicy(r.Context(), req.Policy); err != nil {
		if errors.Is(err, storage.ErrPolicyNotFound) {
			writeError(w, h.logger, http.StatusBadRequest, "Unknown policy: "+req.Policy)
			return
		}
		h.logger.Error("Failed to load policy", "error", err, "policy", req.Policy)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load policy")
		return
	}

	rec := session.NewRecord(req.Policy)
	if err := h.storage.SaveSession(r.Context(), rec); err != nil {
		h.logger.Error("Failed to save new session", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to create session")
		return
	}

	h.logger.Info("Session created", "session_id", rec.ID.String(), "policy", rec.PolicyName)
	writeJSON(w, h.logger, http.StatusCreated, rec)
}

func (h *SessionHandler) handleRead(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	rec, err := h.storage.LoadSession(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load session", "error", err, "session_id", id.String())
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to load session")
		return
	}
	if rec == nil {
		writeError(w, h.logger, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, rec)
}

func (h *SessionHandler) handleDelete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.storage.DeleteSession(r.Context(), id); err != nil {
		h.logger.Error("Failed to delete session", "error", err, "session_id", id.String())
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	h.logger.Info("Session deleted", "session_id", id.String())
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) handleCommand(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req CommandRequest
	if !h.decode(w, r, &req) {
		return
	}
	cmdType, err := session.ParseCommandType(string(req.Type))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	req.Type = cmdType

	unlock, ok := h.lock(w, r, id)
	if !ok {
		return
	}
	defer unlock()

	c := &collector{}
	s, ok := h.open(w, r, id, req.World, c)
	if !ok {
		return
	}

	result, err := s.Execute(req.Command)
	if err != nil {
		// Load-time corrections are still worth keeping
		if len(c.Anomalies) > 0 && !h.commit(w, r, s) {
			return
		}
		h.logger.Info("Command rejected", "command", req.Type, "error", err, "session_id", id.String())
		writeRejection(w, h.logger, err)
		return
	}
	if !h.commit(w, r, s) {
		return
	}

	writeJSON(w, h.logger, http.StatusOK, CommandResponse{
		Result: result,
		Query:  s.Query(),
		Joins:  s.World.Joins,
		Raised: c.raised(),
	})
}

func (h *SessionHandler) handleQuery(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req WorldRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, ok := h.open(w, r, id, req.World, nil)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, s.Query())
}

func (h *SessionHandler) handleEncounter(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req EncounterRequest
	if !h.decode(w, r, &req) {
		return
	}
	unlock, ok := h.lock(w, r, id)
	if !ok {
		return
	}
	defer unlock()

	c := &collector{}
	s, ok := h.open(w, r, id, req.World, c)
	if !ok {
		return
	}

	d := s.Coordinator.DecideEncounter(req.Encounter)
	// Deciding can join a battle or clear a stale reserve flag
	if !h.commit(w, r, s) {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, EncounterResponse{
		Decision: d,
		Allows:   d.Allows(),
		Joins:    s.World.Joins,
		Raised:   c.raised(),
	})
}

func (h *SessionHandler) handleMenu(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req MenuRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Menu == "" {
		writeError(w, h.logger, http.StatusBadRequest, "menu is required")
		return
	}
	unlock, ok := h.lock(w, r, id)
	if !ok {
		return
	}
	defer unlock()

	s, ok := h.open(w, r, id, req.World, nil)
	if !ok {
		return
	}

	route := s.Router.Route(req.Request)
	if route.Cleanup && !h.commit(w, r, s) {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, route)
}

func (h *SessionHandler) handleEconomy(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req WorldRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, ok := h.open(w, r, id, req.World, nil)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, EconomyResponse{
		Report:      s.Economy.Report(),
		IncomeLines: s.Economy.IncomeLines(),
		DailyWage:   s.Economy.DailyWage(),
	})
}

func (h *SessionHandler) handleEvent(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req EventRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Event.Type == "" {
		writeError(w, h.logger, http.StatusBadRequest, "event.type is required")
		return
	}

	if h.queue != nil && !req.Sync {
		qr := queue.NewHostEventRequest(id, req.Event, req.World)
		if err := h.queue.EnqueueRequest(r.Context(), qr); err != nil {
			h.logger.Error("Failed to enqueue host event", "error", err, "session_id", id.String())
			writeError(w, h.logger, http.StatusInternalServerError, "Failed to queue event")
			return
		}
		writeJSON(w, h.logger, http.StatusAccepted, EventQueuedResponse{RequestID: qr.RequestID, Status: "queued"})
		return
	}

	unlock, ok := h.lock(w, r, id)
	if !ok {
		return
	}
	defer unlock()

	c := &collector{}
	s, ok := h.open(w, r, id, req.World, c)
	if !ok {
		return
	}
	result, err := s.HandleEvent(req.Event)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if !h.commit(w, r, s) {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, EventResponse{Result: result, Query: s.Query(), Raised: c.raised()})
}

func (h *SessionHandler) handleSave(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	s, ok := h.open(w, r, id, nil, nil)
	if !ok {
		return
	}
	data, err := s.Save()
	if err != nil {
		h.logger.Error("Failed to encode save data", "error", err, "session_id", id.String())
		writeError(w, h.logger, http.StatusInternalServerError, "Failed to encode save data")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("Failed to write save data", "error", err)
	}
}

func (h *SessionHandler) handleRestore(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if _, err := enlistment.DecodeSave(data); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}

	unlock, ok := h.lock(w, r, id)
	if !ok {
		return
	}
	defer unlock()

	c := &collector{}
	s, ok := h.open(w, r, id, nil, c)
	if !ok {
		return
	}
	if err := s.Restore(data); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
		return
	}
	if !h.commit(w, r, s) {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, RestoreResponse{Query: s.Query(), Raised: c.raised()})
}
