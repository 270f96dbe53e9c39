package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/enlisted/pkg/storage"
)

type PolicyHandler struct {
	log     *slog.Logger
	storage storage.Storage
}

func NewPolicyHandler(log *slog.Logger, st storage.Storage) *PolicyHandler {
	return &PolicyHandler{
		log:     log,
		storage: st,
	}
}

// ServeHTTP serves balance policies
// GET /v1/policies        - list policy names
// GET /v1/policies/{name} - one policy
func (h *PolicyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, h.log, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
		return
	}

	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/policies"), "/")
	if name == "" {
		names, err := h.storage.ListPolicies(r.Context())
		if err != nil {
			h.log.Error("Failed to list policies", "error", err)
			writeError(w, h.log, http.StatusInternalServerError, "Failed to list policies")
			return
		}
		writeJSON(w, h.log, http.StatusOK, map[string][]string{"policies": names})
		return
	}

	if strings.Contains(name, "..") || strings.Contains(name, "/") {
		writeError(w, h.log, http.StatusBadRequest, "Invalid policy name")
		return
	}

	policy, err := h.storage.GetPolicy(r.Context(), strings.TrimSuffix(name, ".json"))
	if err != nil {
		if errors.Is(err, storage.ErrPolicyNotFound) {
			writeError(w, h.log, http.StatusNotFound, "Policy not found")
			return
		}
		h.log.Error("Failed to get policy", "error", err, "name", name)
		writeError(w, h.log, http.StatusInternalServerError, "Failed to retrieve policy")
		return
	}
	writeJSON(w, h.log, http.StatusOK, policy)
}
