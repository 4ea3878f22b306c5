package api

import (
	"encoding/json"
	"net/http"

	"github.com/dennisdiepolder/cdrboard/backend/internal/storage"
	"github.com/dennisdiepolder/cdrboard/backend/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// ArchiveHandler serves the archived call drill-down
type ArchiveHandler struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewArchiveHandler creates a new ArchiveHandler
func NewArchiveHandler(store storage.Store, logger zerolog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		store:  store,
		logger: logger.With().Str("component", "archive_handler").Logger(),
	}
}

// GetAgentCalls returns archived calls for the given agent on a specific date
// GET /api/agents/{agentId}/calls?date=YYYY-MM-DD
func (h *ArchiveHandler) GetAgentCalls(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		http.Error(w, "agentId is required", http.StatusBadRequest)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		http.Error(w, "date query parameter is required (YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	calls, err := h.store.GetAgentCallsByDate(agentID, date)
	if err != nil {
		h.logger.Error().Err(err).
			Str("agent_id", agentID).
			Str("date", date).
			Msg("failed to get archived calls")
		http.Error(w, "failed to retrieve calls", http.StatusInternalServerError)
		return
	}

	if calls == nil {
		calls = []types.ArchivedCall{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(calls)
}
