package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dennisdiepolder/cdrboard/backend/internal/engine"
	"github.com/dennisdiepolder/cdrboard/backend/internal/metrics"
	"github.com/dennisdiepolder/cdrboard/backend/internal/refresh"
	"github.com/dennisdiepolder/cdrboard/backend/internal/report"
	"github.com/dennisdiepolder/cdrboard/backend/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// ReportHandler provides the CDR report endpoints consumed by the dashboard
type ReportHandler struct {
	engine    *engine.Engine
	refresher *refresh.Refresher
	logger    zerolog.Logger
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(eng *engine.Engine, refresher *refresh.Refresher, logger zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		engine:    eng,
		refresher: refresher,
		logger:    logger.With().Str("component", "report_handler").Logger(),
	}
}

// GetSummary returns the aggregated report for all agents
// GET /api/cdr/summary?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *ReportHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	scope := types.QueryScope{
		AgentFilter: types.AgentAll,
		StartDate:   r.URL.Query().Get("start"),
		EndDate:     r.URL.Query().Get("end"),
	}
	h.serveScope(w, r, scope)
}

// GetAgent returns the report filtered for a single agent extension
// GET /api/cdr/agent/{agentId}?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *ReportHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_scope", "agentId is required")
		return
	}

	scope := types.QueryScope{
		AgentFilter: agentID,
		StartDate:   r.URL.Query().Get("start"),
		EndDate:     r.URL.Query().Get("end"),
	}
	h.serveScope(w, r, scope)
}

// GetTimeRange returns the report for an explicit date range
// GET /api/cdr/time_range?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *ReportHandler) GetTimeRange(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if start == "" || end == "" {
		writeError(w, http.StatusBadRequest, "invalid_scope", "start and end query parameters are required (YYYY-MM-DD)")
		return
	}

	h.serveScope(w, r, types.QueryScope{
		AgentFilter: types.AgentAll,
		StartDate:   start,
		EndDate:     end,
	})
}

// Refresh forces a recomputation of the default scope and returns once the
// new bundle is installed
// POST /api/cdr/refresh
func (h *ReportHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.refresher.Run(r.Context())
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "ok",
		"build_id":     bundle.BuildID,
		"generated_at": bundle.GeneratedAt,
	})
}

// GetStats exposes the scan pipeline counters for the dashboard status view
// GET /api/cdr/stats
func (h *ReportHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, duration := metrics.Get().LastScan()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"scans_total":       h.engine.ScanCount(),
		"cached_scopes":     h.engine.CachedScopes(),
		"last_scan":         stats,
		"last_scan_seconds": duration.Seconds(),
	})
}

func (h *ReportHandler) serveScope(w http.ResponseWriter, r *http.Request, scope types.QueryScope) {
	bundle, err := h.engine.Query(r.Context(), scope)
	if err != nil {
		h.writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bundle)
}

// writePipelineError maps pipeline failures onto distinct retryable error
// codes so the dashboard can pick its backoff policy.
func (h *ReportHandler) writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, report.ErrInvalidScope):
		writeError(w, http.StatusBadRequest, "invalid_scope", err.Error())
	case errors.Is(err, engine.ErrScanBudgetExceeded):
		h.logger.Warn().Err(err).Msg("recomputation exceeded budget")
		writeError(w, http.StatusServiceUnavailable, "scan_budget_exceeded", "recomputation exceeded its work budget, retry later")
	case errors.Is(err, engine.ErrLogUnavailable):
		h.logger.Error().Err(err).Msg("call event log unavailable")
		writeError(w, http.StatusServiceUnavailable, "log_unavailable", "call event log unavailable, retry later")
	default:
		h.logger.Error().Err(err).Msg("report computation failed")
		writeError(w, http.StatusInternalServerError, "internal", "failed to compute report")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
