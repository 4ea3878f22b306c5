package api

import (
	"encoding/json"
	"net/http"

	"github.com/dennisdiepolder/cdrboard/backend/internal/auth"
	"github.com/dennisdiepolder/cdrboard/backend/internal/storage"
	"github.com/rs/zerolog"
)

// AdminHandler provides maintenance endpoints
type AdminHandler struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(store storage.Store, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		store:  store,
		logger: logger.With().Str("component", "admin_handler").Logger(),
	}
}

// TruncateArchive deletes all archived calls. Admin role required.
// POST /api/admin/archive/truncate
func (h *AdminHandler) TruncateArchive(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok || !auth.HasRole(claims, "admin") {
		http.Error(w, "admin role required", http.StatusForbidden)
		return
	}

	if err := h.store.TruncateAll(); err != nil {
		h.logger.Error().Err(err).Msg("failed to truncate archive")
		http.Error(w, "failed to truncate archive", http.StatusInternalServerError)
		return
	}

	h.logger.Info().Str("by", claims.Email).Msg("call archive truncated")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
