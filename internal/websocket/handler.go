package websocket

import (
	"net/http"

	"github.com/dennisdiepolder/cdrboard/backend/internal/config"
	"github.com/dennisdiepolder/cdrboard/backend/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin enforcement happens in the CORS middleware; the upgrade
		// itself accepts any origin so token-authenticated dashboards work
		// behind proxies.
		return true
	},
}

// Handler handles WebSocket upgrade requests
type Handler struct {
	hub    *Hub
	config *config.Config
	logger zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *Hub, cfg *config.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		config: cfg,
		logger: logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	m := metrics.Get()
	m.RecordWebSocketConnect()
	conn.SetCloseHandler(func(code int, text string) error {
		m.RecordWebSocketDisconnect()
		return nil
	})

	client := NewClient(h.hub, conn, h.config, h.logger)

	h.hub.register <- client
	client.Start()
}
