package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/backtrack/go/internal/users"
)

// WebSocketHandler handles WebSocket upgrade requests for check-in connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	auth              users.Authenticator
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, auth users.Authenticator) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		auth:              auth,
	}
}

// HandleCheckInConnection authenticates the caller and upgrades the connection.
// The token comes from the Authorization header or, for clients that cannot set
// headers on a WebSocket handshake, the token query parameter.
func (h *WebSocketHandler) HandleCheckInConnection(w http.ResponseWriter, r *http.Request) {
	token := users.BearerToken(r)
	if token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	user, err := h.auth.Authenticate(r.Context(), token)
	if err != nil {
		log.Debug().Err(err).Msg("rejected WebSocket authentication")
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, user.Username); err != nil {
		// Upgrade has already written an HTTP error response
		log.Error().
			Err(err).
			Str("username", user.Username).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/checkin", h.HandleCheckInConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
