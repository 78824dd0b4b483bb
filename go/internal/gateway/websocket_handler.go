package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gamenight/livescore/go/internal/models"
	"github.com/gamenight/livescore/go/internal/presence"
)

// AuthFunc resolves whether a connection attempt belongs to an
// authenticated admin. Supplied by the embedding application; the gateway
// never inspects credentials itself.
type AuthFunc func(r *http.Request) (userID string, isAdmin bool)

// WebSocketHandler upgrades HTTP requests into scoring connections and
// assigns each one its identity.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	presence          *presence.Registry
	auth              AuthFunc
}

func NewWebSocketHandler(cm *ConnectionManager, reg *presence.Registry, auth AuthFunc) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		presence:          reg,
		auth:              auth,
	}
}

// HandleConnection upgrades the request, assigns identity and replies with
// the connected event. Admins keep a stable identity across connections;
// everyone else is an anonymous player scoped to the socket.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	connectionID := uuid.New().String()

	identity := models.Identity{
		ConnectionID: connectionID,
		UserID:       "anon_" + connectionID,
		DisplayName:  "Player",
	}
	if userID, isAdmin := h.auth(r); isAdmin {
		identity.UserID = "admin_" + userID
		identity.DisplayName = "admin"
		identity.IsAdmin = true
	}

	h.presence.Register(identity)

	if _, err := h.connectionManager.UpgradeConnection(w, r, identity); err != nil {
		h.presence.Drop(connectionID)
		log.Error().
			Err(err).
			Str("connection_id", connectionID).
			Msg("failed to establish scoring connection")
		return
	}

	h.connectionManager.SendToConnection(connectionID, ServerEvent{
		Type: EventConnected,
		Data: ConnectedPayload{UserID: identity.UserID, DisplayName: identity.DisplayName},
	})
}

// HandleConnectionStats reports active connection and room counts.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers the gateway routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
