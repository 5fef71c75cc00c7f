package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/kiosk/go/internal/auth"
	"github.com/mcdev12/kiosk/go/internal/realtime"
)

// WebSocketHandler handles websocket upgrades and the presence read routes
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	verifier          auth.Verifier
	defaultRoom       string
}

// NewWebSocketHandler creates a new websocket handler. A nil verifier
// disables authentication.
func NewWebSocketHandler(cm *ConnectionManager, verifier auth.Verifier, defaultRoom string) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		verifier:          verifier,
		defaultRoom:       defaultRoom,
	}
}

// HandleRealtimeConnection upgrades a request into a room connection
func (h *WebSocketHandler) HandleRealtimeConnection(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		room = h.defaultRoom
	}
	if room == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}

	claims, _ := auth.ClaimsFromContext(r.Context())

	if err := h.connectionManager.UpgradeConnection(w, r, room, claims); err != nil {
		// Upgrade has already replied to the client
		log.Error().
			Err(err).
			Str("room", room).
			Msg("failed to upgrade websocket connection")
		return
	}
}

// PresenceResponse is the body of the room presence route
type PresenceResponse struct {
	Room     string                       `json:"room"`
	Count    int                          `json:"count"`
	Presence realtime.PresenceState       `json:"presence"`
	Records  map[string][]json.RawMessage `json:"records"`
}

// HandleRoomPresence returns the current roster of a room, the default
// room when the route has no {room}
func (h *WebSocketHandler) HandleRoomPresence(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	if room == "" {
		room = h.defaultRoom
	}

	state := h.connectionManager.Presence(room)
	writeJSON(w, http.StatusOK, PresenceResponse{
		Room:     room,
		Count:    len(state),
		Presence: state,
		Records:  state.Raw(),
	})
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

// RegisterRoutes registers websocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/realtime/ws", h.guard(http.HandlerFunc(h.HandleRealtimeConnection)))
	mux.Handle("GET /api/rooms/{room}/presence", h.guard(http.HandlerFunc(h.HandleRoomPresence)))
	mux.Handle("GET /kitchen/presence", h.guard(http.HandlerFunc(h.HandleRoomPresence)))
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

func (h *WebSocketHandler) guard(next http.Handler) http.Handler {
	if h.verifier == nil {
		return next
	}
	return auth.RequireKitchenAccess(h.verifier, next)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
