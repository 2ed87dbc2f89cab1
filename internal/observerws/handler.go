package observerws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades inbound HTTP requests to WebSocket connections and wires
// them into a Hub. Mount at e.g. GET /ws/workflows.
type Handler struct {
	hub *Hub
	log *logger.Logger
}

// NewHandler builds a Handler serving hub's events.
func NewHandler(hub *Hub, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{hub: hub, log: log}
}

// ServeHTTP upgrades the connection. An optional workflow_id query parameter
// restricts the client to that workflow's events.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	workflowID := r.URL.Query().Get("workflow_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("observerws: upgrade failed", "error", err)
		return
	}

	client := NewClient(uuid.NewString(), conn, h.hub, workflowID)
	h.hub.Register(client)

	welcome := map[string]any{
		"type":       "control",
		"message":    "connected",
		"clientId":   client.ID,
		"workflowId": workflowID,
		"timestamp":  time.Now().Format(time.RFC3339),
	}
	if data, err := json.Marshal(welcome); err == nil {
		select {
		case client.send <- data:
		default:
		}
	}

	go client.WritePump()
	go client.ReadPump()
}

// HandleHealth reports the hub's current connection count.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":           "healthy",
		"connectedClients": h.hub.ClientCount(),
	})
}
