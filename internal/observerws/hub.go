// Package observerws streams engine.Event lifecycle events to WebSocket
// clients, for a dashboard watching a workflow run live.
//
// Grounded on the teacher's go/internal/application/observer.WebSocketHub/
// WebSocketClient/WebSocketObserver: a hub goroutine serializes client
// register/unregister through channels, and every client gets a buffered
// send channel drained by its own WritePump. BroadcastForWorkflow writes
// each event straight into the matching clients' send buffers; a client
// whose buffer is full misses that event rather than blocking the caller.
package observerws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/smilemakc/mbflow/internal/engine"
	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
)

// Hub manages WebSocket connections and fans out engine events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	log        *logger.Logger
	mu         sync.RWMutex
}

// NewHub creates a Hub and starts its run loop in the background.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Default()
	}
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.log.Info("observerws client connected", "client_id", c.ID, "workflow_id", c.workflowID)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.log.Info("observerws client disconnected", "client_id", c.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register wires a client into the hub.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastForWorkflow sends data to every client with no workflow filter
// or one matching workflowID.
func (h *Hub) BroadcastForWorkflow(workflowID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.workflowID != "" && c.workflowID != workflowID {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.log.Warn("observerws client send buffer full, dropping event", "client_id", c.ID)
		}
	}
}

// eventMessage is the wire shape one engine.Event is flattened to.
type eventMessage struct {
	Type           string    `json:"type"`
	WorkflowID     string    `json:"workflowId"`
	NodeID         string    `json:"nodeId,omitempty"`
	InstanceID     string    `json:"instanceId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	DurationMs     int64     `json:"durationMs,omitempty"`
	Error          string    `json:"error,omitempty"`
	IterationIndex int       `json:"iterationIndex,omitempty"`
}

// Observer adapts a Hub to engine.Observer: every notified event is
// serialized and broadcast to subscribed clients. *Observer satisfies
// engine.Observer, so AddObserver(NewObserver(hub, log)) wires it directly.
type Observer struct {
	hub *Hub
	log *logger.Logger
}

// NewObserver builds an engine.Observer that streams to hub.
func NewObserver(hub *Hub, log *logger.Logger) *Observer {
	if log == nil {
		log = logger.Default()
	}
	return &Observer{hub: hub, log: log}
}

// Notify implements engine.Observer.
func (o *Observer) Notify(e engine.Event) {
	msg := eventMessage{
		Type:           string(e.Type),
		WorkflowID:     e.WorkflowID,
		NodeID:         e.NodeID,
		InstanceID:     e.InstanceID,
		Timestamp:      e.Timestamp,
		DurationMs:     e.Duration.Milliseconds(),
		Error:          e.Error,
		IterationIndex: e.IterationIndex,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		o.log.Error("observerws: failed to marshal event", "error", err)
		return
	}
	o.hub.BroadcastForWorkflow(e.WorkflowID, data)
}

// Client is one connected WebSocket subscriber, optionally filtered to a
// single workflow's events.
type Client struct {
	ID         string
	conn       *websocket.Conn
	send       chan []byte
	hub        *Hub
	workflowID string
}

// NewClient wraps an already-upgraded connection. workflowID, if non-empty,
// limits the client to events from that workflow.
func NewClient(id string, conn *websocket.Conn, hub *Hub, workflowID string) *Client {
	return &Client{ID: id, conn: conn, send: make(chan []byte, 256), hub: hub, workflowID: workflowID}
}

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// ReadPump drains (and discards) client-sent frames, just enough to detect
// disconnects and keep the read deadline alive via pong handling. Must run
// in its own goroutine; returns when the connection closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// WritePump drains the client's send channel to the connection and keeps it
// alive with periodic pings. Must run in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
