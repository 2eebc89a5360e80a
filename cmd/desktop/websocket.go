// WebSocket event stream for the desktop UI shell. The shell fetches
// /v1/state once, then follows this stream to know when to refetch.
package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pentrypal/app/core/internal/logging"
	"github.com/pentrypal/app/core/internal/models"
	"github.com/pentrypal/app/core/internal/store"
)

// Event types pushed to the UI shell.
const (
	EventStateChanged     = "state.changed"
	EventSyncStatus       = "sync.status"
	EventConnectivity     = "connectivity.changed"
	EventSessionEnded     = "session.ended"
	EventConflictDetected = "sync.conflict_detected"
)

// WSEnvelope wraps every message on the event stream.
type WSEnvelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// WSClient is one connected UI shell.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub
}

// WSHub fans events out to connected shells.
type WSHub struct {
	clients    map[string]*WSClient
	broadcast  chan []byte
	register   chan *WSClient
	unregister chan *WSClient
	mu         sync.RWMutex
}

// NewWSHub creates a hub and starts its fan-out loop.
func NewWSHub() *WSHub {
	hub := &WSHub{
		clients:    make(map[string]*WSClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
	go hub.run()
	return hub
}

func (h *WSHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			total := len(h.clients)
			h.mu.Unlock()
			logging.Debug("UI shell connected", map[string]interface{}{
				"client_id": client.id,
				"total":     total,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer, drop it
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event to every connected shell.
func (h *WSHub) Broadcast(eventType string, data map[string]interface{}) {
	envelope := WSEnvelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("Failed to marshal event", err, nil)
		return
	}
	h.broadcast <- payload
}

// BindStore subscribes the hub to store dispatches so every applied
// command reaches the UI, and surfaces resolved edit conflicts.
func (h *WSHub) BindStore(st *store.Store) {
	st.OnConflict(func(entry *models.ConflictLog) {
		h.Broadcast(EventConflictDetected, map[string]interface{}{
			"entity_id":        string(entry.EntityID),
			"resolution":       entry.Resolution,
			"local_timestamp":  entry.LocalTimestamp,
			"remote_timestamp": entry.RemoteTimestamp,
		})
	})

	st.Subscribe(func(cmd store.Command) {
		switch c := cmd.(type) {
		case store.SetOnline:
			h.Broadcast(EventConnectivity, map[string]interface{}{"online": c.Online})
		case store.SetSyncStatus:
			h.Broadcast(EventSyncStatus, map[string]interface{}{
				"last_sync_at": c.LastSyncAt,
				"sync_error":   c.SyncError,
				"pending":      c.Pending,
			})
		case store.ClearSession:
			h.Broadcast(EventSessionEnded, map[string]interface{}{})
		default:
			h.Broadcast(EventStateChanged, map[string]interface{}{"command": cmd.Type()})
		}
	})
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug("Event stream read error", map[string]interface{}{
					"error": err.Error(),
				})
			}
			break
		}
		// The stream is one way; client messages are ignored
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// newUpgrader builds an upgrader that only accepts localhost origins;
// the control plane is not meant to be reachable from elsewhere.
func newUpgrader(port string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			host := r.Host
			return host == "localhost:"+port || host == "127.0.0.1:"+port ||
				strings.HasPrefix(host, "localhost") || strings.HasPrefix(host, "127.0.0.1")
		},
	}
}

// HandleWebSocket upgrades a shell connection onto the event stream.
func HandleWebSocket(hub *WSHub, port string) http.HandlerFunc {
	upgrader := newUpgrader(port)
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn("Event stream upgrade failed", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}

		client := &WSClient{
			id:   time.Now().Format("20060102150405.000") + "-" + r.RemoteAddr,
			conn: conn,
			send: make(chan []byte, 256),
			hub:  hub,
		}
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}
