package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"geosync/internal/service"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development, configure for production
			return true
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	// Heartbeat interval
	pingInterval = 30 * time.Second
	// Write timeout
	writeTimeout = 10 * time.Second
)

// WSMessage represents a WebSocket message from client
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID         string
	Conn       *websocket.Conn
	Send       chan []byte
	Hub        *WSHub
	BackpackID string // Filter by backpack serial (empty means all backpacks)
}

// WSHub manages WebSocket clients and relays NATS position and alert
// traffic to the connected guardian apps.
type WSHub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	natsConn   *nats.Conn
	posSub     *nats.Subscription
	alertSub   *nats.Subscription
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(nc *nats.Conn) *WSHub {
	return &WSHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		natsConn:   nc,
	}
}

// Run starts the hub's event loop. The loop runs even when a NATS
// subscription fails, otherwise registering clients would block forever
// on a hub that never reads its channels.
func (h *WSHub) Run() {
	h.subscribe()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("[WS] Client connected: %s, total clients: %d", client.ID, len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			log.Printf("[WS] Client disconnected: %s, total clients: %d", client.ID, len(h.clients))

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

func (h *WSHub) subscribe() {
	if h.natsConn == nil {
		return
	}

	posSub, err := h.natsConn.Subscribe(service.SubjectPositionUplink, func(msg *nats.Msg) {
		var pm service.PositionMessage
		if err := json.Unmarshal(msg.Data, &pm); err != nil {
			log.Printf("[WS] Failed to unmarshal position message: %v", err)
			return
		}

		data, err := json.Marshal(map[string]interface{}{
			"type": "position",
			"data": pm,
		})
		if err != nil {
			log.Printf("[WS] Failed to marshal position broadcast: %v", err)
			return
		}

		h.broadcast <- data
	})
	if err != nil {
		log.Printf("[WS] Failed to subscribe to NATS positions: %v", err)
	} else {
		h.posSub = posSub
	}

	alertSub, err := h.natsConn.Subscribe("geosync.alert.>", func(msg *nats.Msg) {
		var am json.RawMessage
		if err := json.Unmarshal(msg.Data, &am); err != nil {
			log.Printf("[WS] Failed to unmarshal alert message: %v", err)
			return
		}

		data, err := json.Marshal(map[string]interface{}{
			"type": "alert",
			"data": am,
		})
		if err != nil {
			log.Printf("[WS] Failed to marshal alert broadcast: %v", err)
			return
		}

		h.broadcast <- data
	})
	if err != nil {
		log.Printf("[WS] Failed to subscribe to NATS alerts: %v", err)
	} else {
		h.alertSub = alertSub
	}

	log.Println("[WS] Hub started, subscribed to NATS position and alert updates")
}

// fanOut delivers one broadcast message to every matching client. A
// client whose send buffer is full is dropped inline; routing it through
// the unregister channel would deadlock the event loop, which is that
// channel's only receiver.
func (h *WSHub) fanOut(message []byte) {
	serial := backpackOf(message)

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if client.BackpackID != "" && serial != "" && client.BackpackID != serial {
			continue
		}
		select {
		case client.Send <- message:
		default:
			close(client.Send)
			delete(h.clients, client)
			log.Printf("[WS] Client %s dropped: send buffer full", client.ID)
		}
	}
}

// backpackOf extracts the backpack serial from a broadcast envelope so a
// client subscribed to one backpack only sees its traffic.
func backpackOf(message []byte) string {
	var envelope struct {
		Data struct {
			BackpackID string `json:"backpack_id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(message, &envelope); err != nil {
		return ""
	}
	return envelope.Data.BackpackID
}

// Stop stops the hub and cleans up resources
func (h *WSHub) Stop() {
	if h.posSub != nil {
		h.posSub.Unsubscribe()
	}
	if h.alertSub != nil {
		h.alertSub.Unsubscribe()
	}
	h.mu.Lock()
	for client := range h.clients {
		close(client.Send)
		client.Conn.Close()
		delete(h.clients, client)
	}
	h.mu.Unlock()
}

// GetClientCount returns the number of connected clients
func (h *WSHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a raw message for all connected clients. Drops the
// message instead of blocking when the hub is saturated.
func (h *WSHub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
	}
}

// ReadPump handles incoming messages from the client
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512 * 1024) // 512KB max message size
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Client %s read error: %v", c.ID, err)
			}
			break
		}

		// Handle client messages (e.g., subscribe to a specific backpack)
		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err == nil {
			switch wsMsg.Type {
			case "subscribe":
				var data struct {
					BackpackID string `json:"backpack_id"`
				}
				if err := json.Unmarshal(wsMsg.Data, &data); err == nil && data.BackpackID != "" {
					c.BackpackID = data.BackpackID
					log.Printf("[WS] Client %s subscribed to backpack %s", c.ID, c.BackpackID)
				}
			case "ping":
				select {
				case c.Send <- []byte(`{"type":"pong"}`):
				default:
				}
			}
		}
	}
}

// WritePump handles outgoing messages to the client
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WSHandler handles WebSocket connections
type WSHandler struct {
	hub *WSHub
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler(hub *WSHub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleLive handles WebSocket connections for live position and alert updates
func (h *WSHandler) HandleLive(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Failed to upgrade connection: %v", err)
		return
	}

	clientID := c.Query("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	// Optional: filter by backpack serial
	backpackID := c.Query("backpack_id")

	client := &Client{
		ID:         clientID,
		Conn:       conn,
		Send:       make(chan []byte, 256),
		Hub:        h.hub,
		BackpackID: backpackID,
	}

	client.Hub.register <- client

	go client.WritePump()
	go client.ReadPump()

	welcome := map[string]interface{}{
		"type":      "connected",
		"message":   "Connected to GeoSync live stream",
		"client_id": clientID,
	}
	if data, err := json.Marshal(welcome); err == nil {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// GetStats returns WebSocket hub statistics
func (h *WSHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": h.hub.GetClientCount(),
	})
}
