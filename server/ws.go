package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"stemdeck/core/player"
	"stemdeck/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 1024
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is the envelope every websocket frame carries.
type wsMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsClient is one connected editor session.
type wsClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans engine events out to every connected editor. All client
// bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
	done       chan struct{}
}

// NewHub creates the hub; call Run on its own goroutine.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run is the hub main loop.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			logger.Info("editor connected",
				logger.String("client", c.id),
				logger.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				logger.Info("editor disconnected", logger.String("client", c.id))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer; drop the connection rather than
					// queueing behind it.
					delete(h.clients, c)
					close(c.send)
				}
			}

		case <-h.done:
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*wsClient]bool)
			return
		}
	}
}

// Stop shuts the hub down and closes every client send channel.
func (h *Hub) Stop() {
	close(h.done)
}

// add hands a client to the Run loop, closing the connection instead
// when the hub is already stopped.
func (h *Hub) add(c *wsClient) {
	select {
	case h.register <- c:
	case <-h.done:
		c.conn.Close()
	}
}

// remove hands a client back to the Run loop for cleanup.
func (h *Hub) remove(c *wsClient) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast sends one typed message to every connected editor. It never
// blocks the caller.
func (h *Hub) Broadcast(msgType string, data interface{}) {
	raw, err := json.Marshal(wsMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		logger.Error("websocket message encoding failed", logger.ErrorField(err))
		return
	}
	select {
	case h.broadcast <- raw:
	case <-h.done:
	default:
	}
}

// BroadcastEvent forwards an engine event unchanged.
func (h *Hub) BroadcastEvent(evt player.Event) {
	h.Broadcast(string(evt.Type), evt.Data)
}

// WSHandler upgrades the connection and attaches it to the hub. New
// editors immediately receive the current transport and track state so
// they can render without waiting for the next engine event.
func (h *APIHandler) WSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		hub:  h.hub,
		conn: conn,
		send: make(chan []byte, 64),
	}
	h.hub.add(client)

	client.enqueue("state", h.engine.State())
	client.enqueue("tracks", player.TracksData{
		JobID:     h.engine.JobID(),
		Tracks:    h.engine.Tracks(),
		Hierarchy: h.engine.Hierarchy(),
	})

	go client.writePump()
	go client.readPump()
}

// enqueue queues one typed message for this client only.
func (c *wsClient) enqueue(msgType string, data interface{}) {
	raw, err := json.Marshal(wsMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

// readPump drains inbound frames. Control flows over HTTP, so inbound
// traffic is only pings and the occasional client-side heartbeat.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error",
					logger.String("client", c.id),
					logger.ErrorField(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			c.enqueue("pong", nil)
		}
	}
}

// writePump writes queued messages and keeps the connection alive with
// periodic pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
