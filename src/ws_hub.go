package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 2 * time.Second
	wsSendBuffer   = 16
)

// wsClient is one connected state viewer
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub streams plant frames to websocket viewers. Clients that fall a full buffer behind are
// dropped.
type Hub struct {
	upgrader   websocket.Upgrader
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	clients    map[*wsClient]bool // owned by wsHubWorker
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 2 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		clients:    map[*wsClient]bool{},
	}
}

// ServeWS upgrades the request and registers the viewer
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go h.readPump(c)
}

// readPump discards anything the viewer sends and unregisters it once the connection fails
func (h *Hub) readPump(c *wsClient) {
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			// Closing fails the read pump, which unregisters us and ends the drain
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) remove(c *wsClient) {
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

// broadcast queues payload for every client, dropping the ones that are full
func (h *Hub) broadcast(payload []byte) {
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			log.Println("Warning: websocket viewer too slow, disconnecting")
			h.remove(c)
		}
	}
}

// wsHubWorker owns the client set and fans plant frames out as JSON text frames
func wsHubWorker(ctx context.Context, hub *Hub, inputChan <-chan PlantState) {
	defer close(hub.done)
	defer func() {
		for c := range hub.clients {
			hub.remove(c)
		}
	}()

	for {
		select {
		case c := <-hub.register:
			hub.clients[c] = true

		case c := <-hub.unregister:
			hub.remove(c)

		case state := <-inputChan:
			if len(hub.clients) == 0 {
				continue
			}
			payload, err := json.Marshal(state)
			if err != nil {
				log.Printf("Failed to encode plant state: %v\n", err)
				continue
			}
			hub.broadcast(payload)

		case <-ctx.Done():
			return
		}
	}
}
