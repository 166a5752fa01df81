// Package events pushes link changes to connected dashboards over websockets.
package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tinylink/internal/domain"
	"tinylink/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 32
	broadcastSize  = 256
)

// Publisher receives link events from the service layer
type Publisher interface {
	Publish(event domain.LinkEvent)
}

// Nop is a Publisher that discards events
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(domain.LinkEvent) {}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans link events out to every connected websocket client. Clients
// that fall behind are disconnected rather than slowing publishers down.
type Hub struct {
	allowedOrigin string
	upgrader      websocket.Upgrader
	logger        *logger.Logger

	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a hub. allowedOrigin is accepted in addition to same-host
// and origin-less (non-browser) connections.
func NewHub(allowedOrigin string, log *logger.Logger) *Hub {
	h := &Hub{
		allowedOrigin: allowedOrigin,
		logger:        log,
		clients:       make(map[*client]bool),
		broadcast:     make(chan []byte, broadcastSize),
		register:      make(chan *client),
		unregister:    make(chan *client),
		done:          make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == h.allowedOrigin {
		return true
	}

	u, err := url.Parse(origin)
	if err == nil && u.Host == r.Host {
		return true
	}

	h.logger.Warn("Rejected websocket origin %s (host: %s)", origin, r.Host)
	return false
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// closes every client connection.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.logger.Info("Event hub stopped")
			return nil

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Event client connected (%d total)", count)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Event client disconnected (%d remaining)", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					delete(h.clients, c)
					close(c.send)
					h.logger.Warn("Dropping slow event client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues event for every client. It never blocks; when the queue is
// full the event is dropped.
func (h *Hub) Publish(event domain.LinkEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to encode link event: %v", err)
		return
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Event queue full, dropping %s for %s", event.Type, event.ShortCode)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket and streams events to it
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientSendSize)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client messages; it exists to notice disconnects and
// answer pings.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
