package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pranavch/cashdesk/internal/notify"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// wsClient adapts one WebSocket connection to a notify.Subscriber.
type wsClient struct {
	id       string
	holderID string
	conn     *websocket.Conn
	hub      *notify.Hub
	send     chan []byte
	closed   bool
	mu       sync.RWMutex
	once     sync.Once
}

func newWSClient(conn *websocket.Conn, holderID string, hub *notify.Hub) *wsClient {
	return &wsClient{
		id:       uuid.New().String(),
		holderID: holderID,
		conn:     conn,
		hub:      hub,
		send:     make(chan []byte, 256),
	}
}

func (c *wsClient) ID() string       { return c.id }
func (c *wsClient) HolderID() string { return c.holderID }

// Send queues a message for the write pump. A full buffer means the
// client is too slow and counts as closed.
func (c *wsClient) Send(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return notify.ErrSubscriberClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return notify.ErrSubscriberClosed
	}
}

func (c *wsClient) Close() error {
	var closeErr error
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		closeErr = c.conn.Close()
	})
	return closeErr
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("client_id", c.id).
					Str("holder_id", c.holderID).
					Msg("websocket unexpected close")
			}
			return
		}
		// Clients only listen; inbound frames are ignored.
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// WSHandler upgrades GET /ws?holder= connections and streams that
// holder's notification events.
type WSHandler struct {
	hub            *notify.Hub
	allowedOrigins map[string]bool
	upgrader       websocket.Upgrader
}

func NewWSHandler(hub *notify.Hub, allowedOrigins []string) *WSHandler {
	originMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		originMap[origin] = true
	}

	h := &WSHandler{hub: hub, allowedOrigins: originMap}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Same-origin and non-browser clients send no Origin header.
		return true
	}
	if h.allowedOrigins[origin] {
		return true
	}
	log.Warn().Str("origin", origin).Msg("websocket connection rejected: origin not allowed")
	return false
}

func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	holderID := r.URL.Query().Get("holder")
	if holderID == "" {
		http.Error(w, "missing holder parameter", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newWSClient(conn, holderID, h.hub)
	h.hub.Register(client)

	go client.writePump()
	go client.readPump()
}
