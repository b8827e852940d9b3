package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/afroash/vpd-monitor/internal/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Constants for WebSocket timeouts
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 16
)

// Hub pushes snapshots and advisory reports to dashboard WebSocket clients
type Hub struct {
	upgrader       websocket.Upgrader
	current        func() models.Snapshot
	logger         zerolog.Logger
	allowedOrigins []string

	mutex   sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
}

// Client represents one connected dashboard
type Client struct {
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
	conn        *websocket.Conn
	send        chan []byte
}

// NewHub creates a hub. current supplies the snapshot sent on connect.
func NewHub(current func() models.Snapshot, logger zerolog.Logger, allowedOrigins ...string) *Hub {
	h := &Hub{
		current:        current,
		logger:         logger,
		allowedOrigins: allowedOrigins,
		clients:        make(map[*Client]struct{}),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// checkOrigin validates the incoming request's Origin against the configured allowlist
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// No Origin header means same-origin request
	if origin == "" {
		return true
	}
	// Same host is allowed without configuration
	if origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}

	h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
	return false
}

// ServeHTTP handles WebSocket connection requests
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	c := &Client{
		RemoteAddr:  conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
	}

	if data, err := encode(models.MessageTypeSnapshot, h.current()); err == nil {
		c.send <- data
	}

	h.mutex.Lock()
	if h.closed {
		h.mutex.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mutex.Unlock()
	h.logger.Info().Str("remote_addr", c.RemoteAddr).Int("clients", count).Msg("Dashboard connected")

	go h.writePump(c)
	h.readPump(c)
}

// readPump answers client messages with an error frame and detects disconnects.
// The dashboard feed is read-only; commands go through the HTTP API.
func (h *Hub) readPump(c *Client) {
	defer h.removeClient(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
		h.reply(c, models.MessageTypeError, models.ErrorMessage{
			Code:    "read_only",
			Message: "the live feed does not accept commands; use the HTTP API",
		})
	}
}

// reply queues a message for one client without blocking
func (h *Hub) reply(c *Client, msgType models.MessageType, payload interface{}) {
	data, err := encode(msgType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(msgType)).Msg("Failed to create message")
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.Debug().Str("remote_addr", c.RemoteAddr).Msg("Reply dropped: send buffer full")
	}
}

// writePump is the only writer on c.conn
func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
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
				h.logger.Warn().Err(err).Str("remote_addr", c.RemoteAddr).Msg("Failed to send message")
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

// Observe implements greenhouse.Observer
func (h *Hub) Observe(snap models.Snapshot) {
	h.broadcast(models.MessageTypeSnapshot, snap)
}

// BroadcastAdvisory sends a settled advisory report to every client
func (h *Hub) BroadcastAdvisory(report models.AdvisoryReport) {
	h.broadcast(models.MessageTypeAdvisory, report)
}

// broadcast never blocks; a client whose buffer is full is dropped
func (h *Hub) broadcast(msgType models.MessageType, payload interface{}) {
	data, err := encode(msgType, payload)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(msgType)).Msg("Failed to create message")
		return
	}

	var slow []*Client
	h.mutex.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mutex.RUnlock()

	for _, c := range slow {
		h.logger.Warn().Str("remote_addr", c.RemoteAddr).Msg("Dropping slow dashboard client")
		h.removeClient(c)
	}
}

// removeClient unregisters c and closes its send channel once
func (h *Hub) removeClient(c *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Info().Str("remote_addr", c.RemoteAddr).Int("clients", len(h.clients)).Msg("Dashboard disconnected")
}

// Clients returns the currently connected dashboards
func (h *Hub) Clients() []Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	clients := make([]Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, Client{RemoteAddr: c.RemoteAddr, ConnectedAt: c.ConnectedAt})
	}
	return clients
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mutex.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.Unlock()

	for _, c := range clients {
		h.removeClient(c)
	}
}

func encode(msgType models.MessageType, payload interface{}) ([]byte, error) {
	msg, err := models.NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}
