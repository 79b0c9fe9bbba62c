package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mixma5ter/matrixctl/internal/discovery"
	"github.com/mixma5ter/matrixctl/internal/logging"
	"github.com/mixma5ter/matrixctl/internal/status"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Outbound messages buffered per client before it is dropped
	clientQueueSize = 32
)

// Actions accepted from clients
const (
	ActionDiscoverDevice = "discover_device"
	ActionSendHexCommand = "send_hex_command"
)

// Message types pushed to clients
const (
	MessageTypeStatus = "status"
	MessageTypeDevice = "device"
	MessageTypeResult = "result"
)

// ActionRequest is a client command
type ActionRequest struct {
	ID      string        `json:"id,omitempty"`
	Action  string        `json:"action"`
	Options ActionOptions `json:"options"`
}

// ActionOptions carries send_hex_command parameters
type ActionOptions struct {
	HexCommand string `json:"hex_command"`
	TargetIP   string `json:"target_ip,omitempty"`
}

// Message is pushed to clients
type Message struct {
	Type      string      `json:"type"`
	Status    string      `json:"status,omitempty"`
	Message   string      `json:"message,omitempty"`
	Device    *DeviceView `json:"device,omitempty"`
	ID        string      `json:"id,omitempty"`
	Action    string      `json:"action,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func statusMessage(u status.Update) Message {
	return Message{
		Type:      MessageTypeStatus,
		Status:    u.Status.String(),
		Message:   u.Message,
		Timestamp: u.At,
	}
}

func deviceMessage(d discovery.DeviceRecord) Message {
	view := newDeviceView(d)
	return Message{
		Type:      MessageTypeDevice,
		Device:    &view,
		Timestamp: d.LastSeen,
	}
}

// Hub fans status and device updates out to every connected client. It
// implements status.Sink.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	wg      sync.WaitGroup
	logger  *zap.Logger
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logging.Named("hub"),
	}
}

// ReportStatus implements status.Sink
func (h *Hub) ReportStatus(u status.Update) {
	h.broadcast(statusMessage(u))
}

// DeviceFound pushes a discovery reply to every client
func (h *Hub) DeviceFound(d discovery.DeviceRecord) {
	h.broadcast(deviceMessage(d))
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every client and waits for their goroutines
func (h *Hub) CloseAll() {
	h.mu.Lock()
	for c := range h.clients {
		c.close()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) broadcast(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.enqueue(data) {
			h.logger.Warn("Client too slow, disconnecting", zap.String("client", c.id))
			c.close()
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.wg.Add(2)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// client is one WebSocket connection. readPump and writePump each run in
// their own goroutine; only writePump writes to conn.
type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return s.config.AllowAnyOrigin || sameOrigin(r)
		},
	}
}

// sameOrigin accepts requests without an Origin header (non-browser clients)
// and browser requests from the server's own host
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade to WebSocket",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("origin", r.Header.Get("Origin")),
			zap.Error(err),
		)
		return
	}

	id := uuid.NewString()
	c := &client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, clientQueueSize),
		done:   make(chan struct{}),
		logger: s.logger.With(zap.String("client", id), zap.String("remote_addr", r.RemoteAddr)),
	}

	c.logger.Info("WebSocket client connected")

	// Snapshot first so the client starts from the current state
	s.queue(c, statusMessage(s.ctrl.Status()))
	for _, d := range s.ctrl.Devices() {
		s.queue(c, deviceMessage(d))
	}

	s.hub.register(c)
	go func() {
		defer s.hub.wg.Done()
		s.writePump(c)
	}()
	go func() {
		defer s.hub.wg.Done()
		s.readPump(c)
	}()
}

func (s *Server) queue(c *client, m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	if !c.enqueue(data) {
		c.logger.Warn("Client queue full, disconnecting")
		c.close()
	}
}

// readPump decodes actions until the client goes away
func (s *Server) readPump(c *client) {
	defer func() {
		s.hub.unregister(c)
		c.close()
		c.logger.Info("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		var req ActionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.queue(c, Message{
				Type:      MessageTypeResult,
				Error:     "invalid request: " + err.Error(),
				Timestamp: time.Now(),
			})
			continue
		}

		s.queue(c, s.runAction(c, req))
	}
}

// runAction executes one client action and builds its result
func (s *Server) runAction(c *client, req ActionRequest) Message {
	c.logger.Info("Action received",
		zap.String("action", req.Action),
		zap.String("id", req.ID))

	var err error
	switch req.Action {
	case ActionDiscoverDevice:
		err = s.ctrl.Discover()
	case ActionSendHexCommand:
		err = s.ctrl.SendHex(req.Options.HexCommand, req.Options.TargetIP)
	default:
		err = errors.New("unknown action " + `"` + req.Action + `"`)
	}

	result := Message{
		Type:      MessageTypeResult,
		ID:        req.ID,
		Action:    req.Action,
		Timestamp: time.Now(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// writePump drains the client queue and keeps the connection alive with pings
func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("WebSocket ping failed", zap.Error(err))
				return
			}
		}
	}
}
