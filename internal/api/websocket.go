package api

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"
	"github.com/worldstream/server/internal/auth"
	"github.com/worldstream/server/internal/compression"
	"github.com/worldstream/server/internal/grid"
	"github.com/worldstream/server/internal/session"
	"github.com/worldstream/server/internal/streaming"
)

const (
	// Supported WebSocket protocol versions
	ProtocolVersion1 = "worldstream-v1"

	// Default ping interval (30 seconds)
	defaultPingInterval = 30 * time.Second

	// Pong wait timeout (60 seconds)
	pongWait = 60 * time.Second

	// Write timeout (10 seconds)
	writeTimeout = 10 * time.Second

	// Client messages are small: a type, an id and a position.
	maxMessageSize = 4096
)

// Message types exchanged on the stream.
const (
	MessagePing        = "ping"
	MessagePong        = "pong"
	MessageFocus       = "focus"
	MessageFocusAck    = "focus_ack"
	MessageWelcome     = "welcome"
	MessageChunkAttach = string(session.EventAttach)
	MessageChunkDetach = string(session.EventDetach)
	MessageError       = "error"
)

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WebSocketError represents an error message sent over WebSocket
type WebSocketError struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WelcomeData is sent once after the upgrade. The client drops any chunks
// it still holds: the attaches that follow describe its whole view.
type WelcomeData struct {
	SessionID string           `json:"session_id"`
	Protocol  string           `json:"protocol"`
	Strategy  string           `json:"strategy"`
	Config    streaming.Config `json:"config"`
	Cell      grid.Coord       `json:"cell"`
}

// FocusData moves the session's focus point.
type FocusData struct {
	Position [3]float32 `json:"position"`
}

// FocusAckData closes the batch of chunk events a focus message caused.
type FocusAckData struct {
	Cell     grid.Coord `json:"cell"`
	Moved    bool       `json:"moved"`
	Attached int        `json:"attached"`
	Detached int        `json:"detached"`
	Resident int        `json:"resident"`
}

// ChunkAttachData carries one encoded chunk.
type ChunkAttachData struct {
	ChunkID  uint64                          `json:"chunk_id"`
	Location grid.Coord                      `json:"location"`
	Geometry *compression.CompressedGeometry `json:"geometry"`
}

// ChunkDetachData tells the client to drop a chunk.
type ChunkDetachData struct {
	ChunkID  uint64     `json:"chunk_id"`
	Location grid.Coord `json:"location"`
}

// StreamConnection is one client connection bound to a session.
type StreamConnection struct {
	conn      *websocket.Conn
	session   *session.Session
	stream    *session.Stream // set by readPump before any message is handled
	sessionID string
	version   string
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	hub       *StreamHub
}

// StreamHub tracks the connection of every streaming session. A session has
// at most one connection; a new one replaces the old.
type StreamHub struct {
	mu          sync.RWMutex
	connections map[string]*StreamConnection
}

// NewStreamHub creates an empty hub.
func NewStreamHub() *StreamHub {
	return &StreamHub{connections: make(map[string]*StreamConnection)}
}

// Register adds c, closing any connection the session already had.
func (h *StreamHub) Register(c *StreamConnection) {
	h.mu.Lock()
	old := h.connections[c.sessionID]
	h.connections[c.sessionID] = c
	h.mu.Unlock()

	if old != nil {
		log.Printf("[Stream] session %s reconnected, closing previous connection", c.sessionID)
		old.close()
	}
	log.Printf("[Stream] connection registered: session=%s, version=%s", c.sessionID, c.version)
}

// Unregister removes c if it is still the session's connection.
func (h *StreamHub) Unregister(c *StreamConnection) {
	h.mu.Lock()
	if h.connections[c.sessionID] == c {
		delete(h.connections, c.sessionID)
	}
	h.mu.Unlock()
	c.close()
	log.Printf("[Stream] connection unregistered: session=%s", c.sessionID)
}

// Count returns the number of open connections.
func (h *StreamHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Disconnect closes the connection of a session, if any.
func (h *StreamHub) Disconnect(sessionID string) bool {
	h.mu.Lock()
	c, ok := h.connections[sessionID]
	delete(h.connections, sessionID)
	h.mu.Unlock()
	if ok {
		c.close()
	}
	return ok
}

// CloseAll closes every connection.
func (h *StreamHub) CloseAll() {
	h.mu.Lock()
	conns := h.connections
	h.connections = make(map[string]*StreamConnection)
	h.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

// StreamHandlers upgrades stream connections and runs their message loop.
type StreamHandlers struct {
	svc      *Services
	upgrader websocket.Upgrader
}

// NewStreamHandlers creates a new StreamHandlers instance.
func NewStreamHandlers(svc *Services) *StreamHandlers {
	allowed := svc.Config.Server.AllowedOrigins
	return &StreamHandlers{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Chunk payloads are already zstd compressed.
			EnableCompression: false,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Non-browser clients send no Origin.
				return origin == "" || originAllowed(allowed, origin)
			},
		},
	}
}

// SetupStreamRoutes registers GET /ws. The connection authenticates with
// a stream token bound to a session.
func SetupStreamRoutes(mux *http.ServeMux, svc *Services) {
	handlers := NewStreamHandlers(svc)
	stream := svc.Auth.Authenticate(
		svc.Auth.RequireRole(auth.RoleStream)(http.HandlerFunc(handlers.HandleStream)),
	)
	mux.Handle("/ws", stream)
}

// HandleStream handles WebSocket connection upgrades
func (h *StreamHandlers) HandleStream(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := auth.GetSessionID(r)
	if !ok {
		auth.SendError(w, http.StatusUnauthorized, "MissingToken", "Stream token required")
		return
	}
	s, err := h.svc.Registry.Get(sessionID)
	if err != nil {
		auth.SendError(w, http.StatusNotFound, "SessionNotFound", "Session not found")
		return
	}

	// Negotiate protocol version
	requestedVersions := r.Header.Get("Sec-WebSocket-Protocol")
	selectedVersion := negotiateVersion(requestedVersions)
	if selectedVersion == "" {
		log.Printf("[Stream] version negotiation failed: requested=%s", requestedVersions)
		auth.SendError(w, http.StatusBadRequest, "UnsupportedProtocol", "Unsupported protocol version")
		return
	}

	responseHeaders := http.Header{}
	if requestedVersions != "" {
		responseHeaders.Set("Sec-WebSocket-Protocol", selectedVersion)
	}

	conn, err := h.upgrader.Upgrade(w, r, responseHeaders)
	if err != nil {
		log.Printf("[Stream] upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &StreamConnection{
		conn:      conn,
		session:   s,
		sessionID: sessionID,
		version:   selectedVersion,
		send:      make(chan []byte, 256),
		done:      make(chan struct{}),
		hub:       h.svc.Hub,
	}
	h.svc.Hub.Register(c)

	go c.writePump()
	go c.readPump()
}

// negotiateVersion selects the highest supported protocol version
func negotiateVersion(requested string) string {
	if requested == "" {
		// Default to v1 if no version specified
		return ProtocolVersion1
	}

	requestedVersions := strings.Split(requested, ",")
	for i := range requestedVersions {
		requestedVersions[i] = strings.TrimSpace(requestedVersions[i])
	}

	// Supported versions in order (highest first)
	supportedVersions := []string{ProtocolVersion1}

	for _, supported := range supportedVersions {
		for _, requested := range requestedVersions {
			if requested == supported {
				return supported
			}
		}
	}

	return ""
}

func (c *StreamConnection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil {
			log.Printf("[Stream] failed to close connection: %v", err)
		}
	})
}

// readPump greets the client, streams the session's pending chunks and
// then serves client messages until the connection drops.
func (c *StreamConnection) readPump() {
	defer c.hub.Unregister(c)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[Stream] failed to set read deadline: %v", err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		c.session.Touch()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stream, err := c.session.OpenStream()
	if err != nil {
		c.sendError("", "Session closed", "SessionClosed")
		return
	}
	c.stream = stream

	m := c.session.Manager()
	c.sendMessage(MessageWelcome, "", WelcomeData{
		SessionID: c.sessionID,
		Protocol:  c.version,
		Strategy:  c.session.Strategy,
		Config:    m.Config(),
		Cell:      m.Center(),
	})
	if !c.flush() {
		return
	}

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[Stream] read error: session=%s: %v", c.sessionID, err)
			}
			return
		}

		var msg WebSocketMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			c.sendError("", "Invalid message format", "InvalidMessageFormat")
			continue
		}
		if !c.handleMessage(&msg) {
			return
		}
	}
}

// writePump is the only writer on the connection.
func (c *StreamConnection) writePump() {
	ticker := time.NewTicker(defaultPingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Printf("[Stream] failed to set write deadline: %v", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Printf("[Stream] failed to set write deadline for ping: %v", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleMessage routes one client message. It returns false when the
// connection should close.
func (c *StreamConnection) handleMessage(msg *WebSocketMessage) bool {
	switch msg.Type {
	case MessagePing:
		c.session.Touch()
		c.sendMessage(MessagePong, msg.ID, nil)
		return true
	case MessageFocus:
		return c.handleFocus(msg)
	default:
		c.sendError(msg.ID, "Unknown message type", "UnknownMessageType")
		return true
	}
}

// handleFocus moves the session and sends the resulting chunk events
// followed by a focus_ack.
func (c *StreamConnection) handleFocus(msg *WebSocketMessage) bool {
	var data FocusData
	if len(msg.Data) == 0 || json.Unmarshal(msg.Data, &data) != nil {
		c.sendError(msg.ID, "focus requires a position", "InvalidFocus")
		return true
	}
	for _, v := range data.Position {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			c.sendError(msg.ID, "position must be finite", "InvalidFocus")
			return true
		}
	}

	delta, err := c.stream.Move(mgl32.Vec3(data.Position))
	switch {
	case errors.Is(err, session.ErrStreamReplaced):
		return false
	case errors.Is(err, streaming.ErrClosed):
		c.sendError(msg.ID, "Session closed", "SessionClosed")
		return false
	case errors.Is(err, streaming.ErrFocusOutOfRange):
		c.sendError(msg.ID, "position is outside the streamable grid", "InvalidFocus")
		return true
	case err != nil:
		log.Printf("[Stream] session %s move failed: %v", c.sessionID, err)
		c.sendError(msg.ID, err.Error(), "StreamFailed")
		return true
	}

	c.stream.Wait()
	events, err := c.stream.Flush()
	if err != nil {
		return false
	}
	c.sendEvents(events)

	m := c.session.Manager()
	ack := FocusAckData{Cell: m.Center(), Moved: delta != nil, Resident: m.Len()}
	for _, ev := range events {
		if ev.Kind == session.EventAttach {
			ack.Attached++
		} else {
			ack.Detached++
		}
	}
	c.sendMessage(MessageFocusAck, msg.ID, ack)
	return true
}

// flush sends every event ready on the stream. It returns false once the
// stream has been replaced or its session closed.
func (c *StreamConnection) flush() bool {
	c.stream.Wait()
	events, err := c.stream.Flush()
	if err != nil {
		if !errors.Is(err, session.ErrStreamReplaced) {
			c.sendError("", "Session closed", "SessionClosed")
		}
		return false
	}
	c.sendEvents(events)
	return true
}

func (c *StreamConnection) sendEvents(events []session.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case session.EventAttach:
			c.sendMessage(MessageChunkAttach, "", ChunkAttachData{
				ChunkID:  ev.ChunkID,
				Location: ev.Location,
				Geometry: ev.Payload,
			})
		case session.EventDetach:
			c.sendMessage(MessageChunkDetach, "", ChunkDetachData{
				ChunkID:  ev.ChunkID,
				Location: ev.Location,
			})
		}
	}
}

// sendMessage queues a message. It blocks while the client is behind and
// gives up once the connection is closed.
func (c *StreamConnection) sendMessage(msgType, id string, data interface{}) {
	msg := WebSocketMessage{Type: msgType, ID: id}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			log.Printf("[Stream] failed to marshal %s: %v", msgType, err)
			return
		}
		msg.Data = raw
	}
	b, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[Stream] failed to marshal %s: %v", msgType, err)
		return
	}
	c.enqueue(b)
}

// sendError sends an error message to the client
func (c *StreamConnection) sendError(id, errorMsg, code string) {
	b, err := json.Marshal(WebSocketError{
		Type:    MessageError,
		ID:      id,
		Error:   errorMsg,
		Message: errorMsg,
		Code:    code,
	})
	if err != nil {
		log.Printf("[Stream] failed to marshal error message: %v", err)
		return
	}
	c.enqueue(b)
}

func (c *StreamConnection) enqueue(b []byte) bool {
	select {
	case c.send <- b:
		return true
	case <-c.done:
		return false
	}
}
