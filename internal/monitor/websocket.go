package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkarlberg/studiotether/internal/infrastructure/config"
	"github.com/mkarlberg/studiotether/internal/infrastructure/logging"
)

// Wire vocabulary for the event feed. Inbound messages carry a type and
// an optional payload; outbound messages add the event channel and a
// timestamp.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Broadcast channels. Clients subscribe by name; the daemon publishes as
// the pipeline reports changes.
const (
	// ChannelConnection carries session state transitions.
	ChannelConnection = "camera.connection"

	// ChannelFrame carries live-view frames (base64 JPEG payload).
	ChannelFrame = "camera.frame"

	// ChannelCacheUpdated fires after every preview cache insert or
	// replace.
	ChannelCacheUpdated = "preview.cache_updated"

	// ChannelCapture carries ingest results as files are catalogued.
	ChannelCapture = "capture.recorded"
)

// wsSendBuffer is the per-client outbound queue. A client that falls
// this far behind starts losing events rather than stalling the
// broadcaster.
const wsSendBuffer = 256

// WSMessage is an outbound feed message.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsInbound is the client-to-server half of the wire. The payload stays
// raw until the type is known.
type wsInbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload names the channels a subscribe or unsubscribe
// applies to.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub owns every WebSocket client and their channel subscriptions.
//
// Membership and subscriptions live in one map under one lock, so a
// broadcast resolves its audience without touching per-client state.
// Client shutdown is signalled through each client's done channel; the
// send channel is never closed, which keeps late deliveries harmless.
type Hub struct {
	logger *logging.Logger

	// Pump timing, fixed at construction.
	pingEvery   time.Duration
	idleAfter   time.Duration
	maxMsgBytes int64

	mu      sync.RWMutex
	clients map[*wsClient]map[string]struct{}
}

// wsClient is one feed connection. conn may be nil in tests that
// exercise hub bookkeeping without a socket.
type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	stop sync.Once
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin filtering happens in the CORS middleware.
		return true
	},
}

// NewHub creates a hub with pump timing taken from config. Zero values
// fall back to 30s pings and a 60s pong allowance.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	ping := time.Duration(cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = 30 * time.Second
	}
	pong := time.Duration(cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = 60 * time.Second
	}
	maxBytes := int64(cfg.MaxMessageSize)
	if maxBytes <= 0 {
		maxBytes = 8192
	}

	return &Hub{
		logger:      logger,
		pingEvery:   ping,
		idleAfter:   ping + pong,
		maxMsgBytes: maxBytes,
		clients:     make(map[*wsClient]map[string]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	for c := range h.clients {
		c.close()
	}
	h.clients = make(map[*wsClient]map[string]struct{})
	h.mu.Unlock()
}

// Broadcast delivers payload to every client subscribed to channel,
// marshalling once for the whole audience. Slow clients lose the event;
// nothing here blocks the pipeline.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	audience := make([]*wsClient, 0, len(h.clients))
	for c, subs := range h.clients {
		if _, ok := subs[channel]; ok {
			audience = append(audience, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range audience {
		c.deliver(data)
	}
}

// ClientCount returns the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// attach adds a client with no subscriptions.
func (h *Hub) attach(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = make(map[string]struct{})
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// detach removes a client and signals its pumps to exit. Safe to call
// more than once per client.
func (h *Hub) detach(c *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	c.close()
	if existed {
		h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
	}
}

// subscribe adds channels to a client's set. Unknown channel names are
// accepted; they simply never match a broadcast.
func (h *Hub) subscribe(c *wsClient, channels []string) {
	h.mu.Lock()
	if subs, ok := h.clients[c]; ok {
		for _, ch := range channels {
			subs[ch] = struct{}{}
		}
	}
	h.mu.Unlock()
}

// unsubscribe removes channels from a client's set.
func (h *Hub) unsubscribe(c *wsClient, channels []string) {
	h.mu.Lock()
	if subs, ok := h.clients[c]; ok {
		for _, ch := range channels {
			delete(subs, ch)
		}
	}
	h.mu.Unlock()
}

func newWSClient(h *Hub, conn *websocket.Conn) *wsClient {
	return &wsClient{
		hub:  h,
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
	}
}

// close signals the pumps and drops the socket. Idempotent.
func (c *wsClient) close() {
	c.stop.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// deliver queues data for the write pump. Returns immediately whether
// the client is gone, backlogged, or healthy.
func (c *wsClient) deliver(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		// Send buffer full; the client is too slow for this event.
	}
}

// handleWebSocket upgrades the connection and starts the pumps. The
// monitor binds to loopback for a single operator, so the upgrade is
// direct.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn)
	s.hub.attach(client)

	go client.writePump()
	go client.readPump()
}

// readPump consumes inbound messages until the connection drops, then
// detaches the client. Any inbound traffic counts as liveness, not just
// protocol pongs.
func (c *wsClient) readPump() {
	defer c.hub.detach(c)

	c.conn.SetReadLimit(c.hub.maxMsgBytes)
	c.extendReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		c.extendReadDeadline()
		c.route(data)
	}
}

// writePump owns all writes on the connection: queued deliveries, keep-
// alive pings, and the final close frame.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.hub.pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			//nolint:errcheck // Best-effort close frame on the way out
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// write stamps a deadline and sends one frame.
func (c *wsClient) write(messageType int, data []byte) error {
	//nolint:errcheck // Deadline failure surfaces in the write below
	c.conn.SetWriteDeadline(time.Now().Add(c.hub.idleAfter))
	return c.conn.WriteMessage(messageType, data)
}

func (c *wsClient) extendReadDeadline() {
	//nolint:errcheck // Deadline failure surfaces in the next read
	c.conn.SetReadDeadline(time.Now().Add(c.hub.idleAfter))
}

// route dispatches one inbound message.
func (c *wsClient) route(data []byte) {
	var msg wsInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.replyError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		channels, ok := c.decodeChannels(msg)
		if !ok {
			return
		}
		c.hub.subscribe(c, channels)
		c.hub.logger.Debug("websocket client subscribed", "channels", channels)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"subscribed": channels})

	case WSTypeUnsubscribe:
		channels, ok := c.decodeChannels(msg)
		if !ok {
			return
		}
		c.hub.unsubscribe(c, channels)
		c.reply(msg.ID, WSTypeResponse, map[string]any{"unsubscribed": channels})

	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)

	default:
		c.replyError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// decodeChannels parses a subscribe/unsubscribe payload, reporting the
// failure to the client itself.
func (c *wsClient) decodeChannels(msg wsInbound) ([]string, bool) {
	var payload WSSubscribePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		c.replyError(msg.ID, "invalid "+msg.Type+" payload")
		return nil, false
	}
	return payload.Channels, true
}

// reply queues a direct response to this client.
func (c *wsClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.deliver(data)
}

func (c *wsClient) replyError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
