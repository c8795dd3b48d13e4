package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/benchrig/benchrig-core/internal/adapter"
	"github.com/benchrig/benchrig-core/internal/infrastructure/config"
	"github.com/benchrig/benchrig-core/internal/infrastructure/logging"
)

// Message types on the websocket wire.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// ChannelOperationCompleted carries every finished instrument
	// operation, successful or not.
	ChannelOperationCompleted = "operation.completed"

	// wsSendBufferSize is the per-client outbound buffer. A client that
	// falls this far behind starts losing events rather than stalling
	// the hub.
	wsSendBufferSize = 256
)

// WSMessage is the envelope for everything crossing the websocket, in
// both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload names the channels a subscribe or unsubscribe
// request applies to.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub owns the set of connected websocket clients and fans events out
// to them.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected dashboard or script.
type WSClient struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	channels map[string]struct{}
	mu       sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin filtering already happened in the CORS middleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewHub creates an empty hub. Call Run to arm shutdown handling.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a freshly upgraded client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket peer joined", "clients", h.ClientCount())
}

// Unregister drops a client. Whichever goroutine actually removes the
// client from the map closes its send channel; losers of that race do
// nothing, so shutdown and read failure can both call this safely.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, present := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if present {
		close(client.send)
	}
	h.logger.Debug("websocket peer left", "clients", h.ClientCount())
}

// Broadcast fans an event out to every client subscribed to channel.
// The client set is snapshotted under the hub lock and released before
// any per-client work, so a slow client never stalls the hub.
func (h *Hub) Broadcast(channel string, payload any) {
	msg := WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("dropping broadcast, marshal failed", "error", err)
		return
	}

	delivered := 0
	for _, client := range h.snapshot() {
		if client.subscribed(channel) {
			client.trySend(frame)
			delivered++
		}
	}
	if delivered > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "recipients", delivered)
	}
}

// ClientCount reports how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) snapshot() []*WSClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// closeAll tears down every client so their write loops exit.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// HandleEvent relays one completed operation to subscribed websocket
// clients. Wired as an adapter observer through the registry, so every
// operation appears here whether it arrived over HTTP, MQTT, or a
// scripted client.
func (s *Server) HandleEvent(ev adapter.Event) {
	if s.hub == nil {
		return
	}

	payload := map[string]any{
		"instrument":   ev.Instrument,
		"operation_id": ev.ID,
		"path":         ev.Path,
		"verb":         ev.Kind.String(),
		"ok":           ev.Err == nil,
		"value":        ev.Value,
		"elapsed_ms":   ev.Elapsed.Milliseconds(),
	}
	if ev.Err != nil {
		payload["error"] = ev.Err.Error()
	}

	s.hub.Broadcast(ChannelOperationCompleted, payload)
}

// handleWebSocket upgrades the HTTP connection and hands it to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeInternalError(w, "event hub not running")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade rejected", "error", err)
		return
	}

	client := &WSClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
		channels: make(map[string]struct{}),
	}

	s.hub.Register(client)

	go client.writeLoop(s.wsCfg)
	go client.readLoop(s.wsCfg)
}

// wsGrace is how long a client may stay silent before the read side
// gives up on it.
func wsGrace(cfg config.WebSocketConfig) time.Duration {
	return cfg.PingEvery() + cfg.PongWait()
}

// readLoop consumes frames from the client until the connection dies.
// It owns the read deadline: any inbound traffic, pong frames included,
// buys the client another grace period.
func (c *WSClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	grace := wsGrace(cfg)
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	//nolint:errcheck // best-effort deadline on a fresh connection
	c.conn.SetReadDeadline(time.Now().Add(grace))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(grace))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "error", err)
			} else {
				c.hub.logger.Debug("websocket session ended", "error", err)
			}
			return
		}
		//nolint:errcheck // best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(grace))
		c.dispatch(frame)
	}
}

// writeLoop drains the send buffer onto the wire and keeps the
// connection alive with protocol pings.
func (c *WSClient) writeLoop(cfg config.WebSocketConfig) {
	ticker := time.NewTicker(cfg.PingEvery())
	writeWait := cfg.PongWait()

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				// hub closed the channel
				//nolint:errcheck // best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // the write error below is the real signal
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // the ping error below is the real signal
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one inbound frame by message type.
func (c *WSClient) dispatch(frame []byte) {
	var msg WSMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		c.sendError("", "malformed JSON frame")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.changeSubscription(msg, true)
	case WSTypeUnsubscribe:
		c.changeSubscription(msg, false)
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unsupported message type: "+msg.Type)
	}
}

// changeSubscription adds or removes channels on this client and
// acknowledges with the list that changed.
func (c *WSClient) changeSubscription(msg WSMessage, subscribe bool) {
	channels, err := decodeChannels(msg.Payload)
	if err != nil {
		c.sendError(msg.ID, err.Error())
		return
	}

	c.mu.Lock()
	for _, ch := range channels {
		if subscribe {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	verb := "unsubscribed"
	if subscribe {
		verb = "subscribed"
	}
	c.hub.logger.Info("websocket subscription changed", verb, channels)
	c.sendResponse(msg.ID, WSTypeResponse, map[string]any{verb: channels})
}

// decodeChannels recovers the typed channel list from the envelope's
// generic payload. The payload arrives as map[string]any after the
// envelope decode, so a JSON round trip is the faithful conversion.
func decodeChannels(payload any) ([]string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.New("invalid payload")
	}
	var sub WSSubscribePayload
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, errors.New("invalid channel list")
	}
	return sub.Channels, nil
}

// trySend queues a frame without ever blocking. A full buffer drops
// the frame; a closed channel (client unregistered mid-broadcast) is
// absorbed by the recover.
func (c *WSClient) trySend(frame []byte) {
	defer func() { _ = recover() }()

	select {
	case c.send <- frame:
	default:
	}
}

// subscribed reports whether this client asked for the channel.
func (c *WSClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

// sendResponse queues a reply envelope. Goes through trySend so a
// disconnect racing the reply cannot panic.
func (c *WSClient) sendResponse(id, msgType string, payload any) {
	msg := WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(frame)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
