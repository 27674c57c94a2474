package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gdogen/internal/infrastructure/config"
	"github.com/nerrad567/gdogen/internal/infrastructure/logging"
)

// Message types exchanged with WebSocket clients.
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgPing        = "ping"
	MsgPong        = "pong"
	MsgEvent       = "event"
	MsgAck         = "ack"
	MsgError       = "error"

	// outboxSize is the number of messages buffered per client before new
	// ones are dropped.
	outboxSize = 64
)

// channels are the event streams a client may subscribe to.
var channels = map[string]struct{}{
	ChannelBuildCompleted: {},
	ChannelBuildFailed:    {},
}

// Message is one frame of the event stream protocol.
//
// Clients send subscribe, unsubscribe and ping. The server answers with
// ack, pong or error, echoing ID, and pushes event frames for every build
// on a subscribed channel.
type Message struct {
	Type      string   `json:"type"`
	ID        string   `json:"id,omitempty"`
	Channel   string   `json:"channel,omitempty"`
	Channels  []string `json:"channels,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Payload   any      `json:"payload,omitempty"`
}

// Hub fans build events out to connected subscribers.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:         cfg,
		logger:      logger,
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every subscriber.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		subs = append(subs, s)
		delete(h.subscribers, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.shutdown()
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast pushes payload as an event on channel to every subscriber of it.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(Message{
		Type:      MsgEvent,
		Channel:   channel,
		Timestamp: timestamp(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to encode build event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if s.wants(channel) && s.deliver(data) {
			delivered++
		}
	}
	if delivered > 0 {
		h.logger.Debug("build event delivered", "channel", channel, "subscribers", delivered)
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	n := len(h.subscribers)
	h.mu.Unlock()
	h.logger.Debug("event stream client connected", "clients", n)
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, s)
	n := len(h.subscribers)
	h.mu.Unlock()
	s.shutdown()
	h.logger.Debug("event stream client disconnected", "clients", n)
}

// subscriber is one WebSocket connection. Its outbox is closed exactly once,
// by shutdown; deliver never sends after that.
type subscriber struct {
	hub  *Hub
	conn *websocket.Conn

	pingInterval time.Duration
	pongWait     time.Duration

	mu       sync.Mutex
	outbox   chan []byte
	closed   bool
	channels map[string]struct{}
}

func newSubscriber(h *Hub, conn *websocket.Conn) *subscriber {
	return &subscriber{
		hub:          h,
		conn:         conn,
		pingInterval: time.Duration(h.cfg.PingInterval) * time.Second,
		pongWait:     time.Duration(h.cfg.PongTimeout) * time.Second,
		outbox:       make(chan []byte, outboxSize),
		channels:     make(map[string]struct{}),
	}
}

// handleWebSocket upgrades the request and attaches the connection to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sub := newSubscriber(s.hub, conn)
	s.hub.add(sub)
	go sub.writeLoop()
	go sub.readLoop()
}

func (c *subscriber) readLoop() {
	defer c.hub.remove(c)

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	c.extendDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("event stream read error", "error", err)
			}
			return
		}
		c.extendDeadline()
		c.handle(data)
	}
}

func (c *subscriber) writeLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.outbox:
			if !ok {
				//nolint:errcheck // Best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
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

func (c *subscriber) write(kind int, data []byte) error {
	//nolint:errcheck // A missed deadline surfaces as a write error
	c.conn.SetWriteDeadline(time.Now().Add(c.pongWait))
	return c.conn.WriteMessage(kind, data)
}

func (c *subscriber) extendDeadline() {
	//nolint:errcheck // A missed deadline surfaces as a read error
	c.conn.SetReadDeadline(time.Now().Add(c.pingInterval + c.pongWait))
}

func (c *subscriber) handle(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(Message{Type: MsgError, Payload: errorPayload("invalid JSON message")})
		return
	}

	switch msg.Type {
	case MsgSubscribe, MsgUnsubscribe:
		for _, ch := range msg.Channels {
			if _, ok := channels[ch]; !ok {
				c.reply(Message{Type: MsgError, ID: msg.ID, Payload: errorPayload("unknown channel: " + ch)})
				return
			}
		}
		c.reply(Message{Type: MsgAck, ID: msg.ID, Channels: c.update(msg.Channels, msg.Type == MsgSubscribe)})
	case MsgPing:
		c.reply(Message{Type: MsgPong, ID: msg.ID})
	default:
		c.reply(Message{Type: MsgError, ID: msg.ID, Payload: errorPayload("unknown message type: " + msg.Type)})
	}
}

// update applies a subscribe or unsubscribe and returns the resulting
// subscriptions, sorted.
func (c *subscriber) update(names []string, subscribe bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ch := range names {
		if subscribe {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}

	current := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		current = append(current, ch)
	}
	sort.Strings(current)
	return current
}

func (c *subscriber) wants(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *subscriber) reply(msg Message) {
	msg.Timestamp = timestamp()
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.deliver(data)
}

// deliver queues data without blocking. A full outbox drops the message.
func (c *subscriber) deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.outbox <- data:
		return true
	default:
		return false
	}
}

func (c *subscriber) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.outbox)
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
