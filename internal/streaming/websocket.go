package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"honeypot-lab/internal/metrics"
	"honeypot-lab/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxCommandSize = 4 * 1024
	sendBuffer     = 256
)

// Close reasons sent to dashboards when the hub drops them
const (
	CloseReasonSessionEnded = "session terminated"
	CloseReasonShutdown     = "server shutting down"
)

// Control frame types. They share the "type" key with events.
const (
	ControlSubscribed = "subscribed"
	ControlError      = "error"
)

// Client command actions
const (
	ActionSubscribe = "subscribe"
	ActionReset     = "reset"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Dashboards are served from other origins; the route is API-key protected
		return true
	},
}

// ControlMessage acknowledges a filter change or reports a rejected command
type ControlMessage struct {
	Type         string        `json:"type"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Message      string        `json:"message,omitempty"`
}

// ClientCommand is what a dashboard sends over the socket.
// "subscribe" replaces the filter, "reset" clears it.
type ClientCommand struct {
	Action       string        `json:"action"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// WebSocketHub feeds engagement events to dashboards. Clients that follow a
// single session are indexed by session id and are disconnected once that
// session's report is filed; the rest watch the whole stream through their
// filter.
type WebSocketHub struct {
	logger *logger.Logger

	mu        sync.Mutex
	watchers  map[*WebSocketClient]struct{}
	followers map[string]map[*WebSocketClient]struct{}
	clients   int
}

// WebSocketClient is one dashboard connection. sub and the close fields are
// guarded by the hub's mutex.
type WebSocketClient struct {
	hub    *WebSocketHub
	conn   *websocket.Conn
	send   chan []byte
	logger *logger.Logger

	sub         Subscription
	closed      bool
	closeCode   int
	closeReason string
}

// NewWebSocketHub creates a new WebSocket hub
func NewWebSocketHub(log *logger.Logger) *WebSocketHub {
	return &WebSocketHub{
		logger:    log.WithComponent("websocket-hub"),
		watchers:  make(map[*WebSocketClient]struct{}),
		followers: make(map[string]map[*WebSocketClient]struct{}),
	}
}

// Run forwards events from src until ctx is done or src is closed, then
// disconnects every client.
func (h *WebSocketHub) Run(ctx context.Context, src <-chan *EngagementEvent) {
	h.logger.Info().Msg("WebSocket hub started")
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("WebSocket hub stopping")
			return
		case event, ok := <-src:
			if !ok {
				h.logger.Info().Msg("event source closed, WebSocket hub stopping")
				return
			}
			h.dispatch(event)
		}
	}
}

func (h *WebSocketHub) dispatch(event *EngagementEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("event_id", event.ID).Msg("failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.watchers {
		if c.sub.Matches(event) {
			h.deliverLocked(c, data)
		}
	}

	followers := h.followers[event.SessionID]
	for c := range followers {
		if c.sub.Matches(event) {
			h.deliverLocked(c, data)
		}
	}

	// a new message with the same id starts an unrelated session
	if event.Type == EventTypeSessionTerminated {
		for c := range followers {
			h.removeLocked(c, websocket.CloseNormalClosure, CloseReasonSessionEnded)
		}
	}
}

func (h *WebSocketHub) deliverLocked(c *WebSocketClient, data []byte) {
	select {
	case c.send <- data:
	default:
		metrics.StreamEventsDropped.Inc()
		c.logger.Debug().Msg("client buffer full, dropping frame")
	}
}

func (h *WebSocketHub) replyLocked(c *WebSocketClient, msg ControlMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.deliverLocked(c, data)
}

func (h *WebSocketHub) indexLocked(c *WebSocketClient) {
	if c.sub.SessionID == "" {
		h.watchers[c] = struct{}{}
		return
	}
	set, ok := h.followers[c.sub.SessionID]
	if !ok {
		set = make(map[*WebSocketClient]struct{})
		h.followers[c.sub.SessionID] = set
	}
	set[c] = struct{}{}
}

func (h *WebSocketHub) unindexLocked(c *WebSocketClient) {
	delete(h.watchers, c)
	if set, ok := h.followers[c.sub.SessionID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.followers, c.sub.SessionID)
		}
	}
}

// removeLocked drops c from the hub. Frames already queued are still written
// before the close frame.
func (h *WebSocketHub) removeLocked(c *WebSocketClient, code int, reason string) {
	if c.closed {
		return
	}
	h.unindexLocked(c)
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.send)

	h.clients--
	metrics.StreamClients.Set(float64(h.clients))
}

func (h *WebSocketHub) register(c *WebSocketClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.indexLocked(c)
	h.clients++
	metrics.StreamClients.Set(float64(h.clients))

	sub := c.sub
	h.replyLocked(c, ControlMessage{Type: ControlSubscribed, Subscription: &sub})
	c.logger.Info().Int("clients", h.clients).Str("following", c.sub.SessionID).Msg("client connected")
}

func (h *WebSocketHub) unregister(c *WebSocketClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, websocket.CloseNormalClosure, "")
}

func (h *WebSocketHub) resubscribe(c *WebSocketClient, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}

	h.unindexLocked(c)
	c.sub = sub
	h.indexLocked(c)

	h.replyLocked(c, ControlMessage{Type: ControlSubscribed, Subscription: &sub})
	c.logger.Debug().Str("following", sub.SessionID).Msg("subscription updated")
}

func (h *WebSocketHub) reject(c *WebSocketClient, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	h.replyLocked(c, ControlMessage{Type: ControlError, Message: message})
}

func (h *WebSocketHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.watchers {
		h.removeLocked(c, websocket.CloseGoingAway, CloseReasonShutdown)
	}
	for _, set := range h.followers {
		for c := range set {
			h.removeLocked(c, websocket.CloseGoingAway, CloseReasonShutdown)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}

// FollowedSessions returns how many distinct sessions have a dedicated follower
func (h *WebSocketHub) FollowedSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.followers)
}

// SubscriptionFromQuery builds a dashboard's initial filter from
// ?session_id=, ?channel=, ?type= and ?min_confidence=. channel and type
// accept repeated parameters or comma separated lists.
func SubscriptionFromQuery(q url.Values) (Subscription, error) {
	sub := Subscription{
		SessionID: strings.TrimSpace(q.Get("session_id")),
		Channels:  splitList(q["channel"]),
	}
	for _, t := range splitList(q["type"]) {
		sub.Types = append(sub.Types, EventType(t))
	}
	if raw := q.Get("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Subscription{}, fmt.Errorf("min_confidence must be a number, got %q", raw)
		}
		sub.MinConfidence = v
	}
	if err := sub.Validate(); err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// ServeWebSocket upgrades a dashboard connection. A malformed filter in the
// query string is rejected with 400 before the upgrade.
func (h *WebSocketHub) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	sub, err := SubscriptionFromQuery(r.URL.Query())
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	log := h.logger
	if sub.SessionID != "" {
		log = log.WithSessionID(sub.SessionID)
	}
	client := &WebSocketClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: log,
		sub:    sub,
	}

	h.register(client)

	go client.writePump()
	go client.readPump()
}

// readPump applies dashboard commands until the connection drops
func (c *WebSocketClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxCommandSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		var cmd ClientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.hub.reject(c, "malformed command")
			continue
		}

		switch cmd.Action {
		case ActionSubscribe:
			if cmd.Subscription == nil {
				c.hub.reject(c, "subscribe requires a subscription")
				continue
			}
			if err := cmd.Subscription.Validate(); err != nil {
				c.hub.reject(c, err.Error())
				continue
			}
			c.hub.resubscribe(c, *cmd.Subscription)
		case ActionReset:
			c.hub.resubscribe(c, Subscription{})
		default:
			c.hub.reject(c, fmt.Sprintf("unknown action %q", cmd.Action))
		}
	}
}

// writePump writes one frame per event, then a close frame once the hub
// drops the client.
func (c *WebSocketClient) writePump() {
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
				// closeCode and closeReason were set before send was closed
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(c.closeCode, c.closeReason))
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
