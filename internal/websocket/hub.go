// Package websocket streams guard events to dashboard clients.
package websocket

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raaihank/llm-guardrails/internal/config"
	"github.com/raaihank/llm-guardrails/internal/security"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	defaultWriteWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer
	defaultPongWait = 60 * time.Second
	// Maximum message size allowed from peer
	defaultMaxMessageSize = 512
	// Buffered events per client before it is dropped as too slow
	sendBuffer = 256
)

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound events waiting for fan-out
	broadcast chan Event

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	config   config.WebSocketConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
	clientIP func(*http.Request) string

	mu    sync.RWMutex
	stats HubStats
}

// HubStats tracks WebSocket hub statistics
type HubStats struct {
	TotalConnections   int64     `json:"total_connections"`
	ActiveConnections  int64     `json:"active_connections"`
	TotalMessages      int64     `json:"total_messages"`
	TotalBroadcasts    int64     `json:"total_broadcasts"`
	DroppedClients     int64     `json:"dropped_clients"`
	LastConnectionTime time.Time `json:"last_connection_time"`
	LastBroadcastTime  time.Time `json:"last_broadcast_time"`
}

// NewHub creates a new WebSocket hub
func NewHub(cfg config.WebSocketConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, sendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		config:     cfg,
		logger:     logger.With(zap.String("component", "websocket")),
		clientIP:   new(security.ClientIPResolver).ClientIP,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SetClientIPFunc sets how client addresses are derived. Call before serving.
func (h *Hub) SetClientIPFunc(fn func(*http.Request) string) {
	if fn != nil {
		h.clientIP = fn
	}
}

// Run handles client registration and broadcasting until ctx is done
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("Starting WebSocket hub")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("WebSocket hub stopped")
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.mu.Lock()
			h.stats.TotalBroadcasts++
			h.stats.LastBroadcastTime = time.Now()
			h.deliver(event, nil)
			h.mu.Unlock()
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	h.stats.TotalConnections++
	h.stats.LastConnectionTime = time.Now()

	h.logger.Info("Client connected",
		zap.String("client_id", client.ID),
		zap.String("client_ip", client.IP),
		zap.Int("active_connections", len(h.clients)),
	)

	if h.config.Events.BroadcastConnections {
		h.deliver(connectionEvent("connected", client), client)
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)

	h.logger.Info("Client disconnected",
		zap.String("client_id", client.ID),
		zap.String("client_ip", client.IP),
		zap.Int("active_connections", len(h.clients)),
	)

	if h.config.Events.BroadcastConnections {
		h.deliver(connectionEvent("disconnected", client), nil)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		delete(h.clients, client)
		close(client.Send)
	}
}

// deliver fans an event out to subscribed clients. Callers hold h.mu.
func (h *Hub) deliver(event Event, exclude *Client) {
	for client := range h.clients {
		if client == exclude || !shouldSendToClient(client, event) {
			continue
		}
		select {
		case client.Send <- event:
			h.stats.TotalMessages++
		default:
			h.logger.Warn("Client send channel full, closing connection",
				zap.String("client_id", client.ID),
			)
			delete(h.clients, client)
			close(client.Send)
			h.stats.DroppedClients++
		}
	}
}

// sendTo queues an event for one client if it is still registered
func (h *Hub) sendTo(client *Client, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		return
	}
	select {
	case client.Send <- event:
		h.stats.TotalMessages++
	default:
	}
}

// shouldSendToClient applies the client's subscription to an event
func shouldSendToClient(client *Client, event Event) bool {
	sub := client.subscription
	if sub == nil {
		return true
	}

	subscribed := len(sub.Events) == 0
	for _, eventType := range sub.Events {
		if eventType == event.Type {
			subscribed = true
			break
		}
	}
	if !subscribed {
		return false
	}

	if sub.Filter != nil {
		if guard, ok := event.Data.(GuardEvent); ok {
			return applyEventFilter(sub.Filter, guard)
		}
	}
	return true
}

func applyEventFilter(filter *EventFilter, event GuardEvent) bool {
	if filter.BlockedOnly && !event.Blocked && event.Valid {
		return false
	}
	if filter.MinScore > 0 && event.InjectionScore < filter.MinScore && event.BiasScore < filter.MinScore {
		return false
	}
	if len(filter.Rules) > 0 {
		for _, want := range filter.Rules {
			for _, got := range event.MatchedRules {
				if want == got {
					return true
				}
			}
		}
		return false
	}
	return true
}

// BroadcastEvent queues an event for all clients if its type is enabled
func (h *Hub) BroadcastEvent(event Event) {
	if !h.shouldBroadcastEvent(event.Type) {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast channel full, dropping event",
			zap.String("event_type", string(event.Type)),
		)
	}
}

// BroadcastGuard publishes the summary of one guard evaluation
func (h *Hub) BroadcastGuard(eventType EventType, guard GuardEvent) {
	h.BroadcastEvent(Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      guard,
		RequestID: guard.RequestID,
	})
}

// BroadcastStatus publishes a system status event
func (h *Hub) BroadcastStatus(status SystemStatusEvent) {
	status.ConnectedClients = h.ClientCount()
	h.BroadcastEvent(Event{
		Type:      EventTypeSystemStatus,
		Timestamp: time.Now(),
		Data:      status,
	})
}

func (h *Hub) shouldBroadcastEvent(eventType EventType) bool {
	if !h.config.Enabled {
		return false
	}

	switch eventType {
	case EventTypeGuardInput, EventTypeGuardOutput:
		return h.config.Events.BroadcastGuards
	case EventTypeSystemStatus:
		return h.config.Events.BroadcastSystem
	case EventTypeConnection:
		return h.config.Events.BroadcastConnections
	default:
		return false
	}
}

// HandleWebSocket upgrades the request and registers the client
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="guardrails"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if h.config.MaxConnections > 0 && h.ClientCount() >= h.config.MaxConnections {
		http.Error(w, "Too many WebSocket connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		Conn:        conn,
		Send:        make(chan Event, sendBuffer),
		ConnectedAt: time.Now(),
		IP:          h.clientIP(r),
		UserAgent:   r.UserAgent(),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go h.handleClientWrite(client)
	go h.handleClientRead(client)
}

func (h *Hub) authorized(r *http.Request) bool {
	if h.config.Username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.config.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.config.Password)) == 1
	return userOK && passOK
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.config.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	h.logger.Warn("Rejected WebSocket origin", zap.String("origin", origin))
	return false
}

func (h *Hub) handleClientWrite(client *Client) {
	writeWait := durationOr(h.config.WriteTimeout, defaultWriteWait)
	ticker := time.NewTicker(h.pingPeriod())
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn.WriteJSON(event); err != nil {
				h.logger.Error("Failed to write WebSocket message",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) handleClientRead(client *Client) {
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
		client.Conn.Close()
	}()

	pongWait := durationOr(h.config.PongTimeout, defaultPongWait)
	maxMessageSize := h.config.MaxMessageSize
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := client.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error",
					zap.String("client_id", client.ID),
					zap.Error(err),
				)
			}
			return
		}
		h.handleClientMessage(client, msg)
	}
}

func (h *Hub) handleClientMessage(client *Client, msg ClientMessage) {
	switch msg.Type {
	case "subscribe":
		sub := msg.Data
		h.mu.Lock()
		client.subscription = &sub
		h.mu.Unlock()
		h.logger.Debug("Client subscription updated",
			zap.String("client_id", client.ID),
			zap.Any("subscription", sub),
		)
	case "unsubscribe":
		h.mu.Lock()
		client.subscription = nil
		h.mu.Unlock()
	case "ping":
		h.sendTo(client, Event{
			Type:      EventTypePong,
			Timestamp: time.Now(),
			Data:      map[string]string{"message": "pong"},
		})
	}
}

func (h *Hub) pingPeriod() time.Duration {
	if h.config.PingInterval > 0 {
		return h.config.PingInterval
	}
	return durationOr(h.config.PongTimeout, defaultPongWait) * 9 / 10
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetStats returns current hub statistics
func (h *Hub) GetStats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := h.stats
	stats.ActiveConnections = int64(len(h.clients))
	return stats
}

func connectionEvent(action string, client *Client) Event {
	return Event{
		Type:      EventTypeConnection,
		Timestamp: time.Now(),
		Data: ConnectionEvent{
			Action:    action,
			ClientID:  client.ID,
			ClientIP:  client.IP,
			UserAgent: client.UserAgent,
			Message:   fmt.Sprintf("Client %s %s", client.ID, action),
		},
	}
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
