package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeGuardInput is emitted after every input-stage evaluation
	EventTypeGuardInput EventType = "guard_input"
	// EventTypeGuardOutput is emitted after every output-stage evaluation
	EventTypeGuardOutput EventType = "guard_output"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// GuardEvent summarises one guard evaluation. It never carries request
// text, sanitised text or mapping values.
type GuardEvent struct {
	RequestID      string         `json:"request_id"`
	Stage          string         `json:"stage"`
	Blocked        bool           `json:"blocked"`
	Valid          bool           `json:"valid"`
	InjectionScore float64        `json:"injection_score"`
	BiasScore      float64        `json:"bias_score"`
	MatchedRules   []string       `json:"matched_rules"`
	PIIEntities    map[string]int `json:"pii_entities,omitempty"`
	Violations     []string       `json:"violations,omitempty"`
	Unresolved     int            `json:"unresolved_placeholders,omitempty"`
	ProcessingMS   float64        `json:"processing_ms"`
	ClientIP       string         `json:"client_ip,omitempty"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	CorpusVersion    string `json:"corpus_version"`
	ActiveRules      int    `json:"active_rules"`
	ConnectedClients int    `json:"connected_clients"`
	Message          string `json:"message,omitempty"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string              `json:"type"`
	Data SubscriptionRequest `json:"data"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter narrows guard events for a subscriber
type EventFilter struct {
	BlockedOnly bool     `json:"blocked_only,omitempty"`
	MinScore    float64  `json:"min_score,omitempty"`
	Rules       []string `json:"rules,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	subscription *SubscriptionRequest
}
