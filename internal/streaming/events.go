package streaming

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"honeypot-lab/internal/domain/models"
)

// EventType represents the type of engagement event
type EventType string

const (
	EventTypeSessionStarted        EventType = "session_started"
	EventTypeScamDetected          EventType = "scam_detected"
	EventTypeIntelligenceExtracted EventType = "intelligence_extracted"
	EventTypeSessionTerminated     EventType = "session_terminated"
)

// EventTypes lists every event type in session lifecycle order
var EventTypes = []EventType{
	EventTypeSessionStarted,
	EventTypeScamDetected,
	EventTypeIntelligenceExtracted,
	EventTypeSessionTerminated,
}

// Valid reports whether t is a known event type
func (t EventType) Valid() bool {
	return slices.Contains(EventTypes, t)
}

// EngagementEvent represents a real-time update about one honeypot session
type EngagementEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	// Origin identifies the publishing process so NATS echoes can be skipped
	Origin string `json:"origin,omitempty"`

	SessionID string `json:"session_id"`
	Channel   string `json:"channel,omitempty"`

	// Classification details
	IsScam      bool    `json:"is_scam,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Explanation string  `json:"explanation,omitempty"`

	// Newly captured entities, keyed by entity kind
	Entities map[models.EntityKind][]string `json:"entities,omitempty"`

	// Termination details
	Reason   models.TerminationReason `json:"reason,omitempty"`
	ReportID string                   `json:"report_id,omitempty"`
	Report   *models.FinalReport      `json:"report,omitempty"`
}

// NewEngagementEvent creates an event stamped with a fresh id and time
func NewEngagementEvent(eventType EventType, sessionID, channel string) *EngagementEvent {
	return &EngagementEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Channel:   channel,
	}
}

// Subscription represents a client's subscription preferences
type Subscription struct {
	// Filter by event types (empty = all)
	Types []EventType `json:"types,omitempty"`

	// Filter by conversation channel, e.g. SMS or WhatsApp (empty = all)
	Channels []string `json:"channels,omitempty"`

	// Follow a single session
	SessionID string `json:"session_id,omitempty"`

	// Drop scam_detected events below this confidence
	MinConfidence float64 `json:"min_confidence,omitempty"`
}

// Validate rejects unknown event types and a confidence floor outside [0,1]
func (s *Subscription) Validate() error {
	for _, t := range s.Types {
		if !t.Valid() {
			return fmt.Errorf("unknown event type %q", t)
		}
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be within [0,1], got %v", s.MinConfidence)
	}
	return nil
}

// Matches checks if an event matches the subscription filters
func (s *Subscription) Matches(event *EngagementEvent) bool {
	if len(s.Types) > 0 && !slices.Contains(s.Types, event.Type) {
		return false
	}

	if len(s.Channels) > 0 && !slices.ContainsFunc(s.Channels, func(c string) bool {
		return strings.EqualFold(c, event.Channel)
	}) {
		return false
	}

	if s.SessionID != "" && s.SessionID != event.SessionID {
		return false
	}

	if event.Type == EventTypeScamDetected && event.Confidence < s.MinConfidence {
		return false
	}

	return true
}
