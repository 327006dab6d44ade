package models

import "time"

// Sender identifies which side of an engagement wrote a message
type Sender string

const (
	// SenderScammer is the counterpart being engaged
	SenderScammer Sender = "scammer"
	// SenderUser is the decoy persona
	SenderUser Sender = "user"
)

// IsValid reports whether s is a known sender value
func (s Sender) IsValid() bool {
	return s == SenderScammer || s == SenderUser
}

// Message is a single conversation turn. Timestamp is epoch milliseconds.
type Message struct {
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Time converts the epoch-ms timestamp to a time.Time
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Metadata carries optional channel hints sent alongside an intake
type Metadata struct {
	Channel  string `json:"channel,omitempty"`
	Language string `json:"language,omitempty"`
	Locale   string `json:"locale,omitempty"`
}

// DefaultMetadata mirrors what the upstream platform assumes when metadata is omitted
func DefaultMetadata() Metadata {
	return Metadata{Channel: "SMS", Language: "English", Locale: "IN"}
}

// Intake is one inbound message together with the conversation so far
type Intake struct {
	SessionID           string    `json:"sessionId"`
	Message             Message   `json:"message"`
	ConversationHistory []Message `json:"conversationHistory"`
	Metadata            *Metadata `json:"metadata,omitempty"`
}

// IsFirstMessage reports whether the intake opens a conversation
func (i Intake) IsFirstMessage() bool {
	return len(i.ConversationHistory) == 0
}

// Channel returns the metadata channel or the default one
func (i Intake) Channel() string {
	if i.Metadata != nil && i.Metadata.Channel != "" {
		return i.Metadata.Channel
	}
	return DefaultMetadata().Channel
}
