package models

import (
	"time"

	"github.com/google/uuid"
)

// FinalReport is submitted to the result callback when a session terminates.
// Field names follow the callback's JSON contract.
type FinalReport struct {
	SessionID              string                `json:"sessionId"`
	ScamDetected           bool                  `json:"scamDetected"`
	TotalMessagesExchanged int                   `json:"totalMessagesExchanged"`
	ExtractedIntelligence  ExtractedIntelligence `json:"extractedIntelligence"`
	AgentNotes             string                `json:"agentNotes"`
}

// TerminationReason records which rule ended an engagement
type TerminationReason string

const (
	TerminationNone            TerminationReason = ""
	TerminationMaxTurns        TerminationReason = "max_turns"
	TerminationSufficientIntel TerminationReason = "sufficient_intelligence"
)

// DeliveryStatus tracks what happened to a report after termination
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// ReportRecord is a FinalReport with its archival metadata
type ReportRecord struct {
	ID                uuid.UUID         `json:"id"`
	Report            FinalReport       `json:"report"`
	TerminationReason TerminationReason `json:"termination_reason"`
	ScamConfidence    float64           `json:"scam_confidence"`
	Status            DeliveryStatus    `json:"status"`
	Attempts          int               `json:"attempts"`
	LastError         string            `json:"last_error,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	DeliveredAt       *time.Time        `json:"delivered_at,omitempty"`
}
