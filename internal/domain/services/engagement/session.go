package engagement

import (
	"slices"
	"strings"
	"time"

	"honeypot-lab/internal/domain/models"
)

const noTacticsObserved = "No specific tactics observed"

// Session is the evidence accumulated for one conversation.
// A Session is owned by the Registry; callers only ever see copies.
type Session struct {
	ID             string                       `json:"session_id"`
	Channel        string                       `json:"channel"`
	Intelligence   models.ExtractedIntelligence `json:"intelligence"`
	TurnCount      int                          `json:"turn_count"`
	ScamDetected   bool                         `json:"scam_detected"`
	ScamConfidence float64                      `json:"scam_confidence"`
	Classified     bool                         `json:"classified"`
	Explanation    string                       `json:"explanation,omitempty"`
	Indicators     *models.ScamIndicators       `json:"indicators,omitempty"`
	Notes          []string                     `json:"agent_notes"`
	CreatedAt      time.Time                    `json:"created_at"`
	UpdatedAt      time.Time                    `json:"updated_at"`
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		Intelligence: models.NewExtractedIntelligence(),
		Notes:        []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RecordTurn counts one inbound message, regardless of sender
func (s *Session) RecordTurn(now time.Time) {
	s.TurnCount++
	s.UpdatedAt = now
}

// Classify stores the first classification. Later calls are ignored.
func (s *Session) Classify(result models.ClassificationResult, indicators models.ScamIndicators) bool {
	if s.Classified {
		return false
	}
	s.Classified = true
	s.ScamDetected = result.IsScam
	s.ScamConfidence = result.Confidence
	s.Explanation = result.Explanation
	s.Indicators = &indicators
	return true
}

// AddNote appends an observation. Empty notes are dropped.
func (s *Session) AddNote(note string) {
	if note == "" {
		return
	}
	s.Notes = append(s.Notes, note)
}

// NotesSummary joins the notes for the final report
func (s *Session) NotesSummary() string {
	if len(s.Notes) == 0 {
		return noTacticsObserved
	}
	return strings.Join(s.Notes, "; ")
}

// Report builds the final report from the current state
func (s *Session) Report() models.FinalReport {
	return models.FinalReport{
		SessionID:              s.ID,
		ScamDetected:           s.ScamDetected,
		TotalMessagesExchanged: s.TurnCount,
		ExtractedIntelligence:  s.Intelligence.Clone(),
		AgentNotes:             s.NotesSummary(),
	}
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	c := *s
	c.Intelligence = s.Intelligence.Clone()
	c.Notes = slices.Clone(s.Notes)
	if c.Notes == nil {
		c.Notes = []string{}
	}
	if s.Indicators != nil {
		ind := models.ScamIndicators{
			Keywords:     slices.Clone(s.Indicators.Keywords),
			Patterns:     slices.Clone(s.Indicators.Patterns),
			UrgencyLevel: s.Indicators.UrgencyLevel,
		}
		c.Indicators = &ind
	}
	return &c
}
