package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/engagement"
	"honeypot-lab/pkg/logger"
)

// SessionsHandler serves snapshots of live engagements
type SessionsHandler struct {
	sessions SessionReader
	logger   *logger.Logger
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(sessions SessionReader, log *logger.Logger) *SessionsHandler {
	return &SessionsHandler{
		sessions: sessions,
		logger:   log.WithComponent("sessions-handler"),
	}
}

// SessionResponse is a point-in-time view of one session
type SessionResponse struct {
	SessionID             string                       `json:"sessionId"`
	Channel               string                       `json:"channel"`
	TurnCount             int                          `json:"turnCount"`
	ScamDetected          bool                         `json:"scamDetected"`
	ScamConfidence        float64                      `json:"scamConfidence"`
	Explanation           string                       `json:"explanation,omitempty"`
	Indicators            *models.ScamIndicators       `json:"indicators,omitempty"`
	ExtractedIntelligence models.ExtractedIntelligence `json:"extractedIntelligence"`
	Summary               string                       `json:"summary"`
	AgentNotes            string                       `json:"agentNotes"`
	CreatedAt             string                       `json:"createdAt"`
	UpdatedAt             string                       `json:"updatedAt"`
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sess, err := h.sessions.Get(id)
	if errors.Is(err, engagement.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", id).Msg("failed to read session")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		SessionID:             sess.ID,
		Channel:               sess.Channel,
		TurnCount:             sess.TurnCount,
		ScamDetected:          sess.ScamDetected,
		ScamConfidence:        sess.ScamConfidence,
		Explanation:           sess.Explanation,
		Indicators:            sess.Indicators,
		ExtractedIntelligence: sess.Intelligence,
		Summary:               sess.Intelligence.Summary(),
		AgentNotes:            sess.NotesSummary(),
		CreatedAt:             timestamp(sess.CreatedAt),
		UpdatedAt:             timestamp(sess.UpdatedAt),
	})
}
