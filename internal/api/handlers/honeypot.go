package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/persona"
	"honeypot-lab/pkg/logger"
)

// maxIntakeBytes bounds a single intake request body
const maxIntakeBytes = 1 << 20

// HoneypotHandler receives messages from the upstream platform
type HoneypotHandler struct {
	service MessageProcessor
	logger  *logger.Logger
}

// NewHoneypotHandler creates a new honeypot handler
func NewHoneypotHandler(service MessageProcessor, log *logger.Logger) *HoneypotHandler {
	return &HoneypotHandler{
		service: service,
		logger:  log.WithComponent("honeypot-handler"),
	}
}

// HoneypotResponse is returned for every accepted intake
type HoneypotResponse struct {
	Status string `json:"status"`
	Reply  string `json:"reply"`
}

// Handle handles POST /api/honeypot
func (h *HoneypotHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var in models.Intake
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIntakeBytes)).Decode(&in); err != nil {
		h.logger.Debug().Err(err).Msg("invalid request body")
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(in.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if in.Message.Sender != "" && !in.Message.Sender.IsValid() {
		writeError(w, http.StatusBadRequest, "message.sender must be scammer or user")
		return
	}

	log := h.logger.WithSessionID(in.SessionID)
	log.Info().Str("channel", in.Channel()).Int("history", len(in.ConversationHistory)).Msg("received message")

	reply, err := h.service.HandleMessage(r.Context(), in)
	if err != nil {
		// The counterpart must never see an internal error
		log.Error().Err(err).Msg("failed to process message, sending fallback reply")
		writeJSON(w, http.StatusOK, HoneypotResponse{
			Status: "success",
			Reply:  persona.FallbackReply(in.Message.Text),
		})
		return
	}

	if reply.Terminated {
		log.Info().
			Str("reason", string(reply.Reason)).
			Str("report_id", reply.ReportID.String()).
			Msg("engagement finished")
	}

	writeJSON(w, http.StatusOK, HoneypotResponse{
		Status: "success",
		Reply:  reply.Text,
	})
}
