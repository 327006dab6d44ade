package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/engagement"
	"honeypot-lab/internal/streaming"
	"honeypot-lab/pkg/logger"
)

// Handlers holds all API handlers
type Handlers struct {
	Health    *HealthHandler
	Honeypot  *HoneypotHandler
	Sessions  *SessionsHandler
	Reports   *ReportsHandler
	Streaming *StreamingHandler
}

// MessageProcessor runs one inbound message through the engagement pipeline
type MessageProcessor interface {
	HandleMessage(ctx context.Context, in models.Intake) (*engagement.Reply, error)
}

// SessionReader exposes read-only views of live sessions
type SessionReader interface {
	Get(id string) (*engagement.Session, error)
	Count() int
}

// ReportReader reads persisted final reports
type ReportReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ReportRecord, error)
	List(ctx context.Context, limit, offset int) ([]*models.ReportRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]*models.ReportRecord, error)
}

// ReportArchiveReader reads the short-lived report archive
type ReportArchiveReader interface {
	GetArchivedReport(ctx context.Context, id uuid.UUID) (*models.ReportRecord, error)
	ListArchivedReports(ctx context.Context, limit int) ([]*models.ReportRecord, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies holds dependencies for handlers. Optional ones may be nil.
type Dependencies struct {
	Service  MessageProcessor
	Sessions SessionReader
	Reports  ReportReader
	Archive  ReportArchiveReader
	Cache    Pinger
	DB       Pinger
	WSHub    *streaming.WebSocketHub
	EventBus *streaming.EventBus
	Name     string
	Version  string
	Logger   *logger.Logger
}

// NewHandlers creates all handlers
func NewHandlers(deps Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Name, deps.Version, deps.Sessions, deps.Cache, deps.DB, deps.Logger),
		Honeypot:  NewHoneypotHandler(deps.Service, deps.Logger),
		Sessions:  NewSessionsHandler(deps.Sessions, deps.Logger),
		Reports:   NewReportsHandler(deps.Reports, deps.Archive, deps.Logger),
		Streaming: NewStreamingHandler(deps.WSHub, deps.EventBus, deps.Logger),
	}
}

// ErrorResponse is the envelope for every failed request
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Status: "error", Message: message})
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
