package handlers

import (
	"context"
	"net/http"
	"time"

	"honeypot-lab/pkg/logger"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	name      string
	version   string
	sessions  SessionReader
	cache     Pinger
	db        Pinger
	logger    *logger.Logger
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(name, version string, sessions SessionReader, cache, db Pinger, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		name:      name,
		version:   version,
		sessions:  sessions,
		cache:     cache,
		db:        db,
		logger:    log.WithComponent("health"),
		startTime: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status         string            `json:"status"`
	Service        string            `json:"service,omitempty"`
	Version        string            `json:"version"`
	ActiveSessions int               `json:"active_sessions"`
	Uptime         string            `json:"uptime"`
	Timestamp      string            `json:"timestamp"`
	Checks         map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) activeSessions() int {
	if h.sessions == nil {
		return 0
	}
	return h.sessions.Count()
}

// Check handles GET / and GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:         "online",
		Service:        h.name,
		Version:        h.version,
		ActiveSessions: h.activeSessions(),
		Uptime:         time.Since(h.startTime).String(),
		Timestamp:      timestamp(time.Now()),
	})
}

// Ready handles GET /ready - checks all dependencies
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := http.StatusOK
	overallStatus := "ready"

	probe := func(name string, dep Pinger) {
		if dep == nil {
			checks[name] = "not configured"
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn().Err(err).Str("dependency", name).Msg("readiness probe failed")
			checks[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			overallStatus = "not ready"
			return
		}
		checks[name] = "healthy"
	}

	probe("redis", h.cache)
	probe("postgres", h.db)

	writeJSON(w, status, HealthResponse{
		Status:         overallStatus,
		Version:        h.version,
		ActiveSessions: h.activeSessions(),
		Uptime:         time.Since(h.startTime).String(),
		Timestamp:      timestamp(time.Now()),
		Checks:         checks,
	})
}
