package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeypot_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "honeypot_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Engagement metrics
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeypot_messages_processed_total",
			Help: "Inbound messages processed",
		},
		[]string{"outcome"}, // "engaged", "not_scam", "terminated", "error"
	)

	ScamsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "honeypot_scams_detected_total",
			Help: "Sessions classified as scam on their first message",
		},
	)

	ScamConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "honeypot_scam_confidence",
			Help:    "Confidence of first-message classifications",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)

	EntitiesExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeypot_entities_extracted_total",
			Help: "New intelligence entities recorded",
		},
		[]string{"kind"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "honeypot_sessions_active",
			Help: "Sessions currently tracked by the registry",
		},
	)

	SessionsTerminated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeypot_sessions_terminated_total",
			Help: "Sessions ended by the termination policy",
		},
		[]string{"reason"},
	)

	// Collaborator metrics
	PersonaReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeypot_persona_replies_total",
			Help: "Persona replies by source",
		},
		[]string{"source"}, // "llm" or "fallback"
	)

	ReportDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeypot_report_deliveries_total",
			Help: "Final report submissions by outcome",
		},
		[]string{"outcome"},
	)

	ReportDeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "honeypot_report_delivery_duration_seconds",
			Help:    "Time spent delivering a report, retries included",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 4, 8, 16, 32},
		},
	)

	// Infrastructure metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honeypot_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	// Dashboard stream metrics
	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "honeypot_stream_clients",
			Help: "Connected WebSocket dashboards",
		},
	)

	StreamEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "honeypot_stream_frames_dropped_total",
			Help: "Frames dropped because a dashboard fell behind",
		},
	)

	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "honeypot_auth_failures_total",
			Help: "Requests rejected for a missing or wrong API key",
		},
	)
)
