package engagement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/detection"
	"honeypot-lab/internal/domain/services/intel"
	"honeypot-lab/internal/metrics"
	"honeypot-lab/pkg/logger"
)

// NeutralReply answers an opening message that did not look like a scam
const NeutralReply = "Thank you for your message. How can I help you?"

// ErrInvalidIntake is returned for an intake without a session id
var ErrInvalidIntake = errors.New("invalid intake")

// ReplyGenerator produces the decoy persona's next line. It must always
// return usable text, falling back internally when its backend fails.
type ReplyGenerator interface {
	Generate(ctx context.Context, text string, history []models.Message) string
}

// ReportSink accepts final reports for asynchronous delivery
type ReportSink interface {
	Enqueue(record *models.ReportRecord) error
}

// EventPublisher fans engagement events out to streaming consumers
type EventPublisher interface {
	PublishSessionStarted(ctx context.Context, sessionID, channel string) error
	PublishScamDetected(ctx context.Context, sessionID, channel string, result models.ClassificationResult) error
	PublishIntelligence(ctx context.Context, sessionID, channel string, added map[models.EntityKind][]string) error
	PublishSessionTerminated(ctx context.Context, channel string, record *models.ReportRecord) error
}

// Reply is the outcome of one inbound message
type Reply struct {
	Text         string
	ScamDetected bool
	Terminated   bool
	Reason       models.TerminationReason
	ReportID     uuid.UUID
}

// Service runs the evidence pipeline for inbound messages
type Service struct {
	registry  *Registry
	detector  *detection.Detector
	extractor *intel.Extractor
	policy    Policy
	persona   ReplyGenerator
	reports   ReportSink
	events    EventPublisher
	logger    *logger.Logger
	now       func() time.Time
}

// ServiceOption configures optional collaborators
type ServiceOption func(*Service)

// WithPersona sets the reply generator. Without one, engaged messages get NeutralReply.
func WithPersona(p ReplyGenerator) ServiceOption {
	return func(s *Service) { s.persona = p }
}

// WithReportSink sets where final reports go on termination
func WithReportSink(sink ReportSink) ServiceOption {
	return func(s *Service) { s.reports = sink }
}

// WithEventPublisher sets the engagement event publisher
func WithEventPublisher(p EventPublisher) ServiceOption {
	return func(s *Service) { s.events = p }
}

// NewService creates the engagement service
func NewService(
	registry *Registry,
	detector *detection.Detector,
	extractor *intel.Extractor,
	policy Policy,
	log *logger.Logger,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		registry:  registry,
		detector:  detector,
		extractor: extractor,
		policy:    policy,
		logger:    log.WithComponent("engagement"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the session registry for read-only endpoints
func (s *Service) Registry() *Registry {
	return s.registry
}

// turnOutcome collects what happened inside the critical section so side
// effects can run after the session lock is released
type turnOutcome struct {
	started        bool
	classification *models.ClassificationResult
	neutral        bool
	added          map[models.EntityKind][]string
	summary        string
	record         *models.ReportRecord
}

// HandleMessage processes one inbound message and returns the reply to send.
// An error means the session was left exactly as it was before the call.
func (s *Service) HandleMessage(ctx context.Context, in models.Intake) (*Reply, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return nil, ErrInvalidIntake
	}

	log := s.logger.WithSessionID(in.SessionID)
	channel := in.Channel()
	text := in.Message.Text

	var out turnOutcome
	err := s.registry.Process(in.SessionID, func(sess *Session) (Action, error) {
		out = turnOutcome{}
		now := s.now()

		if sess.TurnCount == 0 {
			out.started = true
			sess.Channel = channel
		}
		sess.RecordTurn(now)

		if in.IsFirstMessage() && !sess.Classified {
			result := s.detector.Detect(text)
			sess.Classify(result, s.detector.Indicators(text))
			out.classification = &result
			if !result.IsScam {
				out.neutral = true
				return Commit, nil
			}
		}

		prev := sess.Intelligence
		sess.Intelligence = s.extractor.Extract(text, sess.Intelligence)
		out.added = sess.Intelligence.Diff(prev)
		out.summary = sess.Intelligence.Summary()

		sess.AddNote(detection.AnalyzeTactics(text))

		reason := s.policy.Evaluate(sess)
		if reason == models.TerminationNone {
			return Commit, nil
		}

		out.record = &models.ReportRecord{
			ID:                uuid.New(),
			Report:            sess.Report(),
			TerminationReason: reason,
			ScamConfidence:    sess.ScamConfidence,
			Status:            models.DeliveryStatusPending,
			CreatedAt:         now,
		}
		return Terminate, nil
	})
	if err != nil {
		metrics.MessagesProcessed.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("failed to process message")
		return nil, fmt.Errorf("process session %s: %w", in.SessionID, err)
	}

	metrics.SessionsActive.Set(float64(s.registry.Count()))
	s.publishTurn(ctx, in.SessionID, channel, &out)

	if out.neutral {
		metrics.MessagesProcessed.WithLabelValues("not_scam").Inc()
		log.Info().
			Float64("confidence", out.classification.Confidence).
			Msg("opening message not classified as scam")
		return &Reply{Text: NeutralReply}, nil
	}

	reply := &Reply{Text: s.generateReply(ctx, text, in.ConversationHistory)}
	if out.classification != nil {
		reply.ScamDetected = out.classification.IsScam
	}

	log.Debug().
		Int("new_kinds", len(out.added)).
		Str("intelligence", out.summary).
		Msg("message engaged")

	if out.record == nil {
		metrics.MessagesProcessed.WithLabelValues("engaged").Inc()
		return reply, nil
	}

	reply.ScamDetected = out.record.Report.ScamDetected
	reply.Terminated = true
	reply.Reason = out.record.TerminationReason
	reply.ReportID = out.record.ID
	s.finish(ctx, log, channel, out.record)

	return reply, nil
}

func (s *Service) generateReply(ctx context.Context, text string, history []models.Message) string {
	if s.persona == nil {
		return NeutralReply
	}
	return s.persona.Generate(ctx, text, history)
}

// finish hands a terminated session's report off for delivery
func (s *Service) finish(ctx context.Context, log *logger.Logger, channel string, record *models.ReportRecord) {
	metrics.MessagesProcessed.WithLabelValues("terminated").Inc()
	metrics.SessionsTerminated.WithLabelValues(string(record.TerminationReason)).Inc()

	log.Info().
		Str("reason", string(record.TerminationReason)).
		Int("turns", record.Report.TotalMessagesExchanged).
		Str("report_id", record.ID.String()).
		Msg("engagement terminated")

	if s.reports != nil {
		if err := s.reports.Enqueue(record); err != nil {
			log.Error().Err(err).Str("report_id", record.ID.String()).Msg("failed to enqueue final report")
		}
	}

	if s.events != nil {
		if err := s.events.PublishSessionTerminated(ctx, channel, record); err != nil {
			log.Warn().Err(err).Msg("failed to publish termination event")
		}
	}
}

func (s *Service) publishTurn(ctx context.Context, sessionID, channel string, out *turnOutcome) {
	for kind, values := range out.added {
		metrics.EntitiesExtracted.WithLabelValues(string(kind)).Add(float64(len(values)))
	}
	if out.classification != nil {
		metrics.ScamConfidence.Observe(out.classification.Confidence)
		if out.classification.IsScam {
			metrics.ScamsDetected.Inc()
		}
	}

	if s.events == nil {
		return
	}

	log := s.logger.WithSessionID(sessionID)
	if out.started {
		if err := s.events.PublishSessionStarted(ctx, sessionID, channel); err != nil {
			log.Warn().Err(err).Msg("failed to publish session start")
		}
	}
	if out.classification != nil && out.classification.IsScam {
		if err := s.events.PublishScamDetected(ctx, sessionID, channel, *out.classification); err != nil {
			log.Warn().Err(err).Msg("failed to publish scam detection")
		}
	}
	if len(out.added) > 0 {
		if err := s.events.PublishIntelligence(ctx, sessionID, channel, out.added); err != nil {
			log.Warn().Err(err).Msg("failed to publish intelligence")
		}
	}
}
