package engagement

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/detection"
	"honeypot-lab/internal/domain/services/intel"
	"honeypot-lab/pkg/logger"
)

const personaLine = "Oh no! Which account is blocked? Please tell me."

type stubPersona struct {
	mu    sync.Mutex
	calls int
}

func (p *stubPersona) Generate(ctx context.Context, text string, history []models.Message) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return personaLine
}

type recordingSink struct {
	mu      sync.Mutex
	records []*models.ReportRecord
}

func (s *recordingSink) Enqueue(record *models.ReportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

type recordingEvents struct {
	mu         sync.Mutex
	started    []string
	detected   []string
	intel      []map[models.EntityKind][]string
	terminated []*models.ReportRecord
}

func (e *recordingEvents) PublishSessionStarted(ctx context.Context, sessionID, channel string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, sessionID)
	return nil
}

func (e *recordingEvents) PublishScamDetected(ctx context.Context, sessionID, channel string, result models.ClassificationResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detected = append(e.detected, sessionID)
	return nil
}

func (e *recordingEvents) PublishIntelligence(ctx context.Context, sessionID, channel string, added map[models.EntityKind][]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.intel = append(e.intel, added)
	return nil
}

func (e *recordingEvents) PublishSessionTerminated(ctx context.Context, channel string, record *models.ReportRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.terminated = append(e.terminated, record)
	return nil
}

type harness struct {
	svc     *Service
	persona *stubPersona
	sink    *recordingSink
	events  *recordingEvents
	det     *detection.Detector
}

func newHarness(policy Policy) *harness {
	log := logger.NewNop()
	h := &harness{
		persona: &stubPersona{},
		sink:    &recordingSink{},
		events:  &recordingEvents{},
		det:     detection.NewDetector(detection.DefaultThreshold, log),
	}
	h.svc = NewService(
		NewRegistry(8),
		h.det,
		intel.NewExtractor(log),
		policy,
		log,
		WithPersona(h.persona),
		WithReportSink(h.sink),
		WithEventPublisher(h.events),
	)
	return h
}

func intake(sessionID, text string, history int) models.Intake {
	in := models.Intake{
		SessionID: sessionID,
		Message:   models.Message{Sender: models.SenderScammer, Text: text, Timestamp: 1700000000000},
	}
	for i := 0; i < history; i++ {
		in.ConversationHistory = append(in.ConversationHistory, models.Message{Sender: models.SenderScammer, Text: "earlier"})
	}
	return in
}

const openingScam = "Your bank account will be blocked in 2 hours. Verify immediately: http://fake-bank-verify.com"

func TestHandleMessageEndToEnd(t *testing.T) {
	h := newHarness(DefaultPolicy())
	ctx := context.Background()

	reply, err := h.svc.HandleMessage(ctx, intake("e2e", openingScam, 0))
	require.NoError(t, err)

	assert.Equal(t, personaLine, reply.Text)
	assert.True(t, reply.ScamDetected)
	assert.False(t, reply.Terminated)

	s, err := h.svc.Registry().Get("e2e")
	require.NoError(t, err)
	assert.True(t, s.ScamDetected)
	assert.GreaterOrEqual(t, s.ScamConfidence, 0.7)
	assert.Equal(t, 1, s.TurnCount)
	assert.Contains(t, s.Intelligence.PhishingLinks, "http://fake-bank-verify.com")
	assert.Subset(t, s.Intelligence.SuspiciousKeywords, []string{"blocked", "verify", "account"})
	assert.Equal(t, []string{"urgency tactics, fear tactics (account threat), phishing link"}, s.Notes)

	assert.Equal(t, []string{"e2e"}, h.events.started)
	assert.Equal(t, []string{"e2e"}, h.events.detected)
	require.Len(t, h.events.intel, 1)
	assert.Equal(t, []string{"http://fake-bank-verify.com"}, h.events.intel[0][models.EntityPhishingLink])
}

func TestHandleMessageTerminatesOnSufficientIntel(t *testing.T) {
	h := newHarness(DefaultPolicy())
	ctx := context.Background()

	messages := []string{
		openingScam,
		"Sir this is from SBI security department",
		"Share the OTP sent to your mobile",
		"Or pay Rs 10 verification fee to sbi.verify@ybl",
	}
	for i, msg := range messages {
		reply, err := h.svc.HandleMessage(ctx, intake("term", msg, i))
		require.NoError(t, err)
		require.False(t, reply.Terminated, "turn %d", i+1)
	}
	assert.Empty(t, h.sink.records)

	reply, err := h.svc.HandleMessage(ctx, intake("term", "Do it fast or account closes", len(messages)))
	require.NoError(t, err)
	assert.True(t, reply.Terminated)
	assert.Equal(t, models.TerminationSufficientIntel, reply.Reason)
	assert.Equal(t, personaLine, reply.Text)

	assert.False(t, h.svc.Registry().Exists("term"))

	require.Len(t, h.sink.records, 1)
	rec := h.sink.records[0]
	assert.Equal(t, reply.ReportID, rec.ID)
	assert.Equal(t, models.DeliveryStatusPending, rec.Status)
	assert.Equal(t, "term", rec.Report.SessionID)
	assert.True(t, rec.Report.ScamDetected)
	assert.Equal(t, 5, rec.Report.TotalMessagesExchanged)
	assert.Equal(t, []string{"http://fake-bank-verify.com"}, rec.Report.ExtractedIntelligence.PhishingLinks)
	assert.Equal(t, []string{"sbi.verify@ybl"}, rec.Report.ExtractedIntelligence.UPIIDs)
	assert.Contains(t, rec.Report.AgentNotes, "credential phishing")
	require.Len(t, h.events.terminated, 1)

	// same id after termination starts a fresh session
	_, err = h.svc.HandleMessage(ctx, intake("term", "hello again", 6))
	require.NoError(t, err)
	s, err := h.svc.Registry().Get("term")
	require.NoError(t, err)
	assert.Equal(t, 1, s.TurnCount)
	assert.Empty(t, s.Intelligence.PhishingLinks)
}

func TestHandleMessageTerminatesOnMaxTurns(t *testing.T) {
	h := newHarness(Policy{MaxTurns: 3, MinTurnsForEnd: 5})
	ctx := context.Background()

	_, err := h.svc.HandleMessage(ctx, intake("max", "URGENT: your card is blocked, share the OTP 4821 now", 0))
	require.NoError(t, err)
	_, err = h.svc.HandleMessage(ctx, intake("max", "why are you not answering", 1))
	require.NoError(t, err)
	reply, err := h.svc.HandleMessage(ctx, intake("max", "last chance", 2))
	require.NoError(t, err)

	assert.True(t, reply.Terminated)
	assert.Equal(t, models.TerminationMaxTurns, reply.Reason)
	require.Len(t, h.sink.records, 1)
	assert.Equal(t, 3, h.sink.records[0].Report.TotalMessagesExchanged)
	assert.False(t, h.svc.Registry().Exists("max"))
}

func TestHandleMessageNotScamOpening(t *testing.T) {
	h := newHarness(DefaultPolicy())
	ctx := context.Background()

	reply, err := h.svc.HandleMessage(ctx, intake("benign", "Can you verify the bank holiday list?", 0))
	require.NoError(t, err)

	assert.Equal(t, NeutralReply, reply.Text)
	assert.False(t, reply.ScamDetected)
	assert.Zero(t, h.persona.calls)

	s, err := h.svc.Registry().Get("benign")
	require.NoError(t, err)
	assert.True(t, s.Classified)
	assert.False(t, s.ScamDetected)
	assert.Equal(t, 1, s.TurnCount)
	assert.Empty(t, s.Intelligence.SuspiciousKeywords, "extraction is skipped")
	assert.Empty(t, s.Notes)
	assert.Empty(t, h.events.detected)

	// later messages are engaged without reclassification
	reply, err = h.svc.HandleMessage(ctx, intake("benign", "Pay the fee to help@paytm", 1))
	require.NoError(t, err)
	assert.Equal(t, personaLine, reply.Text)
	assert.Equal(t, 1, h.persona.calls)
	assert.Equal(t, int64(1), h.det.GetStats().TotalAnalyzed)

	s, err = h.svc.Registry().Get("benign")
	require.NoError(t, err)
	assert.Equal(t, []string{"help@paytm"}, s.Intelligence.UPIIDs)
	assert.False(t, s.ScamDetected)
}

func TestHandleMessageWithHistorySkipsClassification(t *testing.T) {
	h := newHarness(DefaultPolicy())

	reply, err := h.svc.HandleMessage(context.Background(), intake("mid", "hello", 3))
	require.NoError(t, err)

	assert.Equal(t, personaLine, reply.Text)
	assert.Zero(t, h.det.GetStats().TotalAnalyzed)
}

func TestHandleMessageRejectsMissingSession(t *testing.T) {
	h := newHarness(DefaultPolicy())

	_, err := h.svc.HandleMessage(context.Background(), intake("  ", "hi", 0))

	assert.ErrorIs(t, err, ErrInvalidIntake)
	assert.Zero(t, h.svc.Registry().Count())
}

func TestHandleMessageWithoutPersona(t *testing.T) {
	log := logger.NewNop()
	svc := NewService(NewRegistry(1), detection.NewDetector(0.7, log), intel.NewExtractor(log), DefaultPolicy(), log)

	reply, err := svc.HandleMessage(context.Background(), intake("np", openingScam, 0))
	require.NoError(t, err)
	assert.Equal(t, NeutralReply, reply.Text)
}

func TestHandleMessageClassifiesOnceUnderConcurrency(t *testing.T) {
	h := newHarness(Policy{MaxTurns: 1000, MinTurnsForEnd: 1000})
	const senders = 30

	var g errgroup.Group
	for i := 0; i < senders; i++ {
		g.Go(func() error {
			_, err := h.svc.HandleMessage(context.Background(), intake("race", openingScam, 0))
			return err
		})
	}
	require.NoError(t, g.Wait())

	s, err := h.svc.Registry().Get("race")
	require.NoError(t, err)
	assert.Equal(t, senders, s.TurnCount)
	assert.Equal(t, int64(1), h.det.GetStats().TotalAnalyzed)
	assert.Len(t, h.events.started, 1)
	assert.Equal(t, []string{"http://fake-bank-verify.com"}, s.Intelligence.PhishingLinks)
}

func TestHandleMessageManySessions(t *testing.T) {
	h := newHarness(DefaultPolicy())
	const sessions = 25

	var g errgroup.Group
	for i := 0; i < sessions; i++ {
		id := fmt.Sprintf("s-%d", i)
		g.Go(func() error {
			for turn := 0; turn < 5; turn++ {
				text := openingScam
				if turn > 0 {
					text = fmt.Sprintf("send to agent%d@ybl", turn)
				}
				if _, err := h.svc.HandleMessage(context.Background(), intake(id, text, turn)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Zero(t, h.svc.Registry().Count())
	assert.Len(t, h.sink.records, sessions)
	for _, rec := range h.sink.records {
		assert.Equal(t, 5, rec.Report.TotalMessagesExchanged)
		assert.Len(t, rec.Report.ExtractedIntelligence.UPIIDs, 4)
	}
}
