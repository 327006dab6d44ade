package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/domain/services/engagement"
	"honeypot-lab/internal/infrastructure/cache"
	"honeypot-lab/internal/infrastructure/database/repository"
	"honeypot-lab/pkg/logger"
)

type stubProcessor struct {
	reply *engagement.Reply
	err   error
	got   models.Intake
}

func (s *stubProcessor) HandleMessage(_ context.Context, in models.Intake) (*engagement.Reply, error) {
	s.got = in
	return s.reply, s.err
}

func postIntake(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/honeypot", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

const intakeBody = `{
	"sessionId": "s-1",
	"message": {"sender": "scammer", "text": "Your bank account will be blocked", "timestamp": 1770005528731},
	"conversationHistory": [],
	"metadata": {"channel": "WhatsApp", "language": "English", "locale": "IN"}
}`

func TestHoneypotHandle(t *testing.T) {
	proc := &stubProcessor{reply: &engagement.Reply{Text: "Oh no, which account?", ScamDetected: true}}
	h := NewHoneypotHandler(proc, logger.NewNop())

	rec := postIntake(h.Handle, intakeBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","reply":"Oh no, which account?"}`, rec.Body.String())
	assert.Equal(t, "s-1", proc.got.SessionID)
	assert.Equal(t, "WhatsApp", proc.got.Channel())
	assert.Equal(t, models.SenderScammer, proc.got.Message.Sender)
}

func TestHoneypotHandleFallsBackOnServiceError(t *testing.T) {
	proc := &stubProcessor{err: errors.New("process session s-1: boom")}
	h := NewHoneypotHandler(proc, logger.NewNop())

	rec := postIntake(h.Handle, intakeBody)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HoneypotResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "Which account? I have savings and pension account. Please tell me.", resp.Reply)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestHoneypotHandleRejectsBadInput(t *testing.T) {
	h := NewHoneypotHandler(&stubProcessor{}, logger.NewNop())

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing session", `{"message":{"sender":"scammer","text":"hi","timestamp":1}}`},
		{"unknown sender", `{"sessionId":"s","message":{"sender":"bot","text":"hi","timestamp":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postIntake(h.Handle, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"status":"error"`)
		})
	}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHealthCheck(t *testing.T) {
	reg := engagement.NewRegistry(4)
	require.NoError(t, reg.Process("s-1", func(s *engagement.Session) (engagement.Action, error) {
		s.RecordTurn(time.Now())
		return engagement.Commit, nil
	}))
	h := NewHealthHandler("honeypot-lab", "1.0.0", reg, nil, nil, logger.NewNop())

	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "online", resp.Status)
	assert.Equal(t, "honeypot-lab", resp.Service)
	assert.Equal(t, 1, resp.ActiveSessions)
}

func TestHealthReady(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		h := NewHealthHandler("hp", "1", nil, stubPinger{}, nil, logger.NewNop())
		rec := httptest.NewRecorder()
		h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		var resp HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "healthy", resp.Checks["redis"])
		assert.Equal(t, "not configured", resp.Checks["postgres"])
	})

	t.Run("dependency down", func(t *testing.T) {
		h := NewHealthHandler("hp", "1", nil, stubPinger{}, stubPinger{err: errors.New("refused")}, logger.NewNop())
		rec := httptest.NewRecorder()
		h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "unhealthy: refused")
	})
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestSessionsGet(t *testing.T) {
	reg := engagement.NewRegistry(4)
	require.NoError(t, reg.Process("s-7", func(s *engagement.Session) (engagement.Action, error) {
		s.RecordTurn(time.Now())
		s.Channel = "SMS"
		s.Intelligence.Add(models.EntityUPIID, "sbi.verify@ybl")
		s.AddNote("urgency tactics")
		return engagement.Commit, nil
	}))
	h := NewSessionsHandler(reg, logger.NewNop())

	rec := httptest.NewRecorder()
	h.Get(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s-7", nil), "id", "s-7"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "s-7", resp.SessionID)
	assert.Equal(t, 1, resp.TurnCount)
	assert.Equal(t, []string{"sbi.verify@ybl"}, resp.ExtractedIntelligence.UPIIDs)
	assert.Equal(t, "Extracted: 1 UPI ID(s)", resp.Summary)
	assert.Equal(t, "urgency tactics", resp.AgentNotes)

	rec = httptest.NewRecorder()
	h.Get(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/nope", nil), "id", "nope"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubReports struct {
	records map[uuid.UUID]*models.ReportRecord
	err     error
}

func (s *stubReports) GetByID(_ context.Context, id uuid.UUID) (*models.ReportRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, repository.ErrReportNotFound
	}
	return rec, nil
}

func (s *stubReports) List(_ context.Context, limit, _ int) ([]*models.ReportRecord, error) {
	out := []*models.ReportRecord{}
	for _, rec := range s.records {
		if len(out) == limit {
			break
		}
		out = append(out, rec)
	}
	return out, s.err
}

func (s *stubReports) ListBySession(_ context.Context, sessionID string) ([]*models.ReportRecord, error) {
	out := []*models.ReportRecord{}
	for _, rec := range s.records {
		if rec.Report.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, s.err
}

type stubArchive struct {
	records map[uuid.UUID]*models.ReportRecord
}

func (s *stubArchive) GetArchivedReport(_ context.Context, id uuid.UUID) (*models.ReportRecord, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return rec, nil
}

func (s *stubArchive) ListArchivedReports(_ context.Context, _ int) ([]*models.ReportRecord, error) {
	out := []*models.ReportRecord{}
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out, nil
}

func newRecord(sessionID string) *models.ReportRecord {
	return &models.ReportRecord{
		ID: uuid.New(),
		Report: models.FinalReport{
			SessionID:             sessionID,
			ScamDetected:          true,
			ExtractedIntelligence: models.NewExtractedIntelligence(),
		},
		Status:    models.DeliveryStatusDelivered,
		CreatedAt: time.Now(),
	}
}

func getReport(h *ReportsHandler, id string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Get(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/reports/"+id, nil), "id", id))
	return rec
}

func TestReportsGet(t *testing.T) {
	stored := newRecord("s-db")
	archived := newRecord("s-cache")

	h := NewReportsHandler(
		&stubReports{records: map[uuid.UUID]*models.ReportRecord{stored.ID: stored}},
		&stubArchive{records: map[uuid.UUID]*models.ReportRecord{archived.ID: archived}},
		logger.NewNop(),
	)

	rec := getReport(h, stored.ID.String())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "s-db")

	rec = getReport(h, archived.ID.String())
	assert.Equal(t, http.StatusOK, rec.Code, "falls back to the archive")
	assert.Contains(t, rec.Body.String(), "s-cache")

	assert.Equal(t, http.StatusNotFound, getReport(h, uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, getReport(h, "not-a-uuid").Code)
}

func TestReportsGetArchiveWhenDatabaseFails(t *testing.T) {
	archived := newRecord("s-cache")
	h := NewReportsHandler(
		&stubReports{err: errors.New("connection reset")},
		&stubArchive{records: map[uuid.UUID]*models.ReportRecord{archived.ID: archived}},
		logger.NewNop(),
	)

	assert.Equal(t, http.StatusOK, getReport(h, archived.ID.String()).Code)
}

func TestReportsWithoutStorage(t *testing.T) {
	h := NewReportsHandler(nil, nil, logger.NewNop())

	assert.Equal(t, http.StatusServiceUnavailable, getReport(h, uuid.NewString()).Code)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReportsList(t *testing.T) {
	a, b := newRecord("a"), newRecord("b")
	records := map[uuid.UUID]*models.ReportRecord{a.ID: a, b.ID: b}

	t.Run("postgres", func(t *testing.T) {
		h := NewReportsHandler(&stubReports{records: records}, nil, logger.NewNop())
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports?limit=1&offset=3", nil))

		var resp ReportListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "postgres", resp.Source)
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, 1, resp.Limit)
		assert.Equal(t, 3, resp.Offset)
	})

	t.Run("archive", func(t *testing.T) {
		h := NewReportsHandler(nil, &stubArchive{records: records}, logger.NewNop())
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports?limit=9999&offset=3", nil))

		var resp ReportListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "redis", resp.Source)
		assert.Equal(t, 2, resp.Count)
		assert.Equal(t, 50, resp.Limit)
		assert.Zero(t, resp.Offset)
	})

	t.Run("by session", func(t *testing.T) {
		for name, h := range map[string]*ReportsHandler{
			"postgres": NewReportsHandler(&stubReports{records: records}, nil, logger.NewNop()),
			"redis":    NewReportsHandler(nil, &stubArchive{records: records}, logger.NewNop()),
		} {
			rec := httptest.NewRecorder()
			h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports?session_id=b&offset=2", nil))

			var resp ReportListResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), name)
			require.Len(t, resp.Reports, 1, name)
			assert.Equal(t, "b", resp.Reports[0].Report.SessionID, name)
			assert.Zero(t, resp.Offset, name)
		}
	})
}

func TestStreamingWithoutHub(t *testing.T) {
	h := NewStreamingHandler(nil, nil, logger.NewNop())

	rec := httptest.NewRecorder()
	h.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stream/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stream/stats", nil))
	assert.JSONEq(t, `{"websocket_clients":0,"followed_sessions":0,"event_bus_subscribers":0}`, rec.Body.String())
}
