package callback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/pkg/logger"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	err      error
	attempts int
	delay    time.Duration
	seen     []string
}

func (f *fakeSubmitter) Submit(ctx context.Context, report models.FinalReport) (int, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, report.SessionID)
	return f.attempts, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

type memoryStore struct {
	mu      sync.Mutex
	saved   map[uuid.UUID]models.ReportRecord
	updates int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(map[uuid.UUID]models.ReportRecord)}
}

func (m *memoryStore) Save(ctx context.Context, record *models.ReportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[record.ID] = *record
	return nil
}

func (m *memoryStore) UpdateDelivery(ctx context.Context, record *models.ReportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[record.ID] = *record
	m.updates++
	return nil
}

func (m *memoryStore) get(id uuid.UUID) (models.ReportRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.saved[id]
	return r, ok
}

type memoryArchive struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (m *memoryArchive) ArchiveReport(ctx context.Context, record *models.ReportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, record.ID)
	return nil
}

func newRecord(sessionID string) *models.ReportRecord {
	return &models.ReportRecord{
		ID:                uuid.New(),
		Report:            models.FinalReport{SessionID: sessionID, ExtractedIntelligence: models.NewExtractedIntelligence()},
		TerminationReason: models.TerminationSufficientIntel,
		Status:            models.DeliveryStatusPending,
		CreatedAt:         time.Now(),
	}
}

func TestDispatcherDelivers(t *testing.T) {
	sub := &fakeSubmitter{attempts: 1}
	store := newMemoryStore()
	archive := &memoryArchive{}
	d := NewDispatcher(sub, DispatcherConfig{WorkerCount: 2, QueueSize: 10}, logger.NewNop(), WithStore(store), WithArchive(archive))

	rec := newRecord("s1")
	require.NoError(t, d.Enqueue(rec))
	d.Stop()

	saved, ok := store.get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, models.DeliveryStatusDelivered, saved.Status)
	assert.Equal(t, 1, saved.Attempts)
	assert.NotNil(t, saved.DeliveredAt)
	assert.Empty(t, saved.LastError)
	assert.Equal(t, []uuid.UUID{rec.ID}, archive.ids)

	// the caller's record is never mutated
	assert.Equal(t, models.DeliveryStatusPending, rec.Status)
}

func TestDispatcherRecordsFailure(t *testing.T) {
	sub := &fakeSubmitter{attempts: 3, err: errors.New("callback returned status 500")}
	store := newMemoryStore()
	d := NewDispatcher(sub, DispatcherConfig{WorkerCount: 1}, logger.NewNop(), WithStore(store))

	rec := newRecord("s1")
	require.NoError(t, d.Enqueue(rec))
	d.Stop()

	saved, ok := store.get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, models.DeliveryStatusFailed, saved.Status)
	assert.Equal(t, 3, saved.Attempts)
	assert.Contains(t, saved.LastError, "500")
	assert.Nil(t, saved.DeliveredAt)
}

func TestDispatcherStopDrainsQueue(t *testing.T) {
	sub := &fakeSubmitter{attempts: 1, delay: 5 * time.Millisecond}
	d := NewDispatcher(sub, DispatcherConfig{WorkerCount: 2, QueueSize: 50}, logger.NewNop())

	for i := 0; i < 20; i++ {
		require.NoError(t, d.Enqueue(newRecord("s")))
	}
	d.Stop()

	assert.Equal(t, 20, sub.count())
	assert.ErrorIs(t, d.Enqueue(newRecord("late")), ErrStopped)

	// stopping twice is harmless
	d.Stop()
}

func TestDispatcherQueueFull(t *testing.T) {
	block := make(chan struct{})
	sub := &blockingSubmitter{release: block}
	d := NewDispatcher(sub, DispatcherConfig{WorkerCount: 1, QueueSize: 1}, logger.NewNop())

	require.NoError(t, d.Enqueue(newRecord("a")))
	// wait for the worker to pick up the first job so the queue slot frees
	require.Eventually(t, func() bool { return sub.started() }, time.Second, time.Millisecond)
	require.NoError(t, d.Enqueue(newRecord("b")))

	assert.ErrorIs(t, d.Enqueue(newRecord("c")), ErrQueueFull)

	close(block)
	d.Stop()
}

type blockingSubmitter struct {
	release chan struct{}
	mu      sync.Mutex
	begun   bool
}

func (b *blockingSubmitter) Submit(ctx context.Context, report models.FinalReport) (int, error) {
	b.mu.Lock()
	b.begun = true
	b.mu.Unlock()
	<-b.release
	return 1, nil
}

func (b *blockingSubmitter) started() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.begun
}
