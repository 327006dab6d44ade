package callback

import (
	"context"
	"errors"
	"sync"
	"time"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/metrics"
	"honeypot-lab/pkg/logger"
)

var (
	// ErrQueueFull is returned when the delivery queue has no free slot
	ErrQueueFull = errors.New("report queue full")
	// ErrStopped is returned by Enqueue after Stop
	ErrStopped = errors.New("dispatcher stopped")
)

// Submitter delivers a report, returning how many attempts it took
type Submitter interface {
	Submit(ctx context.Context, report models.FinalReport) (int, error)
}

// ReportStore persists report records and their delivery outcome
type ReportStore interface {
	Save(ctx context.Context, record *models.ReportRecord) error
	UpdateDelivery(ctx context.Context, record *models.ReportRecord) error
}

// ReportArchive keeps a short-lived copy of each record for fast lookup
type ReportArchive interface {
	ArchiveReport(ctx context.Context, record *models.ReportRecord) error
}

// DispatcherConfig contains configuration for the dispatcher
type DispatcherConfig struct {
	WorkerCount int
	QueueSize   int
	// JobTimeout bounds one delivery, retries included
	JobTimeout time.Duration
}

// DefaultDispatcherConfig returns the stock worker pool settings
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		WorkerCount: 4,
		QueueSize:   256,
		JobTimeout:  time.Minute,
	}
}

// Dispatcher delivers final reports on a pool of background workers
type Dispatcher struct {
	submitter Submitter
	store     ReportStore
	archive   ReportArchive
	queue     chan *models.ReportRecord
	logger    *logger.Logger

	jobTimeout  time.Duration
	workerCount int

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	stopCh  chan struct{}
}

// DispatcherOption wires optional persistence
type DispatcherOption func(*Dispatcher)

// WithStore persists every record and its delivery outcome
func WithStore(store ReportStore) DispatcherOption {
	return func(d *Dispatcher) { d.store = store }
}

// WithArchive caches every record after delivery
func WithArchive(archive ReportArchive) DispatcherOption {
	return func(d *Dispatcher) { d.archive = archive }
}

// NewDispatcher creates a dispatcher and starts its workers
func NewDispatcher(submitter Submitter, cfg DispatcherConfig, log *logger.Logger, opts ...DispatcherOption) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}

	d := &Dispatcher{
		submitter:   submitter,
		queue:       make(chan *models.ReportRecord, cfg.QueueSize),
		logger:      log.WithComponent("report-dispatcher"),
		jobTimeout:  cfg.JobTimeout,
		workerCount: cfg.WorkerCount,
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.startWorkers()
	return d
}

func (d *Dispatcher) startWorkers() {
	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info().Int("workers", d.workerCount).Msg("report delivery workers started")
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			d.drain()
			d.logger.Debug().Int("worker", id).Msg("report worker stopping")
			return
		case record := <-d.queue:
			d.deliver(record)
		}
	}
}

// drain delivers whatever is still queued. Enqueue is closed by then.
func (d *Dispatcher) drain() {
	for {
		select {
		case record := <-d.queue:
			d.deliver(record)
		default:
			return
		}
	}
}

// Enqueue schedules a copy of record for delivery without blocking
func (d *Dispatcher) Enqueue(record *models.ReportRecord) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrStopped
	}

	job := *record
	select {
	case d.queue <- &job:
		return nil
	default:
		metrics.ReportDeliveries.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// Stop refuses new work, delivers what is queued and waits for the workers
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.stopCh)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info().Msg("report dispatcher stopped")
}

func (d *Dispatcher) deliver(record *models.ReportRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), d.jobTimeout)
	defer cancel()

	log := d.logger.WithSessionID(record.Report.SessionID)

	if d.store != nil {
		if err := d.store.Save(ctx, record); err != nil {
			log.Error().Err(err).Str("report_id", record.ID.String()).Msg("failed to persist report")
		}
	}

	start := time.Now()
	attempts, err := d.submitter.Submit(ctx, record.Report)
	metrics.ReportDeliveryDuration.Observe(time.Since(start).Seconds())

	record.Attempts = attempts
	if err != nil {
		record.Status = models.DeliveryStatusFailed
		record.LastError = err.Error()
		metrics.ReportDeliveries.WithLabelValues("failed").Inc()
	} else {
		now := time.Now()
		record.Status = models.DeliveryStatusDelivered
		record.LastError = ""
		record.DeliveredAt = &now
		metrics.ReportDeliveries.WithLabelValues("delivered").Inc()
	}

	if d.store != nil {
		if err := d.store.UpdateDelivery(ctx, record); err != nil {
			log.Error().Err(err).Str("report_id", record.ID.String()).Msg("failed to record delivery outcome")
		}
	}
	if d.archive != nil {
		if err := d.archive.ArchiveReport(ctx, record); err != nil {
			log.Warn().Err(err).Str("report_id", record.ID.String()).Msg("failed to archive report")
		}
	}

	log.Info().
		Str("report_id", record.ID.String()).
		Str("status", string(record.Status)).
		Int("attempts", attempts).
		Msg("report delivery finished")
}
