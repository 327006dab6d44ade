package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"honeypot-lab/internal/domain/models"
	"honeypot-lab/internal/infrastructure/database"
)

// ErrReportNotFound is returned when no report matches the lookup
var ErrReportNotFound = errors.New("report not found")

const reportColumns = `
	id, session_id, scam_detected, scam_confidence, total_messages,
	termination_reason, intelligence, agent_notes, status, attempts,
	last_error, created_at, delivered_at`

// ReportRepository handles report persistence
type ReportRepository struct {
	db database.DBTX
}

// NewReportRepository creates a new report repository
func NewReportRepository(db database.DBTX) *ReportRepository {
	return &ReportRepository{db: db}
}

// Save inserts a report record. Saving the same id twice is a no-op.
func (r *ReportRepository) Save(ctx context.Context, rec *models.ReportRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	intel, err := json.Marshal(rec.Report.ExtractedIntelligence)
	if err != nil {
		return fmt.Errorf("failed to marshal intelligence: %w", err)
	}

	query := `
		INSERT INTO reports (` + reportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING`

	_, err = r.db.Exec(ctx, query,
		rec.ID, rec.Report.SessionID, rec.Report.ScamDetected, floatToFloat8(rec.ScamConfidence),
		rec.Report.TotalMessagesExchanged, string(rec.TerminationReason), intel, rec.Report.AgentNotes,
		string(rec.Status), rec.Attempts, textOrNull(rec.LastError),
		timeToTimestamptz(rec.CreatedAt), timeToTimestamptzPtr(rec.DeliveredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// UpdateDelivery records the outcome of a callback submission
func (r *ReportRepository) UpdateDelivery(ctx context.Context, rec *models.ReportRecord) error {
	query := `
		UPDATE reports
		SET status = $2, attempts = $3, last_error = $4, delivered_at = $5
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		rec.ID, string(rec.Status), rec.Attempts,
		textOrNull(rec.LastError), timeToTimestamptzPtr(rec.DeliveredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update report delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReportNotFound
	}
	return nil
}

// GetByID retrieves a report by ID
func (r *ReportRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ReportRecord, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE id = $1`
	return scanReport(r.db.QueryRow(ctx, query, id))
}

// ListBySession retrieves every report filed for a session, newest first
func (r *ReportRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.ReportRecord, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE session_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, sessionID)
}

// List retrieves the most recent reports
func (r *ReportRepository) List(ctx context.Context, limit, offset int) ([]*models.ReportRecord, error) {
	query := `SELECT ` + reportColumns + ` FROM reports ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	return r.list(ctx, query, limit, offset)
}

func (r *ReportRepository) list(ctx context.Context, query string, args ...any) ([]*models.ReportRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	reports := []*models.ReportRecord{}
	for rows.Next() {
		rec, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return reports, nil
}

// scanReport reads one row in reportColumns order
func scanReport(row pgx.Row) (*models.ReportRecord, error) {
	rec := &models.ReportRecord{}
	var (
		confidence  pgtype.Float8
		reason      string
		intel       []byte
		status      string
		lastError   pgtype.Text
		createdAt   pgtype.Timestamptz
		deliveredAt pgtype.Timestamptz
	)

	err := row.Scan(
		&rec.ID, &rec.Report.SessionID, &rec.Report.ScamDetected, &confidence, &rec.Report.TotalMessagesExchanged,
		&reason, &intel, &rec.Report.AgentNotes, &status, &rec.Attempts,
		&lastError, &createdAt, &deliveredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to scan report: %w", err)
	}

	rec.Report.ExtractedIntelligence = models.NewExtractedIntelligence()
	if len(intel) > 0 {
		if err := json.Unmarshal(intel, &rec.Report.ExtractedIntelligence); err != nil {
			return nil, fmt.Errorf("failed to decode intelligence: %w", err)
		}
	}

	rec.ScamConfidence = float8ToFloat(confidence)
	rec.TerminationReason = models.TerminationReason(reason)
	rec.Status = models.DeliveryStatus(status)
	rec.LastError = nullTextToString(lastError)
	rec.CreatedAt = timestamptzToTime(createdAt)
	rec.DeliveredAt = timestamptzToTimePtr(deliveredAt)

	return rec, nil
}
