package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/famline/notifications/internal/notification_service/domain"
	"github.com/famline/notifications/internal/notification_service/repository"
)

type PgDeliveryLogRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgDeliveryLogRepository(db DB, logger *slog.Logger) *PgDeliveryLogRepository {
	return &PgDeliveryLogRepository{db: db, logger: logger}
}

func (r *PgDeliveryLogRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.DeliveryLog, error) {
	query := `
		SELECT id, job_id, status, error_message, error_code, duration_ms, created_at
		FROM delivery_logs
		WHERE job_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, jobID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing delivery logs", "error", err, "job_id", jobID)
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.DeliveryLog
	for rows.Next() {
		l := &domain.DeliveryLog{}
		if err := rows.Scan(&l.ID, &l.JobID, &l.Status, &l.ErrorMessage, &l.ErrorCode, &l.DurationMs, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *PgDeliveryLogRepository) StatsSince(ctx context.Context, since time.Time) (*repository.DeliveryStats, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = $1),
		       COALESCE(AVG(duration_ms), 0)
		FROM delivery_logs
		WHERE created_at >= $2
	`
	stats := &repository.DeliveryStats{}
	err := r.db.QueryRow(ctx, query, domain.AttemptSucceeded, since).Scan(
		&stats.Attempts, &stats.Succeeded, &stats.AvgDurationMs,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error computing delivery stats", "error", err)
		return nil, err
	}
	return stats, nil
}
