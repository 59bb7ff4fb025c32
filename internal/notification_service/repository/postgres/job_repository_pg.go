package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/famline/notifications/internal/notification_service/domain"
	"github.com/famline/notifications/internal/notification_service/repository"
)

const jobColumns = `id, recipient_id, group_id, delivery_method, notification_type, recipient_address,
	content_ref, payload, status, scheduled_for, processed_at, retry_count, max_retries,
	failure_reason, provider_message_id, created_at, updated_at`

type PgJobRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgJobRepository(db DB, logger *slog.Logger) *PgJobRepository {
	return &PgJobRepository{db: db, logger: logger}
}

func scanJob(row pgx.Row) (*domain.NotificationJob, error) {
	job := &domain.NotificationJob{}
	err := row.Scan(
		&job.ID, &job.RecipientID, &job.GroupID, &job.DeliveryMethod, &job.NotificationType,
		&job.RecipientAddress, &job.ContentRef, &job.Payload, &job.Status, &job.ScheduledFor,
		&job.ProcessedAt, &job.RetryCount, &job.MaxRetries, &job.FailureReason,
		&job.ProviderMessageID, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *PgJobRepository) Create(ctx context.Context, job *domain.NotificationJob) error {
	query := `
		INSERT INTO notification_jobs (id, recipient_id, group_id, delivery_method, notification_type,
			recipient_address, content_ref, payload, status, scheduled_for, retry_count, max_retries,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.Exec(ctx, query,
		job.ID, job.RecipientID, job.GroupID, job.DeliveryMethod, job.NotificationType,
		job.RecipientAddress, job.ContentRef, job.Payload, job.Status, job.ScheduledFor,
		job.RetryCount, job.MaxRetries, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating notification job", "error", err, "job_id", job.ID)
		return err
	}
	r.logger.InfoContext(ctx, "Notification job created", "job_id", job.ID, "delivery_method", job.DeliveryMethod)
	return nil
}

func (r *PgJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.NotificationJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM notification_jobs WHERE id = $1`, jobColumns)
	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting notification job", "error", err, "job_id", id)
		return nil, err
	}
	return job, nil
}

func (r *PgJobRepository) List(ctx context.Context, f repository.JobFilter) ([]*domain.NotificationJob, int, error) {
	var baseQuery strings.Builder
	baseQuery.WriteString(fmt.Sprintf("SELECT %s FROM notification_jobs", jobColumns))

	var countQuery strings.Builder
	countQuery.WriteString("SELECT COUNT(*) FROM notification_jobs")

	var conditions []string
	var args []interface{}
	argCounter := 1

	addCondition := func(cond string, value interface{}) {
		conditions = append(conditions, fmt.Sprintf(cond, argCounter))
		args = append(args, value)
		argCounter++
	}

	if f.RecipientID.Valid {
		addCondition("recipient_id = $%d", f.RecipientID.UUID)
	}
	if f.GroupID.Valid {
		addCondition("group_id = $%d", f.GroupID.UUID)
	}
	if f.Status != "" {
		addCondition("status = $%d", f.Status)
	}
	if f.DeliveryMethod != "" {
		addCondition("delivery_method = $%d", f.DeliveryMethod)
	}
	if f.NotificationType != "" {
		addCondition("notification_type = $%d", f.NotificationType)
	}

	if len(conditions) > 0 {
		whereClause := " WHERE " + strings.Join(conditions, " AND ")
		baseQuery.WriteString(whereClause)
		countQuery.WriteString(whereClause)
	}

	var totalCount int
	if err := r.db.QueryRow(ctx, countQuery.String(), args...).Scan(&totalCount); err != nil {
		r.logger.ErrorContext(ctx, "Error counting notification jobs", "error", err)
		return nil, 0, err
	}
	if totalCount == 0 {
		return []*domain.NotificationJob{}, 0, nil
	}

	sortCol := "created_at"
	if f.SortBy == "scheduled_for" {
		sortCol = "scheduled_for"
	}
	direction := "DESC"
	if f.SortAsc {
		direction = "ASC"
	}
	baseQuery.WriteString(fmt.Sprintf(" ORDER BY %s %s", sortCol, direction))

	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		baseQuery.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCounter, argCounter+1))
		args = append(args, f.PageSize, (page-1)*f.PageSize)
	}

	rows, err := r.db.Query(ctx, baseQuery.String(), args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing notification jobs", "error", err)
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []*domain.NotificationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Error scanning notification job row", "error", err)
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return jobs, totalCount, nil
}

// AcquireDue claims due pending jobs with a conditional update guarded
// by FOR UPDATE SKIP LOCKED, so concurrent workers never claim the same
// row.
func (r *PgJobRepository) AcquireDue(ctx context.Context, dueTime time.Time, limit int) ([]*domain.NotificationJob, error) {
	query := fmt.Sprintf(`
		WITH due_job_ids AS (
			SELECT id
			FROM notification_jobs
			WHERE status = $1 AND scheduled_for <= $2
			ORDER BY scheduled_for ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_jobs nj
		SET status = $4, updated_at = $5
		FROM due_job_ids dj
		WHERE nj.id = dj.id
		RETURNING %s;
	`, prefixColumns("nj", jobColumns))

	now := time.Now().UTC()
	rows, err := r.db.Query(ctx, query, domain.StatusPending, dueTime, limit, domain.StatusProcessing, now)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error acquiring due jobs", "error", err)
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.NotificationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Error scanning acquired job row", "error", err)
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(jobs) == 0 {
		return nil, domain.ErrNoDueJobs
	}

	r.logger.InfoContext(ctx, "Acquired jobs for delivery", "count", len(jobs))
	return jobs, nil
}

func (r *PgJobRepository) Release(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error {
	query := `
		UPDATE notification_jobs
		SET status = $1, scheduled_for = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`
	tag, err := r.db.Exec(ctx, query, domain.StatusPending, nextAttemptAt, time.Now().UTC(), id, domain.StatusProcessing)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error releasing job", "error", err, "job_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// FinishAttempt inserts the delivery log row and applies the job status
// transition inside one transaction. The log insert runs first so a
// committed transition always has its attempt row.
func (r *PgJobRepository) FinishAttempt(ctx context.Context, p repository.FinishAttemptParams) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		attemptStatus := domain.AttemptSucceeded
		if p.Outcome != repository.OutcomeSent {
			attemptStatus = domain.AttemptFailed
		}
		logRow := domain.NewDeliveryLog(p.JobID, attemptStatus, p.FailureReason, p.ErrorCode, p.DurationMs)

		insertLog := `
			INSERT INTO delivery_logs (id, job_id, status, error_message, error_code, duration_ms, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := tx.Exec(ctx, insertLog,
			logRow.ID, logRow.JobID, logRow.Status, logRow.ErrorMessage, logRow.ErrorCode,
			logRow.DurationMs, logRow.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to append delivery log: %w", err)
		}

		now := time.Now().UTC()
		var tag pgconn.CommandTag
		var err error

		switch p.Outcome {
		case repository.OutcomeSent:
			query := `
				UPDATE notification_jobs
				SET status = $1, processed_at = $2, provider_message_id = $3, failure_reason = NULL, updated_at = $4
				WHERE id = $5 AND status = $6
			`
			tag, err = tx.Exec(ctx, query, domain.StatusSent, p.AttemptedAt, p.ProviderMessageID, now, p.JobID, domain.StatusProcessing)
		case repository.OutcomeRetry:
			query := `
				UPDATE notification_jobs
				SET status = $1, scheduled_for = $2, retry_count = $3, failure_reason = $4, updated_at = $5
				WHERE id = $6 AND status = $7
			`
			tag, err = tx.Exec(ctx, query, domain.StatusPending, p.NextAttemptAt, p.RetryCount, p.FailureReason, now, p.JobID, domain.StatusProcessing)
		case repository.OutcomeFailed:
			query := `
				UPDATE notification_jobs
				SET status = $1, processed_at = $2, retry_count = $3, failure_reason = $4, updated_at = $5
				WHERE id = $6 AND status = $7
			`
			tag, err = tx.Exec(ctx, query, domain.StatusFailed, p.AttemptedAt, p.RetryCount, p.FailureReason, now, p.JobID, domain.StatusProcessing)
		default:
			return fmt.Errorf("unknown attempt outcome: %s", p.Outcome)
		}

		if err != nil {
			return fmt.Errorf("failed to apply job transition (%s): %w", p.Outcome, err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrInvalidTransition
		}
		return nil
	})
}

func (r *PgJobRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notification_jobs
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, domain.StatusCancelled, time.Now().UTC(), id, domain.StatusPending)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error cancelling job", "error", err, "job_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing from already-progressed.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrInvalidTransition
	}
	r.logger.InfoContext(ctx, "Notification job cancelled", "job_id", id)
	return nil
}

func (r *PgJobRepository) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE notification_jobs
		SET status = $1, retry_count = 0, failure_reason = NULL, scheduled_for = $2, processed_at = NULL, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, domain.StatusPending, time.Now().UTC(), id, domain.StatusFailed)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error resetting job for retry", "error", err, "job_id", id)
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrInvalidTransition
	}
	r.logger.InfoContext(ctx, "Notification job reset for manual retry", "job_id", id)
	return nil
}

func (r *PgJobRepository) CountByStatus(ctx context.Context, since time.Time) (repository.StatusCounts, error) {
	query := `SELECT status, COUNT(*) FROM notification_jobs WHERE created_at >= $1 GROUP BY status`
	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error counting jobs by status", "error", err)
		return nil, err
	}
	defer rows.Close()

	counts := repository.StatusCounts{}
	for rows.Next() {
		var status domain.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *PgJobRepository) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM notification_jobs WHERE status = $1 AND scheduled_for < $2`
	var count int
	if err := r.db.QueryRow(ctx, query, domain.StatusPending, now).Scan(&count); err != nil {
		r.logger.ErrorContext(ctx, "Error counting overdue jobs", "error", err)
		return 0, err
	}
	return count, nil
}

// prefixColumns rewrites "a, b, c" into "t.a, t.b, t.c" for RETURNING
// clauses on aliased tables.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
