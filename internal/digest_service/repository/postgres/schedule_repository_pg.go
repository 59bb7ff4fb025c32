package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/famline/notifications/internal/digest_service/domain"
)

const scheduleColumns = `
	id, recipient_id, group_id, frequency, delivery_time, delivery_day,
	timezone, max_items_per_digest, include_content_types, auto_approve,
	is_active, last_sent_at, next_scheduled_at, created_at, updated_at`

type PgScheduleRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgScheduleRepository(db DB, logger *slog.Logger) *PgScheduleRepository {
	return &PgScheduleRepository{db: db, logger: logger}
}

func scanSchedule(row pgx.Row) (*domain.DigestSchedule, error) {
	s := &domain.DigestSchedule{}
	var deliveryTime time.Time
	err := row.Scan(
		&s.ID, &s.RecipientID, &s.GroupID, &s.Frequency, &deliveryTime, &s.DeliveryDay,
		&s.Timezone, &s.MaxItemsPerDigest, &s.IncludeContentTypes, &s.AutoApprove,
		&s.IsActive, &s.LastSentAt, &s.NextScheduledAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.DeliveryTime = domain.DeliveryTime{
		Hour:   deliveryTime.Hour(),
		Minute: deliveryTime.Minute(),
		Second: deliveryTime.Second(),
	}
	return s, nil
}

func (r *PgScheduleRepository) Create(ctx context.Context, schedule *domain.DigestSchedule) error {
	query := `
		INSERT INTO digest_schedules (
			id, recipient_id, group_id, frequency, delivery_time, delivery_day,
			timezone, max_items_per_digest, include_content_types, auto_approve,
			is_active, next_scheduled_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.Exec(ctx, query,
		schedule.ID, schedule.RecipientID, schedule.GroupID, schedule.Frequency,
		schedule.DeliveryTime.String(), schedule.DeliveryDay, schedule.Timezone,
		schedule.MaxItemsPerDigest, schedule.IncludeContentTypes, schedule.AutoApprove,
		schedule.IsActive, schedule.NextScheduledAt, schedule.CreatedAt, schedule.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateSchedule
		}
		r.logger.ErrorContext(ctx, "Error creating digest schedule", "error", err)
		return fmt.Errorf("failed to create digest schedule: %w", err)
	}
	return nil
}

func (r *PgScheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DigestSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM digest_schedules WHERE id = $1`
	s, err := scanSchedule(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting digest schedule", "error", err, "schedule_id", id)
		return nil, err
	}
	return s, nil
}

func (r *PgScheduleRepository) ListByRecipient(ctx context.Context, recipientID uuid.UUID) ([]*domain.DigestSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM digest_schedules WHERE recipient_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, recipientID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing digest schedules", "error", err, "recipient_id", recipientID)
		return nil, err
	}
	defer rows.Close()

	var schedules []*domain.DigestSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func (r *PgScheduleRepository) Update(ctx context.Context, schedule *domain.DigestSchedule) error {
	query := `
		UPDATE digest_schedules SET
			frequency = $1, delivery_time = $2, delivery_day = $3, timezone = $4,
			max_items_per_digest = $5, include_content_types = $6, auto_approve = $7,
			is_active = $8, next_scheduled_at = $9, updated_at = $10
		WHERE id = $11
	`
	tag, err := r.db.Exec(ctx, query,
		schedule.Frequency, schedule.DeliveryTime.String(), schedule.DeliveryDay,
		schedule.Timezone, schedule.MaxItemsPerDigest, schedule.IncludeContentTypes,
		schedule.AutoApprove, schedule.IsActive, schedule.NextScheduledAt,
		time.Now().UTC(), schedule.ID,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating digest schedule", "error", err, "schedule_id", schedule.ID)
		return fmt.Errorf("failed to update digest schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgScheduleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM digest_schedules WHERE id = $1`, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error deleting digest schedule", "error", err, "schedule_id", id)
		return fmt.Errorf("failed to delete digest schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AcquireDue claims due schedules by pushing next_scheduled_at forward
// by lease inside the claiming update. The lease acts as a per-schedule
// lock: a second poller no longer sees the row as due, and a crashed
// compile retries once the lease lapses.
func (r *PgScheduleRepository) AcquireDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.DigestSchedule, error) {
	query := `
		WITH due_schedule_ids AS (
			SELECT id
			FROM digest_schedules
			WHERE is_active = true AND next_scheduled_at <= $1
			ORDER BY next_scheduled_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE digest_schedules ds
		SET next_scheduled_at = $3, updated_at = $4
		FROM due_schedule_ids
		WHERE ds.id = due_schedule_ids.id
		RETURNING ` + prefixScheduleColumns("ds")
	rows, err := r.db.Query(ctx, query, now, limit, now.Add(lease), now)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error acquiring due digest schedules", "error", err)
		return nil, fmt.Errorf("failed to acquire due digest schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*domain.DigestSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return nil, domain.ErrNoDueSchedules
	}
	return schedules, nil
}

func (r *PgScheduleRepository) CompleteRun(ctx context.Context, id uuid.UUID, sentAt time.Time, nextScheduledAt time.Time) error {
	query := `
		UPDATE digest_schedules
		SET last_sent_at = $1, next_scheduled_at = $2, updated_at = $3
		WHERE id = $4
	`
	tag, err := r.db.Exec(ctx, query, sentAt, nextScheduledAt, time.Now().UTC(), id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error completing digest run", "error", err, "schedule_id", id)
		return fmt.Errorf("failed to complete digest run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// prefixScheduleColumns qualifies the shared column list with a table
// alias for use in UPDATE ... RETURNING.
func prefixScheduleColumns(alias string) string {
	cols := []string{
		"id", "recipient_id", "group_id", "frequency", "delivery_time", "delivery_day",
		"timezone", "max_items_per_digest", "include_content_types", "auto_approve",
		"is_active", "last_sent_at", "next_scheduled_at", "created_at", "updated_at",
	}
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + c
	}
	return out
}
