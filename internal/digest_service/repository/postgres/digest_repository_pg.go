package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/famline/notifications/internal/digest_service/domain"
)

const digestColumns = `
	id, schedule_id, recipient_id, group_id, status, item_refs,
	narrative, parent_narrative, fallback_used, scheduled_for,
	approved_at, created_at, updated_at`

type PgDigestRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgDigestRepository(db DB, logger *slog.Logger) *PgDigestRepository {
	return &PgDigestRepository{db: db, logger: logger}
}

func scanDigest(row pgx.Row) (*domain.Digest, error) {
	d := &domain.Digest{}
	var narrative, parentNarrative []byte
	err := row.Scan(
		&d.ID, &d.ScheduleID, &d.RecipientID, &d.GroupID, &d.Status, &d.ItemRefs,
		&narrative, &parentNarrative, &d.FallbackUsed, &d.ScheduledFor,
		&d.ApprovedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(narrative, &d.Narrative); err != nil {
		return nil, fmt.Errorf("failed to decode digest narrative: %w", err)
	}
	if err := json.Unmarshal(parentNarrative, &d.ParentNarrative); err != nil {
		return nil, fmt.Errorf("failed to decode parent narrative: %w", err)
	}
	return d, nil
}

func (r *PgDigestRepository) Create(ctx context.Context, digest *domain.Digest) error {
	narrative, err := json.Marshal(digest.Narrative)
	if err != nil {
		return fmt.Errorf("failed to encode digest narrative: %w", err)
	}
	parentNarrative, err := json.Marshal(digest.ParentNarrative)
	if err != nil {
		return fmt.Errorf("failed to encode parent narrative: %w", err)
	}
	query := `
		INSERT INTO digests (
			id, schedule_id, recipient_id, group_id, status, item_refs,
			narrative, parent_narrative, fallback_used, scheduled_for,
			approved_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = r.db.Exec(ctx, query,
		digest.ID, digest.ScheduleID, digest.RecipientID, digest.GroupID, digest.Status,
		digest.ItemRefs, narrative, parentNarrative, digest.FallbackUsed,
		digest.ScheduledFor, digest.ApprovedAt, digest.CreatedAt, digest.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error creating digest", "error", err)
		return fmt.Errorf("failed to create digest: %w", err)
	}
	return nil
}

func (r *PgDigestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Digest, error) {
	query := `SELECT ` + digestColumns + ` FROM digests WHERE id = $1`
	d, err := scanDigest(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting digest", "error", err, "digest_id", id)
		return nil, err
	}
	return d, nil
}

func (r *PgDigestRepository) ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]*domain.Digest, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + digestColumns + ` FROM digests WHERE recipient_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, recipientID, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing digests", "error", err, "recipient_id", recipientID)
		return nil, err
	}
	defer rows.Close()

	var digests []*domain.Digest
	for rows.Next() {
		d, err := scanDigest(rows)
		if err != nil {
			return nil, err
		}
		digests = append(digests, d)
	}
	return digests, rows.Err()
}

func (r *PgDigestRepository) UpdateNarrative(ctx context.Context, id uuid.UUID, narrative domain.Narrative) error {
	encoded, err := json.Marshal(narrative)
	if err != nil {
		return fmt.Errorf("failed to encode digest narrative: %w", err)
	}
	query := `
		UPDATE digests
		SET narrative = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, encoded, time.Now().UTC(), id, domain.DigestPendingReview)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating digest narrative", "error", err, "digest_id", id)
		return fmt.Errorf("failed to update digest narrative: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *PgDigestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.DigestStatus, approvedAt time.Time) error {
	query := `
		UPDATE digests
		SET status = $1,
		    approved_at = COALESCE($2, approved_at),
		    updated_at = $3
		WHERE id = $4 AND status = $5
	`
	var approved *time.Time
	if !approvedAt.IsZero() {
		approved = &approvedAt
	}
	tag, err := r.db.Exec(ctx, query, to, approved, time.Now().UTC(), id, from)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating digest status", "error", err, "digest_id", id)
		return fmt.Errorf("failed to update digest status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *PgDigestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM digests WHERE id = $1`, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error deleting digest", "error", err, "digest_id", id)
		return fmt.Errorf("failed to delete digest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
