package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/famline/notifications/internal/digest_service/domain"
)

// PgContentItemReader selects from the updates read model.
type PgContentItemReader struct {
	db     DB
	logger *slog.Logger
}

func NewPgContentItemReader(db DB, logger *slog.Logger) *PgContentItemReader {
	return &PgContentItemReader{db: db, logger: logger}
}

func (r *PgContentItemReader) ListSince(ctx context.Context, groupID uuid.UUID, since time.Time, contentTypes []string, limit int) ([]*domain.ContentItem, error) {
	query := `
		SELECT id, group_id, content_type, caption, author_name, media_url, created_at
		FROM updates
		WHERE group_id = $1
		  AND created_at > $2
		  AND (cardinality($3::text[]) = 0 OR content_type = ANY($3::text[]))
		ORDER BY created_at ASC
		LIMIT $4
	`
	if contentTypes == nil {
		contentTypes = []string{}
	}
	rows, err := r.db.Query(ctx, query, groupID, since, contentTypes, limit)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error listing content items", "error", err, "group_id", groupID)
		return nil, err
	}
	defer rows.Close()

	var items []*domain.ContentItem
	for rows.Next() {
		item := &domain.ContentItem{}
		err := rows.Scan(&item.ID, &item.GroupID, &item.ContentType, &item.Caption,
			&item.AuthorName, &item.MediaURL, &item.CreatedAt)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// PgRecipientDirectory selects from the group_members read model.
type PgRecipientDirectory struct {
	db     DB
	logger *slog.Logger
}

func NewPgRecipientDirectory(db DB, logger *slog.Logger) *PgRecipientDirectory {
	return &PgRecipientDirectory{db: db, logger: logger}
}

const memberColumns = `id, group_id, display_name, address, delivery_method, relationship, tone_preference`

func (r *PgRecipientDirectory) GetMember(ctx context.Context, id uuid.UUID) (*domain.Recipient, error) {
	query := `SELECT ` + memberColumns + ` FROM group_members WHERE id = $1 AND is_active = true`
	m := &domain.Recipient{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.GroupID, &m.DisplayName, &m.Address, &m.DeliveryMethod,
		&m.Relationship, &m.TonePreference,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting group member", "error", err, "member_id", id)
		return nil, err
	}
	return m, nil
}
