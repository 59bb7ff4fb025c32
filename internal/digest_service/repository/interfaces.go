package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/famline/notifications/internal/digest_service/domain"
)

// ScheduleRepository manages DigestSchedule rows.
type ScheduleRepository interface {
	// Create inserts a schedule. A second schedule for the same
	// recipient and group yields domain.ErrDuplicateSchedule.
	Create(ctx context.Context, schedule *domain.DigestSchedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DigestSchedule, error)
	ListByRecipient(ctx context.Context, recipientID uuid.UUID) ([]*domain.DigestSchedule, error)
	Update(ctx context.Context, schedule *domain.DigestSchedule) error
	Delete(ctx context.Context, id uuid.UUID) error

	// AcquireDue claims active schedules whose next_scheduled_at has
	// passed, pushing next_scheduled_at forward by lease so no other
	// poller picks the same schedule while it compiles. The proper next
	// run is recomputed by CompleteRun.
	AcquireDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.DigestSchedule, error)

	// CompleteRun records a finished compile: last_sent_at and the
	// recomputed next_scheduled_at.
	CompleteRun(ctx context.Context, id uuid.UUID, sentAt time.Time, nextScheduledAt time.Time) error
}

// DigestRepository manages Digest rows.
type DigestRepository interface {
	Create(ctx context.Context, digest *domain.Digest) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Digest, error)
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]*domain.Digest, error)

	// UpdateNarrative customizes the recipient-facing narrative of a
	// pending_review digest.
	UpdateNarrative(ctx context.Context, id uuid.UUID, narrative domain.Narrative) error

	// UpdateStatus applies a status transition guarded by the expected
	// current status; a stale expectation yields
	// domain.ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.DigestStatus, approvedAt time.Time) error

	Delete(ctx context.Context, id uuid.UUID) error
}

// ContentItemReader reads the updates read model. The pipeline never
// writes updates.
type ContentItemReader interface {
	// ListSince returns group content created after since, oldest
	// first, filtered by content type (empty filter means all), capped
	// at limit.
	ListSince(ctx context.Context, groupID uuid.UUID, since time.Time, contentTypes []string, limit int) ([]*domain.ContentItem, error)
}

// RecipientDirectory reads the group membership read model.
type RecipientDirectory interface {
	GetMember(ctx context.Context, id uuid.UUID) (*domain.Recipient, error)
}
