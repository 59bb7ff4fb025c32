package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/famline/notifications/internal/notification_service/domain"
)

// AttemptOutcome tells FinishAttempt which transition to apply.
type AttemptOutcome string

const (
	OutcomeSent   AttemptOutcome = "sent"   // processing -> sent
	OutcomeRetry  AttemptOutcome = "retry"  // processing -> pending, rescheduled
	OutcomeFailed AttemptOutcome = "failed" // processing -> failed, terminal
)

// FinishAttemptParams carries everything needed to record one delivery
// attempt: the append-only log row and the job status transition. The
// implementation must write the log row before applying the transition,
// in one transaction, so logs and status never diverge.
type FinishAttemptParams struct {
	JobID             uuid.UUID
	Outcome           AttemptOutcome
	AttemptedAt       time.Time
	DurationMs        int64
	ProviderMessageID sql.NullString
	FailureReason     sql.NullString
	ErrorCode         sql.NullString
	RetryCount        int       // retry count after this attempt
	NextAttemptAt     time.Time // only meaningful for OutcomeRetry
}

// JobFilter narrows List queries.
type JobFilter struct {
	RecipientID      uuid.NullUUID
	GroupID          uuid.NullUUID
	Status           string
	DeliveryMethod   string
	NotificationType string
	SortBy           string // "scheduled_for" or "created_at" (default)
	SortAsc          bool
	Page             int
	PageSize         int
}

// StatusCounts maps job status to count.
type StatusCounts map[domain.JobStatus]int

// JobRepository manages NotificationJob rows.
type JobRepository interface {
	Create(ctx context.Context, job *domain.NotificationJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.NotificationJob, error)
	List(ctx context.Context, f JobFilter) ([]*domain.NotificationJob, int, error)

	// AcquireDue atomically claims due pending jobs (pending ->
	// processing) ordered by scheduled_for, so no two workers ever
	// process the same job.
	AcquireDue(ctx context.Context, dueTime time.Time, limit int) ([]*domain.NotificationJob, error)

	// Release puts a claimed job back to pending without touching its
	// retry count, rescheduled to nextAttemptAt. Used when the circuit
	// breaker refuses the channel.
	Release(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error

	// FinishAttempt records the attempt log row and applies the status
	// transition in one transaction (log-then-apply ordering).
	FinishAttempt(ctx context.Context, p FinishAttemptParams) error

	// Cancel transitions pending -> cancelled. Any other current status
	// yields domain.ErrInvalidTransition.
	Cancel(ctx context.Context, id uuid.UUID) error

	// ResetForRetry is the manual operator retry: failed -> pending with
	// retry_count 0 and failure_reason cleared.
	ResetForRetry(ctx context.Context, id uuid.UUID) error

	CountByStatus(ctx context.Context, since time.Time) (StatusCounts, error)
	CountOverdue(ctx context.Context, now time.Time) (int, error)
}

// DeliveryStats aggregates attempt outcomes over a window.
type DeliveryStats struct {
	Attempts      int
	Succeeded     int
	AvgDurationMs float64
}

// DeliveryLogRepository reads the append-only attempt log. Writes go
// through JobRepository.FinishAttempt only.
type DeliveryLogRepository interface {
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.DeliveryLog, error)
	StatsSince(ctx context.Context, since time.Time) (*DeliveryStats, error)
}
