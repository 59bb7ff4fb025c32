package postgres

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famline/notifications/internal/notification_service/domain"
	"github.com/famline/notifications/internal/notification_service/repository"
)

func setupJobRepoTest(t *testing.T) (*PgJobRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPgJobRepository(mockPool, logger), mockPool
}

var jobRows = []string{
	"id", "recipient_id", "group_id", "delivery_method", "notification_type", "recipient_address",
	"content_ref", "payload", "status", "scheduled_for", "processed_at", "retry_count", "max_retries",
	"failure_reason", "provider_message_id", "created_at", "updated_at",
}

func TestPgJobRepository_AcquireDue(t *testing.T) {
	repo, mockPool := setupJobRepoTest(t)
	defer mockPool.Close()

	jobID := uuid.New()
	recipientID := uuid.New()
	now := time.Now().UTC()

	rows := mockPool.NewRows(jobRows).AddRow(
		jobID, recipientID, uuid.NullUUID{}, domain.MethodEmail, "update", "nana@example.com",
		"update:abc", []byte(`{"body":"hi"}`), domain.StatusProcessing, now.Add(-time.Minute),
		sql.NullTime{}, 0, 3, sql.NullString{}, sql.NullString{}, now, now,
	)

	mockPool.ExpectQuery(`WITH due_job_ids AS`).
		WithArgs(domain.StatusPending, now, 20, domain.StatusProcessing, pgxmock.AnyArg()).
		WillReturnRows(rows)

	jobs, err := repo.AcquireDue(context.Background(), now, 20)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, jobID, jobs[0].ID)
	assert.Equal(t, domain.StatusProcessing, jobs[0].Status)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_AcquireDue_NoRows(t *testing.T) {
	repo, mockPool := setupJobRepoTest(t)
	defer mockPool.Close()

	now := time.Now().UTC()
	mockPool.ExpectQuery(`WITH due_job_ids AS`).
		WithArgs(domain.StatusPending, now, 20, domain.StatusProcessing, pgxmock.AnyArg()).
		WillReturnRows(mockPool.NewRows(jobRows))

	_, err := repo.AcquireDue(context.Background(), now, 20)
	assert.ErrorIs(t, err, domain.ErrNoDueJobs)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_FinishAttempt_LogThenApply(t *testing.T) {
	repo, mockPool := setupJobRepoTest(t)
	defer mockPool.Close()

	jobID := uuid.New()
	attemptedAt := time.Now().UTC()

	// Expectations are ordered: the delivery log insert must precede the
	// status transition inside the same transaction.
	mockPool.ExpectBegin()
	mockPool.ExpectExec(`INSERT INTO delivery_logs`).
		WithArgs(pgxmock.AnyArg(), jobID, domain.AttemptSucceeded, sql.NullString{}, sql.NullString{}, int64(120), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec(`UPDATE notification_jobs`).
		WithArgs(domain.StatusSent, attemptedAt, sql.NullString{String: "prov-1", Valid: true}, pgxmock.AnyArg(), jobID, domain.StatusProcessing).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mockPool.ExpectCommit()
	// pgx.BeginFunc always issues a deferred Rollback; after Commit the
	// real driver answers ErrTxClosed, which BeginFunc ignores.
	mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

	err := repo.FinishAttempt(context.Background(), repository.FinishAttemptParams{
		JobID:             jobID,
		Outcome:           repository.OutcomeSent,
		AttemptedAt:       attemptedAt,
		DurationMs:        120,
		ProviderMessageID: sql.NullString{String: "prov-1", Valid: true},
	})
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_FinishAttempt_StaleClaimRollsBack(t *testing.T) {
	repo, mockPool := setupJobRepoTest(t)
	defer mockPool.Close()

	jobID := uuid.New()

	mockPool.ExpectBegin()
	mockPool.ExpectExec(`INSERT INTO delivery_logs`).
		WithArgs(pgxmock.AnyArg(), jobID, domain.AttemptFailed, pgxmock.AnyArg(), pgxmock.AnyArg(), int64(50), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	// Job no longer in processing: the transition touches zero rows.
	mockPool.ExpectExec(`UPDATE notification_jobs`).
		WithArgs(domain.StatusPending, pgxmock.AnyArg(), 1, pgxmock.AnyArg(), pgxmock.AnyArg(), jobID, domain.StatusProcessing).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mockPool.ExpectRollback()
	// Second Rollback comes from BeginFunc's defer after the explicit
	// error-path Rollback; the real driver answers ErrTxClosed.
	mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

	err := repo.FinishAttempt(context.Background(), repository.FinishAttemptParams{
		JobID:         jobID,
		Outcome:       repository.OutcomeRetry,
		AttemptedAt:   time.Now().UTC(),
		DurationMs:    50,
		RetryCount:    1,
		NextAttemptAt: time.Now().UTC().Add(time.Minute),
		FailureReason: sql.NullString{String: "timeout", Valid: true},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgJobRepository_Cancel_OnlyFromPending(t *testing.T) {
	repo, mockPool := setupJobRepoTest(t)
	defer mockPool.Close()

	jobID := uuid.New()

	t.Run("pending job cancels", func(t *testing.T) {
		mockPool.ExpectExec(`UPDATE notification_jobs`).
			WithArgs(domain.StatusCancelled, pgxmock.AnyArg(), jobID, domain.StatusPending).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.Cancel(context.Background(), jobID))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("processing job conflicts", func(t *testing.T) {
		now := time.Now().UTC()
		mockPool.ExpectExec(`UPDATE notification_jobs`).
			WithArgs(domain.StatusCancelled, pgxmock.AnyArg(), jobID, domain.StatusPending).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mockPool.ExpectQuery(`FROM notification_jobs WHERE id = \$1`).
			WithArgs(jobID).
			WillReturnRows(mockPool.NewRows(jobRows).AddRow(
				jobID, uuid.New(), uuid.NullUUID{}, domain.MethodEmail, "update", "a@b.c",
				"update:x", []byte(`{}`), domain.StatusProcessing, now,
				sql.NullTime{}, 0, 3, sql.NullString{}, sql.NullString{}, now, now,
			))

		err := repo.Cancel(context.Background(), jobID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
