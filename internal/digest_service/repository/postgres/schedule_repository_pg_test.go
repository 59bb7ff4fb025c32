package postgres

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famline/notifications/internal/digest_service/domain"
)

func setupScheduleRepoTest(t *testing.T) (*PgScheduleRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPgScheduleRepository(mockPool, logger), mockPool
}

var scheduleRows = []string{
	"id", "recipient_id", "group_id", "frequency", "delivery_time", "delivery_day",
	"timezone", "max_items_per_digest", "include_content_types", "auto_approve",
	"is_active", "last_sent_at", "next_scheduled_at", "created_at", "updated_at",
}

func TestPgScheduleRepository_Create_DuplicateConflicts(t *testing.T) {
	repo, mockPool := setupScheduleRepoTest(t)
	defer mockPool.Close()

	schedule := &domain.DigestSchedule{
		ID:                uuid.New(),
		RecipientID:       uuid.New(),
		GroupID:           uuid.New(),
		Frequency:         domain.FrequencyDaily,
		DeliveryTime:      domain.DeliveryTime{Hour: 8},
		Timezone:          "UTC",
		MaxItemsPerDigest: 20,
		IsActive:          true,
		NextScheduledAt:   time.Now().UTC().Add(time.Hour),
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}

	mockPool.ExpectExec(`INSERT INTO digest_schedules`).
		WithArgs(schedule.ID, schedule.RecipientID, schedule.GroupID, schedule.Frequency,
			"08:00:00", schedule.DeliveryDay, "UTC", 20, schedule.IncludeContentTypes,
			false, true, schedule.NextScheduledAt, schedule.CreatedAt, schedule.UpdatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uniq_schedule_per_recipient_group"})

	err := repo.Create(context.Background(), schedule)
	assert.ErrorIs(t, err, domain.ErrDuplicateSchedule)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgScheduleRepository_AcquireDue_LeasesClaim(t *testing.T) {
	repo, mockPool := setupScheduleRepoTest(t)
	defer mockPool.Close()

	scheduleID := uuid.New()
	now := time.Now().UTC()
	lease := 10 * time.Minute

	rows := mockPool.NewRows(scheduleRows).AddRow(
		scheduleID, uuid.New(), uuid.New(), domain.FrequencyWeekly,
		time.Date(0, 1, 1, 8, 0, 0, 0, time.UTC), sql.NullInt32{Int32: 3, Valid: true},
		"UTC", 20, []string{"photo"}, false, true, sql.NullTime{},
		now.Add(lease), now.Add(-time.Hour), now,
	)

	// The claim itself moves next_scheduled_at forward by the lease.
	mockPool.ExpectQuery(`WITH due_schedule_ids AS`).
		WithArgs(now, 5, now.Add(lease), now).
		WillReturnRows(rows)

	schedules, err := repo.AcquireDue(context.Background(), now, lease, 5)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, scheduleID, schedules[0].ID)
	assert.Equal(t, 8, schedules[0].DeliveryTime.Hour)
	assert.Equal(t, []string{"photo"}, schedules[0].IncludeContentTypes)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgScheduleRepository_AcquireDue_NoRows(t *testing.T) {
	repo, mockPool := setupScheduleRepoTest(t)
	defer mockPool.Close()

	now := time.Now().UTC()
	mockPool.ExpectQuery(`WITH due_schedule_ids AS`).
		WithArgs(now, 5, now.Add(time.Minute), now).
		WillReturnRows(mockPool.NewRows(scheduleRows))

	_, err := repo.AcquireDue(context.Background(), now, time.Minute, 5)
	assert.ErrorIs(t, err, domain.ErrNoDueSchedules)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgScheduleRepository_CompleteRun(t *testing.T) {
	repo, mockPool := setupScheduleRepoTest(t)
	defer mockPool.Close()

	scheduleID := uuid.New()
	sentAt := time.Now().UTC()
	nextRun := sentAt.Add(24 * time.Hour)

	mockPool.ExpectExec(`UPDATE digest_schedules`).
		WithArgs(sentAt, nextRun, pgxmock.AnyArg(), scheduleID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.CompleteRun(context.Background(), scheduleID, sentAt, nextRun))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
