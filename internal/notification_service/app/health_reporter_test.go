package app

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/famline/notifications/internal/notification_service/breaker"
	"github.com/famline/notifications/internal/notification_service/domain"
	"github.com/famline/notifications/internal/notification_service/repository"
)

type MockDeliveryLogRepository struct {
	mock.Mock
}

func (m *MockDeliveryLogRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*domain.DeliveryLog, error) {
	args := m.Called(ctx, jobID)
	if logs, ok := args.Get(0).([]*domain.DeliveryLog); ok {
		return logs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDeliveryLogRepository) StatsSince(ctx context.Context, since time.Time) (*repository.DeliveryStats, error) {
	args := m.Called(ctx, since)
	if stats, ok := args.Get(0).(*repository.DeliveryStats); ok {
		return stats, args.Error(1)
	}
	return nil, args.Error(1)
}

func setupReporterTest(t *testing.T) (*HealthReporter, *MockJobRepository, *MockDeliveryLogRepository, *breaker.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := new(MockJobRepository)
	logs := new(MockDeliveryLogRepository)
	br := breaker.NewRegistry(breaker.DefaultSettings, logger)
	channels := []string{"email", "sms"}
	return NewHealthReporter(jobs, logs, br, channels, 24*time.Hour, logger), jobs, logs, br
}

func TestHealthReporter_AggregatesWindow(t *testing.T) {
	reporter, jobs, logs, br := setupReporterTest(t)

	jobs.On("CountByStatus", mock.Anything, mock.Anything).Return(repository.StatusCounts{
		domain.StatusPending: 4,
		domain.StatusSent:    90,
		domain.StatusFailed:  6,
	}, nil).Once()
	logs.On("StatsSince", mock.Anything, mock.Anything).Return(&repository.DeliveryStats{
		Attempts:      120,
		Succeeded:     90,
		AvgDurationMs: 340.5,
	}, nil).Once()
	jobs.On("CountOverdue", mock.Anything, mock.Anything).Return(2, nil).Once()

	// Put the sms circuit into a visible failure state.
	for i := 0; i < breaker.DefaultSettings.FailureThreshold; i++ {
		br.ReportFailure("sms")
	}

	health, err := reporter.Report(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 0.75, health.SuccessRate, 1e-9)
	assert.InDelta(t, 340.5, health.AvgProcessingMs, 1e-9)
	assert.Equal(t, 2, health.OverdueCount)
	assert.Equal(t, 4, health.StatusCounts[domain.StatusPending])

	require.Len(t, health.Breakers, 2)
	byChannel := map[string]breaker.Snapshot{}
	for _, s := range health.Breakers {
		byChannel[s.Channel] = s
	}
	assert.Equal(t, breaker.StateClosed, byChannel["email"].State)
	assert.Equal(t, breaker.StateOpen, byChannel["sms"].State)

	jobs.AssertExpectations(t)
	logs.AssertExpectations(t)
}

func TestHealthReporter_EmptyQueueReportsFullSuccess(t *testing.T) {
	reporter, jobs, logs, _ := setupReporterTest(t)

	jobs.On("CountByStatus", mock.Anything, mock.Anything).Return(repository.StatusCounts{}, nil).Once()
	logs.On("StatsSince", mock.Anything, mock.Anything).Return(&repository.DeliveryStats{}, nil).Once()
	jobs.On("CountOverdue", mock.Anything, mock.Anything).Return(0, nil).Once()

	health, err := reporter.Report(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, health.SuccessRate)
	assert.Zero(t, health.AvgProcessingMs)
	assert.Zero(t, health.OverdueCount)
}

func TestHealthReporter_StoreErrorPropagates(t *testing.T) {
	reporter, jobs, _, _ := setupReporterTest(t)

	jobs.On("CountByStatus", mock.Anything, mock.Anything).
		Return(nil, assert.AnError).Once()

	_, err := reporter.Report(context.Background())
	assert.Error(t, err)
}
