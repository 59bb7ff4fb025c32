package http

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/famline/notifications/internal/notification_service/domain"
	"github.com/famline/notifications/internal/notification_service/repository"
)

type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.NotificationJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.NotificationJob, error) {
	args := m.Called(ctx, id)
	if job, ok := args.Get(0).(*domain.NotificationJob); ok {
		return job, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockJobRepository) List(ctx context.Context, f repository.JobFilter) ([]*domain.NotificationJob, int, error) {
	args := m.Called(ctx, f)
	if jobs, ok := args.Get(0).([]*domain.NotificationJob); ok {
		return jobs, args.Int(1), args.Error(2)
	}
	return nil, 0, args.Error(2)
}

func (m *MockJobRepository) AcquireDue(ctx context.Context, dueTime time.Time, limit int) ([]*domain.NotificationJob, error) {
	args := m.Called(ctx, dueTime, limit)
	return nil, args.Error(1)
}

func (m *MockJobRepository) Release(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error {
	args := m.Called(ctx, id, nextAttemptAt)
	return args.Error(0)
}

func (m *MockJobRepository) FinishAttempt(ctx context.Context, p repository.FinishAttemptParams) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockJobRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJobRepository) ResetForRetry(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJobRepository) CountByStatus(ctx context.Context, since time.Time) (repository.StatusCounts, error) {
	args := m.Called(ctx, since)
	return nil, args.Error(1)
}

func (m *MockJobRepository) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

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

func setupJobHandlerTest(t *testing.T) (*chi.Mux, *MockJobRepository, *MockDeliveryLogRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := new(MockJobRepository)
	logs := new(MockDeliveryLogRepository)
	h := NewJobHandler(jobs, logs, nil, logger, validator.New(validator.WithRequiredStructEnabled()))

	r := chi.NewRouter()
	r.Post("/jobs", h.EnqueueJob)
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{id}", h.GetJob)
	r.Post("/jobs/{id}/cancel", h.CancelJob)
	r.Post("/jobs/{id}/retry", h.RetryJob)
	return r, jobs, logs
}

func TestJobHandler_EnqueueJob(t *testing.T) {
	router, jobs, _ := setupJobHandlerTest(t)
	recipientID := uuid.NewString()

	t.Run("valid request creates pending job", func(t *testing.T) {
		jobs.On("Create", mock.Anything, mock.MatchedBy(func(job *domain.NotificationJob) bool {
			return job.Status == domain.StatusPending &&
				job.DeliveryMethod == domain.MethodEmail &&
				job.MaxRetries == 3
		})).Return(nil).Once()

		body := `{
			"recipient_id": "` + recipientID + `",
			"delivery_method": "email",
			"notification_type": "update",
			"recipient_address": "nana@example.com",
			"content_ref": "update:abc",
			"subject": "New photo",
			"body": "Maria shared a photo"
		}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(body)))

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"pending"`)
		jobs.AssertExpectations(t)
	})

	t.Run("unknown channel is rejected", func(t *testing.T) {
		body := `{
			"recipient_id": "` + recipientID + `",
			"delivery_method": "fax",
			"notification_type": "update",
			"recipient_address": "nana@example.com",
			"content_ref": "update:abc",
			"body": "hi"
		}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(body)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString(`{not json`)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestJobHandler_GetJob(t *testing.T) {
	router, jobs, logs := setupJobHandlerTest(t)

	t.Run("detail includes logs and computed fields", func(t *testing.T) {
		job := domain.NewNotificationJob(
			uuid.New(), uuid.NullUUID{}, domain.MethodSMS, "update",
			"+15551230000", "update:abc", []byte(`{"body":"hi"}`), time.Time{},
		)
		job.Status = domain.StatusFailed
		jobs.On("GetByID", mock.Anything, job.ID).Return(job, nil).Once()
		logs.On("ListByJob", mock.Anything, job.ID).Return([]*domain.DeliveryLog{
			domain.NewDeliveryLog(job.ID, domain.AttemptFailed,
				sql.NullString{String: "timeout", Valid: true},
				sql.NullString{String: "sms_timeout", Valid: true}, 900),
		}, nil).Once()

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID.String(), nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"can_retry":true`)
		assert.Contains(t, rec.Body.String(), `"sms_timeout"`)
	})

	t.Run("missing job is 404", func(t *testing.T) {
		missingID := uuid.New()
		jobs.On("GetByID", mock.Anything, missingID).Return(nil, domain.ErrNotFound).Once()

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+missingID.String(), nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestJobHandler_CancelJob(t *testing.T) {
	router, jobs, _ := setupJobHandlerTest(t)

	t.Run("pending job cancels", func(t *testing.T) {
		jobID := uuid.New()
		jobs.On("Cancel", mock.Anything, jobID).Return(nil).Once()

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/"+jobID.String()+"/cancel", nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("non-pending job conflicts", func(t *testing.T) {
		jobID := uuid.New()
		jobs.On("Cancel", mock.Anything, jobID).Return(domain.ErrInvalidTransition).Once()

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/"+jobID.String()+"/cancel", nil))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestJobHandler_RetryJob(t *testing.T) {
	router, jobs, _ := setupJobHandlerTest(t)
	jobID := uuid.New()

	job := domain.NewNotificationJob(
		uuid.New(), uuid.NullUUID{}, domain.MethodEmail, "update",
		"nana@example.com", "update:abc", []byte(`{"body":"hi"}`), time.Time{},
	)
	job.ID = jobID

	jobs.On("ResetForRetry", mock.Anything, jobID).Return(nil).Once()
	jobs.On("GetByID", mock.Anything, jobID).Return(job, nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/"+jobID.String()+"/retry", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"retry_count":0`)
	jobs.AssertExpectations(t)
}
