package http

import (
	"context"
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

	"github.com/famline/notifications/internal/digest_service/domain"
)

type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) Create(ctx context.Context, schedule *domain.DigestSchedule) error {
	args := m.Called(ctx, schedule)
	return args.Error(0)
}

func (m *MockScheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DigestSchedule, error) {
	args := m.Called(ctx, id)
	if s, ok := args.Get(0).(*domain.DigestSchedule); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockScheduleRepository) ListByRecipient(ctx context.Context, recipientID uuid.UUID) ([]*domain.DigestSchedule, error) {
	args := m.Called(ctx, recipientID)
	if s, ok := args.Get(0).([]*domain.DigestSchedule); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockScheduleRepository) Update(ctx context.Context, schedule *domain.DigestSchedule) error {
	args := m.Called(ctx, schedule)
	return args.Error(0)
}

func (m *MockScheduleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockScheduleRepository) AcquireDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.DigestSchedule, error) {
	args := m.Called(ctx, now, lease, limit)
	if s, ok := args.Get(0).([]*domain.DigestSchedule); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockScheduleRepository) CompleteRun(ctx context.Context, id uuid.UUID, sentAt time.Time, nextScheduledAt time.Time) error {
	args := m.Called(ctx, id, sentAt, nextScheduledAt)
	return args.Error(0)
}

type MockDigestRepository struct {
	mock.Mock
}

func (m *MockDigestRepository) Create(ctx context.Context, digest *domain.Digest) error {
	args := m.Called(ctx, digest)
	return args.Error(0)
}

func (m *MockDigestRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Digest, error) {
	args := m.Called(ctx, id)
	if d, ok := args.Get(0).(*domain.Digest); ok {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDigestRepository) ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]*domain.Digest, error) {
	args := m.Called(ctx, recipientID, limit)
	if d, ok := args.Get(0).([]*domain.Digest); ok {
		return d, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDigestRepository) UpdateNarrative(ctx context.Context, id uuid.UUID, narrative domain.Narrative) error {
	args := m.Called(ctx, id, narrative)
	return args.Error(0)
}

func (m *MockDigestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.DigestStatus, approvedAt time.Time) error {
	args := m.Called(ctx, id, from, to, approvedAt)
	return args.Error(0)
}

func (m *MockDigestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func setupDigestHandlerTest(t *testing.T) (*chi.Mux, *MockScheduleRepository, *MockDigestRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	schedules := new(MockScheduleRepository)
	digests := new(MockDigestRepository)
	h := NewDigestHandler(schedules, digests, nil, logger, validator.New(validator.WithRequiredStructEnabled()))

	r := chi.NewRouter()
	r.Route("/digest-schedules", h.RegisterScheduleRoutes)
	r.Route("/digests", h.RegisterDigestRoutes)
	return r, schedules, digests
}

func TestDigestHandler_ListSchedules(t *testing.T) {
	router, schedules, _ := setupDigestHandlerTest(t)
	recipientID := uuid.New()

	t.Run("returns recipient schedules", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
		schedule := &domain.DigestSchedule{
			ID:                uuid.New(),
			RecipientID:       recipientID,
			GroupID:           uuid.New(),
			Frequency:         domain.FrequencyWeekly,
			DeliveryTime:      domain.DeliveryTime{Hour: 8},
			Timezone:          "UTC",
			MaxItemsPerDigest: 20,
			IsActive:          true,
			NextScheduledAt:   now.AddDate(0, 0, 1),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		schedules.On("ListByRecipient", mock.Anything, recipientID).
			Return([]*domain.DigestSchedule{schedule}, nil).Once()

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/digest-schedules?recipient_id="+recipientID.String(), nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), schedule.ID.String())
		assert.Contains(t, rec.Body.String(), `"frequency":"weekly"`)
		schedules.AssertExpectations(t)
	})

	t.Run("missing recipient_id is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/digest-schedules", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDigestHandler_ListDigests(t *testing.T) {
	router, _, digests := setupDigestHandlerTest(t)
	recipientID := uuid.New()

	t.Run("returns recent digests with default limit", func(t *testing.T) {
		digest := &domain.Digest{
			ID:          uuid.New(),
			RecipientID: recipientID,
			Status:      domain.DigestPendingReview,
			Narrative:   domain.Narrative{Narrative: "A fine week."},
		}
		digests.On("ListByRecipient", mock.Anything, recipientID, 20).
			Return([]*domain.Digest{digest}, nil).Once()

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/digests?recipient_id="+recipientID.String(), nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), digest.ID.String())
		assert.Contains(t, rec.Body.String(), `"status":"pending_review"`)
		digests.AssertExpectations(t)
	})

	t.Run("invalid recipient_id is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/digests?recipient_id=not-a-uuid", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
