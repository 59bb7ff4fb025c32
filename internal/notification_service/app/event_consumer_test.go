package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/famline/notifications/internal/notification_service/domain"
)

func newTestConsumer(repo *MockJobRepository) *EventConsumer {
	return &EventConsumer{
		jobs:     repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestEventConsumer_ValidEventCreatesJob(t *testing.T) {
	repo := new(MockJobRepository)
	c := newTestConsumer(repo)
	recipientID := uuid.New()

	repo.On("Create", mock.Anything, mock.MatchedBy(func(job *domain.NotificationJob) bool {
		return job.RecipientID == recipientID &&
			job.DeliveryMethod == domain.MethodSMS &&
			job.Status == domain.StatusPending &&
			job.MaxRetries == 3 &&
			job.ContentRef == "update:abc"
	})).Return(nil).Once()

	c.handleMessage(context.Background(), []byte(`{
		"recipientId": "`+recipientID.String()+`",
		"deliveryMethod": "sms",
		"notificationType": "update",
		"recipientAddress": "+15551230000",
		"contentRef": "update:abc",
		"body": "Maria shared a new photo"
	}`))

	repo.AssertExpectations(t)
}

func TestEventConsumer_MalformedJSONIsDropped(t *testing.T) {
	repo := new(MockJobRepository)
	c := newTestConsumer(repo)

	c.handleMessage(context.Background(), []byte(`{not json`))

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestEventConsumer_InvalidEventIsDropped(t *testing.T) {
	repo := new(MockJobRepository)
	c := newTestConsumer(repo)

	tests := []struct {
		name    string
		payload string
	}{
		{"unknown channel", `{
			"recipientId": "` + uuid.NewString() + `",
			"deliveryMethod": "fax",
			"notificationType": "update",
			"recipientAddress": "a@b.c",
			"contentRef": "update:abc",
			"body": "hi"
		}`},
		{"missing body", `{
			"recipientId": "` + uuid.NewString() + `",
			"deliveryMethod": "email",
			"notificationType": "update",
			"recipientAddress": "a@b.c",
			"contentRef": "update:abc"
		}`},
		{"missing recipient address", `{
			"recipientId": "` + uuid.NewString() + `",
			"deliveryMethod": "email",
			"notificationType": "update",
			"contentRef": "update:abc",
			"body": "hi"
		}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.handleMessage(context.Background(), []byte(tt.payload))
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}
