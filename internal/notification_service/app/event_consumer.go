package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/famline/notifications/internal/platform/messagebroker"
	"github.com/famline/notifications/internal/notification_service/domain"
	"github.com/famline/notifications/internal/notification_service/repository"
)

const (
	// UpdateCreatedSubject is published by the updates service when a
	// family member shares a new update.
	UpdateCreatedSubject = "events.updates.created"

	consumerQueueGroup = "notification-delivery"
)

// UpdateNotificationEvent is the wire payload on UpdateCreatedSubject.
// The publisher has already resolved fan-out, so each event targets one
// recipient on one channel.
type UpdateNotificationEvent struct {
	RecipientID      uuid.UUID  `json:"recipientId" validate:"required"`
	GroupID          *uuid.UUID `json:"groupId,omitempty"`
	DeliveryMethod   string     `json:"deliveryMethod" validate:"required,oneof=email sms whatsapp push"`
	NotificationType string     `json:"notificationType" validate:"required"`
	RecipientAddress string     `json:"recipientAddress" validate:"required"`
	ContentRef       string     `json:"contentRef" validate:"required"`
	Subject          string     `json:"subject,omitempty"`
	Body             string     `json:"body" validate:"required"`
	ScheduledFor     *time.Time `json:"scheduledFor,omitempty"`
}

// EventConsumer turns application events into pending notification jobs.
type EventConsumer struct {
	jobs     repository.JobRepository
	broker   *messagebroker.NATSClient
	validate *validator.Validate
	logger   *slog.Logger
}

func NewEventConsumer(jobs repository.JobRepository, broker *messagebroker.NATSClient, logger *slog.Logger) *EventConsumer {
	return &EventConsumer{
		jobs:     jobs,
		broker:   broker,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "event_consumer"),
	}
}

// Start subscribes on the update-created subject. Consumers in the same
// queue group share the stream, so scaling out worker processes does
// not duplicate jobs. The subscription is drained when ctx is done.
func (c *EventConsumer) Start(ctx context.Context) error {
	sub, err := c.broker.Subscribe(ctx, UpdateCreatedSubject, consumerQueueGroup, func(msg *nats.Msg) {
		c.handleMessage(ctx, msg.Data)
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			c.logger.Warn("Failed to drain event subscription", "error", err)
		}
	}()
	return nil
}

// handleMessage decodes, validates, and persists one event. Malformed
// events are logged and dropped; there is no point redelivering a
// payload that can never validate.
func (c *EventConsumer) handleMessage(ctx context.Context, data []byte) {
	var event UpdateNotificationEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.logger.ErrorContext(ctx, "Dropping undecodable event", "subject", UpdateCreatedSubject, "error", err)
		return
	}
	if err := c.validate.Struct(event); err != nil {
		c.logger.ErrorContext(ctx, "Dropping invalid event", "subject", UpdateCreatedSubject, "error", err)
		return
	}

	payload, err := (&domain.MessagePayload{Subject: event.Subject, Body: event.Body}).ToJSON()
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to encode job payload", "error", err)
		return
	}

	groupID := uuid.NullUUID{}
	if event.GroupID != nil {
		groupID = uuid.NullUUID{UUID: *event.GroupID, Valid: true}
	}
	scheduledFor := time.Time{}
	if event.ScheduledFor != nil {
		scheduledFor = *event.ScheduledFor
	}

	job := domain.NewNotificationJob(
		event.RecipientID,
		groupID,
		domain.DeliveryMethod(event.DeliveryMethod),
		event.NotificationType,
		event.RecipientAddress,
		event.ContentRef,
		payload,
		scheduledFor,
	)

	if err := c.jobs.Create(ctx, job); err != nil {
		c.logger.ErrorContext(ctx, "Failed to create job from event", "error", err, "recipient_id", event.RecipientID)
		return
	}
	c.logger.InfoContext(ctx, "Job created from event",
		"job_id", job.ID, "channel", job.DeliveryMethod, "notification_type", job.NotificationType)
}
