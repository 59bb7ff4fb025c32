package domain

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a notification job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing" // Job claimed by a delivery worker
	StatusSent       JobStatus = "sent"       // Accepted by the provider
	StatusFailed     JobStatus = "failed"     // Terminal unless manually retried
	StatusCancelled  JobStatus = "cancelled"  // Manual cancel, reachable only from pending
)

// DeliveryMethod identifies the outbound channel for a job.
type DeliveryMethod string

const (
	MethodEmail    DeliveryMethod = "email"
	MethodSMS      DeliveryMethod = "sms"
	MethodWhatsApp DeliveryMethod = "whatsapp"
	MethodPush     DeliveryMethod = "push"
)

// maxRetriesByMethod fixes the retry budget per channel.
var maxRetriesByMethod = map[DeliveryMethod]int{
	MethodEmail:    3,
	MethodSMS:      3,
	MethodWhatsApp: 3,
	MethodPush:     2,
}

// MaxRetriesFor returns the retry budget for a channel.
func MaxRetriesFor(method DeliveryMethod) int {
	if n, ok := maxRetriesByMethod[method]; ok {
		return n
	}
	return 3
}

// ValidMethod reports whether the delivery method is a known channel.
func ValidMethod(method DeliveryMethod) bool {
	_, ok := maxRetriesByMethod[method]
	return ok
}

// NotificationJob is one unit of outbound notification work targeting
// one recipient on one channel.
type NotificationJob struct {
	ID                uuid.UUID       `json:"id"`
	RecipientID       uuid.UUID       `json:"recipient_id"`
	GroupID           uuid.NullUUID   `json:"group_id,omitempty"`
	DeliveryMethod    DeliveryMethod  `json:"delivery_method"`
	NotificationType  string          `json:"notification_type"` // e.g. "update", "digest", "invitation"
	RecipientAddress  string          `json:"recipient_address"`
	ContentRef        string          `json:"content_ref"` // e.g. "update:<id>", "digest:<id>"
	Payload           json.RawMessage `json:"payload"`     // Rendered message content for the channel sender
	Status            JobStatus       `json:"status"`
	ScheduledFor      time.Time       `json:"scheduled_for"`
	ProcessedAt       sql.NullTime    `json:"processed_at,omitempty"`
	RetryCount        int             `json:"retry_count"`
	MaxRetries        int             `json:"max_retries"`
	FailureReason     sql.NullString  `json:"failure_reason,omitempty"`
	ProviderMessageID sql.NullString  `json:"provider_message_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewNotificationJob creates a pending job with the channel's fixed
// retry budget.
func NewNotificationJob(
	recipientID uuid.UUID,
	groupID uuid.NullUUID,
	method DeliveryMethod,
	notificationType string,
	recipientAddress string,
	contentRef string,
	payload json.RawMessage,
	scheduledFor time.Time,
) *NotificationJob {
	now := time.Now().UTC()
	if scheduledFor.IsZero() {
		scheduledFor = now
	}
	return &NotificationJob{
		ID:               uuid.New(),
		RecipientID:      recipientID,
		GroupID:          groupID,
		DeliveryMethod:   method,
		NotificationType: notificationType,
		RecipientAddress: recipientAddress,
		ContentRef:       contentRef,
		Payload:          payload,
		Status:           StatusPending,
		ScheduledFor:     scheduledFor.UTC(),
		RetryCount:       0,
		MaxRetries:       MaxRetriesFor(method),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// CanRetry reports whether an operator may manually retry the job.
// Manual retry resets the retry counter, so any failed job qualifies.
func (j *NotificationJob) CanRetry() bool {
	return j.Status == StatusFailed
}

// RetryBudgetLeft reports whether an automatic retry is still allowed
// after the current attempt's increment.
func (j *NotificationJob) RetryBudgetLeft() bool {
	return j.RetryCount < j.MaxRetries
}

// IsOverdue reports whether a pending job has passed its scheduled time.
func (j *NotificationJob) IsOverdue(now time.Time) bool {
	return j.Status == StatusPending && j.ScheduledFor.Before(now)
}

// MessagePayload is the rendered content carried in Payload.
type MessagePayload struct {
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// ToJSON marshals the payload to json.RawMessage.
func (p *MessagePayload) ToJSON() (json.RawMessage, error) {
	return json.Marshal(p)
}

// FromJSON unmarshals json.RawMessage into the payload.
func (p *MessagePayload) FromJSON(data json.RawMessage) error {
	return json.Unmarshal(data, p)
}
