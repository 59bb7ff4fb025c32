package http

import (
	"time"

	"github.com/famline/notifications/internal/notification_service/breaker"
	"github.com/famline/notifications/internal/notification_service/domain"
)

// --- Request DTOs ---

// EnqueueJobRequestDTO creates one notification job.
type EnqueueJobRequestDTO struct {
	RecipientID      string     `json:"recipient_id" validate:"required,uuid"`
	GroupID          string     `json:"group_id,omitempty" validate:"omitempty,uuid"`
	DeliveryMethod   string     `json:"delivery_method" validate:"required,oneof=email sms whatsapp push"`
	NotificationType string     `json:"notification_type" validate:"required,max=50"`
	RecipientAddress string     `json:"recipient_address" validate:"required,max=320"`
	ContentRef       string     `json:"content_ref" validate:"required,max=100"`
	Subject          string     `json:"subject,omitempty" validate:"max=200"`
	Body             string     `json:"body" validate:"required"`
	ScheduledFor     *time.Time `json:"scheduled_for,omitempty"`
}

// --- Response DTOs ---

// JobDTO represents a notification job in API responses, with the
// computed operator-facing fields.
type JobDTO struct {
	ID                   string     `json:"id"`
	RecipientID          string     `json:"recipient_id"`
	GroupID              string     `json:"group_id,omitempty"`
	DeliveryMethod       string     `json:"delivery_method"`
	NotificationType     string     `json:"notification_type"`
	RecipientAddress     string     `json:"recipient_address"`
	ContentRef           string     `json:"content_ref"`
	Status               string     `json:"status"`
	ScheduledFor         time.Time  `json:"scheduled_for"`
	ProcessedAt          *time.Time `json:"processed_at,omitempty"`
	RetryCount           int        `json:"retry_count"`
	MaxRetries           int        `json:"max_retries"`
	FailureReason        string     `json:"failure_reason,omitempty"`
	ProviderMessageID    string     `json:"provider_message_id,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	ProcessingTimeMs     *int64     `json:"processing_time_ms,omitempty"`
	TimeUntilScheduledMs *int64     `json:"time_until_scheduled_ms,omitempty"`
	IsOverdue            bool       `json:"is_overdue"`
	CanRetry             bool       `json:"can_retry"`
}

// DeliveryLogDTO is one delivery attempt record.
type DeliveryLogDTO struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// JobDetailDTO is a job plus its attempt history.
type JobDetailDTO struct {
	JobDTO
	DeliveryLogs []DeliveryLogDTO `json:"delivery_logs"`
}

// ListJobsResponseDTO is the paginated job listing.
type ListJobsResponseDTO struct {
	Jobs       []JobDTO `json:"jobs"`
	TotalCount int      `json:"total_count"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
}

// QueueHealthDTO is the aggregate metrics response.
type QueueHealthDTO struct {
	Window          string             `json:"window"`
	StatusCounts    map[string]int     `json:"status_counts"`
	SuccessRate     float64            `json:"success_rate"`
	AvgProcessingMs float64            `json:"avg_processing_ms"`
	OverdueCount    int                `json:"overdue_count"`
	Breakers        []breaker.Snapshot `json:"breakers"`
	GeneratedAt     time.Time          `json:"generated_at"`
}

func toJobDTO(job *domain.NotificationJob, now time.Time) JobDTO {
	dto := JobDTO{
		ID:               job.ID.String(),
		RecipientID:      job.RecipientID.String(),
		DeliveryMethod:   string(job.DeliveryMethod),
		NotificationType: job.NotificationType,
		RecipientAddress: job.RecipientAddress,
		ContentRef:       job.ContentRef,
		Status:           string(job.Status),
		ScheduledFor:     job.ScheduledFor,
		RetryCount:       job.RetryCount,
		MaxRetries:       job.MaxRetries,
		CreatedAt:        job.CreatedAt,
		UpdatedAt:        job.UpdatedAt,
		IsOverdue:        job.IsOverdue(now),
		CanRetry:         job.CanRetry(),
	}
	if job.GroupID.Valid {
		dto.GroupID = job.GroupID.UUID.String()
	}
	if job.FailureReason.Valid {
		dto.FailureReason = job.FailureReason.String
	}
	if job.ProviderMessageID.Valid {
		dto.ProviderMessageID = job.ProviderMessageID.String
	}
	if job.ProcessedAt.Valid {
		ts := job.ProcessedAt.Time
		dto.ProcessedAt = &ts
		elapsed := ts.Sub(job.CreatedAt).Milliseconds()
		dto.ProcessingTimeMs = &elapsed
	}
	if job.Status == domain.StatusPending {
		until := job.ScheduledFor.Sub(now).Milliseconds()
		dto.TimeUntilScheduledMs = &until
	}
	return dto
}

func toDeliveryLogDTOs(logs []*domain.DeliveryLog) []DeliveryLogDTO {
	dtos := make([]DeliveryLogDTO, 0, len(logs))
	for _, l := range logs {
		dto := DeliveryLogDTO{
			ID:         l.ID.String(),
			Status:     string(l.Status),
			DurationMs: l.DurationMs,
			CreatedAt:  l.CreatedAt,
		}
		if l.ErrorMessage.Valid {
			dto.ErrorMessage = l.ErrorMessage.String
		}
		if l.ErrorCode.Valid {
			dto.ErrorCode = l.ErrorCode.String
		}
		dtos = append(dtos, dto)
	}
	return dtos
}
