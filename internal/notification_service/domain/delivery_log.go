package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus is the outcome of a single delivery attempt.
type AttemptStatus string

const (
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
)

// DeliveryLog is one append-only row per delivery attempt. Rows are
// never mutated after insert; they feed audit views and success-rate
// metrics.
type DeliveryLog struct {
	ID           uuid.UUID      `json:"id"`
	JobID        uuid.UUID      `json:"job_id"`
	Status       AttemptStatus  `json:"status"`
	ErrorMessage sql.NullString `json:"error_message,omitempty"`
	ErrorCode    sql.NullString `json:"error_code,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewDeliveryLog creates a log row for one attempt.
func NewDeliveryLog(jobID uuid.UUID, status AttemptStatus, errorMessage, errorCode sql.NullString, durationMs int64) *DeliveryLog {
	return &DeliveryLog{
		ID:           uuid.New(),
		JobID:        jobID,
		Status:       status,
		ErrorMessage: errorMessage,
		ErrorCode:    errorCode,
		DurationMs:   durationMs,
		CreatedAt:    time.Now().UTC(),
	}
}
