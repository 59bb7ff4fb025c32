package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Frequency of a recurring digest subscription.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ValidFrequency reports whether f is a known frequency.
func ValidFrequency(f Frequency) bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// DeliveryTime is a wall-clock time of day in the schedule's timezone.
type DeliveryTime struct {
	Hour   int
	Minute int
	Second int
}

// ParseDeliveryTime parses "HH:MM:SS" (seconds optional).
func ParseDeliveryTime(s string) (DeliveryTime, error) {
	var dt DeliveryTime
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		t, err = time.Parse("15:04", s)
		if err != nil {
			return dt, err
		}
	}
	dt.Hour, dt.Minute, dt.Second = t.Hour(), t.Minute(), t.Second()
	return dt, nil
}

func (dt DeliveryTime) String() string {
	return time.Date(0, 1, 1, dt.Hour, dt.Minute, dt.Second, 0, time.UTC).Format("15:04:05")
}

// DigestSchedule is a recipient's recurring digest subscription within
// one family group.
type DigestSchedule struct {
	ID                  uuid.UUID    `json:"id"`
	RecipientID         uuid.UUID    `json:"recipient_id"`
	GroupID             uuid.UUID    `json:"group_id"`
	Frequency           Frequency    `json:"frequency"`
	DeliveryTime        DeliveryTime `json:"delivery_time"`
	DeliveryDay         sql.NullInt32 `json:"delivery_day,omitempty"` // 1-7 weekly (ISO), 1-31 monthly
	Timezone            string       `json:"timezone"`
	MaxItemsPerDigest   int          `json:"max_items_per_digest"`
	IncludeContentTypes []string     `json:"include_content_types"`
	AutoApprove         bool         `json:"auto_approve"`
	IsActive            bool         `json:"is_active"`
	LastSentAt          sql.NullTime `json:"last_sent_at,omitempty"`
	NextScheduledAt     time.Time    `json:"next_scheduled_at"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// Location resolves the schedule's timezone, falling back to UTC if the
// stored name no longer loads.
func (s *DigestSchedule) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WantsContentType reports whether the schedule includes the content
// type. An empty filter includes everything.
func (s *DigestSchedule) WantsContentType(contentType string) bool {
	if len(s.IncludeContentTypes) == 0 {
		return true
	}
	for _, t := range s.IncludeContentTypes {
		if t == contentType {
			return true
		}
	}
	return false
}
