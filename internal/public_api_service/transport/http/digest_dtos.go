package http

import (
	"time"

	"github.com/famline/notifications/internal/digest_service/domain"
)

// --- Request DTOs ---

// CreateDigestScheduleRequestDTO creates a recurring digest
// subscription.
type CreateDigestScheduleRequestDTO struct {
	RecipientID         string   `json:"recipient_id" validate:"required,uuid"`
	GroupID             string   `json:"group_id" validate:"required,uuid"`
	Frequency           string   `json:"frequency" validate:"required,oneof=daily weekly monthly"`
	DeliveryTime        string   `json:"delivery_time" validate:"required"`
	DeliveryDay         *int     `json:"delivery_day,omitempty" validate:"omitempty,min=1,max=31"`
	Timezone            string   `json:"timezone" validate:"required,max=64"`
	MaxItemsPerDigest   int      `json:"max_items_per_digest,omitempty" validate:"omitempty,min=1,max=100"`
	IncludeContentTypes []string `json:"include_content_types,omitempty"`
	AutoApprove         bool     `json:"auto_approve,omitempty"`
}

// UpdateDigestScheduleRequestDTO edits an existing schedule. Pointer
// fields distinguish "not provided" from zero values.
type UpdateDigestScheduleRequestDTO struct {
	Frequency           *string   `json:"frequency,omitempty" validate:"omitempty,oneof=daily weekly monthly"`
	DeliveryTime        *string   `json:"delivery_time,omitempty"`
	DeliveryDay         *int      `json:"delivery_day,omitempty" validate:"omitempty,min=1,max=31"`
	Timezone            *string   `json:"timezone,omitempty" validate:"omitempty,max=64"`
	MaxItemsPerDigest   *int      `json:"max_items_per_digest,omitempty" validate:"omitempty,min=1,max=100"`
	IncludeContentTypes *[]string `json:"include_content_types,omitempty"`
	AutoApprove         *bool     `json:"auto_approve,omitempty"`
	IsActive            *bool     `json:"is_active,omitempty"`
}

// CustomizeDigestRequestDTO replaces the recipient-facing narrative of
// a digest awaiting review.
type CustomizeDigestRequestDTO struct {
	Intro     string   `json:"intro,omitempty" validate:"max=500"`
	Narrative string   `json:"narrative" validate:"required,max=5000"`
	Closing   string   `json:"closing,omitempty" validate:"max=500"`
	MediaRefs []string `json:"media_references,omitempty"`
}

// --- Response DTOs ---

// ListSchedulesResponseDTO wraps a recipient's digest schedules.
type ListSchedulesResponseDTO struct {
	Schedules []DigestScheduleDTO `json:"schedules"`
}

// ListDigestsResponseDTO wraps a recipient's recent digests.
type ListDigestsResponseDTO struct {
	Digests []DigestDTO `json:"digests"`
}

// DigestScheduleDTO represents a schedule in API responses.
type DigestScheduleDTO struct {
	ID                  string     `json:"id"`
	RecipientID         string     `json:"recipient_id"`
	GroupID             string     `json:"group_id"`
	Frequency           string     `json:"frequency"`
	DeliveryTime        string     `json:"delivery_time"`
	DeliveryDay         *int       `json:"delivery_day,omitempty"`
	Timezone            string     `json:"timezone"`
	MaxItemsPerDigest   int        `json:"max_items_per_digest"`
	IncludeContentTypes []string   `json:"include_content_types"`
	AutoApprove         bool       `json:"auto_approve"`
	IsActive            bool       `json:"is_active"`
	LastSentAt          *time.Time `json:"last_sent_at,omitempty"`
	NextScheduledAt     time.Time  `json:"next_scheduled_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// NarrativeDTO mirrors domain.Narrative on the wire.
type NarrativeDTO struct {
	Title           string   `json:"title,omitempty"`
	Intro           string   `json:"intro"`
	Narrative       string   `json:"narrative"`
	Closing         string   `json:"closing"`
	MediaReferences []string `json:"media_references,omitempty"`
}

// DigestDTO represents a digest in API responses.
type DigestDTO struct {
	ID              string       `json:"id"`
	ScheduleID      string       `json:"schedule_id,omitempty"`
	RecipientID     string       `json:"recipient_id"`
	GroupID         string       `json:"group_id,omitempty"`
	Status          string       `json:"status"`
	ItemRefs        []string     `json:"item_refs"`
	Narrative       NarrativeDTO `json:"narrative"`
	ParentNarrative NarrativeDTO `json:"parent_narrative"`
	FallbackUsed    bool         `json:"fallback_used"`
	ApprovedAt      *time.Time   `json:"approved_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func toScheduleDTO(s *domain.DigestSchedule) DigestScheduleDTO {
	dto := DigestScheduleDTO{
		ID:                  s.ID.String(),
		RecipientID:         s.RecipientID.String(),
		GroupID:             s.GroupID.String(),
		Frequency:           string(s.Frequency),
		DeliveryTime:        s.DeliveryTime.String(),
		Timezone:            s.Timezone,
		MaxItemsPerDigest:   s.MaxItemsPerDigest,
		IncludeContentTypes: s.IncludeContentTypes,
		AutoApprove:         s.AutoApprove,
		IsActive:            s.IsActive,
		NextScheduledAt:     s.NextScheduledAt,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
	if dto.IncludeContentTypes == nil {
		dto.IncludeContentTypes = []string{}
	}
	if s.DeliveryDay.Valid {
		day := int(s.DeliveryDay.Int32)
		dto.DeliveryDay = &day
	}
	if s.LastSentAt.Valid {
		ts := s.LastSentAt.Time
		dto.LastSentAt = &ts
	}
	return dto
}

func toNarrativeDTO(n domain.Narrative) NarrativeDTO {
	return NarrativeDTO{
		Title:           n.Title,
		Intro:           n.Intro,
		Narrative:       n.Narrative,
		Closing:         n.Closing,
		MediaReferences: n.MediaReferences,
	}
}

func toDigestDTO(d *domain.Digest) DigestDTO {
	dto := DigestDTO{
		ID:              d.ID.String(),
		RecipientID:     d.RecipientID.String(),
		Status:          string(d.Status),
		ItemRefs:        make([]string, 0, len(d.ItemRefs)),
		Narrative:       toNarrativeDTO(d.Narrative),
		ParentNarrative: toNarrativeDTO(d.ParentNarrative),
		FallbackUsed:    d.FallbackUsed,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	for _, ref := range d.ItemRefs {
		dto.ItemRefs = append(dto.ItemRefs, ref.String())
	}
	if d.ScheduleID.Valid {
		dto.ScheduleID = d.ScheduleID.UUID.String()
	}
	if d.GroupID.Valid {
		dto.GroupID = d.GroupID.UUID.String()
	}
	if d.ApprovedAt.Valid {
		ts := d.ApprovedAt.Time
		dto.ApprovedAt = &ts
	}
	return dto
}
