package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DigestStatus is the lifecycle state of a compiled digest.
type DigestStatus string

const (
	DigestCompiling     DigestStatus = "compiling"
	DigestPendingReview DigestStatus = "pending_review"
	DigestApproved      DigestStatus = "approved"
	DigestSending       DigestStatus = "sending"
	DigestSent          DigestStatus = "sent"
	DigestFailed        DigestStatus = "failed"
)

// Narrative is the structured digest text. The recipient-facing form
// has no title; the parent-facing archival form requires one.
type Narrative struct {
	Title           string   `json:"title,omitempty"`
	Intro           string   `json:"intro"`
	Narrative       string   `json:"narrative"`
	Closing         string   `json:"closing"`
	MediaReferences []string `json:"media_references,omitempty"`
}

// Valid reports whether the narrative meets the acceptance contract:
// a non-empty narrative body, and a title when one is required.
func (n Narrative) Valid(requireTitle bool) bool {
	if n.Narrative == "" {
		return false
	}
	if requireTitle && n.Title == "" {
		return false
	}
	return true
}

// Digest is one compiled batch of content items for one recipient.
// A group compile produces one Digest per recipient, so narrative
// customization and approval stay independent per recipient.
type Digest struct {
	ID              uuid.UUID     `json:"id"`
	ScheduleID      uuid.NullUUID `json:"schedule_id,omitempty"`
	RecipientID     uuid.UUID     `json:"recipient_id"`
	GroupID         uuid.NullUUID `json:"group_id,omitempty"`
	Status          DigestStatus  `json:"status"`
	ItemRefs        []uuid.UUID   `json:"item_refs"`
	Narrative       Narrative     `json:"narrative"`
	ParentNarrative Narrative     `json:"parent_narrative"`
	FallbackUsed    bool          `json:"fallback_used"`
	ScheduledFor    sql.NullTime  `json:"scheduled_for,omitempty"`
	ApprovedAt      sql.NullTime  `json:"approved_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewDigest creates a digest in the compiling state.
func NewDigest(scheduleID uuid.NullUUID, recipientID uuid.UUID, groupID uuid.NullUUID, itemRefs []uuid.UUID) *Digest {
	now := time.Now().UTC()
	return &Digest{
		ID:          uuid.New(),
		ScheduleID:  scheduleID,
		RecipientID: recipientID,
		GroupID:     groupID,
		Status:      DigestCompiling,
		ItemRefs:    itemRefs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Editable reports whether the narrative may still be customized.
func (d *Digest) Editable() bool {
	return d.Status == DigestPendingReview
}

// Approvable reports whether the digest may be approved for sending.
func (d *Digest) Approvable() bool {
	return d.Status == DigestPendingReview
}

// ContentItem is a read-only view of one family update considered for
// inclusion in a digest.
type ContentItem struct {
	ID          uuid.UUID
	GroupID     uuid.UUID
	ContentType string
	Caption     string
	AuthorName  string
	MediaURL    sql.NullString
	CreatedAt   time.Time
}

// Recipient is a read-only view of a group member used for digest
// personalization and fan-out.
type Recipient struct {
	ID             uuid.UUID
	GroupID        uuid.UUID
	DisplayName    string
	Address        string
	DeliveryMethod string
	Relationship   string
	TonePreference string
}
