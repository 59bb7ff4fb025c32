package ai

import (
	"context"

	"github.com/famline/notifications/internal/digest_service/domain"
)

// Audience selects which narrative pass is being generated.
type Audience string

const (
	// AudienceRecipient is the warm, short form sent to the family
	// member.
	AudienceRecipient Audience = "recipient"
	// AudienceParent is the detailed, titled archival form kept for the
	// originating account.
	AudienceParent Audience = "parent"
)

// NarrativeContext carries everything the model needs for one pass.
type NarrativeContext struct {
	Audience       Audience
	RecipientName  string
	Relationship   string
	TonePreference string
	Items          []*domain.ContentItem
}

// NarrativeProvider generates digest narratives. Implementations must
// respect ctx cancellation; the compiler wraps every call in a timeout
// and falls back to templated text on any error.
type NarrativeProvider interface {
	GenerateNarrative(ctx context.Context, nc NarrativeContext) (*domain.Narrative, error)
}
