package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/famline/notifications/internal/digest_service/domain"
)

// MockProvider is an in-process narrative provider for development and
// tests. With Fail set it always errors, exercising the fallback path.
type MockProvider struct {
	logger *slog.Logger
	Fail   bool
}

func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{logger: logger.With("provider", "ai_mock")}
}

func (p *MockProvider) GenerateNarrative(ctx context.Context, nc NarrativeContext) (*domain.Narrative, error) {
	if p.Fail {
		return nil, errors.New("mock narrative provider configured to fail")
	}

	n := &domain.Narrative{
		Intro:     fmt.Sprintf("Hi %s, here is what the family shared.", nc.RecipientName),
		Narrative: fmt.Sprintf("The family posted %d new updates for you to enjoy.", len(nc.Items)),
		Closing:   "Sending love until next time.",
	}
	if nc.Audience == AudienceParent {
		n.Title = fmt.Sprintf("Family digest, %d updates", len(nc.Items))
	}
	for _, item := range nc.Items {
		if item.MediaURL.Valid {
			n.MediaReferences = append(n.MediaReferences, item.MediaURL.String)
		}
	}
	p.logger.DebugContext(ctx, "Mock narrative generated", "audience", nc.Audience, "items", len(nc.Items))
	return n, nil
}
