package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/famline/notifications/internal/digest_service/adapters/ai"
	"github.com/famline/notifications/internal/digest_service/domain"
	"github.com/famline/notifications/internal/digest_service/repository"
	notifdomain "github.com/famline/notifications/internal/notification_service/domain"
	notifrepo "github.com/famline/notifications/internal/notification_service/repository"
	"github.com/famline/notifications/internal/platform/ratelimit"
)

// AIRateLimitPolicy is the named rate limit config applied per
// recipient before each narrative call.
const AIRateLimitPolicy = "ai_narrative"

// CompilerConfig tunes the digest compiler.
type CompilerConfig struct {
	AITimeout time.Duration `mapstructure:"AI_TIMEOUT"`
}

// Compiler turns a due schedule into a persisted digest: gather items,
// generate narratives, persist, and fan out jobs when auto-approved.
type Compiler struct {
	digests   repository.DigestRepository
	content   repository.ContentItemReader
	members   repository.RecipientDirectory
	jobs      notifrepo.JobRepository
	narrative ai.NarrativeProvider
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
	config    CompilerConfig
	nowFn     func() time.Time
}

func NewCompiler(
	digests repository.DigestRepository,
	content repository.ContentItemReader,
	members repository.RecipientDirectory,
	jobs notifrepo.JobRepository,
	narrative ai.NarrativeProvider,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
	cfg CompilerConfig,
) *Compiler {
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = 30 * time.Second
	}
	return &Compiler{
		digests:   digests,
		content:   content,
		members:   members,
		jobs:      jobs,
		narrative: narrative,
		limiter:   limiter,
		logger:    logger.With("component", "digest_compiler"),
		config:    cfg,
		nowFn:     time.Now,
	}
}

// CompileForSchedule runs a full compile: persists the digest and, when
// the schedule auto-approves, fans out delivery jobs. Zero eligible
// items yield domain.ErrNoEligibleItems and nothing is persisted.
func (c *Compiler) CompileForSchedule(ctx context.Context, schedule *domain.DigestSchedule) (*domain.Digest, error) {
	digest, recipient, err := c.compile(ctx, schedule)
	if err != nil {
		return nil, err
	}

	now := c.nowFn().UTC()
	if schedule.AutoApprove {
		digest.Status = domain.DigestApproved
		digest.ApprovedAt.Time = now
		digest.ApprovedAt.Valid = true
	} else {
		digest.Status = domain.DigestPendingReview
	}

	if err := c.digests.Create(ctx, digest); err != nil {
		return nil, fmt.Errorf("failed to persist digest: %w", err)
	}
	digestsCompiledCounter.WithLabelValues(string(schedule.Frequency)).Inc()
	if digest.FallbackUsed {
		narrativeFallbacksCounter.Inc()
	}

	c.logger.InfoContext(ctx, "Digest compiled",
		"digest_id", digest.ID, "schedule_id", schedule.ID,
		"items", len(digest.ItemRefs), "status", digest.Status, "fallback_used", digest.FallbackUsed)

	if schedule.AutoApprove {
		if err := c.fanOut(ctx, digest, recipient); err != nil {
			return nil, err
		}
	}
	return digest, nil
}

// Preview compiles without persisting anything, for operator review.
func (c *Compiler) Preview(ctx context.Context, schedule *domain.DigestSchedule) (*domain.Digest, error) {
	digest, _, err := c.compile(ctx, schedule)
	if err != nil {
		return nil, err
	}
	digest.Status = domain.DigestPendingReview
	return digest, nil
}

// Approve transitions a reviewed digest to approved and fans out its
// delivery jobs.
func (c *Compiler) Approve(ctx context.Context, digestID uuid.UUID) (*domain.Digest, error) {
	digest, err := c.digests.GetByID(ctx, digestID)
	if err != nil {
		return nil, err
	}
	if !digest.Approvable() {
		return nil, domain.ErrInvalidTransition
	}

	recipient, err := c.members.GetMember(ctx, digest.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve digest recipient: %w", err)
	}

	now := c.nowFn().UTC()
	if err := c.digests.UpdateStatus(ctx, digestID, domain.DigestPendingReview, domain.DigestApproved, now); err != nil {
		return nil, err
	}
	digest.Status = domain.DigestApproved
	digest.ApprovedAt.Time = now
	digest.ApprovedAt.Valid = true

	if err := c.fanOut(ctx, digest, recipient); err != nil {
		return nil, err
	}
	return digest, nil
}

// compile gathers content and generates both narrative passes. The
// returned digest is not yet persisted.
func (c *Compiler) compile(ctx context.Context, schedule *domain.DigestSchedule) (*domain.Digest, *domain.Recipient, error) {
	recipient, err := c.members.GetMember(ctx, schedule.RecipientID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve schedule recipient: %w", err)
	}

	since := schedule.CreatedAt
	if schedule.LastSentAt.Valid {
		since = schedule.LastSentAt.Time
	}
	items, err := c.content.ListSince(ctx, schedule.GroupID, since, schedule.IncludeContentTypes, schedule.MaxItemsPerDigest)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to gather content items: %w", err)
	}
	if len(items) == 0 {
		return nil, nil, domain.ErrNoEligibleItems
	}

	itemRefs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		itemRefs = append(itemRefs, item.ID)
	}

	digest := domain.NewDigest(
		uuid.NullUUID{UUID: schedule.ID, Valid: true},
		schedule.RecipientID,
		uuid.NullUUID{UUID: schedule.GroupID, Valid: true},
		itemRefs,
	)

	recipientNarrative, recipientFellBack := c.generateOrFallback(ctx, ai.NarrativeContext{
		Audience:       ai.AudienceRecipient,
		RecipientName:  recipient.DisplayName,
		Relationship:   recipient.Relationship,
		TonePreference: recipient.TonePreference,
		Items:          items,
	})
	parentNarrative, parentFellBack := c.generateOrFallback(ctx, ai.NarrativeContext{
		Audience:      ai.AudienceParent,
		RecipientName: recipient.DisplayName,
		Items:         items,
	})

	digest.Narrative = recipientNarrative
	digest.ParentNarrative = parentNarrative
	digest.FallbackUsed = recipientFellBack || parentFellBack
	return digest, recipient, nil
}

// generateOrFallback runs one AI pass with rate limiting, a timeout,
// and the acceptance contract. Any failure returns the deterministic
// fallback: a digest is never blocked on the narrative service.
func (c *Compiler) generateOrFallback(ctx context.Context, nc ai.NarrativeContext) (domain.Narrative, bool) {
	requireTitle := nc.Audience == ai.AudienceParent

	if c.limiter != nil {
		res := c.limiter.AllowNamed(ctx, AIRateLimitPolicy, nc.RecipientName+":"+string(nc.Audience))
		if !res.Allowed {
			c.logger.WarnContext(ctx, "Narrative call rate limited, using fallback", "audience", nc.Audience)
			return c.fallbackNarrative(nc), true
		}
	}

	aiCtx, cancel := context.WithTimeout(ctx, c.config.AITimeout)
	defer cancel()

	generated, err := c.narrative.GenerateNarrative(aiCtx, nc)
	if err != nil {
		c.logger.WarnContext(ctx, "Narrative generation failed, using fallback", "audience", nc.Audience, "error", err)
		return c.fallbackNarrative(nc), true
	}
	if !generated.Valid(requireTitle) {
		c.logger.WarnContext(ctx, "Narrative rejected by validation, using fallback", "audience", nc.Audience)
		return c.fallbackNarrative(nc), true
	}
	return *generated, false
}

// fallbackNarrative builds templated text from item counts and
// captions. Always non-empty.
func (c *Compiler) fallbackNarrative(nc ai.NarrativeContext) domain.Narrative {
	countsByType := map[string]int{}
	var captions []string
	var mediaRefs []string
	for _, item := range nc.Items {
		countsByType[item.ContentType]++
		if item.Caption != "" && len(captions) < 5 {
			captions = append(captions, fmt.Sprintf("%s: %q", item.AuthorName, item.Caption))
		}
		if item.MediaURL.Valid {
			mediaRefs = append(mediaRefs, item.MediaURL.String)
		}
	}

	var parts []string
	for contentType, count := range countsByType {
		label := contentType
		if count != 1 {
			label += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", count, label))
	}

	body := fmt.Sprintf("The family shared %s since your last digest.", strings.Join(parts, ", "))
	if len(captions) > 0 {
		body += " Highlights: " + strings.Join(captions, "; ") + "."
	}

	n := domain.Narrative{
		Intro:           fmt.Sprintf("Hi %s, here is your family update.", nc.RecipientName),
		Narrative:       body,
		Closing:         "With love from the whole family.",
		MediaReferences: mediaRefs,
	}
	if nc.Audience == ai.AudienceParent {
		n.Title = fmt.Sprintf("Family digest: %d new updates", len(nc.Items))
		n.Intro = "Archive copy of this digest."
	}
	return n
}

// fanOut enqueues one delivery job for the digest's recipient on their
// preferred channel, then marks the digest sending.
func (c *Compiler) fanOut(ctx context.Context, digest *domain.Digest, recipient *domain.Recipient) error {
	payload, err := (&notifdomain.MessagePayload{
		Subject: digest.ParentNarrative.Title,
		Body:    renderNarrative(digest.Narrative),
	}).ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode digest payload: %w", err)
	}

	groupID := uuid.NullUUID{}
	if digest.GroupID.Valid {
		groupID = digest.GroupID
	}

	job := notifdomain.NewNotificationJob(
		digest.RecipientID,
		groupID,
		notifdomain.DeliveryMethod(recipient.DeliveryMethod),
		"digest",
		recipient.Address,
		"digest:"+digest.ID.String(),
		payload,
		time.Time{},
	)
	if err := c.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue digest delivery job: %w", err)
	}

	if err := c.digests.UpdateStatus(ctx, digest.ID, digest.Status, domain.DigestSending, time.Time{}); err != nil {
		return err
	}
	digest.Status = domain.DigestSending

	c.logger.InfoContext(ctx, "Digest delivery enqueued",
		"digest_id", digest.ID, "job_id", job.ID, "channel", recipient.DeliveryMethod)
	return nil
}

// renderNarrative flattens the structured narrative into channel body
// text.
func renderNarrative(n domain.Narrative) string {
	sections := make([]string, 0, 3)
	for _, s := range []string{n.Intro, n.Narrative, n.Closing} {
		if s != "" {
			sections = append(sections, s)
		}
	}
	return strings.Join(sections, "\n\n")
}
