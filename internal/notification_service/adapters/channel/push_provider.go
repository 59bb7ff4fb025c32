package channel

import (
	"context"
	"log/slog"
)

// PushProvider hands notifications to the mobile push relay. The relay
// accepts fire-and-forget submissions and returns no message ID, so a
// sent job on this channel legitimately carries a null provider ID.
//
// TODO: replace the log-only stub with the FCM relay call once the
// mobile app registers device tokens.
type PushProvider struct {
	logger *slog.Logger
}

func NewPushProvider(logger *slog.Logger) *PushProvider {
	return &PushProvider{logger: logger.With("provider", "push")}
}

func (p *PushProvider) Name() string { return "push" }

func (p *PushProvider) Send(ctx context.Context, req Request) (*Response, error) {
	if req.Recipient == "" {
		return nil, NewPermanentError("push_no_token", "recipient has no device token")
	}
	p.logger.InfoContext(ctx, "Push notification dispatched",
		"job_id", req.JobID,
		"notification_type", req.NotificationType,
		"body_len", len(req.Body))
	return &Response{}, nil
}
