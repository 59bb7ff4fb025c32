package channel

import (
	"context"

	"github.com/google/uuid"
)

// Request holds the data a channel sender needs for one delivery.
type Request struct {
	JobID            uuid.UUID
	Recipient        string // channel-specific address: email, E.164 number, device token
	Subject          string
	Body             string
	NotificationType string
}

// Response is the outcome of a successful provider submission.
type Response struct {
	ProviderMessageID string // empty when the channel has no provider-side ID
}

// Sender is the capability implemented once per delivery channel.
// Adding a channel means adding one implementation and registering it;
// no call site switches on the method.
type Sender interface {
	Send(ctx context.Context, req Request) (*Response, error)
	Name() string
}
