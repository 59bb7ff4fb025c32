package channel

import (
	"fmt"

	"github.com/famline/notifications/internal/notification_service/domain"
)

// Registry maps each delivery method to its sender.
type Registry struct {
	senders map[domain.DeliveryMethod]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[domain.DeliveryMethod]Sender)}
}

// Register binds a sender to a delivery method, replacing any previous
// binding.
func (r *Registry) Register(method domain.DeliveryMethod, sender Sender) {
	r.senders[method] = sender
}

// SenderFor returns the sender for a delivery method.
func (r *Registry) SenderFor(method domain.DeliveryMethod) (Sender, error) {
	s, ok := r.senders[method]
	if !ok {
		return nil, fmt.Errorf("no sender registered for delivery method %q", method)
	}
	return s, nil
}

// Methods lists the registered delivery methods.
func (r *Registry) Methods() []string {
	out := make([]string, 0, len(r.senders))
	for m := range r.senders {
		out = append(out, string(m))
	}
	return out
}
