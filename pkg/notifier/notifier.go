package notifier

import (
	"context"

	"github.com/google/uuid"
)

// Channel identifies a delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in_app"
)

// Message is a single outbound notification addressed to a tenant.
type Message struct {
	TenantID uuid.UUID
	Channel  Channel
	Title    string
	Body     string
}

// Transport delivers messages. Implementations must be safe for
// concurrent use.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}
