package notifier

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// SlogTransport writes notifications to the application log. Useful in
// development where no real delivery channel is configured.
type SlogTransport struct {
	log *slog.Logger
}

func NewSlogTransport(log *slog.Logger) *SlogTransport {
	if log == nil {
		log = slog.Default()
	}
	return &SlogTransport{log: log}
}

func (t *SlogTransport) Send(ctx context.Context, msg Message) error {
	t.log.InfoContext(ctx, "notification dispatched",
		"tenant_id", msg.TenantID.String(),
		"channel", string(msg.Channel),
		"title", msg.Title,
	)
	return nil
}

// NoopTransport drops all messages.
type NoopTransport struct{}

func (NoopTransport) Send(ctx context.Context, msg Message) error { return nil }

// MemoryTransport records sent messages for test assertions. An optional
// failure hook lets tests simulate transport outages per message.
type MemoryTransport struct {
	mu       sync.Mutex
	sent     []Message
	FailWith func(msg Message) error
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

func (t *MemoryTransport) Send(ctx context.Context, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.FailWith != nil {
		if err := t.FailWith(msg); err != nil {
			return err
		}
	}

	t.sent = append(t.sent, msg)
	return nil
}

// Sent returns a copy of all delivered messages in send order.
func (t *MemoryTransport) Sent() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.sent)
}
