package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Storage persists audit entries.
type Storage interface {
	Store(ctx context.Context, entry Entry) error
}

// Trail records audit entries against a Storage backend. Storage failures
// are logged and swallowed; audit logging must never fail the operation
// being audited.
type Trail struct {
	storage Storage
	log     *slog.Logger
	now     func() time.Time
}

// TrailOption configures a Trail.
type TrailOption func(*Trail)

// WithLogger sets the operational logger used to report storage failures.
func WithLogger(log *slog.Logger) TrailOption {
	return func(t *Trail) {
		if log != nil {
			t.log = log
		}
	}
}

// WithClock overrides the timestamp source, used by tests for fixed times.
func WithClock(now func() time.Time) TrailOption {
	return func(t *Trail) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTrail creates a Trail. Panics on nil storage to fail fast at startup.
func NewTrail(storage Storage, opts ...TrailOption) *Trail {
	if storage == nil {
		panic("audit: storage cannot be nil")
	}

	t := &Trail{
		storage: storage,
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record stores one entry for the given action. Failures are reported via
// the operational logger only.
func (t *Trail) Record(ctx context.Context, action string, opts ...EntryOption) {
	entry := Entry{
		ID:        uuid.New(),
		Action:    action,
		CreatedAt: t.now(),
	}
	for _, opt := range opts {
		opt(&entry)
	}

	if err := entry.Validate(); err != nil {
		t.log.ErrorContext(ctx, "invalid audit entry dropped", "action", action, "error", err)
		return
	}

	if err := t.storage.Store(ctx, entry); err != nil {
		t.log.ErrorContext(ctx, "failed to store audit entry",
			"action", action,
			"entity", entry.Entity,
			"entity_id", entry.EntityID,
			"error", err,
		)
	}
}
