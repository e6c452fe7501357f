package audit

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SystemActor identifies automated jobs in audit entries, as opposed to a
// named administrator.
const SystemActor = "system"

var ErrEntryValidation = errors.New("audit entry validation failed")

// Entry is a single audit log record. Entries are immutable once stored.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity,omitempty"`
	EntityID  string         `json:"entity_id,omitempty"`
	Actor     string         `json:"actor,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Validate checks required fields before storage.
func (e *Entry) Validate() error {
	if e.Action == "" {
		return errors.Join(ErrEntryValidation, errors.New("action is required"))
	}
	return nil
}

// EntryOption customizes an Entry during recording.
type EntryOption func(*Entry)

// WithEntity attaches the affected entity type and identifier.
func WithEntity(entity string, id uuid.UUID) EntryOption {
	return func(e *Entry) {
		e.Entity = entity
		e.EntityID = id.String()
	}
}

// WithActor attaches the acting user name. Use SystemActor for automated
// sweeps.
func WithActor(actor string) EntryOption {
	return func(e *Entry) {
		e.Actor = actor
	}
}

// WithDetail adds a single key/value pair to the entry details.
func WithDetail(key string, value any) EntryOption {
	return func(e *Entry) {
		if e.Details == nil {
			e.Details = make(map[string]any)
		}
		e.Details[key] = value
	}
}
