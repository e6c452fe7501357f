package logger

import (
	"log/slog"

	"github.com/google/uuid"
)

// Error records a single error under the key "error".
// Returns an empty Attr when err is nil so callers can pass it
// unconditionally.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// TenantID records a tenant identifier under the key "tenant_id".
func TenantID(id uuid.UUID) slog.Attr {
	return slog.String("tenant_id", id.String())
}

// Component records the emitting component under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Job records the running job name under the key "job".
func Job(name string) slog.Attr {
	return slog.String("job", name)
}
