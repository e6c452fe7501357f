// Package auth defines the session contract supplied by the external
// authentication provider. The core never authenticates anyone itself; it
// only consumes the resolved session from the request context.
package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrAuthRequired is returned when an operation needs a session and
	// none is present in the context.
	ErrAuthRequired = errors.New("authentication required")

	// ErrForbidden is returned when the session lacks the required
	// privileges.
	ErrForbidden = errors.New("insufficient privileges")
)

// Role is the caller's role within their tenant.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

// Session describes the authenticated caller as supplied by the external
// auth provider.
type Session struct {
	UserID       uuid.UUID
	UserName     string
	TenantID     uuid.UUID
	Role         Role
	IsSuperAdmin bool
}

type sessionContextKey struct{}

// WithSession stores the session in the context for downstream handlers.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext retrieves the session, or ErrAuthRequired when the
// request was not authenticated.
func SessionFromContext(ctx context.Context) (*Session, error) {
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || s == nil {
		return nil, ErrAuthRequired
	}
	return s, nil
}

// RequireSuperAdmin retrieves the session and verifies platform-admin
// privileges. Approval and rejection of tenant requests are
// administrator-only operations.
func RequireSuperAdmin(ctx context.Context) (*Session, error) {
	s, err := SessionFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !s.IsSuperAdmin {
		return nil, ErrForbidden
	}
	return s, nil
}
