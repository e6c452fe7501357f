package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract for tenants.
type Store interface {
	// Create inserts a new tenant. Returns ErrSubdomainTaken when the
	// subdomain is already in use.
	Create(ctx context.Context, t *Tenant) error

	// GetByID returns the tenant or ErrTenantNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// GetBySubdomain returns the tenant or ErrTenantNotFound.
	GetBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)

	// UpdateStatus moves the tenant from one status to another with
	// compare-and-set semantics. It returns false with a nil error when
	// the tenant is no longer in the expected source status, which callers
	// treat as already handled by a concurrent run.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (bool, error)

	// Rename updates the tenant's display name and subdomain. Returns
	// ErrSubdomainTaken when the new subdomain belongs to another tenant.
	Rename(ctx context.Context, id uuid.UUID, name, subdomain string, at time.Time) error

	// UpdatePlan sets the tenant's denormalized current plan reference.
	UpdatePlan(ctx context.Context, id uuid.UUID, planID string, at time.Time) error
}

// RequestMutation carries the field updates applied together with a rename
// request status transition.
type RequestMutation struct {
	EffectiveAt *time.Time
	ReviewedBy  string
	ReviewedAt  *time.Time
	AppliedAt   *time.Time
}

// NameChangeStore is the persistence contract for rename requests.
type NameChangeStore interface {
	// CreateRequest inserts a pending request. Returns ErrOpenRequestExists
	// when the tenant already has an open request.
	CreateRequest(ctx context.Context, r *NameChangeRequest) error

	// GetRequest returns the request or ErrRequestNotFound.
	GetRequest(ctx context.Context, id uuid.UUID) (*NameChangeRequest, error)

	// TransitionRequest moves a request between statuses with
	// compare-and-set semantics, applying the mutation on success. It
	// returns false with a nil error when the request is no longer in the
	// expected source status.
	TransitionRequest(ctx context.Context, id uuid.UUID, from, to RenameStatus, mut RequestMutation) (bool, error)

	// ListDue returns requests in scheduled or auto_approved status whose
	// effective time has passed.
	ListDue(ctx context.Context, now time.Time) ([]NameChangeRequest, error)

	// ListStalePending returns pending requests submitted before the given
	// cutoff.
	ListStalePending(ctx context.Context, before time.Time) ([]NameChangeRequest, error)
}
