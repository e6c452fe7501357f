package tenant

import "errors"

var (
	// ErrTenantNotFound is returned when no tenant matches the identifier.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrSubdomainTaken is returned when the requested subdomain is already
	// in use by another tenant.
	ErrSubdomainTaken = errors.New("subdomain already taken")

	// ErrInvalidSubdomain is returned for malformed subdomains.
	ErrInvalidSubdomain = errors.New("invalid subdomain")

	// ErrRequestNotFound is returned when no name change request matches
	// the identifier.
	ErrRequestNotFound = errors.New("name change request not found")

	// ErrOpenRequestExists is returned when a tenant already has a rename
	// request in flight. At most one request per tenant may be open.
	ErrOpenRequestExists = errors.New("tenant already has an open name change request")

	// ErrNotPending signals that a request left the pending state before
	// the operation ran, usually because a concurrent run resolved it.
	// Callers treat it as already handled.
	ErrNotPending = errors.New("name change request is not pending")
)
