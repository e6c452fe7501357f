package tenant

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Status is the tenant lifecycle state.
type Status string

const (
	// StatusActive tenants can use the platform normally.
	StatusActive Status = "active"
	// StatusSuspended tenants lost their subscription; operational data is
	// kept but inaccessible until a new subscription is approved.
	StatusSuspended Status = "suspended"
	// StatusArchived tenants are permanently retired.
	StatusArchived Status = "archived"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusArchived:
		return true
	}
	return false
}

// Tenant is a subscribing shop identified by its subdomain.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Subdomain string    `json:"subdomain"`
	Status    Status    `json:"status"`
	PlanID    string    `json:"plan_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the tenant can use the platform.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

var subdomainRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidSubdomain reports whether s is usable as a tenant subdomain:
// lowercase alphanumerics and hyphens, no leading/trailing hyphen, at most
// 63 characters (DNS label rules).
func ValidSubdomain(s string) bool {
	return subdomainRe.MatchString(s)
}
