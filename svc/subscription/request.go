package subscription

import (
	"time"

	"github.com/google/uuid"
)

// Request is a tenant's application for a paid subscription, waiting for
// administrator moderation or the auto-approval sweep. Resolved requests
// are immutable.
type Request struct {
	ID            uuid.UUID     `json:"id"`
	TenantID      uuid.UUID     `json:"tenant_id"`
	PlanID        string        `json:"plan_id"`
	BillingPeriod BillingPeriod `json:"billing_period"`
	// TotalAmount is the full charge for the requested term, in the
	// smallest currency unit.
	TotalAmount  int64         `json:"total_amount"`
	Status       RequestStatus `json:"status"`
	RequestedBy  string        `json:"requested_by"`
	RequestedAt  time.Time     `json:"requested_at"`
	ContactName  string        `json:"contact_name,omitempty"`
	ContactEmail string        `json:"contact_email,omitempty"`
	ContactPhone string        `json:"contact_phone,omitempty"`
	ReviewedBy   string        `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time    `json:"reviewed_at,omitempty"`
}

// LedgerEntry is one completed charge or credit. The ledger is append
// only; entries are never updated after creation.
type LedgerEntry struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	RequestID      *uuid.UUID `json:"request_id,omitempty"`
	Amount         int64      `json:"amount"`
	Description    string     `json:"description,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
