package subscription

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Subscription is one term of a tenant's plan. A tenant has at most one
// row in a current status (trial or active) at a time; history accumulates
// as terminal rows.
type Subscription struct {
	ID            uuid.UUID     `json:"id"`
	TenantID      uuid.UUID     `json:"tenant_id"`
	PlanID        string        `json:"plan_id"`
	BillingPeriod BillingPeriod `json:"billing_period"`
	Status        Status        `json:"status"`
	StartDate     time.Time     `json:"start_date"`
	EndDate       time.Time     `json:"end_date"`
	// Amount is the total charged for the term, in the smallest currency
	// unit. Zero for trials.
	Amount      int64     `json:"amount"`
	AutoRenewal bool      `json:"auto_renewal"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Lapsed reports whether the subscription is current but its end date is
// strictly in the past at the given time.
func (s *Subscription) Lapsed(now time.Time) bool {
	return s.Status.Current() && s.EndDate.Before(now)
}

// NextStatusAt evaluates the natural transition for the subscription at
// the given time. Pure: the same (subscription, now) always yields the
// same answer. Terminal rows keep their status.
func (s *Subscription) NextStatusAt(now time.Time) Status {
	if s.Lapsed(now) {
		return StatusExpired
	}
	return s.Status
}

// DaysRemainingAt returns the whole days left until the end date, rounding
// partial days up. Zero once the end date has passed.
func (s *Subscription) DaysRemainingAt(now time.Time) int {
	remaining := s.EndDate.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}
