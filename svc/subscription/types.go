package subscription

import "time"

// BillingPeriod is the commitment length of a subscription term.
type BillingPeriod string

const (
	PeriodMonthly BillingPeriod = "1_month"
	PeriodAnnual  BillingPeriod = "12_month"
)

// Valid reports whether p is a known billing period.
func (p BillingPeriod) Valid() bool {
	switch p {
	case PeriodMonthly, PeriodAnnual:
		return true
	}
	return false
}

// Months returns the period length in months.
func (p BillingPeriod) Months() int {
	switch p {
	case PeriodAnnual:
		return 12
	default:
		return 1
	}
}

// AddTo returns the end of a term starting at t.
func (p BillingPeriod) AddTo(t time.Time) time.Time {
	return t.AddDate(0, p.Months(), 0)
}

// Status is the subscription lifecycle state.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// statusTransitions is the closed set of allowed subscription status
// changes. Expired and cancelled are terminal for the row; renewal creates
// a new row instead.
var statusTransitions = map[Status][]Status{
	StatusTrial:  {StatusActive, StatusExpired, StatusCancelled},
	StatusActive: {StatusExpired, StatusCancelled},
}

// CanTransition reports whether from -> to is an allowed status change.
func CanTransition(from, to Status) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Current reports whether the status counts toward the one-current-
// subscription-per-tenant invariant.
func (s Status) Current() bool {
	return s == StatusTrial || s == StatusActive
}

// Terminal reports whether no further transition is possible for the row.
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusCancelled
}

// RequestStatus is the state of a subscription request.
type RequestStatus string

const (
	RequestPending      RequestStatus = "pending"
	RequestApproved     RequestStatus = "approved"
	RequestRejected     RequestStatus = "rejected"
	RequestAutoApproved RequestStatus = "auto_approved"
)

// Resolved reports whether the request reached a terminal state. Resolved
// requests are immutable.
func (s RequestStatus) Resolved() bool {
	return s != RequestPending
}
