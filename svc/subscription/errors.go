package subscription

import "errors"

var (
	// ErrPlanNotFound is returned when a plan id is not in the catalog.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrInvalidBillingPeriod is returned for unknown billing periods.
	ErrInvalidBillingPeriod = errors.New("invalid billing period")

	// ErrSubscriptionNotFound is returned when no subscription matches.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrActiveSubscriptionExists is returned when inserting a current
	// subscription for a tenant that already has one.
	ErrActiveSubscriptionExists = errors.New("tenant already has a current subscription")

	// ErrRequestNotFound is returned when no request matches.
	ErrRequestNotFound = errors.New("subscription request not found")

	// ErrRequestNotPending signals that a request left the pending state
	// before the operation ran, usually because a concurrent actor
	// resolved it. Callers treat it as already handled.
	ErrRequestNotPending = errors.New("subscription request is not pending")
)
