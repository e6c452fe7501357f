package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ApproveParams is the atomic unit executed when a request is approved,
// manually or by the sweep.
type ApproveParams struct {
	RequestID uuid.UUID
	// Resolution is RequestApproved or RequestAutoApproved.
	Resolution RequestStatus
	Reviewer   string
	Now        time.Time
	// NewSubscription is the fully computed subscription row to insert.
	NewSubscription Subscription
	// LedgerDescription annotates the ledger entry for billing history.
	LedgerDescription string
}

// ApprovalResult reports what the approval unit changed.
type ApprovalResult struct {
	Request      Request
	Subscription Subscription
	// Superseded is the prior current subscription that was cancelled, if
	// the tenant had one.
	Superseded *Subscription
	Ledger     LedgerEntry
}

// Store is the persistence contract for the subscription lifecycle. All
// status-changing writes are compare-and-set: they succeed only when the
// row is still in the expected source state, so overlapping job runs
// cannot double-apply a transition.
type Store interface {
	// CreateSubscription inserts a new row. Returns
	// ErrActiveSubscriptionExists when the tenant already has a current
	// (trial or active) subscription.
	CreateSubscription(ctx context.Context, s *Subscription) error

	// GetSubscription returns the row or ErrSubscriptionNotFound.
	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// GetCurrentSubscription returns the tenant's trial or active row, or
	// ErrSubscriptionNotFound.
	GetCurrentSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)

	// ListLapsed returns current rows whose end date is strictly before
	// now.
	ListLapsed(ctx context.Context, now time.Time) ([]Subscription, error)

	// ListTrialsEndingWithin returns trial rows ending after now but
	// within the given window.
	ListTrialsEndingWithin(ctx context.Context, now time.Time, within time.Duration) ([]Subscription, error)

	// TransitionSubscription moves a row between statuses with
	// compare-and-set semantics. False with a nil error means the row was
	// no longer in the source status.
	TransitionSubscription(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (bool, error)

	// CreateRequest inserts a pending request.
	CreateRequest(ctx context.Context, r *Request) error

	// GetRequest returns the request or ErrRequestNotFound.
	GetRequest(ctx context.Context, id uuid.UUID) (*Request, error)

	// ListStalePending returns pending requests submitted before the
	// cutoff.
	ListStalePending(ctx context.Context, before time.Time) ([]Request, error)

	// ResolveRequest moves a pending request to a terminal status without
	// side effects (the rejection path). False with a nil error means the
	// request was no longer pending.
	ResolveRequest(ctx context.Context, id uuid.UUID, to RequestStatus, reviewer string, at time.Time) (bool, error)

	// ApproveRequest atomically resolves a pending request, cancels the
	// tenant's current subscription if one exists, inserts the new active
	// subscription, and appends the ledger entry. On any failure nothing
	// is persisted and the request remains pending. Returns
	// ErrRequestNotPending when the request was already resolved.
	ApproveRequest(ctx context.Context, params ApproveParams) (*ApprovalResult, error)

	// SuspendTenantIfNoCurrent suspends an active tenant that has no
	// current (trial or active) subscription. The replacement check and
	// the status write are one atomic unit, so an approval landing
	// between them cannot leave a tenant suspended while holding an
	// active subscription. False with a nil error means the tenant kept
	// a current subscription or was not active.
	SuspendTenantIfNoCurrent(ctx context.Context, tenantID uuid.UUID, at time.Time) (bool, error)

	// MarkTrialNoticeSent consumes the (subscription, threshold) reminder
	// slot. False means the slot was already consumed by an earlier run.
	MarkTrialNoticeSent(ctx context.Context, subscriptionID uuid.UUID, thresholdDays int, at time.Time) (bool, error)

	// ListLedgerEntries returns the tenant's billing history, newest
	// first.
	ListLedgerEntries(ctx context.Context, tenantID uuid.UUID) ([]LedgerEntry, error)

	// CountPendingRequests returns the number of pending requests for a
	// tenant.
	CountPendingRequests(ctx context.Context, tenantID uuid.UUID) (int, error)
}
