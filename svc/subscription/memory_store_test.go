package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgood/goodsale-sub002/svc/subscription"
	"github.com/drgood/goodsale-sub002/svc/tenant"
)

func newTrialRow(tenantID uuid.UUID, end time.Time) *subscription.Subscription {
	return &subscription.Subscription{
		TenantID:      tenantID,
		PlanID:        "starter",
		BillingPeriod: subscription.PeriodMonthly,
		Status:        subscription.StatusTrial,
		StartDate:     end.AddDate(0, 0, -14),
		EndDate:       end,
	}
}

func TestMemoryStoreCurrentSubscriptionInvariant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := subscription.NewMemoryStore()
	tenantID := uuid.New()

	require.NoError(t, store.CreateSubscription(ctx, newTrialRow(tenantID, now.AddDate(0, 0, 7))))

	err := store.CreateSubscription(ctx, newTrialRow(tenantID, now.AddDate(0, 0, 7)))
	assert.ErrorIs(t, err, subscription.ErrActiveSubscriptionExists)

	// Terminal rows do not block a new current one.
	expired := newTrialRow(uuid.New(), now.AddDate(0, 0, -7))
	expired.TenantID = tenantID
	expired.Status = subscription.StatusExpired
	assert.NoError(t, store.CreateSubscription(ctx, expired))
}

func TestMemoryStoreTransitionSubscription(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := subscription.NewMemoryStore()
	sub := newTrialRow(uuid.New(), now)
	require.NoError(t, store.CreateSubscription(ctx, sub))

	ok, err := store.TransitionSubscription(ctx, sub.ID, subscription.StatusTrial, subscription.StatusExpired, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second flip from the same source state loses the compare-and-set.
	ok, err = store.TransitionSubscription(ctx, sub.ID, subscription.StatusTrial, subscription.StatusExpired, now)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.TransitionSubscription(ctx, uuid.New(), subscription.StatusTrial, subscription.StatusExpired, now)
	assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)
}

func TestMemoryStoreApproveRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tenantID := uuid.New()

	pendingRequest := func(t *testing.T, store *subscription.MemoryStore) *subscription.Request {
		t.Helper()
		req := &subscription.Request{
			TenantID:      tenantID,
			PlanID:        "starter",
			BillingPeriod: subscription.PeriodMonthly,
			TotalAmount:   5000,
			Status:        subscription.RequestPending,
			RequestedBy:   "owner@acme",
			RequestedAt:   now,
		}
		require.NoError(t, store.CreateRequest(ctx, req))
		return req
	}

	params := func(req *subscription.Request) subscription.ApproveParams {
		return subscription.ApproveParams{
			RequestID:  req.ID,
			Resolution: subscription.RequestApproved,
			Reviewer:   "admin",
			Now:        now,
			NewSubscription: subscription.Subscription{
				TenantID:      tenantID,
				PlanID:        req.PlanID,
				BillingPeriod: req.BillingPeriod,
				Status:        subscription.StatusActive,
				StartDate:     now,
				EndDate:       req.BillingPeriod.AddTo(now),
				Amount:        req.TotalAmount,
			},
			LedgerDescription: "starter subscription",
		}
	}

	t.Run("supersedes the current subscription", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		trial := newTrialRow(tenantID, now.AddDate(0, 0, 7))
		require.NoError(t, store.CreateSubscription(ctx, trial))
		req := pendingRequest(t, store)

		result, err := store.ApproveRequest(ctx, params(req))
		require.NoError(t, err)

		assert.Equal(t, subscription.RequestApproved, result.Request.Status)
		require.NotNil(t, result.Superseded)
		assert.Equal(t, trial.ID, result.Superseded.ID)
		assert.Equal(t, subscription.StatusCancelled, result.Superseded.Status)
		assert.Equal(t, int64(5000), result.Ledger.Amount)
		assert.Equal(t, &req.ID, result.Ledger.RequestID)
	})

	t.Run("rejects a resolved request", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		req := pendingRequest(t, store)

		_, err := store.ApproveRequest(ctx, params(req))
		require.NoError(t, err)

		_, err = store.ApproveRequest(ctx, params(req))
		assert.ErrorIs(t, err, subscription.ErrRequestNotPending)
	})

	t.Run("injected failure leaves everything untouched", func(t *testing.T) {
		t.Parallel()
		store := subscription.NewMemoryStore()
		trial := newTrialRow(tenantID, now.AddDate(0, 0, 7))
		require.NoError(t, store.CreateSubscription(ctx, trial))
		req := pendingRequest(t, store)

		store.FailNextApprove(assert.AnError)
		_, err := store.ApproveRequest(ctx, params(req))
		require.ErrorIs(t, err, assert.AnError)

		got, err := store.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.RequestPending, got.Status)

		current, err := store.GetCurrentSubscription(ctx, tenantID)
		require.NoError(t, err)
		assert.Equal(t, trial.ID, current.ID)

		ledger, err := store.ListLedgerEntries(ctx, tenantID)
		require.NoError(t, err)
		assert.Empty(t, ledger)
	})
}

func TestMemoryStoreSuspendTenantIfNoCurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newStores := func(t *testing.T) (*subscription.MemoryStore, *tenant.MemoryStore, *tenant.Tenant) {
		t.Helper()
		store := subscription.NewMemoryStore()
		tenants := tenant.NewMemoryStore()
		store.BindTenants(tenants)
		tn := &tenant.Tenant{Name: "Acme Shop", Subdomain: "acme", Status: tenant.StatusActive}
		require.NoError(t, tenants.Create(ctx, tn))
		return store, tenants, tn
	}

	t.Run("suspends when no current subscription remains", func(t *testing.T) {
		t.Parallel()
		store, tenants, tn := newStores(t)

		expired := newTrialRow(tn.ID, now.AddDate(0, 0, -1))
		expired.Status = subscription.StatusExpired
		require.NoError(t, store.CreateSubscription(ctx, expired))

		ok, err := store.SuspendTenantIfNoCurrent(ctx, tn.ID, now)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := tenants.GetByID(ctx, tn.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.StatusSuspended, got.Status)
	})

	t.Run("a current subscription blocks the suspension", func(t *testing.T) {
		t.Parallel()
		store, tenants, tn := newStores(t)
		require.NoError(t, store.CreateSubscription(ctx, newTrialRow(tn.ID, now.AddDate(0, 0, 7))))

		ok, err := store.SuspendTenantIfNoCurrent(ctx, tn.ID, now)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := tenants.GetByID(ctx, tn.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.StatusActive, got.Status)
	})

	t.Run("non-active tenants are left alone", func(t *testing.T) {
		t.Parallel()
		store, tenants, tn := newStores(t)

		_, err := tenants.UpdateStatus(ctx, tn.ID, tenant.StatusActive, tenant.StatusSuspended, now)
		require.NoError(t, err)

		ok, err := store.SuspendTenantIfNoCurrent(ctx, tn.ID, now)
		require.NoError(t, err)
		assert.False(t, ok, "already suspended, the compare-and-set loses")
	})
}

func TestMemoryStoreMarkTrialNoticeSent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := subscription.NewMemoryStore()
	subID := uuid.New()

	sent, err := store.MarkTrialNoticeSent(ctx, subID, 7, now)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = store.MarkTrialNoticeSent(ctx, subID, 7, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, sent, "the (subscription, threshold) slot is consumed")

	sent, err = store.MarkTrialNoticeSent(ctx, subID, 3, now)
	require.NoError(t, err)
	assert.True(t, sent, "other thresholds are independent")
}

func TestMemoryStoreListTrialsEndingWithin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := subscription.NewMemoryStore()

	inWindow := newTrialRow(uuid.New(), now.AddDate(0, 0, 3))
	require.NoError(t, store.CreateSubscription(ctx, inWindow))
	outside := newTrialRow(uuid.New(), now.AddDate(0, 0, 10))
	require.NoError(t, store.CreateSubscription(ctx, outside))
	lapsed := newTrialRow(uuid.New(), now.AddDate(0, 0, -1))
	require.NoError(t, store.CreateSubscription(ctx, lapsed))

	trials, err := store.ListTrialsEndingWithin(ctx, now, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, trials, 1)
	assert.Equal(t, inWindow.ID, trials[0].ID)

	lapsedList, err := store.ListLapsed(ctx, now)
	require.NoError(t, err)
	require.Len(t, lapsedList, 1)
	assert.Equal(t, lapsed.ID, lapsedList[0].ID)
}
