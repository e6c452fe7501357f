package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgood/goodsale-sub002/pkg/audit"
	"github.com/drgood/goodsale-sub002/pkg/notifier"
	"github.com/drgood/goodsale-sub002/svc/subscription"
	"github.com/drgood/goodsale-sub002/svc/tenant"
)

var now = time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)

var testPlans = subscription.NewInMemSource(
	subscription.Plan{ID: "starter", Name: "Starter", Price: 5000, TrialDays: 14, Public: true},
	subscription.Plan{ID: "pro", Name: "Pro", Price: 12000, TrialDays: 14, Public: true},
	subscription.Plan{ID: "enterprise", Name: "Enterprise", Price: 40000, Public: false},
)

type fixture struct {
	store     *subscription.MemoryStore
	tenants   *tenant.MemoryStore
	trail     *audit.MemoryStorage
	transport *notifier.MemoryTransport
	archiver  *memoryArchiver
	svc       *subscription.Service
	tenant    *tenant.Tenant
}

type memoryArchiver struct {
	archived []uuid.UUID
}

func (a *memoryArchiver) ArchiveTenantData(_ context.Context, tenantID uuid.UUID) error {
	a.archived = append(a.archived, tenantID)
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := subscription.NewMemoryStore()
	tenants := tenant.NewMemoryStore()
	store.BindTenants(tenants)
	trailStorage := audit.NewMemoryStorage()
	transport := notifier.NewMemoryTransport()
	archiver := &memoryArchiver{}

	tn := &tenant.Tenant{Name: "Acme Shop", Subdomain: "acme", Status: tenant.StatusActive}
	require.NoError(t, tenants.Create(context.Background(), tn))

	svc := subscription.NewService(store, tenants, testPlans, audit.NewTrail(trailStorage), subscription.Config{
		GraceWindow:        48 * time.Hour,
		ReminderThresholds: []int{7, 3, 1},
	},
		subscription.WithTransport(transport),
		subscription.WithArchiver(archiver),
	)

	return &fixture{
		store:     store,
		tenants:   tenants,
		trail:     trailStorage,
		transport: transport,
		archiver:  archiver,
		svc:       svc,
		tenant:    tn,
	}
}

func (f *fixture) startTrial(t *testing.T, endDate time.Time) *subscription.Subscription {
	t.Helper()

	sub := &subscription.Subscription{
		TenantID:      f.tenant.ID,
		PlanID:        "starter",
		BillingPeriod: subscription.PeriodMonthly,
		Status:        subscription.StatusTrial,
		StartDate:     endDate.AddDate(0, 0, -14),
		EndDate:       endDate,
	}
	require.NoError(t, f.store.CreateSubscription(context.Background(), sub))
	return sub
}

func (f *fixture) submitRequest(t *testing.T, at time.Time) *subscription.Request {
	t.Helper()

	req, err := f.svc.SubmitRequest(context.Background(), subscription.SubmitParams{
		TenantID:      f.tenant.ID,
		PlanID:        "starter",
		BillingPeriod: subscription.PeriodMonthly,
		RequestedBy:   "owner@acme",
	}, at)
	require.NoError(t, err)
	return req
}

// concurrentRunStore simulates another job run or an admin action
// interleaving with an expiration run. Each hook fires once.
type concurrentRunStore struct {
	*subscription.MemoryStore
	afterList       func()
	afterTransition func()
}

func (s *concurrentRunStore) ListLapsed(ctx context.Context, at time.Time) ([]subscription.Subscription, error) {
	subs, err := s.MemoryStore.ListLapsed(ctx, at)
	if fn := s.afterList; fn != nil {
		s.afterList = nil
		fn()
	}
	return subs, err
}

func (s *concurrentRunStore) TransitionSubscription(ctx context.Context, id uuid.UUID, from, to subscription.Status, at time.Time) (bool, error) {
	ok, err := s.MemoryStore.TransitionSubscription(ctx, id, from, to, at)
	if fn := s.afterTransition; ok && fn != nil {
		s.afterTransition = nil
		fn()
	}
	return ok, err
}

func TestServiceStartTrial(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("opens a trial with the plan's trial length", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		sub, err := f.svc.StartTrial(ctx, f.tenant.ID, "starter", now)
		require.NoError(t, err)

		assert.Equal(t, subscription.StatusTrial, sub.Status)
		assert.Equal(t, now.AddDate(0, 0, 14), sub.EndDate)
		assert.Zero(t, sub.Amount)
		assert.Len(t, f.trail.ByAction(subscription.ActionStartTrial), 1)

		tn, err := f.tenants.GetByID(ctx, f.tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, "starter", tn.PlanID)
	})

	t.Run("rejects a second current subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.StartTrial(ctx, f.tenant.ID, "starter", now)
		require.NoError(t, err)

		_, err = f.svc.StartTrial(ctx, f.tenant.ID, "pro", now)
		assert.ErrorIs(t, err, subscription.ErrActiveSubscriptionExists)
	})

	t.Run("rejects plans without a trial", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.StartTrial(ctx, f.tenant.ID, "enterprise", now)
		assert.Error(t, err)
	})

	t.Run("rejects unknown plans", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.StartTrial(ctx, f.tenant.ID, "nope", now)
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
	})
}

func TestServiceSubmitRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("freezes the catalog price on the request", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		req, err := f.svc.SubmitRequest(ctx, subscription.SubmitParams{
			TenantID:      f.tenant.ID,
			PlanID:        "pro",
			BillingPeriod: subscription.PeriodAnnual,
			RequestedBy:   "owner@acme",
			ContactEmail:  "owner@acme.example",
		}, now)
		require.NoError(t, err)

		assert.Equal(t, subscription.RequestPending, req.Status)
		assert.Equal(t, int64(12000*12), req.TotalAmount)
		assert.Len(t, f.trail.ByAction(subscription.ActionSubmitRequest), 1)
	})

	t.Run("rejects an unknown billing period", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		_, err := f.svc.SubmitRequest(ctx, subscription.SubmitParams{
			TenantID:      f.tenant.ID,
			PlanID:        "pro",
			BillingPeriod: "6_month",
		}, now)
		assert.ErrorIs(t, err, subscription.ErrInvalidBillingPeriod)
	})
}

func TestServiceApproveRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("creates subscription and ledger entry", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		req := f.submitRequest(t, now)

		result, err := f.svc.ApproveRequest(ctx, req.ID, "admin", now)
		require.NoError(t, err)

		assert.Equal(t, subscription.RequestApproved, result.Request.Status)
		assert.Equal(t, subscription.StatusActive, result.Subscription.Status)
		assert.Equal(t, now.AddDate(0, 1, 0), result.Subscription.EndDate)
		assert.Equal(t, int64(5000), result.Ledger.Amount)
		assert.Nil(t, result.Superseded)
		assert.Len(t, f.trail.ByAction(subscription.ActionApproveRequest), 1)
		assert.Len(t, f.transport.Sent(), 1)
	})

	t.Run("cancels the superseded trial", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		trial := f.startTrial(t, now.AddDate(0, 0, 7))
		req := f.submitRequest(t, now)

		result, err := f.svc.ApproveRequest(ctx, req.ID, "admin", now)
		require.NoError(t, err)

		require.NotNil(t, result.Superseded)
		assert.Equal(t, trial.ID, result.Superseded.ID)
		assert.Equal(t, subscription.StatusCancelled, result.Superseded.Status)
		assert.Len(t, f.trail.ByAction(subscription.ActionCancelSubscription), 1)

		current, err := f.store.GetCurrentSubscription(ctx, f.tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, result.Subscription.ID, current.ID)
	})

	t.Run("reactivates a suspended tenant", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.tenants.UpdateStatus(ctx, f.tenant.ID, tenant.StatusActive, tenant.StatusSuspended, now)
		require.NoError(t, err)
		req := f.submitRequest(t, now)

		_, err = f.svc.ApproveRequest(ctx, req.ID, "admin", now)
		require.NoError(t, err)

		tn, err := f.tenants.GetByID(ctx, f.tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.StatusActive, tn.Status)
		assert.Len(t, f.trail.ByAction(subscription.ActionReactivateTenant), 1)
	})

	t.Run("double approval fails with not pending", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		req := f.submitRequest(t, now)

		_, err := f.svc.ApproveRequest(ctx, req.ID, "admin", now)
		require.NoError(t, err)

		_, err = f.svc.ApproveRequest(ctx, req.ID, "other-admin", now)
		assert.ErrorIs(t, err, subscription.ErrRequestNotPending)
	})

	t.Run("leaves the request pending when the atomic unit fails", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		trial := f.startTrial(t, now.AddDate(0, 0, 7))
		req := f.submitRequest(t, now)

		f.store.FailNextApprove(errors.New("ledger write failed"))
		_, err := f.svc.ApproveRequest(ctx, req.ID, "admin", now)
		require.Error(t, err)

		got, err := f.store.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.RequestPending, got.Status)

		current, err := f.store.GetCurrentSubscription(ctx, f.tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, trial.ID, current.ID, "trial must survive a failed approval")

		ledger, err := f.store.ListLedgerEntries(ctx, f.tenant.ID)
		require.NoError(t, err)
		assert.Empty(t, ledger)

		// Retry succeeds once the dependency recovers.
		_, err = f.svc.ApproveRequest(ctx, req.ID, "admin", now)
		assert.NoError(t, err)
	})
}

func TestServiceRejectRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("resolves without subscription or ledger entry", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		req := f.submitRequest(t, now)

		require.NoError(t, f.svc.RejectRequest(ctx, req.ID, "admin", now))

		got, err := f.store.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.RequestRejected, got.Status)
		assert.Equal(t, "admin", got.ReviewedBy)

		_, err = f.store.GetCurrentSubscription(ctx, f.tenant.ID)
		assert.ErrorIs(t, err, subscription.ErrSubscriptionNotFound)

		ledger, err := f.store.ListLedgerEntries(ctx, f.tenant.ID)
		require.NoError(t, err)
		assert.Empty(t, ledger)
	})

	t.Run("rejecting a resolved request fails", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		req := f.submitRequest(t, now)
		require.NoError(t, f.svc.RejectRequest(ctx, req.ID, "admin", now))

		err := f.svc.RejectRequest(ctx, req.ID, "other-admin", now)
		assert.ErrorIs(t, err, subscription.ErrRequestNotPending)
	})
}

func TestServiceAutoApproveStale(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("approves requests older than the grace window", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		// 49 hours old with a 48 hour grace window.
		req := f.submitRequest(t, now.Add(-49*time.Hour))

		summary, err := f.svc.AutoApproveStale(ctx, now)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Processed)
		assert.Equal(t, []uuid.UUID{req.ID}, summary.Approved)
		assert.False(t, summary.Partial())

		got, err := f.store.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.RequestAutoApproved, got.Status)
		assert.Equal(t, audit.SystemActor, got.ReviewedBy)

		current, err := f.store.GetCurrentSubscription(ctx, f.tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, current.Status)
		assert.Equal(t, int64(5000), current.Amount)

		ledger, err := f.store.ListLedgerEntries(ctx, f.tenant.ID)
		require.NoError(t, err)
		require.Len(t, ledger, 1)
		assert.Equal(t, int64(5000), ledger[0].Amount)
		assert.Len(t, f.trail.ByAction(subscription.ActionAutoApproveRequest), 1)
	})

	t.Run("leaves fresh requests alone", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		req := f.submitRequest(t, now.Add(-47*time.Hour))

		summary, err := f.svc.AutoApproveStale(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, summary.Processed)

		got, err := f.store.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.RequestPending, got.Status)
	})

	t.Run("re-running is a no-op", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.submitRequest(t, now.Add(-72*time.Hour))

		_, err := f.svc.AutoApproveStale(ctx, now)
		require.NoError(t, err)

		summary, err := f.svc.AutoApproveStale(ctx, now)
		require.NoError(t, err)
		assert.Empty(t, summary.Approved)

		ledger, err := f.store.ListLedgerEntries(ctx, f.tenant.ID)
		require.NoError(t, err)
		assert.Len(t, ledger, 1)
	})
}

func TestServiceExpireLapsed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("expires and suspends", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.startTrial(t, now.AddDate(0, 0, -1))

		summary, err := f.svc.ExpireLapsed(ctx, now)
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Processed)
		assert.Equal(t, []uuid.UUID{sub.ID}, summary.Expired)
		assert.Equal(t, []uuid.UUID{f.tenant.ID}, summary.SuspendedTenantIDs)

		got, err := f.store.GetSubscription(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusExpired, got.Status)

		tn, err := f.tenants.GetByID(ctx, f.tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.StatusSuspended, tn.Status)

		assert.Equal(t, []uuid.UUID{f.tenant.ID}, f.archiver.archived)
		assert.Len(t, f.trail.ByAction(subscription.ActionExpireSubscription), 1)
		assert.Len(t, f.trail.ByAction(subscription.ActionSuspendTenant), 1)
	})

	t.Run("re-running is a no-op", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.startTrial(t, now.AddDate(0, 0, -1))

		_, err := f.svc.ExpireLapsed(ctx, now)
		require.NoError(t, err)

		summary, err := f.svc.ExpireLapsed(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, summary.Processed)
		assert.Len(t, f.trail.ByAction(subscription.ActionExpireSubscription), 1)
		assert.Len(t, f.archiver.archived, 1)
	})

	t.Run("keeps subscriptions that have not lapsed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.startTrial(t, now.Add(time.Hour))

		summary, err := f.svc.ExpireLapsed(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, summary.Processed)

		got, err := f.store.GetSubscription(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusTrial, got.Status)
	})

	t.Run("does not suspend a tenant with a replacement subscription", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.startTrial(t, now.AddDate(0, 0, -1))

		// Approval lands before the expiration run: the trial row is
		// cancelled, a new active row takes over.
		req := f.submitRequest(t, now)
		_, err := f.svc.ApproveRequest(ctx, req.ID, "admin", now)
		require.NoError(t, err)

		summary, err := f.svc.ExpireLapsed(ctx, now)
		require.NoError(t, err)
		assert.Empty(t, summary.SuspendedTenantIDs)

		tn, err := f.tenants.GetByID(ctx, f.tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.StatusActive, tn.Status)
	})

	t.Run("approval landing mid-run keeps the tenant active", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.startTrial(t, now.AddDate(0, 0, -1))
		req := f.submitRequest(t, now)

		// The approval lands after the trial row is flipped to expired
		// but before the suspension guard runs. The new active row must
		// block the suspension.
		wrapped := &concurrentRunStore{MemoryStore: f.store}
		wrapped.afterTransition = func() {
			_, err := f.svc.ApproveRequest(ctx, req.ID, "admin", now)
			require.NoError(t, err)
		}
		svc := subscription.NewService(wrapped, f.tenants, testPlans, audit.NewTrail(f.trail), subscription.Config{
			GraceWindow:        48 * time.Hour,
			ReminderThresholds: []int{7, 3, 1},
		}, subscription.WithArchiver(f.archiver))

		summary, err := svc.ExpireLapsed(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{sub.ID}, summary.Expired)
		assert.Empty(t, summary.SuspendedTenantIDs)

		tn, err := f.tenants.GetByID(ctx, f.tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.StatusActive, tn.Status)

		current, err := f.store.GetCurrentSubscription(ctx, f.tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, subscription.StatusActive, current.Status)
		assert.Empty(t, f.trail.ByAction(subscription.ActionSuspendTenant))
	})

	t.Run("rows handled by a concurrent run are not reported as expired", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.startTrial(t, now.AddDate(0, 0, -1))

		// Another run expires the row between our listing and the flip;
		// the losing compare-and-set must keep it out of the summary.
		wrapped := &concurrentRunStore{MemoryStore: f.store}
		wrapped.afterList = func() {
			ok, err := f.store.TransitionSubscription(ctx, sub.ID, subscription.StatusTrial, subscription.StatusExpired, now)
			require.NoError(t, err)
			require.True(t, ok)
		}
		svc := subscription.NewService(wrapped, f.tenants, testPlans, audit.NewTrail(f.trail), subscription.Config{
			GraceWindow:        48 * time.Hour,
			ReminderThresholds: []int{7, 3, 1},
		}, subscription.WithArchiver(f.archiver))

		summary, err := svc.ExpireLapsed(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Processed)
		assert.Empty(t, summary.Expired)
		assert.Empty(t, f.trail.ByAction(subscription.ActionExpireSubscription))
	})
}

func TestServiceSendTrialReminders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("sends at the crossed threshold", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		// Ends in 2.5 days: daysRemaining = 3, threshold 3.
		sub := f.startTrial(t, now.Add(60*time.Hour))

		summary, err := f.svc.SendTrialReminders(ctx, now)
		require.NoError(t, err)

		assert.Equal(t, []uuid.UUID{sub.ID}, summary.Sent)
		require.Len(t, f.transport.Sent(), 1)
		assert.Equal(t, f.tenant.ID, f.transport.Sent()[0].TenantID)
		assert.Len(t, f.trail.ByAction(subscription.ActionSendTrialReminder), 1)
	})

	t.Run("never resends the same threshold", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.startTrial(t, now.Add(60*time.Hour))

		_, err := f.svc.SendTrialReminders(ctx, now)
		require.NoError(t, err)

		summary, err := f.svc.SendTrialReminders(ctx, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, summary.Sent)
		assert.Len(t, f.transport.Sent(), 1)
	})

	t.Run("each threshold fires once as the trial winds down", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		end := now.AddDate(0, 0, 7)
		f.startTrial(t, end)

		for _, day := range []int{0, 1, 2, 3, 4, 5, 6} {
			_, err := f.svc.SendTrialReminders(ctx, now.AddDate(0, 0, day))
			require.NoError(t, err)
		}

		// Day 0 crosses the 7-day mark, day 4 the 3-day mark, day 6 the
		// 1-day mark.
		assert.Len(t, f.transport.Sent(), 3)
	})

	t.Run("ignores trials outside every threshold", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.startTrial(t, now.AddDate(0, 0, 14))

		summary, err := f.svc.SendTrialReminders(ctx, now)
		require.NoError(t, err)
		assert.Zero(t, summary.Processed)
		assert.Empty(t, f.transport.Sent())
	})

	t.Run("transport failure consumes the slot but reports the error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		sub := f.startTrial(t, now.Add(60*time.Hour))
		f.transport.FailWith = func(notifier.Message) error {
			return errors.New("smtp down")
		}

		summary, err := f.svc.SendTrialReminders(ctx, now)
		require.NoError(t, err)
		require.Len(t, summary.Errors, 1)
		assert.Equal(t, sub.ID, summary.Errors[0].EntityID)
		assert.True(t, summary.Partial())

		// At-most-once: the failed threshold is not retried.
		f.transport.FailWith = nil
		summary, err = f.svc.SendTrialReminders(ctx, now)
		require.NoError(t, err)
		assert.Empty(t, summary.Sent)
	})
}

func TestServiceProjections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t)
	req := f.submitRequest(t, now)

	count, err := f.svc.PendingRequestCount(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = f.svc.ApproveRequest(ctx, req.ID, "admin", now)
	require.NoError(t, err)

	count, err = f.svc.PendingRequestCount(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	current, err := f.svc.CurrentSubscription(ctx, f.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, current.Status)

	history, err := f.svc.BillingHistory(ctx, f.tenant.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, int64(5000), history[0].Amount)
}
