package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/drgood/goodsale-sub002/pkg/audit"
	"github.com/drgood/goodsale-sub002/pkg/notifier"
	"github.com/drgood/goodsale-sub002/svc/tenant"
)

// Audit actions emitted by the subscription lifecycle.
const (
	ActionStartTrial         = "START_TRIAL"
	ActionSubmitRequest      = "SUBMIT_REQUEST"
	ActionApproveRequest     = "APPROVE_REQUEST"
	ActionAutoApproveRequest = "AUTO_APPROVE_REQUEST"
	ActionRejectRequest      = "REJECT_REQUEST"
	ActionExpireSubscription = "EXPIRE_SUBSCRIPTION"
	ActionCancelSubscription = "CANCEL_SUBSCRIPTION"
	ActionSuspendTenant      = "SUSPEND_TENANT"
	ActionReactivateTenant   = "REACTIVATE_TENANT"
	ActionSendTrialReminder  = "SEND_TRIAL_REMINDER"
)

// Config carries the lifecycle timing knobs.
type Config struct {
	// GraceWindow is how long a pending request may sit unmoderated
	// before the auto-approve sweep resolves it.
	GraceWindow time.Duration `env:"REQUEST_GRACE_WINDOW" envDefault:"48h"`

	// ReminderThresholds are the days-remaining marks at which trial
	// reminders go out. Each (subscription, threshold) pair fires at most
	// once.
	ReminderThresholds []int `env:"TRIAL_REMINDER_DAYS" envDefault:"7,3,1" envSeparator:","`
}

// Archiver flags a suspended tenant's operational data as inaccessible.
// The lifecycle engine decides which tenants qualify and when; the
// archival mechanics live behind this interface.
type Archiver interface {
	ArchiveTenantData(ctx context.Context, tenantID uuid.UUID) error
}

// NoopArchiver satisfies Archiver without doing anything.
type NoopArchiver struct{}

func (NoopArchiver) ArchiveTenantData(context.Context, uuid.UUID) error { return nil }

// EntityError reports a single entity failure inside a batch job run.
type EntityError struct {
	EntityID uuid.UUID `json:"entity_id"`
	Error    string    `json:"error"`
}

// ExpireRunSummary is the structured result of one expiration job run.
type ExpireRunSummary struct {
	Processed          int           `json:"processed"`
	Expired            []uuid.UUID   `json:"expired,omitempty"`
	SuspendedTenantIDs []uuid.UUID   `json:"suspended_tenant_ids,omitempty"`
	Errors             []EntityError `json:"errors,omitempty"`
}

// Partial reports whether some entities failed while others succeeded.
func (s ExpireRunSummary) Partial() bool { return len(s.Errors) > 0 }

// ReminderRunSummary is the structured result of one trial reminder run.
type ReminderRunSummary struct {
	Processed int           `json:"processed"`
	Sent      []uuid.UUID   `json:"sent,omitempty"`
	Errors    []EntityError `json:"errors,omitempty"`
}

func (s ReminderRunSummary) Partial() bool { return len(s.Errors) > 0 }

// AutoApproveRunSummary is the structured result of one auto-approve
// sweep.
type AutoApproveRunSummary struct {
	Processed int           `json:"processed"`
	Approved  []uuid.UUID   `json:"approved,omitempty"`
	Errors    []EntityError `json:"errors,omitempty"`
}

func (s AutoApproveRunSummary) Partial() bool { return len(s.Errors) > 0 }

// Service drives the subscription lifecycle: trials, requests, approvals,
// expiration and reminders. All time-dependent operations take an
// explicit now so job runs are deterministic and testable.
type Service struct {
	store     Store
	tenants   tenant.Store
	plans     PlansSource
	trail     *audit.Trail
	transport notifier.Transport
	archiver  Archiver
	log       *slog.Logger
	cfg       Config
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTransport sets the notification transport for trial reminders and
// approval notices.
func WithTransport(t notifier.Transport) ServiceOption {
	return func(s *Service) {
		if t != nil {
			s.transport = t
		}
	}
}

// WithArchiver sets the collaborator that archives suspended tenants'
// data.
func WithArchiver(a Archiver) ServiceOption {
	return func(s *Service) {
		if a != nil {
			s.archiver = a
		}
	}
}

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService wires the lifecycle engine. Panics on nil collaborators to
// fail fast at startup.
func NewService(store Store, tenants tenant.Store, plans PlansSource, trail *audit.Trail, cfg Config, opts ...ServiceOption) *Service {
	if store == nil {
		panic("subscription: store cannot be nil")
	}
	if tenants == nil {
		panic("subscription: tenant store cannot be nil")
	}
	if plans == nil {
		panic("subscription: plans source cannot be nil")
	}
	if trail == nil {
		panic("subscription: audit trail cannot be nil")
	}
	if len(cfg.ReminderThresholds) == 0 {
		cfg.ReminderThresholds = []int{7, 3, 1}
	}
	cfg.ReminderThresholds = slices.Clone(cfg.ReminderThresholds)
	slices.Sort(cfg.ReminderThresholds)

	s := &Service{
		store:     store,
		tenants:   tenants,
		plans:     plans,
		trail:     trail,
		transport: notifier.NoopTransport{},
		archiver:  NoopArchiver{},
		log:       slog.Default(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) plan(ctx context.Context, planID string) (Plan, error) {
	plans, err := s.plans.Load(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("loading plan catalog: %w", err)
	}
	p, ok := plans[planID]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// StartTrial opens a trial subscription for a tenant on the given plan.
// Returns ErrActiveSubscriptionExists when the tenant already has a
// current subscription, and ErrPlanNotFound for plans without a trial.
func (s *Service) StartTrial(ctx context.Context, tenantID uuid.UUID, planID string, now time.Time) (*Subscription, error) {
	p, err := s.plan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if p.TrialDays <= 0 {
		return nil, fmt.Errorf("plan %q has no trial period", planID)
	}

	if _, err := s.tenants.GetByID(ctx, tenantID); err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:            uuid.New(),
		TenantID:      tenantID,
		PlanID:        planID,
		BillingPeriod: PeriodMonthly,
		Status:        StatusTrial,
		StartDate:     now,
		EndDate:       p.TrialEndsAt(now),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	if err := s.tenants.UpdatePlan(ctx, tenantID, planID, now); err != nil {
		s.log.WarnContext(ctx, "failed to update tenant plan reference",
			"tenant_id", tenantID.String(), "error", err)
	}

	s.trail.Record(ctx, ActionStartTrial,
		audit.WithEntity("subscription", sub.ID),
		audit.WithDetail("tenant_id", tenantID.String()),
		audit.WithDetail("plan_id", planID),
		audit.WithDetail("end_date", sub.EndDate),
	)
	return sub, nil
}

// SubmitParams is the input for a new subscription request.
type SubmitParams struct {
	TenantID      uuid.UUID
	PlanID        string
	BillingPeriod BillingPeriod
	RequestedBy   string
	ContactName   string
	ContactEmail  string
	ContactPhone  string
}

// SubmitRequest files a pending request for a paid term. The total amount
// is computed from the catalog at submission time and frozen on the
// request, so later plan price changes do not affect it.
func (s *Service) SubmitRequest(ctx context.Context, params SubmitParams, now time.Time) (*Request, error) {
	if !params.BillingPeriod.Valid() {
		return nil, ErrInvalidBillingPeriod
	}

	p, err := s.plan(ctx, params.PlanID)
	if err != nil {
		return nil, err
	}

	if _, err := s.tenants.GetByID(ctx, params.TenantID); err != nil {
		return nil, err
	}

	req := &Request{
		ID:            uuid.New(),
		TenantID:      params.TenantID,
		PlanID:        params.PlanID,
		BillingPeriod: params.BillingPeriod,
		TotalAmount:   p.AmountFor(params.BillingPeriod),
		Status:        RequestPending,
		RequestedBy:   params.RequestedBy,
		RequestedAt:   now,
		ContactName:   params.ContactName,
		ContactEmail:  params.ContactEmail,
		ContactPhone:  params.ContactPhone,
	}
	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	s.trail.Record(ctx, ActionSubmitRequest,
		audit.WithEntity("subscription_request", req.ID),
		audit.WithActor(params.RequestedBy),
		audit.WithDetail("tenant_id", params.TenantID.String()),
		audit.WithDetail("plan_id", params.PlanID),
		audit.WithDetail("total_amount", req.TotalAmount),
	)
	return req, nil
}

// ApproveRequest resolves a pending request: the new active subscription
// is created, any current subscription is cancelled and a ledger entry is
// recorded, all atomically. Returns ErrRequestNotPending when a
// concurrent actor resolved the request first.
func (s *Service) ApproveRequest(ctx context.Context, requestID uuid.UUID, reviewer string, now time.Time) (*ApprovalResult, error) {
	return s.approve(ctx, requestID, RequestApproved, reviewer, now)
}

func (s *Service) approve(ctx context.Context, requestID uuid.UUID, resolution RequestStatus, reviewer string, now time.Time) (*ApprovalResult, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestPending {
		return nil, ErrRequestNotPending
	}

	newSub := Subscription{
		ID:            uuid.New(),
		TenantID:      req.TenantID,
		PlanID:        req.PlanID,
		BillingPeriod: req.BillingPeriod,
		Status:        StatusActive,
		StartDate:     now,
		EndDate:       req.BillingPeriod.AddTo(now),
		Amount:        req.TotalAmount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	result, err := s.store.ApproveRequest(ctx, ApproveParams{
		RequestID:         requestID,
		Resolution:        resolution,
		Reviewer:          reviewer,
		Now:               now,
		NewSubscription:   newSub,
		LedgerDescription: fmt.Sprintf("%s subscription, %s term", req.PlanID, req.BillingPeriod),
	})
	if err != nil {
		return nil, err
	}

	// Everything past the atomic unit is best effort: the approval is
	// already durable, so failures here are logged, not propagated.
	if err := s.tenants.UpdatePlan(ctx, req.TenantID, req.PlanID, now); err != nil {
		s.log.WarnContext(ctx, "failed to update tenant plan reference",
			"tenant_id", req.TenantID.String(), "error", err)
	}

	action := ActionApproveRequest
	if resolution == RequestAutoApproved {
		action = ActionAutoApproveRequest
	}
	s.trail.Record(ctx, action,
		audit.WithEntity("subscription_request", requestID),
		audit.WithActor(reviewer),
		audit.WithDetail("tenant_id", req.TenantID.String()),
		audit.WithDetail("subscription_id", result.Subscription.ID.String()),
		audit.WithDetail("amount", result.Ledger.Amount),
	)
	if result.Superseded != nil {
		s.trail.Record(ctx, ActionCancelSubscription,
			audit.WithEntity("subscription", result.Superseded.ID),
			audit.WithActor(reviewer),
			audit.WithDetail("superseded_by", result.Subscription.ID.String()),
		)
	}

	s.reactivateTenant(ctx, req.TenantID, reviewer, now)

	if err := s.transport.Send(ctx, notifier.Message{
		TenantID: req.TenantID,
		Channel:  notifier.ChannelEmail,
		Title:    "Subscription activated",
		Body:     fmt.Sprintf("Your %s subscription is active until %s.", req.PlanID, result.Subscription.EndDate.Format("2006-01-02")),
	}); err != nil {
		s.log.WarnContext(ctx, "failed to notify tenant about approval",
			"tenant_id", req.TenantID.String(), "error", err)
	}
	return result, nil
}

// reactivateTenant lifts a suspension once the tenant has a paid
// subscription again. Compare-and-set, so tenants that were never
// suspended are untouched.
func (s *Service) reactivateTenant(ctx context.Context, tenantID uuid.UUID, actor string, now time.Time) {
	ok, err := s.tenants.UpdateStatus(ctx, tenantID, tenant.StatusSuspended, tenant.StatusActive, now)
	if err != nil {
		s.log.WarnContext(ctx, "failed to reactivate tenant",
			"tenant_id", tenantID.String(), "error", err)
		return
	}
	if ok {
		s.trail.Record(ctx, ActionReactivateTenant,
			audit.WithEntity("tenant", tenantID),
			audit.WithActor(actor),
		)
	}
}

// RejectRequest resolves a pending request without creating a
// subscription or ledger entry. Manual only.
func (s *Service) RejectRequest(ctx context.Context, requestID uuid.UUID, reviewer string, now time.Time) error {
	ok, err := s.store.ResolveRequest(ctx, requestID, RequestRejected, reviewer, now)
	if err != nil {
		return err
	}
	if !ok {
		return ErrRequestNotPending
	}

	s.trail.Record(ctx, ActionRejectRequest,
		audit.WithEntity("subscription_request", requestID),
		audit.WithActor(reviewer),
	)
	return nil
}

// AutoApproveStale approves every pending request older than the grace
// window using the same atomic logic as manual approval, recording the
// system identity as the actor. Requests resolved by a concurrent actor
// are skipped silently.
func (s *Service) AutoApproveStale(ctx context.Context, now time.Time) (AutoApproveRunSummary, error) {
	stale, err := s.store.ListStalePending(ctx, now.Add(-s.cfg.GraceWindow))
	if err != nil {
		return AutoApproveRunSummary{}, fmt.Errorf("listing stale requests: %w", err)
	}

	summary := AutoApproveRunSummary{}
	for _, req := range stale {
		summary.Processed++

		if _, err := s.approve(ctx, req.ID, RequestAutoApproved, audit.SystemActor, now); err != nil {
			if errors.Is(err, ErrRequestNotPending) {
				continue
			}
			summary.Errors = append(summary.Errors, EntityError{EntityID: req.ID, Error: err.Error()})
			s.log.ErrorContext(ctx, "failed to auto-approve request",
				"request_id", req.ID.String(),
				"tenant_id", req.TenantID.String(),
				"error", err,
			)
			continue
		}
		summary.Approved = append(summary.Approved, req.ID)
	}
	return summary, nil
}

// ExpireLapsed moves every current subscription past its end date to
// expired and suspends tenants left without a replacement. Safe to run
// concurrently: both the subscription transition and the tenant
// suspension are compare-and-set, so an overlapping run sees no-ops.
func (s *Service) ExpireLapsed(ctx context.Context, now time.Time) (ExpireRunSummary, error) {
	lapsed, err := s.store.ListLapsed(ctx, now)
	if err != nil {
		return ExpireRunSummary{}, fmt.Errorf("listing lapsed subscriptions: %w", err)
	}

	summary := ExpireRunSummary{}
	for _, sub := range lapsed {
		summary.Processed++

		expired, suspended, err := s.expireOne(ctx, sub, now)
		if err != nil {
			summary.Errors = append(summary.Errors, EntityError{EntityID: sub.ID, Error: err.Error()})
			s.log.ErrorContext(ctx, "failed to expire subscription",
				"subscription_id", sub.ID.String(),
				"tenant_id", sub.TenantID.String(),
				"error", err,
			)
			continue
		}
		if expired {
			summary.Expired = append(summary.Expired, sub.ID)
		}
		if suspended {
			summary.SuspendedTenantIDs = append(summary.SuspendedTenantIDs, sub.TenantID)
		}
	}
	return summary, nil
}

func (s *Service) expireOne(ctx context.Context, sub Subscription, now time.Time) (expired, suspended bool, err error) {
	ok, err := s.store.TransitionSubscription(ctx, sub.ID, sub.Status, StatusExpired, now)
	if err != nil {
		return false, false, err
	}
	if !ok {
		// Already expired or superseded by an approval between our
		// listing and the flip. Nothing left to do for this row.
		return false, false, nil
	}

	s.trail.Record(ctx, ActionExpireSubscription,
		audit.WithEntity("subscription", sub.ID),
		audit.WithActor(audit.SystemActor),
		audit.WithDetail("tenant_id", sub.TenantID.String()),
		audit.WithDetail("end_date", sub.EndDate),
	)

	// The store checks for a replacement subscription and suspends in
	// one atomic unit. An approval landing anywhere around this call
	// either blocks the suspension or reactivates the tenant afterwards.
	ok, err = s.store.SuspendTenantIfNoCurrent(ctx, sub.TenantID, now)
	if err != nil {
		return true, false, err
	}
	if !ok {
		return true, false, nil
	}

	if err := s.archiver.ArchiveTenantData(ctx, sub.TenantID); err != nil {
		s.log.WarnContext(ctx, "failed to archive tenant data",
			"tenant_id", sub.TenantID.String(), "error", err)
	}

	s.trail.Record(ctx, ActionSuspendTenant,
		audit.WithEntity("tenant", sub.TenantID),
		audit.WithActor(audit.SystemActor),
		audit.WithDetail("subscription_id", sub.ID.String()),
	)
	return true, true, nil
}

// SendTrialReminders dispatches expiry reminders for trials approaching
// their end date. Each (subscription, threshold) pair fires at most once
// across all runs: the notice slot is consumed before the send, so a
// transport failure costs the reminder rather than risking a duplicate.
func (s *Service) SendTrialReminders(ctx context.Context, now time.Time) (ReminderRunSummary, error) {
	maxDays := s.cfg.ReminderThresholds[len(s.cfg.ReminderThresholds)-1]
	trials, err := s.store.ListTrialsEndingWithin(ctx, now, time.Duration(maxDays)*24*time.Hour)
	if err != nil {
		return ReminderRunSummary{}, fmt.Errorf("listing ending trials: %w", err)
	}

	summary := ReminderRunSummary{}
	for _, sub := range trials {
		summary.Processed++

		days := sub.DaysRemainingAt(now)
		threshold, ok := s.thresholdFor(days)
		if !ok {
			continue
		}

		sent, err := s.store.MarkTrialNoticeSent(ctx, sub.ID, threshold, now)
		if err != nil {
			summary.Errors = append(summary.Errors, EntityError{EntityID: sub.ID, Error: err.Error()})
			continue
		}
		if !sent {
			continue
		}

		if err := s.transport.Send(ctx, notifier.Message{
			TenantID: sub.TenantID,
			Channel:  notifier.ChannelEmail,
			Title:    "Your trial is ending soon",
			Body:     fmt.Sprintf("Your trial ends in %d day(s), on %s. Choose a plan to keep your store open.", days, sub.EndDate.Format("2006-01-02")),
		}); err != nil {
			summary.Errors = append(summary.Errors, EntityError{EntityID: sub.ID, Error: err.Error()})
			s.log.ErrorContext(ctx, "failed to send trial reminder",
				"subscription_id", sub.ID.String(),
				"tenant_id", sub.TenantID.String(),
				"threshold_days", threshold,
				"error", err,
			)
			continue
		}

		summary.Sent = append(summary.Sent, sub.ID)
		s.trail.Record(ctx, ActionSendTrialReminder,
			audit.WithEntity("subscription", sub.ID),
			audit.WithActor(audit.SystemActor),
			audit.WithDetail("tenant_id", sub.TenantID.String()),
			audit.WithDetail("threshold_days", threshold),
		)
	}
	return summary, nil
}

// thresholdFor maps a days-remaining count to the threshold it just
// crossed: the smallest configured threshold that is >= daysRemaining.
func (s *Service) thresholdFor(daysRemaining int) (int, bool) {
	if daysRemaining <= 0 {
		return 0, false
	}
	for _, t := range s.cfg.ReminderThresholds {
		if t >= daysRemaining {
			return t, true
		}
	}
	return 0, false
}

// CurrentSubscription returns the tenant's trial or active subscription,
// or ErrSubscriptionNotFound when the tenant has none.
func (s *Service) CurrentSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	return s.store.GetCurrentSubscription(ctx, tenantID)
}

// PendingRequestCount returns how many of the tenant's requests still
// wait for moderation.
func (s *Service) PendingRequestCount(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return s.store.CountPendingRequests(ctx, tenantID)
}

// BillingHistory returns the tenant's ledger, newest first.
func (s *Service) BillingHistory(ctx context.Context, tenantID uuid.UUID) ([]LedgerEntry, error) {
	return s.store.ListLedgerEntries(ctx, tenantID)
}
