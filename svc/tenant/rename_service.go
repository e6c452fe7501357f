package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/drgood/goodsale-sub002/pkg/audit"
	"github.com/drgood/goodsale-sub002/pkg/notifier"
)

// Audit actions emitted by the rename workflow.
const (
	ActionRequestRename     = "REQUEST_RENAME"
	ActionScheduleRename    = "SCHEDULE_RENAME"
	ActionRejectRename      = "REJECT_RENAME"
	ActionCancelRename      = "CANCEL_RENAME"
	ActionApplyRename       = "APPLY_RENAME"
	ActionAutoApproveRename = "AUTO_APPROVE_RENAME"
)

// RenameConfig carries the workflow timing knobs.
type RenameConfig struct {
	// CoolingOff is the delay between approval and the rename taking
	// effect, giving DNS caches time to settle and the tenant a window to
	// cancel.
	CoolingOff time.Duration `env:"RENAME_COOLING_OFF" envDefault:"24h"`

	// GraceWindow is how long a pending request may sit unmoderated before
	// the auto-approve sweep resolves it.
	GraceWindow time.Duration `env:"RENAME_GRACE_WINDOW" envDefault:"48h"`
}

// EntityError reports a single entity failure inside a batch job run.
type EntityError struct {
	EntityID uuid.UUID `json:"entity_id"`
	Error    string    `json:"error"`
}

// ApplyRunSummary is the structured result of one apply-renames job run.
type ApplyRunSummary struct {
	Processed int           `json:"processed"`
	Applied   []uuid.UUID   `json:"applied,omitempty"`
	Errors    []EntityError `json:"errors,omitempty"`
}

// Partial reports whether some entities failed while others succeeded.
func (s ApplyRunSummary) Partial() bool { return len(s.Errors) > 0 }

// AutoApproveRunSummary is the structured result of one auto-approve
// sweep.
type AutoApproveRunSummary struct {
	Processed int           `json:"processed"`
	Approved  []uuid.UUID   `json:"approved,omitempty"`
	Errors    []EntityError `json:"errors,omitempty"`
}

func (s AutoApproveRunSummary) Partial() bool { return len(s.Errors) > 0 }

// RenameService drives the tenant name change workflow.
type RenameService struct {
	tenants   Store
	requests  NameChangeStore
	trail     *audit.Trail
	transport notifier.Transport
	cache     Cache
	log       *slog.Logger
	cfg       RenameConfig
}

// RenameServiceOption configures a RenameService.
type RenameServiceOption func(*RenameService)

// WithRenameTransport sets the notification transport used to inform
// tenants when a rename is applied.
func WithRenameTransport(t notifier.Transport) RenameServiceOption {
	return func(s *RenameService) {
		if t != nil {
			s.transport = t
		}
	}
}

// WithRenameCache sets the resolver cache to invalidate after a rename.
func WithRenameCache(c Cache) RenameServiceOption {
	return func(s *RenameService) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithRenameLogger sets the operational logger.
func WithRenameLogger(log *slog.Logger) RenameServiceOption {
	return func(s *RenameService) {
		if log != nil {
			s.log = log
		}
	}
}

// NewRenameService wires the workflow. Panics on nil stores or trail to
// fail fast at startup.
func NewRenameService(tenants Store, requests NameChangeStore, trail *audit.Trail, cfg RenameConfig, opts ...RenameServiceOption) *RenameService {
	if tenants == nil {
		panic("tenant: tenant store cannot be nil")
	}
	if requests == nil {
		panic("tenant: request store cannot be nil")
	}
	if trail == nil {
		panic("tenant: audit trail cannot be nil")
	}

	s := &RenameService{
		tenants:   tenants,
		requests:  requests,
		trail:     trail,
		transport: notifier.NoopTransport{},
		cache:     NoOpCache{},
		log:       slog.Default(),
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request submits a new rename request for a tenant. The request starts
// pending and waits for an administrator or the auto-approve sweep.
func (s *RenameService) Request(ctx context.Context, tenantID uuid.UUID, proposedName, proposedSubdomain, requestedBy string, now time.Time) (*NameChangeRequest, error) {
	if proposedName == "" {
		return nil, errors.New("proposed name is required")
	}
	if !ValidSubdomain(proposedSubdomain) {
		return nil, ErrInvalidSubdomain
	}

	if _, err := s.tenants.GetByID(ctx, tenantID); err != nil {
		return nil, err
	}

	// Early duplicate check; the store's uniqueness guarantee is what
	// actually protects against a concurrent insert.
	if _, err := s.tenants.GetBySubdomain(ctx, proposedSubdomain); err == nil {
		return nil, ErrSubdomainTaken
	} else if !errors.Is(err, ErrTenantNotFound) {
		return nil, err
	}

	req := &NameChangeRequest{
		ID:                uuid.New(),
		TenantID:          tenantID,
		ProposedName:      proposedName,
		ProposedSubdomain: proposedSubdomain,
		Status:            RenamePending,
		RequestedBy:       requestedBy,
		RequestedAt:       now,
	}
	if err := s.requests.CreateRequest(ctx, req); err != nil {
		return nil, err
	}

	s.trail.Record(ctx, ActionRequestRename,
		audit.WithEntity("tenant_name_change_request", req.ID),
		audit.WithActor(requestedBy),
		audit.WithDetail("tenant_id", tenantID.String()),
		audit.WithDetail("proposed_subdomain", proposedSubdomain),
	)
	return req, nil
}

// Approve schedules a pending request for application after the cooling
// off period. Returns ErrNotPending when a concurrent actor resolved the
// request first.
func (s *RenameService) Approve(ctx context.Context, requestID uuid.UUID, reviewer string, now time.Time) (*NameChangeRequest, error) {
	effectiveAt := now.Add(s.cfg.CoolingOff)
	ok, err := s.requests.TransitionRequest(ctx, requestID, RenamePending, RenameScheduled, RequestMutation{
		EffectiveAt: &effectiveAt,
		ReviewedBy:  reviewer,
		ReviewedAt:  &now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotPending
	}

	s.trail.Record(ctx, ActionScheduleRename,
		audit.WithEntity("tenant_name_change_request", requestID),
		audit.WithActor(reviewer),
		audit.WithDetail("effective_at", effectiveAt),
	)
	return s.requests.GetRequest(ctx, requestID)
}

// Reject resolves a pending request without renaming. Manual only.
func (s *RenameService) Reject(ctx context.Context, requestID uuid.UUID, reviewer string, now time.Time) error {
	ok, err := s.requests.TransitionRequest(ctx, requestID, RenamePending, RenameRejected, RequestMutation{
		ReviewedBy: reviewer,
		ReviewedAt: &now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotPending
	}

	s.trail.Record(ctx, ActionRejectRename,
		audit.WithEntity("tenant_name_change_request", requestID),
		audit.WithActor(reviewer),
	)
	return nil
}

// Cancel withdraws an open request before it is applied. Both pending and
// scheduled requests can be cancelled; applied ones cannot.
func (s *RenameService) Cancel(ctx context.Context, requestID uuid.UUID, actor string, now time.Time) error {
	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}

	from := req.Status
	if !CanTransitionRename(from, RenameCancelled) {
		return ErrNotPending
	}

	ok, err := s.requests.TransitionRequest(ctx, requestID, from, RenameCancelled, RequestMutation{
		ReviewedBy: actor,
		ReviewedAt: &now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotPending
	}

	s.trail.Record(ctx, ActionCancelRename,
		audit.WithEntity("tenant_name_change_request", requestID),
		audit.WithActor(actor),
	)
	return nil
}

// CancelFor withdraws a tenant's own open request. Requests belonging to
// another tenant read as not found so the surface does not leak request
// ids across tenants.
func (s *RenameService) CancelFor(ctx context.Context, tenantID, requestID uuid.UUID, actor string, now time.Time) error {
	req, err := s.requests.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.TenantID != tenantID {
		return ErrRequestNotFound
	}
	return s.Cancel(ctx, requestID, actor, now)
}

// ApplyDue performs every rename whose effective time has passed. Safe to
// run frequently and concurrently: the rename itself is idempotent for
// identical values and the status flip is compare-and-set, so a request
// finished by an overlapping run is skipped silently.
func (s *RenameService) ApplyDue(ctx context.Context, now time.Time) (ApplyRunSummary, error) {
	due, err := s.requests.ListDue(ctx, now)
	if err != nil {
		return ApplyRunSummary{}, fmt.Errorf("listing due rename requests: %w", err)
	}

	summary := ApplyRunSummary{}
	for _, req := range due {
		summary.Processed++

		if err := s.applyOne(ctx, req, now); err != nil {
			summary.Errors = append(summary.Errors, EntityError{EntityID: req.ID, Error: err.Error()})
			s.log.ErrorContext(ctx, "failed to apply rename",
				"request_id", req.ID.String(),
				"tenant_id", req.TenantID.String(),
				"error", err,
			)
			continue
		}
		summary.Applied = append(summary.Applied, req.ID)
	}
	return summary, nil
}

func (s *RenameService) applyOne(ctx context.Context, req NameChangeRequest, now time.Time) error {
	tenant, err := s.tenants.GetByID(ctx, req.TenantID)
	if err != nil {
		return err
	}
	oldSubdomain := tenant.Subdomain

	// Rename before the status flip: re-running the rename with identical
	// values is harmless, while flipping first could strand an unapplied
	// rename if the process dies in between.
	if err := s.tenants.Rename(ctx, req.TenantID, req.ProposedName, req.ProposedSubdomain, now); err != nil {
		return err
	}

	ok, err := s.requests.TransitionRequest(ctx, req.ID, req.Status, RenameApplied, RequestMutation{
		AppliedAt: &now,
	})
	if err != nil {
		return err
	}
	if !ok {
		// A concurrent run finished this request between our listing and
		// the flip. The rename wrote identical values, so nothing to undo.
		return nil
	}

	if err := s.cache.Delete(ctx, oldSubdomain); err != nil {
		s.log.WarnContext(ctx, "failed to invalidate tenant cache", "subdomain", oldSubdomain, "error", err)
	}
	if err := s.cache.Delete(ctx, req.ProposedSubdomain); err != nil {
		s.log.WarnContext(ctx, "failed to invalidate tenant cache", "subdomain", req.ProposedSubdomain, "error", err)
	}

	s.trail.Record(ctx, ActionApplyRename,
		audit.WithEntity("tenant", req.TenantID),
		audit.WithActor(audit.SystemActor),
		audit.WithDetail("request_id", req.ID.String()),
		audit.WithDetail("old_subdomain", oldSubdomain),
		audit.WithDetail("new_subdomain", req.ProposedSubdomain),
	)

	if err := s.transport.Send(ctx, notifier.Message{
		TenantID: req.TenantID,
		Channel:  notifier.ChannelEmail,
		Title:    "Your store address has changed",
		Body:     fmt.Sprintf("Your store is now reachable at %q.", req.ProposedSubdomain),
	}); err != nil {
		s.log.WarnContext(ctx, "failed to notify tenant about rename",
			"tenant_id", req.TenantID.String(),
			"error", err,
		)
	}
	return nil
}

// AutoApproveStale moves pending requests older than the grace window to
// auto_approved with a fresh effective time; the apply job finishes them
// later. Requests resolved by a concurrent actor are skipped silently.
func (s *RenameService) AutoApproveStale(ctx context.Context, now time.Time) (AutoApproveRunSummary, error) {
	stale, err := s.requests.ListStalePending(ctx, now.Add(-s.cfg.GraceWindow))
	if err != nil {
		return AutoApproveRunSummary{}, fmt.Errorf("listing stale rename requests: %w", err)
	}

	summary := AutoApproveRunSummary{}
	for _, req := range stale {
		summary.Processed++

		effectiveAt := now.Add(s.cfg.CoolingOff)
		ok, err := s.requests.TransitionRequest(ctx, req.ID, RenamePending, RenameAutoApproved, RequestMutation{
			EffectiveAt: &effectiveAt,
			ReviewedBy:  audit.SystemActor,
			ReviewedAt:  &now,
		})
		if err != nil {
			summary.Errors = append(summary.Errors, EntityError{EntityID: req.ID, Error: err.Error()})
			continue
		}
		if !ok {
			continue
		}

		summary.Approved = append(summary.Approved, req.ID)
		s.trail.Record(ctx, ActionAutoApproveRename,
			audit.WithEntity("tenant_name_change_request", req.ID),
			audit.WithActor(audit.SystemActor),
			audit.WithDetail("effective_at", effectiveAt),
		)
	}
	return summary, nil
}
