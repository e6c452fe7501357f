package portal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/drgood/goodsale-sub002/svc/auth"
	"github.com/drgood/goodsale-sub002/svc/subscription"
	"github.com/drgood/goodsale-sub002/svc/tenant"
)

// SubscriptionPortal is the slice of the subscription service the tenant
// surface needs.
type SubscriptionPortal interface {
	CurrentSubscription(ctx context.Context, tenantID uuid.UUID) (*subscription.Subscription, error)
	PendingRequestCount(ctx context.Context, tenantID uuid.UUID) (int, error)
	BillingHistory(ctx context.Context, tenantID uuid.UUID) ([]subscription.LedgerEntry, error)
	SubmitRequest(ctx context.Context, params subscription.SubmitParams, now time.Time) (*subscription.Request, error)
}

// RenamePortal is the slice of the rename workflow the tenant surface
// needs.
type RenamePortal interface {
	Request(ctx context.Context, tenantID uuid.UUID, proposedName, proposedSubdomain, requestedBy string, now time.Time) (*tenant.NameChangeRequest, error)
	CancelFor(ctx context.Context, tenantID, requestID uuid.UUID, actor string, now time.Time) error
}

// RouterOptions configures the portal router.
type RouterOptions struct {
	Subscriptions SubscriptionPortal
	Renames       RenamePortal
	Logger        *slog.Logger

	// Clock supplies the submission time. Defaults to time.Now in UTC.
	Clock func() time.Time
}

// Router mounts the tenant self-service endpoints. Every handler needs
// both a resolved tenant (from the host middleware) and an owner session
// belonging to that tenant.
func Router(opts RouterOptions) chi.Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	r := chi.NewRouter()

	if opts.Subscriptions != nil {
		r.Get("/subscription", opts.getSubscription)
		r.Get("/billing-history", opts.getBillingHistory)
		r.Post("/subscription-requests", opts.submitSubscriptionRequest)
	}
	if opts.Renames != nil {
		r.Post("/rename-requests", opts.submitRenameRequest)
		r.Post("/rename-requests/{requestID}/cancel", opts.cancelRenameRequest)
	}
	return r
}

// caller resolves the tenant and the owner session acting on it.
func (opts RouterOptions) caller(w http.ResponseWriter, r *http.Request) (*tenant.Tenant, *auth.Session, bool) {
	tn, ok := tenant.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown store"})
		return nil, nil, false
	}

	session, err := auth.SessionFromContext(r.Context())
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return nil, nil, false
	}
	if session.TenantID != tn.ID || session.Role != auth.RoleOwner {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": auth.ErrForbidden.Error()})
		return nil, nil, false
	}
	return tn, session, true
}

func (opts RouterOptions) getSubscription(w http.ResponseWriter, r *http.Request) {
	tn, _, ok := opts.caller(w, r)
	if !ok {
		return
	}

	var body struct {
		TenantStatus    tenant.Status              `json:"tenant_status"`
		Subscription    *subscription.Subscription `json:"subscription,omitempty"`
		DaysRemaining   int                        `json:"days_remaining"`
		PendingRequests int                        `json:"pending_requests"`
	}
	body.TenantStatus = tn.Status

	sub, err := opts.Subscriptions.CurrentSubscription(r.Context(), tn.ID)
	switch {
	case err == nil:
		body.Subscription = sub
		body.DaysRemaining = sub.DaysRemainingAt(opts.Clock())
	case !errors.Is(err, subscription.ErrSubscriptionNotFound):
		opts.writeError(w, r, err)
		return
	}

	count, err := opts.Subscriptions.PendingRequestCount(r.Context(), tn.ID)
	if err != nil {
		opts.writeError(w, r, err)
		return
	}
	body.PendingRequests = count

	writeJSON(w, http.StatusOK, body)
}

func (opts RouterOptions) getBillingHistory(w http.ResponseWriter, r *http.Request) {
	tn, _, ok := opts.caller(w, r)
	if !ok {
		return
	}

	entries, err := opts.Subscriptions.BillingHistory(r.Context(), tn.ID)
	if err != nil {
		opts.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (opts RouterOptions) submitSubscriptionRequest(w http.ResponseWriter, r *http.Request) {
	tn, session, ok := opts.caller(w, r)
	if !ok {
		return
	}

	var in struct {
		PlanID        string `json:"plan_id"`
		BillingPeriod string `json:"billing_period"`
		ContactName   string `json:"contact_name"`
		ContactEmail  string `json:"contact_email"`
		ContactPhone  string `json:"contact_phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req, err := opts.Subscriptions.SubmitRequest(r.Context(), subscription.SubmitParams{
		TenantID:      tn.ID,
		PlanID:        in.PlanID,
		BillingPeriod: subscription.BillingPeriod(in.BillingPeriod),
		RequestedBy:   session.UserName,
		ContactName:   in.ContactName,
		ContactEmail:  in.ContactEmail,
		ContactPhone:  in.ContactPhone,
	}, opts.Clock())
	if err != nil {
		opts.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (opts RouterOptions) submitRenameRequest(w http.ResponseWriter, r *http.Request) {
	tn, session, ok := opts.caller(w, r)
	if !ok {
		return
	}

	var in struct {
		ProposedName      string `json:"proposed_name"`
		ProposedSubdomain string `json:"proposed_subdomain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req, err := opts.Renames.Request(r.Context(), tn.ID, in.ProposedName, in.ProposedSubdomain, session.UserName, opts.Clock())
	if err != nil {
		opts.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (opts RouterOptions) cancelRenameRequest(w http.ResponseWriter, r *http.Request) {
	tn, session, ok := opts.caller(w, r)
	if !ok {
		return
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request id"})
		return
	}

	if err := opts.Renames.CancelFor(r.Context(), tn.ID, requestID, session.UserName, opts.Clock()); err != nil {
		opts.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (opts RouterOptions) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, subscription.ErrPlanNotFound),
		errors.Is(err, tenant.ErrRequestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, subscription.ErrInvalidBillingPeriod),
		errors.Is(err, tenant.ErrInvalidSubdomain):
		status = http.StatusBadRequest
	case errors.Is(err, tenant.ErrSubdomainTaken),
		errors.Is(err, tenant.ErrOpenRequestExists),
		errors.Is(err, tenant.ErrNotPending):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		opts.Logger.ErrorContext(r.Context(), "portal action failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
