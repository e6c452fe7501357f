package admin

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

// SubscriptionModeration is the slice of the subscription service the
// moderation surface needs.
type SubscriptionModeration interface {
	ApproveRequest(ctx context.Context, requestID uuid.UUID, reviewer string, now time.Time) (*subscription.ApprovalResult, error)
	RejectRequest(ctx context.Context, requestID uuid.UUID, reviewer string, now time.Time) error
}

// RenameModeration is the slice of the rename workflow the moderation
// surface needs.
type RenameModeration interface {
	Approve(ctx context.Context, requestID uuid.UUID, reviewer string, now time.Time) (*tenant.NameChangeRequest, error)
	Reject(ctx context.Context, requestID uuid.UUID, reviewer string, now time.Time) error
	Cancel(ctx context.Context, requestID uuid.UUID, actor string, now time.Time) error
}

// RouterOptions configures the moderation router.
type RouterOptions struct {
	Subscriptions SubscriptionModeration
	Renames       RenameModeration
	Logger        *slog.Logger

	// Clock supplies the review time. Defaults to time.Now in UTC.
	Clock func() time.Time
}

// Router mounts the administrator moderation endpoints. Every handler
// requires a platform-admin session in the request context; the session
// is resolved by upstream middleware supplied by the auth provider.
func Router(opts RouterOptions) chi.Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	r := chi.NewRouter()

	if opts.Subscriptions != nil {
		r.Route("/subscription-requests/{requestID}", func(r chi.Router) {
			r.Post("/approve", opts.approveSubscription)
			r.Post("/reject", opts.rejectSubscription)
		})
	}
	if opts.Renames != nil {
		r.Route("/rename-requests/{requestID}", func(r chi.Router) {
			r.Post("/approve", opts.approveRename)
			r.Post("/reject", opts.rejectRename)
			r.Post("/cancel", opts.cancelRename)
		})
	}
	return r
}

// reviewRequest resolves the acting administrator and the target request
// id shared by every moderation handler.
func (opts RouterOptions) reviewRequest(w http.ResponseWriter, r *http.Request) (*auth.Session, uuid.UUID, bool) {
	session, err := auth.RequireSuperAdmin(r.Context())
	if err != nil {
		status := http.StatusForbidden
		if errors.Is(err, auth.ErrAuthRequired) {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return nil, uuid.Nil, false
	}

	requestID, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request id"})
		return nil, uuid.Nil, false
	}
	return session, requestID, true
}

func (opts RouterOptions) approveSubscription(w http.ResponseWriter, r *http.Request) {
	session, requestID, ok := opts.reviewRequest(w, r)
	if !ok {
		return
	}

	result, err := opts.Subscriptions.ApproveRequest(r.Context(), requestID, session.UserName, opts.Clock())
	if err != nil {
		opts.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (opts RouterOptions) rejectSubscription(w http.ResponseWriter, r *http.Request) {
	session, requestID, ok := opts.reviewRequest(w, r)
	if !ok {
		return
	}

	if err := opts.Subscriptions.RejectRequest(r.Context(), requestID, session.UserName, opts.Clock()); err != nil {
		opts.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (opts RouterOptions) approveRename(w http.ResponseWriter, r *http.Request) {
	session, requestID, ok := opts.reviewRequest(w, r)
	if !ok {
		return
	}

	req, err := opts.Renames.Approve(r.Context(), requestID, session.UserName, opts.Clock())
	if err != nil {
		opts.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (opts RouterOptions) rejectRename(w http.ResponseWriter, r *http.Request) {
	session, requestID, ok := opts.reviewRequest(w, r)
	if !ok {
		return
	}

	if err := opts.Renames.Reject(r.Context(), requestID, session.UserName, opts.Clock()); err != nil {
		opts.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (opts RouterOptions) cancelRename(w http.ResponseWriter, r *http.Request) {
	session, requestID, ok := opts.reviewRequest(w, r)
	if !ok {
		return
	}

	if err := opts.Renames.Cancel(r.Context(), requestID, session.UserName, opts.Clock()); err != nil {
		opts.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (opts RouterOptions) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, subscription.ErrRequestNotFound),
		errors.Is(err, tenant.ErrRequestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, subscription.ErrRequestNotPending),
		errors.Is(err, tenant.ErrNotPending):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		opts.Logger.ErrorContext(r.Context(), "moderation action failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
