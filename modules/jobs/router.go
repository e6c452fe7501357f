package jobs

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/drgood/goodsale-sub002/svc/subscription"
	"github.com/drgood/goodsale-sub002/svc/tenant"
)

// Config carries the trigger surface settings. The secret gates every
// endpoint; triggers come from a scheduler, not from browsers.
type Config struct {
	Secret string `env:"JOBS_SECRET,required"`
	Header string `env:"JOBS_HEADER" envDefault:"X-Jobs-Secret"`
}

// SubscriptionJobs is the slice of the subscription service the trigger
// surface needs.
type SubscriptionJobs interface {
	ExpireLapsed(ctx context.Context, now time.Time) (subscription.ExpireRunSummary, error)
	SendTrialReminders(ctx context.Context, now time.Time) (subscription.ReminderRunSummary, error)
	AutoApproveStale(ctx context.Context, now time.Time) (subscription.AutoApproveRunSummary, error)
}

// RenameJobs is the slice of the rename workflow the trigger surface
// needs.
type RenameJobs interface {
	ApplyDue(ctx context.Context, now time.Time) (tenant.ApplyRunSummary, error)
	AutoApproveStale(ctx context.Context, now time.Time) (tenant.AutoApproveRunSummary, error)
}

// RouterOptions configures the jobs router.
type RouterOptions struct {
	Subscriptions SubscriptionJobs
	Renames       RenameJobs
	Logger        *slog.Logger

	// Clock supplies the evaluation time for each run. Defaults to
	// time.Now in UTC; tests inject a fixed clock.
	Clock func() time.Time
}

// Router mounts one POST endpoint per batch job. Every run is evaluated
// at a single now taken from the clock, so a long batch does not drift
// mid-run. Responses: 200 on full success, 207 when some entities failed,
// 500 when the batch itself failed.
func Router(cfg Config, opts RouterOptions) chi.Router {
	if cfg.Secret == "" {
		panic("jobs: secret cannot be empty")
	}
	if cfg.Header == "" {
		cfg.Header = "X-Jobs-Secret"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	r := chi.NewRouter()
	r.Use(requireSecret(cfg))

	if opts.Subscriptions != nil {
		r.Post("/expire-subscriptions", runJob(opts, "expire_subscriptions", opts.Subscriptions.ExpireLapsed))
		r.Post("/trial-reminders", runJob(opts, "trial_reminders", opts.Subscriptions.SendTrialReminders))
		r.Post("/auto-approve-requests", runJob(opts, "auto_approve_requests", opts.Subscriptions.AutoApproveStale))
	}
	if opts.Renames != nil {
		r.Post("/apply-renames", runJob(opts, "apply_renames", opts.Renames.ApplyDue))
		r.Post("/auto-approve-renames", runJob(opts, "auto_approve_renames", opts.Renames.AutoApproveStale))
	}
	return r
}

func requireSecret(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(cfg.Header)
			if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.Secret)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// partialReporter is implemented by all job run summaries.
type partialReporter interface {
	Partial() bool
}

type runResponse struct {
	Job     string `json:"job"`
	RanAt   string `json:"ran_at"`
	Summary any    `json:"summary"`
}

func runJob[S partialReporter](opts RouterOptions, name string, run func(ctx context.Context, now time.Time) (S, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := opts.Clock()
		log := opts.Logger.With("job", name)

		summary, err := run(r.Context(), now)
		if err != nil {
			log.ErrorContext(r.Context(), "job run failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		status := http.StatusOK
		if summary.Partial() {
			status = http.StatusMultiStatus
			log.WarnContext(r.Context(), "job run partially failed")
		} else {
			log.InfoContext(r.Context(), "job run finished")
		}
		writeJSON(w, status, runResponse{
			Job:     name,
			RanAt:   now.Format(time.RFC3339),
			Summary: summary,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
