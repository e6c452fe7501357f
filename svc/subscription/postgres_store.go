package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drgood/goodsale-sub002/pkg/pg"
	"github.com/drgood/goodsale-sub002/svc/tenant"
)

// PostgresStore implements Store on PostgreSQL. The partial unique index
// on subscriptions (tenant_id WHERE status IN ('trial','active')) backs
// the one-current-subscription invariant, and ApproveRequest runs inside
// a single transaction so a failed approval never leaves a half-resolved
// request behind.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("subscription: pool cannot be nil")
	}
	return &PostgresStore{pool: pool}
}

const subscriptionColumns = `id, tenant_id, plan_id, billing_period, status, start_date, end_date, amount, auto_renewal, created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(
		&s.ID, &s.TenantID, &s.PlanID, &s.BillingPeriod, &s.Status,
		&s.StartDate, &s.EndDate, &s.Amount, &s.AutoRenewal,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSubscriptionRows(rows pgx.Rows) ([]Subscription, error) {
	defer rows.Close()

	var out []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(
			&s.ID, &s.TenantID, &s.PlanID, &s.BillingPeriod, &s.Status,
			&s.StartDate, &s.EndDate, &s.Amount, &s.AutoRenewal,
			&s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, sub *Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sub.ID, sub.TenantID, sub.PlanID, sub.BillingPeriod, sub.Status,
		sub.StartDate, sub.EndDate, sub.Amount, sub.AutoRenewal,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return ErrActiveSubscriptionExists
	}
	return err
}

func (s *PostgresStore) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
}

func (s *PostgresStore) GetCurrentSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	return scanSubscription(s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE tenant_id = $1 AND status IN ('trial', 'active')`, tenantID))
}

func (s *PostgresStore) ListLapsed(ctx context.Context, now time.Time) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status IN ('trial', 'active') AND end_date < $1
		ORDER BY end_date`, now)
	if err != nil {
		return nil, err
	}
	return scanSubscriptionRows(rows)
}

func (s *PostgresStore) ListTrialsEndingWithin(ctx context.Context, now time.Time, within time.Duration) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = 'trial' AND end_date > $1 AND end_date <= $2
		ORDER BY end_date`, now, now.Add(within))
	if err != nil {
		return nil, err
	}
	return scanSubscriptionRows(rows)
}

func (s *PostgresStore) TransitionSubscription(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		to, at, id, from,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrSubscriptionNotFound
	}
	return false, nil
}

// SuspendTenantIfNoCurrent runs the replacement check and the status
// write as one statement so no approval can slip between them.
func (s *PostgresStore) SuspendTenantIfNoCurrent(ctx context.Context, tenantID uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
		  AND NOT EXISTS (
			SELECT 1 FROM subscriptions
			WHERE tenant_id = $3 AND status IN ('trial', 'active')
		  )`,
		tenant.StatusSuspended, at, tenantID, tenant.StatusActive,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const requestColumns = `id, tenant_id, plan_id, billing_period, total_amount, status, requested_by, requested_at, contact_name, contact_email, contact_phone, reviewed_by, reviewed_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(
		&r.ID, &r.TenantID, &r.PlanID, &r.BillingPeriod, &r.TotalAmount,
		&r.Status, &r.RequestedBy, &r.RequestedAt,
		&r.ContactName, &r.ContactEmail, &r.ContactPhone,
		&r.ReviewedBy, &r.ReviewedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) CreateRequest(ctx context.Context, r *Request) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RequestPending
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscription_requests
			(id, tenant_id, plan_id, billing_period, total_amount, status,
			 requested_by, requested_at, contact_name, contact_email, contact_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.TenantID, r.PlanID, r.BillingPeriod, r.TotalAmount, r.Status,
		r.RequestedBy, r.RequestedAt, r.ContactName, r.ContactEmail, r.ContactPhone,
	)
	return err
}

func (s *PostgresStore) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	return scanRequest(s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM subscription_requests WHERE id = $1`, id))
}

func (s *PostgresStore) ListStalePending(ctx context.Context, before time.Time) ([]Request, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+` FROM subscription_requests
		WHERE status = 'pending' AND requested_at < $1
		ORDER BY requested_at`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		var r Request
		if err := rows.Scan(
			&r.ID, &r.TenantID, &r.PlanID, &r.BillingPeriod, &r.TotalAmount,
			&r.Status, &r.RequestedBy, &r.RequestedAt,
			&r.ContactName, &r.ContactEmail, &r.ContactPhone,
			&r.ReviewedBy, &r.ReviewedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ResolveRequest(ctx context.Context, id uuid.UUID, to RequestStatus, reviewer string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscription_requests
		SET status = $1, reviewed_by = $2, reviewed_at = $3
		WHERE id = $4 AND status = 'pending'`,
		to, reviewer, at, id,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscription_requests WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrRequestNotFound
	}
	return false, nil
}

func (s *PostgresStore) ApproveRequest(ctx context.Context, params ApproveParams) (*ApprovalResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	// Lock the request row first so concurrent approvals of the same
	// request serialize here instead of racing on the unique index.
	var r Request
	err = tx.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM subscription_requests
		WHERE id = $1 FOR UPDATE`, params.RequestID,
	).Scan(
		&r.ID, &r.TenantID, &r.PlanID, &r.BillingPeriod, &r.TotalAmount,
		&r.Status, &r.RequestedBy, &r.RequestedAt,
		&r.ContactName, &r.ContactEmail, &r.ContactPhone,
		&r.ReviewedBy, &r.ReviewedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if r.Status != RequestPending {
		return nil, ErrRequestNotPending
	}

	var superseded *Subscription
	prior, err := scanSubscription(tx.QueryRow(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE tenant_id = $1 AND status IN ('trial', 'active')
		FOR UPDATE`, r.TenantID))
	switch {
	case err == nil:
		tag, err := tx.Exec(ctx, `
			UPDATE subscriptions SET status = 'cancelled', updated_at = $1
			WHERE id = $2`, params.Now, prior.ID)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 1 {
			prior.Status = StatusCancelled
			prior.UpdatedAt = params.Now
			superseded = prior
		}
	case !errors.Is(err, ErrSubscriptionNotFound):
		return nil, err
	}

	newSub := params.NewSubscription
	if newSub.ID == uuid.Nil {
		newSub.ID = uuid.New()
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		newSub.ID, newSub.TenantID, newSub.PlanID, newSub.BillingPeriod, newSub.Status,
		newSub.StartDate, newSub.EndDate, newSub.Amount, newSub.AutoRenewal,
		newSub.CreatedAt, newSub.UpdatedAt,
	); err != nil {
		if pg.IsDuplicateKeyError(err) {
			return nil, ErrActiveSubscriptionExists
		}
		return nil, err
	}

	reviewedAt := params.Now
	if _, err := tx.Exec(ctx, `
		UPDATE subscription_requests
		SET status = $1, reviewed_by = $2, reviewed_at = $3
		WHERE id = $4`,
		params.Resolution, params.Reviewer, reviewedAt, r.ID,
	); err != nil {
		return nil, err
	}
	r.Status = params.Resolution
	r.ReviewedBy = params.Reviewer
	r.ReviewedAt = &reviewedAt

	entry := LedgerEntry{
		ID:             uuid.New(),
		TenantID:       r.TenantID,
		SubscriptionID: newSub.ID,
		RequestID:      &r.ID,
		Amount:         r.TotalAmount,
		Description:    params.LedgerDescription,
		CreatedAt:      params.Now,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO billing_ledger
			(id, tenant_id, subscription_id, request_id, amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.TenantID, entry.SubscriptionID, entry.RequestID,
		entry.Amount, entry.Description, entry.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &ApprovalResult{
		Request:      r,
		Subscription: newSub,
		Superseded:   superseded,
		Ledger:       entry,
	}, nil
}

func (s *PostgresStore) MarkTrialNoticeSent(ctx context.Context, subscriptionID uuid.UUID, thresholdDays int, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO trial_notices (subscription_id, threshold_days, sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (subscription_id, threshold_days) DO NOTHING`,
		subscriptionID, thresholdDays, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListLedgerEntries(ctx context.Context, tenantID uuid.UUID) ([]LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, subscription_id, request_id, amount, description, created_at
		FROM billing_ledger
		WHERE tenant_id = $1
		ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.TenantID, &e.SubscriptionID, &e.RequestID,
			&e.Amount, &e.Description, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountPendingRequests(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM subscription_requests
		WHERE tenant_id = $1 AND status = 'pending'`, tenantID,
	).Scan(&count)
	return count, err
}
