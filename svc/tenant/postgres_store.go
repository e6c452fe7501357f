package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/drgood/goodsale-sub002/pkg/pg"
)

// PostgresStore implements Store and NameChangeStore on PostgreSQL. The
// schema's unique indexes (tenants.subdomain, one open rename request per
// tenant) back the invariants the interface promises.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("tenant: pool cannot be nil")
	}
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, t *Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, subdomain, status, plan_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.Name, t.Subdomain, t.Status, t.PlanID, t.CreatedAt, t.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		return ErrSubdomainTaken
	}
	return err
}

const tenantColumns = `id, name, subdomain, status, plan_id, created_at, updated_at`

func scanTenant(row pgx.Row) (*Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Subdomain, &t.Status, &t.PlanID, &t.CreatedAt, &t.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

func (s *PostgresStore) GetBySubdomain(ctx context.Context, subdomain string) (*Tenant, error) {
	return scanTenant(s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE subdomain = $1`, subdomain))
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		to, at, id, from,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Rename(ctx context.Context, id uuid.UUID, name, subdomain string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants SET name = $1, subdomain = $2, updated_at = $3
		WHERE id = $4`,
		name, subdomain, at, id,
	)
	if pg.IsDuplicateKeyError(err) {
		return ErrSubdomainTaken
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (s *PostgresStore) UpdatePlan(ctx context.Context, id uuid.UUID, planID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants SET plan_id = $1, updated_at = $2
		WHERE id = $3`,
		planID, at, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (s *PostgresStore) CreateRequest(ctx context.Context, r *NameChangeRequest) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RenamePending
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenant_name_change_requests
			(id, tenant_id, proposed_name, proposed_subdomain, status, requested_by, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.TenantID, r.ProposedName, r.ProposedSubdomain, r.Status, r.RequestedBy, r.RequestedAt,
	)
	// The partial unique index on open requests turns a concurrent second
	// submission into a duplicate key error.
	if pg.IsDuplicateKeyError(err) {
		return ErrOpenRequestExists
	}
	return err
}

const renameRequestColumns = `id, tenant_id, proposed_name, proposed_subdomain, status,
	requested_by, requested_at, effective_at, reviewed_by, reviewed_at, applied_at`

func scanRenameRequest(row pgx.Row) (*NameChangeRequest, error) {
	var r NameChangeRequest
	var reviewedBy *string
	err := row.Scan(
		&r.ID, &r.TenantID, &r.ProposedName, &r.ProposedSubdomain, &r.Status,
		&r.RequestedBy, &r.RequestedAt, &r.EffectiveAt, &reviewedBy, &r.ReviewedAt, &r.AppliedAt,
	)
	if pg.IsNotFoundError(err) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if reviewedBy != nil {
		r.ReviewedBy = *reviewedBy
	}
	return &r, nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, id uuid.UUID) (*NameChangeRequest, error) {
	return scanRenameRequest(s.pool.QueryRow(ctx,
		`SELECT `+renameRequestColumns+` FROM tenant_name_change_requests WHERE id = $1`, id))
}

func (s *PostgresStore) TransitionRequest(ctx context.Context, id uuid.UUID, from, to RenameStatus, mut RequestMutation) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenant_name_change_requests SET
			status = $1,
			effective_at = COALESCE($2, effective_at),
			reviewed_by = COALESCE(NULLIF($3, ''), reviewed_by),
			reviewed_at = COALESCE($4, reviewed_at),
			applied_at = COALESCE($5, applied_at)
		WHERE id = $6 AND status = $7`,
		to, mut.EffectiveAt, mut.ReviewedBy, mut.ReviewedAt, mut.AppliedAt, id, from,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListDue(ctx context.Context, now time.Time) ([]NameChangeRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+renameRequestColumns+`
		FROM tenant_name_change_requests
		WHERE status IN ($1, $2) AND effective_at <= $3
		ORDER BY effective_at`,
		RenameScheduled, RenameAutoApproved, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRenameRequests(rows)
}

func (s *PostgresStore) ListStalePending(ctx context.Context, before time.Time) ([]NameChangeRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+renameRequestColumns+`
		FROM tenant_name_change_requests
		WHERE status = $1 AND requested_at < $2
		ORDER BY requested_at`,
		RenamePending, before,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRenameRequests(rows)
}

func collectRenameRequests(rows pgx.Rows) ([]NameChangeRequest, error) {
	var out []NameChangeRequest
	for rows.Next() {
		r, err := scanRenameRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
