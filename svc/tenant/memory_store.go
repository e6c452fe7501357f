package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a thread-safe in-memory implementation of Store and
// NameChangeStore. It enforces the same uniqueness invariants as the
// Postgres schema so lifecycle tests exercise realistic behaviour.
type MemoryStore struct {
	mu       sync.RWMutex
	tenants  map[uuid.UUID]Tenant
	requests map[uuid.UUID]NameChangeRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:  make(map[uuid.UUID]Tenant),
		requests: make(map[uuid.UUID]NameChangeRequest),
	}
}

func (s *MemoryStore) Create(ctx context.Context, t *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tenants {
		if existing.Subdomain == t.Subdomain {
			return ErrSubdomainTaken
		}
	}

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	s.tenants[t.ID] = *t
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	return &t, nil
}

func (s *MemoryStore) GetBySubdomain(ctx context.Context, subdomain string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tenants {
		if t.Subdomain == subdomain {
			out := t
			return &out, nil
		}
	}
	return nil, ErrTenantNotFound
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok {
		return false, ErrTenantNotFound
	}
	if t.Status != from {
		return false, nil
	}

	t.Status = to
	t.UpdatedAt = at
	s.tenants[id] = t
	return true, nil
}

func (s *MemoryStore) Rename(ctx context.Context, id uuid.UUID, name, subdomain string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok {
		return ErrTenantNotFound
	}

	for otherID, other := range s.tenants {
		if otherID != id && other.Subdomain == subdomain {
			return ErrSubdomainTaken
		}
	}

	t.Name = name
	t.Subdomain = subdomain
	t.UpdatedAt = at
	s.tenants[id] = t
	return nil
}

func (s *MemoryStore) UpdatePlan(ctx context.Context, id uuid.UUID, planID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok {
		return ErrTenantNotFound
	}

	t.PlanID = planID
	t.UpdatedAt = at
	s.tenants[id] = t
	return nil
}

func (s *MemoryStore) CreateRequest(ctx context.Context, r *NameChangeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.requests {
		if existing.TenantID == r.TenantID && existing.Status.Open() {
			return ErrOpenRequestExists
		}
	}

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RenamePending
	}
	s.requests[r.ID] = *r
	return nil
}

func (s *MemoryStore) GetRequest(ctx context.Context, id uuid.UUID) (*NameChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return &r, nil
}

func (s *MemoryStore) TransitionRequest(ctx context.Context, id uuid.UUID, from, to RenameStatus, mut RequestMutation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return false, ErrRequestNotFound
	}
	if r.Status != from {
		return false, nil
	}

	r.Status = to
	if mut.EffectiveAt != nil {
		r.EffectiveAt = mut.EffectiveAt
	}
	if mut.ReviewedBy != "" {
		r.ReviewedBy = mut.ReviewedBy
	}
	if mut.ReviewedAt != nil {
		r.ReviewedAt = mut.ReviewedAt
	}
	if mut.AppliedAt != nil {
		r.AppliedAt = mut.AppliedAt
	}
	s.requests[id] = r
	return true, nil
}

func (s *MemoryStore) ListDue(ctx context.Context, now time.Time) ([]NameChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []NameChangeRequest
	for _, r := range s.requests {
		if r.Due(now) {
			due = append(due, r)
		}
	}
	return due, nil
}

func (s *MemoryStore) ListStalePending(ctx context.Context, before time.Time) ([]NameChangeRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []NameChangeRequest
	for _, r := range s.requests {
		if r.Status == RenamePending && r.RequestedAt.Before(before) {
			stale = append(stale, r)
		}
	}
	return stale, nil
}
