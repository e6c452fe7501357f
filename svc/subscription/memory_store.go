package subscription

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/drgood/goodsale-sub002/svc/tenant"
)

// tenantStatusStore is the slice of the tenant store the memory store
// needs for the atomic suspension guard.
type tenantStatusStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to tenant.Status, at time.Time) (bool, error)
}

type noticeKey struct {
	subscriptionID uuid.UUID
	thresholdDays  int
}

// MemoryStore is a thread-safe in-memory Store. It enforces the same
// invariants as the Postgres schema (one current subscription per tenant,
// one reminder per threshold, immutable resolved requests) so lifecycle
// tests exercise realistic concurrency behaviour.
type MemoryStore struct {
	mu            sync.RWMutex
	subscriptions map[uuid.UUID]Subscription
	requests      map[uuid.UUID]Request
	ledger        []LedgerEntry
	notices       map[noticeKey]time.Time
	tenants       tenantStatusStore

	// failApprove, when set, makes the next ApproveRequest fail after all
	// validation, simulating a dependency failure inside the atomic unit.
	failApprove error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscriptions: make(map[uuid.UUID]Subscription),
		requests:      make(map[uuid.UUID]Request),
		notices:       make(map[noticeKey]time.Time),
	}
}

// BindTenants wires the tenant store the suspension guard writes to.
// SuspendTenantIfNoCurrent panics until this is called.
func (s *MemoryStore) BindTenants(tenants tenantStatusStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants = tenants
}

// FailNextApprove injects an error into the next ApproveRequest call.
// Test hook for verifying approval atomicity.
func (s *MemoryStore) FailNextApprove(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failApprove = err
}

func (s *MemoryStore) currentFor(tenantID uuid.UUID) *Subscription {
	for _, sub := range s.subscriptions {
		if sub.TenantID == tenantID && sub.Status.Current() {
			out := sub
			return &out
		}
	}
	return nil
}

func (s *MemoryStore) CreateSubscription(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.Status.Current() && s.currentFor(sub.TenantID) != nil {
		return ErrActiveSubscriptionExists
	}

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	s.subscriptions[sub.ID] = *sub
	return nil
}

func (s *MemoryStore) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) GetCurrentSubscription(ctx context.Context, tenantID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub := s.currentFor(tenantID); sub != nil {
		return sub, nil
	}
	return nil, ErrSubscriptionNotFound
}

func (s *MemoryStore) ListLapsed(ctx context.Context, now time.Time) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Subscription
	for _, sub := range s.subscriptions {
		if sub.Lapsed(now) {
			out = append(out, sub)
		}
	}
	sortByEndDate(out)
	return out, nil
}

func (s *MemoryStore) ListTrialsEndingWithin(ctx context.Context, now time.Time, within time.Duration) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := now.Add(within)
	var out []Subscription
	for _, sub := range s.subscriptions {
		if sub.Status != StatusTrial {
			continue
		}
		if sub.EndDate.After(now) && !sub.EndDate.After(cutoff) {
			out = append(out, sub)
		}
	}
	sortByEndDate(out)
	return out, nil
}

func sortByEndDate(subs []Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].EndDate.Before(subs[j].EndDate)
	})
}

func (s *MemoryStore) TransitionSubscription(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return false, ErrSubscriptionNotFound
	}
	if sub.Status != from {
		return false, nil
	}

	sub.Status = to
	sub.UpdatedAt = at
	s.subscriptions[id] = sub
	return true, nil
}

func (s *MemoryStore) CreateRequest(ctx context.Context, r *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = RequestPending
	}
	s.requests[r.ID] = *r
	return nil
}

func (s *MemoryStore) GetRequest(ctx context.Context, id uuid.UUID) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return &r, nil
}

func (s *MemoryStore) ListStalePending(ctx context.Context, before time.Time) ([]Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Request
	for _, r := range s.requests {
		if r.Status == RequestPending && r.RequestedAt.Before(before) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out, nil
}

func (s *MemoryStore) ResolveRequest(ctx context.Context, id uuid.UUID, to RequestStatus, reviewer string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return false, ErrRequestNotFound
	}
	if r.Status != RequestPending {
		return false, nil
	}

	r.Status = to
	r.ReviewedBy = reviewer
	r.ReviewedAt = &at
	s.requests[id] = r
	return true, nil
}

func (s *MemoryStore) ApproveRequest(ctx context.Context, params ApproveParams) (*ApprovalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[params.RequestID]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if r.Status != RequestPending {
		return nil, ErrRequestNotPending
	}

	// All reads and validations happen before any write so a failure
	// leaves the store untouched, mirroring the transactional Postgres
	// implementation.
	if s.failApprove != nil {
		err := s.failApprove
		s.failApprove = nil
		return nil, err
	}

	superseded := s.currentFor(r.TenantID)

	newSub := params.NewSubscription
	if newSub.ID == uuid.Nil {
		newSub.ID = uuid.New()
	}

	if superseded != nil {
		cancelled := *superseded
		cancelled.Status = StatusCancelled
		cancelled.UpdatedAt = params.Now
		s.subscriptions[cancelled.ID] = cancelled
		superseded = &cancelled
	}

	r.Status = params.Resolution
	r.ReviewedBy = params.Reviewer
	reviewedAt := params.Now
	r.ReviewedAt = &reviewedAt
	s.requests[r.ID] = r

	s.subscriptions[newSub.ID] = newSub

	entry := LedgerEntry{
		ID:             uuid.New(),
		TenantID:       r.TenantID,
		SubscriptionID: newSub.ID,
		RequestID:      &r.ID,
		Amount:         r.TotalAmount,
		Description:    params.LedgerDescription,
		CreatedAt:      params.Now,
	}
	s.ledger = append(s.ledger, entry)

	return &ApprovalResult{
		Request:      r,
		Subscription: newSub,
		Superseded:   superseded,
		Ledger:       entry,
	}, nil
}

// SuspendTenantIfNoCurrent holds the store lock across the replacement
// check and the tenant write, matching the single-statement Postgres
// guard: ApproveRequest inserts under the same lock, so a concurrent
// approval either lands before the check (no suspension) or after the
// write (its reactivation flips the tenant back to active).
func (s *MemoryStore) SuspendTenantIfNoCurrent(ctx context.Context, tenantID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tenants == nil {
		panic("subscription: memory store has no tenant store bound")
	}
	if s.currentFor(tenantID) != nil {
		return false, nil
	}
	return s.tenants.UpdateStatus(ctx, tenantID, tenant.StatusActive, tenant.StatusSuspended, at)
}

func (s *MemoryStore) MarkTrialNoticeSent(ctx context.Context, subscriptionID uuid.UUID, thresholdDays int, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := noticeKey{subscriptionID: subscriptionID, thresholdDays: thresholdDays}
	if _, sent := s.notices[key]; sent {
		return false, nil
	}
	s.notices[key] = at
	return true, nil
}

func (s *MemoryStore) ListLedgerEntries(ctx context.Context, tenantID uuid.UUID) ([]LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []LedgerEntry
	for _, e := range s.ledger {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) CountPendingRequests(ctx context.Context, tenantID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, r := range s.requests {
		if r.TenantID == tenantID && r.Status == RequestPending {
			count++
		}
	}
	return count, nil
}
