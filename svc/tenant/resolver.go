package tenant

import (
	"context"
	"log/slog"
)

// Resolver looks up tenants by subdomain with read-through caching. It is
// the keyed lookup behind subdomain-to-tenant routing; suspended and
// archived tenants still resolve so the outer layers can present the
// appropriate state.
type Resolver struct {
	store Store
	cache Cache
	log   *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCache sets the cache backend. Defaults to NoOpCache.
func WithCache(c Cache) ResolverOption {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithResolverLogger sets the logger used for cache write failures.
func WithResolverLogger(log *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if log != nil {
			r.log = log
		}
	}
}

// NewResolver creates a Resolver. Panics on nil store to fail fast at
// startup.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	if store == nil {
		panic("tenant: store cannot be nil")
	}

	r := &Resolver{
		store: store,
		cache: NoOpCache{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the tenant for a subdomain, or ErrTenantNotFound. Cache
// write failures are logged and ignored; resolution never fails because
// the cache is down.
func (r *Resolver) Resolve(ctx context.Context, subdomain string) (*Tenant, error) {
	if !ValidSubdomain(subdomain) {
		return nil, ErrInvalidSubdomain
	}

	if t, ok := r.cache.Get(ctx, subdomain); ok {
		return t, nil
	}

	t, err := r.store.GetBySubdomain(ctx, subdomain)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, subdomain, t); err != nil {
		r.log.WarnContext(ctx, "failed to cache tenant", "subdomain", subdomain, "error", err)
	}

	return t, nil
}
