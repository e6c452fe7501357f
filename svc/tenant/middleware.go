package tenant

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
)

// MiddlewareConfig carries the host parsing settings.
type MiddlewareConfig struct {
	// BaseDomain is the platform domain; requests to
	// <subdomain>.<BaseDomain> resolve to the owning tenant.
	BaseDomain string `env:"BASE_DOMAIN" envDefault:"goodsale.app"`
}

// SubdomainFromHost extracts the tenant subdomain from a request host.
// Empty when the host is the base domain itself or a foreign domain.
func SubdomainFromHost(host, baseDomain string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)

	suffix := "." + strings.ToLower(baseDomain)
	sub, found := strings.CutSuffix(host, suffix)
	if !found || sub == "" || strings.Contains(sub, ".") {
		return ""
	}
	return sub
}

// Middleware resolves the tenant from the request host and stores it in
// the context. Requests without a tenant subdomain pass through
// unchanged; an unknown subdomain is a 404. Suspended tenants are let
// through on purpose: the self-service surface must stay reachable so
// they can renew.
func Middleware(resolver *Resolver, cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant: resolver cannot be nil")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subdomain := SubdomainFromHost(r.Host, cfg.BaseDomain)
			if subdomain == "" {
				next.ServeHTTP(w, r)
				return
			}

			t, err := resolver.Resolve(r.Context(), subdomain)
			if err != nil {
				status, msg := http.StatusInternalServerError, "store lookup failed"
				// A malformed subdomain is a client addressing error,
				// same as an unknown one.
				if errors.Is(err, ErrTenantNotFound) || errors.Is(err, ErrInvalidSubdomain) {
					status, msg = http.StatusNotFound, "unknown store"
				}
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(status)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), t)))
		})
	}
}
