package tenant_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgood/goodsale-sub002/svc/tenant"
)

func TestSubdomainFromHost(t *testing.T) {
	t.Parallel()

	cases := []struct {
		host string
		want string
	}{
		{"acme.goodsale.app", "acme"},
		{"acme.goodsale.app:8080", "acme"},
		{"ACME.GoodSale.App", "acme"},
		{"goodsale.app", ""},
		{"deep.acme.goodsale.app", ""},
		{"acme.example.com", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tenant.SubdomainFromHost(tc.host, "goodsale.app"), tc.host)
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newHandler := func(t *testing.T) (http.Handler, *tenant.Tenant) {
		t.Helper()

		store := tenant.NewMemoryStore()
		tn := &tenant.Tenant{Name: "Acme Shop", Subdomain: "acme", Status: tenant.StatusActive}
		require.NoError(t, store.Create(ctx, tn))

		mw := tenant.Middleware(tenant.NewResolver(store), tenant.MiddlewareConfig{BaseDomain: "goodsale.app"})
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got, ok := tenant.FromContext(r.Context()); ok {
				w.Header().Set("X-Tenant", got.Subdomain)
			}
			w.WriteHeader(http.StatusOK)
		}))
		return handler, tn
	}

	t.Run("resolves the tenant from the host", func(t *testing.T) {
		t.Parallel()
		handler, _ := newHandler(t)

		req := httptest.NewRequest(http.MethodGet, "http://acme.goodsale.app/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "acme", rec.Header().Get("X-Tenant"))
	})

	t.Run("unknown subdomain is a 404", func(t *testing.T) {
		t.Parallel()
		handler, _ := newHandler(t)

		req := httptest.NewRequest(http.MethodGet, "http://nope.goodsale.app/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed subdomain is a 404, not a server error", func(t *testing.T) {
		t.Parallel()
		handler, _ := newHandler(t)

		req := httptest.NewRequest(http.MethodGet, "http://-acme.goodsale.app/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "unknown store")
	})

	t.Run("base domain passes through without a tenant", func(t *testing.T) {
		t.Parallel()
		handler, _ := newHandler(t)

		req := httptest.NewRequest(http.MethodGet, "http://goodsale.app/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Tenant"))
	})

	t.Run("suspended tenants still resolve", func(t *testing.T) {
		t.Parallel()

		store := tenant.NewMemoryStore()
		suspended := &tenant.Tenant{Name: "Closed Shop", Subdomain: "closed", Status: tenant.StatusSuspended}
		require.NoError(t, store.Create(ctx, suspended))
		mw := tenant.Middleware(tenant.NewResolver(store), tenant.MiddlewareConfig{BaseDomain: "goodsale.app"})
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := tenant.FromContext(r.Context())
			require.True(t, ok)
			assert.Equal(t, tenant.StatusSuspended, got.Status)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "http://closed.goodsale.app/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
