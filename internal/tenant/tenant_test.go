package tenant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/orderhub/internal/config"
)

func newResolver(allowDefault bool) *Resolver {
	return NewResolver(config.Config{Tenant: config.Tenant{
		DefaultID:    "default",
		AllowDefault: allowDefault,
		MarketPrefix: "/market/",
	}})
}

func TestResolvePriority(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		path    string
		headers map[string]string
		want    Info
	}{
		{
			name:    "explicit header wins",
			host:    "shop.example.com",
			path:    "/market/other/orders",
			headers: map[string]string{HeaderTenantID: "acme", HeaderTenantLegacy: "legacy"},
			want:    Info{ID: "acme", Subdomain: "shop", Source: SourceHeader, Resolved: true},
		},
		{
			name:    "legacy header",
			host:    "shop.example.com",
			headers: map[string]string{HeaderTenantLegacy: "legacy"},
			want:    Info{ID: "legacy", Subdomain: "shop", Source: SourceLegacyHeader, Resolved: true},
		},
		{
			name: "subdomain",
			host: "globex.example.com:8080",
			path: "/market/other/orders",
			want: Info{ID: "globex", Subdomain: "globex", Source: SourceSubdomain, Resolved: true},
		},
		{
			name: "path",
			host: "example.com",
			path: "/market/initech/orders/123",
			want: Info{ID: "initech", Source: SourcePath, Resolved: true},
		},
		{
			name: "ip host is not a subdomain",
			host: "10.0.0.1:8080",
			path: "/orders",
			want: Info{ID: "default", Source: SourceDefault, Resolved: false},
		},
		{
			name: "www is not a tenant",
			host: "www.example.com",
			path: "/orders",
			want: Info{ID: "default", Source: SourceDefault, Resolved: false},
		},
		{
			name:    "blank header falls through",
			host:    "localhost",
			path:    "/orders",
			headers: map[string]string{HeaderTenantID: "  "},
			want:    Info{ID: "default", Source: SourceDefault, Resolved: false},
		},
	}

	r := newResolver(true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if path == "" {
				path = "/orders"
			}
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.Host = tt.host
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, r.Resolve(req))
		})
	}
}

func TestMiddlewareStoresTenantOnContext(t *testing.T) {
	e := echo.New()
	var got Info
	e.GET("/orders", func(c echo.Context) error {
		info, ok := FromContext(c.Request().Context())
		require.True(t, ok)
		got = info
		return c.NoContent(http.StatusNoContent)
	}, newResolver(true).Middleware())

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set(HeaderTenantID, "acme")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "acme", got.ID)
	assert.Equal(t, "acme", rec.Header().Get(HeaderTenantID))
}

func TestMiddlewareRejectsDefaultWhenDisallowed(t *testing.T) {
	e := echo.New()
	called := false
	e.GET("/orders", func(c echo.Context) error {
		called = true
		return nil
	}, newResolver(false).Middleware())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"validation_error"`)
}

func TestContextIsRequestScoped(t *testing.T) {
	base := context.Background()
	ctx := WithContext(base, Info{ID: "acme", Resolved: true})

	_, ok := FromContext(base)
	assert.False(t, ok)

	info, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "acme", info.ID)
}
