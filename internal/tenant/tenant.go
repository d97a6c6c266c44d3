// Package tenant resolves the tenant a request belongs to and carries it on the
// request context.
package tenant

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/Additional-Code/orderhub/internal/config"
	"github.com/Additional-Code/orderhub/internal/presentation/http/response"
	"github.com/Additional-Code/orderhub/pkg/errorbank"
)

const (
	HeaderTenantID     = "X-Tenant-ID"
	HeaderTenantLegacy = "X-Tenant"
)

// Source names where a tenant id was found.
type Source string

const (
	SourceHeader       Source = "header"
	SourceLegacyHeader Source = "legacy_header"
	SourceSubdomain    Source = "subdomain"
	SourcePath         Source = "path"
	SourceDefault      Source = "default"
)

// Info is the resolved tenant of one request. Subdomain is the first host label
// when the host has one, whichever source won.
type Info struct {
	ID        string
	Subdomain string
	Source    Source
	Resolved  bool
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying info.
func WithContext(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// FromContext returns the tenant stored on ctx.
func FromContext(ctx context.Context) (Info, bool) {
	info, ok := ctx.Value(ctxKey{}).(Info)
	return info, ok
}

// Resolver maps requests onto tenants.
type Resolver struct {
	defaultID    string
	allowDefault bool
	marketPrefix string
}

// Module provides the resolver to Fx.
var Module = fx.Provide(NewResolver)

// NewResolver builds a Resolver from configuration.
func NewResolver(cfg config.Config) *Resolver {
	return &Resolver{
		defaultID:    cfg.Tenant.DefaultID,
		allowDefault: cfg.Tenant.AllowDefault,
		marketPrefix: cfg.Tenant.MarketPrefix,
	}
}

// Resolve inspects the explicit header, the legacy header, the host subdomain and
// the market path prefix, in that order. When none match the default tenant is
// returned with Resolved set to false.
func (r *Resolver) Resolve(req *http.Request) Info {
	sub := subdomain(req.Host)
	resolved := func(id string, src Source) Info {
		return Info{ID: id, Subdomain: sub, Source: src, Resolved: true}
	}

	if id := strings.TrimSpace(req.Header.Get(HeaderTenantID)); id != "" {
		return resolved(id, SourceHeader)
	}
	if id := strings.TrimSpace(req.Header.Get(HeaderTenantLegacy)); id != "" {
		return resolved(id, SourceLegacyHeader)
	}
	if sub != "" {
		return resolved(sub, SourceSubdomain)
	}
	if id := pathTenant(req.URL.Path, r.marketPrefix); id != "" {
		return resolved(id, SourcePath)
	}
	return Info{ID: r.defaultID, Source: SourceDefault}
}

// Middleware stores the resolved tenant on the request context.
func (r *Resolver) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			info := r.Resolve(c.Request())
			if !info.Resolved && !r.allowDefault {
				return response.New(c).
					WithError(errorbank.Validation("tenant could not be resolved",
						errorbank.WithDetail("headers", []string{HeaderTenantID, HeaderTenantLegacy}))).
					Build()
			}
			c.SetRequest(c.Request().WithContext(WithContext(c.Request().Context(), info)))
			c.Response().Header().Set(HeaderTenantID, info.ID)
			return next(c)
		}
	}
}

func subdomain(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" || net.ParseIP(strings.Trim(host, "[]")) != nil {
		return ""
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}
	switch labels[0] {
	case "www", "api":
		return ""
	}
	return labels[0]
}

func pathTenant(path, prefix string) string {
	if prefix == "" || !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(path, prefix)
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}
