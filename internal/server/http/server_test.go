package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/orderhub/pkg/errorbank"
)

type payload struct {
	Items []struct {
		Quantity int `json:"quantity" validate:"gt=0"`
	} `json:"items" validate:"required,min=1,dive"`
	Currency string `json:"currency" validate:"omitempty,len=3"`
}

func TestValidatorReportsJSONFieldNames(t *testing.T) {
	var p payload
	p.Items = append(p.Items, struct {
		Quantity int `json:"quantity" validate:"gt=0"`
	}{Quantity: 0})
	p.Currency = "RUBLE"

	err := NewValidator().Validate(&p)
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindValidation))

	details := errorbank.From(err).Details()
	assert.Equal(t, "gt", details["items[0].quantity"])
	assert.Equal(t, "len", details["currency"])
}

func TestValidatorAcceptsValidPayload(t *testing.T) {
	var p payload
	p.Items = append(p.Items, struct {
		Quantity int `json:"quantity" validate:"gt=0"`
	}{Quantity: 2})
	assert.NoError(t, NewValidator().Validate(&p))
}

func TestErrorHandlerUsesEnvelope(t *testing.T) {
	e := New(zap.NewNop(), nil)
	e.GET("/boom", func(c echo.Context) error {
		return errorbank.InvalidState("order cannot be cancelled")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":{"kind":"invalid_state","message":"order cannot be cancelled"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"not_found"`)
}

func TestErrorHandlerKeepsMethodNotAllowed(t *testing.T) {
	e := New(zap.NewNop(), nil)
	e.GET("/orders/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/orders/abc", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":{"kind":"method_not_allowed","message":"method not allowed"}}`, rec.Body.String())
}

func TestMetricsMiddlewareLabelsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := New(zap.NewNop(), reg)
	e.GET("/orders/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/"+id, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() != "orderhub_http_requests_total" {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		m := mf.GetMetric()[0]
		labels := map[string]string{}
		for _, lp := range m.GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		assert.Equal(t, map[string]string{"method": "GET", "route": "/orders/:id", "status": "204"}, labels)
		assert.Equal(t, float64(2), m.GetCounter().GetValue())
		found = true
	}
	assert.True(t, found)
}
