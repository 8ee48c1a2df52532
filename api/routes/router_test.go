package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/poppyflores/checkout-backend/internal/cart"
	"github.com/poppyflores/checkout-backend/internal/checkout"
	"github.com/poppyflores/checkout-backend/internal/coupons"
	"github.com/poppyflores/checkout-backend/internal/preference"
	"github.com/poppyflores/checkout-backend/pkg/backend"
	"github.com/poppyflores/checkout-backend/pkg/config"
	"github.com/poppyflores/checkout-backend/pkg/logger"
	"github.com/poppyflores/checkout-backend/pkg/mercadopago"
	"github.com/poppyflores/checkout-backend/pkg/metrics"
)

type routeValidator struct{}

func (routeValidator) Validate(ctx context.Context, code string, purchaseAmount decimal.Decimal, userEmail string) coupons.Result {
	return coupons.Result{Valid: true, DiscountAmount: decimal.RequireFromString("10"), FinalAmount: purchaseAmount.Sub(decimal.RequireFromString("10"))}
}

type routeBuilder struct{}

func (routeBuilder) Build(ctx context.Context, params preference.BuildParams) (*preference.Result, error) {
	return &preference.Result{Mode: preference.ModeHosted, RedirectURL: "https://mp.example/init"}, nil
}

func (routeBuilder) Mode() preference.Mode { return preference.ModeHosted }

type routePayments struct{}

func (routePayments) ProcessPayment(ctx context.Context, params mercadopago.PaymentParams) (*mercadopago.Payment, error) {
	return &mercadopago.Payment{ID: 1, Status: "approved"}, nil
}

type routeCarts struct{}

func (routeCarts) Get(ctx context.Context, sessionID string) (*cart.Snapshot, error) {
	return &cart.Snapshot{Items: []cart.Item{{ProductID: "p1", Name: "Ramo", UnitPrice: 100, Quantity: 1}}}, nil
}

func (routeCarts) Clear(ctx context.Context, sessionID string) error { return nil }

func (routeCarts) Put(ctx context.Context, sessionID string, snapshot cart.Snapshot) error {
	return nil
}

type routeCatalog struct{}

func (routeCatalog) ListProducts(ctx context.Context, query backend.ProductQuery) ([]backend.Product, error) {
	return []backend.Product{{ID: "p1", Nombre: "Ramo", Precio: 100}}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	registry := checkout.NewRegistry(func(sessionID string) (*checkout.Orchestrator, error) {
		return checkout.New(sessionID, checkout.Deps{
			Validator: routeValidator{},
			Builder:   routeBuilder{},
			Payments:  routePayments{},
			Carts:     routeCarts{},
			Logger:    logg,
		}, checkout.Config{DebounceDelay: 10 * time.Millisecond})
	}, time.Minute, time.Minute, nil)
	t.Cleanup(registry.Close)

	promRegistry := prometheus.NewRegistry()
	metrics.NewCheckoutMetrics(promRegistry)

	return NewRouter(RouterParams{
		Config: &config.Config{
			App:  config.AppConfig{Env: "development", Port: "8080"},
			CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		},
		Logger:    logg,
		Sessions:  registry,
		CartStore: routeCarts{},
		Catalog:   routeCatalog{},
		Metrics:   promRegistry,
	})
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("live: expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Poppy-Env") != "development" {
		t.Fatalf("missing env header")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
}

func TestRouterCheckoutRequiresSessionHeader(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/submit", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without session header, got %d", rec.Code)
	}
}

func TestRouterCouponValidateEndToEnd(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/coupons/validate", strings.NewReader(`{"codigo":"VERANO10","monto_compra":100}`))
	req.Header.Set("X-Session-Id", "sess-1")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"valido":true`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestRouterCatalogIsPublic(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/catalog/products", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
