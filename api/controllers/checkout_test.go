package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/poppyflores/checkout-backend/api/middleware"
	"github.com/poppyflores/checkout-backend/internal/cart"
	"github.com/poppyflores/checkout-backend/internal/checkout"
	"github.com/poppyflores/checkout-backend/internal/coupons"
	"github.com/poppyflores/checkout-backend/internal/preference"
	"github.com/poppyflores/checkout-backend/pkg/logger"
	"github.com/poppyflores/checkout-backend/pkg/mercadopago"
)

type stubValidator struct {
	result coupons.Result
}

func (s *stubValidator) Validate(ctx context.Context, code string, purchaseAmount decimal.Decimal, userEmail string) coupons.Result {
	res := s.result
	res.FinalAmount = purchaseAmount.Sub(res.DiscountAmount)
	return res
}

type stubBuilder struct {
	mode   preference.Mode
	result *preference.Result
}

func (s *stubBuilder) Build(ctx context.Context, params preference.BuildParams) (*preference.Result, error) {
	return s.result, nil
}

func (s *stubBuilder) Mode() preference.Mode { return s.mode }

type stubPayments struct {
	payment *mercadopago.Payment
}

func (s *stubPayments) ProcessPayment(ctx context.Context, params mercadopago.PaymentParams) (*mercadopago.Payment, error) {
	return s.payment, nil
}

type stubCarts struct {
	snapshot *cart.Snapshot
}

func (s *stubCarts) Get(ctx context.Context, sessionID string) (*cart.Snapshot, error) {
	return s.snapshot, nil
}

func (s *stubCarts) Clear(ctx context.Context, sessionID string) error { return nil }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newStubSessions(t *testing.T, mode preference.Mode) *checkout.Registry {
	t.Helper()

	builder := &stubBuilder{mode: mode}
	if mode == preference.ModeHosted {
		builder.result = &preference.Result{Mode: preference.ModeHosted, RedirectURL: "https://mp.example/init/pref-1"}
	} else {
		builder.result = &preference.Result{Mode: preference.ModeWidget, PreferenceID: "pref-1", Locale: "es-AR"}
	}

	registry := checkout.NewRegistry(func(sessionID string) (*checkout.Orchestrator, error) {
		return checkout.New(sessionID, checkout.Deps{
			Validator: &stubValidator{result: coupons.Result{Valid: true, DiscountAmount: decimal.RequireFromString("50")}},
			Builder:   builder,
			Payments:  &stubPayments{payment: &mercadopago.Payment{ID: 11, Status: "approved"}},
			Carts: &stubCarts{snapshot: &cart.Snapshot{Items: []cart.Item{
				{ProductID: "ramo-1", Name: "Ramo primavera", UnitPrice: 250, Quantity: 2},
			}}},
			Logger: testLogger(),
		}, checkout.Config{
			DebounceDelay: 10 * time.Millisecond,
			ReservedCode:  "POPPYWEB",
			SuccessURL:    "https://poppy.flores/checkout/gracias",
			FailureURL:    "https://poppy.flores/checkout/error",
		})
	}, time.Minute, time.Minute, nil)
	t.Cleanup(registry.Close)
	return registry
}

func sessionRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req = req.WithContext(middleware.WithSessionID(req.Context(), "sess-1"))
	return req
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}

func TestCouponValidateRequiresSession(t *testing.T) {
	sessions := newStubSessions(t, preference.ModeHosted)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/coupons/validate", strings.NewReader(`{"codigo":"VERANO10"}`))
	rec := httptest.NewRecorder()
	CouponValidate(sessions, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without session, got %d", rec.Code)
	}
}

func TestCouponValidateReturnsVerdict(t *testing.T) {
	sessions := newStubSessions(t, preference.ModeHosted)

	req := sessionRequest(http.MethodPost, "/api/v1/checkout/coupons/validate", `{"codigo":"VERANO10","monto_compra":500}`)
	rec := httptest.NewRecorder()
	CouponValidate(sessions, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)
	if data["valido"] != true {
		t.Fatalf("expected valid verdict, got %v", data)
	}
	if data["descuento"] != "50.00" || data["monto_final"] != "450.00" {
		t.Fatalf("unexpected amounts %v", data)
	}
}

func TestCheckoutSubmitHostedRedirect(t *testing.T) {
	sessions := newStubSessions(t, preference.ModeHosted)

	body := `{"nombre":"Ana García","email":"ana@example.com","telefono":"+5491155550000","direccion":"Av. Corrientes 1234","ciudad":"Buenos Aires"}`
	req := sessionRequest(http.MethodPost, "/api/v1/checkout/submit", body)
	rec := httptest.NewRecorder()
	CheckoutSubmit(sessions, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)
	if data["action"] != checkout.ActionRedirect {
		t.Fatalf("expected redirect action, got %v", data)
	}
	if data["redirect_url"] != "https://mp.example/init/pref-1" {
		t.Fatalf("unexpected redirect url %v", data)
	}
}

func TestCheckoutSubmitRejectsIncompleteBody(t *testing.T) {
	sessions := newStubSessions(t, preference.ModeHosted)

	req := sessionRequest(http.MethodPost, "/api/v1/checkout/submit", `{"nombre":"Ana García","email":"ana@example.com"}`)
	rec := httptest.NewRecorder()
	CheckoutSubmit(sessions, testLogger()).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for incomplete body, got %d", rec.Code)
	}
}

func TestWidgetPaymentFlow(t *testing.T) {
	sessions := newStubSessions(t, preference.ModeWidget)

	submitBody := `{"nombre":"Ana García","email":"ana@example.com","telefono":"+5491155550000","direccion":"Av. Corrientes 1234"}`
	rec := httptest.NewRecorder()
	CheckoutSubmit(sessions, testLogger()).ServeHTTP(rec, sessionRequest(http.MethodPost, "/api/v1/checkout/submit", submitBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("submit failed: %d %s", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)
	if data["action"] != checkout.ActionWidget || data["preference_id"] != "pref-1" {
		t.Fatalf("unexpected submit instruction %v", data)
	}

	payBody := `{"token":"card-token","payment_method_id":"visa","installments":1,"payer_email":"ana@example.com"}`
	rec = httptest.NewRecorder()
	WidgetPayment(sessions, testLogger()).ServeHTTP(rec, sessionRequest(http.MethodPost, "/api/v1/checkout/payment", payBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("payment failed: %d %s", rec.Code, rec.Body.String())
	}
	data = decodeData(t, rec)
	if data["approved"] != true {
		t.Fatalf("expected approved payment, got %v", data)
	}
	if data["redirect_url"] != "https://poppy.flores/checkout/gracias" {
		t.Fatalf("unexpected redirect %v", data)
	}
}

func TestWidgetPaymentWithoutOpenWidget(t *testing.T) {
	sessions := newStubSessions(t, preference.ModeWidget)

	payBody := `{"token":"card-token","payment_method_id":"visa","payer_email":"ana@example.com"}`
	rec := httptest.NewRecorder()
	WidgetPayment(sessions, testLogger()).ServeHTTP(rec, sessionRequest(http.MethodPost, "/api/v1/checkout/payment", payBody))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 without open widget, got %d", rec.Code)
	}
}

func TestWidgetCloseReturnsSnapshot(t *testing.T) {
	sessions := newStubSessions(t, preference.ModeWidget)

	submitBody := `{"nombre":"Ana García","email":"ana@example.com","telefono":"+5491155550000","direccion":"Av. Corrientes 1234"}`
	rec := httptest.NewRecorder()
	CheckoutSubmit(sessions, testLogger()).ServeHTTP(rec, sessionRequest(http.MethodPost, "/api/v1/checkout/submit", submitBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("submit failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	WidgetClose(sessions, testLogger()).ServeHTTP(rec, sessionRequest(http.MethodPost, "/api/v1/checkout/widget/close", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("close failed: %d", rec.Code)
	}
	data := decodeData(t, rec)
	if data["state"] != string(checkout.StateCouponValid) {
		t.Fatalf("unexpected state %v", data["state"])
	}
}

func TestWidgetErrorRecordsMessage(t *testing.T) {
	sessions := newStubSessions(t, preference.ModeWidget)

	rec := httptest.NewRecorder()
	WidgetError(sessions, testLogger()).ServeHTTP(rec, sessionRequest(http.MethodPost, "/api/v1/checkout/widget/error", `{"message":"fields_setup_failed"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("widget error failed: %d", rec.Code)
	}
	data := decodeData(t, rec)
	if data["widget_error"] != "fields_setup_failed" {
		t.Fatalf("error not recorded: %v", data)
	}
}
