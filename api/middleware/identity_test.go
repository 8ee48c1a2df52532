package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/poppyflores/checkout-backend/pkg/config"
)

func mintToken(t *testing.T, secret, email, issuer string) string {
	t.Helper()
	claims := identityClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestIdentityResolvesEmail(t *testing.T) {
	cfg := config.IdentityConfig{JWTSecret: "secret", Issuer: "poppy-auth"}

	var seen string
	handler := Identity(cfg, middlewareTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserEmailFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/coupons/validate", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "secret", "ana@example.com", "poppy-auth"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "ana@example.com" {
		t.Fatalf("expected resolved email, got %q", seen)
	}
}

func TestIdentityAllowsAnonymous(t *testing.T) {
	cfg := config.IdentityConfig{JWTSecret: "secret"}

	called := false
	handler := Identity(cfg, middlewareTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if email := UserEmailFromContext(r.Context()); email != "" {
			t.Fatalf("anonymous request carries email %q", email)
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/coupons/validate", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("anonymous request should pass through, code %d", rec.Code)
	}
}

func TestIdentityRejectsForgedToken(t *testing.T) {
	cfg := config.IdentityConfig{JWTSecret: "secret"}

	handler := Identity(cfg, middlewareTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run with a forged token")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/coupons/validate", nil)
	req.Header.Set("Authorization", "Bearer "+mintToken(t, "other-secret", "ana@example.com", ""))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestIdentityDisabledPassesThrough(t *testing.T) {
	called := false
	handler := Identity(config.IdentityConfig{}, middlewareTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/coupons/validate", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("disabled identity must not gate requests")
	}
}
