package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/poppyflores/checkout-backend/pkg/config"
	pkgerrors "github.com/poppyflores/checkout-backend/pkg/errors"
	"github.com/poppyflores/checkout-backend/pkg/logger"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	client, err := NewClient(config.BackendConfig{BaseURL: srv.URL}, logg, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, srv
}

func TestValidateCouponDecodesVerdict(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/cupones/validar" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body CouponValidationParams
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Codigo != "FLORES10" {
			t.Fatalf("unexpected codigo %q", body.Codigo)
		}
		if body.MontoCompra != 500 {
			t.Fatalf("unexpected monto %v", body.MontoCompra)
		}
		json.NewEncoder(w).Encode(CouponValidation{
			Valido:    true,
			Descuento: 50,
			Cupon:     &Coupon{Codigo: "FLORES10", TipoDescuento: "porcentaje", ValorDescuento: 10},
		})
	}))

	result, err := client.ValidateCoupon(context.Background(), CouponValidationParams{
		Codigo:      "FLORES10",
		MontoCompra: 500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Valido {
		t.Fatalf("expected valid coupon")
	}
	if result.Descuento != 50 {
		t.Fatalf("expected descuento 50, got %v", result.Descuento)
	}
	if result.Cupon == nil || result.Cupon.TipoDescuento != "porcentaje" {
		t.Fatalf("expected coupon record, got %+v", result.Cupon)
	}
}

func TestValidateCouponMapsServerError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.ValidateCoupon(context.Background(), CouponValidationParams{Codigo: "X", MontoCompra: 1})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestCreateHostedPreferenceForwardsCoupon(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pagos/crear-preferencia" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body HostedPreferenceParams
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.CuponCode != "FLORES10" {
			t.Fatalf("expected coupon code forwarded, got %q", body.CuponCode)
		}
		json.NewEncoder(w).Encode(HostedPreference{
			PreferenceID: "pref-123",
			InitPoint:    "https://mp.example/init/pref-123",
		})
	}))

	pref, err := client.CreateHostedPreference(context.Background(), HostedPreferenceParams{
		Items:      []PreferenceItem{{ID: "p1", Titulo: "Ramo", PrecioUnit: 500, Cantidad: 1}},
		Payer:      PreferencePayer{Nombre: "Ana", Email: "ana@example.com"},
		CuponCode:  "FLORES10",
		SuccessURL: "https://shop/success",
		FailureURL: "https://shop/failure",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pref.InitPoint != "https://mp.example/init/pref-123" {
		t.Fatalf("unexpected init point %q", pref.InitPoint)
	}
}

func TestListProductsBuildsQuery(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("categoria"); got != "ramos" {
			t.Fatalf("unexpected categoria %q", got)
		}
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Fatalf("unexpected page %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"productos": []Product{{ID: "p1", Nombre: "Ramo rosas", Precio: 1200, Categoria: "ramos"}},
		})
	}))

	products, err := client.ListProducts(context.Background(), ProductQuery{Categoria: "ramos", Page: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 1 || products[0].Nombre != "Ramo rosas" {
		t.Fatalf("unexpected products %+v", products)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	if _, err := NewClient(config.BackendConfig{}, logg, nil); err == nil {
		t.Fatal("expected error for missing base url")
	}
	if _, err := NewClient(config.BackendConfig{BaseURL: "http://x"}, nil, nil); err == nil {
		t.Fatal("expected error for missing logger")
	}
}
