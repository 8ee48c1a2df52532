package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/poppyflores/checkout-backend/pkg/config"
	pkgerrors "github.com/poppyflores/checkout-backend/pkg/errors"
	"github.com/poppyflores/checkout-backend/pkg/logger"
	"github.com/poppyflores/checkout-backend/pkg/metrics"
)

const providerLabel = "backend"

var (
	errBaseURLRequired = errors.New("backend base url is required")
	errLoggerRequired  = errors.New("backend logger is required")
)

// Client talks to the remote commerce backend that owns coupons, hosted
// preference creation, and the product catalogue.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logger.Logger
	metrics    *metrics.CheckoutMetrics
}

// NewClient validates the configuration and builds the backend wrapper.
func NewClient(cfg config.BackendConfig, logg *logger.Logger, m *metrics.CheckoutMetrics) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		logger:     logg,
		metrics:    m,
	}, nil
}

// CouponValidationParams carries the coupon validation request body.
type CouponValidationParams struct {
	Codigo       string  `json:"codigo"`
	MontoCompra  float64 `json:"monto_compra"`
	EmailUsuario string  `json:"email_usuario,omitempty"`
}

// Coupon mirrors the backend's coupon record.
type Coupon struct {
	Codigo         string  `json:"codigo"`
	TipoDescuento  string  `json:"tipo_descuento"`
	ValorDescuento float64 `json:"valor_descuento"`
}

// CouponValidation is the backend's verdict on a coupon code.
type CouponValidation struct {
	Valido    bool    `json:"valido"`
	Error     string  `json:"error,omitempty"`
	Descuento float64 `json:"descuento,omitempty"`
	Cupon     *Coupon `json:"cupon,omitempty"`
}

// ValidateCoupon asks the backend whether a coupon applies to the purchase.
func (c *Client) ValidateCoupon(ctx context.Context, params CouponValidationParams) (*CouponValidation, error) {
	c.log(ctx, "request", "validate_coupon", map[string]any{
		"codigo":       params.Codigo,
		"monto_compra": params.MontoCompra,
		"email":        params.EmailUsuario,
	})

	var result CouponValidation
	if err := c.do(ctx, http.MethodPost, "/api/cupones/validar", "validate_coupon", params, &result); err != nil {
		return nil, err
	}

	c.log(ctx, "response", "validate_coupon", map[string]any{
		"valido":    result.Valido,
		"descuento": result.Descuento,
	})
	return &result, nil
}

// PreferenceItem is one cart line forwarded to preference creation.
type PreferenceItem struct {
	ID         string  `json:"id"`
	Titulo     string  `json:"titulo"`
	PrecioUnit float64 `json:"precio_unitario"`
	Cantidad   int     `json:"cantidad"`
	ImagenURL  string  `json:"imagen_url,omitempty"`
}

// PreferencePayer carries the customer data echoed into the preference.
type PreferencePayer struct {
	Nombre    string `json:"nombre"`
	Email     string `json:"email"`
	Telefono  string `json:"telefono"`
	Direccion string `json:"direccion"`
	Ciudad    string `json:"ciudad,omitempty"`
	Provincia string `json:"provincia,omitempty"`
}

// HostedPreferenceParams is the hosted-mode preference creation request.
type HostedPreferenceParams struct {
	Items      []PreferenceItem `json:"items"`
	Payer      PreferencePayer  `json:"payer"`
	CuponCode  string           `json:"cupon_codigo,omitempty"`
	SuccessURL string           `json:"success_url"`
	FailureURL string           `json:"failure_url"`
	PendingURL string           `json:"pending_url,omitempty"`
}

// HostedPreference is the backend's hosted checkout handle.
type HostedPreference struct {
	PreferenceID string `json:"preference_id"`
	InitPoint    string `json:"init_point"`
}

// CreateHostedPreference asks the backend to mint a Checkout Pro preference.
func (c *Client) CreateHostedPreference(ctx context.Context, params HostedPreferenceParams) (*HostedPreference, error) {
	c.log(ctx, "request", "create_preference", map[string]any{
		"items": len(params.Items),
		"cupon": params.CuponCode,
		"email": params.Payer.Email,
	})

	var result HostedPreference
	if err := c.do(ctx, http.MethodPost, "/api/pagos/crear-preferencia", "create_preference", params, &result); err != nil {
		return nil, err
	}

	c.log(ctx, "response", "create_preference", map[string]any{
		"preference_id": result.PreferenceID,
	})
	return &result, nil
}

// Product is a catalogue entry proxied to the storefront.
type Product struct {
	ID          string  `json:"id"`
	Nombre      string  `json:"nombre"`
	Precio      float64 `json:"precio"`
	Categoria   string  `json:"categoria"`
	ImagenURL   string  `json:"imagen_url,omitempty"`
	Descripcion string  `json:"descripcion,omitempty"`
}

// ProductQuery filters the catalogue listing.
type ProductQuery struct {
	Categoria string
	Page      int
	PageSize  int
}

// ListProducts proxies the backend catalogue listing.
func (c *Client) ListProducts(ctx context.Context, query ProductQuery) ([]Product, error) {
	values := url.Values{}
	if query.Categoria != "" {
		values.Set("categoria", query.Categoria)
	}
	if query.Page > 0 {
		values.Set("page", strconv.Itoa(query.Page))
	}
	if query.PageSize > 0 {
		values.Set("page_size", strconv.Itoa(query.PageSize))
	}
	path := "/api/productos"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var result struct {
		Productos []Product `json:"productos"`
	}
	if err := c.do(ctx, http.MethodGet, path, "list_products", nil, &result); err != nil {
		return nil, err
	}
	return result.Productos, nil
}

func (c *Client) do(ctx context.Context, method, path, op string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("encode %s request", op))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("build %s request", op))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ObserveProviderDuration(providerLabel, op, time.Since(start))
	if err != nil {
		c.log(ctx, "error", op, map[string]any{"error": err.Error()})
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("backend %s failed", op))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("read %s response", op))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log(ctx, "error", op, map[string]any{"status": resp.StatusCode})
		return pkgerrors.New(domainCodeForStatus(resp.StatusCode), fmt.Sprintf("backend %s returned status %d", op, resp.StatusCode))
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode %s response", op))
	}
	return nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("backend %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("backend %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"email", "phone", "telefono", "token", "secret"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeDependency
	}
}
