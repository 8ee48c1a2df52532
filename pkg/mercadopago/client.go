package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/poppyflores/checkout-backend/pkg/config"
	pkgerrors "github.com/poppyflores/checkout-backend/pkg/errors"
	"github.com/poppyflores/checkout-backend/pkg/logger"
	"github.com/poppyflores/checkout-backend/pkg/metrics"
)

const (
	providerLabel  = "mercadopago"
	defaultBaseURL = "https://api.mercadopago.com"
)

var (
	errAccessTokenRequired = errors.New("mercado pago access token is required")
	errLoggerRequired      = errors.New("mercado pago logger is required")
)

// Client exposes Mercado Pago primitives with centralized auth, logging,
// idempotency, and error mapping.
type Client struct {
	httpClient  *http.Client
	accessToken string
	baseURL     string
	locale      string
	logger      *logger.Logger
	metrics     *metrics.CheckoutMetrics
}

// NewClient initializes the Mercado Pago wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.PaymentsConfig, logg *logger.Logger, m *metrics.CheckoutMetrics) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		accessToken: accessToken,
		baseURL:     baseURL,
		locale:      cfg.Locale,
		logger:      logg,
		metrics:     m,
	}

	logg.Info(ctx, "mercado pago client initialized")
	return c, nil
}

// Locale returns the configured checkout locale.
func (c *Client) Locale() string {
	if c == nil {
		return ""
	}
	return c.locale
}

// NewIdempotencyKey returns a unique key for Mercado Pago operations.
func (c *Client) NewIdempotencyKey(prefix string) string {
	key := strings.TrimSpace(prefix)
	if key == "" {
		key = "poppy"
	}
	return fmt.Sprintf("%s-%s", key, uuid.NewString())
}

// CreatePreference mints a checkout preference and returns its handle.
func (c *Client) CreatePreference(ctx context.Context, params PreferenceParams) (*Preference, error) {
	req := params.toRequest(c.locale)
	c.log(ctx, "request", "create_preference", map[string]any{
		"items":        len(params.Items),
		"external_ref": params.ExternalReference,
		"payer_email":  params.PayerEmail,
		"total_amount": params.TotalAmount,
	})

	var resp preferenceResponse
	if err := c.do(ctx, "create_preference", "/checkout/preferences", req, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mercado pago returned an empty preference id")
	}

	c.log(ctx, "response", "create_preference", map[string]any{
		"preference_id": resp.ID,
	})
	return &Preference{ID: resp.ID, InitPoint: resp.InitPoint}, nil
}

// ProcessPayment submits the Payment Brick form data for capture.
func (c *Client) ProcessPayment(ctx context.Context, params PaymentParams) (*Payment, error) {
	req := params.toRequest()
	c.log(ctx, "request", "process_payment", map[string]any{
		"payment_method": params.PaymentMethodID,
		"amount":         params.TransactionAmount,
		"payer_email":    params.PayerEmail,
		"card_token":     params.Token,
	})

	var resp paymentResponse
	if err := c.do(ctx, "process_payment", "/v1/payments", req, &resp); err != nil {
		return nil, err
	}

	payment := &Payment{
		ID:           resp.ID,
		Status:       resp.Status,
		StatusDetail: resp.StatusDetail,
	}
	c.log(ctx, "response", "process_payment", map[string]any{
		"payment_id": payment.ID,
		"status":     payment.Status,
	})
	return payment, nil
}

func (c *Client) do(ctx context.Context, op, path string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("encode %s request", op))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("build %s request", op))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("X-Idempotency-Key", c.NewIdempotencyKey(op))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ObserveProviderDuration(providerLabel, op, time.Since(start))
	if err != nil {
		c.log(ctx, "error", op, map[string]any{"error": err.Error()})
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("mercado pago %s failed", op))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("read %s response", op))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log(ctx, "error", op, map[string]any{"status": resp.StatusCode})
		return c.mapAPIError(resp.StatusCode, raw, op)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("decode %s response", op))
	}
	return nil
}

func (c *Client) mapAPIError(status int, raw []byte, op string) error {
	var apiErr struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(raw, &apiErr)

	message := apiErr.Message
	if message == "" {
		message = apiErr.Error
	}
	if message == "" {
		message = fmt.Sprintf("status %d", status)
	}

	code := domainCodeForStatus(status)
	return pkgerrors.New(code, fmt.Sprintf("mercado pago %s failed: %s", op, message))
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
		c.logger.Error(ctx, fmt.Sprintf("mercadopago %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("mercadopago %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "token", "cvv", "secret", "email", "phone"} {
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
