package coupons

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/poppyflores/checkout-backend/internal/pricing"
	"github.com/poppyflores/checkout-backend/pkg/backend"
	"github.com/poppyflores/checkout-backend/pkg/logger"
	"github.com/poppyflores/checkout-backend/pkg/metrics"
)

// User-facing verdict messages, in the storefront's voice.
const (
	msgAccountRequired = "necesitás una cuenta para usar este cupón"
	msgConnectionError = "error de conexión, intentá de nuevo"
	msgInvalidCoupon   = "cupón inválido"
)

var (
	errBackendRequired = errors.New("coupon validator backend is required")
	errLoggerRequired  = errors.New("coupon validator logger is required")
)

// Result is the outcome of a coupon validation. A failed validation is a
// verdict, not an error: network problems surface as Valid=false with a
// retryable message so the checkout never breaks on a flaky coupon check.
type Result struct {
	Valid          bool            `json:"valid"`
	Error          string          `json:"error,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
}

type verdictSource interface {
	ValidateCoupon(ctx context.Context, params backend.CouponValidationParams) (*backend.CouponValidation, error)
}

type verdictCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CouponKey(parts ...string) string
}

// Options configures a Validator. Cache is optional; without it every
// validation hits the backend.
type Options struct {
	Backend      verdictSource
	Cache        verdictCache
	Logger       *logger.Logger
	Metrics      *metrics.CheckoutMetrics
	ReservedCode string
	CacheTTL     time.Duration
}

// Validator resolves coupon codes against the commerce backend, gating the
// reserved code behind a known user identity.
type Validator struct {
	backend  verdictSource
	cache    verdictCache
	logger   *logger.Logger
	metrics  *metrics.CheckoutMetrics
	reserved string
	cacheTTL time.Duration
}

func NewValidator(opts Options) (*Validator, error) {
	if opts.Backend == nil {
		return nil, errBackendRequired
	}
	if opts.Logger == nil {
		return nil, errLoggerRequired
	}
	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 2 * time.Minute
	}
	return &Validator{
		backend:  opts.Backend,
		cache:    opts.Cache,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		reserved: NormalizeCode(opts.ReservedCode),
		cacheTTL: cacheTTL,
	}, nil
}

// NormalizeCode canonicalizes user input before matching or forwarding.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Reserved reports whether the code is the identity-gated one.
func (v *Validator) Reserved(code string) bool {
	return v.reserved != "" && NormalizeCode(code) == v.reserved
}

// Validate resolves a coupon code for the given purchase amount. An empty
// code and a reserved code without identity are settled locally, without
// touching the backend.
func (v *Validator) Validate(ctx context.Context, code string, purchaseAmount decimal.Decimal, userEmail string) Result {
	code = NormalizeCode(code)
	if code == "" {
		return Result{Valid: false, FinalAmount: purchaseAmount}
	}
	if v.Reserved(code) && strings.TrimSpace(userEmail) == "" {
		v.metrics.IncCouponValidation("account_required")
		return Result{Valid: false, Error: msgAccountRequired, FinalAmount: purchaseAmount}
	}

	cacheKey := v.cacheKey(code, purchaseAmount, userEmail)
	if cached, ok := v.fromCache(ctx, cacheKey); ok {
		return cached
	}

	verdict, err := v.backend.ValidateCoupon(ctx, backend.CouponValidationParams{
		Codigo:       code,
		MontoCompra:  purchaseAmount.InexactFloat64(),
		EmailUsuario: strings.TrimSpace(userEmail),
	})
	if err != nil {
		v.logger.Warn(v.logger.WithFields(ctx, map[string]any{"codigo": code}), "coupon validation unreachable")
		v.metrics.IncCouponValidation("error")
		return Result{Valid: false, Error: msgConnectionError, FinalAmount: purchaseAmount}
	}

	result := v.resolve(verdict, purchaseAmount)
	v.toCache(ctx, cacheKey, result)
	return result
}

func (v *Validator) resolve(verdict *backend.CouponValidation, purchaseAmount decimal.Decimal) Result {
	if !verdict.Valido {
		message := strings.TrimSpace(verdict.Error)
		if message == "" {
			message = msgInvalidCoupon
		}
		v.metrics.IncCouponValidation("invalid")
		return Result{Valid: false, Error: message, FinalAmount: purchaseAmount}
	}

	discount := decimal.NewFromFloat(verdict.Descuento)
	if discount.IsZero() && verdict.Cupon != nil {
		discount = pricing.DiscountAmount(purchaseAmount, verdict.Cupon.TipoDescuento, decimal.NewFromFloat(verdict.Cupon.ValorDescuento))
	}

	v.metrics.IncCouponValidation("valid")
	return Result{
		Valid:          true,
		DiscountAmount: discount,
		FinalAmount:    pricing.Total(purchaseAmount, discount),
	}
}

func (v *Validator) cacheKey(code string, purchaseAmount decimal.Decimal, userEmail string) string {
	if v.cache == nil {
		return ""
	}
	return v.cache.CouponKey(code, purchaseAmount.String(), strings.ToLower(strings.TrimSpace(userEmail)))
}

func (v *Validator) fromCache(ctx context.Context, key string) (Result, bool) {
	if v.cache == nil || key == "" {
		return Result{}, false
	}
	raw, err := v.cache.Get(ctx, key)
	if err != nil {
		return Result{}, false
	}
	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		v.logger.Warn(ctx, fmt.Sprintf("discarding corrupt coupon cache entry %s", key))
		return Result{}, false
	}
	v.metrics.IncCouponValidation("cache_hit")
	return result, true
}

func (v *Validator) toCache(ctx context.Context, key string, result Result) {
	if v.cache == nil || key == "" {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := v.cache.Set(ctx, key, string(raw), v.cacheTTL); err != nil {
		v.logger.Warn(ctx, "coupon cache write failed")
	}
}
