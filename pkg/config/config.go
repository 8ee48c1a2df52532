package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	Redis     RedisConfig
	Backend   BackendConfig
	Payments  PaymentsConfig
	Checkout  CheckoutConfig
	Identity  IdentityConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Payments.validateMode(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"POPPY_APP_ENV" required:"true"`
	Port         string `envconfig:"POPPY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"POPPY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"POPPY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type RedisConfig struct {
	URL          string        `envconfig:"POPPY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"POPPY_REDIS_ADDR"`
	Password     string        `envconfig:"POPPY_REDIS_PASSWORD"`
	DB           int           `envconfig:"POPPY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POPPY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"POPPY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"POPPY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POPPY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"POPPY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// BackendConfig points at the remote commerce backend that owns the
// catalogue, coupon authority, and hosted preference creation.
type BackendConfig struct {
	BaseURL string        `envconfig:"POPPY_BACKEND_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"POPPY_BACKEND_API_KEY"`
	Timeout time.Duration `envconfig:"POPPY_BACKEND_TIMEOUT" default:"10s"`
}

type PaymentsConfig struct {
	AccessToken string        `envconfig:"POPPY_MP_ACCESS_TOKEN" required:"true"`
	BaseURL     string        `envconfig:"POPPY_MP_BASE_URL" default:"https://api.mercadopago.com"`
	Timeout     time.Duration `envconfig:"POPPY_MP_TIMEOUT" default:"15s"`
	Locale      string        `envconfig:"POPPY_MP_LOCALE" default:"es-AR"`

	// Mode selects hosted Checkout Pro redirect vs embedded Payment Brick.
	Mode       string `envconfig:"POPPY_CHECKOUT_PAYMENT_MODE" default:"widget"`
	SuccessURL string `envconfig:"POPPY_CHECKOUT_SUCCESS_URL" required:"true"`
	FailureURL string `envconfig:"POPPY_CHECKOUT_FAILURE_URL" required:"true"`
	PendingURL string `envconfig:"POPPY_CHECKOUT_PENDING_URL"`
}

// HostedMode reports whether preferences resolve to a full-page redirect.
func (p PaymentsConfig) HostedMode() bool {
	return strings.EqualFold(strings.TrimSpace(p.Mode), PaymentModeHosted)
}

func (p PaymentsConfig) validateMode() error {
	mode := strings.TrimSpace(strings.ToLower(p.Mode))
	switch mode {
	case PaymentModeHosted, PaymentModeWidget:
		return nil
	default:
		return fmt.Errorf("payment mode must be %q or %q", PaymentModeHosted, PaymentModeWidget)
	}
}

type CheckoutConfig struct {
	ReservedCoupon string        `envconfig:"POPPY_CHECKOUT_RESERVED_COUPON" default:"POPPYWEB"`
	DebounceDelay  time.Duration `envconfig:"POPPY_CHECKOUT_DEBOUNCE_DELAY" default:"500ms"`
	CouponCacheTTL time.Duration `envconfig:"POPPY_CHECKOUT_COUPON_CACHE_TTL" default:"2m"`
	CartTTL        time.Duration `envconfig:"POPPY_CHECKOUT_CART_TTL" default:"24h"`
	SessionTTL     time.Duration `envconfig:"POPPY_CHECKOUT_SESSION_TTL" default:"30m"`
	SessionSweep   time.Duration `envconfig:"POPPY_CHECKOUT_SESSION_SWEEP" default:"5m"`
}

// IdentityConfig verifies the optional bearer token minted by the auth
// backend. The token only gates the reserved coupon; checkout stays open
// to guests when no token is presented.
type IdentityConfig struct {
	JWTSecret string `envconfig:"POPPY_IDENTITY_JWT_SECRET"`
	Issuer    string `envconfig:"POPPY_IDENTITY_JWT_ISSUER"`
}

func (i IdentityConfig) Enabled() bool {
	return strings.TrimSpace(i.JWTSecret) != ""
}

type RateLimitConfig struct {
	CouponWindow time.Duration `envconfig:"POPPY_RATE_LIMIT_COUPON_WINDOW" default:"1m"`
	CouponLimit  int           `envconfig:"POPPY_RATE_LIMIT_COUPON_LIMIT" default:"30"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"POPPY_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}
