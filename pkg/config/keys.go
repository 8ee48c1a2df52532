package config

const (
	EnvPrefix = "POPPY"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	PaymentModeHosted = "hosted"
	PaymentModeWidget = "widget"

	EnvAppEnv         = "POPPY_APP_ENV"
	EnvPort           = "POPPY_APP_PORT"
	EnvRedisURL       = "POPPY_REDIS_URL"
	EnvBackendBaseURL = "POPPY_BACKEND_BASE_URL"
	EnvMPAccessToken  = "POPPY_MP_ACCESS_TOKEN"
	EnvPaymentMode    = "POPPY_CHECKOUT_PAYMENT_MODE"
	EnvSuccessURL     = "POPPY_CHECKOUT_SUCCESS_URL"
	EnvFailureURL     = "POPPY_CHECKOUT_FAILURE_URL"
)
