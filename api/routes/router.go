package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poppyflores/checkout-backend/api/controllers"
	"github.com/poppyflores/checkout-backend/api/middleware"
	"github.com/poppyflores/checkout-backend/pkg/config"
	"github.com/poppyflores/checkout-backend/pkg/logger"
	"github.com/poppyflores/checkout-backend/pkg/redis"
)

// RouterParams bundles the wired collaborators the HTTP surface needs.
type RouterParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	Redis     *redis.Client
	Sessions  controllers.Sessions
	CartStore controllers.CartWriter
	Catalog   controllers.ProductLister
	Metrics   prometheus.Gatherer
}

func NewRouter(p RouterParams) http.Handler {
	// A typed nil *redis.Client must degrade like an absent one.
	readyPinger := controllers.HealthReady(p.Config, p.Logger, nil)
	couponLimiter := func(next http.Handler) http.Handler { return next }
	if p.Redis != nil {
		readyPinger = controllers.HealthReady(p.Config, p.Logger, p.Redis)
		couponLimiter = middleware.CouponRateLimit(p.Config.RateLimit, p.Redis, p.Logger)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
		middleware.CORS(p.Config.CORS),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(p.Config))
		r.Get("/ready", readyPinger)
	})

	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/catalog/products", controllers.CatalogProducts(p.Catalog, p.Logger))

		r.Route("/checkout", func(r chi.Router) {
			r.Use(middleware.Session(p.Logger))
			r.Use(middleware.Identity(p.Config.Identity, p.Logger))

			r.With(couponLimiter).
				Post("/coupons/validate", controllers.CouponValidate(p.Sessions, p.Logger))

			r.Put("/cart", controllers.CartPut(p.CartStore, p.Sessions, p.Logger))
			r.Post("/submit", controllers.CheckoutSubmit(p.Sessions, p.Logger))
			r.Post("/payment", controllers.WidgetPayment(p.Sessions, p.Logger))
			r.Route("/widget", func(r chi.Router) {
				r.Post("/ready", controllers.WidgetReady(p.Sessions, p.Logger))
				r.Post("/error", controllers.WidgetError(p.Sessions, p.Logger))
				r.Post("/close", controllers.WidgetClose(p.Sessions, p.Logger))
			})
		})
	})

	return r
}
