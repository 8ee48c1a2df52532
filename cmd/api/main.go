package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/poppyflores/checkout-backend/api/routes"
	"github.com/poppyflores/checkout-backend/internal/cart"
	"github.com/poppyflores/checkout-backend/internal/checkout"
	"github.com/poppyflores/checkout-backend/internal/coupons"
	"github.com/poppyflores/checkout-backend/internal/preference"
	"github.com/poppyflores/checkout-backend/pkg/backend"
	"github.com/poppyflores/checkout-backend/pkg/config"
	"github.com/poppyflores/checkout-backend/pkg/logger"
	"github.com/poppyflores/checkout-backend/pkg/mercadopago"
	"github.com/poppyflores/checkout-backend/pkg/metrics"
	"github.com/poppyflores/checkout-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "checkout-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "checkout-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	promRegistry := prometheus.NewRegistry()
	checkoutMetrics := metrics.NewCheckoutMetrics(promRegistry)

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	backendClient, err := backend.NewClient(cfg.Backend, logg, checkoutMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create backend client", err)
		os.Exit(1)
	}

	mpClient, err := mercadopago.NewClient(context.Background(), cfg.Payments, logg, checkoutMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create mercado pago client", err)
		os.Exit(1)
	}

	cartStore, err := cart.NewStore(redisClient, cfg.Checkout.CartTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart store", err)
		os.Exit(1)
	}

	couponValidator, err := coupons.NewValidator(coupons.Options{
		Backend:      backendClient,
		Cache:        redisClient,
		Logger:       logg,
		Metrics:      checkoutMetrics,
		ReservedCode: cfg.Checkout.ReservedCoupon,
		CacheTTL:     cfg.Checkout.CouponCacheTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create coupon validator", err)
		os.Exit(1)
	}

	builder, err := preference.NewBuilder(cfg.Payments, backendClient, mpClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create preference builder", err)
		os.Exit(1)
	}

	sessions := checkout.NewRegistry(func(sessionID string) (*checkout.Orchestrator, error) {
		return checkout.New(sessionID, checkout.Deps{
			Validator: couponValidator,
			Builder:   builder,
			Payments:  mpClient,
			Carts:     cartStore,
			Logger:    logg,
			Metrics:   checkoutMetrics,
		}, checkout.Config{
			DebounceDelay: cfg.Checkout.DebounceDelay,
			ReservedCode:  cfg.Checkout.ReservedCoupon,
			SuccessURL:    cfg.Payments.SuccessURL,
			FailureURL:    cfg.Payments.FailureURL,
		})
	}, cfg.Checkout.SessionTTL, cfg.Checkout.SessionSweep, logg)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"payment_mode": cfg.Payments.Mode,
	})
	logg.Info(ctx, "starting checkout api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:    cfg,
			Logger:    logg,
			Redis:     redisClient,
			Sessions:  sessions,
			CartStore: cartStore,
			Catalog:   backendClient,
			Metrics:   promRegistry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "checkout api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-shutdownCtx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var closeErr error
	closeErr = multierr.Append(closeErr, server.Shutdown(drainCtx))
	sessions.Close()
	closeErr = multierr.Append(closeErr, redisClient.Close())
	if closeErr != nil {
		logg.Error(ctx, "shutdown finished with errors", closeErr)
		os.Exit(1)
	}
	logg.Info(ctx, "shutdown complete")
}
