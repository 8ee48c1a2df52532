package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/poppyflores/checkout-backend/api/responses"
	"github.com/poppyflores/checkout-backend/pkg/config"
	pkgerrors "github.com/poppyflores/checkout-backend/pkg/errors"
	"github.com/poppyflores/checkout-backend/pkg/logger"
)

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// CouponRateLimit throttles coupon validation per session so a storefront bug
// cannot hammer the backend's coupon endpoint.
func CouponRateLimit(cfg config.RateLimitConfig, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || cfg.CouponLimit <= 0 || cfg.CouponWindow <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			scope := SessionIDFromContext(ctx)
			if scope == "" {
				scope = clientIP(r)
			}
			if scope == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, count, err := store.FixedWindowAllow(ctx, "coupon:"+scope, int64(cfg.CouponLimit), cfg.CouponWindow)
			if err != nil {
				// Limiter outage must not take down validation.
				if logg != nil {
					logg.Warn(ctx, "coupon rate limiter unavailable")
				}
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "count", count), "coupon validation throttled")
				}
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many coupon checks, wait a moment"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
