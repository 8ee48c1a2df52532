package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records counters and latencies for the checkout flow.
type CheckoutMetrics struct {
	couponValidations *prometheus.CounterVec
	checkoutOutcomes  *prometheus.CounterVec
	providerDuration  *prometheus.HistogramVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	couponValidations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coupon_validations_total",
		Help: "Coupon validation attempts by result.",
	}, []string{"result"})
	checkoutOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_outcomes_total",
		Help: "Checkout submissions by terminal outcome.",
	}, []string{"outcome"})
	providerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_request_duration_seconds",
		Help:    "Duration of remote provider calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
	reg.MustRegister(couponValidations, checkoutOutcomes, providerDuration)
	return &CheckoutMetrics{
		couponValidations: couponValidations,
		checkoutOutcomes:  checkoutOutcomes,
		providerDuration:  providerDuration,
	}
}

// IncCouponValidation increments the validation counter for the given result.
func (c *CheckoutMetrics) IncCouponValidation(result string) {
	if c == nil || c.couponValidations == nil {
		return
	}
	c.couponValidations.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncCheckoutOutcome increments the outcome counter.
func (c *CheckoutMetrics) IncCheckoutOutcome(outcome string) {
	if c == nil || c.checkoutOutcomes == nil {
		return
	}
	c.checkoutOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveProviderDuration records the duration of a provider call.
func (c *CheckoutMetrics) ObserveProviderDuration(provider, operation string, duration time.Duration) {
	if c == nil || c.providerDuration == nil {
		return
	}
	c.providerDuration.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
