package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/famline/notifications/internal/notification_service/breaker"
)

var (
	deliveryAttemptsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery",
			Name:      "attempts_total",
			Help:      "Total delivery attempts by channel and outcome.",
		},
		[]string{"channel", "outcome"}, // outcome: sent|retry|failed|failed_permanent
	)
	deliveryDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "delivery",
			Name:      "send_duration_seconds",
			Help:      "Duration of channel send calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"channel"},
	)
	breakerDeferralsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "delivery",
			Name:      "breaker_deferrals_total",
			Help:      "Jobs requeued without a send because the channel circuit was open.",
		},
		[]string{"channel"},
	)
	breakerStateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "delivery",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per channel: 0=closed, 1=half-open, 2=open.",
		},
		[]string{"channel"},
	)
)

// BreakerGaugeHook adapts breaker transitions onto the state gauge so
// an open provider is visible on the operator dashboard instead of
// jobs silently accumulating.
func BreakerGaugeHook() func(channel string, state breaker.State) {
	return func(channel string, state breaker.State) {
		var v float64
		switch state {
		case breaker.StateHalfOpen:
			v = 1
		case breaker.StateOpen:
			v = 2
		}
		breakerStateGauge.WithLabelValues(channel).Set(v)
	}
}
