package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(gatewayCallDuration) }

var gatewayCallDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "payment_gateway_call_duration_seconds",
		Help:    "Latency of payment provider calls by operation and success.",
		Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	},
	[]string{"provider", "op", "success"},
)

func ObserveGatewayCall(provider, op string, d time.Duration, err error) {
	gatewayCallDuration.WithLabelValues(norm(provider), norm(op), boolLabel(err == nil)).Observe(d.Seconds())
}
