package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(webhookEventsTotal) }

// result: processed|ignored|rejected|malformed|failed
var webhookEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Gateway webhook deliveries by event kind and result.",
	},
	[]string{"kind", "result"},
)

func IncWebhook(kind, result string) {
	if kind == "" {
		kind = "unknown"
	}
	webhookEventsTotal.WithLabelValues(norm(kind), norm(result)).Inc()
}
