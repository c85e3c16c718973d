package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(eventsPublishedTotal, reconcilerRunsTotal) }

var (
	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_published_total",
			Help: "Ledger events handed to the broker, by type and status.",
		},
		[]string{"type", "status"}, // 'ok', 'failed', 'dropped'
	)

	reconcilerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intent_reconciler_items_total",
			Help: "Stale intents handled by the reconciler, by outcome.",
		},
		[]string{"outcome"},
	)
)

func IncEventPublished(eventType, status string) {
	eventsPublishedTotal.WithLabelValues(norm(eventType), norm(status)).Inc()
}

func IncReconciled(outcome string) {
	reconcilerRunsTotal.WithLabelValues(norm(outcome)).Inc()
}
