package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		intentsTotal,
		purchasesTotal,
		purchaseRevenueTotal,
		platformFeesTotal,
		settleDuration,
		settleRetriesTotal,
	)
}

var (
	intentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_intents_total",
			Help: "RequestIntent outcomes (created/rejected/error).",
		},
		[]string{"result"},
	)

	// result: settled|duplicate|not_succeeded|rejected|error
	purchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_confirm_total",
			Help: "ConfirmPurchase outcomes by result and trigger (client/webhook/reconciler).",
		},
		[]string{"result", "source"},
	)

	purchaseRevenueTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "purchase_revenue_minor_total",
			Help: "Sum of settled purchase amounts in minor units.",
		},
	)

	platformFeesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "purchase_platform_fees_minor_total",
			Help: "Sum of platform fees retained in minor units.",
		},
	)

	settleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "purchase_settle_duration_seconds",
			Help:    "Duration of the atomic ledger settle step.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	settleRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "purchase_settle_retries_total",
			Help: "Settle attempts repeated after a concurrent price change.",
		},
	)
)

func IncIntent(result string) {
	intentsTotal.WithLabelValues(norm(result)).Inc()
}

func IncPurchaseConfirm(result, source string) {
	purchasesTotal.WithLabelValues(norm(result), norm(source)).Inc()
}

func AddSettledPurchase(amount, fee int64) {
	purchaseRevenueTotal.Add(float64(amount))
	platformFeesTotal.Add(float64(fee))
}

func ObserveSettle(d time.Duration) {
	settleDuration.Observe(d.Seconds())
}

func IncSettleRetry() { settleRetriesTotal.Inc() }
