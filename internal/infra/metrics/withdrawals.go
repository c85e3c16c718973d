package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		withdrawalsTotal,
		withdrawnTotal,
	)
}

var (
	// result: requested|replayed|insufficient|invalid|transfer_failed|reversed|error
	withdrawalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawals_total",
			Help: "Withdrawal attempts by result.",
		},
		[]string{"result"},
	)

	withdrawnTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "withdrawn_minor_total",
			Help: "Sum of withdrawn amounts in minor units.",
		},
	)
)

func IncWithdrawal(result string) {
	withdrawalsTotal.WithLabelValues(norm(result)).Inc()
}

func AddWithdrawn(amount int64) { withdrawnTotal.Add(float64(amount)) }
