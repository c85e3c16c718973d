package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(ledgerDBConns) }

var ledgerDBConns = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "ledger_db_connections",
		Help: "Postgres pool connections backing the ledger, by state.",
	},
	[]string{"state"}, // total|idle|acquired|max
)

func SetDBPoolStats(total, idle, acquired, maxConns int32) {
	ledgerDBConns.WithLabelValues("total").Set(float64(total))
	ledgerDBConns.WithLabelValues("idle").Set(float64(idle))
	ledgerDBConns.WithLabelValues("acquired").Set(float64(acquired))
	ledgerDBConns.WithLabelValues("max").Set(float64(maxConns))
}
