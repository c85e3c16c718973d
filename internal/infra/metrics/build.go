package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(buildInfo) }

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "paywall_build_info",
		Help: "Constant 1, labeled with version and ledger store driver.",
	},
	[]string{"version", "store"},
)

func SetBuildInfo(version, store string) {
	buildInfo.WithLabelValues(version, store).Set(1)
}
