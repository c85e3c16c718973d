package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(lockContentionTotal, rateLimitedTotal) }

var (
	lockContentionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_contention_total",
			Help: "Distributed lock acquisitions that gave up, by lock name.",
		},
		[]string{"lock"},
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limited_total",
			Help: "Requests rejected by the per-user rate limiter, by action.",
		},
		[]string{"action"},
	)
)

func IncLockContention(name string) { lockContentionTotal.WithLabelValues(norm(name)).Inc() }

func IncRateLimited(action string) { rateLimitedTotal.WithLabelValues(norm(action)).Inc() }
