package proxypool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outreach_proxy_pool_size",
			Help: "Number of proxies in the pool",
		},
	)

	assignedCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outreach_proxy_assignments",
			Help: "Number of accounts with an assigned proxy",
		},
	)

	healthChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_proxy_health_checks_total",
			Help: "Proxy health checks by outcome",
		},
		[]string{"outcome"},
	)

	statusChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_proxy_status_changes_total",
			Help: "Proxy status transitions",
		},
		[]string{"status"},
	)

	rotationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outreach_proxy_rotations_total",
			Help: "Proxy rotations performed",
		},
	)
)

func setPoolSize(n int) {
	poolSize.Set(float64(n))
}

func setAssignedCount(n int) {
	assignedCount.Set(float64(n))
}

func recordHealthCheck(healthy bool) {
	outcome := "success"
	if !healthy {
		outcome = "failure"
	}
	healthChecksTotal.WithLabelValues(outcome).Inc()
}

func recordStatusChange(status string) {
	statusChangesTotal.WithLabelValues(status).Inc()
}

func recordRotation() {
	rotationsTotal.Inc()
}
