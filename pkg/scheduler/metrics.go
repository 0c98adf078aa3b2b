package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_limiter_decisions_total",
			Help: "Rate limiter decisions by platform, action type and outcome",
		},
		[]string{"platform", "action_type", "outcome"},
	)

	coolingTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outreach_limiter_cooling_total",
			Help: "Cooling periods applied to accounts",
		},
		[]string{"platform"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outreach_action_queue_depth",
			Help: "Number of actions currently in the queue",
		},
	)
)

func recordDecision(platform, actionType, outcome string) {
	decisionsTotal.WithLabelValues(platform, actionType, outcome).Inc()
}

func recordCooling(platform string) {
	coolingTotal.WithLabelValues(platform).Inc()
}

func setQueueDepth(n int) {
	queueDepth.Set(float64(n))
}
