package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/grigta/outreach/pkg/scheduler"
)

var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_actions_total",
		Help: "Executed actions by platform, type and result",
	}, []string{"platform", "action_type", "result"})

	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outreach_action_duration_ms",
		Help:    "Action execution time in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	}, []string{"action_type"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "outreach_active_sessions",
		Help: "Currently open browser sessions",
	})
)

func recordActionMetric(platform scheduler.Platform, action scheduler.ActionType, result ActionResult) {
	actionsTotal.WithLabelValues(string(platform), string(action), string(result)).Inc()
}

func observeActionDuration(action scheduler.ActionType, ms int64) {
	actionDuration.WithLabelValues(string(action)).Observe(float64(ms))
}

func setActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
