package followback

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	followsRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outreach_followback_registered_total",
		Help: "Follows registered for follow-back tracking",
	})

	mutualDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outreach_followback_mutual_total",
		Help: "Follow-backs detected",
	})

	timeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outreach_followback_timeouts_total",
		Help: "Follows unfollowed after the follow-back window expired",
	})
)

func recordFollowRegistered() { followsRegistered.Inc() }
func recordMutual()           { mutualDetected.Inc() }
func recordTimeout()          { timeouts.Inc() }
