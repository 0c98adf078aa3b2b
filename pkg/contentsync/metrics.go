package contentsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_content_sync_jobs_total",
		Help: "Content sync jobs by final status",
	}, []string{"status"})

	scrapedPostsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outreach_content_scraped_posts_total",
		Help: "Posts scraped from source accounts by platform",
	}, []string{"platform"})
)

func recordJobStatus(status SyncStatus) {
	syncJobsTotal.WithLabelValues(string(status)).Inc()
}

func recordScrapedPosts(platform string, count int) {
	scrapedPostsTotal.WithLabelValues(platform).Add(float64(count))
}
