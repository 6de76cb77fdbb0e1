package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirrorfeed_fetch_pages_total",
		Help: "The total number of mirror pages fetched",
	}, []string{"mirror", "mode"})

	pageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirrorfeed_fetch_page_errors_total",
		Help: "The total number of page fetches that failed",
	}, []string{"mirror", "mode"})

	challengeRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirrorfeed_fetch_challenge_retries_total",
		Help: "The total number of anti-bot challenge retries attempted",
	}, []string{"mirror"})

	postsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirrorfeed_fetch_posts_extracted_total",
		Help: "The total number of posts extracted from mirror pages",
	}, []string{"mirror", "mode"})

	failoverAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mirrorfeed_failover_attempts_total",
		Help: "The total number of per-mirror fetch attempts made by the failover loop",
	}, []string{"mirror"})

	failoverExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirrorfeed_failover_exhausted_total",
		Help: "The total number of fetches that exhausted every configured mirror",
	})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mirrorfeed_fetch_duration_seconds",
		Help:    "Duration of complete per-mirror fetches including pagination",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)
