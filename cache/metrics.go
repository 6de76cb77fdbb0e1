package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirrorfeed_cache_hits_total",
		Help: "The total number of GetPosts calls served entirely from cache",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirrorfeed_cache_misses_total",
		Help: "The total number of GetPosts calls that went to the network",
	})

	degradedReturns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirrorfeed_cache_degraded_returns_total",
		Help: "The total number of stale-cache fallbacks after a network failure",
	})

	postsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mirrorfeed_cache_posts_persisted_total",
		Help: "The total number of post rows written to the cache store",
	})
)
