package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests, labeled by route and status",
	}, []string{"route", "status"})

	TilesRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_requests_total",
		Help: "Total number of tile requests",
	}, []string{"source"})

	TilesCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_cache_hits_total",
		Help: "Total number of cache hits, labeled by tier",
	}, []string{"source", "tier"})

	TilesCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_cache_misses_total",
		Help: "Total number of full cache misses",
	}, []string{"source"})

	TilesCacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_cache_evictions_total",
		Help: "Total number of cache entries removed by cleanup",
	}, []string{"source", "reason"})

	TilesCacheSizeBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tiles_cache_size_bytes",
		Help: "On-disk cache size observed by the last cleanup",
	}, []string{"source"})

	TilesStaleServed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_stale_served_total",
		Help: "Total number of expired entries served because a refresh failed",
	}, []string{"source"})

	TilesUpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_upstream_requests_total",
		Help: "Total number of upstream requests, labeled by outcome",
	}, []string{"source", "outcome"})

	TilesUpstreamRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tiles_upstream_retries_total",
		Help: "Total number of retried upstream requests",
	}, []string{"source"})

	TilesUpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tiles_upstream_latency_seconds",
		Help:    "Latency of upstream fetches in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
)
