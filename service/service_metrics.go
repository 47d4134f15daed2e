package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/devcache/devcache/cache"
	"github.com/devcache/devcache/cache/pressure"
)

var (
	promCounterForCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devcache_entries_created_total",
		Help: "The total number of cache entries created",
	})

	promCounterForEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devcache_entries_evicted_total",
		Help: "The total number of cache entries evicted from the memory tier",
	})

	promCounterForInvalidated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devcache_entries_invalidated_total",
		Help: "The total number of cache entries invalidated by corruption or hash mismatch",
	})

	promCounterForExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "devcache_entries_expired_total",
		Help: "The total number of cache entries expired by TTL",
	})

	promGaugeForHits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devcache_hits",
		Help: "The total number of cache hits",
	})

	promGaugeForMisses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devcache_misses",
		Help: "The total number of cache misses",
	})

	promGaugeForHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devcache_hit_rate",
		Help: "The cache hit rate",
	})

	promGaugeForMemoryEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devcache_memory_entries",
		Help: "The number of entries in the memory tier",
	})

	promGaugeForTotalSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devcache_memory_bytes",
		Help: "The total payload bytes held in the memory tier",
	})

	promGaugeForCompressionRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devcache_compression_ratio",
		Help: "The aggregate on-disk compression ratio",
	})

	promGaugeForBreakerRejected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devcache_breaker_rejected_total",
		Help: "The total number of operations rejected by the circuit breaker",
	})

	promGaugeForPressureLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devcache_memory_pressure_level",
		Help: "The memory pressure level (0 normal, 1 warning, 2 critical)",
	})

	promGaugeForPressureEvictions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devcache_pressure_evictions_total",
		Help: "The total number of pressure-triggered eviction passes",
	})
)

// countLifecycleEvent maps cache lifecycle events to prometheus counters
func countLifecycleEvent(event cache.Event) {
	switch event.Type {
	case cache.EventCreated:
		promCounterForCreated.Inc()
	case cache.EventEvicted:
		promCounterForEvicted.Inc()
	case cache.EventInvalidated:
		promCounterForInvalidated.Inc()
	case cache.EventExpired:
		promCounterForExpired.Inc()
	}
}

// publishStats pushes statistics snapshots to the prometheus gauges
func publishStats(stats cache.Stats, detectorStats pressure.DetectorStats) {
	promGaugeForHits.Set(float64(stats.Hits))
	promGaugeForMisses.Set(float64(stats.Misses))
	promGaugeForHitRate.Set(stats.HitRate)
	promGaugeForMemoryEntries.Set(float64(stats.MemoryEntries))
	promGaugeForTotalSize.Set(float64(stats.TotalSize))
	promGaugeForCompressionRatio.Set(stats.CompressionRatio)
	promGaugeForBreakerRejected.Set(float64(stats.Breaker.Rejected))

	switch detectorStats.Level {
	case pressure.LevelNormal:
		promGaugeForPressureLevel.Set(0)
	case pressure.LevelWarning:
		promGaugeForPressureLevel.Set(1)
	case pressure.LevelCritical:
		promGaugeForPressureLevel.Set(2)
	}

	promGaugeForPressureEvictions.Set(float64(detectorStats.Evictions))
}
