// Package metrics exposes Turf's ambient observability surface as
// Prometheus collectors: commit throughput, writer-lock contention,
// cache effectiveness and observer fan-out latency.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector bundles every metric Turf records. One Collector is created
// per Database and registered against the caller's registry: a
// per-subsystem collector struct rather than package-level globals.
type Collector struct {
	CommitTotal        prometheus.Counter
	CommitDuration     prometheus.Histogram
	WriterLockWait     prometheus.Histogram
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	ActiveObservers    prometheus.Gauge
	ObserverDispatch   prometheus.Histogram
	BackfillDuration   *prometheus.HistogramVec
}

// New builds a Collector with a namespace/subsystem pair distinguishing
// multiple Turf databases opened in the same process.
func New(namespace, subsystem string) *Collector {
	return &Collector{
		CommitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "commits_total",
			Help: "Number of write transactions committed.",
		}),
		CommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "commit_duration_seconds",
			Help: "Duration of committed write transactions.", Buckets: prometheus.DefBuckets,
		}),
		WriterLockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "writer_lock_wait_seconds",
			Help: "Time spent waiting to acquire the database writer lock.", Buckets: prometheus.DefBuckets,
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "cache_hits_total",
			Help: "Value cache hits by collection.",
		}, []string{"collection"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "cache_misses_total",
			Help: "Value cache misses by collection.",
		}, []string{"collection"}),
		ActiveObservers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "active_observers",
			Help: "Number of currently subscribed collection observables.",
		}),
		ObserverDispatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "observer_dispatch_seconds",
			Help: "Time spent delivering one change set to all observers.", Buckets: prometheus.DefBuckets,
		}),
		BackfillDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: "index_backfill_duration_seconds",
			Help: "Duration of secondary index backfill by index name.", Buckets: prometheus.DefBuckets,
		}, []string{"index"}),
	}
}

// MustRegister registers every metric in c against reg.
func (c *Collector) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		c.CommitTotal, c.CommitDuration, c.WriterLockWait,
		c.CacheHits, c.CacheMisses, c.ActiveObservers, c.ObserverDispatch, c.BackfillDuration,
	)
}
