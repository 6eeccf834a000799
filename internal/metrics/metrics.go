// Package metrics holds the Prometheus collectors for storage, containers and
// logical logs.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "logmux"

// Metrics is a set of collectors registered on one registry.
type Metrics struct {
	StorageSeconds *prometheus.HistogramVec
	StorageBytes   *prometheus.CounterVec
	StorageOps     prometheus.Counter

	ContainersOpen   prometheus.Gauge
	BlockCacheHits   prometheus.Counter
	BlockCacheMisses prometheus.Counter

	LogsOpen          prometheus.Gauge
	RecordsWritten    prometheus.Counter
	BytesAppended     prometheus.Counter
	FlushWaits        prometheus.Counter
	BytesRead         prometheus.Counter
	BlockReads        *prometheus.CounterVec
	ReadAheadDiscards prometheus.Counter
	ZeroReadRetries   prometheus.Counter
	Truncations       *prometheus.CounterVec
}

// New creates collectors registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StorageSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "op_seconds",
			Help:      "Latency of storage operations",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"op"}),
		StorageBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "bytes_total",
			Help:      "Bytes moved through the storage layer",
		}, []string{"op"}),
		StorageOps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "batch_ops_total",
			Help:      "Operations committed in batches",
		}),
		ContainersOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "container",
			Name:      "open",
			Help:      "Number of open containers",
		}),
		BlockCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "container",
			Name:      "block_cache_hits_total",
			Help:      "Block reads served from the cache",
		}),
		BlockCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "container",
			Name:      "block_cache_misses_total",
			Help:      "Block reads that went to storage",
		}),
		LogsOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "open",
			Help:      "Number of open logical logs",
		}),
		RecordsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "records_written_total",
			Help:      "Sealed records written to containers",
		}),
		BytesAppended: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "bytes_appended_total",
			Help:      "Payload bytes accepted by Append",
		}),
		FlushWaits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "flush_waits_total",
			Help:      "Flushes that queued behind another flush",
		}),
		BytesRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "bytes_read_total",
			Help:      "Payload bytes returned by Read",
		}),
		BlockReads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "block_reads_total",
			Help:      "Block fetches by source (sync, readahead_hit, readahead_miss)",
		}, []string{"source"}),
		ReadAheadDiscards: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "readahead_discards_total",
			Help:      "Background reads dropped after invalidation or failure",
		}),
		ZeroReadRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "zero_read_retries_total",
			Help:      "Reads retried after a zero-byte result",
		}),
		Truncations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "log",
			Name:      "truncations_total",
			Help:      "Truncations by end (head, tail)",
		}, []string{"end"}),
	}
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns collectors registered on the Prometheus default registry.
func Default() *Metrics {
	defaultOnce.Do(func() { defaultMetrics = New(prometheus.DefaultRegisterer) })
	return defaultMetrics
}

// Discard returns collectors on a private registry nobody scrapes.
func Discard() *Metrics { return New(prometheus.NewRegistry()) }

// StorageHook adapts the storage collectors to pebblestore.MetricsHook.
type StorageHook struct{ m *Metrics }

// Storage returns the storage observation hook.
func (m *Metrics) Storage() StorageHook { return StorageHook{m: m} }

func (h StorageHook) ObserveWrite(elapsed time.Duration, bytes int) {
	h.m.StorageSeconds.WithLabelValues("write").Observe(elapsed.Seconds())
	h.m.StorageBytes.WithLabelValues("write").Add(float64(bytes))
}

func (h StorageHook) ObserveRead(elapsed time.Duration, bytes int) {
	h.m.StorageSeconds.WithLabelValues("read").Observe(elapsed.Seconds())
	h.m.StorageBytes.WithLabelValues("read").Add(float64(bytes))
}

func (h StorageHook) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	h.m.StorageSeconds.WithLabelValues("commit").Observe(elapsed.Seconds())
	h.m.StorageBytes.WithLabelValues("commit").Add(float64(bytes))
	h.m.StorageOps.Add(float64(numOps))
}
