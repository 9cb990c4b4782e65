package qorzendb

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// queryMetrics is the ring-buffer + Prometheus view of a connection's
// recent query activity, mirroring DatabaseManager's
// _update_query_metrics ring buffer in the original implementation.
type queryMetrics struct {
	mu      sync.Mutex
	samples []querySample
	maxSize int

	total  prometheus.Counter
	failed prometheus.Counter
	durs   prometheus.Histogram
}

type querySample struct {
	Statement string
	Duration  time.Duration
	Err       error
	At        time.Time
}

const defaultRingBufferSize = 100
const slowQueryThreshold = 1 * time.Second
const slowQueryLogTruncate = 1000

func newQueryMetrics(connectionName string, registry prometheus.Registerer) *queryMetrics {
	qm := &queryMetrics{
		maxSize: defaultRingBufferSize,
		total: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "qorzendb_queries_total",
			Help:        "Total queries dispatched on a connection.",
			ConstLabels: prometheus.Labels{"connection": connectionName},
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "qorzendb_queries_failed_total",
			Help:        "Total queries that returned an error.",
			ConstLabels: prometheus.Labels{"connection": connectionName},
		}),
		durs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "qorzendb_query_duration_seconds",
			Help:        "Query duration in seconds.",
			ConstLabels: prometheus.Labels{"connection": connectionName},
			Buckets:     prometheus.DefBuckets,
		}),
	}
	if registry != nil {
		registry.MustRegister(qm.total, qm.failed, qm.durs)
	}
	return qm
}

// record appends a new sample, evicting the oldest once maxSize is
// exceeded, and updates the Prometheus counters/histogram.
func (qm *queryMetrics) record(statement string, dur time.Duration, err error) {
	qm.mu.Lock()
	qm.samples = append(qm.samples, querySample{Statement: statement, Duration: dur, Err: err, At: time.Now()})
	if len(qm.samples) > qm.maxSize {
		qm.samples = qm.samples[len(qm.samples)-qm.maxSize:]
	}
	qm.mu.Unlock()

	qm.total.Inc()
	if err != nil {
		qm.failed.Inc()
	}
	qm.durs.Observe(dur.Seconds())
}

// recent returns a snapshot of the ring buffer's current contents.
func (qm *queryMetrics) recent() []querySample {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	out := make([]querySample, len(qm.samples))
	copy(out, qm.samples)
	return out
}

// isSlow reports whether dur exceeds the slow-query threshold.
func isSlow(dur time.Duration) bool { return dur > slowQueryThreshold }
