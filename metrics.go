package ingestkit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the pipeline. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	chunksSent      prometheus.Counter
	chunkRetries    prometheus.Counter
	uploads         *prometheus.CounterVec
	sanitizations   *prometheus.CounterVec
	sanitizeSeconds prometheus.Histogram
	cacheLookups    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	if namespace == "" {
		namespace = "ingestkit"
	}
	m := &Metrics{
		chunksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "chunks_sent_total",
			Help:      "Chunks acknowledged by the transport",
		}),
		chunkRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "chunk_retries_total",
			Help:      "Chunk upload attempts that were retried",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "sessions_total",
			Help:      "Transfer sessions by terminal or suspended state",
		}, []string{"state"}),
		sanitizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sanitize",
			Name:      "sessions_total",
			Help:      "Sanitization sessions by final state",
		}, []string{"state"}),
		sanitizeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sanitize",
			Name:      "duration_seconds",
			Help:      "Wall-clock time of sanitization sessions that did chunk work",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sanitize",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome",
		}, []string{"result"}),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.chunksSent, m.chunkRetries, m.uploads,
		m.sanitizations, m.sanitizeSeconds, m.cacheLookups,
	}
}

func (m *Metrics) chunkSent() {
	if m == nil {
		return
	}
	m.chunksSent.Inc()
}

func (m *Metrics) chunkRetried() {
	if m == nil {
		return
	}
	m.chunkRetries.Inc()
}

func (m *Metrics) uploadEnded(s State) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(s.String()).Inc()
}

func (m *Metrics) sanitizeEnded(s SanitizeState, d time.Duration) {
	if m == nil {
		return
	}
	m.sanitizations.WithLabelValues(s.String()).Inc()
	if d > 0 {
		m.sanitizeSeconds.Observe(d.Seconds())
	}
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
