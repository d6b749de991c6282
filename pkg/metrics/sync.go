package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records replication activity between the terminal replica
// and the remote store.
type SyncMetrics struct {
	duration    *prometheus.HistogramVec
	docsRead    *prometheus.CounterVec
	docsWritten *prometheus.CounterVec
	failures    *prometheus.CounterVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_duration_seconds",
		Help:    "Duration of sync runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"direction"})
	docsRead := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_docs_read_total",
		Help: "Documents pulled from the remote store.",
	}, []string{"direction"})
	docsWritten := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_docs_written_total",
		Help: "Documents pushed to the remote store.",
	}, []string{"direction"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_failures_total",
		Help: "Sync runs that ended in error, by error code.",
	}, []string{"code"})
	reg.MustRegister(duration, docsRead, docsWritten, failures)
	return &SyncMetrics{
		duration:    duration,
		docsRead:    docsRead,
		docsWritten: docsWritten,
		failures:    failures,
	}
}

// ObserveDuration records the wall time of a sync run.
func (s *SyncMetrics) ObserveDuration(direction string, duration time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.WithLabelValues(normalizeLabel(direction)).Observe(duration.Seconds())
}

// AddDocsRead counts documents read during the pull leg.
func (s *SyncMetrics) AddDocsRead(direction string, count int) {
	if s == nil || s.docsRead == nil || count <= 0 {
		return
	}
	s.docsRead.WithLabelValues(normalizeLabel(direction)).Add(float64(count))
}

// AddDocsWritten counts documents written during the push leg.
func (s *SyncMetrics) AddDocsWritten(direction string, count int) {
	if s == nil || s.docsWritten == nil || count <= 0 {
		return
	}
	s.docsWritten.WithLabelValues(normalizeLabel(direction)).Add(float64(count))
}

// IncFailure counts a failed sync run by error code.
func (s *SyncMetrics) IncFailure(code string) {
	if s == nil || s.failures == nil {
		return
	}
	s.failures.WithLabelValues(normalizeLabel(code)).Inc()
}

func normalizeLabel(label string) string {
	if label == "" {
		return "unknown"
	}
	return label
}
