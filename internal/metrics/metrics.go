package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomePartial  = "partial"
	OutcomeRejected = "rejected"
	OutcomeFallback = "fallback"
)

// Metrics groups the application's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	completions       *prometheus.CounterVec
	fragments         prometheus.Counter
	completionLatency prometheus.Histogram
	retrievals        *prometheus.CounterVec
	retrievalLatency  prometheus.Histogram
	images            *prometheus.CounterVec
	ingestedChunks    prometheus.Counter
	ingestFailures    prometheus.Counter
	activeSessions    prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		completions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recipechat_completions_total",
			Help: "Completion requests by outcome",
		}, []string{"outcome"}),
		fragments: factory.NewCounter(prometheus.CounterOpts{
			Name: "recipechat_completion_fragments_total",
			Help: "Streamed fragments received from the completion endpoint",
		}),
		completionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "recipechat_completion_duration_seconds",
			Help:    "Time from request to end of stream",
			Buckets: prometheus.DefBuckets,
		}),
		retrievals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recipechat_retrievals_total",
			Help: "Context retrievals by outcome",
		}, []string{"outcome"}),
		retrievalLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "recipechat_retrieval_duration_seconds",
			Help:    "Time spent embedding the query and searching the index",
			Buckets: prometheus.DefBuckets,
		}),
		images: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recipechat_images_total",
			Help: "Image generation requests by outcome",
		}, []string{"outcome"}),
		ingestedChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "recipechat_ingested_chunks_total",
			Help: "Chunks written to the vector index",
		}),
		ingestFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "recipechat_ingest_failures_total",
			Help: "Documents dropped during index build",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "recipechat_active_sessions",
			Help: "Chat sessions currently held in memory",
		}),
	}
}

// Handler serves the collectors registered on g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCompletion(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(outcome).Inc()
	m.completionLatency.Observe(d.Seconds())
}

func (m *Metrics) IncFragments() {
	if m == nil {
		return
	}
	m.fragments.Inc()
}

func (m *Metrics) ObserveRetrieval(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.retrievals.WithLabelValues(outcome).Inc()
	m.retrievalLatency.Observe(d.Seconds())
}

func (m *Metrics) IncImages(outcome string) {
	if m == nil {
		return
	}
	m.images.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddIngestedChunks(n int) {
	if m == nil {
		return
	}
	m.ingestedChunks.Add(float64(n))
}

func (m *Metrics) IncIngestFailures() {
	if m == nil {
		return
	}
	m.ingestFailures.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
