// Package metrics defines the Prometheus collectors of the registry.
// All methods are nil-safe so components can run without metrics in tests.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "peoplehub"

// Metrics groups every collector the service exports.
type Metrics struct {
	InferenceFetches  *prometheus.CounterVec
	InferenceAttempts *prometheus.CounterVec
	InferenceLatency  *prometheus.HistogramVec
	CacheLookups      *prometheus.CounterVec

	EnrichmentRuns     *prometheus.CounterVec
	EnrichmentDuration prometheus.Histogram

	JobsProcessed *prometheus.CounterVec
	QueueDepth    *prometheus.GaugeVec

	ScheduledRuns *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in tests
// to avoid duplicate registration against the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		InferenceFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_fetches_total",
			Help:      "Inference lookups by kind and final outcome (resolved, no_data, soft_miss)",
		}, []string{"kind", "outcome"}),
		InferenceAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_attempts_total",
			Help:      "Network attempts against inference endpoints by result",
		}, []string{"kind", "result"}),
		InferenceLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_attempt_duration_seconds",
			Help:      "Duration of single inference HTTP attempts",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"kind"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_lookups_total",
			Help:      "Response cache lookups by kind and result (hit, miss, error)",
		}, []string{"kind", "result"}),
		EnrichmentRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_runs_total",
			Help:      "Enrichment runs by outcome (enriched, missing, failed)",
		}, []string{"outcome"}),
		EnrichmentDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrichment_duration_seconds",
			Help:      "End-to-end duration of one enrichment run",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		JobsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_jobs_total",
			Help:      "Queued enrichment jobs by outcome (acked, requeued, dead_lettered, recovered)",
		}, []string{"outcome"}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "enrichment_queue_depth",
			Help:      "Length of the enrichment queue lists",
		}, []string{"list"}),
		ScheduledRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_job_runs_total",
			Help:      "Maintenance job runs by job name and result (success, failure)",
		}, []string{"job", "result"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// ObserveFetch records the final outcome of one inference lookup.
func (m *Metrics) ObserveFetch(kind, outcome string) {
	if m == nil {
		return
	}
	m.InferenceFetches.WithLabelValues(kind, outcome).Inc()
}

// ObserveAttempt records one network attempt.
func (m *Metrics) ObserveAttempt(kind, result string, start time.Time) {
	if m == nil {
		return
	}
	m.InferenceAttempts.WithLabelValues(kind, result).Inc()
	m.InferenceLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// ObserveCache records a cache lookup result.
func (m *Metrics) ObserveCache(kind, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}

// ObserveEnrichment records a finished enrichment run.
func (m *Metrics) ObserveEnrichment(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.EnrichmentRuns.WithLabelValues(outcome).Inc()
	m.EnrichmentDuration.Observe(time.Since(start).Seconds())
}

// IncJobs records a queue job outcome.
func (m *Metrics) IncJobs(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.JobsProcessed.WithLabelValues(outcome).Add(float64(n))
}

// SetQueueDepth records the length of a queue list.
func (m *Metrics) SetQueueDepth(list string, n int64) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(list).Set(float64(n))
}

// ObserveScheduledRun records one maintenance job run.
func (m *Metrics) ObserveScheduledRun(job string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.ScheduledRuns.WithLabelValues(job, result).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, start time.Time) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}
