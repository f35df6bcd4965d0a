package observability

import (
	"time"

	"github.com/carvision/defect-api/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the defect API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	inferenceDuration *prometheus.HistogramVec
	predictionsTotal  *prometheus.CounterVec
	externalErrors    *prometheus.CounterVec
	tokenCacheHits    prometheus.Counter
	tokenCacheMisses  prometheus.Counter
	uploadsBytes      prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		inferenceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "defect_inference_duration_seconds",
				Help:    "Duration of model inference by flow.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"flow"},
		),
		predictionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "defect_predictions_total",
				Help: "Total predictions by outcome (broken, non_broken, error).",
			},
			[]string{"outcome"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "defect_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		tokenCacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "defect_token_cache_hits_total",
				Help: "Total token verification cache hits.",
			},
		),
		tokenCacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "defect_token_cache_misses_total",
				Help: "Total token verification cache misses.",
			},
		),
		uploadsBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "defect_uploads_bytes_total",
				Help: "Total bytes accepted through upload endpoints.",
			},
		),
	}
}

// RecordInferenceDuration records the duration of one model invocation.
func (m *Metrics) RecordInferenceDuration(flow string, d time.Duration) {
	m.inferenceDuration.WithLabelValues(flow).Observe(d.Seconds())
}

// IncrPrediction increments the prediction counter with an outcome label.
func (m *Metrics) IncrPrediction(outcome string) {
	m.predictionsTotal.WithLabelValues(outcome).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrTokenCacheHit increments the token cache hit counter.
func (m *Metrics) IncrTokenCacheHit() {
	m.tokenCacheHits.Inc()
}

// IncrTokenCacheMiss increments the token cache miss counter.
func (m *Metrics) IncrTokenCacheMiss() {
	m.tokenCacheMisses.Inc()
}

// AddUploadBytes records the size of an accepted upload.
func (m *Metrics) AddUploadBytes(n int64) {
	m.uploadsBytes.Add(float64(n))
}

// GetDetectionSnapshot returns a snapshot of detection-related metrics
// suitable for the JSON stats endpoint.
func (m *Metrics) GetDetectionSnapshot() *domain.DetectionMetrics {
	// Prometheus counters expose cumulative values.
	broken := getCounterValue(m.predictionsTotal, "broken")
	nonBroken := getCounterValue(m.predictionsTotal, "non_broken")
	errs := getCounterValue(m.predictionsTotal, "error")
	hits := readCounter(m.tokenCacheHits)
	misses := readCounter(m.tokenCacheMisses)

	total := broken + nonBroken
	brokenRate := float64(0)
	cacheHitRate := float64(0)
	if total > 0 {
		brokenRate = broken / total
	}
	if hits+misses > 0 {
		cacheHitRate = hits / (hits + misses)
	}

	return &domain.DetectionMetrics{
		TotalPredictions: int64(total),
		BrokenCount:      int64(broken),
		ErrorCount:       int64(errs),
		BrokenRate:       brokenRate,
		TokenCacheHits:   int64(hits),
		TokenCacheMisses: int64(misses),
		CacheHitRate:     cacheHitRate,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// readCounter extracts the current value of a plain Counter.
func readCounter(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
