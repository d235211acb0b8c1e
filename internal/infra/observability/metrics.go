package observability

import (
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Registration outcomes.
const (
	OutcomeRegistered        = "registered"
	OutcomeAlreadyRegistered = "already_registered"
	OutcomeRefunded          = "refunded"
	OutcomeError             = "error"
)

// Metrics holds all Prometheus metrics for the acquiring core.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration  *prometheus.HistogramVec
	stageDuration      *prometheus.HistogramVec
	registrations      *prometheus.CounterVec
	refunds            *prometheus.CounterVec
	providerErrors     *prometheus.CounterVec
	externalErrors     *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
	lockWait           *prometheus.HistogramVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "acq_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "acq_pipeline_stage_duration_seconds",
				Help:    "Duration of pipeline stages.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pipeline", "stage"},
		),
		registrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acq_registrations_total",
				Help: "Transaction registrations by outcome.",
			},
			[]string{"outcome"},
		),
		refunds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acq_refunds_total",
				Help: "Refund operations by kind and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		providerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acq_provider_errors_total",
				Help: "Provider connector failures.",
			},
			[]string{"provider", "operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acq_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		sideEffectFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acq_side_effect_failures_total",
				Help: "Best-effort side effects that failed and were swallowed.",
			},
			[]string{"effect"},
		),
		lockWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "acq_lock_wait_seconds",
				Help:    "Time spent waiting to acquire a distributed lock.",
				Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"lock"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acq_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "acq_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordStage records the duration of one pipeline stage.
func (m *Metrics) RecordStage(pipeline, stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(pipeline, stage).Observe(d.Seconds())
}

// IncrRegistration counts a registration outcome.
func (m *Metrics) IncrRegistration(outcome string) {
	m.registrations.WithLabelValues(outcome).Inc()
}

// IncrRefund counts a refund outcome for operation (refund or register_refund).
func (m *Metrics) IncrRefund(operation, outcome string) {
	m.refunds.WithLabelValues(operation, outcome).Inc()
}

// IncrProviderError counts a provider connector failure.
func (m *Metrics) IncrProviderError(provider, operation string) {
	m.providerErrors.WithLabelValues(provider, operation).Inc()
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrSideEffectFailure counts a swallowed side-effect failure.
func (m *Metrics) IncrSideEffectFailure(effect string) {
	m.sideEffectFailures.WithLabelValues(effect).Inc()
}

// RecordLockWait records how long acquiring a lock took.
func (m *Metrics) RecordLockWait(lock string, d time.Duration) {
	m.lockWait.WithLabelValues(lock).Observe(d.Seconds())
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// GetCoreSnapshot returns cumulative counters suitable for the
// GET /v1/metrics/summary endpoint.
func (m *Metrics) GetCoreSnapshot() *domain.CoreMetrics {
	cacheHits := getCounterValue(m.cacheHits, "company")
	cacheMisses := getCounterValue(m.cacheMisses, "company")
	hitRate := float64(0)
	if cacheHits+cacheMisses > 0 {
		hitRate = cacheHits / (cacheHits + cacheMisses)
	}

	return &domain.CoreMetrics{
		Registered:          int64(getCounterValue(m.registrations, OutcomeRegistered)),
		AlreadyRegistered:   int64(getCounterValue(m.registrations, OutcomeAlreadyRegistered)),
		RegistrationErrors:  int64(getCounterValue(m.registrations, OutcomeError)),
		Refunded:            int64(sumCounter(m.refunds, OutcomeRefunded)),
		RefundErrors:        int64(sumCounter(m.refunds, OutcomeError)),
		SideEffectFailures:  int64(sumCounter(m.sideEffectFailures, "")),
		ProviderErrors:      int64(sumCounter(m.providerErrors, "")),
		CompanyCacheHitRate: hitRate,
		Period:              "all_time",
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

// sumCounter adds every series of cv whose labels contain value (all series
// when value is empty).
func sumCounter(cv *prometheus.CounterVec, value string) float64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	var total float64
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil || m.Counter == nil {
			continue
		}
		if value != "" && !hasLabelValue(m, value) {
			continue
		}
		total += m.Counter.GetValue()
	}
	return total
}

func hasLabelValue(m *dto.Metric, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetValue() == value {
			return true
		}
	}
	return false
}
