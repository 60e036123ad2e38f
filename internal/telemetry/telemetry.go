package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielpatrickdp/active-learning/internal/metrics"
)

const namespace = "alloop"

// #region metrics
// Metrics holds the Prometheus collectors for controller runs. Each instance
// owns its registry so several can coexist in tests.
type Metrics struct {
	reg *prometheus.Registry

	cycles        *prometheus.CounterVec
	queried       *prometheus.CounterVec
	queryAccuracy *prometheus.GaugeVec
	testAccuracy  *prometheus.GaugeVec
	stopStdDev    *prometheus.GaugeVec
	stopCertainty *prometheus.GaugeVec
	poolSize      *prometheus.GaugeVec
	cycleSeconds  *prometheus.HistogramVec
	runs          *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, plus the Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed active-learning cycles",
		}, []string{"strategy"}),
		queried: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queried_samples_total",
			Help:      "Samples migrated from the unlabeled pool to the labeled set",
		}, []string{"strategy"}),
		queryAccuracy: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "query_accuracy",
			Help:      "Accuracy on the samples queried in the latest cycle",
		}, []string{"strategy"}),
		testAccuracy: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "test_accuracy",
			Help:      "Test set accuracy after the latest cycle",
		}, []string{"strategy"}),
		stopStdDev: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stop_stddev",
			Help:      "Rolling standard deviation of query accuracy, NaN until the window fills",
		}, []string{"strategy"}),
		stopCertainty: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stop_certainty",
			Help:      "Minimum self-class probability over the unlabeled pool",
		}, []string{"strategy"}),
		poolSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unlabeled_pool_size",
			Help:      "Rows left in the unlabeled pool",
		}, []string{"strategy"}),
		cycleSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one retrain-select-migrate-measure cycle",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"strategy"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by stop reason",
		}, []string{"strategy", "stop_reason"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// RunFinished counts one finished run.
func (m *Metrics) RunFinished(strategy, stopReason string) {
	m.runs.WithLabelValues(strategy, stopReason).Inc()
}

// #endregion metrics

// #region observer
// Observer returns a cycle observer that labels everything with strategy.
func (m *Metrics) Observer(strategy string) *CycleObserver {
	return &CycleObserver{m: m, strategy: strategy}
}

// CycleObserver feeds cycle records into Metrics.
type CycleObserver struct {
	m        *Metrics
	strategy string
}

// ObserveCycle records one completed cycle.
func (o *CycleObserver) ObserveCycle(rec metrics.CycleRecord) {
	m, s := o.m, o.strategy
	m.cycles.WithLabelValues(s).Inc()
	m.queried.WithLabelValues(s).Add(float64(rec.QueryLength))
	m.queryAccuracy.WithLabelValues(s).Set(rec.QueryAccuracy)
	m.testAccuracy.WithLabelValues(s).Set(rec.Test.Accuracy)
	m.stopStdDev.WithLabelValues(s).Set(rec.StopStdDev)
	m.stopCertainty.WithLabelValues(s).Set(rec.StopCertainty)
	m.poolSize.WithLabelValues(s).Set(float64(rec.UnlabeledSize))
	m.cycleSeconds.WithLabelValues(s).Observe(rec.Duration.Seconds())
}

// #endregion observer
