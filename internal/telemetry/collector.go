package telemetry

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielpatrickdp/active-learning/internal/trace"
)

// DefaultWatchLimit is how many recent runs a store collector exports.
const DefaultWatchLimit = 100

// RunLister is the part of the trace store the collector reads.
type RunLister interface {
	ListRuns(limit int) ([]trace.RunRecord, error)
}

// #region store-collector
// StoreCollector exports persisted runs on every scrape, so a long-lived
// process serves the results of runs executed elsewhere.
type StoreCollector struct {
	runs  RunLister
	limit int

	stored       *prometheus.Desc
	cycles       *prometheus.Desc
	testAccuracy *prometheus.Desc
	unlabeledAcc *prometheus.Desc
	fitSeconds   *prometheus.Desc
	finalStdDev  *prometheus.Desc
	finalCertain *prometheus.Desc
	scrapeErrors prometheus.Counter
}

// NewStoreCollector reads up to limit recent runs per scrape. limit <= 0
// uses DefaultWatchLimit.
func NewStoreCollector(runs RunLister, limit int) *StoreCollector {
	if limit <= 0 {
		limit = DefaultWatchLimit
	}
	runLabels := []string{"run_id", "key", "strategy"}
	return &StoreCollector{
		runs:  runs,
		limit: limit,
		stored: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "stored_runs"),
			"Stored runs by status", []string{"status"}, nil),
		cycles: prometheus.NewDesc(prometheus.BuildFQName(namespace, "run", "cycles"),
			"Completed cycles of a stored run", append(runLabels, "status"), nil),
		testAccuracy: prometheus.NewDesc(prometheus.BuildFQName(namespace, "run", "test_accuracy"),
			"Test accuracy after the last cycle of a stored run", runLabels, nil),
		unlabeledAcc: prometheus.NewDesc(prometheus.BuildFQName(namespace, "run", "unlabeled_accuracy"),
			"Accuracy on the remaining pool after the last cycle of a stored run", runLabels, nil),
		fitSeconds: prometheus.NewDesc(prometheus.BuildFQName(namespace, "run", "fit_seconds"),
			"Wall time of the cycle loop of a stored run", runLabels, nil),
		finalStdDev: prometheus.NewDesc(prometheus.BuildFQName(namespace, "run", "stop_stddev"),
			"Stddev signal of the last cycle of a stored run", runLabels, nil),
		finalCertain: prometheus.NewDesc(prometheus.BuildFQName(namespace, "run", "stop_certainty"),
			"Certainty signal of the last cycle of a stored run", runLabels, nil),
		scrapeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trace_scrape_errors_total",
			Help:      "Failed reads of the trace store during a scrape",
		}),
	}
}

// Describe implements prometheus.Collector.
func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stored
	ch <- c.cycles
	ch <- c.testAccuracy
	ch <- c.unlabeledAcc
	ch <- c.fitSeconds
	ch <- c.finalStdDev
	ch <- c.finalCertain
	c.scrapeErrors.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	defer c.scrapeErrors.Collect(ch)

	recs, err := c.runs.ListRuns(c.limit)
	if err != nil {
		c.scrapeErrors.Inc()
		return
	}

	byStatus := map[string]int{
		trace.StatusRunning:  0,
		trace.StatusFinished: 0,
		trace.StatusFailed:   0,
	}
	for _, r := range recs {
		byStatus[r.Status]++
		ch <- prometheus.MustNewConstMetric(c.cycles, prometheus.GaugeValue, float64(r.Cycles),
			r.RunID, r.Key, r.Strategy, r.Status)
		if r.Status == trace.StatusRunning {
			continue
		}
		c.gauge(ch, c.fitSeconds, r.FitTime.Seconds(), r)
		c.gauge(ch, c.testAccuracy, r.TestAccuracy, r)
		c.gauge(ch, c.unlabeledAcc, r.UnlabeledAccuracy, r)
		if r.Ledger != nil {
			if last, ok := r.Ledger.Last(); ok {
				c.gauge(ch, c.finalStdDev, last.StopStdDev, r)
				c.gauge(ch, c.finalCertain, last.StopCertainty, r)
			}
		}
	}
	for status, n := range byStatus {
		ch <- prometheus.MustNewConstMetric(c.stored, prometheus.GaugeValue, float64(n), status)
	}
}

// gauge skips undefined values instead of exporting NaN.
func (c *StoreCollector) gauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, r trace.RunRecord) {
	if math.IsNaN(v) {
		return
	}
	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v, r.RunID, r.Key, r.Strategy)
}

// #endregion store-collector

// WatchStore registers a StoreCollector over runs on the registry.
func (m *Metrics) WatchStore(runs RunLister, limit int) error {
	return m.reg.Register(NewStoreCollector(runs, limit))
}
