package status

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds the run-outcome series for one run. A one-shot process
// cannot host a scrape endpoint, so the registry is dumped to a textfile in
// the node_exporter textfile-collector format. Each process starts its
// counters from zero; WriteTextfile folds in the previous textfile values
// so the published series stays monotonic across runs.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	lastRunDuration prometheus.Gauge
	draftsTotal     prometheus.Counter
}

// NewMetrics creates a registry with the pipeline's metrics registered.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "followup",
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal outcome",
		}, []string{"outcome"}),
		lastRunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "followup",
			Name:      "last_run_duration_seconds",
			Help:      "Wall-clock duration of the most recent pipeline run",
		}),
		draftsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "followup",
			Name:      "drafts_created_total",
			Help:      "Drafts successfully persisted to the mail store",
		}),
	}

	registry.MustRegister(m.runsTotal, m.lastRunDuration, m.draftsTotal)
	return m
}

// ObserveRun updates the series for one run event.
func (m *Metrics) ObserveRun(event RunEvent) {
	m.runsTotal.WithLabelValues(string(event.Outcome)).Inc()
	m.lastRunDuration.Set(event.Duration.Seconds())
	if event.Draft != nil {
		m.draftsTotal.Inc()
	}
}

// WriteTextfile merges the counters with the previous textfile contents,
// then atomically replaces the file so a collector never scrapes a partial
// write.
func (m *Metrics) WriteTextfile(path string) error {
	if err := m.mergePrevious(path); err != nil {
		return err
	}

	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating metrics temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	for _, fam := range families {
		if _, err := expfmt.MetricFamilyToText(tmp, fam); err != nil {
			tmp.Close()
			return fmt.Errorf("encoding metrics: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing metrics temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing metrics file: %w", err)
	}
	return nil
}

// mergePrevious adds the counter values from the existing textfile into the
// in-memory registry. A missing or unparsable file restarts the series
// rather than blocking the run.
func (m *Metrics) mergePrevious(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading previous metrics: %w", err)
	}
	defer f.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(f)
	if err != nil {
		return nil
	}

	if fam, ok := families["followup_runs_total"]; ok {
		for _, metric := range fam.GetMetric() {
			if metric.GetCounter() == nil {
				continue
			}
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() != "" {
					m.runsTotal.WithLabelValues(label.GetValue()).Add(metric.GetCounter().GetValue())
				}
			}
		}
	}
	if fam, ok := families["followup_drafts_created_total"]; ok {
		for _, metric := range fam.GetMetric() {
			if metric.GetCounter() != nil {
				m.draftsTotal.Add(metric.GetCounter().GetValue())
			}
		}
	}
	return nil
}
