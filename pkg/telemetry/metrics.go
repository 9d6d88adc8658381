package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hed1ad/pulseguard/pkg/pipeline"
)

// Metric names.
const (
	MetricLines            = "pulseguard_lines_total"
	MetricReadings         = "pulseguard_readings_total"
	MetricAnomalies        = "pulseguard_anomalies_total"
	MetricPhase            = "pulseguard_phase"
	MetricBaselineSamples  = "pulseguard_baseline_samples"
	MetricTrainingSeconds  = "pulseguard_training_seconds"
	MetricTrainingFailures = "pulseguard_training_failures_total"
)

// Metrics is a pipeline.Sink that exports session counters to Prometheus.
//
// Lines counts every transport line and readings counts the accepted ones.
// Rejections are not broken down by cause.
type Metrics struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer

	gatherer prometheus.Gatherer
	last     pipeline.Stats
}

// NewMetrics registers the collectors with reg. A nil reg uses a fresh
// registry.
func NewMetrics(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	lines := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricLines,
		Help: "Transport lines received.",
	})
	readings := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricReadings,
		Help: "Readings that authenticated and parsed.",
	})
	anomalies := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricAnomalies,
		Help: "Readings classified as anomalous.",
	})
	trainingFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricTrainingFailures,
		Help: "Training attempts that restarted the warm-up.",
	})
	phase := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricPhase,
		Help: "Current lifecycle phase (0 waiting, 1 recording, 2 monitoring, 3 error).",
	})
	baselineSamples := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricBaselineSamples,
		Help: "Readings collected for the pending baseline.",
	})
	training := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricTrainingSeconds,
		Help:    "Time spent fitting the model.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	for _, c := range []prometheus.Collector{lines, readings, anomalies, trainingFailures, phase, baselineSamples, training} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return &Metrics{
		counters: map[string]prometheus.Counter{
			MetricLines:            lines,
			MetricReadings:         readings,
			MetricAnomalies:        anomalies,
			MetricTrainingFailures: trainingFailures,
		},
		gauges: map[string]prometheus.Gauge{
			MetricPhase:           phase,
			MetricBaselineSamples: baselineSamples,
		},
		histos: map[string]prometheus.Observer{
			MetricTrainingSeconds: training,
		},
		gatherer: reg,
	}, nil
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Status turns the cumulative session counters into counter increments.
func (m *Metrics) Status(s pipeline.Status) {
	m.add(MetricLines, s.Stats.Lines, m.last.Lines)
	m.add(MetricReadings, s.Stats.Accepted, m.last.Accepted)
	m.add(MetricAnomalies, s.Stats.Anomalies, m.last.Anomalies)
	m.last = s.Stats

	m.gauges[MetricPhase].Set(float64(s.Phase))
	m.gauges[MetricBaselineSamples].Set(float64(s.BaselineSamples))
}

func (m *Metrics) add(name string, now, before uint64) {
	if now > before {
		m.counters[name].Add(float64(now - before))
	}
}

// Reading is a no-op; readings are counted from Status.
func (m *Metrics) Reading(pipeline.Reading, []float64) {}

// Anomaly is a no-op; anomalies are counted from Status.
func (m *Metrics) Anomaly(pipeline.AnomalyEvent) {}

// PhaseChange records training outcomes.
func (m *Metrics) PhaseChange(c pipeline.PhaseChange) {
	m.gauges[MetricPhase].Set(float64(c.To))
	if !c.Training {
		return
	}
	m.histos[MetricTrainingSeconds].Observe(c.Took.Seconds())
	if c.Err != nil {
		m.counters[MetricTrainingFailures].Inc()
	}
}

var _ pipeline.Sink = (*Metrics)(nil)
