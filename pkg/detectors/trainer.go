package detectors

import (
	"errors"
	"fmt"
)

// ErrInsufficientBaseline is returned when the baseline is too small to fit.
var ErrInsufficientBaseline = errors.New("insufficient baseline data")

// Factory builds an unfitted Detector from a Config.
type Factory func(Config) Detector

// Label is the outcome of classifying one reading.
type Label int

const (
	Normal Label = iota
	Anomalous
)

func (l Label) String() string {
	if l == Anomalous {
		return "anomalous"
	}
	return "normal"
}

func (l Label) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// Verdict is the classification of one reading.
type Verdict struct {
	Label     Label
	Score     float64
	Threshold float64
}

// Trainer fits a Model once from a baseline.
type Trainer struct {
	cfg     Config
	factory Factory
}

// NewTrainer returns a Trainer that builds detectors with factory.
func NewTrainer(cfg Config, factory Factory) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, errors.New("detectors: nil factory")
	}
	return &Trainer{cfg: cfg, factory: factory}, nil
}

// MinSamples returns the smallest accepted baseline.
func (t *Trainer) MinSamples() int { return t.cfg.MinSamples }

// Train fits a new Model on baseline, treating each reading as a
// one-dimensional sample. Baselines shorter than MinSamples are rejected
// with ErrInsufficientBaseline and no model is produced.
func (t *Trainer) Train(baseline []float64) (*Model, error) {
	if len(baseline) < t.cfg.MinSamples {
		return nil, fmt.Errorf("%w: %d samples, need at least %d",
			ErrInsufficientBaseline, len(baseline), t.cfg.MinSamples)
	}

	data := make([][]float64, len(baseline))
	for i, v := range baseline {
		data[i] = []float64{v}
	}

	d := t.factory(t.cfg)
	if err := d.Fit(data); err != nil {
		return nil, fmt.Errorf("fit detector: %w", err)
	}

	scores, err := d.Predict(data)
	if err != nil {
		return nil, fmt.Errorf("score baseline: %w", err)
	}
	threshold := d.Threshold()
	outliers := 0
	for _, s := range scores {
		if s > threshold {
			outliers++
		}
	}
	return &Model{detector: d, samples: len(baseline), outliers: outliers}, nil
}

// Model is a fitted detector. It is never refitted.
type Model struct {
	detector Detector
	samples  int
	outliers int
}

// Samples returns the baseline size the model was fitted on.
func (m *Model) Samples() int { return m.samples }

// BaselineOutliers returns how many baseline readings the model itself
// scores above its threshold. It stays near contamination * Samples.
func (m *Model) BaselineOutliers() int { return m.outliers }

// Threshold returns the fitted decision boundary.
func (m *Model) Threshold() float64 { return m.detector.Threshold() }

// Classify labels a single reading.
func (m *Model) Classify(v float64) (Verdict, error) {
	s, err := m.detector.Classify([]float64{v})
	if err != nil {
		return Verdict{}, err
	}
	verdict := Verdict{Label: Normal, Score: s.Value, Threshold: m.detector.Threshold()}
	if s.IsAnomaly {
		verdict.Label = Anomalous
	}
	return verdict, nil
}
