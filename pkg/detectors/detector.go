// Package detectors provides unsupervised anomaly detection for the live
// reading stream: a Detector fitted once on the baseline and a Trainer
// that enforces the baseline size before producing a Model.
package detectors

import (
	"errors"
	"fmt"
)

// Detector is the common interface for anomaly detection algorithms.
type Detector interface {
	// Fit trains the detector on historical data.
	// data is a 2D slice where each row is a sample and each column is a feature.
	Fit(data [][]float64) error

	// Predict returns anomaly scores for the given samples.
	// Scores are normalized to [0, 1] where higher values indicate anomalies.
	Predict(data [][]float64) ([]float64, error)

	// PredictOne returns the anomaly score for a single sample.
	PredictOne(sample []float64) (float64, error)

	// Classify scores a sample and applies the fitted decision boundary.
	Classify(sample []float64) (Score, error)

	// Threshold returns the decision boundary derived during Fit.
	Threshold() float64
}

// Score represents an anomaly detection result.
type Score struct {
	// Value is the anomaly score in [0, 1].
	Value float64
	// IsAnomaly indicates if the score exceeds the threshold.
	IsAnomaly bool
	// Features contains the original input features.
	Features []float64
}

// Config holds common configuration for detectors.
type Config struct {
	// Contamination is the expected proportion of anomalies in training data.
	Contamination float64
	// RandomSeed for reproducibility.
	RandomSeed int64
	// Trees is the ensemble size.
	Trees int
	// SampleSize is the subsample drawn per tree.
	SampleSize int
	// MinSamples is the smallest baseline the Trainer accepts.
	MinSamples int
}

// DefaultConfig returns the defaults used for heart-rate monitoring.
func DefaultConfig() Config {
	return Config{
		Contamination: 0.05,
		RandomSeed:    42,
		Trees:         100,
		SampleSize:    256,
		MinSamples:    10,
	}
}

// Validate checks that c describes a usable detector.
func (c Config) Validate() error {
	if c.Contamination < 0 || c.Contamination >= 0.5 {
		return fmt.Errorf("contamination must be in [0, 0.5), got %v", c.Contamination)
	}
	if c.Trees <= 0 {
		return errors.New("trees must be positive")
	}
	if c.SampleSize <= 0 {
		return errors.New("sample size must be positive")
	}
	if c.MinSamples <= 0 {
		return errors.New("min samples must be positive")
	}
	return nil
}
