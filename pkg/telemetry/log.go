// Package telemetry holds the pipeline.Sink implementations: the console
// log, Prometheus metrics, the websocket display hub and the in-memory
// recorder, plus Multi to combine them.
package telemetry

import (
	"log/slog"

	"github.com/hed1ad/pulseguard/pkg/pipeline"
)

// LogSink writes the display stream to a structured logger. Status texts
// are logged when they change, readings at debug level.
type LogSink struct {
	logger   *slog.Logger
	lastText string
}

// NewLogSink returns a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (l *LogSink) Status(s pipeline.Status) {
	if s.Text == l.lastText {
		return
	}
	l.lastText = s.Text
	l.logger.Info(s.Text, "phase", s.Phase, "baseline_samples", s.BaselineSamples)
}

func (l *LogSink) Reading(r pipeline.Reading, window []float64) {
	l.logger.Debug("reading", "seq", r.Seq, "value", r.Value, "phase", r.Phase, "window", len(window))
}

func (l *LogSink) Anomaly(e pipeline.AnomalyEvent) {
	l.logger.Info("anomaly marker",
		"index", e.Index,
		"value", e.Value,
		"elapsed", e.Elapsed)
}

// PhaseChange is a no-op; the pipeline logs its own transitions.
func (l *LogSink) PhaseChange(pipeline.PhaseChange) {}

var _ pipeline.Sink = (*LogSink)(nil)
