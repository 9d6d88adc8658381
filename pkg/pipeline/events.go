package pipeline

import (
	"time"

	"github.com/hed1ad/pulseguard/pkg/detectors"
	"github.com/hed1ad/pulseguard/pkg/history"
	"github.com/hed1ad/pulseguard/pkg/lifecycle"
)

// Reading is one accepted sensor value. Seq counts accepted readings from 1.
type Reading struct {
	Seq   uint64          `json:"seq"`
	Value float64         `json:"value"`
	At    time.Time       `json:"at"`
	Phase lifecycle.Phase `json:"phase"`
	Label detectors.Label `json:"label"`
}

// AnomalyEvent is emitted for every reading classified as anomalous.
// Index points into the history window at the time of emission and
// Elapsed is measured from the start of monitoring.
type AnomalyEvent struct {
	Seq       uint64        `json:"seq"`
	Index     int           `json:"index"`
	Value     float64       `json:"value"`
	Score     float64       `json:"score"`
	Threshold float64       `json:"threshold"`
	Elapsed   time.Duration `json:"elapsed"`
	At        time.Time     `json:"at"`
}

// PhaseChange reports a lifecycle transition. Training is set for
// transitions caused by a training attempt, with its duration and error.
type PhaseChange struct {
	From     lifecycle.Phase `json:"from"`
	To       lifecycle.Phase `json:"to"`
	At       time.Time       `json:"at"`
	Training bool            `json:"training"`
	Took     time.Duration   `json:"took,omitempty"`
	Samples  int             `json:"samples,omitempty"`
	Err      error           `json:"-"`
}

// Stats are running counters for the session.
type Stats struct {
	Lines     uint64 `json:"lines"`
	Accepted  uint64 `json:"accepted"`
	Anomalies uint64 `json:"anomalies"`
}

// Status is published once per tick.
type Status struct {
	SessionID       string           `json:"session_id"`
	Phase           lifecycle.Phase  `json:"phase"`
	Text            string           `json:"text"`
	Remaining       time.Duration    `json:"remaining"`
	BaselineSamples int              `json:"baseline_samples"`
	Markers         []history.Marker `json:"markers"`
	Stats           Stats            `json:"stats"`
	At              time.Time        `json:"at"`
}

// Sink receives everything the display surface needs. Calls are made from
// the pipeline's tick and must not block.
type Sink interface {
	Status(Status)
	Reading(r Reading, window []float64)
	Anomaly(AnomalyEvent)
	PhaseChange(PhaseChange)
}

type nopSink struct{}

func (nopSink) Status(Status)              {}
func (nopSink) Reading(Reading, []float64) {}
func (nopSink) Anomaly(AnomalyEvent)       {}
func (nopSink) PhaseChange(PhaseChange)    {}
