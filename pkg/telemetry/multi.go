package telemetry

import (
	"sync"

	"github.com/hed1ad/pulseguard/pkg/pipeline"
)

// Multi fans every event out to each sink in order. Nil sinks are skipped.
func Multi(sinks ...pipeline.Sink) pipeline.Sink {
	m := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

type multi []pipeline.Sink

func (m multi) Status(s pipeline.Status) {
	for _, sink := range m {
		sink.Status(s)
	}
}

func (m multi) Reading(r pipeline.Reading, window []float64) {
	for _, sink := range m {
		sink.Reading(r, window)
	}
}

func (m multi) Anomaly(e pipeline.AnomalyEvent) {
	for _, sink := range m {
		sink.Anomaly(e)
	}
}

func (m multi) PhaseChange(c pipeline.PhaseChange) {
	for _, sink := range m {
		sink.PhaseChange(c)
	}
}

// Recorder keeps every event in memory. It is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	statuses  []pipeline.Status
	readings  []pipeline.Reading
	anomalies []pipeline.AnomalyEvent
	changes   []pipeline.PhaseChange
	window    []float64
}

func (r *Recorder) Status(s pipeline.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *Recorder) Reading(rd pipeline.Reading, window []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings = append(r.readings, rd)
	r.window = append(r.window[:0], window...)
}

func (r *Recorder) Anomaly(e pipeline.AnomalyEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anomalies = append(r.anomalies, e)
}

func (r *Recorder) PhaseChange(c pipeline.PhaseChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

// LastStatus returns the most recent status and whether there was one.
func (r *Recorder) LastStatus() (pipeline.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return pipeline.Status{}, false
	}
	return r.statuses[len(r.statuses)-1], true
}

// Readings returns a copy of the recorded readings.
func (r *Recorder) Readings() []pipeline.Reading {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.Reading(nil), r.readings...)
}

// Anomalies returns a copy of the recorded anomaly events.
func (r *Recorder) Anomalies() []pipeline.AnomalyEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.AnomalyEvent(nil), r.anomalies...)
}

// PhaseChanges returns a copy of the recorded transitions.
func (r *Recorder) PhaseChanges() []pipeline.PhaseChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.PhaseChange(nil), r.changes...)
}

// Window returns the window passed with the latest reading.
func (r *Recorder) Window() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.window...)
}

var (
	_ pipeline.Sink = multi(nil)
	_ pipeline.Sink = (*Recorder)(nil)
)
