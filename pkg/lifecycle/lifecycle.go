// Package lifecycle implements the session phases of the monitor:
// a warm-up wait, a fixed baseline recording window, and live monitoring.
//
// The Machine never looks at sensor data. It only decides which consumer
// gets each reading and when the one-shot training must run.
package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

// Phase is the current session phase.
type Phase int

const (
	Waiting Phase = iota
	Recording
	Monitoring
	Error
)

func (p Phase) String() string {
	switch p {
	case Waiting:
		return "waiting"
	case Recording:
		return "recording"
	case Monitoring:
		return "monitoring"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Action is a side effect the caller must perform after a Step.
type Action int

const (
	ActionNone Action = iota
	// ActionTrain asks the caller to train on the recorded baseline and
	// report the outcome with Trained or TrainingFailed.
	ActionTrain
)

// Timing holds the phase durations.
type Timing struct {
	Warmup   time.Duration
	Baseline time.Duration
}

// Transition describes the result of a Step.
type Transition struct {
	From   Phase
	To     Phase
	Action Action
}

// Changed reports whether the phase moved.
func (t Transition) Changed() bool { return t.From != t.To }

var (
	// ErrTrainingNotPending is returned when a training outcome is reported
	// outside of a pending ActionTrain.
	ErrTrainingNotPending = errors.New("lifecycle: no training pending")
)

// Machine owns the session phase. It is not safe for concurrent use.
type Machine struct {
	timing Timing

	phase      Phase
	phaseStart time.Time
	training   bool

	lastFailure   error
	failedSamples int
	err           error
}

// New returns a Machine in Waiting, started at now.
func New(timing Timing, now time.Time) *Machine {
	return &Machine{
		timing:     timing,
		phase:      Waiting,
		phaseStart: now,
	}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase { return m.phase }

// PhaseStart returns when the current phase was entered.
func (m *Machine) PhaseStart() time.Time { return m.phaseStart }

// Step advances the machine on elapsed time.
func (m *Machine) Step(now time.Time) Transition {
	t := Transition{From: m.phase, To: m.phase}

	switch m.phase {
	case Waiting:
		if now.Sub(m.phaseStart) >= m.timing.Warmup {
			m.enter(Recording, now)
			m.lastFailure = nil
			m.failedSamples = 0
			t.To = Recording
		}
	case Recording:
		if !m.training && now.Sub(m.phaseStart) >= m.timing.Baseline {
			m.training = true
			t.Action = ActionTrain
		}
	}
	return t
}

// Trained moves a pending training into Monitoring.
func (m *Machine) Trained(now time.Time) (Transition, error) {
	if !m.training {
		return Transition{From: m.phase, To: m.phase}, ErrTrainingNotPending
	}
	m.training = false
	from := m.phase
	m.enter(Monitoring, now)
	return Transition{From: from, To: Monitoring}, nil
}

// TrainingFailed reverts a pending training to Waiting. The warm-up
// restarts at now; cause and the number of samples the baseline held are
// kept for the status text.
func (m *Machine) TrainingFailed(now time.Time, samples int, cause error) (Transition, error) {
	if !m.training {
		return Transition{From: m.phase, To: m.phase}, ErrTrainingNotPending
	}
	m.training = false
	from := m.phase
	m.enter(Waiting, now)
	m.lastFailure = cause
	m.failedSamples = samples
	return Transition{From: from, To: Waiting}, nil
}

// Fail ends the session in Error.
func (m *Machine) Fail(now time.Time, cause error) Transition {
	from := m.phase
	m.training = false
	m.enter(Error, now)
	m.err = cause
	return Transition{From: from, To: Error}
}

// Snapshot captures the state StatusText needs.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		Phase:         m.phase,
		PhaseStart:    m.phaseStart,
		Timing:        m.timing,
		Training:      m.training,
		LastFailure:   m.lastFailure,
		FailedSamples: m.failedSamples,
		Err:           m.err,
	}
}

func (m *Machine) enter(p Phase, now time.Time) {
	m.phase = p
	m.phaseStart = now
}

// Snapshot is an immutable copy of the machine state.
type Snapshot struct {
	Phase       Phase
	PhaseStart  time.Time
	Timing      Timing
	Training    bool
	LastFailure error
	// FailedSamples is the baseline size of the last failed training.
	FailedSamples int
	Err           error
}

// Remaining returns the time left in the current timed phase, never
// negative. Monitoring and Error have no deadline and return zero.
func (s Snapshot) Remaining(now time.Time) time.Duration {
	var d time.Duration
	switch s.Phase {
	case Waiting:
		d = s.Timing.Warmup
	case Recording:
		d = s.Timing.Baseline
	default:
		return 0
	}
	left := d - now.Sub(s.PhaseStart)
	if left < 0 {
		return 0
	}
	return left
}
