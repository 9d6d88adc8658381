// Package pipeline drives one sensor session: it decodes transport lines,
// moves the lifecycle along on a fixed tick, trains the model once the
// baseline window closes and classifies live readings afterwards.
//
// A Pipeline is single threaded. Run owns it for the life of the session;
// callers that drive Tick directly must not share it between goroutines.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/hed1ad/pulseguard/pkg/aead"
	"github.com/hed1ad/pulseguard/pkg/baseline"
	"github.com/hed1ad/pulseguard/pkg/detectors"
	"github.com/hed1ad/pulseguard/pkg/detectors/iforest"
	"github.com/hed1ad/pulseguard/pkg/frame"
	"github.com/hed1ad/pulseguard/pkg/history"
	"github.com/hed1ad/pulseguard/pkg/lifecycle"
)

// ErrSourceClosed is returned by Run when the line channel closes. The
// session ends in the Error phase.
var ErrSourceClosed = errors.New("sensor source closed")

// Pipeline is a single session.
type Pipeline struct {
	cfg       Config
	sessionID string

	clock   clockwork.Clock
	logger  *slog.Logger
	sink    Sink
	factory detectors.Factory

	codec    *frame.Codec
	machine  *lifecycle.Machine
	baseline *baseline.Accumulator
	trainer  *detectors.Trainer
	model    *detectors.Model
	history  *history.Ring

	seq   uint64
	stats Stats
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the time source. Tests use a fake clock.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) {
		p.clock = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithSink sets where status, readings and anomalies are published.
func WithSink(s Sink) Option {
	return func(p *Pipeline) {
		p.sink = s
	}
}

// WithDetectorFactory replaces the isolation forest.
func WithDetectorFactory(f detectors.Factory) Option {
	return func(p *Pipeline) {
		p.factory = f
	}
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) Option {
	return func(p *Pipeline) {
		p.sessionID = id
	}
}

// New validates cfg and returns a Pipeline in the Waiting phase.
func New(cfg *Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := &Pipeline{
		cfg:       cfg.clone(),
		sessionID: uuid.NewString(),
		clock:     clockwork.NewRealClock(),
		sink:      nopSink{},
		factory:   iforest.NewDetector,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("session", p.sessionID)

	cipher, err := aead.New(p.cfg.Algorithm, p.cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	auth, err := aead.NewAuthenticator(cipher, p.cfg.Nonce, p.cfg.AdditionalData)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	trainer, err := detectors.NewTrainer(p.cfg.Detector, p.factory)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p.codec = frame.NewCodec(auth, p.cfg.Marker, p.cfg.Tag)
	p.trainer = trainer
	p.baseline = baseline.New(0)
	p.history = history.New(p.cfg.HistoryCapacity)
	p.machine = lifecycle.New(p.cfg.Timing, p.clock.Now())

	p.logger.Warn("all frames in this session share one nonce; confidentiality does not hold across frames",
		"algorithm", p.cfg.Algorithm)
	p.logger.Info("session started",
		"warmup", p.cfg.Timing.Warmup,
		"baseline", p.cfg.Timing.Baseline,
		"min_samples", trainer.MinSamples())

	return p, nil
}

// SessionID returns the identifier attached to logs and telemetry.
func (p *Pipeline) SessionID() string { return p.sessionID }

// Phase returns the current lifecycle phase.
func (p *Pipeline) Phase() lifecycle.Phase { return p.machine.Phase() }

// Stats returns the running counters.
func (p *Pipeline) Stats() Stats { return p.stats }

// BaselineLen returns the number of readings collected for training.
func (p *Pipeline) BaselineLen() int { return p.baseline.Len() }

// Model returns the trained model, or nil before training succeeds.
func (p *Pipeline) Model() *detectors.Model { return p.model }

// Window returns the history window, oldest first.
func (p *Pipeline) Window() []float64 { return p.history.Values() }

// Markers returns the anomaly markers in the current history window.
func (p *Pipeline) Markers() []history.Marker { return p.history.Markers() }

// Run ticks the pipeline every TickInterval until ctx is done or lines
// closes. Each tick drains at most MaxLinesPerTick buffered lines without
// blocking.
func (p *Pipeline) Run(ctx context.Context, lines <-chan string) error {
	ticker := p.clock.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	batch := make([]string, 0, p.cfg.MaxLinesPerTick)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("session stopped", "lines", p.stats.Lines, "accepted", p.stats.Accepted)
			return ctx.Err()
		case <-ticker.Chan():
			var open bool
			batch, open = drain(lines, batch[:0], p.cfg.MaxLinesPerTick)
			p.Tick(batch...)
			if !open {
				p.Fail(ErrSourceClosed)
				return ErrSourceClosed
			}
		}
	}
}

func drain(lines <-chan string, batch []string, max int) ([]string, bool) {
	for len(batch) < max {
		select {
		case line, ok := <-lines:
			if !ok {
				return batch, false
			}
			batch = append(batch, line)
		default:
			return batch, true
		}
	}
	return batch, true
}

// Tick runs one pass: lifecycle timing first, which may train the model,
// then each line in order. A Status is published at the end.
func (p *Pipeline) Tick(lines ...string) {
	p.step(p.clock.Now())
	for _, line := range lines {
		p.Ingest(line)
	}
	p.sink.Status(p.Status())
}

// Fail ends the session in the Error phase and discards any recorded
// baseline. Further lines are counted but not processed.
func (p *Pipeline) Fail(cause error) {
	now := p.clock.Now()
	tr := p.machine.Fail(now, cause)
	p.baseline.Reset()
	p.logger.Error("session failed", "phase", tr.From, "error", cause)
	p.sink.PhaseChange(PhaseChange{From: tr.From, To: tr.To, At: now, Err: cause})
	p.sink.Status(p.Status())
}

// Status reports the current phase and counters.
func (p *Pipeline) Status() Status {
	now := p.clock.Now()
	snap := p.machine.Snapshot()
	return Status{
		SessionID:       p.sessionID,
		Phase:           snap.Phase,
		Text:            lifecycle.StatusText(snap, now),
		Remaining:       snap.Remaining(now),
		BaselineSamples: p.baseline.Len(),
		Markers:         p.history.Markers(),
		Stats:           p.stats,
		At:              now,
	}
}

func (p *Pipeline) step(now time.Time) {
	tr := p.machine.Step(now)
	if tr.Changed() {
		p.logger.Info("phase changed", "from", tr.From, "to", tr.To)
		p.sink.PhaseChange(PhaseChange{From: tr.From, To: tr.To, At: now})
	}
	if tr.Action == lifecycle.ActionTrain {
		p.train(now)
	}
}

func (p *Pipeline) train(now time.Time) {
	// Let the display show the training state before the fit blocks the tick.
	p.sink.Status(p.Status())

	samples := p.baseline.Take()
	start := p.clock.Now()
	model, err := p.trainer.Train(samples)
	took := p.clock.Since(start)

	var (
		tr        lifecycle.Transition
		reportErr error
	)
	if err != nil {
		tr, reportErr = p.machine.TrainingFailed(now, len(samples), err)
	} else {
		tr, reportErr = p.machine.Trained(now)
	}
	if reportErr != nil {
		p.logger.Error("training outcome rejected", "phase", p.machine.Phase(), "error", reportErr)
		return
	}

	change := PhaseChange{From: tr.From, To: tr.To, At: now, Training: true, Took: took, Samples: len(samples)}
	if err != nil {
		change.Err = err
		p.logger.Warn("training failed, restarting warm-up",
			"samples", len(samples),
			"min_samples", p.trainer.MinSamples(),
			"error", err)
	} else {
		p.model = model
		p.logger.Info("model trained",
			"samples", model.Samples(),
			"baseline_outliers", model.BaselineOutliers(),
			"threshold", model.Threshold(),
			"took", took)
	}
	p.sink.PhaseChange(change)
}

// Ingest processes one transport line. Lines that do not decode to a
// reading are dropped without touching any state except the line counter.
func (p *Pipeline) Ingest(line string) {
	p.stats.Lines++
	if p.machine.Phase() == lifecycle.Error {
		return
	}

	v, err := p.codec.Decode(line)
	if err != nil {
		p.logger.Debug("line dropped")
		return
	}
	p.accept(v)
}

func (p *Pipeline) accept(v float64) {
	now := p.clock.Now()
	phase := p.machine.Phase()

	p.seq++
	p.stats.Accepted++
	r := Reading{Seq: p.seq, Value: v, At: now, Phase: phase}
	idx, _ := p.history.Push(v)

	var anomaly *AnomalyEvent
	switch phase {
	case lifecycle.Recording:
		p.baseline.Add(v)
	case lifecycle.Monitoring:
		verdict, err := p.model.Classify(v)
		if err != nil {
			p.logger.Error("classification failed", "value", v, "error", err)
			break
		}
		r.Label = verdict.Label
		if verdict.Label == detectors.Anomalous {
			p.history.Mark(idx, v)
			p.stats.Anomalies++
			anomaly = &AnomalyEvent{
				Seq:       r.Seq,
				Index:     idx,
				Value:     v,
				Score:     verdict.Score,
				Threshold: verdict.Threshold,
				Elapsed:   now.Sub(p.machine.PhaseStart()),
				At:        now,
			}
			p.logger.Warn("outlier detected",
				"value", v,
				"score", verdict.Score,
				"threshold", verdict.Threshold)
		}
	}

	p.sink.Reading(r, p.history.Values())
	if anomaly != nil {
		p.sink.Anomaly(*anomaly)
	}
}
