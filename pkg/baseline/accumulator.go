// Package baseline collects the readings recorded during the baseline
// window.
package baseline

// Accumulator holds baseline samples in arrival order. It is not safe for
// concurrent use.
type Accumulator struct {
	samples []float64
}

// New returns an empty Accumulator. sizeHint preallocates storage and may
// be zero.
func New(sizeHint int) *Accumulator {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Accumulator{samples: make([]float64, 0, sizeHint)}
}

// Add appends a sample.
func (a *Accumulator) Add(v float64) {
	a.samples = append(a.samples, v)
}

// Len returns the number of samples held.
func (a *Accumulator) Len() int { return len(a.samples) }

// Take hands over every sample recorded so far and leaves the
// Accumulator empty. The returned slice is not shared with later Adds.
func (a *Accumulator) Take() []float64 {
	out := a.samples
	a.samples = make([]float64, 0, cap(out))
	if out == nil {
		out = []float64{}
	}
	return out
}

// Reset discards all samples.
func (a *Accumulator) Reset() {
	a.samples = a.samples[:0:0]
}
