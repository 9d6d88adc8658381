// Package history keeps the fixed-size window of recent readings shown on
// the live plot, together with the anomaly markers drawn over it.
package history

// DefaultCapacity is the plot window length.
const DefaultCapacity = 100

// Marker highlights an anomalous reading at Index in the window.
type Marker struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// Ring is a fixed-capacity circular buffer of readings. Index 0 is the
// oldest reading in the window. It is not safe for concurrent use.
type Ring struct {
	buf    []float64
	head   int // next write position
	size   int
	pushes uint64

	marks []mark
}

// mark pins a marker to the push that stored its reading, so its window
// index follows the reading as older ones are evicted.
type mark struct {
	push  uint64
	value float64
}

// New returns an empty Ring. Non-positive capacities use DefaultCapacity.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]float64, capacity)}
}

// Push appends v, evicting the oldest reading when full. It returns the
// window index of v and whether this push filled the window. Markers are
// cleared every time the window fills, i.e. once per capacity pushes.
func (r *Ring) Push(v float64) (index int, filled bool) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
	r.pushes++

	if r.pushes%uint64(len(r.buf)) == 0 {
		r.marks = r.marks[:0]
		filled = true
	}
	return r.size - 1, filled
}

// Len returns the number of readings in the window.
func (r *Ring) Len() int { return r.size }

// Values returns a copy of the window, oldest first.
func (r *Ring) Values() []float64 {
	out := make([]float64, r.size)
	start := r.start()
	n := copy(out, r.buf[start:min(start+r.size, len(r.buf))])
	copy(out[n:], r.buf[:r.size-n])
	return out
}

// Mark records an anomaly marker for the reading currently at window
// index i. Out of range indexes are ignored.
func (r *Ring) Mark(i int, v float64) {
	if i < 0 || i >= r.size {
		return
	}
	r.marks = append(r.marks, mark{push: r.oldest() + uint64(i), value: v})
}

// Markers returns the markers whose readings are still in the window,
// indexed by their current position.
func (r *Ring) Markers() []Marker {
	out := make([]Marker, 0, len(r.marks))
	oldest := r.oldest()
	for _, m := range r.marks {
		if m.push < oldest {
			continue
		}
		out = append(out, Marker{Index: int(m.push - oldest), Value: m.value})
	}
	return out
}

// oldest returns the push number of window index 0.
func (r *Ring) oldest() uint64 {
	return r.pushes - uint64(r.size)
}

func (r *Ring) start() int {
	return (r.head - r.size + len(r.buf)) % len(r.buf)
}
