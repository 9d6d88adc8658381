package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushBelowCapacity(t *testing.T) {
	r := New(5)
	for i, v := range []float64{70, 72, 71} {
		idx, filled := r.Push(v)
		assert.Equal(t, i, idx)
		assert.False(t, filled)
	}

	assert.Equal(t, 3, r.Len())
	assert.Len(t, r.buf, 5)
	assert.Equal(t, []float64{70, 72, 71}, r.Values())
}

func TestDefaultCapacity(t *testing.T) {
	assert.Len(t, New(0).buf, DefaultCapacity)
	assert.Len(t, New(-3).buf, DefaultCapacity)
}

func TestWindowKeepsMostRecent(t *testing.T) {
	const capacity = 100
	r := New(capacity)

	for n := 1; n <= 357; n++ {
		idx, _ := r.Push(float64(n))
		assert.Equal(t, min(n, capacity)-1, idx)

		want := make([]float64, 0, capacity)
		for v := max(1, n-capacity+1); v <= n; v++ {
			want = append(want, float64(v))
		}
		require.Equal(t, want, r.Values(), "after %d pushes", n)
		assert.Equal(t, min(n, capacity), r.Len())
	}
}

func TestMarkersClearedWhenWindowFills(t *testing.T) {
	const capacity = 10
	r := New(capacity)

	for n := 1; n <= 35; n++ {
		idx, filled := r.Push(float64(n))
		assert.Equal(t, n%capacity == 0, filled, "push %d", n)
		if filled {
			assert.Empty(t, r.Markers(), "push %d", n)
		}
		if n%3 == 0 {
			r.Mark(idx, float64(n))
		}
	}

	// Push 30 cleared the markers before 30 itself was marked; the window
	// now holds 26..35.
	assert.Equal(t, []Marker{{Index: 4, Value: 30}, {Index: 7, Value: 33}}, r.Markers())
}

func TestMarkersFollowEvictions(t *testing.T) {
	r := New(5)
	for i := 0; i < 5; i++ {
		r.Push(70)
	}
	idx, _ := r.Push(150)
	r.Mark(idx, 150)
	r.Push(74)
	r.Push(75)

	window := r.Values()
	assert.Equal(t, []float64{70, 70, 150, 74, 75}, window)
	markers := r.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, Marker{Index: 2, Value: 150}, markers[0])
	assert.Equal(t, markers[0].Value, window[markers[0].Index])

	r.Push(76)
	assert.Equal(t, []Marker{{Index: 1, Value: 150}}, r.Markers())
	// The tenth push fills the window again and clears the markers.
	_, filled := r.Push(77)
	assert.True(t, filled)
	assert.Empty(t, r.Markers())
}

func TestMarkerDroppedWithItsReading(t *testing.T) {
	r := New(5)
	for _, v := range []float64{60, 70, 70, 70, 70, 70} {
		r.Push(v)
	}
	r.Mark(0, 70)
	r.Mark(4, 70)

	r.Push(71)
	assert.Equal(t, []Marker{{Index: 3, Value: 70}}, r.Markers())
}

func TestMarkOutOfRange(t *testing.T) {
	r := New(3)
	r.Mark(0, 1)
	r.Push(70)
	r.Mark(1, 2)
	r.Mark(-1, 3)
	assert.Empty(t, r.Markers())
}

func TestMarkersCopy(t *testing.T) {
	r := New(3)
	idx, _ := r.Push(150)
	r.Mark(idx, 150)

	m := r.Markers()
	m[0].Value = 0
	assert.Equal(t, 150.0, r.Markers()[0].Value)
}
