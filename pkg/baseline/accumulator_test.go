package baseline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulatorPreservesOrder(t *testing.T) {
	a := New(4)
	for _, v := range []float64{70, 72, 71, 69, 73, 72} {
		a.Add(v)
	}

	assert.Equal(t, 6, a.Len())
	assert.Equal(t, []float64{70, 72, 71, 69, 73, 72}, a.Take())
	assert.Equal(t, 0, a.Len())
}

func TestTakeDoesNotAlias(t *testing.T) {
	a := New(8)
	a.Add(1)
	a.Add(2)

	got := a.Take()
	a.Add(99)

	assert.Equal(t, []float64{1, 2}, got)
	assert.Equal(t, []float64{99}, a.Take())
}

func TestTakeEmpty(t *testing.T) {
	a := New(-1)
	got := a.Take()
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReset(t *testing.T) {
	a := New(0)
	a.Add(1)
	a.Reset()
	assert.Equal(t, 0, a.Len())
	assert.Empty(t, a.Take())
}
