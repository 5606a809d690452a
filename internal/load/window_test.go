package load

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWindowRatioDuringPartialFill(t *testing.T) {
	w := NewWindow(4)
	assert.Equal(t, 0.0, w.Ratio())
	assert.False(t, w.Primed())

	w.Push(true)
	assert.Equal(t, 1.0, w.Ratio())
	assert.False(t, w.Primed())

	w.Push(false)
	assert.Equal(t, 0.5, w.Ratio())
}

func TestWindowPrimedOnceFull(t *testing.T) {
	w := NewWindow(3)
	w.Push(true)
	w.Push(true)
	assert.False(t, w.Primed())
	w.Push(false)
	assert.True(t, w.Primed())
	assert.InDelta(t, 2.0/3.0, w.Ratio(), 1e-9)
}

func TestWindowEvictsOldestSample(t *testing.T) {
	w := NewWindow(2)
	w.Push(true)
	w.Push(true)
	assert.Equal(t, 1.0, w.Ratio())

	w.Push(false) // evicts the first true
	assert.Equal(t, 0.5, w.Ratio())

	w.Push(false) // evicts the second true
	assert.Equal(t, 0.0, w.Ratio())
}

func TestEstimatorPrimedRequiresBothWindows(t *testing.T) {
	e := NewEstimator(2, 4)
	for i := 0; i < 2; i++ {
		e.Push(true)
	}
	assert.False(t, e.Primed(), "slow window still has room")

	e.Push(true)
	e.Push(true)
	assert.True(t, e.Primed())
}

func TestEstimatorPushReturnsBothRatios(t *testing.T) {
	e := NewEstimator(2, 2)
	fast, slow := e.Push(true)
	assert.Equal(t, 1.0, fast)
	assert.Equal(t, 1.0, slow)
}
