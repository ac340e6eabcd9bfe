package behavior

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ryansname/axisctl/src/axis"
)

func TestErratic_IteratesBetweenLimits(t *testing.T) {
	a := axis.New("shuttle", axis.DefaultConfig())
	config := DefaultErraticConfig()
	config.MaxPos = 20
	config.IterateBetweenMaxAndMin = true
	e := NewErratic(a, config)

	var positions []float64
	for range 5 {
		tickN(a, 1)
		positions = append(positions, a.Position())
	}
	assert.Equal(t, []float64{10, 20, 20, 10, 0}, positions)
	assert.Equal(t, 0.0, e.Destination())
}

func TestErratic_RandomPositionsStayInRange(t *testing.T) {
	a := axis.New("shuttle", axis.DefaultConfig())
	config := DefaultErraticConfig()
	config.MinPos = 10
	config.MaxPos = 20
	config.Seed = 7
	e := NewErratic(a, config)

	picked := map[float64]bool{}
	for range 300 {
		tickN(a, 1)
		picked[e.Destination()] = true
		assert.GreaterOrEqual(t, e.Destination(), 10.0)
		assert.LessOrEqual(t, e.Destination(), 20.0)
		assert.LessOrEqual(t, a.Position(), 20.0)
	}
	assert.Greater(t, len(picked), 1, "Keeps picking new positions")
}

func TestErratic_DisableReturnsToZero(t *testing.T) {
	a := axis.New("shuttle", axis.DefaultConfig())
	config := DefaultErraticConfig()
	config.MaxPos = 20
	config.IterateBetweenMaxAndMin = true
	e := NewErratic(a, config)
	e.Enable = NewSignal("enable")

	tickN(a, 3)
	assert.Equal(t, 0.0, a.Position(), "Rests while disabled")

	e.Enable.Set(true)
	tickN(a, 1)
	assert.Equal(t, 10.0, a.Position())

	e.Enable.Set(false)
	tickN(a, 2)
	assert.Equal(t, 0.0, a.Position())
	assert.False(t, e.IsDriving())
	assert.False(t, a.IsRunning())

	tickN(a, 3)
	assert.Equal(t, 0.0, a.Position())
}
