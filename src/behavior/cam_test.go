package behavior

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryansname/axisctl/src/axis"
)

func TestCurve_Evaluate(t *testing.T) {
	c := NewCurve(
		CurvePoint{Master: 100, Slave: 50},
		CurvePoint{Master: 0, Slave: 0},
		CurvePoint{Master: 200, Slave: 0},
	)

	tests := []struct {
		name string
		x    float64
		want float64
	}{
		{"before first point", -10, 0},
		{"on a point", 100, 50},
		{"rising segment", 50, 25},
		{"falling segment", 150, 25},
		{"past last point", 300, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, c.Evaluate(tt.x), 1e-9)
		})
	}

	assert.Equal(t, 0.0, Curve(nil).Evaluate(5))
}

func cyclicMaster() *axis.Axis {
	config := axis.DefaultConfig()
	config.TargetSpeed = 70
	config.Limits = axis.Limits{Use: true, Lower: 0, Upper: 360, JumpToLower: true}
	return axis.New("master", config)
}

func TestCam_FollowsCurve(t *testing.T) {
	master := axis.New("master", axis.DefaultConfig())
	slave := axis.New("slave", axis.DefaultConfig())
	config := DefaultCamConfig()
	config.CamScale = 2
	config.CamOffset = 1
	_, err := NewCam(master, slave, NewCurve(CurvePoint{0, 0}, CurvePoint{100, 10}), config)
	require.NoError(t, err)

	master.Forward()
	tickN(master, 5)
	assert.Equal(t, 50.0, master.Position())
	assert.InDelta(t, 11.0, slave.Position(), 1e-9)
}

func TestCam_ContinuousWrapAccumulatesRevolution(t *testing.T) {
	master := cyclicMaster()
	slave := axis.New("chain", axis.DefaultConfig())
	config := DefaultCamConfig()
	config.Continuous = true
	c, err := NewCam(master, slave, NewCurve(CurvePoint{0, 0}, CurvePoint{360, 100}), config)
	require.NoError(t, err)
	require.True(t, c.IsContinuous())

	master.Forward()
	tickN(master, 51)
	assert.Equal(t, 357.0, master.Position())
	assert.InDelta(t, 35700.0/360, slave.Position(), 1e-9)

	tickN(master, 1)
	assert.Equal(t, 4.0, master.Position())
	assert.InDelta(t, 100+400.0/360, slave.Position(), 1e-9, "Slave keeps moving forward across the wrap")

	last := slave.Position()
	for range 200 {
		tickN(master, 1)
		assert.Greater(t, slave.Position(), last)
		last = slave.Position()
	}
}

func TestCam_ContinuousRequiresCyclicMaster(t *testing.T) {
	master := axis.New("master", axis.DefaultConfig())
	slave := axis.New("chain", axis.DefaultConfig())
	var errs []error
	slave.OnConfigError(func(_ *axis.Axis, err error) { errs = append(errs, err) })

	config := DefaultCamConfig()
	config.Continuous = true
	c, err := NewCam(master, slave, NewCurve(CurvePoint{0, 0}, CurvePoint{360, 100}), config)
	require.NoError(t, err)
	assert.False(t, c.IsContinuous())
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrCamNotCyclic)

	master.Forward()
	tickN(master, 3)
	assert.InDelta(t, 3000.0/360, slave.Position(), 1e-9, "Falls back to a plain cam")
}
