package axis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAxis(configure func(*Config)) *Axis {
	config := DefaultConfig()
	if configure != nil {
		configure(&config)
	}
	return New("test", config)
}

func tickN(a *Axis, n int, dt float64) []Event {
	var events []Event
	for range n {
		events = append(events, a.Tick(Step{DT: dt})...)
	}
	return events
}

func countEvents(events []Event, kind EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func TestAxis_ScenarioA_ConstantSpeedMove(t *testing.T) {
	a := newTestAxis(nil)
	a.DriveTo(100)

	for i := 1; i < 10; i++ {
		events := a.Tick(Step{DT: 0.1})
		assert.Empty(t, events, "tick %d", i)
		assert.False(t, a.IsAtTarget(), "tick %d", i)
		assert.Equal(t, 100.0, a.Speed(), "tick %d", i)
		assert.InDelta(t, float64(i)*10, a.Position(), 1e-9, "tick %d", i)
	}

	events := a.Tick(Step{DT: 0.1})
	assert.Equal(t, 100.0, a.Position())
	assert.True(t, a.IsAtTarget())
	assert.Equal(t, 0.0, a.Speed(), "Speed resets on the arrival tick")
	assert.False(t, a.IsRunning())
	assert.Equal(t, 1, countEvents(events, EventAtPosition))
}

func TestAxis_IdempotentAtTarget(t *testing.T) {
	a := newTestAxis(nil)
	a.DriveTo(100)
	tickN(a, 10, 0.1)
	require.True(t, a.IsAtTarget())

	for range 50 {
		events := a.Tick(Step{DT: 0.1})
		assert.Empty(t, events, "No repeated at-position events")
		assert.Equal(t, 100.0, a.Position())
		assert.Equal(t, 0.0, a.Speed())
	}
}

func TestAxis_ScenarioB_TrapezoidalMove(t *testing.T) {
	const dt = 0.01
	a := newTestAxis(func(c *Config) {
		c.UseAcceleration = true
		c.Acceleration = 100
		c.TargetSpeed = 100
	})
	a.DriveTo(1000)

	tickN(a, 50, dt)
	assert.InDelta(t, 50, a.Speed(), 1e-9, "Linear ramp at 100 units/s²")

	tickN(a, 50, dt)
	assert.InDelta(t, 100, a.Speed(), 1e-9, "Cruise speed reached after 1s")
	assert.True(t, a.IsAtTargetSpeed())

	ticks := 100
	peak := 0.0
	for ticks < 5000 && !a.IsAtTarget() {
		a.Tick(Step{DT: dt})
		ticks++
		peak = max(peak, a.Speed())
		assert.LessOrEqual(t, a.Position(), 1000.0, "Never reports a position past the destination")
	}

	assert.True(t, a.IsAtTarget())
	assert.Equal(t, 1000.0, a.Position())
	assert.Equal(t, 0.0, a.Speed(), "Arrives at rest")
	assert.LessOrEqual(t, peak, 100.0)
	assert.InDelta(t, 1100, ticks, 30, "Takes about 11s: 1s ramp, 9s cruise, 1s ramp")
}

func TestAxis_TrapezoidalMoveBackward(t *testing.T) {
	a := newTestAxis(func(c *Config) {
		c.UseAcceleration = true
		c.StartPosition = 500
	})
	a.DriveTo(-200)

	for range 5000 {
		a.Tick(Step{DT: 0.01})
		assert.GreaterOrEqual(t, a.Position(), -200.0)
		if a.IsAtTarget() {
			break
		}
	}
	assert.Equal(t, -200.0, a.Position())
	assert.Equal(t, 0.0, a.Speed())
}

func TestAxis_NoOvershootForAnyDistance(t *testing.T) {
	for _, distance := range []float64{0.3, 7, 49, 50, 51, 333.3} {
		a := newTestAxis(func(c *Config) {
			c.UseAcceleration = true
		})
		a.DriveTo(distance)

		for range 10000 {
			a.Tick(Step{DT: 0.02})
			assert.LessOrEqual(t, a.Position(), distance, "distance %v", distance)
			if a.IsAtTarget() {
				break
			}
		}
		assert.True(t, a.IsAtTarget(), "distance %v", distance)
		assert.Equal(t, distance, a.Position(), "distance %v", distance)
	}
}

func TestAxis_DriveToCurrentPositionIsImmediatelyAtTarget(t *testing.T) {
	a := newTestAxis(func(c *Config) { c.StartPosition = 42 })
	a.DriveTo(42)

	a.Tick(Step{DT: 0.1})

	assert.True(t, a.IsAtTarget())
	assert.False(t, a.IsRunning())
	assert.Equal(t, 42.0, a.Position())
}

func TestAxis_LimitClamp(t *testing.T) {
	a := newTestAxis(func(c *Config) {
		c.UseAcceleration = true
		c.Acceleration = 500
		c.Limits = Limits{Use: true, Lower: 0, Upper: 100}
	})

	a.Forward()
	for range 200 {
		a.Tick(Step{DT: 0.05})
		assert.LessOrEqual(t, a.Position(), 100.0)
		assert.GreaterOrEqual(t, a.Position(), 0.0)
	}
	assert.True(t, a.IsAtUpperLimit())

	a.Backward()
	for range 400 {
		a.Tick(Step{DT: 0.05})
		assert.LessOrEqual(t, a.Position(), 100.0)
		assert.GreaterOrEqual(t, a.Position(), 0.0)
	}
	assert.True(t, a.IsAtLowerLimit())
	assert.False(t, a.IsAtUpperLimit())
}

func TestAxis_LimitClampWhileSeeking(t *testing.T) {
	a := newTestAxis(func(c *Config) {
		c.Limits = Limits{Use: true, Lower: 0, Upper: 100}
	})
	a.DriveTo(150)

	for range 50 {
		a.Tick(Step{DT: 0.1})
		assert.LessOrEqual(t, a.Position(), 100.0)
	}
	assert.Equal(t, 100.0, a.Position())
	assert.False(t, a.IsAtTarget())
}

type fixedOffsetSensor struct {
	a      *Axis
	offset float64
}

func (s fixedOffsetSensor) MeasuredPosition() float64 { return s.a.CurrentPosition() + s.offset }

func TestAxis_LimitSensorClampsByDifference(t *testing.T) {
	a := newTestAxis(func(c *Config) {
		c.Limits = Limits{Use: true, Lower: 0, Upper: 100}
	})
	a.Sensor = fixedOffsetSensor{a: a, offset: 10}
	a.SetPosition(95)

	a.Tick(Step{DT: 0.1})

	assert.Equal(t, 90.0, a.Position(), "Measured 105 is 5 past the limit")
}

func TestAxis_LimitEndWindow(t *testing.T) {
	a := newTestAxis(func(c *Config) {
		c.StartPosition = 97
		c.Limits = Limits{Use: true, Lower: 0, Upper: 100, EndWindow: 5}
	})

	a.Tick(Step{DT: 0.1})

	assert.True(t, a.IsAtUpperLimit())
	assert.False(t, a.IsAtLowerLimit())
}

func TestAxis_ScenarioC_CyclicWrap(t *testing.T) {
	a := newTestAxis(func(c *Config) {
		c.TargetSpeed = 70
		c.Limits = Limits{Use: true, Lower: 0, Upper: 360, JumpToLower: true}
	})
	jumps := 0
	a.OnJumpToLowerLimit(func(*Axis) { jumps++ })

	a.Forward()
	tickN(a, 51, 0.1)
	assert.Equal(t, 357.0, a.Position())

	events := a.Tick(Step{DT: 0.1})
	assert.Equal(t, 4.0, a.Position(), "Wraps to measured - upper")
	assert.Equal(t, 1, countEvents(events, EventJumpedToLowerLimit))
	assert.Equal(t, 1, jumps)

	// 520 ticks of 7 units is ten full revolutions plus 40
	a = newTestAxis(func(c *Config) {
		c.TargetSpeed = 70
		c.Limits = Limits{Use: true, Lower: 0, Upper: 360, JumpToLower: true}
	})
	a.Forward()
	events = tickN(a, 520, 0.1)
	assert.Equal(t, 10, countEvents(events, EventJumpedToLowerLimit), "One jump per revolution")
	assert.Equal(t, 40.0, a.Position())
}

func TestAxis_PositionOverride(t *testing.T) {
	a := newTestAxis(nil)
	a.Forward()
	tickN(a, 5, 0.1)
	require.Equal(t, 50.0, a.Position())

	a.SetPositionOverride(7)
	for range 5 {
		a.Tick(Step{DT: 0.1})
		assert.Equal(t, 7.0, a.Position(), "Reports the override")
	}
	assert.Equal(t, 100.0, a.CurrentPosition(), "Internal motion continues underneath")

	a.ReleaseOverrides()
	a.Tick(Step{DT: 0.1})
	assert.Equal(t, 110.0, a.Position(), "Resumes from the internal trajectory")
	assert.Equal(t, 100.0, a.Speed())
}

func TestAxis_OverrideSpeedReconstruction(t *testing.T) {
	a := newTestAxis(nil)
	a.Tick(Step{DT: 0.1})

	value := 0.0
	for range 200 {
		value += 5
		a.SetPositionOverride(value)
		a.Tick(Step{DT: 0.1})
	}
	assert.InDelta(t, 50, a.Speed(), 0.01, "Smoothed speed converges on the override rate")

	for range 200 {
		a.Tick(Step{DT: 0.1})
	}
	assert.Equal(t, 0.0, a.Speed(), "Dead zone suppresses residual speed")

	a.SetSpeedOverride(42)
	a.Tick(Step{DT: 0.1})
	assert.Equal(t, 42.0, a.Speed())
}

func TestAxis_SinkReceivesChangesOnly(t *testing.T) {
	a := newTestAxis(nil)
	var applied []float64
	a.Sink = PositionSinkFunc(func(_ *Axis, pos float64) { applied = append(applied, pos) })

	tickN(a, 3, 0.1)
	assert.Equal(t, []float64{0}, applied, "First tick always applies")

	a.DriveTo(20)
	tickN(a, 5, 0.1)
	assert.Equal(t, []float64{0, 10, 20}, applied)
}

func TestAxis_SubDrivesTickAfterParent(t *testing.T) {
	parent := New("parent", DefaultConfig())
	children := make([]*Axis, 3)
	for i := range children {
		child := New("child", DefaultConfig())
		factor := float64(i + 1)
		child.AddBehavior(BehaviorFunc(func(a *Axis, _ Step) {
			a.SetPosition(parent.CurrentPosition() * factor)
		}))
		require.NoError(t, parent.AddSubDrive(child))
		children[i] = child
	}

	var order []string
	parent.OnAfterTick(func(a *Axis) { order = append(order, a.Name) })
	for _, c := range children {
		c.OnBeforeTick(func(a *Axis) { order = append(order, a.Name) })
	}

	parent.Forward()
	for range 10 {
		parent.Tick(Step{DT: 0.1})
		for i, c := range children {
			assert.Equal(t, parent.Position()*float64(i+1), c.Position(), "Child sees the post-tick parent")
		}
	}
	assert.Equal(t, []string{"parent", "child", "child", "child"}, order[:4])
}

func TestAxis_AddSubDriveErrors(t *testing.T) {
	a := New("a", DefaultConfig())
	b := New("b", DefaultConfig())
	c := New("c", DefaultConfig())

	require.NoError(t, a.AddSubDrive(b))
	require.NoError(t, a.AddSubDrive(b), "Adding twice is a no-op")
	assert.Len(t, a.SubDrives(), 1)

	require.NoError(t, b.AddSubDrive(c))
	assert.ErrorIs(t, c.AddSubDrive(a), ErrSubDriveCycle)
	assert.ErrorIs(t, a.AddSubDrive(a), ErrSubDriveCycle)
	assert.ErrorIs(t, c.AddSubDrive(b), ErrSubDriveParent)

	a.RemoveSubDrive(b)
	assert.False(t, b.IsSubDrive())
	assert.Empty(t, a.SubDrives())
}

func TestAxis_StopRequest(t *testing.T) {
	a := newTestAxis(nil)
	a.DriveTo(100)
	tickN(a, 3, 0.1)

	a.RequestStop()
	a.Tick(Step{DT: 0.1})

	assert.Equal(t, 30.0, a.Position(), "Stop takes effect before integration")
	assert.Equal(t, 0.0, a.Speed())
	assert.True(t, a.IsStopped())

	tickN(a, 5, 0.1)
	assert.Equal(t, 30.0, a.Position())
}

func TestAxis_ResetHoldsAtOffset(t *testing.T) {
	a := newTestAxis(func(c *Config) { c.Offset = 5 })
	a.Forward()
	tickN(a, 3, 0.1)

	a.SetReset(true)
	tickN(a, 3, 0.1)
	assert.Equal(t, 5.0, a.Position())
	assert.Equal(t, 0.0, a.Speed())
	assert.False(t, a.IsRunning())

	a.SetReset(false)
	a.DriveTo(25)
	tickN(a, 2, 0.1)
	assert.Equal(t, 25.0, a.Position())
}

func TestAxis_JogDefersTargetSeek(t *testing.T) {
	a := newTestAxis(nil)
	a.Forward()
	tickN(a, 3, 0.1)

	a.DriveTo(0)
	a.Tick(Step{DT: 0.1})
	assert.Equal(t, 100.0, a.Speed(), "Jogging wins over a new target")

	a.JogStop()
	a.Tick(Step{DT: 0.1})
	assert.Equal(t, -100.0, a.Speed(), "Deferred target is acquired once the jog ends")

	tickN(a, 10, 0.1)
	assert.Equal(t, 0.0, a.Position())
	assert.True(t, a.IsAtTarget())
}

func TestAxis_JogReleaseDecelerates(t *testing.T) {
	a := newTestAxis(func(c *Config) {
		c.UseAcceleration = true
		c.Acceleration = 100
	})
	a.Forward()
	tickN(a, 200, 0.01)
	require.InDelta(t, 100, a.Speed(), 1e-9)
	released := a.Position()

	a.JogStop()
	a.Tick(Step{DT: 0.01})
	assert.Greater(t, a.Speed(), 0.0, "Ramps down instead of stopping instantly")

	events := tickN(a, 200, 0.01)
	assert.Equal(t, 0.0, a.Speed())
	assert.True(t, a.IsStopped())
	assert.InDelta(t, released+50, a.Position(), 2, "Brakes over v²/2a")
	assert.Equal(t, 1, countEvents(events, EventAtPosition))
}

func TestAxis_DriveToIn(t *testing.T) {
	a := newTestAxis(nil)
	a.DriveToIn(100, 2)

	tickN(a, 19, 0.1)
	assert.False(t, a.IsAtTarget())
	assert.Equal(t, 50.0, a.TargetSpeed)

	a.Tick(Step{DT: 0.1})
	assert.True(t, a.IsAtTarget())
	assert.Equal(t, 100.0, a.TargetSpeed, "Standard speed restored on arrival")
}

func TestAxis_DriveToInDegenerate(t *testing.T) {
	a := newTestAxis(func(c *Config) { c.UseAcceleration = true })
	a.DriveToIn(100, 0)
	assert.Equal(t, 100.0, a.TargetSpeed)
	assert.Equal(t, 100.0, a.Acceleration)

	a.DriveToIn(0.0001, 3)
	assert.Equal(t, 100.0, a.TargetSpeed)
	assert.Equal(t, 100.0, a.Acceleration)
}

func TestAxis_TimeTo(t *testing.T) {
	a := newTestAxis(func(c *Config) { c.UseAcceleration = true })
	assert.Equal(t, 11.0, a.TimeTo(1000))

	a = newTestAxis(nil)
	assert.Equal(t, 2.0, a.TimeTo(-200))
}

func TestAxis_AccelerateDecelerate(t *testing.T) {
	a := newTestAxis(func(c *Config) { c.UseAcceleration = true })
	a.Accelerate()

	tickN(a, 150, 0.01)
	assert.InDelta(t, 100, a.Speed(), 1e-9)
	assert.True(t, a.IsAtTargetSpeed())

	a.Decelerate()
	tickN(a, 150, 0.01)
	assert.Equal(t, 0.0, a.Speed())
	assert.True(t, a.IsStopped())
}

func TestAxis_SmoothMove(t *testing.T) {
	a := newTestAxis(func(c *Config) {
		c.SmoothAcceleration = true
		c.TargetSpeed = 50
		c.Acceleration = 100
		c.Jerk = 1000
	})
	a.DriveTo(100)

	var events []Event
	for range 2000 {
		events = append(events, a.Tick(Step{DT: 0.01})...)
		assert.LessOrEqual(t, a.Position(), 100.0)
	}

	assert.True(t, a.IsAtTarget())
	assert.Equal(t, 100.0, a.Position())
	assert.Equal(t, 0.0, a.Speed())
	assert.Equal(t, 1, countEvents(events, EventAtPosition))
}

func TestAxis_SmoothJog(t *testing.T) {
	a := newTestAxis(func(c *Config) {
		c.SmoothAcceleration = true
		c.TargetSpeed = 50
		c.Acceleration = 100
		c.Jerk = 1000
	})
	a.Forward()
	tickN(a, 300, 0.01)
	assert.InDelta(t, 50, a.Speed(), 0.5)
	released := a.Position()

	a.JogStop()
	tickN(a, 300, 0.01)
	assert.Equal(t, 0.0, a.Speed())
	assert.True(t, a.IsStopped())
	assert.Greater(t, a.Position(), released)
}

func TestAxis_SnapshotRestore(t *testing.T) {
	configure := func(c *Config) { c.UseAcceleration = true }
	a := newTestAxis(configure)
	a.DriveTo(500)
	tickN(a, 120, 0.01)

	b := newTestAxis(configure)
	b.Restore(a.Snapshot())

	for range 300 {
		a.Tick(Step{DT: 0.01})
		b.Tick(Step{DT: 0.01})
		require.Equal(t, a.Position(), b.Position())
	}
}

func TestAxis_SnapshotRestoreTimedMove(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*Config)
		seconds   float64
	}{
		{"constant speed", nil, 2},
		{"trapezoid", func(c *Config) { c.UseAcceleration = true }, 4},
		{"smooth", func(c *Config) { c.SmoothAcceleration = true }, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAxis(tt.configure)
			a.DriveToIn(100, tt.seconds)
			tickN(a, 150, 0.01)
			require.False(t, a.IsAtTarget())

			b := newTestAxis(tt.configure)
			b.Restore(a.Snapshot())

			for range 600 {
				a.Tick(Step{DT: 0.01})
				b.Tick(Step{DT: 0.01})
				require.Equal(t, a.Position(), b.Position())
				require.Equal(t, a.Speed(), b.Speed())
			}
			assert.True(t, b.IsAtTarget())
			assert.Equal(t, 100.0, b.TargetSpeed, "Standard speed restored on arrival")
			assert.Equal(t, 100.0, b.Acceleration, "Standard acceleration restored on arrival")
		})
	}
}

func ticksToTarget(a *Axis, limit int) int {
	for n := 1; n <= limit; n++ {
		a.Tick(Step{DT: 0.01})
		if a.IsAtTarget() {
			return n
		}
	}
	return limit
}

func TestAxis_SmoothDurationAppliesToOneMove(t *testing.T) {
	configure := func(c *Config) { c.SmoothAcceleration = true }

	fresh := newTestAxis(configure)
	fresh.TargetPosition = 100
	fresh.SetStartMove(true)
	plain := ticksToTarget(fresh, 2000)

	a := newTestAxis(configure)
	a.DriveToIn(100, 10)
	timed := ticksToTarget(a, 2000)
	assert.InDelta(t, 1000, timed, 20)

	a.TargetPosition = 200
	a.SetStartMove(true)
	next := ticksToTarget(a, 2000)
	assert.Equal(t, 200.0, a.Position())
	assert.InDelta(t, plain, next, 2, "Following move runs unconstrained")
}

func TestAxis_AtTargetSpeedIsSigned(t *testing.T) {
	a := newTestAxis(nil)
	a.DriveTo(100)
	a.Tick(Step{DT: 0.1})
	assert.True(t, a.IsAtTargetSpeed())

	a = newTestAxis(func(c *Config) { c.StartPosition = 100 })
	a.DriveTo(0)
	a.Tick(Step{DT: 0.1})
	assert.Equal(t, -100.0, a.Speed())
	assert.False(t, a.IsAtTargetSpeed())
}

func TestAxis_PositionOverrideReportedImmediately(t *testing.T) {
	a := newTestAxis(nil)
	a.Forward()
	tickN(a, 3, 0.1)

	a.SetPositionOverride(7)
	assert.Equal(t, 7.0, a.Position())

	a.SetPosition(9)
	assert.Equal(t, 9.0, a.Position(), "SetPosition moves the override value")

	a.ReleaseOverrides()
	assert.Equal(t, a.CurrentPosition(), a.Position())
	assert.Equal(t, 100.0, a.Speed())
}

func TestAxis_SmoothCyclicWrap(t *testing.T) {
	a := newTestAxis(func(c *Config) {
		c.SmoothAcceleration = true
		c.TargetSpeed = 50
		c.Limits = Limits{Use: true, Lower: 0, Upper: 360, JumpToLower: true}
	})
	a.Forward()

	jumps := 0
	last := a.Position()
	for range 2000 {
		events := a.Tick(Step{DT: 0.01})
		pos := a.Position()
		require.GreaterOrEqual(t, pos, 0.0)
		require.Less(t, pos, 360.0)
		if countEvents(events, EventJumpedToLowerLimit) > 0 {
			jumps++
			assert.InDelta(t, last+0.5-360, pos, 0.01, "Wraps without losing distance")
		} else {
			assert.GreaterOrEqual(t, pos, last)
		}
		last = pos
	}
	assert.Equal(t, 2, jumps)
	assert.InDelta(t, 50, a.Speed(), 0.01, "Jog speed carries across the wrap")
}

func TestAxis_SmoothLimitClamp(t *testing.T) {
	a := newTestAxis(func(c *Config) {
		c.SmoothAcceleration = true
		c.TargetSpeed = 50
		c.Limits = Limits{Use: true, Lower: 0, Upper: 100}
	})
	a.Forward()
	for range 500 {
		a.Tick(Step{DT: 0.01})
		require.LessOrEqual(t, a.Position(), 100.0)
	}
	assert.Equal(t, 100.0, a.Position())
	assert.Equal(t, 0.0, a.Speed())
	assert.True(t, a.IsAtUpperLimit())
}

func TestAxis_ConfigErrorReportedOnce(t *testing.T) {
	a := newTestAxis(nil)
	var got []error
	a.OnConfigError(func(_ *Axis, err error) { got = append(got, err) })

	errBad := errors.New("bad config")
	a.ReportConfigError(errBad)
	a.ReportConfigError(errBad)

	assert.Equal(t, []error{errBad}, got)
}

func TestAxis_DisabledBehaviorSkipped(t *testing.T) {
	a := newTestAxis(nil)
	b := &toggleBehavior{}
	a.AddBehavior(b)

	a.Tick(Step{DT: 0.1})
	assert.Equal(t, 0, b.calls)

	b.on = true
	a.Tick(Step{DT: 0.1})
	assert.Equal(t, 1, b.calls)
}

type toggleBehavior struct {
	on    bool
	calls int
}

func (b *toggleBehavior) Compute(*Axis, Step) { b.calls++ }
func (b *toggleBehavior) Enabled() bool       { return b.on }
