package behavior

import (
	"math"

	"github.com/ryansname/axisctl/src/axis"
)

// SpeedDrive turns a signed speed command into a jog. Zero releases the jog.
type SpeedDrive struct {
	Switch
	TargetSpeed   float64
	Acceleration  float64
	PositionScale float64

	axis *axis.Axis
}

func NewSpeedDrive(a *axis.Axis) *SpeedDrive {
	d := &SpeedDrive{TargetSpeed: 0, Acceleration: a.Acceleration, PositionScale: 1, axis: a}
	a.AddBehavior(d)
	return d
}

func (d *SpeedDrive) Compute(a *axis.Axis, _ axis.Step) {
	a.TargetSpeed = math.Abs(d.TargetSpeed)
	a.SetJog(d.TargetSpeed > 0, d.TargetSpeed < 0)
	a.Acceleration = d.Acceleration
}

func (d *SpeedDrive) IsDriving() bool         { return d.axis.IsRunning() }
func (d *SpeedDrive) CurrentSpeed() float64    { return d.axis.CurrentSpeed() }
func (d *SpeedDrive) CurrentPosition() float64 { return d.axis.CurrentPosition() * d.PositionScale }
