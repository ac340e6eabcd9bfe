package behavior

import "github.com/ryansname/axisctl/src/axis"

// feedback is the controller-facing view shared by the destination drives.
type feedback struct {
	PositionScale float64

	axis *axis.Axis
}

func (f *feedback) IsAtPosition() float64 { return f.axis.CurrentPosition() * f.PositionScale }
func (f *feedback) IsAtDestination() bool  { return f.axis.IsAtTarget() }
func (f *feedback) IsDriving() bool        { return f.axis.IsRunning() }
func (f *feedback) IsAtSpeed() float64     { return f.axis.CurrentSpeed() }

// DestinationMotor forwards a start bit, a destination and speed settings to the axis. A
// rising StartDrive begins a move to Destination.
type DestinationMotor struct {
	Switch
	feedback

	StartDrive   bool
	Destination  float64
	TargetSpeed  float64
	Acceleration float64
}

func NewDestinationMotor(a *axis.Axis) *DestinationMotor {
	m := &DestinationMotor{
		feedback:     feedback{PositionScale: 1, axis: a},
		Destination:  a.TargetPosition,
		TargetSpeed:  a.TargetSpeed,
		Acceleration: a.Acceleration,
	}
	a.AddBehavior(m)
	return m
}

func (m *DestinationMotor) Compute(a *axis.Axis, _ axis.Step) {
	a.SetStartMove(m.StartDrive)
	a.TargetPosition = m.Destination
	a.TargetSpeed = m.TargetSpeed
	a.Acceleration = m.Acceleration
}

// ContinuousDestination drives to Destination whenever it changes, without a start bit.
type ContinuousDestination struct {
	Switch
	feedback

	Destination  float64
	TargetSpeed  float64
	Acceleration float64

	lastDestination float64
}

func NewContinuousDestination(a *axis.Axis) *ContinuousDestination {
	c := &ContinuousDestination{
		feedback:     feedback{PositionScale: 1, axis: a},
		TargetSpeed:  a.TargetSpeed,
		Acceleration: a.Acceleration,
	}
	a.AddBehavior(c)
	return c
}

func (c *ContinuousDestination) Compute(a *axis.Axis, _ axis.Step) {
	if c.Destination != c.lastDestination {
		a.DriveTo(c.Destination)
	}
	a.TargetSpeed = c.TargetSpeed
	a.Acceleration = c.Acceleration
	c.lastDestination = c.Destination
}
