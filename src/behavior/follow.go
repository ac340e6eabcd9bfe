package behavior

import "github.com/ryansname/axisctl/src/axis"

// FollowPosition copies an external position input onto the axis each tick.
type FollowPosition struct {
	Switch
	Input         float64
	Scale         float64
	Offset        float64
	FeedbackScale float64

	axis *axis.Axis
}

func NewFollowPosition(a *axis.Axis) *FollowPosition {
	f := &FollowPosition{Scale: 1, FeedbackScale: 1, axis: a}
	a.AddBehavior(f)
	return f
}

func (f *FollowPosition) Compute(a *axis.Axis, _ axis.Step) {
	a.SetPosition(f.Input*f.Scale + f.Offset)
}

// Feedback is the axis position scaled for the controller that owns Input.
func (f *FollowPosition) Feedback() float64 {
	return f.axis.CurrentPosition() * f.FeedbackScale
}
