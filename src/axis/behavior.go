package axis

// Behavior computes commands for an axis once per tick, before the axis integrates. It writes
// through the command API (DriveTo, jog setters, Stop, SetPosition) and may read any status.
type Behavior interface {
	Compute(a *Axis, step Step)
}

// Toggler is implemented by behaviors that can be switched off. Disabled behaviors are skipped.
type Toggler interface {
	Enabled() bool
}

// BehaviorFunc adapts a function to Behavior.
type BehaviorFunc func(a *Axis, step Step)

func (f BehaviorFunc) Compute(a *Axis, step Step) { f(a, step) }

// AddBehavior attaches b. Behaviors run in attachment order and the last writer wins.
func (a *Axis) AddBehavior(b Behavior) {
	a.behaviors = append(a.behaviors, b)
}

// Behaviors returns the attached behaviors in evaluation order.
func (a *Axis) Behaviors() []Behavior { return a.behaviors }

func (a *Axis) runBehaviors(step Step) {
	for _, b := range a.behaviors {
		if t, ok := b.(Toggler); ok && !t.Enabled() {
			continue
		}
		b.Compute(a, step)
	}
}
