package axis

import "log"

// EventKind identifies an event raised during a tick.
type EventKind int

const (
	EventAtPosition EventKind = iota + 1
	EventJumpedToLowerLimit
	EventConfigError
)

func (k EventKind) String() string {
	switch k {
	case EventAtPosition:
		return "at_position"
	case EventJumpedToLowerLimit:
		return "jumped_to_lower_limit"
	case EventConfigError:
		return "config_error"
	default:
		return "unknown"
	}
}

// Event is a notification raised by an axis during a tick.
type Event struct {
	Axis *Axis
	Kind EventKind
	Err  error // Set for EventConfigError
}

// OnBeforeTick registers fn to run at the start of every tick, before behaviors.
func (a *Axis) OnBeforeTick(fn func(*Axis)) { a.beforeTick = append(a.beforeTick, fn) }

// OnAfterTick registers fn to run after the position is applied, before sub-drives tick.
func (a *Axis) OnAfterTick(fn func(*Axis)) { a.afterTick = append(a.afterTick, fn) }

// OnAtPosition registers fn for the tick the axis arrives on its destination.
func (a *Axis) OnAtPosition(fn func(*Axis)) { a.atPosition = append(a.atPosition, fn) }

// OnJumpToLowerLimit registers fn for the tick a forward jog wraps past the upper limit.
func (a *Axis) OnJumpToLowerLimit(fn func(*Axis)) { a.jumped = append(a.jumped, fn) }

// OnConfigError registers fn for configuration errors. Without handlers errors are logged.
func (a *Axis) OnConfigError(fn func(*Axis, error)) { a.configErrors = append(a.configErrors, fn) }

// ReportConfigError delivers err once. Repeated reports of the same error are dropped.
func (a *Axis) ReportConfigError(err error) {
	if err == nil || a.reported[err.Error()] {
		return
	}
	a.reported[err.Error()] = true

	if a.events != nil {
		*a.events = append(*a.events, Event{Axis: a, Kind: EventConfigError, Err: err})
	}
	if len(a.configErrors) == 0 {
		log.Printf("%s: configuration error: %v\n", a.Name, err)
		return
	}
	for _, fn := range a.configErrors {
		fn(a, err)
	}
}

func (a *Axis) raise(kind EventKind, observers []func(*Axis)) {
	if a.events != nil {
		*a.events = append(*a.events, Event{Axis: a, Kind: kind})
	}
	notify(a, observers)
}

func notify(a *Axis, observers []func(*Axis)) {
	for _, fn := range observers {
		fn(a)
	}
}
