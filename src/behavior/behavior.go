// Package behavior provides units that command an axis once per tick: two-position cylinders,
// electronic cams, gears, signal-driven motors and step sequences.
//
// Inputs are plain exported fields written by the owner between ticks. Outputs are read back
// through methods after a tick.
package behavior

// Switch disables a behavior without detaching it from its axis.
type Switch struct {
	Disabled bool
}

func (s *Switch) Enabled() bool { return !s.Disabled }

// Signal is a shared boolean, the simulated counterpart of a controller bit. A nil Signal
// reads false and ignores writes.
type Signal struct {
	Name  string
	value bool
}

func NewSignal(name string) *Signal {
	return &Signal{Name: name}
}

func (s *Signal) Get() bool {
	return s != nil && s.value
}

func (s *Signal) Set(v bool) {
	if s != nil {
		s.value = v
	}
}
