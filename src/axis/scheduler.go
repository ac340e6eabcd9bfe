package axis

import (
	"errors"
	"fmt"
)

// ErrDuplicateAxis is returned when two axes share a name.
var ErrDuplicateAxis = errors.New("duplicate axis name")

// Scheduler ticks a set of axes at a fixed step. Sub-drives are skipped because their parent
// ticks them.
type Scheduler struct {
	SpeedOverride float64 // Global speed factor, 0 is treated as 1

	axes   []*Axis
	byName map[string]*Axis
	now    float64
}

func NewScheduler() *Scheduler {
	return &Scheduler{SpeedOverride: 1, byName: map[string]*Axis{}}
}

// Add registers a in tick order.
func (s *Scheduler) Add(a *Axis) error {
	if _, ok := s.byName[a.Name]; ok {
		return fmt.Errorf("%s: %w", a.Name, ErrDuplicateAxis)
	}
	s.axes = append(s.axes, a)
	s.byName[a.Name] = a
	return nil
}

// Axis looks up an axis by name.
func (s *Scheduler) Axis(name string) (*Axis, bool) {
	a, ok := s.byName[name]
	return a, ok
}

// Axes returns every registered axis in registration order, sub-drives included.
func (s *Scheduler) Axes() []*Axis { return s.axes }

// Now returns the simulated seconds elapsed.
func (s *Scheduler) Now() float64 { return s.now }

// Tick advances every top-level axis by dt and returns all events raised.
func (s *Scheduler) Tick(dt float64) []Event {
	step := Step{DT: dt, SpeedOverride: s.SpeedOverride}
	var events []Event
	for _, a := range s.axes {
		if a.IsSubDrive() {
			continue
		}
		a.tick(step, &events)
	}
	s.now += dt
	return events
}
