package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"maps"
	"slices"

	yml "gopkg.in/yaml.v3"

	"github.com/ryansname/axisctl/src/axis"
	"github.com/ryansname/axisctl/src/behavior"
	"github.com/ryansname/axisctl/src/envelope"
)

var (
	errUnknownAxis   = errors.New("unknown axis")
	errUnknownInput  = errors.New("unknown input")
	errUnknownSignal = errors.New("unknown signal")
)

// input sets one runtime input of a behavior
type input func(value float64)

// AxisState is the published view of one axis
type AxisState struct {
	axis.Status `yaml:",inline"`
	EnvelopeMin float64 `json:"envelope_min" yaml:"envelope_min"`
	EnvelopeMax float64 `json:"envelope_max" yaml:"envelope_max"`
}

// EventRecord is an axis event in transport form
type EventRecord struct {
	Time  float64 `json:"time"`
	Axis  string  `json:"axis"`
	Kind  string  `json:"kind"`
	Error string  `json:"error,omitempty"`
}

// PlantState is the frame published by the simulation worker
type PlantState struct {
	Time    float64         `json:"time"`
	Axes    []AxisState     `json:"axes"`
	Signals map[string]bool `json:"signals,omitempty"`
	Events  []EventRecord   `json:"events,omitempty"`
}

// Axis finds the state of the named axis
func (s PlantState) Axis(name string) (AxisState, bool) {
	for _, a := range s.Axes {
		if a.Name == name {
			return a, true
		}
	}
	return AxisState{}, false
}

// savedState is the state file format
type savedState struct {
	Time          float64         `yaml:"time"`
	SpeedOverride float64         `yaml:"speed_override"`
	Axes          []axis.Snapshot `yaml:"axes"`
	Signals       map[string]bool `yaml:"signals,omitempty"`
}

// Plant is the simulated mechanism: the scheduler, its axes and their behaviors. It is owned by
// the simulation worker and must only be touched from there.
type Plant struct {
	scheduler *axis.Scheduler
	signals   map[string]*behavior.Signal
	inputs    map[string]input
	envelopes map[string]*envelope.RollingMinMax
	timeCams  map[string][]*behavior.TimeCam
	window    int
}

// buildPlant constructs the axes and attaches the behaviors described by c
func buildPlant(c Config) (*Plant, error) {
	p := &Plant{
		scheduler: axis.NewScheduler(),
		signals:   map[string]*behavior.Signal{},
		inputs:    map[string]input{},
		envelopes: map[string]*envelope.RollingMinMax{},
		timeCams:  map[string][]*behavior.TimeCam{},
		window:    max(c.EnvelopeSeconds, 1),
	}
	p.SetSpeedOverride(c.SpeedOverride)

	for _, ac := range c.Axes {
		a := axis.New(ac.Name, ac.Motion)
		a.OnConfigError(func(a *axis.Axis, err error) {
			log.Printf("%s: configuration error: %v\n", a.Name, err)
		})
		if err := p.scheduler.Add(a); err != nil {
			return nil, err
		}
		p.envelopes[ac.Name] = envelope.NewRollingMinMax(p.window, 1)
	}

	for i, bc := range c.Behaviors {
		if err := p.attach(bc); err != nil {
			return nil, fmt.Errorf("behaviors[%d] (%s on %s): %w", i, bc.Kind, bc.Axis, err)
		}
	}
	if err := p.linkTimeCams(c.Behaviors); err != nil {
		return nil, err
	}
	return p, nil
}

// linkTimeCams resolves next references once every time cam exists, so chains may loop
func (p *Plant) linkTimeCams(bcs []BehaviorConfig) error {
	seen := map[string]int{}
	for i, bc := range bcs {
		if bc.Kind != KindTimeCam {
			continue
		}
		cam := p.timeCams[bc.Axis][seen[bc.Axis]]
		seen[bc.Axis]++
		if bc.TimeCam == nil || bc.TimeCam.Next == "" {
			continue
		}
		next, ok := p.timeCams[bc.TimeCam.Next]
		if !ok {
			return fmt.Errorf("behaviors[%d] (time_cam on %s): next axis %q has no time cam", i, bc.Axis, bc.TimeCam.Next)
		}
		cam.Next = next[0]
	}
	return nil
}

func (p *Plant) attach(bc BehaviorConfig) error {
	a, err := p.Axis(bc.Axis)
	if err != nil {
		return err
	}
	name := a.Name

	switch bc.Kind {
	case KindCylinder:
		config := behavior.DefaultCylinderConfig()
		if bc.Cylinder != nil {
			config = *bc.Cylinder
		}
		c := behavior.NewCylinder(a, config)
		p.addInput(name, "out", func(v float64) { c.Out = v != 0 })
		p.addInput(name, "in", func(v float64) { c.In = v != 0 })

	case KindCam:
		master, err := p.Axis(bc.Master)
		if err != nil {
			return err
		}
		config := behavior.DefaultCamConfig()
		if bc.Cam != nil {
			config = *bc.Cam
		}
		if _, err := behavior.NewCam(master, a, behavior.NewCurve(bc.Curve...), config); err != nil {
			return err
		}

	case KindGear:
		master, err := p.Axis(bc.Master)
		if err != nil {
			return err
		}
		gear := GearConfig{Factor: 1}
		if bc.Gear != nil {
			gear = *bc.Gear
		}
		g, err := behavior.NewGear(master, a, gear.Factor, gear.Offset)
		if err != nil {
			return err
		}
		p.addInput(name, "factor", func(v float64) { g.Factor = v })
		p.addInput(name, "offset", func(v float64) { g.Offset = v })

	case KindFollow:
		f := behavior.NewFollowPosition(a)
		p.addInput(name, "input", func(v float64) { f.Input = v })

	case KindSpeed:
		d := behavior.NewSpeedDrive(a)
		p.addInput(name, "speed", func(v float64) { d.TargetSpeed = v })
		p.addInput(name, "acceleration", func(v float64) { d.Acceleration = v })

	case KindDestination:
		m := behavior.NewDestinationMotor(a)
		p.addInput(name, "start", func(v float64) { m.StartDrive = v != 0 })
		p.addInput(name, "destination", func(v float64) { m.Destination = v })
		p.addInput(name, "speed", func(v float64) { m.TargetSpeed = v })
		p.addInput(name, "acceleration", func(v float64) { m.Acceleration = v })

	case KindContinuousDestination:
		c := behavior.NewContinuousDestination(a)
		p.addInput(name, "destination", func(v float64) { c.Destination = v })
		p.addInput(name, "speed", func(v float64) { c.TargetSpeed = v })
		p.addInput(name, "acceleration", func(v float64) { c.Acceleration = v })

	case KindErratic:
		config := behavior.DefaultErraticConfig()
		if bc.Erratic != nil {
			config = *bc.Erratic
		}
		e := behavior.NewErratic(a, config)
		if bc.Enable != "" {
			e.Enable = p.Signal(bc.Enable)
		}

	case KindSequence:
		if bc.Sequence == nil {
			return errors.New("missing sequence section")
		}
		steps := make([]behavior.SequenceStep, 0, len(bc.Sequence.Steps))
		for _, sc := range bc.Sequence.Steps {
			step := behavior.SequenceStep{
				Description:   sc.Description,
				Destination:   sc.Destination,
				NoWait:        sc.NoWait,
				Speed:         sc.Speed,
				WaitAfterStep: sc.WaitAfterStep,
				ResetOnStart:  p.optionalSignal(sc.ResetOnStart),
				WaitForSignal: p.optionalSignal(sc.WaitForSignal),
				Finished:      p.optionalSignal(sc.Finished),
			}
			if sc.Drive != "" {
				d, err := p.Axis(sc.Drive)
				if err != nil {
					return err
				}
				step.Drive = d
			}
			steps = append(steps, step)
		}
		s := behavior.NewSequence(a, steps, bc.Sequence.SequenceConfig)
		p.addInput(name, "next", func(float64) { s.Next() })
		p.addInput(name, "restart", func(float64) { s.Start() })

	case KindTimeCam:
		var master *axis.Axis
		if bc.Master != "" {
			if master, err = p.Axis(bc.Master); err != nil {
				return err
			}
		}
		config := behavior.DefaultTimeCamConfig()
		if bc.TimeCam != nil {
			config = bc.TimeCam.TimeCamConfig
		}
		tc := behavior.NewTimeCam(a, master, behavior.NewCurve(bc.Curve...), config)
		p.timeCams[name] = append(p.timeCams[name], tc)
		p.addInput(name, "cam_start", func(v float64) { tc.Start = v != 0 })

	case KindStartOnCondition:
		var monitored *axis.Axis
		if bc.Master != "" {
			if monitored, err = p.Axis(bc.Master); err != nil {
				return err
			}
		}
		config := behavior.DefaultStartOnConditionConfig()
		if bc.StartOnCondition != nil {
			config = *bc.StartOnCondition
		}
		sc := behavior.NewStartOnCondition(a, monitored, p.optionalSignal(bc.Sensor), config)
		p.addInput(name, "move_to", func(v float64) { sc.MoveTo = v })

	default:
		return fmt.Errorf("unknown behavior kind %q", bc.Kind)
	}
	return nil
}

func (p *Plant) addInput(axisName, name string, fn input) {
	p.inputs[axisName+"/"+name] = fn
}

func (p *Plant) optionalSignal(name string) *behavior.Signal {
	if name == "" {
		return nil
	}
	return p.Signal(name)
}

// Axis looks up an axis by name
func (p *Plant) Axis(name string) (*axis.Axis, error) {
	a, ok := p.scheduler.Axis(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownAxis, name)
	}
	return a, nil
}

// Axes returns every axis in tick order
func (p *Plant) Axes() []*axis.Axis {
	return p.scheduler.Axes()
}

// Signal returns the named signal, creating it on first use
func (p *Plant) Signal(name string) *behavior.Signal {
	s, ok := p.signals[name]
	if !ok {
		s = behavior.NewSignal(name)
		p.signals[name] = s
	}
	return s
}

// SetSignal writes an existing signal
func (p *Plant) SetSignal(name string, value bool) error {
	s, ok := p.signals[name]
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownSignal, name)
	}
	s.Set(value)
	return nil
}

// SetInput writes a named behavior input of an axis
func (p *Plant) SetInput(axisName, name string, value float64) error {
	if _, err := p.Axis(axisName); err != nil {
		return err
	}
	fn, ok := p.inputs[axisName+"/"+name]
	if !ok {
		return fmt.Errorf("%w: %s/%s", errUnknownInput, axisName, name)
	}
	fn(value)
	return nil
}

// Inputs lists the available inputs as axis/name
func (p *Plant) Inputs() []string {
	return slices.Sorted(maps.Keys(p.inputs))
}

// SpeedOverride is the global simulation speed factor
func (p *Plant) SpeedOverride() float64 {
	return p.scheduler.SpeedOverride
}

// SetSpeedOverride sets the global simulation speed factor, 0 is treated as 1
func (p *Plant) SetSpeedOverride(factor float64) {
	if factor <= 0 {
		factor = 1
	}
	p.scheduler.SpeedOverride = factor
}

// Now returns the simulated seconds elapsed
func (p *Plant) Now() float64 {
	return p.scheduler.Now()
}

// Tick advances the plant by dt seconds
func (p *Plant) Tick(dt float64) []axis.Event {
	events := p.scheduler.Tick(dt)
	now := p.scheduler.Now()
	for _, a := range p.scheduler.Axes() {
		p.envelopes[a.Name].Update(a.Position(), now)
	}
	return events
}

// State captures the published view of the plant
func (p *Plant) State() PlantState {
	axes := p.scheduler.Axes()
	s := PlantState{
		Time: p.scheduler.Now(),
		Axes: make([]AxisState, 0, len(axes)),
	}
	for _, a := range axes {
		env := p.envelopes[a.Name]
		s.Axes = append(s.Axes, AxisState{Status: a.Status(), EnvelopeMin: env.Min(), EnvelopeMax: env.Max()})
	}
	if len(p.signals) > 0 {
		s.Signals = make(map[string]bool, len(p.signals))
		for name, sig := range p.signals {
			s.Signals[name] = sig.Get()
		}
	}
	return s
}

// Save writes every axis snapshot and signal as yaml
func (p *Plant) Save(w io.Writer) error {
	st := savedState{Time: p.Now(), SpeedOverride: p.SpeedOverride()}
	for _, a := range p.scheduler.Axes() {
		st.Axes = append(st.Axes, a.Snapshot())
	}
	if len(p.signals) > 0 {
		st.Signals = map[string]bool{}
		for name, sig := range p.signals {
			st.Signals[name] = sig.Get()
		}
	}
	return yml.NewEncoder(w).Encode(st)
}

// Load restores a state written by Save. Every snapshot must name a known axis.
func (p *Plant) Load(r io.Reader) error {
	var st savedState
	if err := yml.NewDecoder(r).Decode(&st); err != nil {
		return fmt.Errorf("decoding state: %w", err)
	}
	for _, snap := range st.Axes {
		if _, err := p.Axis(snap.Name); err != nil {
			return err
		}
	}

	for _, snap := range st.Axes {
		a, _ := p.Axis(snap.Name)
		a.Restore(snap)
		p.envelopes[a.Name].Reset()
	}
	for name, v := range st.Signals {
		p.Signal(name).Set(v)
	}
	if st.SpeedOverride > 0 {
		p.SetSpeedOverride(st.SpeedOverride)
	}
	return nil
}

// eventRecords converts axis events for transport
func eventRecords(now float64, events []axis.Event) []EventRecord {
	records := make([]EventRecord, 0, len(events))
	for _, e := range events {
		r := EventRecord{Time: now, Axis: e.Axis.Name, Kind: e.Kind.String()}
		if e.Err != nil {
			r.Error = e.Err.Error()
		}
		records = append(records, r)
	}
	return records
}
