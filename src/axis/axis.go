// Package axis implements a fixed-timestep single-axis motion controller.
//
// An Axis owns a scalar position and speed. Each Tick runs the attached behaviors, integrates
// jogging or target seeking with an optional trapezoidal or jerk-limited acceleration model,
// enforces limits, raises events and finally ticks its sub-drives, so composite mechanisms
// are always evaluated parent before child.
//
// An Axis is not safe for concurrent use. It is owned by whoever calls Tick, and all commands
// must come from that same goroutine.
package axis

import (
	"github.com/ryansname/axisctl/src/motion"
)

const (
	// overrideSmoothing is the EMA factor for speed reconstructed from overridden positions.
	overrideSmoothing = 0.15
	// overrideDeadZone suppresses reconstructed speeds below this magnitude (units/s).
	overrideDeadZone = 0.5
)

// Limits configures software travel limits.
type Limits struct {
	Use         bool    `koanf:"use" yaml:"use"`
	Lower       float64 `koanf:"lower" yaml:"lower"`
	Upper       float64 `koanf:"upper" yaml:"upper"`
	EndWindow   float64 `koanf:"end_window" yaml:"end_window"`       // Raise limit flags within this distance of a limit
	JumpToLower bool    `koanf:"jump_to_lower" yaml:"jump_to_lower"` // Forward jog past Upper wraps to Lower
}

// Config holds the motion parameters of an axis. It is embedded in Axis, so behaviors and the
// host may retune speed and acceleration between ticks.
type Config struct {
	StartPosition      float64 `koanf:"start_position" yaml:"start_position"`
	Offset             float64 `koanf:"offset" yaml:"offset"` // Position a reset returns to
	TargetSpeed        float64 `koanf:"target_speed" yaml:"target_speed"`
	Acceleration       float64 `koanf:"acceleration" yaml:"acceleration"`
	UseAcceleration    bool    `koanf:"use_acceleration" yaml:"use_acceleration"`
	SmoothAcceleration bool    `koanf:"smooth_acceleration" yaml:"smooth_acceleration"`
	Jerk               float64 `koanf:"jerk" yaml:"jerk"`
	SpeedOverride      float64 `koanf:"speed_override" yaml:"speed_override"` // Scales speed and acceleration, 0 is treated as 1
	Limits             Limits  `koanf:"limits" yaml:"limits"`
}

// DefaultConfig returns a configuration moving at 100 units/s without acceleration.
func DefaultConfig() Config {
	return Config{
		TargetSpeed:   100,
		Acceleration:  100,
		Jerk:          1000,
		SpeedOverride: 1,
	}
}

// Step describes one fixed simulation step.
type Step struct {
	DT            float64 // Seconds
	SpeedOverride float64 // Global simulation speed factor applied to position integration, 0 is treated as 1
}

func (s Step) speedOverride() float64 {
	if s.SpeedOverride == 0 {
		return 1
	}
	return s.SpeedOverride
}

// PositionSink receives the resolved position whenever it changes.
type PositionSink interface {
	ApplyPosition(a *Axis, position float64)
}

// PositionSinkFunc adapts a function to PositionSink.
type PositionSinkFunc func(a *Axis, position float64)

func (f PositionSinkFunc) ApplyPosition(a *Axis, position float64) { f(a, position) }

// LimitSensor measures the axis position independently. When set, limit comparisons use the
// measured value instead of the integrated position.
type LimitSensor interface {
	MeasuredPosition() float64
}

// Axis is a single motion controller.
type Axis struct {
	Config
	Name string

	// TargetPosition is the destination captured on the next start-move edge.
	TargetPosition float64

	Sink   PositionSink
	Sensor LimitSensor

	position, speed, accel float64
	destination            float64
	stopPos                float64
	lastPosition           float64

	jogForward, jogBackward bool
	lastJogDir              int
	startMove               bool
	lastStartMove           bool
	pendingMove             bool
	stopRequested           bool
	resetRequested          bool
	stopped                 bool
	blocked                 bool
	seeking                 bool
	stopJogging             bool
	accelStarted            bool
	decelStarted            bool

	timedMove     bool
	targetTime    float64
	standardSpeed float64
	standardAccel float64

	running       bool
	atTargetSpeed bool
	atTarget      bool
	lastAtTarget  bool
	atLower       bool
	atUpper       bool

	posOverride        bool
	posOverrideValue   float64
	speedOverride      bool
	speedOverrideValue float64
	reportedPosition   float64
	reportedSpeed      float64
	lastReported       float64
	smoothedSpeed      float64
	lastApplied        float64
	applied            bool

	smooth *motion.SmoothMotion

	behaviors []Behavior
	subDrives []*Axis
	parent    *Axis

	beforeTick   []func(*Axis)
	afterTick    []func(*Axis)
	atPosition   []func(*Axis)
	jumped       []func(*Axis)
	configErrors []func(*Axis, error)
	reported     map[string]bool
	events       *[]Event
}

// New creates an axis at rest on its start position.
func New(name string, config Config) *Axis {
	a := &Axis{
		Config:         config,
		Name:           name,
		TargetPosition: config.StartPosition,
		position:       config.StartPosition,
		destination:    config.StartPosition,
		lastPosition:   config.StartPosition,
		stopped:        true,
		blocked:        true,
		atTarget:       true,
		lastAtTarget:   true,
		reported:       map[string]bool{},
	}
	a.reportedPosition = a.position
	a.lastReported = a.position
	return a
}

func (a *Axis) speedFactor() float64 {
	if a.SpeedOverride == 0 {
		return 1
	}
	return a.SpeedOverride
}

// cruiseSpeed is the target speed scaled by the axis speed override.
func (a *Axis) cruiseSpeed() float64 {
	return a.TargetSpeed * a.speedFactor()
}

func (a *Axis) effectiveAcceleration() float64 {
	return a.Acceleration * a.speedFactor()
}

// trapezoidal reports whether the constant-acceleration model is active. Zero acceleration
// falls back to instantaneous speed changes.
func (a *Axis) trapezoidal() bool {
	return a.UseAcceleration && !a.SmoothAcceleration && a.effectiveAcceleration() > 0
}

func (a *Axis) smoothMotion() *motion.SmoothMotion {
	if a.smooth == nil {
		a.smooth = motion.NewSmoothMotion(a.TargetSpeed, a.Acceleration, a.Jerk)
		a.smooth.SetInitialState(a.position, a.speed, 0)
	}
	a.smooth.MaxVelocity = a.TargetSpeed
	a.smooth.MaxAcceleration = a.Acceleration
	a.smooth.Jerk = a.Jerk
	a.smooth.SpeedOverride = a.speedFactor()
	return a.smooth
}

// Position returns the reported position, which is the override value while a position
// override is active.
func (a *Axis) Position() float64 { return a.reportedPosition }

// Speed returns the reported speed.
func (a *Axis) Speed() float64 { return a.reportedSpeed }

// CurrentPosition returns the internally integrated position, ignoring overrides.
func (a *Axis) CurrentPosition() float64 { return a.position }

// CurrentSpeed returns the internally integrated speed, ignoring overrides.
func (a *Axis) CurrentSpeed() float64 { return a.speed }

func (a *Axis) Destination() float64 { return a.destination }

func (a *Axis) IsRunning() bool       { return a.running }
func (a *Axis) IsAtTargetSpeed() bool { return a.atTargetSpeed }
func (a *Axis) IsAtTarget() bool      { return a.atTarget }
func (a *Axis) IsAtLowerLimit() bool  { return a.atLower }
func (a *Axis) IsAtUpperLimit() bool  { return a.atUpper }
func (a *Axis) IsStopped() bool       { return a.stopped }
func (a *Axis) IsJogging() bool       { return a.jogForward || a.jogBackward }
func (a *Axis) IsOverridden() bool    { return a.posOverride || a.speedOverride }

// IsSubDrive reports whether the axis is ticked by a parent rather than by a scheduler.
func (a *Axis) IsSubDrive() bool { return a.parent != nil }

func (a *Axis) Parent() *Axis { return a.parent }

// SubDrives returns the children in evaluation order.
func (a *Axis) SubDrives() []*Axis { return a.subDrives }

// Status is a read-only summary of an axis after a tick.
type Status struct {
	Name          string  `json:"name" yaml:"name"`
	Position      float64 `json:"position" yaml:"position"`
	Speed         float64 `json:"speed" yaml:"speed"`
	Destination   float64 `json:"destination" yaml:"destination"`
	TargetSpeed   float64 `json:"target_speed" yaml:"target_speed"`
	Running       bool    `json:"running" yaml:"running"`
	AtTargetSpeed bool    `json:"at_target_speed" yaml:"at_target_speed"`
	AtTarget      bool    `json:"at_target" yaml:"at_target"`
	AtLowerLimit  bool    `json:"at_lower_limit" yaml:"at_lower_limit"`
	AtUpperLimit  bool    `json:"at_upper_limit" yaml:"at_upper_limit"`
	Stopped       bool    `json:"stopped" yaml:"stopped"`
	Jogging       bool    `json:"jogging" yaml:"jogging"`
	Overridden    bool    `json:"overridden" yaml:"overridden"`
	SubDrive      bool    `json:"sub_drive" yaml:"sub_drive"`
}

func (a *Axis) Status() Status {
	return Status{
		Name:          a.Name,
		Position:      a.reportedPosition,
		Speed:         a.reportedSpeed,
		Destination:   a.destination,
		TargetSpeed:   a.TargetSpeed,
		Running:       a.running,
		AtTargetSpeed: a.atTargetSpeed,
		AtTarget:      a.atTarget,
		AtLowerLimit:  a.atLower,
		AtUpperLimit:  a.atUpper,
		Stopped:       a.stopped,
		Jogging:       a.IsJogging(),
		Overridden:    a.IsOverridden(),
		SubDrive:      a.IsSubDrive(),
	}
}
