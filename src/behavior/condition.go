package behavior

import "github.com/ryansname/axisctl/src/axis"

// Crossing selects the direction a monitored position has to pass the trigger in. Empty
// means CrossAbove.
type Crossing string

const (
	CrossAbove Crossing = "greater"
	CrossBelow Crossing = "smaller"
)

// StartOnConditionConfig describes when and where a conditional start moves its axis.
type StartOnConditionConfig struct {
	Crossing    Crossing `koanf:"crossing" yaml:"crossing"`
	Position    float64  `koanf:"position" yaml:"position"`   // Monitored position that triggers the move
	Increment   float64  `koanf:"increment" yaml:"increment"` // Added to Position after every trigger
	MoveTo      float64  `koanf:"move_to" yaml:"move_to"`
	Incremental bool     `koanf:"incremental" yaml:"incremental"` // MoveTo is relative to the current position
	SensorHigh  bool     `koanf:"sensor_high" yaml:"sensor_high"` // Sensor level that triggers the move
}

func DefaultStartOnConditionConfig() StartOnConditionConfig {
	return StartOnConditionConfig{Crossing: CrossAbove}
}

// StartOnCondition drives its axis when a monitored axis passes a position, or when a sensor
// signal changes to SensorHigh. Either trigger may be nil.
type StartOnCondition struct {
	Switch
	StartOnConditionConfig

	monitored  *axis.Axis
	sensor     *Signal
	trigger    float64
	target     float64
	lastPos    float64
	lastSensor bool
}

func NewStartOnCondition(a, monitored *axis.Axis, sensor *Signal, config StartOnConditionConfig) *StartOnCondition {
	s := &StartOnCondition{
		StartOnConditionConfig: config,
		monitored:              monitored,
		sensor:                 sensor,
		trigger:                config.Position,
		lastSensor:             sensor.Get(),
	}
	if monitored != nil {
		s.lastPos = monitored.CurrentPosition()
	}
	a.AddBehavior(s)
	return s
}

// Trigger is the monitored position the next move starts at.
func (s *StartOnCondition) Trigger() float64 { return s.trigger }

// Target is the destination the next trigger drives to.
func (s *StartOnCondition) Target() float64 { return s.target }

func (s *StartOnCondition) Compute(a *axis.Axis, _ axis.Step) {
	s.target = s.MoveTo
	if s.Incremental {
		s.target += a.CurrentPosition()
	}

	if s.monitored != nil {
		pos := s.monitored.CurrentPosition()
		var crossed bool
		if s.Crossing == CrossBelow {
			crossed = pos <= s.trigger && s.lastPos > s.trigger
		} else {
			crossed = pos >= s.trigger && s.lastPos < s.trigger
		}
		if crossed {
			a.DriveTo(s.target)
			s.trigger += s.Increment
		}
		s.lastPos = pos
	}

	if s.sensor != nil {
		v := s.sensor.Get()
		if v == s.SensorHigh && s.lastSensor != s.SensorHigh {
			a.DriveTo(s.target)
		}
		s.lastSensor = v
	}
}
