package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	yml "gopkg.in/yaml.v3"

	"github.com/ryansname/axisctl/src/axis"
	"github.com/ryansname/axisctl/src/behavior"
)

// DefaultConfigFile is read when neither -config nor AXISCTL_CONFIG name a file
const DefaultConfigFile = "axisctl.yml"

// Behavior kinds accepted in the config file
const (
	KindCylinder              = "cylinder"
	KindCam                   = "cam"
	KindGear                  = "gear"
	KindFollow                = "follow"
	KindSpeed                 = "speed"
	KindDestination           = "destination"
	KindContinuousDestination = "continuous_destination"
	KindErratic               = "erratic"
	KindSequence              = "sequence"
	KindTimeCam               = "time_cam"
	KindStartOnCondition      = "start_on_condition"
)

// Config is the daemon configuration
type Config struct {
	TickHz        float64 `koanf:"tick_hz" yaml:"tick_hz"`
	PublishHz     float64 `koanf:"publish_hz" yaml:"publish_hz"`         // Rate of state frames out of the simulation
	SpeedOverride float64 `koanf:"speed_override" yaml:"speed_override"` // Global simulation speed factor
	StateFile     string  `koanf:"state_file" yaml:"state_file"`
	HTTPAddr      string  `koanf:"http_addr" yaml:"http_addr"`
	Console       bool    `koanf:"console" yaml:"console"`

	// Envelope window in simulated seconds, split into one-second buckets
	EnvelopeSeconds int `koanf:"envelope_seconds" yaml:"envelope_seconds"`

	MQTT      MQTTConfig       `koanf:"mqtt" yaml:"mqtt"`
	Axes      []AxisConfig     `koanf:"axes" yaml:"axes"`
	Behaviors []BehaviorConfig `koanf:"behaviors" yaml:"behaviors"`
}

// MQTTConfig holds broker settings. Credentials come from the environment.
type MQTTConfig struct {
	Enabled   bool   `koanf:"enabled" yaml:"enabled"`
	Broker    string `koanf:"broker" yaml:"broker"`
	Port      int    `koanf:"port" yaml:"port"`
	ClientID  string `koanf:"client_id" yaml:"client_id"`
	Prefix    string `koanf:"prefix" yaml:"prefix"`
	Discovery bool   `koanf:"discovery" yaml:"discovery"` // Publish Home Assistant discovery entities
}

// AxisConfig names an axis and its motion parameters
type AxisConfig struct {
	Name   string      `koanf:"name" yaml:"name"`
	Motion axis.Config `koanf:"motion" yaml:"motion"`
}

// GearConfig is the ratio of a gear behavior
type GearConfig struct {
	Factor float64 `koanf:"factor" yaml:"factor"`
	Offset float64 `koanf:"offset" yaml:"offset"`
}

// SequenceStepConfig is one sequence step. Signals and drives are referenced by name.
type SequenceStepConfig struct {
	Description   string  `koanf:"description" yaml:"description,omitempty"`
	Drive         string  `koanf:"drive" yaml:"drive,omitempty"`
	Destination   float64 `koanf:"destination" yaml:"destination"`
	Speed         float64 `koanf:"speed" yaml:"speed,omitempty"`
	NoWait        bool    `koanf:"no_wait" yaml:"no_wait,omitempty"`
	WaitAfterStep float64 `koanf:"wait_after_step" yaml:"wait_after_step,omitempty"`
	ResetOnStart  string  `koanf:"reset_on_start" yaml:"reset_on_start,omitempty"`
	WaitForSignal string  `koanf:"wait_for_signal" yaml:"wait_for_signal,omitempty"`
	Finished      string  `koanf:"finished" yaml:"finished,omitempty"`
}

// SequenceConfig is a sequence behavior with its steps
type SequenceConfig struct {
	behavior.SequenceConfig `koanf:",squash" yaml:",inline"`
	Steps                   []SequenceStepConfig `koanf:"steps" yaml:"steps"`
}

// TimeCamConfig is a time cam, optionally starting the time cam of another axis when it
// finishes
type TimeCamConfig struct {
	behavior.TimeCamConfig `koanf:",squash" yaml:",inline"`
	Next                   string `koanf:"next" yaml:"next,omitempty"`
}

// BehaviorConfig attaches one behavior to an axis. Only the section matching Kind is read.
type BehaviorConfig struct {
	Kind   string `koanf:"kind" yaml:"kind"`
	Axis   string `koanf:"axis" yaml:"axis"`
	Master string `koanf:"master" yaml:"master,omitempty"` // cam, gear, time_cam start, start_on_condition monitored axis
	Enable string `koanf:"enable" yaml:"enable,omitempty"` // erratic enable signal
	Sensor string `koanf:"sensor" yaml:"sensor,omitempty"` // start_on_condition sensor signal

	Cylinder         *behavior.CylinderConfig         `koanf:"cylinder" yaml:"cylinder,omitempty"`
	Cam              *behavior.CamConfig              `koanf:"cam" yaml:"cam,omitempty"`
	Curve            []behavior.CurvePoint            `koanf:"curve" yaml:"curve,omitempty"` // cam, time_cam (master is seconds)
	Gear             *GearConfig                      `koanf:"gear" yaml:"gear,omitempty"`
	Erratic          *behavior.ErraticConfig          `koanf:"erratic" yaml:"erratic,omitempty"`
	Sequence         *SequenceConfig                  `koanf:"sequence" yaml:"sequence,omitempty"`
	TimeCam          *TimeCamConfig                   `koanf:"time_cam" yaml:"time_cam,omitempty"`
	StartOnCondition *behavior.StartOnConditionConfig `koanf:"start_on_condition" yaml:"start_on_condition,omitempty"`
}

// DefaultConfig is the baseline every config file is layered over
func DefaultConfig() Config {
	return Config{
		TickHz:          50,
		PublishHz:       5,
		SpeedOverride:   1,
		StateFile:       "axisctl-state.yml",
		HTTPAddr:        ":8000",
		Console:         true,
		EnvelopeSeconds: 60,
		MQTT: MQTTConfig{
			Broker:    "localhost",
			Port:      1883,
			ClientID:  "axisctl",
			Prefix:    "axisctl",
			Discovery: true,
		},
	}
}

// ExampleConfig is DefaultConfig plus a small demonstration plant, written by mkconf
func ExampleConfig() Config {
	c := DefaultConfig()

	conveyor := axis.DefaultConfig()
	conveyor.TargetSpeed = 90
	conveyor.Limits = axis.Limits{Use: true, Lower: 0, Upper: 360, JumpToLower: true}

	chain := axis.DefaultConfig()

	lift := axis.DefaultConfig()
	lift.UseAcceleration = true
	lift.Acceleration = 200
	lift.Limits = axis.Limits{Use: true, Lower: 0, Upper: 500}

	clamp := axis.DefaultConfig()

	c.Axes = []AxisConfig{
		{Name: "conveyor", Motion: conveyor},
		{Name: "chain", Motion: chain},
		{Name: "lift", Motion: lift},
		{Name: "clamp", Motion: clamp},
	}

	camConfig := behavior.DefaultCamConfig()
	camConfig.Continuous = true
	cylinder := behavior.DefaultCylinderConfig()
	c.Behaviors = []BehaviorConfig{
		{
			Kind:   KindCam,
			Axis:   "chain",
			Master: "conveyor",
			Cam:    &camConfig,
			Curve:  []behavior.CurvePoint{{Master: 0, Slave: 0}, {Master: 180, Slave: 150}, {Master: 360, Slave: 200}},
		},
		{Kind: KindCylinder, Axis: "clamp", Cylinder: &cylinder},
		{
			Kind: KindSequence,
			Axis: "lift",
			Sequence: &SequenceConfig{
				SequenceConfig: behavior.DefaultSequenceConfig(),
				Steps: []SequenceStepConfig{
					{Description: "raise", Destination: 400, Speed: 150, WaitAfterStep: 2, Finished: "lift_up"},
					{Description: "lower", Destination: 0, Speed: 100, WaitAfterStep: 2},
				},
			},
		},
	}
	return c
}

// loadConfig layers the yaml file at path over DefaultConfig. A missing file is not an error.
func loadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("loading defaults: %w", err)
	}
	switch _, err := os.Stat(path); {
	case err == nil:
		if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, err
	}

	var c Config
	if err := k.Unmarshal("", &c); err != nil {
		return Config{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return c, c.Validate()
}

// reservedNames are topic segments the mqtt command surface uses
var reservedNames = map[string]bool{"plant": true, "signal": true}

// Validate checks the config for errors that would stop the plant from being built
func (c Config) Validate() error {
	var errs []error
	if c.TickHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_hz must be positive, got %v", c.TickHz))
	}

	names := map[string]bool{}
	for i, a := range c.Axes {
		switch {
		case a.Name == "":
			errs = append(errs, fmt.Errorf("axes[%d]: name is required", i))
		case names[a.Name]:
			errs = append(errs, fmt.Errorf("axes[%d]: %w: %s", i, axis.ErrDuplicateAxis, a.Name))
		case reservedNames[a.Name]:
			errs = append(errs, fmt.Errorf("axes[%d]: name %q is reserved", i, a.Name))
		case strings.ContainsAny(a.Name, "/+# "):
			errs = append(errs, fmt.Errorf("axes[%d]: name %q must not contain topic separators or spaces", i, a.Name))
		}
		names[a.Name] = true
	}

	for i, b := range c.Behaviors {
		if !names[b.Axis] {
			errs = append(errs, fmt.Errorf("behaviors[%d] (%s): %w: %q", i, b.Kind, errUnknownAxis, b.Axis))
		}
		switch b.Kind {
		case KindCam, KindGear:
			if !names[b.Master] {
				errs = append(errs, fmt.Errorf("behaviors[%d] (%s): master %w: %q", i, b.Kind, errUnknownAxis, b.Master))
			}
		case KindSequence:
			if b.Sequence == nil || len(b.Sequence.Steps) == 0 {
				errs = append(errs, fmt.Errorf("behaviors[%d]: sequence needs at least one step", i))
				continue
			}
			for j, s := range b.Sequence.Steps {
				if s.Drive != "" && !names[s.Drive] {
					errs = append(errs, fmt.Errorf("behaviors[%d].steps[%d]: drive %w: %q", i, j, errUnknownAxis, s.Drive))
				}
			}
		case KindTimeCam:
			if b.Master != "" && !names[b.Master] {
				errs = append(errs, fmt.Errorf("behaviors[%d] (%s): master %w: %q", i, b.Kind, errUnknownAxis, b.Master))
			}
			if b.TimeCam != nil && b.TimeCam.Next != "" && !names[b.TimeCam.Next] {
				errs = append(errs, fmt.Errorf("behaviors[%d] (%s): next %w: %q", i, b.Kind, errUnknownAxis, b.TimeCam.Next))
			}
		case KindStartOnCondition:
			switch {
			case b.Master == "" && b.Sensor == "":
				errs = append(errs, fmt.Errorf("behaviors[%d] (%s): needs a master or a sensor", i, b.Kind))
			case b.Master != "" && !names[b.Master]:
				errs = append(errs, fmt.Errorf("behaviors[%d] (%s): master %w: %q", i, b.Kind, errUnknownAxis, b.Master))
			}
			if c := b.StartOnCondition; c != nil && c.Crossing != "" && c.Crossing != behavior.CrossAbove && c.Crossing != behavior.CrossBelow {
				errs = append(errs, fmt.Errorf("behaviors[%d] (%s): crossing must be %q or %q", i, b.Kind, behavior.CrossAbove, behavior.CrossBelow))
			}
		case KindCylinder, KindFollow, KindSpeed, KindDestination, KindContinuousDestination, KindErratic:
		default:
			errs = append(errs, fmt.Errorf("behaviors[%d]: unknown kind %q", i, b.Kind))
		}
	}
	return errors.Join(errs...)
}

// writeConfig encodes c as yaml
func writeConfig(w io.Writer, c Config) error {
	enc := yml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}
