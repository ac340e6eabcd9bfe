package behavior

import (
	"errors"
	"fmt"

	"github.com/ryansname/axisctl/src/axis"
)

// ErrCamNotCyclic is reported when a continuous cam follows a master that does not wrap.
var ErrCamNotCyclic = errors.New("continuous cam requires a master with limits and jump to lower limit")

// CamConfig scales and offsets both sides of a cam table.
type CamConfig struct {
	MasterScale  float64 `koanf:"master_scale" yaml:"master_scale"`
	MasterOffset float64 `koanf:"master_offset" yaml:"master_offset"`
	CamScale     float64 `koanf:"cam_scale" yaml:"cam_scale"`
	CamOffset    float64 `koanf:"cam_offset" yaml:"cam_offset"`
	Continuous   bool    `koanf:"continuous" yaml:"continuous"` // Accumulate one table revolution per master wrap
}

func DefaultCamConfig() CamConfig {
	return CamConfig{MasterScale: 1, CamScale: 1}
}

// Cam positions a slave axis from a table evaluated at the master position:
//
//	slave = Curve(master*MasterScale + MasterOffset)*CamScale + CamOffset
//
// In continuous mode every master wrap adds one table revolution to the slave, so an endless
// mechanism keeps moving forward instead of snapping back.
type Cam struct {
	Switch
	CamConfig
	Curve Curve

	master       *axis.Axis
	continuous   bool
	offset       float64 // Accumulated revolutions
	revolution   float64 // Slave travel over one master revolution
	masterDelta  float64 // Master travel over one revolution, scaled
	deltaOnCurve float64
	masterJumped bool
}

// NewCam slaves slave to master through curve. The slave becomes a sub-drive of the master.
func NewCam(master, slave *axis.Axis, curve Curve, config CamConfig) (*Cam, error) {
	if err := master.AddSubDrive(slave); err != nil {
		return nil, fmt.Errorf("cam %s: %w", slave.Name, err)
	}

	c := &Cam{CamConfig: config, Curve: curve, master: master}
	if config.Continuous {
		l := master.Limits
		if !l.Use || !l.JumpToLower {
			slave.ReportConfigError(fmt.Errorf("cam %s follows %s: %w", slave.Name, master.Name, ErrCamNotCyclic))
		} else {
			c.continuous = true
			c.masterDelta = (l.Upper - l.Lower) * config.MasterScale
			c.revolution = (curve.Evaluate(l.Upper*config.MasterScale) - curve.Evaluate(l.Lower*config.MasterScale)) * config.CamScale
			master.OnJumpToLowerLimit(func(*axis.Axis) { c.masterJumped = true })
		}
	}

	slave.AddBehavior(c)
	return c, nil
}

// IsContinuous reports whether the cam accumulates revolutions.
func (c *Cam) IsContinuous() bool { return c.continuous }

func (c *Cam) Compute(a *axis.Axis, _ axis.Step) {
	a.SetPosition(c.evaluate(c.master.Position()))
	c.masterJumped = false
}

func (c *Cam) evaluate(masterPos float64) float64 {
	x := masterPos*c.MasterScale + c.MasterOffset

	if c.continuous {
		lo := c.master.Limits.Lower * c.MasterScale
		hi := c.master.Limits.Upper * c.MasterScale

		// Shift x back onto the table when the offset pushes it past either end
		local := 0.0
		if x < lo {
			local = c.masterDelta
		}
		if x > hi {
			local = -c.masterDelta
		}

		shift := 0.0
		keep := false
		switch {
		case !c.masterJumped && c.deltaOnCurve != local:
			c.offset += c.revolution
			c.deltaOnCurve = local
			shift = -c.masterDelta
			keep = true
		case !c.masterJumped:
			shift = local
		case c.MasterOffset != 0:
			shift = local
		default:
			c.offset += c.revolution
		}
		x += shift
		if !keep {
			c.deltaOnCurve = shift
		}
	}

	return c.Curve.Evaluate(x)*c.CamScale + c.CamOffset + c.offset
}
