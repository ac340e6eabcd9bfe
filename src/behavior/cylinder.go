package behavior

import (
	"math"

	"github.com/ryansname/axisctl/src/axis"
)

// CylinderConfig holds the stroke and timing of a pneumatic cylinder.
type CylinderConfig struct {
	OneBit  bool    `koanf:"one_bit" yaml:"one_bit"` // Out alone controls the cylinder, !Out retracts
	MinPos  float64 `koanf:"min_pos" yaml:"min_pos"`
	MaxPos  float64 `koanf:"max_pos" yaml:"max_pos"`
	TimeOut float64 `koanf:"time_out" yaml:"time_out"` // Seconds from MinPos to MaxPos
	TimeIn  float64 `koanf:"time_in" yaml:"time_in"`   // Seconds from MaxPos to MinPos
}

func DefaultCylinderConfig() CylinderConfig {
	return CylinderConfig{MaxPos: 100, TimeOut: 1, TimeIn: 1}
}

// Cylinder moves an axis between two end positions.
type Cylinder struct {
	Switch
	CylinderConfig

	Out bool // Extend command
	In  bool // Retract command, ignored in one-bit mode

	// Optional sensors stopping the stroke early
	StopOut func() bool
	StopIn  func() bool

	OnMax func()
	OnMin func()

	isOut, isIn         bool
	isMax, isMin        bool
	movingOut, movingIn bool
	lastPosition        float64
}

// NewCylinder attaches a cylinder to a, placing the axis on MinPos.
func NewCylinder(a *axis.Axis, config CylinderConfig) *Cylinder {
	c := &Cylinder{CylinderConfig: config, lastPosition: config.MinPos}
	a.SetPosition(config.MinPos)
	a.AddBehavior(c)
	return c
}

func (c *Cylinder) IsOut() bool       { return c.isOut }
func (c *Cylinder) IsIn() bool        { return c.isIn }
func (c *Cylinder) IsMax() bool       { return c.isMax }
func (c *Cylinder) IsMin() bool       { return c.isMin }
func (c *Cylinder) IsMovingOut() bool { return c.movingOut }
func (c *Cylinder) IsMovingIn() bool  { return c.movingIn }

func (c *Cylinder) Compute(a *axis.Axis, _ axis.Step) {
	pos := a.Position()

	if c.movingOut && pos == c.MaxPos {
		c.movingOut, c.movingIn = false, false
		c.isOut = true
	}
	if c.movingIn && pos == c.MinPos {
		c.movingOut, c.movingIn = false, false
		c.isIn = true
	}

	if c.movingIn && c.StopIn != nil && c.StopIn() {
		c.movingOut, c.movingIn = false, false
		c.isIn = true
		a.Stop()
	}
	if c.movingOut && c.StopOut != nil && c.StopOut() {
		c.movingOut, c.movingIn = false, false
		c.isOut = true
		a.Stop()
	}

	c.isMax = a.CurrentPosition() == c.MaxPos
	c.isMin = a.CurrentPosition() == c.MinPos

	if pos == c.MaxPos && c.lastPosition != pos && c.OnMax != nil {
		c.OnMax()
	}
	if pos == c.MinPos && c.lastPosition != pos && c.OnMin != nil {
		c.OnMin()
	}
	c.lastPosition = pos

	retract := c.In
	if c.OneBit {
		retract = !c.Out
	} else if c.Out && c.In {
		// Conflicting two-bit command holds the current stroke
		return
	}

	if c.Out && !c.isOut && !c.movingOut {
		c.drive(a, c.MaxPos, c.TimeOut)
		c.movingOut, c.movingIn = true, false
		c.isIn = false
	}
	if retract && !c.isIn && !c.movingIn {
		c.drive(a, c.MinPos, c.TimeIn)
		c.movingOut, c.movingIn = false, true
		c.isOut = false
	}
}

func (c *Cylinder) drive(a *axis.Axis, target, seconds float64) {
	if seconds > 0 {
		a.TargetSpeed = math.Abs(c.MaxPos-c.MinPos) / seconds
	}
	a.DriveTo(target)
}
