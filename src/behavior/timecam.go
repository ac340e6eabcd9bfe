package behavior

import (
	"math"

	"github.com/ryansname/axisctl/src/axis"
)

// TimeCamConfig scales a time based cam table.
type TimeCamConfig struct {
	TimeScale float64 `koanf:"time_scale" yaml:"time_scale"` // Greater than 1 runs the table faster
	CamScale  float64 `koanf:"cam_scale" yaml:"cam_scale"`
	CamOffset float64 `koanf:"cam_offset" yaml:"cam_offset"`
	// With a master, start once the master reaches this position
	StartOnMasterAbove float64 `koanf:"start_on_master_above" yaml:"start_on_master_above"`
}

func DefaultTimeCamConfig() TimeCamConfig {
	return TimeCamConfig{TimeScale: 1, CamScale: 1}
}

// TimeCam plays a table of slave positions over simulated seconds:
//
//	slave = Curve(elapsed*TimeScale)*CamScale + CamOffset
//
// It starts on a rising Start, from Restart, or when the master passes StartOnMasterAbove.
// A master start fires once per pass: after finishing, the master has to fall back below the
// position it finished at before the cam can start again.
type TimeCam struct {
	Switch
	TimeCamConfig
	Curve Curve

	Start bool     // Rising edge starts the cam
	Next  *TimeCam // Started when this cam finishes

	master *axis.Axis

	active, finished bool
	elapsed          float64
	camTime          float64
	lastStart        bool
	stoppedAt        float64
}

// NewTimeCam attaches a time cam to slave. master may be nil.
func NewTimeCam(slave, master *axis.Axis, curve Curve, config TimeCamConfig) *TimeCam {
	c := &TimeCam{
		TimeCamConfig: config,
		Curve:         curve,
		master:        master,
		stoppedAt:     math.Inf(1),
	}
	slave.AddBehavior(c)
	return c
}

func (c *TimeCam) IsActive() bool   { return c.active }
func (c *TimeCam) IsFinished() bool { return c.finished }

// CamTime is the scaled table time of the last evaluation.
func (c *TimeCam) CamTime() float64 { return c.camTime }

// Restart plays the table from the beginning.
func (c *TimeCam) Restart() {
	c.active = true
	c.finished = false
	c.elapsed = 0
}

func (c *TimeCam) stop() {
	c.active = false
	c.finished = true
	if c.master != nil {
		c.stoppedAt = c.master.CurrentPosition()
	}
}

func (c *TimeCam) Compute(a *axis.Axis, step axis.Step) {
	if c.master != nil && !c.active {
		pos := c.master.CurrentPosition()
		if pos < c.stoppedAt && pos >= c.StartOnMasterAbove {
			c.Restart()
		}
	}
	if c.Start && !c.lastStart {
		c.Restart()
	}
	c.lastStart = c.Start

	if !c.active {
		return
	}

	c.camTime = c.elapsed * c.TimeScale
	c.elapsed += step.DT

	end := 0.0
	if len(c.Curve) > 0 {
		end = c.Curve[len(c.Curve)-1].Master
	}
	a.SetPosition(c.Curve.Evaluate(c.camTime)*c.CamScale + c.CamOffset)
	if c.camTime >= end {
		c.stop()
		if c.Next != nil {
			c.Next.Restart()
		}
	}
}
