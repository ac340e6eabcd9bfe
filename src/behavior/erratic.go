package behavior

import (
	"math"
	"math/rand/v2"

	"github.com/ryansname/axisctl/src/axis"
)

const erraticTolerance = 0.01

// ErraticConfig bounds the positions an erratic drive picks.
type ErraticConfig struct {
	MinPos float64 `koanf:"min_pos" yaml:"min_pos"`
	MaxPos float64 `koanf:"max_pos" yaml:"max_pos"`
	Speed  float64 `koanf:"speed" yaml:"speed"`
	// Alternate between MinPos and MaxPos instead of picking random positions
	IterateBetweenMaxAndMin bool   `koanf:"iterate_between_max_and_min" yaml:"iterate_between_max_and_min"`
	Seed                    uint64 `koanf:"seed" yaml:"seed"`
}

func DefaultErraticConfig() ErraticConfig {
	return ErraticConfig{MaxPos: 100, Speed: 100}
}

// Erratic keeps an axis moving between positions in [MinPos, MaxPos]. When Enable is set and
// goes false the axis returns to zero and rests there.
type Erratic struct {
	Switch
	ErraticConfig
	Enable *Signal

	rng         *rand.Rand
	driving     bool
	destination float64
	returning   bool
}

func NewErratic(a *axis.Axis, config ErraticConfig) *Erratic {
	e := &Erratic{
		ErraticConfig: config,
		rng:           rand.New(rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15)),
	}
	a.AddBehavior(e)
	return e
}

// IsDriving reports whether a picked position is still being approached.
func (e *Erratic) IsDriving() bool { return e.driving }

// Destination is the position last picked.
func (e *Erratic) Destination() float64 { return e.destination }

func (e *Erratic) Compute(a *axis.Axis, _ axis.Step) {
	if e.Enable != nil {
		if !e.Enable.Get() {
			e.returnToZero(a)
			return
		}
		if e.returning {
			e.returning = false
			e.driving = false
			a.Stop()
		}
	}

	pos := a.CurrentPosition()
	if e.driving && !a.IsRunning() && math.Abs(pos-e.destination) > erraticTolerance {
		a.DriveTo(e.destination)
	}

	if !e.driving {
		a.TargetSpeed = e.Speed
		e.destination = e.next(pos)
		e.driving = true
		a.DriveTo(e.destination)
	}

	if e.driving && math.Abs(pos-e.destination) <= erraticTolerance {
		e.driving = false
	}
}

func (e *Erratic) next(pos float64) float64 {
	if !e.IterateBetweenMaxAndMin {
		return e.MinPos + e.rng.Float64()*(e.MaxPos-e.MinPos)
	}
	if math.Abs(pos-e.MaxPos) <= erraticTolerance {
		return e.MinPos
	}
	return e.MaxPos
}

func (e *Erratic) returnToZero(a *axis.Axis) {
	pos := a.CurrentPosition()
	if !e.returning {
		if math.Abs(pos) <= erraticTolerance {
			return
		}
		a.Stop()
		e.returning = true
		e.driving = false
		a.TargetSpeed = e.Speed
		a.DriveTo(0)
		return
	}

	if !a.IsRunning() && math.Abs(pos) > erraticTolerance {
		a.DriveTo(0)
	}
	if math.Abs(pos) <= erraticTolerance {
		e.returning = false
		e.driving = false
		a.Stop()
		a.SetPosition(0)
	}
}
