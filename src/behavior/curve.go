package behavior

import (
	"slices"
	"sort"
)

// CurvePoint maps a master position to a slave position.
type CurvePoint struct {
	Master float64 `koanf:"master" yaml:"master"`
	Slave  float64 `koanf:"slave" yaml:"slave"`
}

// Curve is a piecewise-linear cam table sorted by master position. Evaluation outside the
// table holds the first or last slave value.
type Curve []CurvePoint

// NewCurve sorts a copy of points by master position.
func NewCurve(points ...CurvePoint) Curve {
	c := slices.Clone(points)
	slices.SortStableFunc(c, func(a, b CurvePoint) int {
		switch {
		case a.Master < b.Master:
			return -1
		case a.Master > b.Master:
			return 1
		default:
			return 0
		}
	})
	return Curve(c)
}

// Evaluate returns the slave position for master position x.
func (c Curve) Evaluate(x float64) float64 {
	if len(c) == 0 {
		return 0
	}
	if x <= c[0].Master {
		return c[0].Slave
	}
	last := c[len(c)-1]
	if x >= last.Master {
		return last.Slave
	}

	i := sort.Search(len(c), func(i int) bool { return c[i].Master > x })
	lo, hi := c[i-1], c[i]
	if hi.Master == lo.Master {
		return hi.Slave
	}
	t := (x - lo.Master) / (hi.Master - lo.Master)
	return lo.Slave + t*(hi.Slave-lo.Slave)
}
