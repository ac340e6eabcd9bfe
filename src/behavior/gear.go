package behavior

import (
	"fmt"

	"github.com/ryansname/axisctl/src/axis"
)

// Gear couples a slave axis to a master with a fixed ratio and offset.
type Gear struct {
	Switch
	Factor float64
	Offset float64

	master *axis.Axis
}

// NewGear makes slave a sub-drive of master and positions it at master*factor+offset.
func NewGear(master, slave *axis.Axis, factor, offset float64) (*Gear, error) {
	if err := master.AddSubDrive(slave); err != nil {
		return nil, fmt.Errorf("gear %s: %w", slave.Name, err)
	}
	g := &Gear{Factor: factor, Offset: offset, master: master}
	slave.AddBehavior(g)
	return g, nil
}

func (g *Gear) Compute(a *axis.Axis, _ axis.Step) {
	a.SetPositionAndSpeed(g.master.Position()*g.Factor+g.Offset, g.master.Speed()*g.Factor)
}
