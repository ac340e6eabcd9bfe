package axis

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ryansname/axisctl/src/motion"
)

var (
	// ErrSubDriveCycle is returned when adding a sub-drive would make an axis its own ancestor.
	ErrSubDriveCycle = errors.New("sub-drive would create a cycle")
	// ErrSubDriveParent is returned when the child is already ticked by another parent.
	ErrSubDriveParent = errors.New("axis is already a sub-drive of another axis")
)

// DriveTo seeks target at the target speed. The move starts on the next tick.
func (a *Axis) DriveTo(target float64) {
	a.driveTo(target, 0)
}

// DriveToIn seeks target so the move takes approximately seconds. Speed (or acceleration when
// the acceleration model is on) is rescaled for the move and restored once the axis reports
// at-position. Degenerate moves run with the standard values.
func (a *Axis) DriveToIn(target, seconds float64) {
	a.restoreStandard()
	if !a.SmoothAcceleration {
		speed, accel, ok := motion.TimedMove(target-a.position, seconds, a.UseAcceleration)
		if ok {
			a.standardSpeed, a.standardAccel = a.TargetSpeed, a.Acceleration
			a.timedMove = true
			a.TargetSpeed = speed / a.speedFactor()
			if a.UseAcceleration {
				a.Acceleration = accel / a.speedFactor()
			}
		}
	}
	a.driveTo(target, seconds)
}

func (a *Axis) driveTo(target, seconds float64) {
	a.TargetPosition = target
	a.blocked = false
	a.pendingMove = true
	a.lastAtTarget = false
	a.targetTime = seconds
}

func (a *Axis) restoreStandard() {
	if !a.timedMove {
		return
	}
	a.TargetSpeed, a.Acceleration = a.standardSpeed, a.standardAccel
	a.timedMove = false
}

// SetStartMove drives the level start-move input. A rising edge captures TargetPosition as
// the new destination.
func (a *Axis) SetStartMove(on bool) {
	a.startMove = on
}

// Forward jogs in the positive direction until released.
func (a *Axis) Forward() {
	a.jogForward, a.jogBackward = true, false
}

// Backward jogs in the negative direction until released.
func (a *Axis) Backward() {
	a.jogForward, a.jogBackward = false, true
}

// JogStop releases both jog directions.
func (a *Axis) JogStop() {
	a.jogForward, a.jogBackward = false, false
}

// SetJog sets both jog levels. Forward wins when both are set.
func (a *Axis) SetJog(forward, backward bool) {
	a.jogForward = forward
	a.jogBackward = backward && !forward
}

// Accelerate ramps up to the target speed without a destination.
func (a *Axis) Accelerate() {
	a.accelStarted, a.decelStarted = true, false
	a.atTarget = false
	a.stopped = false
}

// Decelerate ramps down until the axis stops.
func (a *Axis) Decelerate() {
	a.accelStarted, a.decelStarted = false, true
	a.atTarget = false
	a.stopped = false
}

// Stop halts the axis immediately at its current position and drops any pending move.
func (a *Axis) Stop() {
	a.halt()
	a.pendingMove = false
}

// halt stops motion but keeps a move deferred behind a jog.
func (a *Axis) halt() {
	a.startMove = false
	a.accelStarted, a.decelStarted = false, false
	a.accel = 0
	a.running = false
	a.jogForward, a.jogBackward = false, false
	a.speed = 0
	a.stopRequested = false
	a.stopped = true
}

// RequestStop stops the axis at the start of the next tick.
func (a *Axis) RequestStop() {
	a.stopRequested = true
}

// SetReset holds the axis at its offset while on.
func (a *Axis) SetReset(on bool) {
	a.resetRequested = on
}

// SetPosition writes an externally computed position. While a position override is active
// the override value is replaced instead. The new position is applied on the next tick.
func (a *Axis) SetPosition(pos float64) {
	if a.posOverride {
		a.posOverrideValue = pos
		a.reportedPosition = pos
		return
	}
	a.position = pos
}

// SetPositionAndSpeed writes an externally computed position and speed, for axes slaved to
// another axis.
func (a *Axis) SetPositionAndSpeed(pos, speed float64) {
	a.SetPosition(pos)
	if a.speedOverride {
		a.speedOverrideValue = speed
		return
	}
	a.speed = speed
}

// SetPositionOverride replaces the reported position with value until released. Position
// returns value immediately. Internal integration continues underneath.
func (a *Axis) SetPositionOverride(value float64) {
	if !a.posOverride {
		a.smoothedSpeed = a.reportedSpeed
	}
	a.posOverride = true
	a.posOverrideValue = value
	a.reportedPosition = value
}

// SetSpeedOverride replaces the reported speed with value until released.
func (a *Axis) SetSpeedOverride(value float64) {
	a.speedOverride = true
	a.speedOverrideValue = value
	a.reportedSpeed = value
}

// ReleaseOverrides returns to reporting the internal position and speed.
func (a *Axis) ReleaseOverrides() {
	a.posOverride = false
	a.speedOverride = false
	a.smoothedSpeed = 0
	a.reportedPosition = a.position
	a.reportedSpeed = a.speed
}

// TimeTo estimates the seconds a rest-to-rest move from the current position to target takes.
func (a *Axis) TimeTo(target float64) float64 {
	if a.SmoothAcceleration {
		sim := *a.smoothMotion()
		sim.SetInitialState(a.position, a.speed, 0)
		sim.SetTarget(target)
		return sim.Duration()
	}
	accel := 0.0
	if a.UseAcceleration {
		accel = a.effectiveAcceleration()
	}
	return motion.TimeTo(target-a.position, a.cruiseSpeed(), accel)
}

// AddSubDrive registers child to be ticked right after this axis. Adding the same child twice
// is a no-op.
func (a *Axis) AddSubDrive(child *Axis) error {
	if child.parent == a {
		return nil
	}
	if child.parent != nil {
		return fmt.Errorf("%s: %w (%s)", child.Name, ErrSubDriveParent, child.parent.Name)
	}
	for p := a; p != nil; p = p.parent {
		if p == child {
			return fmt.Errorf("%s -> %s: %w", a.Name, child.Name, ErrSubDriveCycle)
		}
	}
	child.parent = a
	a.subDrives = append(a.subDrives, child)
	return nil
}

// RemoveSubDrive detaches child so a scheduler ticks it again.
func (a *Axis) RemoveSubDrive(child *Axis) {
	i := slices.Index(a.subDrives, child)
	if i < 0 {
		return
	}
	a.subDrives = slices.Delete(a.subDrives, i, i+1)
	child.parent = nil
}
