package axis

import (
	"math"

	"github.com/ryansname/axisctl/src/motion"
)

// Tick advances the axis and then its sub-drives by one fixed step. It returns the events
// raised by the axis and its sub-drives during the step, in the order they were raised.
// Sub-drives are normally ticked only by their parent.
func (a *Axis) Tick(step Step) []Event {
	var events []Event
	a.tick(step, &events)
	return events
}

func (a *Axis) tick(step Step, events *[]Event) {
	a.events = events
	notify(a, a.beforeTick)
	a.runBehaviors(step)

	pos := a.position
	if a.resetRequested {
		a.Stop()
		a.seeking = false
		a.stopJogging = false
		pos = a.Offset
		if a.smooth != nil {
			a.smooth.SetInitialState(pos, 0, 0)
		}
	} else {
		if a.stopRequested {
			a.Stop()
		}
		pos = a.integrate(pos, step)
		pos = a.enforceLimits(pos)
	}

	a.lastJogDir = a.jogDir()
	a.lastStartMove = a.startMove
	a.lastPosition = pos
	a.position = pos

	a.updateStatus()
	a.resolveOverrides(step.DT)
	a.apply()
	notify(a, a.afterTick)
	a.events = nil

	for _, child := range a.subDrives {
		child.tick(step, events)
	}
}

func (a *Axis) jogDir() int {
	switch {
	case a.jogForward:
		return 1
	case a.jogBackward:
		return -1
	default:
		return 0
	}
}

// integrate runs the jog, target-seek and acceleration state machine and returns the new
// position.
func (a *Axis) integrate(pos float64, step Step) float64 {
	dt := step.DT
	dir := a.jogDir()
	jogging := dir != 0
	trapezoidal := a.trapezoidal()
	accel := a.effectiveAcceleration()
	vt := a.cruiseSpeed()

	if a.lastJogDir != 0 && !jogging {
		switch {
		case a.SmoothAcceleration:
			// Smooth path brakes below
		case trapezoidal && a.speed != 0:
			a.stopJogging = true
			a.accel = -math.Copysign(accel, a.speed)
		default:
			a.halt()
		}
	}

	if a.decelStarted && a.speed <= 0 {
		a.Stop()
	}

	if a.startMove && !a.lastStartMove {
		a.pendingMove = true
	}
	if a.pendingMove && !jogging && !a.stopJogging {
		a.pendingMove = false
		a.acquireTarget(pos)
	}

	if jogging {
		a.stopped = false
	}

	if a.SmoothAcceleration {
		return a.integrateSmooth(pos, dir, step)
	}

	// Without an acceleration model the speed follows the command instantly
	if !trapezoidal && !a.stopped && (!a.atTarget || jogging) {
		switch {
		case dir > 0:
			a.speed = vt
		case dir < 0:
			a.speed = -vt
		case !a.blocked && pos < a.destination:
			a.speed = vt
		case !a.blocked && pos > a.destination:
			a.speed = -vt
		}
	}

	// Sub-drives are positioned by their behaviors
	if !a.stopped && a.parent == nil && a.speed != 0 {
		pos += a.speed * step.speedOverride() * dt
	}

	if trapezoidal && a.seeking && !jogging {
		a.stopPos = pos + math.Copysign(motion.StopDistance(a.speed, accel), a.speed)
	}

	if trapezoidal && !a.stopped {
		switch {
		case jogging:
			a.stopJogging = false
			target := float64(dir) * vt
			switch {
			case a.speed < target:
				a.accel = accel
			case a.speed > target:
				a.accel = -accel
			default:
				a.accel = 0
			}
		case a.accelStarted:
			a.accel = accel
		case a.decelStarted:
			a.accel = -accel
		case a.seeking && !a.atTarget && !a.stopJogging:
			if a.destination > a.stopPos {
				a.accel = accel
			} else {
				a.accel = -accel
			}
		}
	}

	if !a.stopped && !jogging && a.seeking {
		forward := a.speed > 0 && pos >= a.destination && a.lastPosition < a.destination
		backward := a.speed < 0 && pos <= a.destination && a.lastPosition > a.destination
		if forward || backward {
			a.arrive()
			pos = a.destination
		}
	}

	if trapezoidal && !a.stopped && (!a.atTarget || jogging) {
		lastSpeed := a.speed
		a.speed += a.accel * dt
		if jogging {
			target := float64(dir) * vt
			if (a.accel > 0 && a.speed > target) || (a.accel < 0 && a.speed < target) {
				a.speed = target
				a.accel = 0
			}
		} else {
			if a.speed > vt && a.accel > 0 {
				a.speed = vt
				a.accel = 0
				a.accelStarted = false
			}
			if a.speed < -vt && a.accel < 0 {
				a.speed = -vt
				a.accel = 0
				a.decelStarted = false
			}
		}

		if !jogging && a.stopJogging && lastSpeed != 0 && a.speed*lastSpeed <= 0 {
			a.halt()
			a.stopJogging = false
			a.destination = pos
		}
	}

	return pos
}

func (a *Axis) acquireTarget(pos float64) {
	a.stopped = false
	a.stopJogging = false
	a.blocked = false
	a.destination = a.TargetPosition
	a.accel = a.effectiveAcceleration()
	a.seeking = true
	a.atTarget = false

	if a.destination == pos {
		a.targetTime = 0
		a.stopped = true
		a.blocked = true
		a.atTarget = true
		a.seeking = false
		return
	}

	if a.SmoothAcceleration {
		s := a.smoothMotion()
		s.SetInitialState(pos, a.speed, 0)
		s.SetTarget(a.destination)
		s.SetDuration(a.targetTime)
	}
	a.targetTime = 0
}

func (a *Axis) arrive() {
	a.Stop()
	a.blocked = true
	a.atTarget = true
	a.seeking = false
	a.stopJogging = false
}

// integrateSmooth advances the jerk-limited generator in place of the trapezoid logic.
func (a *Axis) integrateSmooth(pos float64, dir int, step Step) float64 {
	if a.stopped {
		return pos
	}
	s := a.smoothMotion()
	retarget := dir != a.lastJogDir
	if s.Position() != pos {
		s.SetInitialState(pos, a.speed, 0)
		retarget = retarget || dir != 0
	}

	if retarget {
		if dir != 0 {
			s.Jog(float64(dir))
		} else {
			s.Brake()
			a.seeking = false
			a.stopJogging = true
		}
	}

	pos, a.speed = s.Integrate(step.DT * step.speedOverride())
	if dir == 0 && s.Done() {
		if a.seeking && pos == a.destination {
			a.arrive()
		} else {
			a.halt()
			a.stopJogging = false
			a.destination = pos
		}
	}
	return pos
}

// enforceLimits clamps or wraps pos into the configured limits.
func (a *Axis) enforceLimits(pos float64) float64 {
	l := a.Limits
	a.atLower, a.atUpper = false, false
	if !l.Use {
		return pos
	}

	measured := pos
	if a.Sensor != nil {
		measured = a.Sensor.MeasuredPosition()
	}

	if a.jogForward && measured >= l.Upper {
		if l.JumpToLower {
			wrapped := l.Lower + (measured - l.Upper)
			if a.smooth != nil {
				a.smooth.Shift(wrapped - pos)
			}
			pos = wrapped
			a.raise(EventJumpedToLowerLimit, a.jumped)
		} else {
			a.speed = 0
			pos = l.Upper
			a.atUpper = true
			a.resyncSmooth(pos)
		}
	}

	if a.jogBackward && measured <= l.Lower {
		a.speed = 0
		pos = l.Lower
		a.atLower = true
		a.resyncSmooth(pos)
	}

	if !a.IsJogging() {
		clamped := pos
		switch {
		case a.Sensor == nil:
			clamped = max(l.Lower, min(l.Upper, pos))
		case measured > l.Upper:
			clamped = pos + l.Upper - measured
		case measured < l.Lower:
			clamped = pos + l.Lower - measured
		}
		if clamped != pos {
			pos = clamped
			a.resyncSmooth(pos)
		}
	}

	if l.EndWindow > 0 {
		a.atLower = a.atLower || pos-l.Lower <= l.EndWindow
		a.atUpper = a.atUpper || l.Upper-pos <= l.EndWindow
	}
	return pos
}

func (a *Axis) resyncSmooth(pos float64) {
	if a.smooth != nil {
		a.smooth.SetInitialState(pos, a.speed, 0)
	}
}

func (a *Axis) updateStatus() {
	a.running = a.speed != 0
	a.atTargetSpeed = a.TargetSpeed != 0 && a.speed == a.cruiseSpeed()
	ramping := a.accelStarted || a.decelStarted
	a.atTarget = !a.IsJogging() && !ramping && a.position == a.destination

	if a.atTarget && !a.lastAtTarget {
		a.restoreStandard()
		a.raise(EventAtPosition, a.atPosition)
	}
	a.lastAtTarget = a.atTarget
}

// resolveOverrides computes the reported position and speed.
func (a *Axis) resolveOverrides(dt float64) {
	reported := a.position
	if a.posOverride {
		reported = a.posOverrideValue
	}

	switch {
	case a.speedOverride:
		a.reportedSpeed = a.speedOverrideValue
	case a.posOverride && dt > 0 && a.applied:
		instant := (reported - a.lastReported) / dt
		a.smoothedSpeed += (instant - a.smoothedSpeed) * overrideSmoothing
		if math.Abs(a.smoothedSpeed) < overrideDeadZone {
			a.smoothedSpeed = 0
		}
		a.reportedSpeed = a.smoothedSpeed
	default:
		a.reportedSpeed = a.speed
	}
	a.reportedPosition = reported
	a.lastReported = reported
}

// apply pushes the reported position to the sink when it changed.
func (a *Axis) apply() {
	if a.applied && a.reportedPosition == a.lastApplied {
		return
	}
	if a.Sink != nil {
		a.Sink.ApplyPosition(a, a.reportedPosition)
	}
	a.lastApplied = a.reportedPosition
	a.applied = true
}
