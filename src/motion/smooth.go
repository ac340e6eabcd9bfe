package motion

import "math"

const (
	// jogTargetDistance is how far ahead a jog places its target so the cruise speed is reached
	// long before the generator starts braking.
	jogTargetDistance = 1e6

	// maxPredictSteps bounds the braking prediction loop.
	maxPredictSteps = 1_000_000

	// durationStep is the fixed step Duration simulates with.
	durationStep = 0.01
)

// SmoothMotion is a jerk-limited point-to-point profile generator. Acceleration changes by at
// most Jerk per second, so the commanded acceleration never jumps.
//
// Every step the generator tries to accelerate toward the cruise speed in the direction of the
// target. If braking from that trial state would stop past the target, it brakes instead. When
// braking is chosen while the axis is practically at rest, or a step crosses the target, the
// state snaps onto the target with zero velocity and acceleration.
type SmoothMotion struct {
	MaxVelocity     float64 // units/s
	MaxAcceleration float64 // units/s²
	Jerk            float64 // units/s³, 0 disables jerk limiting
	SpeedOverride   float64 // scales velocity and acceleration limits, 0 is treated as 1

	pos, vel, acc float64
	target        float64
	done          bool

	// Limits derived from SetDuration, 0 when unconstrained
	timedVelocity     float64
	timedAcceleration float64
}

// NewSmoothMotion creates a generator at rest at position 0.
func NewSmoothMotion(maxVelocity, maxAcceleration, jerk float64) *SmoothMotion {
	return &SmoothMotion{
		MaxVelocity:     maxVelocity,
		MaxAcceleration: maxAcceleration,
		Jerk:            jerk,
		SpeedOverride:   1,
		done:            true,
	}
}

// SetInitialState replaces the integrator state. The target is moved to the new position and
// any duration constraint is cleared.
func (s *SmoothMotion) SetInitialState(pos, vel, acc float64) {
	s.pos, s.vel, s.acc = pos, vel, acc
	s.target = pos
	s.timedVelocity, s.timedAcceleration = 0, 0
	s.done = vel == 0 && acc == 0
}

// SetTarget starts a move toward pos from the current state.
func (s *SmoothMotion) SetTarget(pos float64) {
	s.target = pos
	s.done = pos == s.pos && s.vel == 0 && s.acc == 0
}

// SetDuration constrains the current move so it takes approximately seconds, by deriving the
// velocity limit 1.5·D/T and acceleration limit 4.5·D/T² from the remaining distance.
// A non-positive duration or zero distance removes the constraint.
func (s *SmoothMotion) SetDuration(seconds float64) {
	d := math.Abs(s.target - s.pos)
	if seconds <= 0 || d == 0 {
		s.timedVelocity, s.timedAcceleration = 0, 0
		return
	}
	s.timedVelocity = 1.5 * d / seconds
	s.timedAcceleration = 4.5 * d / (seconds * seconds)
}

// TimedLimits returns the velocity and acceleration limits set by SetDuration, 0 when the
// move is unconstrained.
func (s *SmoothMotion) TimedLimits() (velocity, acceleration float64) {
	return s.timedVelocity, s.timedAcceleration
}

// SetTimedLimits restores limits previously returned by TimedLimits.
func (s *SmoothMotion) SetTimedLimits(velocity, acceleration float64) {
	s.timedVelocity, s.timedAcceleration = velocity, acceleration
}

// Jog targets a point far away in the given direction (+1 or -1).
func (s *SmoothMotion) Jog(direction float64) {
	s.timedVelocity, s.timedAcceleration = 0, 0
	s.SetTarget(s.pos + math.Copysign(jogTargetDistance, direction))
}

// Brake retargets to the position the generator comes to rest at when it decelerates now.
func (s *SmoothMotion) Brake() {
	s.SetTarget(s.predictStop(s.pos, s.vel, s.acc, durationStep))
}

// Shift moves position and target by delta, leaving velocity and acceleration untouched.
func (s *SmoothMotion) Shift(delta float64) {
	s.pos += delta
	s.target += delta
}

func (s *SmoothMotion) Position() float64     { return s.pos }
func (s *SmoothMotion) Velocity() float64     { return s.vel }
func (s *SmoothMotion) Acceleration() float64 { return s.acc }
func (s *SmoothMotion) Target() float64       { return s.target }

// Done reports whether the generator rests on its target.
func (s *SmoothMotion) Done() bool { return s.done }

// Duration returns the simulated seconds until the current move completes.
func (s *SmoothMotion) Duration() float64 {
	sim := *s
	elapsed := 0.0
	for i := 0; i < maxPredictSteps && !sim.done; i++ {
		sim.Integrate(durationStep)
		elapsed += durationStep
	}
	return elapsed
}

// Integrate advances the generator by dt seconds and returns the new position and velocity.
func (s *SmoothMotion) Integrate(dt float64) (float64, float64) {
	if s.done || dt <= 0 {
		return s.pos, s.vel
	}

	vmax, _, _ := s.limits()
	dist := s.target - s.pos
	dir := math.Copysign(1, dist)
	if dist == 0 {
		dir = 0
	}

	p, v, a := s.step(s.pos, s.vel, s.acc, dir*vmax, dt)
	braking := dir == 0 || (s.predictStop(p, v, a, dt)-s.target)*dir > 0
	if braking {
		p, v, a = s.step(s.pos, s.vel, s.acc, 0, dt)
	}

	crossed := dir != 0 && (s.target-p)*dir <= 0
	resting := braking && math.Abs(v) <= s.restVelocity(dt)
	if crossed || resting {
		s.pos, s.vel, s.acc = s.target, 0, 0
		s.done = true
		return s.pos, s.vel
	}

	s.pos, s.vel, s.acc = p, v, a
	return s.pos, s.vel
}

func (s *SmoothMotion) limits() (vmax, amax, jerk float64) {
	override := s.SpeedOverride
	if override <= 0 {
		override = 1
	}
	vmax, amax = s.MaxVelocity, s.MaxAcceleration
	if s.timedVelocity > 0 {
		vmax, amax = s.timedVelocity, s.timedAcceleration
	}
	return vmax * override, amax * override, s.Jerk
}

// step applies one jerk-limited step steering the velocity toward vdes.
func (s *SmoothMotion) step(p, v, a, vdes, dt float64) (float64, float64, float64) {
	_, amax, jerk := s.limits()
	dv := vdes - v

	aStar := math.Copysign(amax, dv)
	if dv == 0 {
		aStar = 0
	}
	if jerk > 0 {
		aStar = math.Copysign(min(amax, math.Sqrt(2*jerk*math.Abs(dv))), dv)
		maxChange := jerk * dt
		a += max(-maxChange, min(maxChange, aStar-a))
	} else {
		a = aStar
	}

	vOld := v
	v += a * dt
	if (dv >= 0 && v > vdes) || (dv <= 0 && v < vdes) {
		// Landed past the commanded velocity within one step
		v = vdes
		if jerk <= 0 {
			a = 0
		}
	}
	p += (vOld + v) / 2 * dt
	return p, v, a
}

// predictStop simulates braking from the given state and returns the rest position.
func (s *SmoothMotion) predictStop(p, v, a, dt float64) float64 {
	if v == 0 {
		return p
	}
	moving := math.Copysign(1, v)
	for range maxPredictSteps {
		p, v, a = s.step(p, v, a, 0, dt)
		if v*moving <= 0 {
			break
		}
	}
	return p
}

// restVelocity is the speed below which a braking generator is considered stopped.
func (s *SmoothMotion) restVelocity(dt float64) float64 {
	_, amax, jerk := s.limits()
	if jerk > 0 {
		return min(jerk*dt*dt, amax*dt)
	}
	return amax * dt
}
