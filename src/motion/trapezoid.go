// Package motion provides scalar motion profiles for a single axis: closed-form trapezoid
// planning and a jerk-limited profile generator that is advanced in fixed time steps.
package motion

import "math"

// MinTimedDistance is the smallest distance a timed move will rescale speed or acceleration for.
// Shorter moves run with the standard values.
const MinTimedDistance = 0.001

// StopDistance returns the distance needed to brake from speed v to rest at constant
// deceleration a. Returns 0 when a is not positive.
func StopDistance(v, a float64) float64 {
	if a <= 0 {
		return 0
	}
	return v * v / (2 * a)
}

// Trapezoid describes a rest-to-rest accelerate-cruise-decelerate move.
type Trapezoid struct {
	Distance   float64 // Absolute travel
	PeakSpeed  float64 // Highest speed reached
	AccelTime  float64 // Seconds spent accelerating (equal to decelerating)
	AccelDist  float64 // Distance covered while accelerating
	CruiseTime float64
	CruiseDist float64
	TotalTime  float64
	Triangular bool // Cruise speed never reached
}

// PlanTrapezoid plans a move over distance with the given cruise speed and acceleration.
// When 2*AccelDist exceeds the distance the cruise phase vanishes and the profile degrades to a
// symmetric triangle with total time 2*sqrt(distance/accel).
// accel <= 0 plans an unconstrained move at constant speed. speed <= 0 never arrives.
func PlanTrapezoid(distance, speed, accel float64) Trapezoid {
	d := math.Abs(distance)
	p := Trapezoid{Distance: d}
	if d == 0 {
		return p
	}
	if speed <= 0 {
		p.TotalTime = math.Inf(1)
		return p
	}

	if accel <= 0 {
		p.PeakSpeed = speed
		p.CruiseDist = d
		p.CruiseTime = d / speed
		p.TotalTime = p.CruiseTime
		return p
	}

	p.AccelTime = speed / accel
	p.AccelDist = 0.5 * accel * p.AccelTime * p.AccelTime
	if 2*p.AccelDist > d {
		p.Triangular = true
		p.AccelTime = math.Sqrt(d / accel)
		p.AccelDist = d / 2
		p.PeakSpeed = accel * p.AccelTime
		p.TotalTime = 2 * p.AccelTime
		return p
	}

	p.PeakSpeed = speed
	p.CruiseDist = d - 2*p.AccelDist
	p.CruiseTime = p.CruiseDist / speed
	p.TotalTime = 2*p.AccelTime + p.CruiseTime
	return p
}

// TimeTo returns the seconds a rest-to-rest move over distance takes.
func TimeTo(distance, speed, accel float64) float64 {
	return PlanTrapezoid(distance, speed, accel).TotalTime
}

// TimedMove returns the cruise speed and acceleration that complete a rest-to-rest move over
// distance in exactly seconds. With acceleration the move is a triangle: accel = D/(T/2)² and
// the peak speed 2D/T. Without it the speed is D/T and accel is 0.
// ok is false for distances under MinTimedDistance or non-positive durations; callers then keep
// their standard values.
func TimedMove(distance, seconds float64, useAccel bool) (speed, accel float64, ok bool) {
	d := math.Abs(distance)
	if d < MinTimedDistance || seconds <= 0 {
		return 0, 0, false
	}
	if !useAccel {
		return d / seconds, 0, true
	}
	half := seconds / 2
	return 2 * d / seconds, d / (half * half), true
}
