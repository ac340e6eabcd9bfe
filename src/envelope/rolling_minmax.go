// Package envelope tracks the travel envelope of an axis over a rolling window of simulated time.
package envelope

import "math"

// bucket holds min/max values for one slice of the window
type bucket struct {
	min, max float64
}

var emptyBucket = bucket{min: math.MaxFloat64, max: -math.MaxFloat64}

// RollingMinMax tracks min/max values over a rolling window split into fixed-width buckets.
// Time is simulated seconds, so the window follows the simulation rather than the wall clock.
type RollingMinMax struct {
	buckets []bucket
	width   float64
	current int64 // Absolute bucket index, -1 = uninitialized
}

// NewRollingMinMax creates a window of count buckets, each width seconds wide
func NewRollingMinMax(count int, width float64) *RollingMinMax {
	if count < 1 {
		count = 1
	}
	if width <= 0 {
		width = 1
	}
	r := &RollingMinMax{buckets: make([]bucket, count), width: width, current: -1}
	r.Reset()
	return r
}

// Window is the span covered by the envelope in seconds
func (r *RollingMinMax) Window() float64 {
	return float64(len(r.buckets)) * r.width
}

// Reset clears all recorded values
func (r *RollingMinMax) Reset() {
	for i := range r.buckets {
		r.buckets[i] = emptyBucket
	}
	r.current = -1
}

// Update records value at simulated time now
func (r *RollingMinMax) Update(value, now float64) {
	index := int64(math.Floor(now / r.width))
	n := int64(len(r.buckets))

	if r.current >= 0 && index > r.current {
		// Clear skipped buckets, at most one full lap
		missed := min(index-r.current-1, n)
		for i := int64(1); i <= missed; i++ {
			r.buckets[(r.current+i)%n] = emptyBucket
		}
	}

	if index != r.current {
		if index < r.current {
			// Time went backwards (state restore), start over
			r.Reset()
		}
		r.buckets[index%n] = bucket{min: value, max: value}
		r.current = index
		return
	}

	b := &r.buckets[index%n]
	b.min = min(b.min, value)
	b.max = max(b.max, value)
}

// Min returns the minimum value across all buckets, or 0 if no data
func (r *RollingMinMax) Min() float64 {
	result := math.MaxFloat64
	for _, b := range r.buckets {
		result = min(result, b.min)
	}
	if result == math.MaxFloat64 {
		return 0
	}
	return result
}

// Max returns the maximum value across all buckets, or 0 if no data
func (r *RollingMinMax) Max() float64 {
	result := -math.MaxFloat64
	for _, b := range r.buckets {
		result = max(result, b.max)
	}
	if result == -math.MaxFloat64 {
		return 0
	}
	return result
}

// Travel is Max - Min
func (r *RollingMinMax) Travel() float64 {
	return r.Max() - r.Min()
}
