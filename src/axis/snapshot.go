package axis

// Snapshot is the restorable state of an axis, including a move in progress.
type Snapshot struct {
	Name           string  `json:"name" yaml:"name"`
	Position       float64 `json:"position" yaml:"position"`
	Speed          float64 `json:"speed" yaml:"speed"`
	Acceleration   float64 `json:"acceleration" yaml:"acceleration"`
	Destination    float64 `json:"destination" yaml:"destination"`
	TargetPosition float64 `json:"target_position" yaml:"target_position"`
	TargetSpeed    float64 `json:"target_speed" yaml:"target_speed"`
	AccelLimit     float64 `json:"accel_limit" yaml:"accel_limit"` // Acceleration magnitude in use
	JogForward     bool    `json:"jog_forward,omitempty" yaml:"jog_forward,omitempty"`
	JogBackward    bool    `json:"jog_backward,omitempty" yaml:"jog_backward,omitempty"`
	Seeking        bool    `json:"seeking,omitempty" yaml:"seeking,omitempty"`
	Stopped        bool    `json:"stopped,omitempty" yaml:"stopped,omitempty"`
	Blocked        bool    `json:"blocked,omitempty" yaml:"blocked,omitempty"`
	StopJogging    bool    `json:"stop_jogging,omitempty" yaml:"stop_jogging,omitempty"`
	AccelStarted   bool    `json:"accel_started,omitempty" yaml:"accel_started,omitempty"`
	DecelStarted   bool    `json:"decel_started,omitempty" yaml:"decel_started,omitempty"`

	// Timed move in progress, standard values restored at the at-position edge
	TimedMove     bool    `json:"timed_move,omitempty" yaml:"timed_move,omitempty"`
	TargetTime    float64 `json:"target_time,omitempty" yaml:"target_time,omitempty"`
	StandardSpeed float64 `json:"standard_speed,omitempty" yaml:"standard_speed,omitempty"`
	StandardAccel float64 `json:"standard_accel,omitempty" yaml:"standard_accel,omitempty"`

	Smooth *SmoothSnapshot `json:"smooth,omitempty" yaml:"smooth,omitempty"`
}

// SmoothSnapshot is the jerk-limited generator state.
type SmoothSnapshot struct {
	Position     float64 `json:"position" yaml:"position"`
	Velocity     float64 `json:"velocity" yaml:"velocity"`
	Acceleration float64 `json:"acceleration" yaml:"acceleration"`
	Target       float64 `json:"target" yaml:"target"`

	TimedVelocity     float64 `json:"timed_velocity,omitempty" yaml:"timed_velocity,omitempty"`
	TimedAcceleration float64 `json:"timed_acceleration,omitempty" yaml:"timed_acceleration,omitempty"`
}

// Snapshot captures the state needed to resume the axis.
func (a *Axis) Snapshot() Snapshot {
	s := Snapshot{
		Name:           a.Name,
		Position:       a.position,
		Speed:          a.speed,
		Acceleration:   a.accel,
		Destination:    a.destination,
		TargetPosition: a.TargetPosition,
		TargetSpeed:    a.TargetSpeed,
		AccelLimit:     a.Acceleration,
		JogForward:     a.jogForward,
		JogBackward:    a.jogBackward,
		Seeking:        a.seeking,
		Stopped:        a.stopped,
		Blocked:        a.blocked,
		StopJogging:    a.stopJogging,
		AccelStarted:   a.accelStarted,
		DecelStarted:   a.decelStarted,
		TimedMove:      a.timedMove,
		TargetTime:     a.targetTime,
		StandardSpeed:  a.standardSpeed,
		StandardAccel:  a.standardAccel,
	}
	if a.smooth != nil {
		tv, ta := a.smooth.TimedLimits()
		s.Smooth = &SmoothSnapshot{
			Position:          a.smooth.Position(),
			Velocity:          a.smooth.Velocity(),
			Acceleration:      a.smooth.Acceleration(),
			Target:            a.smooth.Target(),
			TimedVelocity:     tv,
			TimedAcceleration: ta,
		}
	}
	return s
}

// Restore resumes from a snapshot. Derived status is recomputed on the next tick and no
// at-position event is raised for the restored state.
func (a *Axis) Restore(s Snapshot) {
	a.position = s.Position
	a.lastPosition = s.Position
	a.speed = s.Speed
	a.accel = s.Acceleration
	a.destination = s.Destination
	a.TargetPosition = s.TargetPosition
	a.TargetSpeed = s.TargetSpeed
	a.Acceleration = s.AccelLimit
	a.timedMove = s.TimedMove
	a.targetTime = s.TargetTime
	a.standardSpeed, a.standardAccel = s.StandardSpeed, s.StandardAccel
	a.jogForward, a.jogBackward = s.JogForward, s.JogBackward
	a.lastJogDir = a.jogDir()
	a.seeking = s.Seeking
	a.stopped = s.Stopped
	a.blocked = s.Blocked
	a.stopJogging = s.StopJogging
	a.accelStarted, a.decelStarted = s.AccelStarted, s.DecelStarted
	a.pendingMove = false
	a.startMove, a.lastStartMove = false, false
	a.atTarget = !a.IsJogging() && a.position == a.destination
	a.lastAtTarget = a.atTarget
	a.reportedPosition = a.position
	a.lastReported = a.position
	a.reportedSpeed = a.speed
	a.applied = false

	if s.Smooth != nil {
		sm := a.smoothMotion()
		sm.SetInitialState(s.Smooth.Position, s.Smooth.Velocity, s.Smooth.Acceleration)
		sm.SetTarget(s.Smooth.Target)
		sm.SetTimedLimits(s.Smooth.TimedVelocity, s.Smooth.TimedAcceleration)
	}
}
