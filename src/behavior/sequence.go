package behavior

import "github.com/ryansname/axisctl/src/axis"

// SequenceStep is one move of a sequence.
type SequenceStep struct {
	Description string

	ResetOnStart  *Signal    // Cleared when the step begins
	WaitForSignal *Signal    // The move starts once this is set
	Drive         *axis.Axis // Nil moves the axis owning the sequence
	Destination   float64
	NoWait        bool    // Finish as soon as the move is started
	Speed         float64 // Non-zero replaces the drive's target speed
	WaitAfterStep float64 // Simulated seconds between arrival and the next step
	Finished      *Signal // Set on arrival, cleared when the step begins again
}

// SequenceConfig controls how a sequence advances.
type SequenceConfig struct {
	StartAtBeginning    bool `koanf:"start_at_beginning" yaml:"start_at_beginning"`
	ResetWaitForSignals bool `koanf:"reset_wait_for_signals" yaml:"reset_wait_for_signals"` // Clear WaitForSignal once it has been consumed
	StopAfterEachStep   bool `koanf:"stop_after_each_step" yaml:"stop_after_each_step"`     // Hold after each step until Next is called
}

func DefaultSequenceConfig() SequenceConfig {
	return SequenceConfig{StartAtBeginning: true, ResetWaitForSignals: true}
}

// Sequence runs a cyclic list of moves, optionally gated by signals.
type Sequence struct {
	Switch
	SequenceConfig
	Steps []SequenceStep

	owner   *axis.Axis
	current int

	waitForSignal bool
	waitForNext   bool
	waitAfterStep bool
	timerPending  bool
	timer         float64
}

// NewSequence attaches steps to owner. Unless StartAtBeginning is set the sequence idles until
// Start is called.
func NewSequence(owner *axis.Axis, steps []SequenceStep, config SequenceConfig) *Sequence {
	s := &Sequence{SequenceConfig: config, Steps: steps, owner: owner, current: -1}
	owner.AddBehavior(s)
	if config.StartAtBeginning {
		s.Start()
	}
	return s
}

// CurrentStep is the index of the active step, -1 before the sequence starts.
func (s *Sequence) CurrentStep() int { return s.current }

// IsWaitingForSignal reports whether the active step is gated on its WaitForSignal.
func (s *Sequence) IsWaitingForSignal() bool { return s.waitForSignal }

// IsWaitingForNext reports whether the sequence is held for Next.
func (s *Sequence) IsWaitingForNext() bool { return s.waitForNext }

// Start restarts the sequence from its first step.
func (s *Sequence) Start() {
	if len(s.Steps) == 0 {
		return
	}
	s.current = -1
	s.timerPending = false
	s.waitForNext = false
	s.nextStep()
}

// Next advances a sequence held by StopAfterEachStep.
func (s *Sequence) Next() {
	if !s.waitForNext {
		return
	}
	s.waitForNext = false
	s.nextStep()
}

func (s *Sequence) drive() *axis.Axis {
	if d := s.Steps[s.current].Drive; d != nil {
		return d
	}
	return s.owner
}

func (s *Sequence) nextStep() {
	// Bounded so a ring of NoWait steps cannot spin forever
	for range len(s.Steps) {
		s.waitAfterStep = false
		s.waitForSignal = false
		s.current++
		if s.current >= len(s.Steps) {
			s.current = 0
		}

		step := s.Steps[s.current]
		step.ResetOnStart.Set(false)
		step.Finished.Set(false)

		if step.WaitForSignal != nil {
			s.waitForSignal = true
			return
		}
		s.startDrive()
		if !step.NoWait {
			return
		}
		if s.StopAfterEachStep {
			s.waitForNext = true
			return
		}
	}
}

func (s *Sequence) startDrive() {
	step := s.Steps[s.current]
	d := s.drive()
	if step.Speed != 0 {
		d.TargetSpeed = step.Speed
	}
	if step.Destination != 0 || step.Speed != 0 {
		d.DriveTo(step.Destination)
	}
}

func (s *Sequence) stepFinished() {
	if s.StopAfterEachStep {
		s.waitForNext = true
		return
	}
	s.nextStep()
}

func (s *Sequence) Compute(_ *axis.Axis, step axis.Step) {
	if s.current < 0 || s.waitForNext {
		return
	}

	if s.timerPending {
		s.timer -= step.DT
		if s.timer <= 0 {
			s.timerPending = false
			s.stepFinished()
		}
		return
	}

	if s.waitForSignal {
		signal := s.Steps[s.current].WaitForSignal
		if !signal.Get() {
			return
		}
		s.waitForSignal = false
		s.startDrive()
		if s.ResetWaitForSignals {
			signal.Set(false)
		}
		return
	}

	cur := s.Steps[s.current]
	if !s.waitAfterStep && s.drive().CurrentPosition() == cur.Destination {
		cur.Finished.Set(true)
		s.waitAfterStep = true
		s.timerPending = true
		s.timer = cur.WaitAfterStep
	}
}
