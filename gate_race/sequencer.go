package gate_race

import (
	"fmt"

	"go.uber.org/zap"
)

// Sequencer decides which flight primitive runs each tick.
//
// It is a two-level state machine: the upper phase (approach, gate run,
// secondary pattern, land) delegates every tick to the lower sequencer of
// that phase. Run must be called exactly once per control tick; it never blocks.
type Sequencer struct {
	cfg    SequencerConfig
	gates  *GateTable
	timing Timing
	log    *zap.Logger

	state    RaceState
	lastMode AutopilotMode
	observed bool

	// per-tick scratch
	t   float64
	in  PerceptionSnapshot
	cmd Command
}

// NewSequencer constructs a sequencer in its initial state.
//
// The gate table must hold a record for every gate either phase will index.
func NewSequencer(cfg SequencerConfig, gates *GateTable, timing Timing, logger *zap.Logger) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if need := cfg.RequiredGates(); gates.Len() < need {
		return nil, fmt.Errorf("%w: gate table holds %d records, %d required", ErrInvalidConfig, gates.Len(), need)
	}
	if timing == nil {
		return nil, fmt.Errorf("%w: timing is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sequencer{
		cfg:    cfg,
		gates:  gates,
		timing: timing,
		log:    logger.Named("sequencer"),
	}
	s.state = initialState(s.startPhase())
	return s, nil
}

// State returns a copy of the race state.
func (s *Sequencer) State() RaceState {
	return s.state
}

// Telemetry returns the display view of the latest tick.
func (s *Sequencer) Telemetry() Telemetry {
	tel := Telemetry{T: s.t, Mode: s.lastMode, State: s.state, Command: s.cmd, Perception: s.in}
	idx := -1
	switch s.state.Phase {
	case PhaseGateRun:
		idx = s.state.GatesPrimary
	case PhaseSecondaryPattern:
		idx = s.state.GatesSecondary
	}
	if idx >= 0 {
		if p, err := s.gates.Get(idx); err == nil {
			tel.Gate = &p
		}
	}
	return tel
}

// Run executes one tick.
//
// The only error returned wraps ErrIndexOutOfRange; it means the gate table
// does not cover a gate counter and the caller must stop flying the course.
func (s *Sequencer) Run(tk Tick) (Command, error) {
	s.superviseMode(tk.Mode)
	s.t = tk.T
	s.in = tk.Perception
	s.cmd = Command{T: tk.T}
	if tk.Mode != s.cfg.ActiveMode {
		return s.cmd, nil
	}

	if s.in.AltitudeAchieved {
		s.state.AltitudeAchieved = true
	}

	err := s.dispatch()
	s.state.PrimitiveInUse = s.cmd.Primitive
	if err != nil {
		s.log.Error("gate parameter lookup failed",
			zap.Stringer("phase", s.state.Phase),
			zap.Stringer("lower", s.state.Lower),
			zap.Error(err))
		return s.cmd, fmt.Errorf("%s/%s: %w", s.state.Phase, s.state.Lower, err)
	}
	return s.cmd, nil
}

// Reset returns the race state to its initial values. Applying it twice is the same as once.
func (s *Sequencer) Reset() {
	s.state = initialState(s.startPhase())
	s.timing.RestartState()
	s.timing.ResetDetection()
}

// superviseMode resets the sequencer whenever the autopilot mode changes.
func (s *Sequencer) superviseMode(mode AutopilotMode) {
	if !s.observed {
		s.observed = true
		s.lastMode = mode
		return
	}
	if mode != s.lastMode {
		s.log.Info("autopilot mode changed, resetting race",
			zap.Stringer("from", s.lastMode),
			zap.Stringer("to", mode),
			zap.Stringer("phase", s.state.Phase),
			zap.Stringer("lower", s.state.Lower))
		s.Reset()
	}
	s.lastMode = mode
}

func (s *Sequencer) startPhase() UpperPhase {
	if s.cfg.SkipApproach {
		return PhaseGateRun
	}
	return PhaseApproach
}

// dispatch checks phase boundaries, runs the active lower sequencer, then
// checks boundaries again so a counter reaching its bound advances the phase
// in the same tick.
func (s *Sequencer) dispatch() error {
	s.advancePhase()

	var err error
	switch s.state.Phase {
	case PhaseApproach:
		s.runApproach()
	case PhaseGateRun:
		err = s.runGateRun()
	case PhaseSecondaryPattern:
		err = s.runSecondary()
	case PhaseLand:
		s.land()
	}
	if err != nil {
		return err
	}

	s.advancePhase()
	return nil
}

func (s *Sequencer) advancePhase() {
	for {
		switch {
		case s.state.Phase == PhaseApproach && s.state.Step >= approachSteps:
			s.enterPhase(PhaseGateRun)
		case s.state.Phase == PhaseGateRun && s.state.GatesPrimary >= s.cfg.PrimaryGates:
			s.state.GatesPrimary = 0
			s.enterPhase(PhaseSecondaryPattern)
		case s.state.Phase == PhaseSecondaryPattern && s.state.GatesSecondary >= s.cfg.SecondaryGates:
			s.enterPhase(PhaseLand)
		default:
			return
		}
	}
}

func (s *Sequencer) enterPhase(p UpperPhase) {
	s.log.Info("phase complete",
		zap.Stringer("from", s.state.Phase),
		zap.Stringer("to", p),
		zap.Float64("t", s.t))
	s.state.Phase = p
	s.state.Lower = entryState(p)
	s.state.Prev = LowerNone
	s.timing.RestartState()
}

// transition moves to next, recording the state being left.
func (s *Sequencer) transition(next LowerState) {
	s.log.Debug("lower transition",
		zap.Stringer("phase", s.state.Phase),
		zap.Stringer("from", s.state.Lower),
		zap.Stringer("to", next),
		zap.Float64("t", s.t),
		zap.Float64("in_state", s.timing.InState()))
	s.state.Prev = s.state.Lower
	s.state.Lower = next
	if next == LowerTakeOff || next == LowerAdjustHeight {
		s.state.AltitudeAchieved = false
	}
	s.timing.RestartState()
}

// rendezvous routes the Hover state by the state it was entered from.
func (s *Sequencer) rendezvous(routes map[LowerState]LowerState) {
	next, ok := routes[s.state.Prev]
	if !ok {
		s.log.Warn("hover entered from unexpected state",
			zap.Stringer("phase", s.state.Phase),
			zap.Stringer("prev", s.state.Prev))
		next = LowerWaitForDetection
	}
	s.transition(next)
}

// settled reports whether the current state has run for MinDwell. Turning and
// altitude flags lag the command, so they are not trusted before that.
func (s *Sequencer) settled() bool {
	return s.timing.InState() >= s.cfg.MinDwell
}

// hover holds position.
func (s *Sequencer) hover() {
	s.cmd = Command{T: s.t, Primitive: PrimitiveHover}
}

// goStraight flies forward at speed (m/s).
func (s *Sequencer) goStraight(speed float64) {
	s.cmd = Command{T: s.t, Primitive: PrimitiveGoStraight, Speed: speed}
}

// turnToHeading turns by delta (rad) relative to the current heading.
func (s *Sequencer) turnToHeading(delta float64) {
	s.cmd = Command{T: s.t, Primitive: PrimitiveTurnToHeading, Heading: delta}
}

// adjustPosition nudges toward the gate center.
func (s *Sequencer) adjustPosition(lateral, vertical, heading float64) {
	s.cmd = Command{T: s.t, Primitive: PrimitiveAdjustPosition, Lateral: lateral, Vertical: vertical, Heading: heading}
}

// adjustHeight climbs or descends by delta (m).
func (s *Sequencer) adjustHeight(delta float64) {
	s.cmd = Command{T: s.t, Primitive: PrimitiveAdjustHeight, Height: delta}
}

// searchRotate rotates in place looking for a gate.
func (s *Sequencer) searchRotate() {
	s.cmd = Command{T: s.t, Primitive: PrimitiveSearchRotate}
}

// searchSweep sweeps sideways between left and right (m).
func (s *Sequencer) searchSweep(left, right float64) {
	s.cmd = Command{T: s.t, Primitive: PrimitiveSearchSweep, Left: left, Right: right}
}

// land descends and lands.
func (s *Sequencer) land() {
	s.cmd = Command{T: s.t, Primitive: PrimitiveLand}
}

// takeOff climbs to altitude (m).
func (s *Sequencer) takeOff(altitude float64) {
	s.cmd = Command{T: s.t, Primitive: PrimitiveTakeOff, Height: altitude}
}
