package gate_race

// runSecondary drives the secondary course segment. Losing the gate never
// starts a rotational search here; the first pass is followed by a lateral sweep.
func (s *Sequencer) runSecondary() error {
	switch s.state.Lower {
	case LowerWaitForDetection:
		s.waitForDetection(false)

	case LowerAdjustPosition:
		return s.alignWithGate(s.state.GatesSecondary)

	case LowerGoThrough:
		s.goThrough()

	case LowerHover:
		s.hover()
		if s.timing.InState() <= s.cfg.HoverDwell {
			return nil
		}
		if s.state.GatesSecondary == 0 {
			s.transition(LowerSearchSweep)
			return nil
		}
		s.state.GatesSecondary++
		s.transition(LowerWaitForDetection)

	case LowerSearchSweep:
		gate, err := s.gates.Get(s.state.GatesSecondary)
		if err != nil {
			return err
		}
		left, right := s.cfg.SweepLeft, s.cfg.SweepRight
		if gate.ZigzagEnabled {
			left, right = -gate.ZigzagLegDistance, gate.ZigzagLegDistance
		}
		s.searchSweep(left, right)
		if s.timing.InState() > s.cfg.SweepDuration {
			s.state.GatesSecondary++
			s.transition(LowerWaitForDetection)
		}
	}
	return nil
}
