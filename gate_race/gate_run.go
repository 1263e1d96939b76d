package gate_race

// gateRunRoutes is the Hover fan-out of the gate run: pass, turn, climb, next gate.
var gateRunRoutes = map[LowerState]LowerState{
	LowerGoThrough:    LowerTurn,
	LowerTurn:         LowerAdjustHeight,
	LowerAdjustHeight: LowerWaitForDetection,
}

// runGateRun drives one pass through the gate indexed by GatesPrimary.
func (s *Sequencer) runGateRun() error {
	switch s.state.Lower {
	case LowerWaitForDetection:
		s.waitForDetection(true)

	case LowerAdjustPosition:
		return s.alignWithGate(s.state.GatesPrimary)

	case LowerGoThrough:
		s.goThrough()

	case LowerHover:
		s.hover()
		if s.timing.InState() > s.cfg.HoverDwell {
			s.rendezvous(gateRunRoutes)
		}

	case LowerTurn:
		gate, err := s.gates.Get(s.state.GatesPrimary)
		if err != nil {
			return err
		}
		s.turnToHeading(gate.HeadingDelta)
		if s.settled() && !s.in.TurningActive {
			s.transition(LowerHover)
		}

	case LowerAdjustHeight:
		gate, err := s.gates.Get(s.state.GatesPrimary)
		if err != nil {
			return err
		}
		if gate.HeightAfterGate == 0 {
			s.hover()
			s.state.GatesPrimary++
			s.transition(LowerWaitForDetection)
			return nil
		}
		s.adjustHeight(gate.HeightAfterGate)
		if s.settled() && s.state.AltitudeAchieved {
			s.state.GatesPrimary++
			s.transition(LowerHover)
		}

	case LowerSearchRotate:
		s.searchRotate()
		if s.in.GateDetected && s.timing.DetectionAge() > s.cfg.ConfirmThreshold {
			s.transition(LowerWaitForDetection)
		}
	}
	return nil
}

// waitForDetection hovers until a gate is seen. With searchOnLoss, a gate
// missing for longer than the lost threshold starts a rotational search.
func (s *Sequencer) waitForDetection(searchOnLoss bool) {
	s.hover()
	if s.timing.InState() < s.cfg.MinDwell {
		return
	}
	if s.in.GateDetected {
		s.transition(LowerAdjustPosition)
		return
	}
	if searchOnLoss && s.timing.DetectionAge() > s.cfg.LostThreshold {
		s.transition(LowerSearchRotate)
	}
}

// alignWithGate centers on the gate, then plans the straight leg through gate idx.
func (s *Sequencer) alignWithGate(idx int) error {
	if !s.in.GateDetected && s.timing.DetectionAge() > s.cfg.AbortThreshold {
		s.hover()
		s.transition(LowerWaitForDetection)
		return nil
	}
	if !s.in.ReadyToPassThrough {
		s.adjustPosition(s.in.LateralOffset, s.in.VerticalOffset, 0)
		return nil
	}

	gate, err := s.gates.Get(idx)
	if err != nil {
		return err
	}
	s.state.DistanceBeforeGate = s.in.LongitudinalOffset
	s.state.TimeToGoStraight = (s.state.DistanceBeforeGate + gate.DistanceAfterGate) /
		(s.cfg.StraightSpeed * s.cfg.SafetyMargin)
	s.goStraight(s.cfg.StraightSpeed)
	s.transition(LowerGoThrough)
	return nil
}

// goThrough flies straight for the planned time, then hovers.
func (s *Sequencer) goThrough() {
	s.goStraight(s.cfg.StraightSpeed)
	if s.timing.InState() > s.state.TimeToGoStraight {
		s.transition(LowerHover)
	}
}
