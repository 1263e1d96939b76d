package gate_race

// approachSteps is the Step value at which the approach is complete.
const approachSteps = 4

// runApproach flies take-off, hover, a straight leg and a turn, counting each
// completed maneuver in Step.
func (s *Sequencer) runApproach() {
	switch s.state.Lower {
	case LowerTakeOff:
		s.takeOff(s.cfg.TakeOffAltitude)
		if s.state.AltitudeAchieved {
			s.state.Step++
			s.transition(LowerHover)
		}

	case LowerHover:
		s.hover()
		if s.timing.InState() > s.cfg.HoverDwell {
			s.state.Step++
			s.transition(LowerGoStraight)
		}

	case LowerGoStraight:
		s.goStraight(s.cfg.ApproachSpeed)
		if s.timing.InState() > s.cfg.ApproachDuration {
			s.state.Step++
			s.transition(LowerTurn)
		}

	case LowerTurn:
		s.turnToHeading(s.cfg.ApproachTurn())
		if s.settled() && !s.in.TurningActive {
			s.state.Step++
		}
	}
}
