package gate_race

// RaceState is the sequencer's single mutable record. It is reset wholesale on
// an autopilot mode change.
type RaceState struct {
	Phase UpperPhase `json:"phase"`
	Lower LowerState `json:"lower"`
	// Prev is the last lower state exited; it routes the Hover rendezvous.
	Prev LowerState `json:"previous_lower"`

	GatesPrimary   int `json:"gates_primary"`
	GatesSecondary int `json:"gates_secondary"`
	Step           int `json:"step"`

	DistanceBeforeGate float64 `json:"distance_before_gate"`
	TimeToGoStraight   float64 `json:"time_to_go_straight"`

	AltitudeAchieved bool      `json:"altitude_achieved"`
	PrimitiveInUse   Primitive `json:"primitive_in_use"`
}

// Telemetry is the display-only view of one tick, published after Run.
type Telemetry struct {
	T          float64            `json:"t"`
	Mode       AutopilotMode      `json:"mode"`
	State      RaceState          `json:"state"`
	Command    Command            `json:"command"`
	Perception PerceptionSnapshot `json:"perception"`
	// Gate holds the parameters of the gate being flown; nil outside gate phases.
	Gate *GateParams `json:"gate,omitempty"`
}

func initialState(start UpperPhase) RaceState {
	return RaceState{Phase: start, Lower: entryState(start)}
}

// entryState is the lower state a phase starts in.
func entryState(p UpperPhase) LowerState {
	switch p {
	case PhaseApproach:
		return LowerTakeOff
	case PhaseGateRun, PhaseSecondaryPattern:
		return LowerWaitForDetection
	default:
		return LowerNone
	}
}

// Allows reports whether s is a lower state of phase p.
func (p UpperPhase) Allows(s LowerState) bool {
	switch p {
	case PhaseApproach:
		switch s {
		case LowerTakeOff, LowerHover, LowerGoStraight, LowerTurn:
			return true
		}
	case PhaseGateRun:
		switch s {
		case LowerWaitForDetection, LowerAdjustPosition, LowerGoThrough, LowerHover,
			LowerTurn, LowerAdjustHeight, LowerSearchRotate:
			return true
		}
	case PhaseSecondaryPattern:
		switch s {
		case LowerWaitForDetection, LowerAdjustPosition, LowerGoThrough, LowerHover, LowerSearchSweep:
			return true
		}
	case PhaseLand:
		return s == LowerNone
	}
	return false
}
