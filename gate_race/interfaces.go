package gate_race

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PerceptionSnapshot is the per-tick reading from the vision and state estimation stack.
//
// Conventions:
//   - offsets are in meters in the body frame.
//   - LongitudinalOffset is the distance to the gate plane along the heading.
type PerceptionSnapshot struct {
	GateDetected       bool
	ReadyToPassThrough bool
	TurningActive      bool
	AltitudeAchieved   bool
	LateralOffset      float64
	VerticalOffset     float64
	LongitudinalOffset float64
}

// Tick is the full input of one sequencer cycle.
type Tick struct {
	T          float64
	Mode       AutopilotMode
	Perception PerceptionSnapshot
}

// AutopilotMode is the external flight mode signal.
type AutopilotMode int

const (
	AutopilotKill AutopilotMode = iota
	AutopilotAttitude
	AutopilotNav
	AutopilotGuided
	AutopilotModule
)

func (m AutopilotMode) String() string {
	switch m {
	case AutopilotKill:
		return "KILL"
	case AutopilotAttitude:
		return "ATTITUDE"
	case AutopilotNav:
		return "NAV"
	case AutopilotGuided:
		return "GUIDED"
	case AutopilotModule:
		return "MODULE"
	default:
		return fmt.Sprintf("AutopilotMode(%d)", int(m))
	}
}

// ParseAutopilotMode converts a mode name or its numeric value into an AutopilotMode.
func ParseAutopilotMode(value string) (AutopilotMode, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "KILL", "0":
		return AutopilotKill, nil
	case "ATTITUDE", "1":
		return AutopilotAttitude, nil
	case "NAV", "2":
		return AutopilotNav, nil
	case "GUIDED", "3":
		return AutopilotGuided, nil
	case "MODULE", "4":
		return AutopilotModule, nil
	default:
		return AutopilotKill, fmt.Errorf("unknown autopilot mode %q", value)
	}
}

// UpperPhase is the coarse race segment.
type UpperPhase int

const (
	PhaseApproach UpperPhase = iota + 1
	PhaseGateRun
	PhaseSecondaryPattern
	PhaseLand
)

func (p UpperPhase) String() string {
	switch p {
	case PhaseApproach:
		return "APPROACH"
	case PhaseGateRun:
		return "GATE_RUN"
	case PhaseSecondaryPattern:
		return "SECONDARY_PATTERN"
	case PhaseLand:
		return "LAND"
	default:
		return fmt.Sprintf("UpperPhase(%d)", int(p))
	}
}

// MarshalJSON writes the phase name.
func (p UpperPhase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// LowerState is the maneuver state inside an upper phase.
type LowerState int

const (
	LowerNone LowerState = iota
	LowerTakeOff
	LowerHover
	LowerGoStraight
	LowerTurn
	LowerWaitForDetection
	LowerAdjustPosition
	LowerGoThrough
	LowerAdjustHeight
	LowerSearchRotate
	LowerSearchSweep
)

func (s LowerState) String() string {
	switch s {
	case LowerNone:
		return "NONE"
	case LowerTakeOff:
		return "TAKE_OFF"
	case LowerHover:
		return "HOVER"
	case LowerGoStraight:
		return "GO_STRAIGHT"
	case LowerTurn:
		return "TURN"
	case LowerWaitForDetection:
		return "WAIT_FOR_DETECTION"
	case LowerAdjustPosition:
		return "ADJUST_POSITION"
	case LowerGoThrough:
		return "GO_THROUGH"
	case LowerAdjustHeight:
		return "ADJUST_HEIGHT"
	case LowerSearchRotate:
		return "SEARCH_ROTATE"
	case LowerSearchSweep:
		return "SEARCH_SWEEP"
	default:
		return fmt.Sprintf("LowerState(%d)", int(s))
	}
}

// MarshalJSON writes the state name.
func (s LowerState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Primitive identifies a flight primitive of the external primitive library.
type Primitive int

const (
	PrimitiveNone Primitive = iota
	PrimitiveHover
	PrimitiveGoStraight
	PrimitiveTurnToHeading
	PrimitiveAdjustPosition
	PrimitiveAdjustHeight
	PrimitiveSearchRotate
	PrimitiveSearchSweep
	PrimitiveLand
	PrimitiveTakeOff
)

func (p Primitive) String() string {
	switch p {
	case PrimitiveNone:
		return "NONE"
	case PrimitiveHover:
		return "HOVER"
	case PrimitiveGoStraight:
		return "GO_STRAIGHT"
	case PrimitiveTurnToHeading:
		return "TURN_TO_HEADING"
	case PrimitiveAdjustPosition:
		return "ADJUST_POSITION"
	case PrimitiveAdjustHeight:
		return "ADJUST_HEIGHT"
	case PrimitiveSearchRotate:
		return "SEARCH_ROTATE"
	case PrimitiveSearchSweep:
		return "SEARCH_SWEEP"
	case PrimitiveLand:
		return "LAND"
	case PrimitiveTakeOff:
		return "TAKE_OFF"
	default:
		return fmt.Sprintf("Primitive(%d)", int(p))
	}
}

// MarshalJSON writes the primitive name.
func (p Primitive) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// Command is the single primitive invocation produced by one sequencer tick.
//
// Field meaning depends on Primitive:
//   - GoStraight: Speed (m/s).
//   - TurnToHeading: Heading (rad, relative).
//   - AdjustPosition: Lateral and Vertical offsets, Heading offset.
//   - AdjustHeight: Height delta (m).
//   - SearchSweep: Left and Right bounds (m).
//   - TakeOff: Height is the target altitude (m).
type Command struct {
	T         float64   `json:"t" msgpack:"t"`
	Primitive Primitive `json:"primitive" msgpack:"primitive"`
	Speed     float64   `json:"speed,omitempty" msgpack:"speed,omitempty"`
	Heading   float64   `json:"heading,omitempty" msgpack:"heading,omitempty"`
	Lateral   float64   `json:"lateral,omitempty" msgpack:"lateral,omitempty"`
	Vertical  float64   `json:"vertical,omitempty" msgpack:"vertical,omitempty"`
	Height    float64   `json:"height,omitempty" msgpack:"height,omitempty"`
	Left      float64   `json:"left,omitempty" msgpack:"left,omitempty"`
	Right     float64   `json:"right,omitempty" msgpack:"right,omitempty"`
}
