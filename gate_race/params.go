package gate_race

import (
	"errors"
	"fmt"
)

// MaxGates is the fixed capacity of a GateTable.
const MaxGates = 100

var (
	// ErrIndexOutOfRange is returned when a gate index is outside the populated range.
	ErrIndexOutOfRange = errors.New("gate index out of range")
	// ErrTableFull is returned when more records are supplied than the table can hold.
	ErrTableFull = errors.New("gate table capacity exceeded")
)

// GateParams holds the tuning for the maneuvers that follow one gate.
type GateParams struct {
	HeadingDelta      float64 `json:"heading_delta"`       // rad
	DistanceAfterGate float64 `json:"distance_after_gate"` // m
	HeightAfterGate   float64 `json:"height_after_gate"`   // m, 0 skips the height adjustment
	ZigzagEnabled     bool    `json:"zigzag_enabled"`
	ZigzagLegDistance float64 `json:"zigzag_leg_distance"` // m
}

// GateTable is an ordered, length-checked sequence of GateParams.
type GateTable struct {
	records []GateParams
}

// NewGateTable stores records verbatim, zero-valued entries included.
func NewGateTable(records []GateParams) (*GateTable, error) {
	if len(records) > MaxGates {
		return nil, fmt.Errorf("%w: %d records, capacity %d", ErrTableFull, len(records), MaxGates)
	}
	stored := make([]GateParams, len(records))
	copy(stored, records)
	return &GateTable{records: stored}, nil
}

// Len returns the number of populated gates.
func (gt *GateTable) Len() int {
	if gt == nil {
		return 0
	}
	return len(gt.records)
}

// Get returns the record for gate index i.
func (gt *GateTable) Get(i int) (GateParams, error) {
	if i < 0 || i >= gt.Len() {
		return GateParams{}, fmt.Errorf("%w: index %d, configured %d", ErrIndexOutOfRange, i, gt.Len())
	}
	return gt.records[i], nil
}

// Records returns a copy of all populated records.
func (gt *GateTable) Records() []GateParams {
	out := make([]GateParams, gt.Len())
	if gt != nil {
		copy(out, gt.records)
	}
	return out
}
