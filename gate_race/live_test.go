package gate_race

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseTickCSV(t *testing.T) {
	tk, hasT, err := ParseTickCSV([]byte("12.5,MODULE,1,true,0,0.25,-0.1,1.8,no\n"))
	require.NoError(t, err)
	assert.True(t, hasT)
	assert.Equal(t, Tick{
		T:    12.5,
		Mode: AutopilotModule,
		Perception: PerceptionSnapshot{
			GateDetected:       true,
			ReadyToPassThrough: true,
			LateralOffset:      0.25,
			VerticalOffset:     -0.1,
			LongitudinalOffset: 1.8,
		},
	}, tk)

	tk, hasT, err = ParseTickCSV([]byte(" 3 , 0, 0, 1, 0, 0, 0, 1 "))
	require.NoError(t, err)
	assert.False(t, hasT)
	assert.Equal(t, AutopilotGuided, tk.Mode)
	assert.True(t, tk.Perception.TurningActive)
	assert.True(t, tk.Perception.AltitudeAchieved)
	assert.False(t, tk.Perception.GateDetected)
}

func TestParseTickCSVErrors(t *testing.T) {
	for name, payload := range map[string]string{
		"empty":        "  ",
		"short":        "MODULE,1,1,0",
		"long":         "1,MODULE,1,1,0,0,0,0,0,0",
		"bad mode":     "1,HOVERING,1,1,0,0,0,0,0",
		"bad flag":     "1,MODULE,maybe,1,0,0,0,0,0",
		"bad offset":   "1,MODULE,1,1,0,left,0,0,0",
		"bad time":     "soon,MODULE,1,1,0,0,0,0,0",
		"bad altitude": "MODULE,1,1,0,0,0,0,high",
	} {
		_, _, err := ParseTickCSV([]byte(payload))
		assert.Error(t, err, name)
	}
}

func TestTickFieldFlag(t *testing.T) {
	for in, want := range map[string]bool{
		"1": true, "TRUE": true, "T": true, "y": true, "Yes": true, "0.5": true,
		"0": false, "False": false, "n": false, "no": false, "0.0": false,
	} {
		got, err := tickFields{in}.flag(0)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := tickFields{"maybe"}.flag(0)
	assert.Error(t, err)
}

func newTestLoop(t *testing.T) *controlLoop {
	t.Helper()
	table, err := NewGateTable(flatGates(2))
	require.NoError(t, err)
	clock := NewStateClock()
	seq, err := NewSequencer(gateRunConfig(1), table, clock, nil)
	require.NoError(t, err)
	sender, err := NewOutputSender(OutputConfig{Encoding: EncodingCSV})
	require.NoError(t, err)
	return &controlLoop{
		seq:        seq,
		clock:      clock,
		store:      &liveStore{},
		sender:     sender,
		metrics:    NewMetrics(),
		published:  &StateStore{},
		log:        zap.NewNop(),
		staleAfter: 0.5,
	}
}

func TestControlLoopStep(t *testing.T) {
	l := newTestLoop(t)

	l.store.Update(Tick{T: 1000, Mode: AutopilotModule, Perception: gateAhead})
	require.NoError(t, l.step(0.5))
	tel, ok := l.published.Latest()
	require.True(t, ok)
	assert.Equal(t, 0.5, tel.T, "packet time is not the loop time base")
	assert.True(t, tel.Perception.GateDetected)
	assert.Equal(t, PrimitiveHover, tel.Command.Primitive)

	// Inside the staleness window the last perception is flown again.
	require.NoError(t, l.step(1.0))
	tel, _ = l.published.Latest()
	assert.Equal(t, AutopilotModule, tel.Mode)
	assert.True(t, tel.Perception.GateDetected)
	assert.Equal(t, 1.0, tel.T)

	// Past it the perception is dropped; the mode is kept.
	require.NoError(t, l.step(1.05))
	tel, _ = l.published.Latest()
	assert.Equal(t, AutopilotModule, tel.Mode)
	assert.False(t, tel.Perception.GateDetected)

	l.store.Update(Tick{Mode: AutopilotModule, Perception: gateAhead})
	require.NoError(t, l.step(1.1))
	tel, _ = l.published.Latest()
	assert.True(t, tel.Perception.GateDetected)
}

func TestControlLoopMissedPacketMidTurn(t *testing.T) {
	l := newTestLoop(t)
	turning := gateReady
	turning.TurningActive = true

	l.store.Update(Tick{Mode: AutopilotModule, Perception: turning})
	require.NoError(t, l.step(0))
	l.seq.state.Lower = LowerTurn
	l.clock.RestartState()

	for _, ts := range []float64{0.05, 0.5, 1.0, 1.2} {
		l.store.Update(Tick{Mode: AutopilotModule, Perception: turning})
		require.NoError(t, l.step(ts))
	}
	// Two control ticks without a packet, past the minimum dwell.
	require.NoError(t, l.step(1.25))
	require.NoError(t, l.step(1.3))
	require.Equal(t, LowerTurn, l.seq.State().Lower)

	l.store.Update(Tick{Mode: AutopilotModule, Perception: gateReady})
	require.NoError(t, l.step(1.35))
	assert.Equal(t, LowerHover, l.seq.State().Lower)
}

func TestControlLoopMissedPacketKeepsDetectionAge(t *testing.T) {
	l := newTestLoop(t)

	l.store.Update(Tick{Mode: AutopilotModule, Perception: gateAhead})
	require.NoError(t, l.step(0))
	for i := 1; i <= 8; i++ {
		ts := float64(i) * 0.1
		if i%2 == 0 {
			l.store.Update(Tick{Mode: AutopilotModule, Perception: gateAhead})
		}
		require.NoError(t, l.step(ts))
	}
	assert.InDelta(t, 0.8, l.clock.DetectionAge(), 1e-9)
}

func TestControlLoopStepFaultsOnMissingGate(t *testing.T) {
	l := newTestLoop(t)
	empty, err := NewGateTable(nil)
	require.NoError(t, err)
	l.seq.gates = empty

	l.store.Update(Tick{Mode: AutopilotModule, Perception: gateReady})
	require.NoError(t, l.step(0))
	require.NoError(t, l.step(0.25))
	l.store.Update(Tick{Mode: AutopilotModule, Perception: gateReady})
	require.NoError(t, l.step(1.0))
	assert.ErrorIs(t, l.step(1.25), ErrIndexOutOfRange)
}
