package gate_race

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
hz: 10
sequencer:
  active_mode: guided
  primary_gates: 2
  secondary_gates: 1
  straight_speed: 0.4
gates:
  - { heading_deg: 90, distance_after_gate: 0.8, zigzag: true, zigzag_leg_distance: 0.5 }
  - { heading_deg: -45, distance_after_gate: 1.5, height_after_gate: -1 }
output:
  encoding: msgpack
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, 10.0, cfg.Hz)
	assert.Equal(t, AutopilotGuided, cfg.Sequencer.ActiveMode)
	assert.Equal(t, 2, cfg.Sequencer.PrimaryGates)
	assert.Equal(t, 1, cfg.Sequencer.SecondaryGates)
	assert.Equal(t, 0.4, cfg.Sequencer.StraightSpeed)
	assert.Equal(t, EncodingMsgpack, cfg.Output.Encoding)

	// Unset fields take the defaults.
	assert.Equal(t, 3.0, cfg.Sequencer.LostThreshold)
	assert.Equal(t, 1.2, cfg.Sequencer.SafetyMargin)
	assert.Equal(t, 2048, cfg.Live.ReadBuffer)
	assert.Equal(t, "info", cfg.Log.Level)

	gates, err := cfg.GateTable()
	require.NoError(t, err)
	require.Equal(t, 2, gates.Len())
	g0, _ := gates.Get(0)
	assert.InDelta(t, math.Pi/2, g0.HeadingDelta, 1e-12)
	assert.True(t, g0.ZigzagEnabled)
	g1, _ := gates.Get(1)
	assert.InDelta(t, -math.Pi/4, g1.HeadingDelta, 1e-12)
	assert.Equal(t, -1.0, g1.HeightAfterGate)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("RACE_SEQUENCER_STRAIGHT_SPEED", "0.8")
	t.Setenv("RACE_HZ", "50")

	cfg, err := LoadConfig(writeConfig(t, testConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Sequencer.StraightSpeed)
	assert.Equal(t, 50.0, cfg.Hz)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "too few gates",
			body: "sequencer:\n  primary_gates: 3\ngates:\n  - { distance_after_gate: 1 }\n  - { distance_after_gate: 1 }\n",
		},
		{
			name: "abort above lost",
			body: "sequencer:\n  abort_threshold: 4\ngates:\n  - {}\n  - {}\n",
		},
		{
			name: "unit safety margin",
			body: "sequencer:\n  safety_margin: 1\ngates:\n  - {}\n  - {}\n",
		},
		{
			name: "inverted sweep",
			body: "sequencer:\n  sweep_left: 1\n  sweep_right: -1\ngates:\n  - {}\n  - {}\n",
		},
		{
			name: "unknown encoding",
			body: "output:\n  encoding: protobuf\ngates:\n  - {}\n  - {}\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoadConfigZeroOverridesDefault(t *testing.T) {
	body := "sequencer:\n  active_mode: KILL\n  primary_gates: 1\n  secondary_gates: 0\n" +
		"  sweep_left: 0\n  sweep_right: 0\ngates:\n  - {}\n"
	cfg, err := LoadConfig(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, AutopilotKill, cfg.Sequencer.ActiveMode)
	assert.Equal(t, 0, cfg.Sequencer.SecondaryGates)
	assert.Equal(t, 0.0, cfg.Sequencer.SweepLeft)
	assert.Equal(t, 0.0, cfg.Sequencer.SweepRight)
	assert.Equal(t, 1, cfg.Sequencer.RequiredGates())
}

func TestDefaultAppConfig(t *testing.T) {
	cfg := DefaultAppConfig()
	assert.Equal(t, 20.0, cfg.Hz)
	assert.Equal(t, 0.5, cfg.Live.StaleAfter)
	assert.Equal(t, EncodingCSV, cfg.Output.Encoding)
	assert.Empty(t, cfg.Gates)

	seq := DefaultSequencerConfig()
	require.NoError(t, seq.Validate())
	assert.Equal(t, AutopilotModule, seq.ActiveMode)
	assert.Equal(t, 2, seq.SecondaryGates)
	assert.Equal(t, -0.5, seq.SweepLeft)
	assert.Equal(t, 0.5, seq.SweepRight)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSampleConfigIsValid(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Sequencer.PrimaryGates)
	assert.Equal(t, AutopilotModule, cfg.Sequencer.ActiveMode)
}

func TestParseAutopilotMode(t *testing.T) {
	for in, want := range map[string]AutopilotMode{
		"KILL":   AutopilotKill,
		"nav":    AutopilotNav,
		" 3 ":    AutopilotGuided,
		"Module": AutopilotModule,
	} {
		got, err := ParseAutopilotMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseAutopilotMode("manual")
	assert.Error(t, err)
}
