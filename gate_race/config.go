package gate_race

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables that override file values.
const EnvPrefix = "RACE_"

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// SequencerConfig holds counts, durations (seconds), speeds and bounds of the race sequencer.
type SequencerConfig struct {
	ActiveMode     AutopilotMode `koanf:"active_mode"`
	PrimaryGates   int           `koanf:"primary_gates"`
	SecondaryGates int           `koanf:"secondary_gates"`
	SkipApproach   bool          `koanf:"skip_approach"`

	MinDwell         float64 `koanf:"min_dwell"`
	LostThreshold    float64 `koanf:"lost_threshold"`
	AbortThreshold   float64 `koanf:"abort_threshold"`
	ConfirmThreshold float64 `koanf:"confirm_threshold"`
	HoverDwell       float64 `koanf:"hover_dwell"`

	StraightSpeed float64 `koanf:"straight_speed"`
	SafetyMargin  float64 `koanf:"safety_margin"`

	SweepLeft     float64 `koanf:"sweep_left"`
	SweepRight    float64 `koanf:"sweep_right"`
	SweepDuration float64 `koanf:"sweep_duration"`

	TakeOffAltitude  float64 `koanf:"take_off_altitude"`
	ApproachSpeed    float64 `koanf:"approach_speed"`
	ApproachDuration float64 `koanf:"approach_duration"`
	ApproachTurnDeg  float64 `koanf:"approach_turn_deg"`
}

// ApproachTurn returns the approach turn in radians.
func (c SequencerConfig) ApproachTurn() float64 {
	return c.ApproachTurnDeg / 180 * math.Pi
}

// GateConfig is the file form of GateParams; headings are in degrees.
type GateConfig struct {
	HeadingDeg        float64 `koanf:"heading_deg"`
	DistanceAfterGate float64 `koanf:"distance_after_gate"`
	HeightAfterGate   float64 `koanf:"height_after_gate"`
	Zigzag            bool    `koanf:"zigzag"`
	ZigzagLegDistance float64 `koanf:"zigzag_leg_distance"`
}

// Params converts the file form into a GateParams record.
func (g GateConfig) Params() GateParams {
	return GateParams{
		HeadingDelta:      g.HeadingDeg / 180 * math.Pi,
		DistanceAfterGate: g.DistanceAfterGate,
		HeightAfterGate:   g.HeightAfterGate,
		ZigzagEnabled:     g.Zigzag,
		ZigzagLegDistance: g.ZigzagLegDistance,
	}
}

// LiveConfig controls UDP input settings for perception snapshots.
type LiveConfig struct {
	UDPAddr    string `koanf:"udp_addr"`
	ReadBuffer int    `koanf:"read_buffer"`
	// StaleAfter is how long (s) the last perception is reused when no packet arrives.
	StaleAfter float64 `koanf:"stale_after"`
}

// OutputConfig controls UDP output settings for primitive commands.
type OutputConfig struct {
	UDPAddr  string `koanf:"udp_addr"`
	Encoding string `koanf:"encoding"`
}

// TelemetryConfig controls the HTTP endpoint serving metrics and state.
type TelemetryConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Enabled bool   `koanf:"enabled"`
	Level   string `koanf:"level"`
	File    string `koanf:"file"`
}

// AppConfig aggregates all configuration sections.
type AppConfig struct {
	Hz        float64         `koanf:"hz"`
	Sequencer SequencerConfig `koanf:"sequencer"`
	Gates     []GateConfig    `koanf:"gates"`
	Live      LiveConfig      `koanf:"live"`
	Output    OutputConfig    `koanf:"output"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Log       LogConfig       `koanf:"log"`
}

// GateTable builds the gate parameter table from the configured gates.
func (cfg AppConfig) GateTable() (*GateTable, error) {
	records := make([]GateParams, 0, len(cfg.Gates))
	for _, g := range cfg.Gates {
		records = append(records, g.Params())
	}
	return NewGateTable(records)
}

// defaultValues is the lowest config layer; the file and the environment override it.
// Sequencer values are the tuning flown at the competition.
var defaultValues = map[string]interface{}{
	"hz": 20.0,

	"sequencer.active_mode":       "MODULE",
	"sequencer.primary_gates":     0,
	"sequencer.secondary_gates":   2,
	"sequencer.skip_approach":     false,
	"sequencer.min_dwell":         1.0,
	"sequencer.lost_threshold":    3.0,
	"sequencer.abort_threshold":   0.5,
	"sequencer.confirm_threshold": 0.5,
	"sequencer.hover_dwell":       1.0,
	"sequencer.straight_speed":    0.5,
	"sequencer.safety_margin":     1.2,
	"sequencer.sweep_left":        -0.5,
	"sequencer.sweep_right":       0.5,
	"sequencer.sweep_duration":    3.0,
	"sequencer.take_off_altitude": 1.5,
	"sequencer.approach_speed":    0.5,
	"sequencer.approach_duration": 2.0,
	"sequencer.approach_turn_deg": 0.0,

	"live.read_buffer": 2048,
	"live.stale_after": 0.5,

	"output.encoding": EncodingCSV,

	"telemetry.enabled": false,
	"telemetry.addr":    "127.0.0.1:7070",

	"log.enabled": true,
	"log.level":   "info",
}

// newKoanf returns a koanf instance holding only the defaults layer.
func newKoanf() (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaultValues, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	return k, nil
}

// LoadConfig layers defaults, the YAML file at path and RACE_* environment
// overrides, in that order, then validates the result.
//
//	RACE_HZ                       -> hz
//	RACE_SEQUENCER_STRAIGHT_SPEED -> sequencer.straight_speed
//	RACE_LOG_LEVEL                -> log.level
func LoadConfig(path string) (AppConfig, error) {
	var cfg AppConfig
	k, err := newKoanf()
	if err != nil {
		return cfg, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return cfg, fmt.Errorf("load environment: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// envKey maps RACE_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// DefaultAppConfig returns the defaults layer alone, with no gates configured.
func DefaultAppConfig() AppConfig {
	var cfg AppConfig
	k, err := newKoanf()
	if err == nil {
		err = k.Unmarshal("", &cfg)
	}
	if err != nil {
		panic(fmt.Sprintf("gate_race: bad default config: %v", err))
	}
	return cfg
}

// DefaultSequencerConfig returns the default sequencer tuning.
func DefaultSequencerConfig() SequencerConfig {
	return DefaultAppConfig().Sequencer
}

// Validate checks the whole configuration.
func (cfg AppConfig) Validate() error {
	if cfg.Hz <= 0 {
		return fmt.Errorf("%w: hz must be > 0", ErrInvalidConfig)
	}
	if err := cfg.Sequencer.Validate(); err != nil {
		return err
	}
	if cfg.Live.ReadBuffer <= 0 {
		return fmt.Errorf("%w: live.read_buffer must be > 0", ErrInvalidConfig)
	}
	if cfg.Live.StaleAfter < 0 {
		return fmt.Errorf("%w: live.stale_after must be >= 0", ErrInvalidConfig)
	}
	if len(cfg.Gates) > MaxGates {
		return fmt.Errorf("%w: %d gates configured, capacity %d", ErrInvalidConfig, len(cfg.Gates), MaxGates)
	}
	if need := cfg.Sequencer.RequiredGates(); len(cfg.Gates) < need {
		return fmt.Errorf("%w: %d gates configured, %d required", ErrInvalidConfig, len(cfg.Gates), need)
	}
	switch cfg.Output.Encoding {
	case EncodingCSV, EncodingMsgpack:
	default:
		return fmt.Errorf("%w: unknown output encoding %q", ErrInvalidConfig, cfg.Output.Encoding)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, cfg.Log.Level)
	}
	return nil
}

// RequiredGates is the number of gate records the sequencer will index.
func (c SequencerConfig) RequiredGates() int {
	return max(c.PrimaryGates, c.SecondaryGates)
}

// Validate checks sequencer tuning for internal consistency.
func (c SequencerConfig) Validate() error {
	switch {
	case c.PrimaryGates < 0 || c.SecondaryGates < 0:
		return fmt.Errorf("%w: gate counts must be >= 0", ErrInvalidConfig)
	case c.RequiredGates() > MaxGates:
		return fmt.Errorf("%w: gate counts exceed capacity %d", ErrInvalidConfig, MaxGates)
	case c.MinDwell < 0 || c.HoverDwell < 0 || c.SweepDuration < 0 || c.ApproachDuration < 0:
		return fmt.Errorf("%w: durations must be >= 0", ErrInvalidConfig)
	case c.LostThreshold <= c.MinDwell:
		return fmt.Errorf("%w: lost_threshold must exceed min_dwell", ErrInvalidConfig)
	case c.AbortThreshold <= 0 || c.AbortThreshold >= c.LostThreshold:
		return fmt.Errorf("%w: abort_threshold must be in (0, lost_threshold)", ErrInvalidConfig)
	case c.ConfirmThreshold < 0:
		return fmt.Errorf("%w: confirm_threshold must be >= 0", ErrInvalidConfig)
	case c.StraightSpeed <= 0 || c.ApproachSpeed <= 0:
		return fmt.Errorf("%w: speeds must be > 0", ErrInvalidConfig)
	case c.SafetyMargin <= 1:
		return fmt.Errorf("%w: safety_margin must be > 1", ErrInvalidConfig)
	case c.SweepLeft > c.SweepRight:
		return fmt.Errorf("%w: sweep_left must not exceed sweep_right", ErrInvalidConfig)
	}
	return nil
}

// UnmarshalText allows modes to be loaded from names in YAML and environment variables.
func (m *AutopilotMode) UnmarshalText(b []byte) error {
	parsed, err := ParseAutopilotMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalText writes the mode name.
func (m AutopilotMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
