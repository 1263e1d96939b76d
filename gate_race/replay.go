package gate_race

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// ReplaySummary reports the outcome of a replay.
type ReplaySummary struct {
	Ticks int
	Final RaceState
}

// Replay feeds recorded ticks through a fresh sequencer and writes one line per tick to w.
//
// Each input line uses the live packet format with the leading timestamp.
// Blank lines and lines starting with '#' are skipped.
func Replay(r io.Reader, w io.Writer, cfg AppConfig, logger *zap.Logger) (ReplaySummary, error) {
	var sum ReplaySummary

	gates, err := cfg.GateTable()
	if err != nil {
		return sum, err
	}
	clock := NewStateClock()
	seq, err := NewSequencer(cfg.Sequencer, gates, clock, logger)
	if err != nil {
		return sum, err
	}

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		tk, hasT, err := ParseTickCSV([]byte(text))
		if err != nil {
			return sum, fmt.Errorf("line %d: %w", line, err)
		}
		if !hasT {
			return sum, fmt.Errorf("line %d: replay input needs a timestamp", line)
		}

		clock.Update(tk.T, tk.Perception.GateDetected)
		cmd, err := seq.Run(tk)
		if err != nil {
			return sum, fmt.Errorf("line %d: %w", line, err)
		}
		sum.Ticks++

		st := seq.State()
		if _, err := fmt.Fprintf(w, "%8.3f %-8s %-18s %-20s %-16s gates=%d/%d\n",
			tk.T, tk.Mode, st.Phase, st.Lower, cmd.Primitive, st.GatesPrimary, st.GatesSecondary); err != nil {
			return sum, err
		}
	}
	if err := sc.Err(); err != nil {
		return sum, err
	}

	sum.Final = seq.State()
	return sum, nil
}
