package gate_race

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// RunLive starts the UDP-to-UDP control loop and blocks until ctx is done or the sequencer faults.
func RunLive(ctx context.Context, cfg AppConfig, logger *zap.Logger) error {
	if cfg.Hz <= 0 {
		return fmt.Errorf("hz must be > 0")
	}
	if cfg.Live.UDPAddr == "" {
		return fmt.Errorf("live.udp_addr must be set")
	}

	gates, err := cfg.GateTable()
	if err != nil {
		return err
	}
	clock := NewStateClock()
	seq, err := NewSequencer(cfg.Sequencer, gates, clock, logger)
	if err != nil {
		return err
	}
	sender, err := NewOutputSender(cfg.Output)
	if err != nil {
		return err
	}
	defer func() {
		_ = sender.Close()
	}()

	addr, err := net.ResolveUDPAddr("udp", cfg.Live.UDPAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}

	store := &liveStore{}
	metrics := NewMetrics()
	published := &StateStore{}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listenUDP(ctx, conn, cfg.Live.ReadBuffer, store, logger)
	})
	if cfg.Telemetry.Enabled {
		srv := NewTelemetryServer(cfg.Telemetry.Addr, metrics, published, logger)
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}
	g.Go(func() error {
		loop := &controlLoop{
			seq:        seq,
			clock:      clock,
			store:      store,
			sender:     sender,
			metrics:    metrics,
			published:  published,
			log:        logger.Named("live"),
			staleAfter: cfg.Live.StaleAfter,
		}
		return loop.run(ctx, cfg.Hz)
	})
	return g.Wait()
}

type controlLoop struct {
	seq        *Sequencer
	clock      *StateClock
	store      *liveStore
	sender     *OutputSender
	metrics    *Metrics
	published  *StateStore
	log        *zap.Logger
	staleAfter float64

	lastSeq uint64
	last    Tick
	freshT  float64
}

// run ticks the sequencer at hz until ctx is done.
func (l *controlLoop) run(ctx context.Context, hz float64) error {
	ticker := time.NewTicker(time.Duration(float64(time.Second) / hz))
	defer ticker.Stop()
	t0 := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := l.step(now.Sub(t0).Seconds()); err != nil {
				return err
			}
		}
	}
}

// step runs one tick at loop time simT.
//
// The loop clock is the only time base; packet timestamps are ignored here.
// Without a fresh packet the last perception is flown for up to staleAfter
// seconds, after which it is dropped and the sequencer sees no gate.
func (l *controlLoop) step(simT float64) error {
	tk, seq := l.store.Snapshot()
	switch {
	case seq != l.lastSeq:
		l.lastSeq = seq
		l.last = tk
		l.freshT = simT
	case simT-l.freshT > l.staleAfter && l.last.Perception != (PerceptionSnapshot{}):
		l.log.Debug("perception stale, dropping it",
			zap.Float64("t", simT),
			zap.Float64("age", simT-l.freshT))
		l.last.Perception = PerceptionSnapshot{}
	}

	l.clock.Update(simT, l.last.Perception.GateDetected)
	cmd, err := l.seq.Run(Tick{T: simT, Mode: l.last.Mode, Perception: l.last.Perception})
	if err != nil {
		return err
	}
	if cmd.Primitive != PrimitiveNone {
		if err := l.sender.Send(cmd); err != nil {
			l.log.Warn("send command", zap.Error(err))
		}
	}

	tel := l.seq.Telemetry()
	l.metrics.Observe(tel)
	l.published.Publish(tel)
	return nil
}

// liveStore holds the latest decoded packet and a count of packets received.
type liveStore struct {
	mu   sync.RWMutex
	last Tick
	seq  uint64
}

// Update stores the latest tick input and advances the sequence counter.
func (s *liveStore) Update(tk Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = tk
	s.seq++
}

// Snapshot returns the most recent tick input and its sequence number.
func (s *liveStore) Snapshot() (Tick, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.seq
}

// listenUDP reads perception packets into store until ctx is done.
func listenUDP(ctx context.Context, conn *net.UDPConn, bufSize int, store *liveStore, logger *zap.Logger) error {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	if bufSize <= 0 {
		bufSize = 2048
	}
	warn := rate.NewLimiter(rate.Every(time.Second), 1)
	buf := make([]byte, bufSize)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			continue
		}
		tk, _, err := ParseTickCSV(buf[:n])
		if err != nil {
			if warn.Allow() {
				logger.Warn("dropping malformed perception packet", zap.Error(err))
			}
			continue
		}
		store.Update(tk)
	}
}

// tickColumns names the fields of a perception packet after the optional timestamp.
var tickColumns = [...]string{"mode", "detected", "ready", "turning", "lateral", "vertical", "longitudinal", "altitude_achieved"}

// ParseTickCSV parses
// "[t,]mode,detected,ready,turning,lateral,vertical,longitudinal,altitude_achieved"
// and reports whether the leading timestamp was present.
func ParseTickCSV(b []byte) (Tick, bool, error) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return Tick{}, false, errors.New("empty payload")
	}

	f := tickFields(strings.Split(s, ","))
	hasT := len(f) == len(tickColumns)+1
	if !hasT && len(f) != len(tickColumns) {
		return Tick{}, false, fmt.Errorf("expected %d or %d fields, got %d", len(tickColumns), len(tickColumns)+1, len(f))
	}

	var tk Tick
	var err error
	if hasT {
		if tk.T, err = f.float(0, "t"); err != nil {
			return Tick{}, false, err
		}
		f = f[1:]
	}
	if tk.Mode, err = ParseAutopilotMode(f[0]); err != nil {
		return Tick{}, false, err
	}

	p := &tk.Perception
	for i, dst := range []*bool{&p.GateDetected, &p.ReadyToPassThrough, &p.TurningActive} {
		if *dst, err = f.flag(1 + i); err != nil {
			return Tick{}, false, err
		}
	}
	for i, dst := range []*float64{&p.LateralOffset, &p.VerticalOffset, &p.LongitudinalOffset} {
		if *dst, err = f.float(4+i, tickColumns[4+i]); err != nil {
			return Tick{}, false, err
		}
	}
	if p.AltitudeAchieved, err = f.flag(7); err != nil {
		return Tick{}, false, err
	}
	return tk, hasT, nil
}

// tickFields is a split perception packet.
type tickFields []string

func (f tickFields) float(i int, name string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(f[i]), 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", name, err)
	}
	return v, nil
}

// flag accepts strconv.ParseBool spellings, yes/no, y/n, and any number (non-zero is true).
func (f tickFields) flag(i int) (bool, error) {
	raw := strings.ToLower(strings.TrimSpace(f[i]))
	if v, err := strconv.ParseBool(raw); err == nil {
		return v, nil
	}
	switch raw {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	v, err := f.float(i, tickColumns[i])
	return v != 0, err
}
