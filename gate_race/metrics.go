package gate_race

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/brunoga/deep"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics exposes the sequencer's display state as Prometheus series.
type Metrics struct {
	reg *prometheus.Registry

	phase          prometheus.Gauge
	lower          prometheus.Gauge
	primitive      prometheus.Gauge
	gatesPrimary   prometheus.Gauge
	gatesSecondary prometheus.Gauge
	straightTime   prometheus.Gauge
	detected       prometheus.Gauge
	lateral        prometheus.Gauge
	vertical       prometheus.Gauge
	transitions    *prometheus.CounterVec
	modeChanges    prometheus.Counter

	prev Telemetry
	seen bool
}

// NewMetrics registers all series on a private registry.
func NewMetrics() *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "race", Name: name, Help: help})
	}
	m := &Metrics{
		reg:            prometheus.NewRegistry(),
		phase:          gauge("phase", "Current upper phase."),
		lower:          gauge("lower_state", "Current lower state."),
		primitive:      gauge("primitive", "Primitive invoked on the latest tick."),
		gatesPrimary:   gauge("gates_primary", "Gates passed in the gate run."),
		gatesSecondary: gauge("gates_secondary", "Gates passed in the secondary pattern."),
		straightTime:   gauge("time_to_go_straight_seconds", "Planned straight leg through the gate."),
		detected:       gauge("gate_detected", "1 when the gate is detected."),
		lateral:        gauge("lateral_offset_meters", "Lateral offset to the gate."),
		vertical:       gauge("vertical_offset_meters", "Vertical offset to the gate."),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "race",
			Name:      "transitions_total",
			Help:      "Lower state transitions.",
		}, []string{"phase", "from", "to"}),
		modeChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "race",
			Name:      "mode_changes_total",
			Help:      "Autopilot mode changes, each of which resets the race.",
		}),
	}
	m.reg.MustRegister(m.phase, m.lower, m.primitive, m.gatesPrimary, m.gatesSecondary,
		m.straightTime, m.detected, m.lateral, m.vertical, m.transitions, m.modeChanges)
	return m
}

// Observe publishes cur and counts what changed since the previous call.
// The first observation only sets gauges. Not safe for concurrent use.
func (m *Metrics) Observe(cur Telemetry) {
	if m == nil {
		return
	}
	prev, seen := m.prev, m.seen
	m.prev, m.seen = cur, true
	st := cur.State
	m.phase.Set(float64(st.Phase))
	m.lower.Set(float64(st.Lower))
	m.primitive.Set(float64(cur.Command.Primitive))
	m.gatesPrimary.Set(float64(st.GatesPrimary))
	m.gatesSecondary.Set(float64(st.GatesSecondary))
	m.straightTime.Set(st.TimeToGoStraight)
	m.detected.Set(boolFloat(cur.Perception.GateDetected))
	m.lateral.Set(cur.Perception.LateralOffset)
	m.vertical.Set(cur.Perception.VerticalOffset)

	if !seen {
		return
	}
	if prev.Mode != cur.Mode {
		m.modeChanges.Inc()
	}
	if prev.State.Lower != st.Lower || prev.State.Phase != st.Phase {
		m.transitions.WithLabelValues(st.Phase.String(), prev.State.Lower.String(), st.Lower.String()).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// StateStore holds the latest published Telemetry for readers on other goroutines.
type StateStore struct {
	mu     sync.RWMutex
	latest Telemetry
	ok     bool
}

// Publish stores a deep copy of tel.
func (s *StateStore) Publish(tel Telemetry) {
	cp := deep.MustCopy(tel)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = cp
	s.ok = true
}

// Latest returns the most recent Telemetry and whether one was published.
func (s *StateStore) Latest() (Telemetry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.ok
}

// TelemetryServer serves /metrics and /state over HTTP.
type TelemetryServer struct {
	e    *echo.Echo
	addr string
	log  *zap.Logger
}

// NewTelemetryServer wires the HTTP routes.
func NewTelemetryServer(addr string, metrics *Metrics, store *StateStore, logger *zap.Logger) *TelemetryServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.GET("/state", func(c echo.Context) error {
		tel, ok := store.Latest()
		if !ok {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "no tick yet"})
		}
		return c.JSON(http.StatusOK, tel)
	})
	return &TelemetryServer{e: e, addr: addr, log: logger.Named("telemetry")}
}

// Handler exposes the router, mainly for tests.
func (ts *TelemetryServer) Handler() http.Handler {
	return ts.e
}

// Run serves until ctx is done.
func (ts *TelemetryServer) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		ts.log.Info("telemetry listening", zap.String("addr", ts.addr))
		errc <- ts.e.Start(ts.addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return ts.e.Shutdown(shutdownCtx)
	}
}
