package gate_race

// Timing supplies the elapsed times the sequencer compares against its thresholds.
type Timing interface {
	// InState is the time since the current lower state was entered.
	InState() float64
	// DetectionAge is the time since the gate-detected flag last changed value.
	DetectionAge() float64
	// RestartState marks the current time as the entry time of a new lower state.
	RestartState()
	// ResetDetection marks the current time as the last detection flag change.
	ResetDetection()
}

// StateClock is a Timing driven by the tick timestamps of the caller.
//
// Update must be called once per tick, before the sequencer runs.
type StateClock struct {
	now          float64
	stateStart   float64
	changeT      float64
	lastDetected bool
	started      bool
}

// NewStateClock constructs a clock whose epoch is the first Update.
func NewStateClock() *StateClock {
	return &StateClock{}
}

// Update advances the clock to t and records the current detection flag.
func (c *StateClock) Update(t float64, detected bool) {
	if !c.started {
		c.started = true
		c.now = t
		c.stateStart = t
		c.changeT = t
		c.lastDetected = detected
		return
	}
	c.now = t
	if detected != c.lastDetected {
		c.lastDetected = detected
		c.changeT = t
	}
}

// Now returns the timestamp of the latest Update.
func (c *StateClock) Now() float64 {
	return c.now
}

// InState implements Timing.
func (c *StateClock) InState() float64 {
	return c.now - c.stateStart
}

// DetectionAge implements Timing.
func (c *StateClock) DetectionAge() float64 {
	return c.now - c.changeT
}

// RestartState implements Timing.
func (c *StateClock) RestartState() {
	c.stateStart = c.now
}

// ResetDetection implements Timing.
func (c *StateClock) ResetDetection() {
	c.changeT = c.now
}
