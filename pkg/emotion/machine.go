package emotion

import (
	"math"
	"sync"
	"time"
)

// Config holds the shared thresholds and rates the machine runs with.
// Thresholds compare against the metric in [0,1]; OverloadThreshold must
// sit below SuccessThreshold so a neutral band exists between them.
type Config struct {
	// SuccessThreshold is the metric level counted as a good signal.
	SuccessThreshold float64

	// OverloadThreshold is the metric level at which instability grows.
	OverloadThreshold float64

	// FailThreshold is the instability level that triggers CriticalFailure.
	FailThreshold float64

	// InstabilityRecoveryRate is how fast instability drains per second
	// while the metric holds above the success threshold.
	InstabilityRecoveryRate float64

	// MinStimulationTime gates the BeingStimulated -> Stabilized transition.
	MinStimulationTime time.Duration

	// RecoveryTime is how long the Recovering state lasts.
	RecoveryTime time.Duration

	// InstabilityRate scales instability growth under an overloading metric.
	InstabilityRate float64

	// BaselineInstability is the level Reset returns the accumulator to.
	BaselineInstability float64
}

// DefaultConfig returns the tuning used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		SuccessThreshold:        0.8,
		OverloadThreshold:       0.2,
		FailThreshold:           0.9,
		InstabilityRecoveryRate: 0.05,
		MinStimulationTime:      2 * time.Second,
		RecoveryTime:            3 * time.Second,
		InstabilityRate:         0.5,
		BaselineInstability:     0,
	}
}

// Agitation shown while stimulation is in progress is a fraction of raw
// instability; full instability only reads through once agitated.
const stimulatedAgitationScale = 0.5

// TransitionFunc observes a state change. Callbacks run synchronously on
// the goroutine that triggered the transition, after machine state has
// settled, so they may read the machine freely.
type TransitionFunc func(old, next State)

// Machine is one actor's emotional state machine. A single writer drives
// Update; the mutex exists so telemetry reads from other goroutines see a
// consistent snapshot, not to serialize writers.
type Machine struct {
	cfg Config

	mu            sync.RWMutex
	state         State
	stateTime     float64 // seconds in current state
	instability   float64
	obedienceMult float64
	lastMetric    float64

	cbMu      sync.Mutex
	callbacks map[int]TransitionFunc
	nextCB    int
}

// NewMachine creates a machine in Idle with instability at the baseline.
func NewMachine(cfg Config) *Machine {
	return &Machine{
		cfg:           cfg,
		state:         Idle,
		instability:   clamp01(cfg.BaselineInstability),
		obedienceMult: 1,
		callbacks:     make(map[int]TransitionFunc),
	}
}

// OnTransition registers a callback for state changes and returns a
// function that removes it. Always unregister on teardown.
func (m *Machine) OnTransition(fn TransitionFunc) (remove func()) {
	m.cbMu.Lock()
	id := m.nextCB
	m.nextCB++
	m.callbacks[id] = fn
	m.cbMu.Unlock()

	return func() {
		m.cbMu.Lock()
		delete(m.callbacks, id)
		m.cbMu.Unlock()
	}
}

// StartStimulation begins a session. Only valid from Idle; calling it in
// any other state is a no-op returning ErrNotIdle.
func (m *Machine) StartStimulation() error {
	m.mu.Lock()
	if m.state != Idle {
		m.mu.Unlock()
		return ErrNotIdle
	}
	old := m.enter(BeingStimulated)
	m.mu.Unlock()

	m.emit(old, BeingStimulated)
	return nil
}

// StopStimulation ends a session early. It only acts from BeingStimulated
// or Agitated; anywhere else it is a no-op.
func (m *Machine) StopStimulation() {
	m.mu.Lock()
	if m.state != BeingStimulated && m.state != Agitated {
		m.mu.Unlock()
		return
	}
	old := m.enter(Idle)
	m.mu.Unlock()

	m.emit(old, Idle)
}

// Reset forces the machine back to Idle with instability at the baseline.
// This is the only way out of CriticalFailure.
func (m *Machine) Reset() {
	m.mu.Lock()
	old := m.state
	m.enter(Idle)
	m.instability = clamp01(m.cfg.BaselineInstability)
	m.lastMetric = 0
	m.mu.Unlock()

	if old != Idle {
		m.emit(old, Idle)
	}
}

// SetObedienceMultiplier scales how fast instability grows under an
// overloading metric. It deliberately does not touch the recovery rate.
func (m *Machine) SetObedienceMultiplier(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		v = 1
	}
	m.mu.Lock()
	m.obedienceMult = v
	m.mu.Unlock()
}

// Update advances the machine by dt seconds with the given metric.
// Instability dynamics run every call regardless of state; at most one
// transition fires per call. Returns the state after the update.
func (m *Machine) Update(metric, dt float64) State {
	if math.IsNaN(metric) || math.IsInf(metric, 0) {
		metric = 0
	}
	metric = clamp01(metric)
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		dt = 0
	}

	m.mu.Lock()
	m.stateTime += dt
	m.lastMetric = metric

	if metric <= m.cfg.OverloadThreshold {
		m.instability += (m.cfg.OverloadThreshold - metric) * m.cfg.InstabilityRate * m.obedienceMult * dt
	} else if metric >= m.cfg.SuccessThreshold && m.state != CriticalFailure {
		m.instability -= m.cfg.InstabilityRecoveryRate * dt
	}
	m.instability = clamp01(m.instability)

	next, transitioned := m.nextState(metric)
	old := m.state
	if transitioned {
		m.enter(next)
	}
	state := m.state
	m.mu.Unlock()

	if transitioned {
		m.emit(old, next)
	}
	return state
}

// nextState evaluates the transition table for the current state.
// Caller holds the write lock.
func (m *Machine) nextState(metric float64) (State, bool) {
	switch m.state {
	case BeingStimulated:
		if m.instability >= m.cfg.FailThreshold {
			return CriticalFailure, true
		}
		if metric >= m.cfg.SuccessThreshold && m.stateTime >= m.cfg.MinStimulationTime.Seconds() {
			return Stabilized, true
		}
		if metric <= m.cfg.OverloadThreshold {
			return Agitated, true
		}

	case Stabilized:
		if metric < m.cfg.SuccessThreshold {
			return BeingStimulated, true
		}

	case Agitated:
		if m.instability >= m.cfg.FailThreshold {
			return CriticalFailure, true
		}
		if metric >= m.cfg.SuccessThreshold {
			return Recovering, true
		}

	case Recovering:
		if m.stateTime >= m.cfg.RecoveryTime.Seconds() {
			if metric >= m.cfg.SuccessThreshold {
				return Stabilized, true
			}
			return Idle, true
		}
	}
	// Idle and CriticalFailure never transition autonomously.
	return m.state, false
}

// enter switches state and zeroes the state clock. Caller holds the lock.
// Returns the previous state.
func (m *Machine) enter(s State) State {
	old := m.state
	m.state = s
	m.stateTime = 0
	return old
}

// emit fires transition callbacks outside the state lock.
func (m *Machine) emit(old, next State) {
	m.cbMu.Lock()
	fns := make([]TransitionFunc, 0, len(m.callbacks))
	for _, fn := range m.callbacks {
		fns = append(fns, fn)
	}
	m.cbMu.Unlock()

	for _, fn := range fns {
		fn(old, next)
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// TimeInState returns how long the machine has been in its current state.
func (m *Machine) TimeInState() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.stateTime * float64(time.Second))
}

// Instability returns the bounded [0,1] stress accumulator.
func (m *Machine) Instability() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.instability
}

// LastMetric returns the metric supplied to the most recent Update.
func (m *Machine) LastMetric() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastMetric
}

// ObedienceMultiplier returns the current growth scale factor.
func (m *Machine) ObedienceMultiplier() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.obedienceMult
}

// AgitationLevel is a presentation-only view of how distressed the actor
// looks in its current state. It carries no transition logic.
func (m *Machine) AgitationLevel() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch m.state {
	case BeingStimulated:
		return clamp01(m.instability * stimulatedAgitationScale)
	case Agitated:
		return clamp01(m.instability)
	case CriticalFailure:
		return 1
	case Recovering:
		rt := m.cfg.RecoveryTime.Seconds()
		if rt <= 0 {
			return 0
		}
		return clamp01(0.5 * (1 - m.stateTime/rt))
	default: // Idle, Stabilized
		return 0
	}
}

// ComposureLevel is the complement of AgitationLevel.
func (m *Machine) ComposureLevel() float64 {
	return 1 - m.AgitationLevel()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
