package emotion

import (
	"math"
	"testing"
	"time"
)

func testConfig() Config {
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

func TestIdle_UpdateNeverTransitions(t *testing.T) {
	m := NewMachine(testConfig())

	for _, metric := range []float64{0, 0.1, 0.5, 0.9, 1} {
		for i := 0; i < 50; i++ {
			m.Update(metric, 0.1)
		}
		if m.State() != Idle {
			t.Fatalf("metric %v drove Idle to %v without StartStimulation", metric, m.State())
		}
	}
}

func TestStartStimulation(t *testing.T) {
	m := NewMachine(testConfig())

	if err := m.StartStimulation(); err != nil {
		t.Fatalf("StartStimulation from Idle failed: %v", err)
	}
	if m.State() != BeingStimulated {
		t.Fatalf("state = %v, want BeingStimulated", m.State())
	}

	if err := m.StartStimulation(); err != ErrNotIdle {
		t.Errorf("second StartStimulation: err = %v, want ErrNotIdle", err)
	}
	if m.State() != BeingStimulated {
		t.Errorf("lifecycle misuse changed state to %v", m.State())
	}
}

func TestStabilizeScenario(t *testing.T) {
	// Perfect signal every tick for longer than MinStimulationTime must
	// stabilize the actor without growing instability.
	m := NewMachine(testConfig())
	if err := m.StartStimulation(); err != nil {
		t.Fatal(err)
	}

	const dt = 0.1
	prevInstability := m.Instability()
	for i := 0; i < 25; i++ { // 2.5 simulated seconds
		m.Update(1.0, dt)
		if inst := m.Instability(); inst > prevInstability {
			t.Fatalf("tick %d: instability increased %v -> %v on a perfect signal", i, prevInstability, inst)
		} else {
			prevInstability = inst
		}
	}

	if m.State() != Stabilized {
		t.Fatalf("state after 2.5s of perfect signal = %v, want Stabilized", m.State())
	}
}

func TestStabilize_RespectsMinStimulationTime(t *testing.T) {
	m := NewMachine(testConfig())
	if err := m.StartStimulation(); err != nil {
		t.Fatal(err)
	}

	// 1.5 simulated seconds of perfect signal: below the 2s gate.
	for i := 0; i < 15; i++ {
		m.Update(1.0, 0.1)
	}
	if m.State() != BeingStimulated {
		t.Fatalf("stabilized after %v, before MinStimulationTime", m.TimeInState())
	}
}

func TestCriticalFailureScenario(t *testing.T) {
	// A dead signal drives instability up each tick until the actor fails,
	// and nothing short of Reset gets it back out.
	m := NewMachine(testConfig())
	if err := m.StartStimulation(); err != nil {
		t.Fatal(err)
	}

	const dt = 0.1
	prev := m.Instability()
	failed := false
	for i := 0; i < 200 && !failed; i++ {
		m.Update(0, dt)
		inst := m.Instability()
		if m.State() != CriticalFailure && inst <= prev {
			t.Fatalf("tick %d: instability did not grow on zero signal (%v -> %v)", i, prev, inst)
		}
		prev = inst
		failed = m.State() == CriticalFailure
	}
	if !failed {
		t.Fatal("zero signal never drove the machine to CriticalFailure")
	}

	// Perfect samples afterwards must not rescue it.
	for i := 0; i < 100; i++ {
		m.Update(1.0, dt)
	}
	if m.State() != CriticalFailure {
		t.Fatalf("CriticalFailure exited autonomously to %v", m.State())
	}

	m.Reset()
	if m.State() != Idle {
		t.Fatalf("Reset left state %v, want Idle", m.State())
	}
	if m.Instability() != 0 {
		t.Fatalf("Reset left instability %v, want baseline 0", m.Instability())
	}
}

func TestInstabilityStaysBounded(t *testing.T) {
	m := NewMachine(testConfig())
	if err := m.StartStimulation(); err != nil {
		t.Fatal(err)
	}

	metrics := []float64{0, 1, 0.5, math.NaN(), math.Inf(1), -3, 0, 0, 1, 0.2}
	for i := 0; i < 500; i++ {
		m.Update(metrics[i%len(metrics)], 10) // absurdly large dt
		if inst := m.Instability(); inst < 0 || inst > 1 {
			t.Fatalf("iteration %d: instability %v left [0,1]", i, inst)
		}
	}
}

func TestOverloadTransitionsToAgitated(t *testing.T) {
	m := NewMachine(testConfig())
	if err := m.StartStimulation(); err != nil {
		t.Fatal(err)
	}

	m.Update(0.1, 0.1)
	if m.State() != Agitated {
		t.Fatalf("state = %v, want Agitated on metric below overload threshold", m.State())
	}
}

func TestAgitatedRecoveryPath(t *testing.T) {
	m := NewMachine(testConfig())
	if err := m.StartStimulation(); err != nil {
		t.Fatal(err)
	}
	m.Update(0.1, 0.1) // -> Agitated

	m.Update(0.9, 0.1)
	if m.State() != Recovering {
		t.Fatalf("state = %v, want Recovering once metric recovers", m.State())
	}

	// Hold a good metric through the recovery window.
	for i := 0; i < 31; i++ {
		m.Update(0.9, 0.1)
	}
	if m.State() != Stabilized {
		t.Fatalf("state after recovery with good metric = %v, want Stabilized", m.State())
	}
}

func TestRecoveringFallsBackToIdle(t *testing.T) {
	m := NewMachine(testConfig())
	if err := m.StartStimulation(); err != nil {
		t.Fatal(err)
	}
	m.Update(0.1, 0.1) // -> Agitated
	m.Update(0.9, 0.1) // -> Recovering

	// Neutral metric through the recovery window: drops back to Idle.
	for i := 0; i < 31; i++ {
		m.Update(0.5, 0.1)
	}
	if m.State() != Idle {
		t.Fatalf("state after recovery with poor metric = %v, want Idle", m.State())
	}
}

func TestStabilizedRegresses(t *testing.T) {
	m := NewMachine(testConfig())
	if err := m.StartStimulation(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 25; i++ {
		m.Update(1.0, 0.1)
	}
	if m.State() != Stabilized {
		t.Fatalf("setup: state = %v, want Stabilized", m.State())
	}

	m.Update(0.5, 0.1)
	if m.State() != BeingStimulated {
		t.Fatalf("state = %v, want BeingStimulated after score dropped", m.State())
	}
}

func TestStopStimulation(t *testing.T) {
	m := NewMachine(testConfig())
	if err := m.StartStimulation(); err != nil {
		t.Fatal(err)
	}

	m.StopStimulation()
	if m.State() != Idle {
		t.Fatalf("state = %v, want Idle after StopStimulation", m.State())
	}

	// No-op from states outside BeingStimulated/Agitated.
	if err := m.StartStimulation(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 25; i++ {
		m.Update(1.0, 0.1)
	}
	m.StopStimulation()
	if m.State() != Stabilized {
		t.Fatalf("StopStimulation acted from Stabilized, state = %v", m.State())
	}
}

func TestObedienceMultiplier_GrowthOnly(t *testing.T) {
	cfg := testConfig()

	slow := NewMachine(cfg)
	fast := NewMachine(cfg)
	fast.SetObedienceMultiplier(2)

	if err := slow.StartStimulation(); err != nil {
		t.Fatal(err)
	}
	if err := fast.StartStimulation(); err != nil {
		t.Fatal(err)
	}

	slow.Update(0, 0.1)
	fast.Update(0, 0.1)

	if fast.Instability() <= slow.Instability() {
		t.Errorf("multiplier did not scale growth: fast %v <= slow %v",
			fast.Instability(), slow.Instability())
	}
	if got, want := fast.Instability(), 2*slow.Instability(); math.Abs(got-want) > 1e-9 {
		t.Errorf("fast instability = %v, want exactly 2x slow (%v)", got, want)
	}

	// Recovery is deliberately unscaled: both drain by the same amount.
	slowBefore, fastBefore := slow.Instability(), fast.Instability()
	slow.Update(1, 0.1)
	fast.Update(1, 0.1)
	slowDrain := slowBefore - slow.Instability()
	fastDrain := fastBefore - fast.Instability()
	if math.Abs(slowDrain-fastDrain) > 1e-9 {
		t.Errorf("multiplier leaked into recovery: drains %v vs %v", slowDrain, fastDrain)
	}
}

func TestTransitionCallbacks(t *testing.T) {
	m := NewMachine(testConfig())

	type change struct{ old, next State }
	var seen []change
	remove := m.OnTransition(func(old, next State) {
		seen = append(seen, change{old, next})
	})

	if err := m.StartStimulation(); err != nil {
		t.Fatal(err)
	}
	m.Update(0.1, 0.1) // -> Agitated

	want := []change{
		{Idle, BeingStimulated},
		{BeingStimulated, Agitated},
	}
	if len(seen) != len(want) {
		t.Fatalf("observed %d transitions, want %d: %v", len(seen), len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, seen[i], want[i])
		}
	}

	remove()
	m.Update(0.9, 0.1) // -> Recovering, no longer observed
	if len(seen) != len(want) {
		t.Errorf("callback fired after removal")
	}
}

func TestAgitationLevels(t *testing.T) {
	cfg := testConfig()
	cfg.BaselineInstability = 0.3
	m := NewMachine(cfg)

	if m.AgitationLevel() != 0 {
		t.Errorf("Idle agitation = %v, want 0", m.AgitationLevel())
	}
	if m.ComposureLevel() != 1 {
		t.Errorf("Idle composure = %v, want 1", m.ComposureLevel())
	}

	if err := m.StartStimulation(); err != nil {
		t.Fatal(err)
	}
	m.Update(0.5, 1) // neutral band: no growth, no transition
	inst := m.Instability()
	if inst != 0.3 {
		t.Fatalf("setup: instability = %v, want baseline 0.3", inst)
	}
	if got := m.AgitationLevel(); math.Abs(got-inst*stimulatedAgitationScale) > 1e-9 {
		t.Errorf("BeingStimulated agitation = %v, want scaled instability %v", got, inst*stimulatedAgitationScale)
	}

	m.Update(0, 0.5) // -> Agitated
	if got := m.AgitationLevel(); got != m.Instability() {
		t.Errorf("Agitated agitation = %v, want instability %v", got, m.Instability())
	}

	m.Update(0.9, 0.1) // -> Recovering
	if got := m.AgitationLevel(); got <= 0 || got > 0.5 {
		t.Errorf("Recovering agitation = %v, want in (0, 0.5]", got)
	}
	before := m.AgitationLevel()
	m.Update(0.9, 1)
	if after := m.AgitationLevel(); after >= before {
		t.Errorf("Recovering agitation did not decay: %v -> %v", before, after)
	}
}
