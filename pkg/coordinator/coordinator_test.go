package coordinator

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/entrainlab/go-wavemind/pkg/emotion"
	"github.com/entrainlab/go-wavemind/pkg/evaluator"
	"github.com/entrainlab/go-wavemind/pkg/wave"
)

func fastSettings() Settings {
	s := DefaultSettings()
	s.SampleInterval = 5 * time.Millisecond
	s.SmoothingHalfLife = 10 * time.Millisecond
	return s
}

func testProfile() evaluator.Profile {
	return evaluator.Profile{
		Name:               "calm",
		Targets:            [wave.BandCount]float64{0.1, 0.2, 0.6, 0.6, 0.2},
		Tolerances:         [wave.BandCount]float64{0.2, 0.2, 0.2, 0.2, 0.2},
		Weights:            [wave.BandCount]float64{1, 1, 1, 1, 1},
		MinStimulationTime: 50 * time.Millisecond,
		RecoveryTime:       50 * time.Millisecond,
		InstabilityRate:    0.5,
	}
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	c, err := New(fastSettings())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(c.Shutdown)
	return c
}

func TestSettingsValidate(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero interval", func(s *Settings) { s.SampleInterval = 0 }},
		{"zero half-life", func(s *Settings) { s.SmoothingHalfLife = 0 }},
		{"threshold above one", func(s *Settings) { s.SuccessThreshold = 1.2 }},
		{"overload above success", func(s *Settings) { s.OverloadThreshold = 0.9 }},
		{"negative recovery rate", func(s *Settings) { s.InstabilityRecoveryRate = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			tc.mutate(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalidSettings) {
				t.Errorf("expected ErrInvalidSettings, got %v", err)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	c := newTestCoordinator(t)

	if err := c.Register("a", testProfile()); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := c.Register("a", testProfile()); !errors.Is(err, ErrActorRegistered) {
		t.Errorf("duplicate register: err = %v, want ErrActorRegistered", err)
	}

	bad := testProfile()
	bad.Tolerances[0] = 0
	if err := c.Register("b", bad); !errors.Is(err, evaluator.ErrInvalidProfile) {
		t.Errorf("invalid profile: err = %v, want ErrInvalidProfile", err)
	}
}

func TestActivate_UnknownActor(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.Register("a", testProfile()); err != nil {
		t.Fatal(err)
	}
	if err := c.Activate("a"); err != nil {
		t.Fatal(err)
	}

	if err := c.Activate("ghost"); !errors.Is(err, ErrActorNotFound) {
		t.Fatalf("err = %v, want ErrActorNotFound", err)
	}

	// No side effects: "a" must still be active.
	if id, ok := c.ActiveID(); !ok || id != "a" {
		t.Errorf("active = (%q, %v), want (a, true)", id, ok)
	}
}

func TestActivate_SameActorIsNoOp(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.Register("a", testProfile()); err != nil {
		t.Fatal(err)
	}

	if err := c.Activate("a"); err != nil {
		t.Fatal(err)
	}
	if err := c.Activate("a"); err != nil {
		t.Fatalf("re-activating the active actor failed: %v", err)
	}
}

func TestSetSample_RoutesToActiveOnly(t *testing.T) {
	c := newTestCoordinator(t)
	for _, id := range []string{"a", "b"} {
		if err := c.Register(id, testProfile()); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Activate("a"); err != nil {
		t.Fatal(err)
	}

	target := []float64{0.1, 0.2, 0.6, 0.6, 0.2}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.SetSample(target)
		ta, err := c.Telemetry("a")
		if err != nil {
			t.Fatal(err)
		}
		if ta.SmoothedScore > 0.5 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	ta, _ := c.Telemetry("a")
	tb, _ := c.Telemetry("b")
	if ta.SmoothedScore <= 0 {
		t.Errorf("active actor never scored the sample (smoothed %v)", ta.SmoothedScore)
	}
	if tb.SmoothedScore != 0 || tb.RawScore != 0 {
		t.Errorf("inactive actor received samples: smoothed %v raw %v", tb.SmoothedScore, tb.RawScore)
	}
	if !ta.Active || tb.Active {
		t.Errorf("active flags wrong: a=%v b=%v", ta.Active, tb.Active)
	}
}

func TestActivate_SwitchStopsPreviousLoop(t *testing.T) {
	c := newTestCoordinator(t)
	for _, id := range []string{"a", "b"} {
		if err := c.Register(id, testProfile()); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Activate("a"); err != nil {
		t.Fatal(err)
	}

	c.SetSample([]float64{0.1, 0.2, 0.6, 0.6, 0.2})
	time.Sleep(30 * time.Millisecond)

	if err := c.Activate("b"); err != nil {
		t.Fatal(err)
	}

	// A disengaged: its evaluator was reset and must stay untouched
	// while B's loop scores the stream.
	ta, _ := c.Telemetry("a")
	if ta.SmoothedScore != 0 {
		t.Fatalf("a's score not reset on handoff: %v", ta.SmoothedScore)
	}

	time.Sleep(50 * time.Millisecond)
	ta, _ = c.Telemetry("a")
	tb, _ := c.Telemetry("b")
	if ta.SmoothedScore != 0 {
		t.Errorf("a ticked after being deactivated (smoothed %v)", ta.SmoothedScore)
	}
	if tb.SmoothedScore <= 0 {
		t.Errorf("b never ticked after activation")
	}
}

func TestDeactivate(t *testing.T) {
	c := newTestCoordinator(t)
	c.Deactivate() // no-op when nothing is active

	if err := c.Register("a", testProfile()); err != nil {
		t.Fatal(err)
	}
	if err := c.Activate("a"); err != nil {
		t.Fatal(err)
	}
	c.SetSample([]float64{0.1, 0.2, 0.6, 0.6, 0.2})
	time.Sleep(30 * time.Millisecond)

	c.Deactivate()

	if _, ok := c.ActiveID(); ok {
		t.Error("active slot not cleared")
	}
	ta, _ := c.Telemetry("a")
	if ta.SmoothedScore != 0 {
		t.Errorf("score not reset on deactivate: %v", ta.SmoothedScore)
	}
}

func TestUnregister(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.Register("a", testProfile()); err != nil {
		t.Fatal(err)
	}
	if err := c.Activate("a"); err != nil {
		t.Fatal(err)
	}

	c.Unregister("a")

	if _, ok := c.ActiveID(); ok {
		t.Error("unregistering the active actor did not deactivate it")
	}
	if _, err := c.Telemetry("a"); !errors.Is(err, ErrActorNotFound) {
		t.Errorf("telemetry after unregister: err = %v, want ErrActorNotFound", err)
	}

	c.Unregister("ghost") // total operation, no error
}

func TestSinksReceiveTransitions(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	sink := SinkFunc(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	c, err := New(fastSettings(), sink)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Shutdown)

	if err := c.Register("a", testProfile()); err != nil {
		t.Fatal(err)
	}
	if err := c.StartStimulation("a"); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("observed %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.ActorID != "a" || ev.From != emotion.Idle || ev.To != emotion.BeingStimulated {
		t.Errorf("event = %+v, want a: idle -> being_stimulated", ev)
	}
	if ev.FromName != "idle" || ev.ToName != "being_stimulated" {
		t.Errorf("event names = %q -> %q", ev.FromName, ev.ToName)
	}
}

func TestStimulationControls_UnknownActor(t *testing.T) {
	c := newTestCoordinator(t)

	if err := c.StartStimulation("x"); !errors.Is(err, ErrActorNotFound) {
		t.Errorf("StartStimulation: %v", err)
	}
	if err := c.StopStimulation("x"); !errors.Is(err, ErrActorNotFound) {
		t.Errorf("StopStimulation: %v", err)
	}
	if err := c.ResetActor("x"); !errors.Is(err, ErrActorNotFound) {
		t.Errorf("ResetActor: %v", err)
	}
	if err := c.SetObedience("x", 0.5); !errors.Is(err, ErrActorNotFound) {
		t.Errorf("SetObedience: %v", err)
	}
}

func TestObedienceDrivesMetric(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.Register("a", testProfile()); err != nil {
		t.Fatal(err)
	}
	if err := c.SetObedience("a", 0.42); err != nil {
		t.Fatal(err)
	}
	if err := c.Activate("a"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		ta, err := c.Telemetry("a")
		if err != nil {
			t.Fatal(err)
		}
		if ta.Metric == 0.42 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	ta, _ := c.Telemetry("a")
	t.Errorf("metric = %v, want external obedience 0.42", ta.Metric)
}

func TestActors_SortedSnapshot(t *testing.T) {
	c := newTestCoordinator(t)
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		if err := c.Register(id, testProfile()); err != nil {
			t.Fatal(err)
		}
	}

	actors := c.Actors()
	if len(actors) != 3 {
		t.Fatalf("got %d actors, want 3", len(actors))
	}
	want := []string{"alpha", "bravo", "charlie"}
	for i, w := range want {
		if actors[i].ActorID != w {
			t.Errorf("actors[%d] = %q, want %q", i, actors[i].ActorID, w)
		}
		if actors[i].State != "idle" {
			t.Errorf("actors[%d].State = %q, want idle", i, actors[i].State)
		}
		if actors[i].Profile != "calm" {
			t.Errorf("actors[%d].Profile = %q, want calm", i, actors[i].Profile)
		}
	}
}
