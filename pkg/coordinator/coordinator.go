// Package coordinator owns the single live input stream and decides which
// actor currently receives it.
//
// The coordinator holds the global "current" wave sample and at most one
// active actor. Activation changes stop the outgoing actor's evaluation
// loop — and wait for it — before the incoming actor's loop starts, so two
// loops never race on the same runtime state and no loop ever outlives its
// activation. Transition events from actor state machines are fanned out
// to registered sinks; the coordinator does not care what sinks do.
package coordinator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/entrainlab/go-wavemind/pkg/emotion"
	"github.com/entrainlab/go-wavemind/pkg/evaluator"
	"github.com/entrainlab/go-wavemind/pkg/scheduler"
	"github.com/entrainlab/go-wavemind/pkg/wave"
)

// Settings is the process-wide evaluation configuration shared by all
// actors. Per-actor tuning lives in evaluator.Profile.
type Settings struct {
	// SampleInterval is the evaluation tick period.
	SampleInterval time.Duration

	// SmoothingHalfLife controls the score EMA; the smoothing factor is
	// derived from it and SampleInterval so behavior is independent of
	// sampling frequency.
	SmoothingHalfLife time.Duration

	// SuccessThreshold and OverloadThreshold bound the neutral band the
	// metric moves in. Overload must sit below success.
	SuccessThreshold  float64
	OverloadThreshold float64

	// InstabilityFailThreshold is the instability level that tips an
	// actor into critical failure.
	InstabilityFailThreshold float64

	// InstabilityRecoveryRate is how fast instability drains per second
	// under a good metric.
	InstabilityRecoveryRate float64
}

// DefaultSettings returns the standard tuning.
func DefaultSettings() Settings {
	return Settings{
		SampleInterval:           100 * time.Millisecond,
		SmoothingHalfLife:        500 * time.Millisecond,
		SuccessThreshold:         0.8,
		OverloadThreshold:        0.2,
		InstabilityFailThreshold: 0.9,
		InstabilityRecoveryRate:  0.05,
	}
}

// Validate rejects degenerate settings at load time.
func (s Settings) Validate() error {
	if s.SampleInterval <= 0 {
		return fmt.Errorf("%w: sample interval %v must be positive", ErrInvalidSettings, s.SampleInterval)
	}
	if s.SmoothingHalfLife <= 0 {
		return fmt.Errorf("%w: smoothing half-life %v must be positive", ErrInvalidSettings, s.SmoothingHalfLife)
	}
	for name, v := range map[string]float64{
		"success threshold":          s.SuccessThreshold,
		"overload threshold":         s.OverloadThreshold,
		"instability fail threshold": s.InstabilityFailThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s %v outside [0,1]", ErrInvalidSettings, name, v)
		}
	}
	if s.OverloadThreshold >= s.SuccessThreshold {
		return fmt.Errorf("%w: overload threshold %v must be below success threshold %v",
			ErrInvalidSettings, s.OverloadThreshold, s.SuccessThreshold)
	}
	if s.InstabilityRecoveryRate < 0 {
		return fmt.Errorf("%w: negative instability recovery rate", ErrInvalidSettings)
	}
	return nil
}

// Event describes one state transition of an actor.
type Event struct {
	ActorID     string        `json:"actor_id"`
	From        emotion.State `json:"-"`
	To          emotion.State `json:"-"`
	FromName    string        `json:"from"`
	ToName      string        `json:"to"`
	Metric      float64       `json:"metric"`
	Instability float64       `json:"instability"`
	At          time.Time     `json:"at"`
}

// Sink consumes transition events. Sinks run synchronously on the
// evaluation tick, so they must return quickly and must not call back
// into activation methods (Activate/Deactivate/Unregister).
type Sink interface {
	StateChanged(ev Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// StateChanged implements Sink.
func (f SinkFunc) StateChanged(ev Event) { f(ev) }

// actor bundles one actor's runtime state. The evaluation loop is the
// only writer of eval/machine while it runs; the coordinator only touches
// them between an awaited stop and the next start.
type actor struct {
	id       string
	profile  evaluator.Profile
	eval     *evaluator.Evaluator
	machine  *emotion.Machine
	metric   *scheduler.SettableMetric
	loop     *scheduler.Loop
	removeCB func()
}

// Coordinator routes the live sample stream to the single active actor.
type Coordinator struct {
	settings Settings

	mu        sync.RWMutex
	actors    map[string]*actor
	activeID  string
	sample    wave.Sample
	hasSample bool
	sinks     []Sink

	// switchMu serializes activation changes so two concurrent
	// Activate/Deactivate/Unregister calls cannot interleave their
	// stop-then-start sequences.
	switchMu sync.Mutex
}

// New creates a coordinator. Sinks may also be added later with AddSink.
func New(settings Settings, sinks ...Sink) (*Coordinator, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Coordinator{
		settings: settings,
		actors:   make(map[string]*actor),
		sinks:    sinks,
	}, nil
}

// AddSink registers another transition event consumer.
func (c *Coordinator) AddSink(s Sink) {
	c.mu.Lock()
	c.sinks = append(c.sinks, s)
	c.mu.Unlock()
}

// Settings returns the shared evaluation settings.
func (c *Coordinator) Settings() Settings {
	return c.settings
}

// Register adds an actor with its target profile. The actor starts idle
// and inactive; nothing ticks until it is activated.
func (c *Coordinator) Register(id string, profile evaluator.Profile) error {
	if err := profile.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.actors[id]; exists {
		return fmt.Errorf("%w: %s", ErrActorRegistered, id)
	}

	a := &actor{
		id:      id,
		profile: profile,
		eval:    evaluator.New(profile, c.settings.SampleInterval, c.settings.SmoothingHalfLife),
		machine: emotion.NewMachine(emotion.Config{
			SuccessThreshold:        c.settings.SuccessThreshold,
			OverloadThreshold:       c.settings.OverloadThreshold,
			FailThreshold:           c.settings.InstabilityFailThreshold,
			InstabilityRecoveryRate: c.settings.InstabilityRecoveryRate,
			MinStimulationTime:      profile.MinStimulationTime,
			RecoveryTime:            profile.RecoveryTime,
			InstabilityRate:         profile.InstabilityRate,
			BaselineInstability:     profile.BaselineInstability,
		}),
		metric: &scheduler.SettableMetric{},
	}
	a.loop = scheduler.NewLoop(c.settings.SampleInterval, a.eval, a.machine,
		&actorSampleSource{c: c, id: id}, a.metric)
	a.removeCB = a.machine.OnTransition(func(old, next emotion.State) {
		c.dispatch(a, old, next)
	})

	c.actors[id] = a
	return nil
}

// Unregister removes an actor, deactivating it first if it is the active
// one. Unknown ids are a no-op.
func (c *Coordinator) Unregister(id string) {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	a, ok := c.actors[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	active := c.activeID == id
	if active {
		c.activeID = ""
	}
	delete(c.actors, id)
	c.mu.Unlock()

	if active {
		a.loop.Stop()
		a.eval.Reset()
	}
	a.removeCB()
}

// Activate routes the sample stream to the given actor and starts its
// evaluation loop. Any previously active actor is stopped — and its loop
// awaited — first. Activating the already-active actor is a no-op.
func (c *Coordinator) Activate(id string) error {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	next, ok := c.actors[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrActorNotFound, id)
	}
	if c.activeID == id {
		c.mu.Unlock()
		return nil
	}
	var prev *actor
	if c.activeID != "" {
		prev = c.actors[c.activeID]
	}
	// Nobody receives samples while the handoff is in progress.
	c.activeID = ""
	c.mu.Unlock()

	if prev != nil {
		prev.loop.Stop()
		prev.eval.Reset()
	}

	c.mu.Lock()
	c.activeID = id
	c.mu.Unlock()

	next.loop.Start()
	return nil
}

// Deactivate stops the active actor's loop and clears the active slot.
// No-op when nothing is active.
func (c *Coordinator) Deactivate() {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	c.mu.Lock()
	if c.activeID == "" {
		c.mu.Unlock()
		return
	}
	a := c.actors[c.activeID]
	c.activeID = ""
	c.mu.Unlock()

	a.loop.Stop()
	a.eval.Reset()
}

// SetSample sanitizes a raw band vector and stores it as the current
// sample. Only the active actor's loop will read it; inactive actors see
// nothing.
func (c *Coordinator) SetSample(bands []float64) {
	sample := wave.New(bands)
	c.mu.Lock()
	c.sample = sample
	c.hasSample = true
	c.mu.Unlock()
}

// latestFor gates the current sample on the actor being active.
func (c *Coordinator) latestFor(id string) (wave.Sample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasSample || c.activeID != id {
		return wave.Sample{}, false
	}
	return c.sample, true
}

// actorSampleSource adapts the coordinator's current-sample slot to the
// scheduler's SampleSource for one actor.
type actorSampleSource struct {
	c  *Coordinator
	id string
}

func (s *actorSampleSource) Latest() (wave.Sample, bool) {
	return s.c.latestFor(s.id)
}

// StartStimulation begins a stimulation session on an actor's machine.
func (c *Coordinator) StartStimulation(id string) error {
	a, err := c.lookup(id)
	if err != nil {
		return err
	}
	return a.machine.StartStimulation()
}

// StopStimulation ends a session early.
func (c *Coordinator) StopStimulation(id string) error {
	a, err := c.lookup(id)
	if err != nil {
		return err
	}
	a.machine.StopStimulation()
	return nil
}

// ResetActor forces an actor back to idle with baseline instability and a
// zeroed score. This is the only way out of critical failure.
func (c *Coordinator) ResetActor(id string) error {
	a, err := c.lookup(id)
	if err != nil {
		return err
	}
	a.machine.Reset()
	a.eval.Reset()
	return nil
}

// SetObedience pushes an externally computed metric value in [0,1] that
// replaces the wave score as the actor's driving signal.
func (c *Coordinator) SetObedience(id string, value float64) error {
	a, err := c.lookup(id)
	if err != nil {
		return err
	}
	a.metric.Set(value)
	return nil
}

// ClearObedience removes the external metric; the wave score drives again.
func (c *Coordinator) ClearObedience(id string) error {
	a, err := c.lookup(id)
	if err != nil {
		return err
	}
	a.metric.Clear()
	return nil
}

// SetObedienceMultiplier scales how fast the actor's instability grows.
func (c *Coordinator) SetObedienceMultiplier(id string, v float64) error {
	a, err := c.lookup(id)
	if err != nil {
		return err
	}
	a.machine.SetObedienceMultiplier(v)
	return nil
}

// ActiveID returns the currently active actor, if any.
func (c *Coordinator) ActiveID() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeID, c.activeID != ""
}

// Telemetry is a read-only snapshot of one actor's runtime state.
type Telemetry struct {
	ActorID       string  `json:"actor_id"`
	Profile       string  `json:"profile"`
	Active        bool    `json:"active"`
	State         string  `json:"state"`
	RawScore      float64 `json:"raw_score"`
	SmoothedScore float64 `json:"smoothed_score"`
	Metric        float64 `json:"metric"`
	Instability   float64 `json:"instability"`
	TimeInState   float64 `json:"time_in_state_secs"`
	Agitation     float64 `json:"agitation"`
	Composure     float64 `json:"composure"`
}

// Telemetry returns a snapshot for one actor.
func (c *Coordinator) Telemetry(id string) (Telemetry, error) {
	c.mu.RLock()
	a, ok := c.actors[id]
	active := c.activeID == id
	c.mu.RUnlock()
	if !ok {
		return Telemetry{}, fmt.Errorf("%w: %s", ErrActorNotFound, id)
	}
	return c.snapshot(a, active), nil
}

// Actors returns snapshots for every registered actor, sorted by id.
func (c *Coordinator) Actors() []Telemetry {
	c.mu.RLock()
	out := make([]Telemetry, 0, len(c.actors))
	for id, a := range c.actors {
		out = append(out, c.snapshot(a, id == c.activeID))
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ActorID < out[j].ActorID })
	return out
}

func (c *Coordinator) snapshot(a *actor, active bool) Telemetry {
	return Telemetry{
		ActorID:       a.id,
		Profile:       a.profile.Name,
		Active:        active,
		State:         a.machine.State().String(),
		RawScore:      a.eval.Raw(),
		SmoothedScore: a.eval.Smoothed(),
		Metric:        a.machine.LastMetric(),
		Instability:   a.machine.Instability(),
		TimeInState:   a.machine.TimeInState().Seconds(),
		Agitation:     a.machine.AgitationLevel(),
		Composure:     a.machine.ComposureLevel(),
	}
}

// Shutdown deactivates whatever is active. Registered actors stay.
func (c *Coordinator) Shutdown() {
	c.Deactivate()
}

func (c *Coordinator) lookup(id string) (*actor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.actors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActorNotFound, id)
	}
	return a, nil
}

// dispatch fans a transition out to the sinks.
func (c *Coordinator) dispatch(a *actor, old, next emotion.State) {
	ev := Event{
		ActorID:     a.id,
		From:        old,
		To:          next,
		FromName:    old.String(),
		ToName:      next.String(),
		Metric:      a.machine.LastMetric(),
		Instability: a.machine.Instability(),
		At:          time.Now(),
	}

	c.mu.RLock()
	sinks := make([]Sink, len(c.sinks))
	copy(sinks, c.sinks)
	c.mu.RUnlock()

	for _, s := range sinks {
		s.StateChanged(ev)
	}
}
