// Package scheduler runs the periodic evaluation loop for one actor.
//
// Each loop owns its actor's evaluator and state machine for the duration
// of a run: a tick reads the latest stored sample, scores it, resolves the
// driving metric and advances the state machine, then sleeps to the next
// tick boundary. Cancellation is cooperative — the loop is only ever
// interrupted between ticks, never mid-update — and Stop blocks until the
// loop has actually exited, so no tick can fire after Stop returns.
package scheduler

import (
	"sync"
	"time"

	"github.com/entrainlab/go-wavemind/pkg/emotion"
	"github.com/entrainlab/go-wavemind/pkg/evaluator"
	"github.com/entrainlab/go-wavemind/pkg/wave"
)

// SampleSource provides the latest stored wave sample for one actor.
// ok is false when no sample has been routed to the actor yet.
type SampleSource interface {
	Latest() (sample wave.Sample, ok bool)
}

// MetricSource supplies an externally evolving metric (e.g. an obedience
// level) that replaces the smoothed wave score as the state machine's
// driving signal. The loop feeds each tick's score back via UpdateDynamic;
// what the source does with it is its own business.
type MetricSource interface {
	// CurrentValue returns the metric in [0,1]. ok is false when the
	// source has nothing to report, in which case the loop falls back
	// to the smoothed wave score.
	CurrentValue() (value float64, ok bool)

	// UpdateDynamic hands the source this tick's smoothed score and the
	// elapsed time in seconds.
	UpdateDynamic(score, dt float64)
}

// Loop is the periodic evaluation task for a single actor.
type Loop struct {
	interval time.Duration
	eval     *evaluator.Evaluator
	machine  *emotion.Machine
	samples  SampleSource
	metric   MetricSource

	mu      sync.Mutex // serializes Start/Stop
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewLoop creates a loop. metric may be nil; the smoothed wave score is
// then used as the state machine's metric directly.
func NewLoop(interval time.Duration, eval *evaluator.Evaluator, machine *emotion.Machine, samples SampleSource, metric MetricSource) *Loop {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Loop{
		interval: interval,
		eval:     eval,
		machine:  machine,
		samples:  samples,
		metric:   metric,
	}
}

// Start launches the periodic task. If a loop is already running it is
// stopped — and awaited — first, so there are never two loops ticking the
// same actor's state.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()

	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	l.running = true
	go l.run(l.stop, l.done)
}

// Stop cancels the loop and waits for it to exit. Once Stop returns, no
// further tick will touch the actor's state. Safe to call when the loop
// is not running.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

// stopLocked performs the awaited stop. Caller holds l.mu.
func (l *Loop) stopLocked() {
	if !l.running {
		return
	}
	l.running = false
	close(l.stop)
	<-l.done
}

// Running reports whether the loop is currently active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Interval returns the tick period.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

func (l *Loop) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	dt := l.interval.Seconds()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// A stop that raced the tick wins; otherwise the tick runs
			// to completion even if cancellation arrives mid-update.
			select {
			case <-stop:
				return
			default:
			}
			l.tick(dt)
		}
	}
}

// tick runs one evaluation step. A partially constructed actor (missing
// evaluator or machine) makes the tick a no-op rather than a crash.
func (l *Loop) tick(dt float64) {
	if l.eval == nil || l.machine == nil {
		return
	}

	score := l.eval.Smoothed()
	if l.samples != nil {
		if sample, ok := l.samples.Latest(); ok {
			score = l.eval.Evaluate(sample)
		}
	}

	metric := score
	if l.metric != nil {
		l.metric.UpdateDynamic(score, dt)
		if v, ok := l.metric.CurrentValue(); ok {
			metric = v
		}
	}

	l.machine.Update(metric, dt)
}
