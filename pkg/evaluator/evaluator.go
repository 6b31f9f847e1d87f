// Package evaluator scores wave samples against a per-actor target profile.
//
// The evaluator is a stateful filter: each call scores one sample and folds
// the result into an exponential moving average. The smoothing factor is
// derived from the sample interval and a configured half-life, so the
// smoothed score behaves the same at any sampling frequency.
package evaluator

import (
	"math"
	"sync"
	"time"

	"github.com/entrainlab/go-wavemind/pkg/wave"
)

// Evaluator maintains the raw and smoothed similarity score for one actor.
// It never returns an error: malformed input degrades to a zero score.
type Evaluator struct {
	profile Profile
	alpha   float64

	mu       sync.RWMutex
	raw      float64
	smoothed float64
}

// New creates an evaluator for the given profile. The EMA factor is
// computed so the smoothed score decays to half its distance from the
// raw score after halfLife, given one sample per interval.
func New(profile Profile, interval, halfLife time.Duration) *Evaluator {
	return &Evaluator{
		profile: profile,
		alpha:   AlphaFor(interval, halfLife),
	}
}

// AlphaFor derives the EMA smoothing factor from a sample interval and a
// half-life. Degenerate inputs fall back to no smoothing (alpha = 1).
func AlphaFor(interval, halfLife time.Duration) float64 {
	if interval <= 0 || halfLife <= 0 {
		return 1
	}
	return 1 - math.Pow(0.5, interval.Seconds()/halfLife.Seconds())
}

// Evaluate scores one sample and updates the smoothed score.
// Returns the new smoothed score.
func (e *Evaluator) Evaluate(sample wave.Sample) float64 {
	raw := e.rawScore(sample)

	e.mu.Lock()
	e.raw = raw
	e.smoothed = e.alpha*raw + (1-e.alpha)*e.smoothed
	smoothed := e.smoothed
	e.mu.Unlock()

	return smoothed
}

// rawScore computes the weighted per-band match for one sample.
func (e *Evaluator) rawScore(sample wave.Sample) float64 {
	var weighted, total float64
	for i := range sample.Bands {
		diff := math.Abs(sample.Bands[i] - e.profile.Targets[i])
		match := clamp01(1 - diff/e.profile.Tolerances[i])
		weighted += match * e.profile.Weights[i]
		total += e.profile.Weights[i]
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// BandScores returns the per-band match values for a sample.
// Diagnostic only: it does not touch the smoothed score.
func (e *Evaluator) BandScores(sample wave.Sample) [wave.BandCount]float64 {
	var scores [wave.BandCount]float64
	for i := range sample.Bands {
		diff := math.Abs(sample.Bands[i] - e.profile.Targets[i])
		scores[i] = clamp01(1 - diff/e.profile.Tolerances[i])
	}
	return scores
}

// Raw returns the score of the most recent sample.
func (e *Evaluator) Raw() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.raw
}

// Smoothed returns the current exponentially-smoothed score.
func (e *Evaluator) Smoothed() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.smoothed
}

// Alpha returns the derived EMA factor.
func (e *Evaluator) Alpha() float64 {
	return e.alpha
}

// Profile returns the profile this evaluator scores against.
func (e *Evaluator) Profile() Profile {
	return e.profile
}

// Reset zeroes both scores. Called when an actor disengages so a stale
// score never leaks into a new session.
func (e *Evaluator) Reset() {
	e.mu.Lock()
	e.raw = 0
	e.smoothed = 0
	e.mu.Unlock()
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
