// Package emotion implements the per-actor emotional state machine.
//
// The machine is driven by two independently evolving scalars: a metric in
// [0,1] (the smoothed wave score, or an externally supplied signal such as
// a normalized obedience level) and a bounded instability accumulator. The
// transition logic is metric-agnostic; callers decide what the metric means.
package emotion

// State is one of the actor's emotional/behavioral states.
type State int

const (
	// Idle means no stimulation is in progress.
	Idle State = iota

	// BeingStimulated means a session is active and being scored.
	BeingStimulated

	// Stabilized means the metric has held above the success threshold
	// for long enough.
	Stabilized

	// Agitated means the metric dropped to the overload threshold.
	Agitated

	// CriticalFailure means instability crossed the fail threshold.
	// Only an external Reset leaves this state.
	CriticalFailure

	// Recovering means the actor is calming down after agitation.
	Recovering
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case BeingStimulated:
		return "being_stimulated"
	case Stabilized:
		return "stabilized"
	case Agitated:
		return "agitated"
	case CriticalFailure:
		return "critical_failure"
	case Recovering:
		return "recovering"
	default:
		return "unknown"
	}
}
