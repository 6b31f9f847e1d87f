package scheduler

import "sync"

// SettableMetric is a MetricSource whose value is pushed in from outside
// (an obedience controller, a test, an API handler). Until Set is called
// it reports nothing, so the loop keeps using the smoothed wave score.
//
// The dynamic-adjustment algorithm itself lives with whoever calls Set;
// UpdateDynamic is accepted and ignored here.
type SettableMetric struct {
	mu    sync.RWMutex
	value float64
	set   bool
}

// Set pushes a new metric value, clamped to [0,1].
func (s *SettableMetric) Set(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	s.mu.Lock()
	s.value = v
	s.set = true
	s.mu.Unlock()
}

// Clear removes the external value; the loop falls back to the wave score.
func (s *SettableMetric) Clear() {
	s.mu.Lock()
	s.set = false
	s.value = 0
	s.mu.Unlock()
}

// CurrentValue implements MetricSource.
func (s *SettableMetric) CurrentValue() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.set
}

// UpdateDynamic implements MetricSource. The value is externally driven,
// so the per-tick score is ignored.
func (s *SettableMetric) UpdateDynamic(score, dt float64) {}
