// Package wave defines the multi-band wave sample that drives evaluation.
//
// A sample is a fixed-size vector of normalized band energies captured at a
// single instant. Samples are value objects: built once, never mutated, and
// superseded by the next sample rather than updated in place.
package wave

import (
	"math"
	"time"
)

// BandCount is the fixed number of frequency bands in every sample.
const BandCount = 5

// Band indexes into a sample's band vector.
type Band int

const (
	Delta Band = iota
	Theta
	Alpha
	Beta
	Gamma
)

// String returns the conventional band name.
func (b Band) String() string {
	switch b {
	case Delta:
		return "delta"
	case Theta:
		return "theta"
	case Alpha:
		return "alpha"
	case Beta:
		return "beta"
	case Gamma:
		return "gamma"
	default:
		return "unknown"
	}
}

// Sample is one immutable reading of band energies, each in [0,1].
type Sample struct {
	Timestamp time.Time
	Bands     [BandCount]float64
}

// New builds a sanitized sample from a raw band vector.
// A vector of the wrong length yields an all-zero sample; non-finite or
// out-of-range values are zeroed/clamped per band. Malformed input is
// never an error here, it degrades to a neutral reading.
func New(bands []float64) Sample {
	return NewAt(time.Now(), bands)
}

// NewAt builds a sanitized sample with an explicit capture time.
func NewAt(ts time.Time, bands []float64) Sample {
	s := Sample{Timestamp: ts}
	if len(bands) != BandCount {
		return s
	}
	for i, v := range bands {
		s.Bands[i] = sanitize(v)
	}
	return s
}

// sanitize maps a raw band energy into [0,1], zeroing non-finite values.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
