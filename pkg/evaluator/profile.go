package evaluator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/entrainlab/go-wavemind/pkg/wave"
)

// Profile is the static per-actor target an evaluator scores against,
// plus the timing constants its state machine runs with. Profiles are
// loaded before an actor is constructed and never mutated afterwards.
type Profile struct {
	// Name identifies the profile (defaults to the file name on load).
	Name string `json:"name"`

	// Targets, Tolerances and Weights are parallel per-band sequences.
	Targets    [wave.BandCount]float64 `json:"targets"`
	Tolerances [wave.BandCount]float64 `json:"tolerances"`
	Weights    [wave.BandCount]float64 `json:"weights"`

	// BaselineInstability is the instability an actor resets to.
	BaselineInstability float64 `json:"baseline_instability"`

	// MinStimulationTime is how long stimulation must run before the
	// actor can stabilize, regardless of score.
	MinStimulationTime time.Duration `json:"min_stimulation_time"`

	// RecoveryTime is how long the actor spends recovering from agitation.
	RecoveryTime time.Duration `json:"recovery_time"`

	// InstabilityRate scales how fast instability accumulates under an
	// overloading signal.
	InstabilityRate float64 `json:"instability_rate"`
}

// Validate rejects profiles that would misbehave at evaluation time.
// Zero or negative tolerances are a configuration error here, not
// something clamped later: scoring divides by tolerance.
func (p Profile) Validate() error {
	for i, tol := range p.Tolerances {
		if tol <= 0 {
			return fmt.Errorf("%w: band %s tolerance %v must be positive",
				ErrInvalidProfile, wave.Band(i), tol)
		}
	}
	for i, w := range p.Weights {
		if w < 0 {
			return fmt.Errorf("%w: band %s weight %v must be non-negative",
				ErrInvalidProfile, wave.Band(i), w)
		}
	}
	if p.BaselineInstability < 0 || p.BaselineInstability > 1 {
		return fmt.Errorf("%w: baseline instability %v outside [0,1]",
			ErrInvalidProfile, p.BaselineInstability)
	}
	if p.InstabilityRate < 0 {
		return fmt.Errorf("%w: instability rate %v must be non-negative",
			ErrInvalidProfile, p.InstabilityRate)
	}
	if p.MinStimulationTime < 0 || p.RecoveryTime < 0 {
		return fmt.Errorf("%w: negative timing constant", ErrInvalidProfile)
	}
	return nil
}

// profileFile is the on-disk JSON shape; durations are in seconds so
// profile files stay readable.
type profileFile struct {
	Name                string    `json:"name"`
	Targets             []float64 `json:"targets"`
	Tolerances          []float64 `json:"tolerances"`
	Weights             []float64 `json:"weights"`
	BaselineInstability float64   `json:"baseline_instability"`
	MinStimulationSecs  float64   `json:"min_stimulation_secs"`
	RecoverySecs        float64   `json:"recovery_secs"`
	InstabilityRate     float64   `json:"instability_rate"`
}

// ParseProfile decodes and validates a profile from JSON.
// fallbackName is used when the document carries no name of its own.
func ParseProfile(data []byte, fallbackName string) (Profile, error) {
	var pf profileFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}

	if len(pf.Targets) != wave.BandCount ||
		len(pf.Tolerances) != wave.BandCount ||
		len(pf.Weights) != wave.BandCount {
		return Profile{}, fmt.Errorf("%w: band sequences must have length %d",
			ErrInvalidProfile, wave.BandCount)
	}

	p := Profile{
		Name:                pf.Name,
		BaselineInstability: pf.BaselineInstability,
		MinStimulationTime:  time.Duration(pf.MinStimulationSecs * float64(time.Second)),
		RecoveryTime:        time.Duration(pf.RecoverySecs * float64(time.Second)),
		InstabilityRate:     pf.InstabilityRate,
	}
	copy(p.Targets[:], pf.Targets)
	copy(p.Tolerances[:], pf.Tolerances)
	copy(p.Weights[:], pf.Weights)

	if p.Name == "" {
		p.Name = fallbackName
	}

	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// LoadProfile reads and validates a single profile JSON file.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	p, err := ParseProfile(data, name)
	if err != nil {
		return Profile{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// LoadProfiles loads every *.json profile in a directory, keyed by name.
func LoadProfiles(dir string) (map[string]Profile, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan profiles: %w", err)
	}

	profiles := make(map[string]Profile, len(matches))
	for _, path := range matches {
		p, err := LoadProfile(path)
		if err != nil {
			return nil, err
		}
		profiles[p.Name] = p
	}
	return profiles, nil
}
