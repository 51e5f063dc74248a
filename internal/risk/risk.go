// Package risk aggregates deterministic signals into a green/amber/red score.
package risk

import (
	"fmt"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/drift"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/impact"
)

// Level is a risk bucket.
type Level string

const (
	Green Level = "green"
	Amber Level = "amber"
	Red   Level = "red"
)

// Weights are the scoring constants. They are policy choices, so they are
// configurable; DefaultWeights holds the shipped values.
type Weights struct {
	ViolationCap    int     `yaml:"violation_cap" json:"violation_cap"`
	WildcardCap     int     `yaml:"wildcard_cap" json:"wildcard_cap"`
	DriftSuspect    int     `yaml:"drift_suspect" json:"drift_suspect"`
	RadiusMedium    int     `yaml:"radius_medium" json:"radius_medium"`
	RadiusLarge     int     `yaml:"radius_large" json:"radius_large"`
	GreenMax        int     `yaml:"green_max" json:"green_max"`
	AmberMax        int     `yaml:"amber_max" json:"amber_max"`
	GreenConfidence float64 `yaml:"green_confidence" json:"green_confidence"`
	AmberConfidence float64 `yaml:"amber_confidence" json:"amber_confidence"`
	RedConfidence   float64 `yaml:"red_confidence" json:"red_confidence"`
}

// DefaultWeights returns the standard scoring table.
func DefaultWeights() Weights {
	return Weights{
		ViolationCap:    3,
		WildcardCap:     3,
		DriftSuspect:    2,
		RadiusMedium:    1,
		RadiusLarge:     2,
		GreenMax:        1,
		AmberMax:        3,
		GreenConfidence: 0.9,
		AmberConfidence: 0.7,
		RedConfidence:   0.5,
	}
}

// Validate checks the bucket table is ordered and confidences lie in [0,1]
// and do not increase with severity.
func (w Weights) Validate() error {
	if w.ViolationCap < 0 || w.WildcardCap < 0 || w.DriftSuspect < 0 || w.RadiusMedium < 0 || w.RadiusLarge < 0 {
		return fmt.Errorf("risk weights must be non-negative")
	}
	if w.GreenMax > w.AmberMax {
		return fmt.Errorf("green_max (%d) exceeds amber_max (%d)", w.GreenMax, w.AmberMax)
	}
	for _, c := range []float64{w.GreenConfidence, w.AmberConfidence, w.RedConfidence} {
		if c < 0 || c > 1 {
			return fmt.Errorf("confidence %v outside [0,1]", c)
		}
	}
	if w.GreenConfidence < w.AmberConfidence || w.AmberConfidence < w.RedConfidence {
		return fmt.Errorf("confidence must not increase with risk severity")
	}
	return nil
}

// Signals are the aggregator inputs.
type Signals struct {
	LintViolations int
	Wildcards      int
	Drift          drift.Status
	BlastRadius    impact.Radius
}

// Score is the deterministic risk outcome.
type Score struct {
	Risk       Level    `json:"risk"`
	Confidence float64  `json:"confidence"`
	Drivers    []string `json:"drivers"`
	Points     int      `json:"points"`
}

// Calculate scores signals with w. Drivers appear in a fixed order and only
// for signals that contributed points.
func Calculate(s Signals, w Weights) Score {
	points := 0
	drivers := []string{}

	if s.LintViolations > 0 {
		points += min(w.ViolationCap, s.LintViolations)
		drivers = append(drivers, fmt.Sprintf("lint_violations:%d", s.LintViolations))
	}
	if s.Wildcards > 0 {
		points += min(w.WildcardCap, s.Wildcards)
		drivers = append(drivers, fmt.Sprintf("wildcards:%d", s.Wildcards))
	}
	if s.Drift == drift.StatusSuspect {
		points += w.DriftSuspect
		drivers = append(drivers, "drift:suspect")
	}
	switch s.BlastRadius {
	case impact.RadiusMedium:
		points += w.RadiusMedium
		drivers = append(drivers, "radius:medium")
	case impact.RadiusLarge:
		points += w.RadiusLarge
		drivers = append(drivers, "radius:large")
	}

	sc := Score{Points: points, Drivers: drivers}
	switch {
	case points <= w.GreenMax:
		sc.Risk, sc.Confidence = Green, w.GreenConfidence
	case points <= w.AmberMax:
		sc.Risk, sc.Confidence = Amber, w.AmberConfidence
	default:
		sc.Risk, sc.Confidence = Red, w.RedConfidence
	}
	return sc
}

// Default scores with DefaultWeights.
func Default(s Signals) Score {
	return Calculate(s, DefaultWeights())
}
