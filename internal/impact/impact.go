// Package impact classifies the blast radius of a change from the modules and
// accounts it touches.
package impact

import (
	"sort"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/plan"
)

// Radius is a coarse blast-radius bucket.
type Radius string

const (
	RadiusSmall  Radius = "small"
	RadiusMedium Radius = "medium"
	RadiusLarge  Radius = "large"
)

// Thresholds are the inclusive upper bounds of the small and medium buckets.
type Thresholds struct {
	Small  int `yaml:"small" json:"small"`
	Medium int `yaml:"medium" json:"medium"`
}

// DefaultThresholds returns small <= 3, medium <= 10.
func DefaultThresholds() Thresholds {
	return Thresholds{Small: 3, Medium: 10}
}

// Assessment is the output of the mapper.
type Assessment struct {
	Accounts    []string `json:"accounts"`
	Modules     []string `json:"modules"`
	BlastRadius Radius   `json:"blast_radius"`
}

// Mapper buckets |modules| + |accounts|. The zero value uses DefaultThresholds.
type Mapper struct {
	Thresholds Thresholds
}

// Assess deduplicates, drops empty entries, sorts and classifies.
func (m Mapper) Assess(modules, accounts []string) Assessment {
	a := Assessment{
		Accounts: unique(accounts),
		Modules:  unique(modules),
	}
	a.BlastRadius = m.classify(len(a.Accounts) + len(a.Modules))
	return a
}

// AssessSummary assesses the modules and accounts recorded in a plan summary.
func (m Mapper) AssessSummary(s plan.Summary) Assessment {
	return m.Assess(s.Modules, s.Accounts)
}

// Assess uses DefaultThresholds.
func Assess(modules, accounts []string) Assessment {
	return Mapper{}.Assess(modules, accounts)
}

func (m Mapper) classify(size int) Radius {
	t := m.Thresholds
	if t == (Thresholds{}) {
		t = DefaultThresholds()
	}
	switch {
	case size <= t.Small:
		return RadiusSmall
	case size <= t.Medium:
		return RadiusMedium
	default:
		return RadiusLarge
	}
}

func unique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
