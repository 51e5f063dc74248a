package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/drift"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/impact"
)

func TestCalculate(t *testing.T) {
	tests := []struct {
		name    string
		signals Signals
		want    Score
	}{
		{
			name:    "clean",
			signals: Signals{Drift: drift.StatusNone, BlastRadius: impact.RadiusSmall},
			want:    Score{Risk: Green, Confidence: 0.9, Drivers: []string{}, Points: 0},
		},
		{
			name:    "one violation stays green",
			signals: Signals{LintViolations: 1},
			want:    Score{Risk: Green, Confidence: 0.9, Drivers: []string{"lint_violations:1"}, Points: 1},
		},
		{
			name:    "medium radius and violation",
			signals: Signals{LintViolations: 1, BlastRadius: impact.RadiusMedium},
			want:    Score{Risk: Amber, Confidence: 0.7, Drivers: []string{"lint_violations:1", "radius:medium"}, Points: 2},
		},
		{
			name:    "violations are capped",
			signals: Signals{LintViolations: 9},
			want:    Score{Risk: Amber, Confidence: 0.7, Drivers: []string{"lint_violations:9"}, Points: 3},
		},
		{
			name:    "combined signals",
			signals: Signals{LintViolations: 2, Wildcards: 2, Drift: drift.StatusSuspect, BlastRadius: impact.RadiusMedium},
			want:    Score{Risk: Red, Confidence: 0.5, Drivers: []string{"lint_violations:2", "wildcards:2", "drift:suspect", "radius:medium"}, Points: 7},
		},
		{
			name:    "drift and large radius",
			signals: Signals{Drift: drift.StatusSuspect, BlastRadius: impact.RadiusLarge},
			want:    Score{Risk: Red, Confidence: 0.5, Drivers: []string{"drift:suspect", "radius:large"}, Points: 4},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Default(tt.signals))
		})
	}
}

func TestConfidenceNonIncreasing(t *testing.T) {
	byLevel := map[Level]float64{}
	for v := 0; v <= 5; v++ {
		for w := 0; w <= 5; w++ {
			for _, d := range []drift.Status{drift.StatusNone, drift.StatusSuspect} {
				for _, r := range []impact.Radius{impact.RadiusSmall, impact.RadiusMedium, impact.RadiusLarge} {
					s := Default(Signals{LintViolations: v, Wildcards: w, Drift: d, BlastRadius: r})
					byLevel[s.Risk] = s.Confidence
					assert.GreaterOrEqual(t, s.Confidence, 0.0)
					assert.LessOrEqual(t, s.Confidence, 1.0)
				}
			}
		}
	}
	assert.GreaterOrEqual(t, byLevel[Green], byLevel[Amber])
	assert.GreaterOrEqual(t, byLevel[Amber], byLevel[Red])
}

func TestCustomWeights(t *testing.T) {
	w := DefaultWeights()
	w.DriftSuspect = 5
	s := Calculate(Signals{Drift: drift.StatusSuspect}, w)
	assert.Equal(t, Red, s.Risk)
}

func TestWeightsValidate(t *testing.T) {
	assert.NoError(t, DefaultWeights().Validate())

	bad := DefaultWeights()
	bad.GreenMax = 5
	assert.Error(t, bad.Validate())

	bad = DefaultWeights()
	bad.RedConfidence = 0.95
	assert.Error(t, bad.Validate())

	bad = DefaultWeights()
	bad.AmberConfidence = 1.5
	assert.Error(t, bad.Validate())
}
