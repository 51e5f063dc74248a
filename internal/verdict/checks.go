package verdict

import (
	"fmt"
	"strings"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/risk"
)

// Check-run conclusions.
const (
	ConclusionSuccess = "success"
	ConclusionNeutral = "neutral"
	ConclusionFailure = "failure"
)

// CheckConclusion maps a verdict level to a check-run conclusion. Unknown
// levels are neutral.
func CheckConclusion(level risk.Level) string {
	switch risk.Level(strings.ToLower(string(level))) {
	case risk.Green:
		return ConclusionSuccess
	case risk.Red:
		return ConclusionFailure
	default:
		return ConclusionNeutral
	}
}

// CheckTitle is the check-run title, e.g. "RED (confidence 0.50)".
func CheckTitle(v Verdict) string {
	level := strings.ToUpper(string(v.Verdict))
	if level == "" {
		level = "-"
	}
	return fmt.Sprintf("%s (confidence %.2f)", level, v.Confidence)
}
