// Package verdict holds the pipeline's final decision and the rules that
// consolidate stage outputs into it.
package verdict

import (
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/risk"
)

// Source records which stage decided a verdict.
type Source string

const (
	SourceDeterministic Source = "deterministic"
	SourceAgent         Source = "agent"
)

// DefaultMarkdown is used when a reviewer returns no summary.
const DefaultMarkdown = "Automated review completed."

// Verdict is the only decision value exposed past consolidation.
type Verdict struct {
	Verdict    risk.Level `json:"verdict"`
	Confidence float64    `json:"confidence"`
	Drivers    []string   `json:"drivers"`
	Markdown   string     `json:"markdown"`
	Source     Source     `json:"source"`

	SessionID       string `json:"agent_session_id,omitempty"`
	TokensEstimated int    `json:"tokens_estimated,omitempty"`
}

// Clamp bounds c to [0,1].
func Clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
