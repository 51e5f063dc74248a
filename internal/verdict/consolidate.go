package verdict

import (
	"fmt"
	"strings"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/bundle"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/drift"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/impact"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/lint"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/policygate"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/risk"
)

// BlockConfidence is reported for deterministic blocks.
const BlockConfidence = 1.0

// Inputs are the stage outputs the consolidator reads. Agent is nil when
// arbitration was skipped or failed; AgentErr carries the failure.
type Inputs struct {
	Bundle   bundle.Result
	Policy   policygate.Result
	Agent    *Verdict
	AgentErr error
	Risk     risk.Score
	Lint     lint.Result
	Drift    drift.Report
	Impact   impact.Assessment
}

// Consolidate applies, in order: bundle rejection, policy deny, agent
// verdict, deterministic risk. The first that applies decides.
func Consolidate(in Inputs) Verdict {
	var v Verdict
	switch {
	case !in.Bundle.Approved:
		v = Verdict{
			Verdict:    risk.Red,
			Confidence: BlockConfidence,
			Drivers:    []string{"bundle:" + reasonOr(in.Bundle.Reason, bundle.ReasonNotApproved)},
			Source:     SourceDeterministic,
		}
	case len(in.Policy.Deny) > 0:
		drivers := []string{fmt.Sprintf("policy_deny:%d", len(in.Policy.Deny))}
		drivers = append(drivers, in.Risk.Drivers...)
		v = Verdict{
			Verdict:    risk.Red,
			Confidence: BlockConfidence,
			Drivers:    drivers,
			Source:     SourceDeterministic,
		}
	case in.Agent != nil:
		v = *in.Agent
		v.Verdict = risk.Level(strings.ToLower(string(v.Verdict)))
		v.Source = SourceAgent
		if v.Drivers == nil {
			v.Drivers = []string{}
		}
		if strings.TrimSpace(v.Markdown) == "" {
			v.Markdown = DefaultMarkdown
		}
	default:
		v = Verdict{
			Verdict:    in.Risk.Risk,
			Confidence: in.Risk.Confidence,
			Drivers:    append([]string{}, in.Risk.Drivers...),
			Source:     SourceDeterministic,
		}
		if v.Verdict == "" {
			v.Verdict = risk.Amber
		}
		if in.AgentErr != nil {
			v.Drivers = append(v.Drivers, "agent:fallback")
		}
	}

	v.Confidence = Clamp(v.Confidence)
	if v.Source == SourceDeterministic {
		v.Markdown = RenderMarkdown(v, in)
	}
	return v
}

func reasonOr(reason, fallback string) string {
	if reason == "" {
		return fallback
	}
	return reason
}
