package verdict

import (
	"fmt"
	"strings"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/lint"
)

// RenderMarkdown summarises a deterministic decision. Sections without
// content are omitted.
func RenderMarkdown(v Verdict, in Inputs) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("## IAM change review: %s\n\n", CheckTitle(v)))
	b.WriteString(fmt.Sprintf("**Decision source:** %s  \n", v.Source))
	b.WriteString(fmt.Sprintf("**Conclusion:** %s\n\n", CheckConclusion(v.Verdict)))

	if !in.Bundle.Approved {
		b.WriteString("### Bundle integrity\n\n")
		b.WriteString(fmt.Sprintf("Rule bundle `%s` is not approved (%s). No further checks ran.\n",
			shortHash(in.Bundle.Hash), reasonOr(in.Bundle.Reason, "not-approved")))
		return b.String()
	}

	b.WriteString("### Drivers\n\n")
	if len(v.Drivers) == 0 {
		b.WriteString("No risk signals.\n")
	}
	for _, d := range v.Drivers {
		b.WriteString(fmt.Sprintf("- `%s`\n", d))
	}
	b.WriteString("\n")

	if len(in.Policy.Deny) > 0 {
		b.WriteString(fmt.Sprintf("### Policy denies (%s)\n\n", in.Policy.Source))
		for _, d := range in.Policy.Deny {
			b.WriteString(fmt.Sprintf("- %s\n", d))
		}
		b.WriteString("\n")
	}

	if findings := in.Lint.Findings(); len(findings) > 0 {
		b.WriteString("### Lint findings\n\n")
		for _, f := range findings {
			marker := "violation"
			if f.Severity == lint.SeverityWarning {
				marker = "warning"
			}
			b.WriteString(fmt.Sprintf("- **%s** %s\n", marker, f.Message))
		}
		b.WriteString("\n")
	}

	if in.Drift.Status != "" {
		b.WriteString("### Drift\n\n")
		b.WriteString(fmt.Sprintf("Status: %s", in.Drift.Status))
		if in.Drift.Reason != "" {
			b.WriteString(fmt.Sprintf(" (%s)", in.Drift.Reason))
		}
		b.WriteString("\n")
		if s := in.Drift.Summary; s.Accounts > 0 {
			b.WriteString(fmt.Sprintf("Accounts checked: %d, failed: %d, missing roles: %d\n",
				s.Accounts, s.Failed, s.MissingRoles))
		}
		b.WriteString("\n")
	}

	if in.Impact.BlastRadius != "" {
		b.WriteString("### Blast radius\n\n")
		b.WriteString(fmt.Sprintf("%s: %d module(s), %d account(s)\n",
			in.Impact.BlastRadius, len(in.Impact.Modules), len(in.Impact.Accounts)))
	}

	return b.String()
}

func shortHash(h string) string {
	if h == "" {
		return "(none)"
	}
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
