// Package lint runs deterministic least-privilege checks over an IAM policy,
// its trust document and the owning resource's metadata.
package lint

import (
	"strings"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/iampolicy"
)

// Severity classifies a finding.
type Severity string

const (
	SeverityViolation Severity = "violation"
	SeverityWarning   Severity = "warning"
)

// DefaultRequiredTags are the tags every IAM resource must carry.
var DefaultRequiredTags = []string{"Owner", "CostCenter"}

// Finding is one lint message with its severity.
type Finding struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of a lint run. Valid is true iff there are no
// violations; warnings never affect it.
type Result struct {
	Violations []string `json:"violations"`
	Warnings   []string `json:"warnings"`
	Valid      bool     `json:"valid"`
}

// Findings flattens the result, violations first.
func (r Result) Findings() []Finding {
	out := make([]Finding, 0, len(r.Violations)+len(r.Warnings))
	for _, m := range r.Violations {
		out = append(out, Finding{Message: m, Severity: SeverityViolation})
	}
	for _, m := range r.Warnings {
		out = append(out, Finding{Message: m, Severity: SeverityWarning})
	}
	return out
}

// Engine evaluates Rules. The zero value is usable: every AWS principal is
// treated as external and the default tag set is required.
type Engine struct {
	// OrgAccountPrefix is the ARN prefix of accounts inside the organisation,
	// e.g. "arn:aws:iam::1234".
	OrgAccountPrefix string
	RequiredTags     []string
}

// NewEngine returns an engine for the given organisation prefix.
func NewEngine(orgPrefix string, requiredTags []string) *Engine {
	return &Engine{OrgAccountPrefix: orgPrefix, RequiredTags: requiredTags}
}

// Lint runs every rule over decoded inputs.
func (e *Engine) Lint(in iampolicy.Inputs) Result {
	res := Result{Violations: []string{}, Warnings: []string{}}
	for _, rule := range Rules {
		msgs := rule.Check(e, in)
		if rule.Severity == SeverityWarning {
			res.Warnings = append(res.Warnings, msgs...)
		} else {
			res.Violations = append(res.Violations, msgs...)
		}
	}
	res.Valid = len(res.Violations) == 0
	return res
}

// LintDocuments decodes raw JSON documents and lints them. Missing or
// malformed documents are treated as empty.
func (e *Engine) LintDocuments(policy, trust, metadata []byte) Result {
	return e.Lint(iampolicy.DecodeInputs(policy, trust, metadata))
}

func (e *Engine) inOrg(arn string) bool {
	if e.OrgAccountPrefix == "" || arn == iampolicy.Wildcard {
		return false
	}
	return strings.HasPrefix(arn, e.OrgAccountPrefix)
}

func (e *Engine) requiredTags() []string {
	if len(e.RequiredTags) == 0 {
		return DefaultRequiredTags
	}
	return e.RequiredTags
}
