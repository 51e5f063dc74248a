package lint

import (
	"strings"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/iampolicy"
)

// Rule messages.
const (
	MsgWildcardAction    = "Action:* detected - use least-privilege explicit actions"
	MsgPassRoleUnscoped  = "iam:PassRole must be scoped to specific role ARNs"
	MsgAssumeRoleNoCond  = "sts:AssumeRole on * requires restrictive Condition"
	MsgPutObjectNoSSE    = "s3:PutObject must enforce SSE via condition"
	MsgExternalPrincipal = "External principal without ExternalId condition"
)

const (
	sseConditionKey        = "s3:x-amz-server-side-encryption"
	externalIDConditionKey = "sts:ExternalId"
	stringEquals           = "StringEquals"
)

// Rule is a single stateless lint check.
type Rule struct {
	ID       string
	Severity Severity
	Check    func(e *Engine, in iampolicy.Inputs) []string
}

// Rules is the fixed rule registry, evaluated in order.
var Rules = []Rule{
	{ID: "wildcard-action", Severity: SeverityViolation, Check: statementRule(wildcardAction)},
	{ID: "passrole-scope", Severity: SeverityViolation, Check: statementRule(passRoleScope)},
	{ID: "assumerole-condition", Severity: SeverityViolation, Check: statementRule(assumeRoleCondition)},
	{ID: "putobject-sse", Severity: SeverityViolation, Check: statementRule(putObjectSSE)},
	{ID: "trust-external-id", Severity: SeverityViolation, Check: trustExternalID},
	{ID: "required-tags", Severity: SeverityWarning, Check: requiredTags},
}

// statementRule lifts a per-statement predicate into a Rule check that emits
// msg once for every offending statement.
func statementRule(check func(st iampolicy.Statement) (string, bool)) func(*Engine, iampolicy.Inputs) []string {
	return func(_ *Engine, in iampolicy.Inputs) []string {
		var out []string
		for _, st := range in.Policy.Statement {
			if msg, hit := check(st); hit {
				out = append(out, msg)
			}
		}
		return out
	}
}

func wildcardAction(st iampolicy.Statement) (string, bool) {
	return MsgWildcardAction, st.Action.Is(iampolicy.Wildcard)
}

func passRoleScope(st iampolicy.Statement) (string, bool) {
	return MsgPassRoleUnscoped,
		iampolicy.ActionMatches(st.Action, "iam:PassRole") && st.Resource.Is(iampolicy.Wildcard)
}

func assumeRoleCondition(st iampolicy.Statement) (string, bool) {
	assume := iampolicy.ActionMatches(st.Action, "sts:AssumeRole") ||
		iampolicy.ActionMatches(st.Action, "sts:AssumeRoleWithWebIdentity")
	return MsgAssumeRoleNoCond, assume && st.Resource.Is(iampolicy.Wildcard) && len(st.Condition) == 0
}

func putObjectSSE(st iampolicy.Statement) (string, bool) {
	return MsgPutObjectNoSSE,
		iampolicy.ActionMatches(st.Action, "s3:PutObject") &&
			st.Resource.Is(iampolicy.Wildcard) &&
			!st.Condition.Has(stringEquals, sseConditionKey)
}

// trustExternalID flags the trust document once when any AWS principal lies
// outside the organisation prefix and the granting block has no ExternalId.
func trustExternalID(e *Engine, in iampolicy.Inputs) []string {
	for _, g := range in.Trust.Grants() {
		if g.Condition.Has(stringEquals, externalIDConditionKey) {
			continue
		}
		for _, arn := range g.Principal.AWS() {
			if !e.inOrg(arn) {
				return []string{MsgExternalPrincipal}
			}
		}
	}
	return nil
}

func requiredTags(e *Engine, in iampolicy.Inputs) []string {
	if !in.HasMetadata {
		return nil
	}
	for _, tag := range e.requiredTags() {
		if _, ok := in.Metadata.Tags[tag]; !ok {
			return []string{"Resource missing required tags (" + strings.Join(e.requiredTags(), ", ") + ")"}
		}
	}
	return nil
}
