// Package plan parses Terraform change plans and reduces them to an
// IAM-focused summary.
package plan

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/iampolicy"
)

// Summarize reduces a plan to its Summary. It never fails: unknown resource
// types only contribute modules, and unparsable policy attributes are
// treated as absent.
func Summarize(p ChangePlan) Summary {
	s := NewSummary()
	s.TotalResources = len(p.ResourceChanges)

	roles := map[string]struct{}{}
	modules := map[string]struct{}{}
	accounts := map[string]struct{}{}

	for _, rc := range p.ResourceChanges {
		for _, m := range ModulePath(rc.Address) {
			modules[m] = struct{}{}
		}
		if !IAMTypes[rc.Type] {
			continue
		}

		counts, ok := s.IAM.ByType[rc.Type]
		if !ok {
			counts = ActionCounts{}
			for _, a := range countedActions {
				counts[a] = 0
			}
			s.IAM.ByType[rc.Type] = counts
		}
		for _, a := range rc.Change.Actions {
			if _, tracked := counts[a]; tracked {
				counts[a]++
			}
		}

		if rc.Type == TypeRole {
			roles[roleName(rc)] = struct{}{}
		}
		if policyTypes[rc.Type] {
			s.IAM.WildcardActions = append(s.IAM.WildcardActions, scanWildcards(rc)...)
		}
		for _, acct := range accountTags(rc.Change.After, rc.Change.Before) {
			accounts[acct] = struct{}{}
		}
	}

	s.IAM.RolesAffected = sortedKeys(roles)
	s.Modules = sortedKeys(modules)
	s.Accounts = sortedKeys(accounts)
	return s
}

// ModulePath returns every "module.<name>" pair embedded in a resource
// address, outermost first. The address grammar is
// (module.<name>.)* <type>.<local>.
func ModulePath(address string) []string {
	parts := strings.Split(address, ".")
	var out []string
	for i := 0; i < len(parts); i++ {
		if parts[i] == "module" && i+1 < len(parts) {
			out = append(out, "module."+parts[i+1])
			i++
		}
	}
	return out
}

// roleName resolves a role's display name: name, then name_prefix, from after
// and then before, falling back to the last address segment.
func roleName(rc ResourceChange) string {
	for _, attrs := range []map[string]any{rc.Change.After, rc.Change.Before} {
		for _, key := range []string{"name", "name_prefix"} {
			if v := scalarString(attrs[key]); v != "" {
				return v
			}
		}
	}
	parts := strings.Split(rc.Address, ".")
	return parts[len(parts)-1]
}

func scanWildcards(rc ResourceChange) []WildcardFinding {
	doc, ok := policyAttr(rc.Change.After)
	if !ok || len(doc.Statement) == 0 {
		doc, ok = policyAttr(rc.Change.Before)
	}
	if !ok {
		return nil
	}

	var out []WildcardFinding
	for idx, st := range doc.Statement {
		switch {
		case st.Action.Is(iampolicy.Wildcard):
			out = append(out, WildcardFinding{Address: rc.Address, Statement: idx, Reason: ReasonScalarWildcard})
		case !st.Action.Scalar && st.Action.Contains(iampolicy.Wildcard):
			out = append(out, WildcardFinding{Address: rc.Address, Statement: idx, Reason: ReasonListWildcard})
		}
	}
	return out
}

func policyAttr(attrs map[string]any) (iampolicy.Document, bool) {
	text, ok := attrs["policy"].(string)
	if !ok {
		return iampolicy.Document{}, false
	}
	return iampolicy.ParseDocument(text)
}

func accountTags(objs ...map[string]any) []string {
	var out []string
	for _, attrs := range objs {
		tags, ok := attrs["tags"].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range accountTagKeys {
			if v := scalarString(tags[key]); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

// scalarString renders strings and numbers; other values yield "".
func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int, int64:
		return fmt.Sprint(x)
	default:
		return ""
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
