package policygate

import "github.com/open-policy-agent/opa/ast"

// allowedBuiltins is the closed set of builtins rule modules may call. Network,
// clock and runtime builtins are excluded so evaluation stays deterministic.
var allowedBuiltins = map[string]struct{}{
	"assign":            {},
	"concat":            {},
	"contains":          {},
	"count":             {},
	"endswith":          {},
	"eq":                {},
	"equal":             {},
	"gt":                {},
	"gte":               {},
	"internal.member_2": {},
	"internal.member_3": {},
	"is_array":          {},
	"is_object":         {},
	"is_string":         {},
	"lower":             {},
	"lt":                {},
	"lte":               {},
	"neq":               {},
	"object.get":        {},
	"sort":              {},
	"split":             {},
	"sprintf":           {},
	"startswith":        {},
	"upper":             {},
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(allowedBuiltins))
	for _, b := range builtins {
		if _, ok := allowedBuiltins[b.Name]; ok {
			allowed = append(allowed, b)
		}
	}
	return allowed
}
