package iampolicy

import (
	"encoding/json"
	"sort"
)

// Trust is a role trust (assume-role) policy. Both the flattened shape
// {Principal, Condition} and the full {Statement: [...]} shape are accepted.
type Trust struct {
	Principal Principal  `json:"Principal,omitempty"`
	Condition Conditions `json:"Condition,omitempty"`
	Statement Statements `json:"Statement,omitempty"`
}

// Grant is one principal/condition pair extracted from a trust document.
type Grant struct {
	Principal Principal
	Condition Conditions
}

// Grants returns the top-level grant (when a principal is set) followed by
// one grant per statement that names a principal.
func (t Trust) Grants() []Grant {
	var out []Grant
	if len(t.Principal) > 0 {
		out = append(out, Grant{Principal: t.Principal, Condition: t.Condition})
	}
	for _, st := range t.Statement {
		if len(st.Principal) > 0 {
			out = append(out, Grant{Principal: st.Principal, Condition: st.Condition})
		}
	}
	return out
}

// Metadata describes the resource a policy is attached to.
type Metadata struct {
	Tags map[string]string `json:"tags,omitempty"`
}

// TagKeys returns the metadata tag keys, sorted.
func (m Metadata) TagKeys() []string {
	keys := make([]string, 0, len(m.Tags))
	for k := range m.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Inputs is the decoded policy/trust/metadata triple together with the raw
// documents, which are handed to external evaluators untouched.
type Inputs struct {
	Policy   Document
	Trust    Trust
	Metadata Metadata

	// HasMetadata is false when no metadata document was supplied; the tag rule
	// only runs when metadata is present.
	HasMetadata bool

	RawPolicy   map[string]any
	RawTrust    map[string]any
	RawMetadata map[string]any
}

// DecodeInputs decodes the three documents. Empty or malformed documents
// decode to zero values; this never fails.
func DecodeInputs(policy, trust, metadata []byte) Inputs {
	var in Inputs
	in.RawPolicy = decodeObject(policy)
	in.RawTrust = decodeObject(trust)
	in.RawMetadata = decodeObject(metadata)

	if len(in.RawPolicy) > 0 {
		_ = json.Unmarshal(policy, &in.Policy)
	}
	if len(in.RawTrust) > 0 {
		_ = json.Unmarshal(trust, &in.Trust)
	}
	if len(in.RawMetadata) > 0 {
		in.HasMetadata = true
		in.Metadata = decodeMetadata(in.RawMetadata)
	}
	return in
}

func decodeObject(data []byte) map[string]any {
	out := map[string]any{}
	if len(data) == 0 {
		return out
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return out
	}
	return m
}

func decodeMetadata(raw map[string]any) Metadata {
	md := Metadata{Tags: map[string]string{}}
	tags, ok := raw["tags"].(map[string]any)
	if !ok {
		return md
	}
	for k, v := range tags {
		if s, ok := v.(string); ok {
			md.Tags[k] = s
		} else {
			b, _ := json.Marshal(v)
			md.Tags[k] = string(b)
		}
	}
	return md
}
