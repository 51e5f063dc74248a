// Package iampolicy decodes AWS IAM policy, trust and resource metadata
// documents into typed values. Decoding is lenient: shapes IAM accepts
// (a single statement object, a scalar action) are normalised, and values of
// unexpected types are dropped rather than rejected.
package iampolicy

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Wildcard is the IAM "any" token.
const Wildcard = "*"

// StringOrList is an IAM field that may be a single string or a list of strings.
type StringOrList struct {
	Values []string
	// Scalar is true when the document used the single-string form.
	Scalar bool
}

// UnmarshalJSON accepts a string, a list (non-string members are ignored) or
// anything else, which decodes to an empty value.
func (s *StringOrList) UnmarshalJSON(data []byte) error {
	*s = StringOrList{}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		s.Values = []string{one}
		s.Scalar = true
		return nil
	}
	var many []any
	if err := json.Unmarshal(data, &many); err == nil {
		for _, v := range many {
			if str, ok := v.(string); ok {
				s.Values = append(s.Values, str)
			}
		}
	}
	return nil
}

// MarshalJSON writes the scalar form back as a string.
func (s StringOrList) MarshalJSON() ([]byte, error) {
	if s.Scalar && len(s.Values) == 1 {
		return json.Marshal(s.Values[0])
	}
	if s.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.Values)
}

// IsEmpty reports whether the field carried no strings.
func (s StringOrList) IsEmpty() bool {
	return len(s.Values) == 0
}

// Is reports whether the field is exactly the scalar value v.
func (s StringOrList) Is(v string) bool {
	return s.Scalar && len(s.Values) == 1 && s.Values[0] == v
}

// Contains reports whether v appears verbatim among the values.
func (s StringOrList) Contains(v string) bool {
	for _, x := range s.Values {
		if x == v {
			return true
		}
	}
	return false
}

// Conditions maps a condition operator (StringEquals, ...) to key/value pairs.
type Conditions map[string]map[string]any

// UnmarshalJSON keeps the operator blocks that are objects and drops the rest.
func (c *Conditions) UnmarshalJSON(data []byte) error {
	*c = nil
	var blocks map[string]json.RawMessage
	if err := json.Unmarshal(data, &blocks); err != nil || blocks == nil {
		return nil
	}
	out := make(Conditions, len(blocks))
	for op, raw := range blocks {
		var kv map[string]any
		if err := json.Unmarshal(raw, &kv); err == nil && kv != nil {
			out[op] = kv
		}
	}
	*c = out
	return nil
}

// Value returns the value of key under operator, or nil.
func (c Conditions) Value(operator, key string) any {
	if c == nil {
		return nil
	}
	block, ok := c[operator]
	if !ok {
		return nil
	}
	return block[key]
}

// Has reports whether a non-empty value is set for key under operator.
func (c Conditions) Has(operator, key string) bool {
	switch v := c.Value(operator, key).(type) {
	case nil:
		return false
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case bool:
		return v
	default:
		return true
	}
}

// Principal holds principal identifiers keyed by type (AWS, Service, Federated).
// The bare "*" principal decodes as AWS: ["*"].
type Principal map[string]StringOrList

// UnmarshalJSON implements json.Unmarshaler.
func (p *Principal) UnmarshalJSON(data []byte) error {
	*p = Principal{}
	var star string
	if err := json.Unmarshal(data, &star); err == nil {
		if star != "" {
			(*p)["AWS"] = StringOrList{Values: []string{star}, Scalar: true}
		}
		return nil
	}
	var m map[string]StringOrList
	if err := json.Unmarshal(data, &m); err == nil {
		for k, v := range m {
			(*p)[k] = v
		}
	}
	return nil
}

// AWS returns the AWS principal identifiers.
func (p Principal) AWS() []string {
	if p == nil {
		return nil
	}
	return p["AWS"].Values
}

// Statement is one IAM policy statement.
type Statement struct {
	Sid       string       `json:"Sid,omitempty"`
	Effect    string       `json:"Effect,omitempty"`
	Action    StringOrList `json:"Action"`
	NotAction StringOrList `json:"NotAction"`
	Resource  StringOrList `json:"Resource"`
	Principal Principal    `json:"Principal,omitempty"`
	Condition Conditions   `json:"Condition,omitempty"`
}

// UnmarshalJSON decodes each element on its own. An element of the wrong
// type is left at its zero value and the rest of the statement survives.
func (st *Statement) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*st = Statement{}
	decodeField(fields, "Sid", &st.Sid)
	decodeField(fields, "Effect", &st.Effect)
	decodeField(fields, "Action", &st.Action)
	decodeField(fields, "NotAction", &st.NotAction)
	decodeField(fields, "Resource", &st.Resource)
	decodeField(fields, "Principal", &st.Principal)
	decodeField(fields, "Condition", &st.Condition)
	return nil
}

func decodeField(fields map[string]json.RawMessage, key string, v any) {
	if raw, ok := fields[key]; ok {
		_ = json.Unmarshal(raw, v)
	}
}

// Statements decodes either a statement list or a single statement object.
// List members that are not objects decode as empty statements so indexes
// keep matching the document.
type Statements []Statement

// UnmarshalJSON implements json.Unmarshaler.
func (s *Statements) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = nil
		return nil
	}
	if trimmed[0] == '{' {
		var one Statement
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return err
		}
		*s = Statements{one}
		return nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return err
	}
	many := make(Statements, len(raws))
	for i, raw := range raws {
		_ = json.Unmarshal(raw, &many[i])
	}
	*s = many
	return nil
}

// Document is an IAM policy document.
type Document struct {
	Version   string     `json:"Version,omitempty"`
	Statement Statements `json:"Statement"`
}

// UnmarshalJSON tolerates a Version of the wrong type. A Statement that is
// neither an object nor a list is an error.
func (d *Document) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*d = Document{}
	decodeField(fields, "Version", &d.Version)
	if raw, ok := fields["Statement"]; ok {
		return json.Unmarshal(raw, &d.Statement)
	}
	return nil
}

// ParseDocument decodes a JSON-encoded policy document, as carried in a
// Terraform "policy" attribute. ok is false when the text is not a JSON object
// with a decodable statement list.
func ParseDocument(text string) (Document, bool) {
	text = strings.TrimSpace(text)
	if text == "" || text[0] != '{' {
		return Document{}, false
	}
	var doc Document
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return Document{}, false
	}
	return doc, true
}

// ActionMatches reports whether an action field grants needle. A "*" in the
// field matches any action, and the needle "*" matches any present action.
func ActionMatches(field StringOrList, needle string) bool {
	for _, a := range field.Values {
		if a == needle || a == Wildcard || needle == Wildcard {
			return true
		}
	}
	return false
}
