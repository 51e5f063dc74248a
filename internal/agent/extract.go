package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// ErrNoJSONObject is returned when text holds no parsable JSON object.
var ErrNoJSONObject = errors.New(errors.ErrCodeAgentNoVerdict, errors.KindArbitrationFailure,
	"no JSON object in reviewer output")

// ExtractJSONObject parses the span from the first '{' to the last '}' of
// text. Numbers decode as json.Number.
func ExtractJSONObject(text string) (map[string]any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, ErrNoJSONObject
	}

	span := text[start : end+1]
	dec := json.NewDecoder(strings.NewReader(span))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSONObject, err)
	}
	if rest := strings.TrimSpace(span[dec.InputOffset():]); rest != "" {
		return nil, fmt.Errorf("%w: trailing data after object", ErrNoJSONObject)
	}
	return obj, nil
}
