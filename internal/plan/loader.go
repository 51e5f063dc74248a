package plan

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// ObjectFetcher reads an object from blob storage.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

type rawChange struct {
	Actions []Action        `json:"actions"`
	Before  json.RawMessage `json:"before"`
	After   json.RawMessage `json:"after"`
}

type rawResourceChange struct {
	Type    string    `json:"type"`
	Address string    `json:"address"`
	Change  rawChange `json:"change"`
}

type rawPlan struct {
	ResourceChanges []json.RawMessage `json:"resource_changes"`
}

// Parse decodes plan JSON. Only a syntax error in the top-level document is
// reported; a missing resource_changes key yields an empty plan, and entries
// or attribute maps of the wrong shape are dropped or treated as absent.
func Parse(data []byte) (ChangePlan, error) {
	var raw rawPlan
	if err := decode(data, &raw); err != nil {
		return ChangePlan{}, err
	}

	p := ChangePlan{ResourceChanges: make([]ResourceChange, 0, len(raw.ResourceChanges))}
	for _, entry := range raw.ResourceChanges {
		var rc rawResourceChange
		if err := decode(entry, &rc); err != nil {
			continue
		}
		p.ResourceChanges = append(p.ResourceChanges, ResourceChange{
			Type:    rc.Type,
			Address: rc.Address,
			Change: Change{
				Actions: rc.Change.Actions,
				Before:  attributeMap(rc.Change.Before),
				After:   attributeMap(rc.Change.After),
			},
		})
	}
	return p, nil
}

// Load reads a plan from a local path or an s3://bucket/key URI.
func Load(ctx context.Context, source string, fetcher ObjectFetcher) (ChangePlan, error) {
	data, err := readSource(ctx, source, fetcher)
	if err != nil {
		return ChangePlan{}, err
	}
	p, err := Parse(data)
	if err != nil {
		return ChangePlan{}, errors.NewPlanInvalidError(source, err)
	}
	return p, nil
}

func readSource(ctx context.Context, source string, fetcher ObjectFetcher) ([]byte, error) {
	if bucket, key, ok := splitS3URI(source); ok {
		if fetcher == nil {
			return nil, errors.New(errors.ErrCodePlanFetch, errors.KindInput,
				"s3 plan source requires an object fetcher").
				WithSuggestion("Configure aws.region or pass a local plan path")
		}
		data, err := fetcher.Fetch(ctx, bucket, key)
		if err != nil {
			return nil, errors.NewUpstreamError(errors.ErrCodePlanFetch, "s3-get-failed: "+source, err)
		}
		return data, nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(source)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, errors.KindInput, "read plan file", err)
	}
	return data, nil
}

// splitS3URI splits s3://bucket/key. Both parts must be non-empty.
func splitS3URI(source string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(source, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

func attributeMap(raw json.RawMessage) map[string]any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var m map[string]any
	if err := decode(trimmed, &m); err != nil {
		return nil
	}
	return m
}

// decode keeps numbers as json.Number so account IDs survive unchanged.
func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
