package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

const (
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

// readOptional returns nil for an empty path.
func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, errors.KindInput, "read "+path, err)
	}
	return data, nil
}

// splitList flattens repeated and comma-separated flag values, dropping
// blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func usageError(msg string) error {
	return errors.New(errors.ErrCodeConfigInvalid, errors.KindInput, msg)
}
