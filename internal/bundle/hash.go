package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// DefaultTargets are the files, relative to the repository root, whose
// concatenated content forms the bundle hash: the shipped rules and the code
// that gates, lints, arbitrates and maps the verdict.
var DefaultTargets = []string{
	"internal/policygate/policies/iam.rego",
	"internal/policygate/gate.go",
	"internal/lint/rules.go",
	"internal/agent/arbiter.go",
	"internal/verdict/consolidate.go",
	"internal/verdict/checks.go",
}

// ComputeHash returns the hex SHA-256 of the listed files concatenated in
// order. Missing files are skipped; any other read error is returned.
func ComputeHash(fsys fs.FS, paths []string) (string, error) {
	h := sha256.New()
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", errors.Wrap(errors.ErrCodeBundleHash, errors.KindInput, "read bundle file "+p, err)
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
