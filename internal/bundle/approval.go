// Package bundle guards the policy/rule bundle: it hashes the rule sources
// and gating logic, and fails the pipeline closed unless that hash carries an
// explicit approval.
package bundle

import (
	"context"
	"strings"
)

// KeyPrefix precedes the hash in approval record keys.
const KeyPrefix = "CONFIG#BUNDLE#"

// Key returns the approval record key for hash.
func Key(hash string) string {
	return KeyPrefix + hash
}

// HashFromKey is the inverse of Key.
func HashFromKey(key string) (string, bool) {
	return strings.CutPrefix(key, KeyPrefix)
}

// Approval is a persisted approval record.
type Approval struct {
	Hash     string `json:"hash"`
	Approved bool   `json:"approved"`
}

// ApprovalStore reads approval records. found is false when no record exists
// for hash. Lookups have no side effects.
type ApprovalStore interface {
	GetApproval(ctx context.Context, hash string) (a Approval, found bool, err error)
}

// ApprovalWriter records approvals. Only the out-of-band approval command
// writes; the pipeline never does.
type ApprovalWriter interface {
	PutApproval(ctx context.Context, a Approval) error
}
