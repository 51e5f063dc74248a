package bundle

import (
	"context"
	"fmt"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/log"
)

// Reason codes reported by Gate.Check.
const (
	ReasonNoTable     = "no-table"
	ReasonNoHash      = "no-hash"
	ReasonApproved    = "approved"
	ReasonNotApproved = "not-approved"
	ReasonLookupError = "ddb-error"
)

// Result is the outcome of a bundle check.
type Result struct {
	Approved bool   `json:"approved"`
	Hash     string `json:"hash"`
	Reason   string `json:"reason"`
}

// Err returns nil for an approved bundle and a fail-closed GateError
// otherwise.
func (r Result) Err() error {
	if r.Approved {
		return nil
	}
	return errors.NewBundleNotApprovedError(r.Hash, r.Reason)
}

// Gate checks bundle hashes against an ApprovalStore. A nil Store means the
// approval table is not configured.
type Gate struct {
	Store  ApprovalStore
	Logger *log.Logger
}

// NewGate returns a gate over store.
func NewGate(store ApprovalStore, logger *log.Logger) *Gate {
	return &Gate{Store: store, Logger: logger}
}

// Check fails closed: only an existing record with approved=true passes.
func (g *Gate) Check(ctx context.Context, hash string) (res Result) {
	logger := log.OrDefault(g.Logger).With("bundle_hash", hash)
	res = Result{Hash: hash}

	if g.Store == nil {
		res.Reason = ReasonNoTable
		logger.Error("bundle approval store not configured")
		return res
	}
	if hash == "" {
		res.Reason = ReasonNoHash
		logger.Error("missing bundle hash")
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{Hash: hash, Reason: ReasonLookupError}
			logger.Error("bundle approval lookup panicked", "panic", fmt.Sprint(r))
		}
	}()

	a, found, err := g.Store.GetApproval(ctx, hash)
	switch {
	case err != nil:
		res.Reason = ReasonLookupError
		logger.WithError(err).Error("bundle approval lookup failed")
	case found && a.Approved:
		res.Approved = true
		res.Reason = ReasonApproved
		logger.Info("bundle approved")
	default:
		res.Reason = ReasonNotApproved
		logger.Error("bundle not approved")
	}
	return res
}
