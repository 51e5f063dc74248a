// Package audit appends one record per pipeline run to an append-only trail.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// Record is the audit entry written once per run, keyed by RunID.
type Record struct {
	RunID           string    `json:"run_id"`
	CreatedAt       time.Time `json:"created_at"`
	Repo            string    `json:"repo"`
	SHA             string    `json:"sha"`
	Verdict         string    `json:"verdict"`
	Confidence      float64   `json:"confidence"`
	TokensEstimated int       `json:"tokens_estimated"`
	Source          string    `json:"source"`
}

// Validate checks the fields every backend requires.
func (r Record) Validate() error {
	if r.RunID == "" {
		return errors.New(errors.ErrCodeAuditWrite, errors.KindInput, "audit record requires run_id")
	}
	return nil
}

// Writer appends records. Implementations never update an existing record;
// appending a RunID that already exists is a no-op.
type Writer interface {
	Append(ctx context.Context, r Record) error
}

// MemoryWriter keeps records in process.
type MemoryWriter struct {
	mu      sync.Mutex
	records []Record
	seen    map[string]struct{}
}

// NewMemoryWriter returns an empty writer.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{seen: map[string]struct{}{}}
}

// Append implements Writer.
func (w *MemoryWriter) Append(_ context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, dup := w.seen[r.RunID]; dup {
		return nil
	}
	w.seen[r.RunID] = struct{}{}
	w.records = append(w.records, r)
	return nil
}

// Records returns a copy of the appended records in order.
func (w *MemoryWriter) Records() []Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Record(nil), w.records...)
}
