// Package agent asks a generative reviewer for a verdict over the
// deterministic signals and turns its free-text answer into a Verdict.
package agent

import (
	"context"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/drift"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/impact"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/lint"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/plan"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/risk"
)

// ReviewRequest is one session-scoped reviewer call.
type ReviewRequest struct {
	SessionID   string
	Instruction string
	// ContextJSON is the compact signal digest, already size-capped.
	ContextJSON string
}

// Chunk is a piece of reviewer output. A chunk with Err set ends the stream.
type Chunk struct {
	Text string
	Err  error
}

// Reviewer is a generative review backend. The returned channel is closed
// when the response is complete. Whole-text backends send a single chunk.
type Reviewer interface {
	Name() string
	Review(ctx context.Context, req ReviewRequest) (<-chan Chunk, error)
}

// Single wraps a complete response as a closed one-chunk stream.
func Single(text string, err error) <-chan Chunk {
	ch := make(chan Chunk, 1)
	ch <- Chunk{Text: text, Err: err}
	close(ch)
	return ch
}

// Context carries the deterministic stage outputs the reviewer sees.
type Context struct {
	Repo    string
	SHA     string
	RunID   string
	Summary plan.Summary
	Lint    lint.Result
	Risk    risk.Score
	Drift   drift.Report
	Impact  impact.Assessment
}
