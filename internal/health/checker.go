// Package health reports the readiness of the gate's dependencies for the
// HTTP surface: the approval store, the policy evaluator and any backend
// that exposes a ping.
//
//	probes := health.NewProbeManager(version.Version)
//	probes.AddChecker(health.NewApprovalStoreChecker(store))
//	probes.AddChecker(health.NewEvaluatorChecker(evaluator))
package health

import (
	"context"
	"time"
)

// Checker verifies one dependency. Check must respect ctx's deadline.
type Checker interface {
	// Name is lowercase with hyphens, e.g. "approval-store".
	Name() string
	Check(ctx context.Context) *Result
}

// Status is the health of a component.
type Status string

const (
	StatusHealthy Status = "healthy"

	// StatusDegraded means the gate still serves reviews with reduced
	// fidelity, e.g. the heuristic policy fallback.
	StatusDegraded Status = "degraded"

	StatusUnhealthy Status = "unhealthy"
)

func (s Status) String() string {
	return string(s)
}

// Result is the outcome of one check.
type Result struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration  `json:"latency_ns"`
}

// NewResult creates a result with an empty detail map.
func NewResult(status Status, message string) *Result {
	return &Result{Status: status, Message: message, Details: map[string]any{}}
}

// WithDetail adds a detail and returns r for chaining.
func (r *Result) WithDetail(key string, value any) *Result {
	r.Details[key] = value
	return r
}

// Healthy creates a healthy result.
func Healthy(message string) *Result { return NewResult(StatusHealthy, message) }

// Degraded creates a degraded result.
func Degraded(message string) *Result { return NewResult(StatusDegraded, message) }

// Unhealthy creates an unhealthy result.
func Unhealthy(message string) *Result { return NewResult(StatusUnhealthy, message) }
