package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Plan errors (PLAN-001 to PLAN-099)
	ErrCodePlanNotFound ErrorCode = "PLAN-001"
	ErrCodePlanInvalid  ErrorCode = "PLAN-002"
	ErrCodePlanFetch    ErrorCode = "PLAN-003"

	// Policy errors (POLICY-001 to POLICY-099)
	ErrCodePolicyDenied          ErrorCode = "POLICY-001"
	ErrCodePolicyEvaluator       ErrorCode = "POLICY-002"
	ErrCodePolicyEvaluatorAbsent ErrorCode = "POLICY-003"
	ErrCodePolicyForbiddenCall   ErrorCode = "POLICY-004"

	// Bundle errors (BUNDLE-001 to BUNDLE-099)
	ErrCodeBundleNotApproved ErrorCode = "BUNDLE-001"
	ErrCodeBundleLookup      ErrorCode = "BUNDLE-002"
	ErrCodeBundleHash        ErrorCode = "BUNDLE-003"

	// Drift errors (DRIFT-001 to DRIFT-099)
	ErrCodeDriftAssumeRole ErrorCode = "DRIFT-001"
	ErrCodeDriftListRoles  ErrorCode = "DRIFT-002"
	ErrCodeDriftAttached   ErrorCode = "DRIFT-003"
	ErrCodeDriftCredential ErrorCode = "DRIFT-004"
	ErrCodeDriftSuspect    ErrorCode = "DRIFT-005"

	// Agent errors (AGENT-001 to AGENT-099)
	ErrCodeAgentNotConfigured ErrorCode = "AGENT-001"
	ErrCodeAgentTransport     ErrorCode = "AGENT-002"
	ErrCodeAgentNoVerdict     ErrorCode = "AGENT-003"

	// Audit errors (AUDIT-001 to AUDIT-099)
	ErrCodeAuditWrite ErrorCode = "AUDIT-001"

	// Config errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"
	ErrCodeConfigRead    ErrorCode = "CONFIG-002"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound   ErrorCode = "IO-001"
	ErrCodeFileReadFailed ErrorCode = "IO-002"
	ErrCodeFileUnmarshal  ErrorCode = "IO-005"
)

// Kind classifies a failure so the surrounding orchestrator knows whether a
// retry can change the outcome.
type Kind string

const (
	// KindInput covers malformed or missing input; stages degrade instead of failing.
	KindInput Kind = "input"
	// KindUpstreamTransient covers cloud API, HTTP and evaluator process failures.
	KindUpstreamTransient Kind = "upstream_transient"
	// KindPolicyFailClosed is a terminal rejection (unapproved bundle, policy deny).
	KindPolicyFailClosed Kind = "policy_fail_closed"
	// KindPartialFailure is a failure isolated to one unit of work, e.g. one account.
	KindPartialFailure Kind = "partial_failure"
	// KindArbitrationFailure means the generative reviewer produced no usable verdict.
	KindArbitrationFailure Kind = "arbitration_failure"
)

// GateError represents an enhanced error with code, kind and suggestions
type GateError struct {
	Code        ErrorCode
	Kind        Kind
	Message     string
	Suggestions []string
	Retryable   bool
	Cause       error
}

// Error implements the error interface
func (e *GateError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *GateError) Unwrap() error {
	return e.Cause
}

// New creates a new GateError. Upstream transient errors are retryable by default.
func New(code ErrorCode, kind Kind, message string) *GateError {
	return &GateError{
		Code:      code,
		Kind:      kind,
		Message:   message,
		Retryable: kind == KindUpstreamTransient,
	}
}

// Wrap creates a new GateError wrapping an existing error
func Wrap(code ErrorCode, kind Kind, message string, cause error) *GateError {
	e := New(code, kind, message)
	e.Cause = cause
	return e
}

// WithSuggestion adds a suggestion to the error
func (e *GateError) WithSuggestion(suggestion string) *GateError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithRetryable overrides the retry classification.
func (e *GateError) WithRetryable(retryable bool) *GateError {
	e.Retryable = retryable
	return e
}

// KindOf returns the Kind of the first GateError in err's chain, or "" if none.
func KindOf(err error) Kind {
	var ge *GateError
	if stderrors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// CodeOf returns the ErrorCode of the first GateError in err's chain.
func CodeOf(err error) ErrorCode {
	var ge *GateError
	if stderrors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

// IsRetryable reports whether the orchestrator may retry the failed operation
// expecting a different outcome. Unclassified errors are treated as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ge *GateError
	if stderrors.As(err, &ge) {
		return ge.Retryable
	}
	return true
}

// IsTerminal reports whether err is a fail-closed policy outcome.
func IsTerminal(err error) bool {
	return KindOf(err) == KindPolicyFailClosed
}

// Is, As and Join re-export the standard helpers so callers need only this package.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As is errors.As.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join is errors.Join.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// Common error constructors

// NewPlanInvalidError creates a plan parse error
func NewPlanInvalidError(source string, cause error) *GateError {
	return Wrap(ErrCodePlanInvalid, KindInput, fmt.Sprintf("invalid plan JSON: %s", source), cause).
		WithSuggestion("Generate the plan with 'terraform show -json plan.out > plan.json'")
}

// NewBundleNotApprovedError creates a fail-closed bundle rejection
func NewBundleNotApprovedError(hash, reason string) *GateError {
	return New(ErrCodeBundleNotApproved, KindPolicyFailClosed,
		fmt.Sprintf("policy bundle %q not approved (%s)", hash, reason)).
		WithSuggestion("Run 'iamgate bundle approve <hash>' after reviewing the rule changes")
}

// NewUpstreamError wraps a cloud/HTTP failure as retryable
func NewUpstreamError(code ErrorCode, message string, cause error) *GateError {
	return Wrap(code, KindUpstreamTransient, message, cause)
}

// NewArbitrationError signals that the caller must fall back to the deterministic verdict
func NewArbitrationError(code ErrorCode, message string, cause error) *GateError {
	return Wrap(code, KindArbitrationFailure, message, cause).
		WithRetryable(code == ErrCodeAgentTransport)
}

// NewFileNotFoundError creates a file not found error
func NewFileNotFoundError(path string) *GateError {
	return New(ErrCodeFileNotFound, KindInput, fmt.Sprintf("file not found: %s", path)).
		WithSuggestion("Check if the file path is correct")
}

// NewFileUnmarshalError creates an unmarshal error
func NewFileUnmarshalError(path string, format string, cause error) *GateError {
	return Wrap(ErrCodeFileUnmarshal, KindInput, fmt.Sprintf("failed to parse %s file: %s", format, path), cause).
		WithSuggestion(fmt.Sprintf("Ensure the file is valid %s", format))
}
