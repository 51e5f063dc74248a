package exitcode

import (
	"context"
	"os"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates the gate ran and the verdict is within the allowed level
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// PolicyViolation indicates the verdict reached the --fail-on level
	PolicyViolation = 3

	// DriftDetected indicates live IAM state drifted from the plan
	DriftDetected = 4

	// NetworkError indicates a retryable upstream failure
	NetworkError = 6

	// BundleNotApproved indicates the policy bundle gate failed closed
	BundleNotApproved = 7

	// Interrupted indicates the run was cancelled by a signal
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps an error to an exit code using its GateError code and kind.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}
	if errors.Is(err, context.Canceled) {
		return Interrupted
	}

	switch errors.CodeOf(err) {
	case errors.ErrCodeBundleNotApproved:
		return BundleNotApproved
	case errors.ErrCodePolicyDenied:
		return PolicyViolation
	case errors.ErrCodeDriftSuspect:
		return DriftDetected
	case errors.ErrCodeConfigInvalid:
		return UsageError
	}

	switch errors.KindOf(err) {
	case errors.KindPolicyFailClosed:
		return PolicyViolation
	case errors.KindUpstreamTransient:
		return NetworkError
	case errors.KindInput:
		return UsageError
	}

	return GeneralError
}

// Description returns a human-readable description of an exit code
func Description(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags, arguments or input)"
	case PolicyViolation:
		return "Policy violation"
	case DriftDetected:
		return "IAM drift detected"
	case NetworkError:
		return "Upstream error (retryable)"
	case BundleNotApproved:
		return "Policy bundle not approved"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
