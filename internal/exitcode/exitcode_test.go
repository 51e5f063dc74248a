package exitcode

import (
	"context"
	"errors"
	"fmt"
	"testing"

	gateerrors "github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

func TestDetermineExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil error returns success", err: nil, expected: Success},
		{name: "context canceled", err: fmt.Errorf("run: %w", context.Canceled), expected: Interrupted},
		{
			name:     "bundle not approved",
			err:      gateerrors.NewBundleNotApprovedError("abc", "not-approved"),
			expected: BundleNotApproved,
		},
		{
			name:     "policy deny",
			err:      gateerrors.New(gateerrors.ErrCodePolicyDenied, gateerrors.KindPolicyFailClosed, "red"),
			expected: PolicyViolation,
		},
		{
			name:     "drift suspect",
			err:      gateerrors.New(gateerrors.ErrCodeDriftSuspect, gateerrors.KindPolicyFailClosed, "drift"),
			expected: DriftDetected,
		},
		{
			name:     "upstream transient",
			err:      gateerrors.NewUpstreamError(gateerrors.ErrCodePlanFetch, "s3", errors.New("timeout")),
			expected: NetworkError,
		},
		{
			name:     "input error",
			err:      gateerrors.NewFileNotFoundError("plan.json"),
			expected: UsageError,
		},
		{name: "plain error", err: errors.New("boom"), expected: GeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineExitCode(tt.err); got != tt.expected {
				t.Errorf("DetermineExitCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestDescription(t *testing.T) {
	for _, code := range []int{Success, GeneralError, UsageError, PolicyViolation, DriftDetected, NetworkError, BundleNotApproved, Interrupted} {
		if Description(code) == "Unknown error" {
			t.Errorf("code %d has no description", code)
		}
	}
	if Description(99) != "Unknown error" {
		t.Error("unexpected description for unknown code")
	}
}
