package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/metrics"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/pipeline"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/plan"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/risk"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run the full gate over a Terraform plan",
	Long: `Run every stage of the gate over a Terraform plan and print the outcome.

The plan is the output of "terraform show -json" and may be a local path or
an s3://bucket/key URI. Policy, trust and metadata documents are optional.

The command exits 3 when the verdict reaches --fail-on, 7 when the policy
bundle is not approved and 6 on retryable AWS failures.

Examples:
  # Review a local plan against the approved bundle
  iamgate review --plan plan.json --bundle-hash $(iamgate bundle hash)

  # Review a plan from S3 with explicit spoke accounts, failing on amber
  iamgate review --plan s3://plans/pr-42.json --accounts 111111111111,222222222222 --fail-on amber

  # Print the markdown summary instead of JSON
  iamgate review --plan plan.json --policy policy.json --format markdown`,
	RunE: runReview,
}

var (
	reviewPlan       string
	reviewPolicy     string
	reviewTrust      string
	reviewMetadata   string
	reviewAccounts   []string
	reviewBundleHash string
	reviewFormat     string
	reviewFailOn     string
	reviewRepo       string
	reviewSHA        string
	reviewRunID      string
)

func init() {
	reviewCmd.Flags().StringVar(&reviewPlan, "plan", "", "plan JSON path or s3:// URI (required)")
	reviewCmd.Flags().StringVar(&reviewPolicy, "policy", "", "IAM policy document JSON")
	reviewCmd.Flags().StringVar(&reviewTrust, "trust", "", "role trust policy JSON")
	reviewCmd.Flags().StringVar(&reviewMetadata, "metadata", "", "resource metadata JSON (tags)")
	reviewCmd.Flags().StringSliceVar(&reviewAccounts, "accounts", nil, "spoke account IDs; overrides accounts found in the plan")
	reviewCmd.Flags().StringVar(&reviewBundleHash, "bundle-hash", "", "policy bundle hash (default bundle.hash from config)")
	reviewCmd.Flags().StringVar(&reviewFormat, "format", formatJSON, "output format: json or markdown")
	reviewCmd.Flags().StringVar(&reviewFailOn, "fail-on", string(risk.Red), "lowest verdict that fails the command: red, amber or none")
	reviewCmd.Flags().StringVar(&reviewRepo, "repo", "", "repository, for audit and logs")
	reviewCmd.Flags().StringVar(&reviewSHA, "sha", "", "commit SHA, for audit and logs")
	reviewCmd.Flags().StringVar(&reviewRunID, "run-id", "", "run ID (default: generated)")
	_ = reviewCmd.MarkFlagRequired("plan")

	rootCmd.AddCommand(reviewCmd)
}

type reviewRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

type reviewOptions struct {
	Format string
	FailOn string
}

func runReview(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	opts := reviewOptions{Format: reviewFormat, FailOn: reviewFailOn}
	if err := opts.validate(); err != nil {
		return err
	}

	comps := newComponents(appCfg, logger)
	changePlan, err := plan.Load(ctx, reviewPlan, comps.fetcher(ctx))
	if err != nil {
		return err
	}
	policy, err := readOptional(reviewPolicy)
	if err != nil {
		return err
	}
	trust, err := readOptional(reviewTrust)
	if err != nil {
		return err
	}
	metadata, err := readOptional(reviewMetadata)
	if err != nil {
		return err
	}

	asm, err := comps.pipeline(ctx, metrics.Default())
	if err != nil {
		return err
	}

	hash := reviewBundleHash
	if hash == "" {
		hash = appCfg.Bundle.Hash
	}
	return executeReview(ctx, cmd.OutOrStdout(), asm.Pipeline, pipeline.Request{
		RunID:         reviewRunID,
		Repo:          reviewRepo,
		SHA:           reviewSHA,
		BundleHash:    hash,
		Plan:          changePlan,
		Policy:        policy,
		Trust:         trust,
		Metadata:      metadata,
		SpokeAccounts: splitList(reviewAccounts),
	}, opts)
}

func (o reviewOptions) validate() error {
	switch o.Format {
	case formatJSON, formatMarkdown:
	default:
		return usageError(fmt.Sprintf("invalid --format %q (expected json or markdown)", o.Format))
	}
	switch o.FailOn {
	case string(risk.Red), string(risk.Amber), "none":
	default:
		return usageError(fmt.Sprintf("invalid --fail-on %q (expected red, amber or none)", o.FailOn))
	}
	return nil
}

// executeReview prints whatever outcome the run produced, then reports the
// run error or, failing that, a verdict at or above the fail-on level.
func executeReview(ctx context.Context, w io.Writer, r reviewRunner, req pipeline.Request, opts reviewOptions) error {
	out, runErr := r.Run(ctx, req)
	if out != nil {
		if err := renderOutcome(w, out, opts.Format); err != nil {
			return err
		}
	}
	if runErr != nil || out == nil {
		return runErr
	}
	if failsAt(out.Verdict.Verdict, opts.FailOn) {
		return errors.New(errors.ErrCodePolicyDenied, errors.KindPolicyFailClosed,
			fmt.Sprintf("verdict %s reached --fail-on %s", out.Verdict.Verdict, opts.FailOn))
	}
	return nil
}

func renderOutcome(w io.Writer, out *pipeline.Outcome, format string) error {
	if format == formatMarkdown {
		_, err := fmt.Fprintln(w, out.Verdict.Markdown)
		return err
	}
	return writeJSON(w, out)
}

func failsAt(level risk.Level, failOn string) bool {
	switch failOn {
	case string(risk.Red):
		return level == risk.Red
	case string(risk.Amber):
		return level == risk.Red || level == risk.Amber
	}
	return false
}
