package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/bundle"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Policy bundle hashing and approval",
	Long: `The policy bundle is the set of rule and gate sources whose content
hash must be approved before any review runs. Approvals live in the
configured store (DynamoDB or Redis) and are written only by
"iamgate bundle approve", never by a review.`,
}

var (
	bundleRoot    string
	bundleTargets []string
)

var bundleHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Compute the policy bundle hash",
	Long: `Print the hex SHA-256 of the bundle files concatenated in order.
Missing files are skipped.

Examples:
  iamgate bundle hash
  iamgate bundle hash --root /src/iamgate --targets policies/iam.rego,internal/lint/rules.go`,
	Args: cobra.NoArgs,
	RunE: runBundleHash,
}

var bundleCheckHash string

var bundleCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a bundle hash is approved",
	Long: `Look up the approval record for a hash. Without --hash, the hash
configured as bundle.hash is checked. Exits 7 when the bundle is not
approved.`,
	Args: cobra.NoArgs,
	RunE: runBundleCheck,
}

var bundleRevoke bool

var bundleApproveCmd = &cobra.Command{
	Use:   "approve <hash>",
	Short: "Record an approval for a bundle hash",
	Long: `Write the approval record for a reviewed bundle hash. With --revoke
the record is written as not approved.`,
	Args: cobra.ExactArgs(1),
	RunE: runBundleApprove,
}

func init() {
	bundleHashCmd.Flags().StringVar(&bundleRoot, "root", ".", "repository root the targets are relative to")
	bundleHashCmd.Flags().StringSliceVar(&bundleTargets, "targets", nil, "bundle files (default bundle.targets from config)")

	bundleCheckCmd.Flags().StringVar(&bundleCheckHash, "hash", "", "bundle hash (default bundle.hash from config)")

	bundleApproveCmd.Flags().BoolVar(&bundleRevoke, "revoke", false, "record the hash as not approved")

	bundleCmd.AddCommand(bundleHashCmd, bundleCheckCmd, bundleApproveCmd)
	rootCmd.AddCommand(bundleCmd)
}

func runBundleHash(cmd *cobra.Command, _ []string) error {
	targets := splitList(bundleTargets)
	if len(targets) == 0 {
		targets = appCfg.Bundle.Targets
	}
	if len(targets) == 0 {
		targets = bundle.DefaultTargets
	}
	hash, err := bundle.ComputeHash(os.DirFS(bundleRoot), targets)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
	return err
}

func runBundleCheck(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	store, err := newComponents(appCfg, logger).approvals(ctx)
	if err != nil {
		return err
	}

	hash := bundleCheckHash
	if hash == "" {
		hash = appCfg.Bundle.Hash
	}
	res := bundle.NewGate(store, logger).Check(ctx, hash)
	if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	return res.Err()
}

func runBundleApprove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := newComponents(appCfg, logger).approvals(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New(errors.ErrCodeConfigInvalid, errors.KindInput, "no approval store configured").
			WithSuggestion("Set bundle.backend and bundle.table (or bundle.redis_addr) in the config file")
	}

	a := bundle.Approval{Hash: args[0], Approved: !bundleRevoke}
	if err := store.PutApproval(ctx, a); err != nil {
		return err
	}
	logger.Info("bundle approval recorded", "hash", a.Hash, "approved", a.Approved, "backend", appCfg.Bundle.Backend)
	return writeJSON(cmd.OutOrStdout(), a)
}
