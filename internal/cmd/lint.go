package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Lint IAM policy, trust and metadata documents",
	Long: `Run the lint rules over the given documents and print violations and
warnings. Missing documents are treated as empty.

The command exits 3 when any violation is found.`,
	RunE: runLint,
}

var (
	lintPolicy   string
	lintTrust    string
	lintMetadata string
)

func init() {
	lintCmd.Flags().StringVar(&lintPolicy, "policy", "", "IAM policy document JSON")
	lintCmd.Flags().StringVar(&lintTrust, "trust", "", "role trust policy JSON")
	lintCmd.Flags().StringVar(&lintMetadata, "metadata", "", "resource metadata JSON (tags)")

	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, _ []string) error {
	policy, err := readOptional(lintPolicy)
	if err != nil {
		return err
	}
	trust, err := readOptional(lintTrust)
	if err != nil {
		return err
	}
	metadata, err := readOptional(lintMetadata)
	if err != nil {
		return err
	}

	res := newComponents(appCfg, logger).linter().LintDocuments(policy, trust, metadata)
	if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if n := len(res.Violations); n > 0 {
		return errors.New(errors.ErrCodePolicyDenied, errors.KindPolicyFailClosed,
			fmt.Sprintf("%d lint violation(s)", n))
	}
	return nil
}
