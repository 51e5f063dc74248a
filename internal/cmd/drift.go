package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/plan"
)

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Check live IAM roles in spoke accounts",
	Long: `Assume the read-only role in each spoke account and compare the live
roles with the roles the change intends to touch.

Roles and accounts come from --roles and --accounts, or from a plan with
--plan. The command exits 4 when drift is suspected and 6 when base AWS
credentials cannot be resolved.

Examples:
  iamgate drift --roles app-deployer,app-reader --accounts 111111111111
  iamgate drift --plan plan.json`,
	RunE: runDrift,
}

var (
	driftRoles    []string
	driftAccounts []string
	driftPlan     string
)

func init() {
	driftCmd.Flags().StringSliceVar(&driftRoles, "roles", nil, "intended role names")
	driftCmd.Flags().StringSliceVar(&driftAccounts, "accounts", nil, "spoke account IDs")
	driftCmd.Flags().StringVar(&driftPlan, "plan", "", "take roles and accounts from this plan")

	rootCmd.AddCommand(driftCmd)
}

func runDrift(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	comps := newComponents(appCfg, logger)

	roles, accounts := splitList(driftRoles), splitList(driftAccounts)
	if driftPlan != "" {
		p, err := plan.Load(ctx, driftPlan, comps.fetcher(ctx))
		if err != nil {
			return err
		}
		s := plan.Summarize(p)
		roles = append(roles, s.IAM.RolesAffected...)
		if len(accounts) == 0 {
			accounts = s.Accounts
		}
	}

	report, err := comps.detector(ctx).Detect(ctx, roles, accounts)
	if err != nil {
		return err
	}
	if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
		return err
	}
	if report.Suspect() {
		return errors.New(errors.ErrCodeDriftSuspect, errors.KindPolicyFailClosed,
			fmt.Sprintf("%d intended role(s) missing across %d account(s)", report.Summary.MissingRoles, report.Summary.Accounts))
	}
	return nil
}
