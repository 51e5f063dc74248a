package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/impact"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/plan"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize the IAM changes in a Terraform plan",
	Long: `Print the plan summary: action counts, touched roles and modules,
wildcard actions in policy documents, accounts found in tags and the blast
radius those modules and accounts imply.`,
	RunE: runSummarize,
}

var summarizePlan string

func init() {
	summarizeCmd.Flags().StringVar(&summarizePlan, "plan", "", "plan JSON path or s3:// URI (required)")
	_ = summarizeCmd.MarkFlagRequired("plan")

	rootCmd.AddCommand(summarizeCmd)
}

type summaryOutput struct {
	plan.Summary
	Impact impact.Assessment `json:"impact"`
}

func runSummarize(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	comps := newComponents(appCfg, logger)

	p, err := plan.Load(ctx, summarizePlan, comps.fetcher(ctx))
	if err != nil {
		return err
	}
	s := plan.Summarize(p)
	mapper := impact.Mapper{Thresholds: appCfg.Impact}
	return writeJSON(cmd.OutOrStdout(), summaryOutput{Summary: s, Impact: mapper.AssessSummary(s)})
}
