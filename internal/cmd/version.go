package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print version information including version number, git commit,
build date, Go version, and platform.`,
	RunE: runVersion,
}

var (
	versionVerbose bool
	versionJSON    bool
)

func init() {
	versionCmd.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "show detailed version information")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output version information as JSON")

	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, _ []string) error {
	info := version.GetInfo()
	w := cmd.OutOrStdout()

	switch {
	case versionJSON:
		return writeJSON(w, info)
	case versionVerbose:
		_, err := fmt.Fprintln(w, info.String())
		return err
	}
	_, err := fmt.Fprintf(w, "iamgate %s\n", info.Short())
	return err
}
