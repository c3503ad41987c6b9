// Package docctl is the operator command line: key generation, offline
// verification of exported records, token minting and schema migration.
package docctl

import (
	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "docctl",
	Short:         "Operate a docverify deployment",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("docctl version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the command selected by os.Args.
func Execute() error {
	return rootCmd.Execute()
}
