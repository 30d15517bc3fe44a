package cmd

import (
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a demo session on bundled sample data",
	Long: `Play back a scripted session from bundled sample data. No archive or engine
is needed. The overview arrives after demo.primary_delay and, when the
analytics feature is enabled, analytics after demo.analytics_delay.`,
	Args: cobra.NoArgs,
	RunE: runDemo,
}

var demoFlags sessionFlags

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().BoolVar(&demoFlags.plain, "plain", false, "print progress lines instead of the interactive monitor")
	demoCmd.Flags().BoolVar(&demoFlags.asJSON, "json", false, "print the results as JSON when the session finishes")
}

func runDemo(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	return runOnce(cmd.Context(), rt, cmd.OutOrStdout(), demoFlags, rt.coord.StartDemo)
}
