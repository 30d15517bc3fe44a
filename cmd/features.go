package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/TheOriginalAyaka/discord-package-app/internal/config"
	"github.com/TheOriginalAyaka/discord-package-app/internal/features"
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Show the features requested for new sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		printFeatures(cmd.OutOrStdout(), cfg.FeatureSet())
		return nil
	},
}

var featuresSetCmd = &cobra.Command{
	Use:   "set <feature,...>",
	Short: "Choose the features requested for new sessions",
	Long: `Save the features requested for new sessions to the config file. Overview
is always included. A running 'dpkg watch' picks the change up for the next
archive.

Example:
  dpkg features set overview,analytics
  dpkg features set overview`,
	Args: cobra.ExactArgs(1),
	RunE: runFeaturesSet,
}

func init() {
	rootCmd.AddCommand(featuresCmd)
	featuresCmd.AddCommand(featuresSetCmd)
}

func runFeaturesSet(cmd *cobra.Command, args []string) error {
	set, err := features.Parse(args[0])
	if err != nil {
		return err
	}
	if err := config.SaveFeatures(configFilePath(), set); err != nil {
		return fmt.Errorf("saving features: %w", err)
	}
	cfg.Features = set.Map()
	printFeatures(cmd.OutOrStdout(), set)
	return nil
}

func printFeatures(out io.Writer, set features.Set) {
	for _, f := range features.Known() {
		state := "off"
		if set.Enabled(f) {
			state = "on"
		}
		fmt.Fprintf(out, "%-10s %s\n", f, state)
	}
}
