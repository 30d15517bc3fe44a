package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/TheOriginalAyaka/discord-package-app/internal/features"
	"github.com/TheOriginalAyaka/discord-package-app/internal/session"
)

var extractCmd = &cobra.Command{
	Use:   "extract <archive.zip>",
	Short: "Extract statistics from a data package archive",
	Long: `Run the configured extraction engine on a Discord data package archive and
follow the session until it finishes.

Analytics is requested when the analytics feature is enabled in the config;
--analytics and --no-analytics override that for one run.

Example:
  dpkg extract ~/Downloads/package.zip
  dpkg extract package.zip --no-analytics --plain
  dpkg extract package.zip --json > stats.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

var (
	extractFlags       sessionFlags
	extractAnalytics   bool
	extractNoAnalytics bool
)

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().BoolVar(&extractFlags.plain, "plain", false, "print progress lines instead of the interactive monitor")
	extractCmd.Flags().BoolVar(&extractFlags.asJSON, "json", false, "print the results as JSON when the session finishes")
	extractCmd.Flags().BoolVar(&extractAnalytics, "analytics", false, "request analytics for this run")
	extractCmd.Flags().BoolVar(&extractNoAnalytics, "no-analytics", false, "skip analytics for this run")
	extractCmd.MarkFlagsMutuallyExclusive("analytics", "no-analytics")
}

func runExtract(cmd *cobra.Command, args []string) error {
	if cfg.Engine.Command == "" {
		return fmt.Errorf("no extraction engine configured (set engine.command in %s)", configFilePath())
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving archive path: %w", err)
	}

	rt, err := newRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := extractOptions(cfg.FeatureSet(), extractAnalytics, extractNoAnalytics)
	return runOnce(cmd.Context(), rt, cmd.OutOrStdout(), extractFlags, func() error {
		return rt.coord.Start(path, opts)
	})
}

// extractOptions applies the per-run analytics overrides to the configured set.
func extractOptions(enabled features.Set, analytics, noAnalytics bool) session.StartOptions {
	switch {
	case analytics:
		enabled = enabled.With(features.Analytics)
	case noAnalytics:
		enabled = enabled.Without(features.Analytics)
	}
	return session.OptionsFor(enabled)
}
