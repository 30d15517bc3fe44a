package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/TheOriginalAyaka/discord-package-app/internal/config"
	"github.com/TheOriginalAyaka/discord-package-app/internal/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent extraction attempts",
	Long: `List recent extraction attempts from the session journal, newest first,
followed by a count of attempts per result.

Only attempt metadata is kept in the journal; extraction results are never
stored.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyLimit int

const historyArchiveWidth = 60

var historyHeaderStyle = lipgloss.NewStyle().Bold(true)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of attempts to show")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if !cfg.Journal.Enabled {
		return fmt.Errorf("the session journal is disabled (journal.enabled in %s)", configFilePath())
	}

	db, err := journal.NewDB(config.ExpandHome(cfg.Journal.Path))
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer func() { _ = db.Close() }()

	return printHistory(cmd.Context(), db, historyLimit, cmd.OutOrStdout())
}

func printHistory(ctx context.Context, db *journal.DB, limit int, out io.Writer) error {
	attempts, err := db.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Fprintln(out, "No extraction attempts recorded yet.")
		return nil
	}

	fmt.Fprintln(out, historyHeaderStyle.Render(fmt.Sprintf("%-19s  %-6s  %-16s  %-9s  %s", "STARTED", "SOURCE", "RESULT", "DURATION", "ARCHIVE")))
	for _, a := range attempts {
		result := a.Result
		if a.Running() {
			result = "running"
		}
		archive := a.ArchivePath
		if a.Failure != "" {
			archive = strings.TrimSpace(archive + " " + a.Failure)
		}
		fmt.Fprintf(out, "%-19s  %-6s  %-16s  %-9s  %s\n",
			a.StartedAt.Local().Format("2006-01-02 15:04:05"),
			a.Source,
			result,
			formatDuration(a.Duration()),
			runewidth.Truncate(archive, historyArchiveWidth, "…"),
		)
	}

	counts, err := db.Counts(ctx)
	if err != nil {
		return err
	}
	results := make([]string, 0, len(counts))
	for r := range counts {
		results = append(results, r)
	}
	sort.Strings(results)

	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s %d", r, counts[r]))
	}
	fmt.Fprintf(out, "\n%s\n", strings.Join(parts, ", "))
	return nil
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
