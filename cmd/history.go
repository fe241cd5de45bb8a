package cmd

import (
	"fmt"

	"github.com/jfmyers9/nada/internal/catalog"
	"github.com/jfmyers9/nada/internal/config"
	"github.com/jfmyers9/nada/internal/history"
	"github.com/spf13/cobra"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently played and previewed tracks",
	Long: `Show the newest entries of the listening history.

Every time a track stops playing, the server and the terminal UI record
how long it was heard and whether it was a hover preview.`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 20, "Number of entries to show (0 shows all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	journal, err := history.Open(cfg.HistoryDB())
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer journal.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := journal.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No history yet")
		return nil
	}
	fmt.Fprintln(out, historyTable(entries))
	return nil
}

func historyTable(entries []history.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		title := e.Title
		if title == "" {
			title = e.TrackID
		}
		rows = append(rows, []string{
			e.EndedAt.Local().Format("2006-01-02 15:04"),
			title,
			string(e.Mode),
			catalog.FormatLength(e.Listened),
		})
	}
	return renderTable(
		[]string{"When", "Track", "Mode", "Listened"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	)
}
