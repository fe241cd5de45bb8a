package cmd

import (
	"fmt"
	"strconv"

	"github.com/jfmyers9/nada/internal/catalog"
	"github.com/jfmyers9/nada/internal/config"
	"github.com/spf13/cobra"
)

// catalogCmd represents the catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List the tracks in the catalog",
	Long: `List every track in the catalog with its id, length and price.

The catalog comes from catalog_file in ~/.config/nada/config.yaml, or the
built-in catalog when none is configured.`,
	RunE: runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)

	catalogCmd.Flags().StringP("file", "f", "", "Catalog file (overrides config)")
}

func runCatalog(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		cfg.CatalogFile = file
	}

	cat, err := catalog.LoadOrDefault(cfg.CatalogFile)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), catalogTable(cat.Tracks()))
	return nil
}

func catalogTable(tracks []catalog.Track) string {
	rows := make([][]string, 0, len(tracks))
	for _, t := range tracks {
		preview := ""
		if t.HasVideo() {
			preview = "video"
		}
		bpm := ""
		if t.BPM > 0 {
			bpm = strconv.Itoa(t.BPM)
		}
		rows = append(rows, []string{
			t.ID,
			t.Title,
			t.Artist,
			t.Genre,
			bpm,
			catalog.FormatLength(t.Length()),
			fmt.Sprintf("$%.2f", t.Price),
			preview,
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Artist", "Genre", "BPM", "Length", "Price", "Preview"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}
