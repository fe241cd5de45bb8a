package cmd

import (
	"context"
	"fmt"

	"github.com/jfmyers9/nada/internal/history"
	"github.com/jfmyers9/nada/internal/notify"
	"github.com/jfmyers9/nada/internal/tui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// tuiCmd represents the tui command
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse and play the catalog in a terminal UI",
	Long: `Display the storefront as a terminal UI.

Moving the selection hovers a card: after a short delay its preview
starts, and moving away stops it.

Keys:
  up/down  hover a card
  space    play/pause the selected card
  left     seek back
  right    seek forward
  +/-      volume
  c        cycle cookie consent
  q        quit

Logs are discarded unless --log-file is given.`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	// stderr belongs to the UI
	if logFile == "" {
		logger = zerolog.Nop()
	}

	toasts := notify.NewRecorder(20)
	s, err := openShop(cfg, notify.Multi{notify.NewLog(logger), toasts}, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	journal, err := history.Open(cfg.HistoryDB())
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer journal.Close()

	rec := s.recorder(journal, logger)
	defer rec.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = rec.Run(ctx) }()

	app := tui.New(s.grid, s.prefs, toasts, tui.DefaultConfig())
	err = app.Run(ctx)

	// unmount before the journal closes so the last session is recorded
	cancel()
	if cerr := s.grid.Close(); cerr != nil {
		logger.Warn().Err(cerr).Msg("Failed to close storefront")
	}
	rec.Flush(context.Background())
	return err
}
