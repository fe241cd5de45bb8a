package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jfmyers9/nada/internal/media"
	"github.com/jfmyers9/nada/internal/notify"
	"github.com/spf13/cobra"
)

var playFor time.Duration

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play <track>",
	Short: "Play a catalog track",
	Long: `Play one track from the catalog until it ends.

The track is matched by id or by the start of its title, case-insensitively.
Press Ctrl-C to stop early.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().DurationVar(&playFor, "for", 0, "Stop after this long (0 plays to the end)")
}

func runPlay(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	sink := notify.Func(func(t notify.Toast) { fmt.Fprintln(out, t.Message) })

	s, err := openShop(cfg, sink, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	track, ok := s.catalog.Find(args[0])
	if !ok {
		return fmt.Errorf("no track matches %q", args[0])
	}
	card, ok := s.grid.Card(track.ID)
	if !ok {
		return fmt.Errorf("track %s is not mounted", track.ID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if playFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, playFor)
		defer cancel()
	}

	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}
	unsubscribe := card.Audio().Subscribe(func(ev media.Event) {
		switch ev.Type {
		case media.EventEnded:
			finish(nil)
		case media.EventError:
			finish(ev.Err)
		}
	})
	defer unsubscribe()

	if err := card.TogglePlay(ctx); err != nil {
		return fmt.Errorf("failed to play %s: %w", track.Title, err)
	}

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("playback failed: %s", media.Reason(err))
		}
	case <-ctx.Done():
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			fmt.Fprintln(out, "Stopped")
		}
	}
	return nil
}
