package cmd

import (
	"fmt"
	"strconv"

	"github.com/jfmyers9/nada/internal/config"
	"github.com/jfmyers9/nada/internal/prefs"
	"github.com/spf13/cobra"
)

// volumeCmd represents the volume command
var volumeCmd = &cobra.Command{
	Use:   "volume [0-100]",
	Short: "Show or set the playback volume",
	Long: `Show or set the stored playback volume.

Volume level must be between 0 (muted) and 100 (maximum).
Without arguments, displays the current volume. A running server picks up
the new level the next time a card plays.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVolume,
}

// cookiesCmd represents the cookies command
var cookiesCmd = &cobra.Command{
	Use:   "cookies [all|necessary|reset]",
	Short: "Show or set the cookie consent",
	Long: `Show or set the stored cookie banner decision.

'all' accepts every cookie, 'necessary' keeps only the necessary ones and
'reset' forgets the decision so the banner shows again.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"all", "necessary", "reset"},
	RunE:      runCookies,
}

func init() {
	rootCmd.AddCommand(volumeCmd)
	rootCmd.AddCommand(cookiesCmd)
}

// openPrefs opens the preference store named by the configuration.
func openPrefs() (*prefs.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := prefs.Open(cfg.PreferencesDB())
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences: %w", err)
	}
	store.SetDefaultVolume(cfg.DefaultVolume)
	return store, nil
}

func runVolume(cmd *cobra.Command, args []string) error {
	store, err := openPrefs()
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", volumePercent(store.Volume()))
		return nil
	}

	level, err := parseVolume(args[0])
	if err != nil {
		return err
	}
	if err := store.SetVolume(level); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}
	return nil
}

func runCookies(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openPrefs()
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 0 {
		c, err := store.Consent(ctx)
		if err != nil {
			return fmt.Errorf("failed to read consent: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), c)
		return nil
	}

	c, err := prefs.ParseConsent(args[0])
	if err != nil {
		return err
	}
	if err := store.SetConsent(ctx, c); err != nil {
		return fmt.Errorf("failed to set consent: %w", err)
	}
	return nil
}

// parseVolume converts a 0-100 level to the stored 0-1 scale.
func parseVolume(s string) (float64, error) {
	level, err := strconv.Atoi(s)
	if err != nil || level < 0 || level > 100 {
		return 0, fmt.Errorf("invalid volume level: %s (must be a number 0-100)", s)
	}
	return float64(level) / 100, nil
}

func volumePercent(v float64) int {
	return int(v*100 + 0.5)
}
