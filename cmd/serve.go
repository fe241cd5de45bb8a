package cmd

import (
	"fmt"
	"time"

	"github.com/jfmyers9/nada/internal/daemon"
	"github.com/jfmyers9/nada/internal/history"
	"github.com/jfmyers9/nada/internal/notify"
	"github.com/jfmyers9/nada/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveListen  string
	serveDataDir string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the storefront server",
	Long: `Run the storefront with its HTTP API and event stream.

The server will:
- Mount one card per catalog track
- Accept card actions (enter, leave, toggle, seek, volume) over HTTP
- Stream card changes, ownership changes and toasts over server-sent events
- Mirror the mini player to a state file for 'nada now'
- Record played and previewed tracks in the history journal
- Handle graceful shutdown on SIGINT/SIGTERM

The server runs in the foreground and logs to stderr by default.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Address to listen on (default from config)")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Data directory for preferences and history (default: ~/.local/share/nada)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Listen = serveListen
	}
	if serveDataDir != "" {
		cfg.DataDir = serveDataDir
	}

	logger.Info().
		Str("version", version).
		Str("data_dir", cfg.DataDir).
		Msg("Starting nada storefront")

	events := server.NewEvents(logger)
	s, err := openShop(cfg, notify.Multi{notify.NewLog(logger), events.Sink()}, logger)
	if err != nil {
		return err
	}
	defer s.prefs.Close()

	journal, err := history.Open(cfg.HistoryDB())
	if err != nil {
		s.grid.Close()
		return fmt.Errorf("failed to open history: %w", err)
	}

	srv := server.New(server.Config{
		Addr:           cfg.Listen,
		AllowedOrigins: cfg.AllowedOrigins,
		Grid:           s.grid,
		Catalog:        s.catalog,
		Prefs:          s.prefs,
		History:        journal,
		Events:         events,
		Logger:         logger,
	})

	d, err := daemon.New(daemon.Config{
		StateFile:        cfg.StateFile(),
		PollInterval:     time.Second,
		CleanupInterval:  time.Hour,
		HistoryRetention: cfg.HistoryRetention,
	}, s.grid, srv, journal, s.recorder(journal, logger), logger)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	// Run daemon (blocks until shutdown signal)
	runErr := d.Run()

	// Graceful shutdown
	if err := d.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("Error during shutdown")
		return err
	}
	if runErr != nil {
		return fmt.Errorf("server error: %w", runErr)
	}

	logger.Info().Msg("Storefront stopped")
	return nil
}
