package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jfmyers9/nada/internal/history"
	"github.com/jfmyers9/nada/internal/server"
	"github.com/jfmyers9/nada/internal/storefront"
	"github.com/rs/zerolog"
)

// Config holds daemon configuration
type Config struct {
	StateFile        string        // Path to now-playing snapshot file
	PollInterval     time.Duration // How often to sample the mini player
	CleanupInterval  time.Duration // How often to prune history
	HistoryRetention time.Duration // How long history entries are kept
	ShutdownTimeout  time.Duration // Grace period for open HTTP requests
}

// Daemon runs the storefront server alongside its background workers:
// the history recorder, the now-playing poller and history cleanup
type Daemon struct {
	config   Config
	grid     *storefront.Grid
	server   *server.Server
	journal  *history.Journal
	recorder *history.Recorder
	state    *State
	poller   *Poller
	logger   zerolog.Logger
}

// New creates a new Daemon instance
func New(cfg Config, grid *storefront.Grid, srv *server.Server, journal *history.Journal, recorder *history.Recorder, logger zerolog.Logger) (*Daemon, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	// Create state
	state, err := NewState(cfg.StateFile)
	if err != nil {
		logger.Warn().Err(err).Str("file", cfg.StateFile).Msg("Discarding unreadable state file")
	}

	// Create poller
	poller := NewPoller(grid, cfg.PollInterval, logger)

	return &Daemon{
		config:   cfg,
		grid:     grid,
		server:   srv,
		journal:  journal,
		recorder: recorder,
		state:    state,
		poller:   poller,
		logger:   logger.With().Str("component", "daemon").Logger(),
	}, nil
}

// Run starts the daemon and blocks until shutdown signal received
func (d *Daemon) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// Handle first signal gracefully, second signal forces exit
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		d.logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Second signal forces exit
		<-sigChan
		d.logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	// Run the daemon
	if err := d.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// run is the main daemon loop
func (d *Daemon) run(ctx context.Context) error {
	d.logger.Info().Msg("Starting daemon")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	updates := make(chan Update, 10)
	serveErr := make(chan error, 1)

	// Start HTTP server
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.server.ListenAndServe(); err != nil {
			serveErr <- err
			cancel()
		}
	}()

	// Stop HTTP server on shutdown
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), d.config.ShutdownTimeout)
		defer done()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}()

	// Start history recorder
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.recorder.Run(ctx); err != nil {
			d.logger.Error().Err(err).Msg("History recorder error")
		}
	}()

	// Start poller
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.poller.Run(ctx, updates); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error().Err(err).Msg("Poller error")
		}
	}()

	// Start history cleanup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.cleanupHistory(ctx)
	}()

	// Main loop: handle now-playing updates
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.handleUpdates(ctx, updates)
	}()

	// Wait for all goroutines to finish
	wg.Wait()

	d.logger.Info().Msg("Daemon stopped")

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// handleUpdates mirrors the mini player into the state file
func (d *Daemon) handleUpdates(ctx context.Context, updates <-chan Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			if err := d.handleUpdate(update); err != nil {
				d.logger.Error().Err(err).Msg("Failed to persist now playing")
			}
		}
	}
}

// handleUpdate processes a single poller sample
func (d *Daemon) handleUpdate(update Update) error {
	if update.NowPlaying == nil {
		if _, ok := d.state.Get(); ok {
			d.logger.Debug().Msg("Playback stopped")
		}
		return d.state.Reset()
	}

	prev, had := d.state.Get()
	changed, err := d.state.Update(*update.NowPlaying)
	if err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}

	if changed && (!had || prev.TrackID != update.NowPlaying.TrackID) {
		d.logger.Info().
			Str("track", update.NowPlaying.Title).
			Str("artist", update.NowPlaying.Artist).
			Bool("preview", update.NowPlaying.Preview).
			Msg("Now playing changed")
	}
	return nil
}

// cleanupHistory periodically prunes old history entries
func (d *Daemon) cleanupHistory(ctx context.Context) {
	if d.config.HistoryRetention <= 0 {
		return
	}

	ticker := time.NewTicker(d.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := d.journal.Cleanup(ctx, d.config.HistoryRetention)
			if err != nil {
				d.logger.Warn().Err(err).Msg("Failed to cleanup history")
				continue
			}
			if deleted > 0 {
				d.logger.Debug().Int64("deleted", deleted).Msg("Pruned history")
			}
		}
	}
}

// Shutdown gracefully shuts down the daemon
func (d *Daemon) Shutdown() error {
	d.logger.Info().Msg("Shutting down daemon")

	// Unmounting the cards releases playback, which ends the last session
	if err := d.grid.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to close storefront")
	}
	d.recorder.Flush(context.Background())
	d.recorder.Close()

	if err := d.state.Reset(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to clear state file")
	}

	// Cleanup old records
	if d.config.HistoryRetention > 0 {
		if _, err := d.journal.Cleanup(context.Background(), d.config.HistoryRetention); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to cleanup history")
		}
	}

	// Close journal
	if err := d.journal.Close(); err != nil {
		return fmt.Errorf("failed to close history: %w", err)
	}

	return nil
}
