package cmd

import (
	"fmt"

	"github.com/jfmyers9/nada/internal/catalog"
	"github.com/jfmyers9/nada/internal/config"
	"github.com/jfmyers9/nada/internal/history"
	"github.com/jfmyers9/nada/internal/media"
	"github.com/jfmyers9/nada/internal/media/headless"
	"github.com/jfmyers9/nada/internal/media/speaker"
	"github.com/jfmyers9/nada/internal/notify"
	"github.com/jfmyers9/nada/internal/prefs"
	"github.com/jfmyers9/nada/internal/storefront"
	"github.com/rs/zerolog"
)

// shop is a mounted storefront with the stores it reads from.
type shop struct {
	prefs   *prefs.Store
	catalog *catalog.Catalog
	grid    *storefront.Grid
}

// openShop opens the preference store, loads the catalog and mounts one
// card per track.
func openShop(cfg *config.Config, sink notify.Sink, logger zerolog.Logger) (*shop, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := prefs.Open(cfg.PreferencesDB())
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences: %w", err)
	}
	store.SetDefaultVolume(cfg.DefaultVolume)

	cat, err := catalog.LoadOrDefault(cfg.CatalogFile)
	if err != nil {
		store.Close()
		return nil, err
	}

	grid := storefront.NewGrid(storefront.Config{
		Elements:           elementFactory(cfg.AudioBackend, logger),
		Resolver:           catalog.NewResolver(cfg.MediaRoot),
		Prefs:              store,
		Sink:               sink,
		PreviewDelay:       cfg.Preview.Delay,
		PreviewVolumeScale: cfg.Preview.VolumeScale,
		Logger:             logger,
	})
	grid.Sync(cat.Tracks())

	logger.Debug().
		Int("tracks", cat.Len()).
		Str("backend", cfg.AudioBackend).
		Str("media_root", cfg.MediaRoot).
		Msg("Storefront mounted")

	return &shop{prefs: store, catalog: cat, grid: grid}, nil
}

// Close unmounts every card and closes the preference store.
func (s *shop) Close() error {
	if err := s.grid.Close(); err != nil {
		return err
	}
	return s.prefs.Close()
}

// recorder journals the shop's playback sessions, marking hover sessions
// as previews.
func (s *shop) recorder(journal *history.Journal, logger zerolog.Logger) *history.Recorder {
	return history.NewRecorder(journal, s.grid.Owner(),
		history.WithClassifier(func(trackID string) history.Mode {
			if c, ok := s.grid.Card(trackID); ok && c.Previewing() {
				return history.ModePreview
			}
			return history.ModePlay
		}),
		history.WithTitles(func(trackID string) string {
			t, _ := s.catalog.Get(trackID)
			return t.Title
		}),
		history.WithLogger(logger),
	)
}

// elementFactory picks the audio backend. The terminal cannot show video,
// so clips always run headless.
func elementFactory(backend string, logger zerolog.Logger) media.ElementFactory {
	clips := headless.Factory(nil)

	switch backend {
	case config.BackendHeadless:
		return clips
	case config.BackendSpeaker, "":
		return speaker.Factory(nil, clips, logger)
	default:
		logger.Warn().Str("backend", backend).Msg("Unknown audio backend, using speaker")
		return speaker.Factory(nil, clips, logger)
	}
}
