package storefront

import (
	"errors"
	"sync"
	"time"

	"github.com/jfmyers9/nada/internal/catalog"
	"github.com/jfmyers9/nada/internal/hover"
	"github.com/jfmyers9/nada/internal/media"
	"github.com/jfmyers9/nada/internal/notify"
	"github.com/jfmyers9/nada/internal/playback"
	"github.com/rs/zerolog"
)

// Config wires a Grid to its collaborators.
type Config struct {
	Owner    *playback.Coordinator
	Elements media.ElementFactory
	Resolver catalog.Resolver
	Prefs    media.VolumePreference
	Sink     notify.Sink

	PreviewDelay       time.Duration
	PreviewVolumeScale float64
	// AfterFunc overrides the hover debounce timer.
	AfterFunc func(d time.Duration, fn func()) func() bool

	Logger zerolog.Logger
}

// Grid is the set of mounted cards in display order.
type Grid struct {
	cfg    Config
	logger zerolog.Logger

	mu        sync.Mutex
	cards     map[string]*Card
	order     []string
	observers map[int]func(View)
	nextObs   int
	closed    bool
}

// NewGrid creates an empty grid.
func NewGrid(cfg Config) *Grid {
	if cfg.Sink == nil {
		cfg.Sink = notify.Noop{}
	}
	if cfg.Owner == nil {
		cfg.Owner = playback.New(playback.WithLogger(cfg.Logger))
	}
	return &Grid{
		cfg:       cfg,
		logger:    cfg.Logger.With().Str("component", "storefront").Logger(),
		cards:     make(map[string]*Card),
		observers: make(map[int]func(View)),
	}
}

// Owner returns the coordinator shared by all cards.
func (g *Grid) Owner() *playback.Coordinator { return g.cfg.Owner }

// OnChange registers a callback for card view changes and returns a func
// that removes it. Callbacks run on whatever goroutine triggered the change
// and must not block.
func (g *Grid) OnChange(fn func(View)) func() {
	g.mu.Lock()
	id := g.nextObs
	g.nextObs++
	g.observers[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.observers, id)
		g.mu.Unlock()
	}
}

func (g *Grid) emit(v View) {
	g.mu.Lock()
	fns := make([]func(View), 0, len(g.observers))
	for _, fn := range g.observers {
		fns = append(fns, fn)
	}
	g.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

// Sync mounts cards for new tracks, unmounts cards whose track is gone and
// adopts the order of tracks.
func (g *Grid) Sync(tracks []catalog.Track) {
	keep := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		keep[t.ID] = true
	}

	g.mu.Lock()
	var stale []string
	for _, id := range g.order {
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	g.mu.Unlock()

	for _, id := range stale {
		g.Unmount(id)
	}
	for _, t := range tracks {
		g.Mount(t)
	}

	g.mu.Lock()
	order := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if _, ok := g.cards[t.ID]; ok {
			order = append(order, t.ID)
		}
	}
	g.order = order
	g.mu.Unlock()
}

// Mount creates the card for t, or returns the existing one.
func (g *Grid) Mount(t catalog.Track) *Card {
	g.mu.Lock()
	if c, ok := g.cards[t.ID]; ok || g.closed {
		g.mu.Unlock()
		return c
	}
	g.mu.Unlock()

	c := g.newCard(t)

	g.mu.Lock()
	if existing, ok := g.cards[t.ID]; ok {
		g.mu.Unlock()
		_ = c.Close()
		return existing
	}
	g.cards[t.ID] = c
	g.order = append(g.order, t.ID)
	g.mu.Unlock()

	g.logger.Debug().Str("track", t.ID).Bool("video", t.HasVideo()).Msg("Card mounted")
	return c
}

func (g *Grid) newCard(t catalog.Track) *Card {
	src := t.Source(g.cfg.Resolver)
	logger := g.cfg.Logger.With().Str("component", "card").Str("track", t.ID).Logger()

	controller := func(kind media.Kind, url string) *media.Controller {
		return media.NewController(media.Options{
			TrackID: t.ID,
			Kind:    kind,
			URL:     url,
			Element: g.cfg.Elements(kind, src),
			Owner:   g.cfg.Owner,
			Prefs:   g.cfg.Prefs,
			Logger:  g.cfg.Logger,
		})
	}

	c := &Card{
		track:    t,
		src:      src,
		audio:    controller(media.KindAudio, src.AudioURL),
		owner:    g.cfg.Owner,
		sink:     g.cfg.Sink,
		logger:   logger,
		onChange: g.emit,
	}

	opts := hover.Options{
		CardID:      t.ID,
		Audio:       c.audio,
		Owner:       g.cfg.Owner,
		Notifier:    g.cfg.Sink,
		UserVolume:  c.audio.Volume,
		Delay:       g.cfg.PreviewDelay,
		VolumeScale: g.cfg.PreviewVolumeScale,
		AfterFunc:   g.cfg.AfterFunc,
		OnChange:    func(hover.Snapshot) { c.changed() },
		Logger:      g.cfg.Logger,
	}
	if src.HasVideo() {
		c.video = controller(media.KindVideo, src.VideoURL)
		c.preview = controller(media.KindAudio, src.AudioURL)
		opts.Video = c.video
		opts.PreviewAudio = c.preview
	}
	c.hover = hover.New(opts)

	c.cleanup = append(c.cleanup,
		g.cfg.Owner.Register(t.ID, c),
		g.cfg.Owner.Subscribe(c.handleOwnerChange),
		c.audio.Subscribe(c.handleAudioEvent),
	)
	return c
}

// Unmount tears down the card for id. It reports whether a card existed.
func (g *Grid) Unmount(id string) bool {
	g.mu.Lock()
	c, ok := g.cards[id]
	if ok {
		delete(g.cards, id)
		for i, oid := range g.order {
			if oid == id {
				g.order = append(g.order[:i], g.order[i+1:]...)
				break
			}
		}
	}
	g.mu.Unlock()

	if !ok {
		return false
	}
	if err := c.Close(); err != nil {
		g.logger.Warn().Err(err).Str("track", id).Msg("Failed to close card")
	}
	return true
}

// Card looks up a mounted card.
func (g *Grid) Card(id string) (*Card, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cards[id]
	return c, ok
}

// Cards returns the mounted cards in display order.
func (g *Grid) Cards() []*Card {
	g.mu.Lock()
	defer g.mu.Unlock()
	cards := make([]*Card, 0, len(g.order))
	for _, id := range g.order {
		cards = append(cards, g.cards[id])
	}
	return cards
}

// Views returns a snapshot of every card in display order.
func (g *Grid) Views() []View {
	cards := g.Cards()
	views := make([]View, 0, len(cards))
	for _, c := range cards {
		views = append(views, c.View())
	}
	return views
}

// NowPlaying returns the view of the card that owns playback.
func (g *Grid) NowPlaying() (View, bool) {
	id, ok := g.cfg.Owner.Owner()
	if !ok {
		return View{}, false
	}
	c, ok := g.Card(id)
	if !ok {
		return View{}, false
	}
	return c.View(), true
}

// SetVolume applies v to every mounted card. The level is persisted so
// cards mounted later start with it.
func (g *Grid) SetVolume(v float64) float64 {
	v = media.ClampVolume(v)
	if g.cfg.Prefs != nil {
		if err := g.cfg.Prefs.SetVolume(v); err != nil {
			g.logger.Warn().Err(err).Msg("Failed to persist volume")
		}
	}
	for _, c := range g.Cards() {
		c.audio.ApplyVolume(v)
	}
	return v
}

// Close unmounts every card.
func (g *Grid) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	ids := append([]string(nil), g.order...)
	g.mu.Unlock()

	var errs []error
	for _, id := range ids {
		g.mu.Lock()
		c := g.cards[id]
		delete(g.cards, id)
		g.mu.Unlock()
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	g.mu.Lock()
	g.order = nil
	g.mu.Unlock()
	return errors.Join(errs...)
}
