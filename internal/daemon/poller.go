package daemon

import (
	"context"
	"time"

	"github.com/jfmyers9/nada/internal/storefront"
	"github.com/rs/zerolog"
)

// Source reports the card that currently owns playback.
type Source interface {
	NowPlaying() (storefront.View, bool)
}

// Update represents one sample of the mini player
type Update struct {
	NowPlaying *NowPlaying // Current snapshot (nil if nothing owns playback)
}

// Poller samples the storefront at regular intervals
type Poller struct {
	source   Source
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewPoller creates a new Poller instance
func NewPoller(source Source, interval time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		source:   source,
		interval: interval,
		now:      time.Now,
		logger:   logger.With().Str("component", "poller").Logger(),
	}
}

// Run starts the polling loop and sends updates to the provided channel
// Blocks until context is cancelled
func (p *Poller) Run(ctx context.Context, updates chan<- Update) error {
	p.logger.Debug().
		Dur("interval", p.interval).
		Msg("Starting poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Poll immediately on start
	p.poll(ctx, updates)

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("Poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx, updates)
		}
	}
}

// poll samples the storefront and sends an update
func (p *Poller) poll(ctx context.Context, updates chan<- Update) {
	var update Update
	if v, ok := p.source.NowPlaying(); ok {
		np := FromView(v, p.now())
		update.NowPlaying = &np
	}

	select {
	case updates <- update:
	case <-ctx.Done():
	}
}
