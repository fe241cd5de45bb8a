// Package storefront mounts one playable card per catalog track and wires
// each card's controllers and hover preview to the shared coordinator.
package storefront

import (
	"context"
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

// View is a render-ready snapshot of a card.
type View struct {
	TrackID    string         `json:"track_id"`
	Title      string         `json:"title"`
	Artist     string         `json:"artist"`
	CoverURL   string         `json:"cover_url"`
	HasVideo   bool           `json:"has_video"`
	Status     media.Status   `json:"status"`
	Position   time.Duration  `json:"-"`
	Duration   time.Duration  `json:"-"`
	Volume     float64        `json:"volume"`
	Hover      hover.Snapshot `json:"hover"`
	NowPlaying bool           `json:"now_playing"`
	Error      string         `json:"error,omitempty"`

	PositionSeconds float64 `json:"position"`
	DurationSeconds float64 `json:"duration"`
}

// Playing reports whether the card's regular player is audible.
func (v View) Playing() bool {
	return v.Status == media.StatusPlaying
}

// Card is one mounted track. It implements playback.Stopper.
type Card struct {
	track catalog.Track
	src   media.Source

	audio   *media.Controller
	video   *media.Controller
	preview *media.Controller
	hover   *hover.Machine

	owner  *playback.Coordinator
	sink   notify.Sink
	logger zerolog.Logger

	mu       sync.Mutex
	closed   bool
	cleanup  []func()
	onChange func(View)
}

// Track returns the catalog entry behind the card.
func (c *Card) Track() catalog.Track { return c.track }

// ID returns the track id.
func (c *Card) ID() string { return c.track.ID }

// Audio returns the card's regular player.
func (c *Card) Audio() *media.Controller { return c.audio }

// PointerEnter starts the hover preview.
func (c *Card) PointerEnter(ctx context.Context) {
	c.hover.PointerEnter(ctx)
}

// PointerLeave ends the hover preview.
func (c *Card) PointerLeave() {
	c.hover.PointerLeave()
}

// TogglePlay pauses the card if it is playing and starts it otherwise.
// Starting shows a "now playing" toast; failures are reported to the sink.
func (c *Card) TogglePlay(ctx context.Context) error {
	st := c.audio.State()
	switch st.Status {
	case media.StatusPlaying:
		c.audio.Pause()
		return nil
	case media.StatusErrored:
		err := c.audio.Err()
		c.sink.PlaybackFailed(media.Reason(err))
		return err
	}

	// an explicit play on this card replaces its own hover preview
	c.hover.Interrupt()

	err := c.audio.Play(ctx)
	switch {
	case err == nil:
		c.sink.PlaybackStarted(c.track.Title)
	case errors.Is(err, media.ErrSuperseded):
		c.logger.Debug().Msg("Play superseded")
	default:
		// the controller's error event already notified the sink
		c.logger.Debug().Err(err).Msg("Play failed")
	}
	return err
}

// Previewing reports whether a hover preview is pending or running.
func (c *Card) Previewing() bool {
	return c.hover.Snapshot().State != hover.StateIdle
}

// Seek moves the regular player.
func (c *Card) Seek(pos time.Duration) time.Duration {
	return c.audio.Seek(pos)
}

// SetVolume sets and persists the user volume for the card.
func (c *Card) SetVolume(v float64) float64 {
	return c.audio.SetVolume(v)
}

// Stop silences everything on the card. The coordinator calls it when the
// card loses ownership.
func (c *Card) Stop() {
	c.hover.Interrupt()
	c.audio.Stop()
}

// View returns a render-ready snapshot.
func (c *Card) View() View {
	st := c.audio.State()
	owner, _ := c.owner.Owner()
	return View{
		TrackID:         c.track.ID,
		Title:           c.track.Title,
		Artist:          c.track.Artist,
		CoverURL:        c.src.PosterURL,
		HasVideo:        c.src.HasVideo(),
		Status:          st.Status,
		Position:        st.CurrentTime,
		Duration:        st.Duration,
		Volume:          st.Volume,
		Hover:           c.hover.Snapshot(),
		NowPlaying:      owner == c.track.ID,
		Error:           st.Err,
		PositionSeconds: st.CurrentTime.Seconds(),
		DurationSeconds: st.Duration.Seconds(),
	}
}

// Close unmounts the card: the pending hover timer is cancelled, all
// media is torn down and ownership is released if the card holds it.
func (c *Card) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cleanup := c.cleanup
	c.cleanup = nil
	c.onChange = nil
	c.mu.Unlock()

	c.hover.Close()
	for _, fn := range cleanup {
		fn()
	}

	var errs []error
	for _, ctrl := range []*media.Controller{c.audio, c.video, c.preview} {
		if ctrl == nil {
			continue
		}
		if err := ctrl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.owner.Release(c.track.ID)
	c.logger.Debug().Msg("Card unmounted")
	return errors.Join(errs...)
}

func (c *Card) handleAudioEvent(ev media.Event) {
	if ev.Type == media.EventError {
		c.sink.PlaybackFailed(media.Reason(ev.Err))
	}
	c.changed()
}

func (c *Card) handleOwnerChange(ch playback.Change) {
	involved := ch.OwnerID() == c.track.ID ||
		(ch.Previous != nil && ch.Previous.OwnerID == c.track.ID)
	if !involved {
		return
	}

	// ownership can also move on through a release by someone else
	if ch.OwnerID() != c.track.ID && c.audio.State().Status == media.StatusPlaying {
		c.audio.Pause()
	}
	c.changed()
}

func (c *Card) changed() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(c.View())
	}
}
