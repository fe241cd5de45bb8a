// Package headless provides a media element that keeps time without an
// output device. It stands in for video, which the terminal cannot render,
// and for audio on hosts with no sound card.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/jfmyers9/nada/internal/media"
)

const (
	// DefaultLength is used when a source carries no length hint.
	DefaultLength = 30 * time.Second

	defaultInterval = 250 * time.Millisecond
)

// Options configures an Element.
type Options struct {
	Client   *http.Client
	Length   time.Duration
	Interval time.Duration
	Now      func() time.Time
}

// Element advances a virtual playhead with the wall clock.
type Element struct {
	client   *http.Client
	length   time.Duration
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	loaded   bool
	pos      time.Duration
	anchor   time.Time
	playing  bool
	loop     bool
	volume   float64
	ticking  chan struct{}
	listener func(media.ElementEvent)
	closed   bool
}

// New creates an element.
func New(opts Options) *Element {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	if opts.Length <= 0 {
		opts.Length = DefaultLength
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Element{
		client:   opts.Client,
		length:   opts.Length,
		interval: opts.Interval,
		now:      opts.Now,
		volume:   media.DefaultVolume,
	}
}

// Factory builds headless elements sized by each source's length hint.
func Factory(client *http.Client) media.ElementFactory {
	return func(kind media.Kind, src media.Source) media.Element {
		return New(Options{Client: client, Length: src.LengthHint})
	}
}

// Load checks that the resource exists.
func (e *Element) Load(ctx context.Context, rawURL string) (time.Duration, error) {
	if err := e.probe(ctx, rawURL); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, media.ErrClosed
	}
	e.stopTickerLocked()
	e.loaded = true
	e.playing = false
	e.pos = 0
	return e.length, nil
}

func (e *Element) probe(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := e.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to probe %s: %w", rawURL, err)
		}
		resp.Body.Close()

		if resp.StatusCode >= 400 {
			return fmt.Errorf("failed to probe %s: status %d", rawURL, resp.StatusCode)
		}
		return nil
	}

	p := rawURL
	if err == nil && u.Scheme == "file" {
		p = u.Path
	}
	if _, err := os.Stat(p); err != nil {
		return fmt.Errorf("failed to stat %s: %w", p, err)
	}
	return nil
}

// Play starts the playhead.
func (e *Element) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return media.ErrClosed
	}
	if !e.loaded {
		return fmt.Errorf("failed to play: nothing loaded")
	}
	if e.playing {
		return nil
	}
	e.playing = true
	e.anchor = e.now()
	e.startTickerLocked()
	return nil
}

// Pause freezes the playhead.
func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.playing {
		return
	}
	e.pos = e.positionLocked()
	e.playing = false
	e.stopTickerLocked()
}

// Seek moves the playhead, clamped to the length.
func (e *Element) Seek(pos time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pos = max(0, min(pos, e.length))
	e.anchor = e.now()
}

// SetVolume records v; nothing is audible.
func (e *Element) SetVolume(v float64) {
	e.mu.Lock()
	e.volume = media.ClampVolume(v)
	e.mu.Unlock()
}

// Volume returns the last level set.
func (e *Element) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// SetLoop makes the playhead wrap at the end.
func (e *Element) SetLoop(loop bool) {
	e.mu.Lock()
	e.loop = loop
	e.mu.Unlock()
}

// SetListener installs the element event callback.
func (e *Element) SetListener(fn func(media.ElementEvent)) {
	e.mu.Lock()
	e.listener = fn
	e.mu.Unlock()
}

// Position returns the current playhead.
func (e *Element) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

// Close stops the playhead.
func (e *Element) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.playing = false
	e.listener = nil
	e.stopTickerLocked()
	return nil
}

func (e *Element) positionLocked() time.Duration {
	if !e.playing {
		return e.pos
	}
	return e.pos + e.now().Sub(e.anchor)
}

func (e *Element) startTickerLocked() {
	if e.ticking != nil {
		return
	}
	done := make(chan struct{})
	e.ticking = done

	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if !e.tick(done) {
					return
				}
			}
		}
	}()
}

func (e *Element) stopTickerLocked() {
	if e.ticking != nil {
		close(e.ticking)
		e.ticking = nil
	}
}

// tick reports the playhead and handles the end of the media. It returns
// false once the ticker should exit.
func (e *Element) tick(done chan struct{}) bool {
	e.mu.Lock()
	if e.ticking != done || !e.playing {
		e.mu.Unlock()
		return false
	}

	pos := e.positionLocked()
	ev := media.ElementEvent{Type: media.ElementTimeUpdate, Position: pos}
	running := true
	if pos >= e.length {
		if e.loop {
			e.pos = pos % e.length
			e.anchor = e.now()
			ev.Position = e.pos
		} else {
			e.pos = e.length
			e.playing = false
			e.ticking = nil
			ev = media.ElementEvent{Type: media.ElementEnded, Position: e.length}
			running = false
		}
	}
	fn := e.listener
	e.mu.Unlock()

	if fn != nil {
		fn(ev)
	}
	return running
}
