// Package speaker plays audio sources on the local output device using beep.
package speaker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	"github.com/jfmyers9/nada/internal/media"
	"github.com/rs/zerolog"
)

const (
	// SampleRate is the rate the output device is opened at.
	SampleRate = beep.SampleRate(44100)

	bufferSize     = 100 * time.Millisecond
	updateInterval = 250 * time.Millisecond
	resampleQual   = 4
)

var (
	initOnce sync.Once
	initErr  error
)

// ErrNotLoaded is returned by Play before a successful Load.
var ErrNotLoaded = errors.New("no media loaded")

func initSpeaker() error {
	initOnce.Do(func() {
		if err := speaker.Init(SampleRate, SampleRate.N(bufferSize)); err != nil {
			initErr = fmt.Errorf("failed to initialize speaker: %w", err)
		}
	})
	return initErr
}

// Element is a media.Element backed by the shared speaker mixer.
type Element struct {
	client *http.Client
	logger zerolog.Logger

	mu       sync.Mutex
	stream   beep.StreamSeekCloser
	format   beep.Format
	tail     *tail
	ctrl     *beep.Ctrl
	volume   *effects.Volume
	level    float64
	loop     bool
	mixing   bool
	ticking  chan struct{}
	listener func(media.ElementEvent)
	closed   bool
}

// New creates an element. A nil client uses http.DefaultClient.
func New(client *http.Client, logger zerolog.Logger) *Element {
	if client == nil {
		client = http.DefaultClient
	}
	return &Element{
		client: client,
		logger: logger.With().Str("component", "speaker").Logger(),
		level:  media.DefaultVolume,
	}
}

// Factory returns an element factory that plays audio through the speaker
// and hands every other kind to fallback.
func Factory(client *http.Client, fallback media.ElementFactory, logger zerolog.Logger) media.ElementFactory {
	return func(kind media.Kind, src media.Source) media.Element {
		if kind != media.KindAudio && fallback != nil {
			return fallback(kind, src)
		}
		return New(client, logger)
	}
}

// Load fetches and decodes the resource at rawURL.
func (e *Element) Load(ctx context.Context, rawURL string) (time.Duration, error) {
	data, err := e.fetch(ctx, rawURL)
	if err != nil {
		return 0, err
	}

	stream, format, err := decode(rawURL, data)
	if err != nil {
		return 0, err
	}

	t := &tail{src: stream}
	var s beep.Streamer = t
	if format.SampleRate != SampleRate {
		s = beep.Resample(resampleQual, format.SampleRate, SampleRate, s)
	}
	ctrl := &beep.Ctrl{Streamer: s, Paused: true}
	vol := &effects.Volume{Streamer: ctrl, Base: 2}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		_ = stream.Close()
		return 0, media.ErrClosed
	}
	old := e.detachLocked()
	e.stream = stream
	e.format = format
	e.tail = t
	e.ctrl = ctrl
	e.volume = vol
	t.setLoop(e.loop)
	t.onEnd = e.ended
	t.onError = e.streamFailed
	applyVolume(vol, e.level)
	e.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	return format.SampleRate.D(stream.Len()), nil
}

func (e *Element) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := e.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to fetch %s: status %d", rawURL, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", rawURL, err)
		}
		return data, nil
	}

	p := rawURL
	if err == nil && u.Scheme == "file" {
		p = u.Path
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

func decode(rawURL string, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	name := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		name = u.Path
	}

	r := buffer{bytes.NewReader(data)}
	var (
		stream beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch ext := strings.ToLower(path.Ext(name)); ext {
	case ".mp3":
		stream, format, err = mp3.Decode(r)
	case ".wav":
		stream, format, err = wav.Decode(r)
	case ".flac":
		stream, format, err = flac.Decode(r)
	case ".ogg", ".oga":
		stream, format, err = vorbis.Decode(r)
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported audio format %q", ext)
	}
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return stream, format, nil
}

// buffer keeps the decoders seekable over an in-memory resource.
type buffer struct {
	*bytes.Reader
}

func (buffer) Close() error { return nil }

// Play resumes output, adding the stream to the mixer if needed.
func (e *Element) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := initSpeaker(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return media.ErrClosed
	}
	if e.ctrl == nil {
		return ErrNotLoaded
	}

	speaker.Lock()
	e.ctrl.Paused = false
	if !e.mixing {
		e.tail.rewind()
	}
	speaker.Unlock()

	if !e.mixing {
		e.mixing = true
		speaker.Play(e.volume)
	}
	e.startTickerLocked()
	return nil
}

// Pause halts output without leaving the mixer.
func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopTickerLocked()
	if e.ctrl == nil {
		return
	}
	speaker.Lock()
	e.ctrl.Paused = true
	speaker.Unlock()
}

// Seek moves the read position, clamped to the stream.
func (e *Element) Seek(pos time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stream == nil {
		return
	}
	n := e.format.SampleRate.N(pos)
	if n < 0 {
		n = 0
	}
	if l := e.stream.Len(); n > l {
		n = l
	}

	speaker.Lock()
	err := e.stream.Seek(n)
	if !e.mixing {
		e.tail.rewind()
	}
	speaker.Unlock()
	if err != nil {
		e.logger.Warn().Err(err).Dur("position", pos).Msg("Seek failed")
	}
}

// SetVolume maps v in [0, 1] onto a base-2 gain.
func (e *Element) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.level = media.ClampVolume(v)
	if e.volume == nil {
		return
	}
	speaker.Lock()
	applyVolume(e.volume, e.level)
	speaker.Unlock()
}

func applyVolume(vol *effects.Volume, level float64) {
	if level <= 0 {
		vol.Silent = true
		vol.Volume = 0
		return
	}
	vol.Silent = false
	vol.Volume = math.Log2(level)
}

// SetLoop makes the stream restart when it reaches its end.
func (e *Element) SetLoop(loop bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.loop = loop
	if e.tail != nil {
		e.tail.setLoop(loop)
	}
}

// SetListener installs the element event callback.
func (e *Element) SetListener(fn func(media.ElementEvent)) {
	e.mu.Lock()
	e.listener = fn
	e.mu.Unlock()
}

// Close removes the stream from the mixer and releases it.
func (e *Element) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.listener = nil
	old := e.detachLocked()
	e.mu.Unlock()

	if old != nil {
		return old.Close()
	}
	return nil
}

// detachLocked silences the current chain and returns its stream for
// closing.
func (e *Element) detachLocked() beep.StreamSeekCloser {
	e.stopTickerLocked()
	if e.ctrl != nil {
		speaker.Lock()
		e.ctrl.Streamer = nil
		speaker.Unlock()
	}
	old := e.stream
	e.stream = nil
	e.tail = nil
	e.ctrl = nil
	e.volume = nil
	e.mixing = false
	return old
}

func (e *Element) startTickerLocked() {
	if e.ticking != nil {
		return
	}
	done := make(chan struct{})
	e.ticking = done

	go func() {
		ticker := time.NewTicker(updateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				e.tick()
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

func (e *Element) tick() {
	e.mu.Lock()
	if e.stream == nil {
		e.mu.Unlock()
		return
	}
	speaker.Lock()
	pos := e.format.SampleRate.D(e.stream.Position())
	speaker.Unlock()
	fn := e.listener
	e.mu.Unlock()

	if fn != nil {
		fn(media.ElementEvent{Type: media.ElementTimeUpdate, Position: pos})
	}
}

// ended runs on its own goroutine once a non-looping stream drains.
func (e *Element) ended(t *tail) {
	e.mu.Lock()
	if e.tail != t {
		e.mu.Unlock()
		return
	}
	e.stopTickerLocked()
	e.mixing = false
	speaker.Lock()
	e.ctrl.Paused = true
	speaker.Unlock()
	fn := e.listener
	e.mu.Unlock()

	if fn != nil {
		fn(media.ElementEvent{Type: media.ElementEnded})
	}
}

func (e *Element) streamFailed(t *tail, err error) {
	e.mu.Lock()
	if e.tail != t {
		e.mu.Unlock()
		return
	}
	e.stopTickerLocked()
	e.mixing = false
	fn := e.listener
	e.mu.Unlock()

	if fn != nil {
		fn(media.ElementEvent{Type: media.ElementError, Err: err})
	}
}
