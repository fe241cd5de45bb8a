// Package mediatest provides scriptable media elements and a manual clock
// for exercising controllers, hover previews and cards without audio
// hardware.
package mediatest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jfmyers9/nada/internal/media"
)

// Log records element calls across several elements in the order they
// happened.
type Log struct {
	mu      sync.Mutex
	entries []string
}

// Add appends an entry.
func (l *Log) Add(entry string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of the recorded entries.
func (l *Log) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// Index returns the position of the first occurrence of entry, or -1.
func (l *Log) Index(entry string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e == entry {
			return i
		}
	}
	return -1
}

// LastIndex returns the position of the last occurrence of entry, or -1.
func (l *Log) LastIndex(entry string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i] == entry {
			return i
		}
	}
	return -1
}

// Element is a media.Element whose outcomes are set by the test.
type Element struct {
	Name string
	log  *Log

	mu       sync.Mutex
	duration time.Duration
	loadErr  error
	playErr  error
	loadGate chan struct{}
	playGate chan struct{}
	listener func(media.ElementEvent)

	url      string
	playing  bool
	position time.Duration
	volume   float64
	loop     bool
	closed   bool
	loads    int
	plays    int
}

// NewElement creates an element that loads successfully with a three
// minute duration. log may be nil.
func NewElement(name string, log *Log) *Element {
	return &Element{
		Name:     name,
		log:      log,
		duration: 3 * time.Minute,
	}
}

// SetDuration sets the duration reported by subsequent loads.
func (e *Element) SetDuration(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.duration = d
}

// FailLoad makes subsequent loads fail with err.
func (e *Element) FailLoad(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loadErr = err
}

// RejectPlay makes subsequent plays fail with err.
func (e *Element) RejectPlay(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playErr = err
}

// HoldLoad blocks loads until the returned function is called.
func (e *Element) HoldLoad() func() {
	gate := make(chan struct{})
	e.mu.Lock()
	e.loadGate = gate
	e.mu.Unlock()
	return sync.OnceFunc(func() {
		e.mu.Lock()
		if e.loadGate == gate {
			e.loadGate = nil
		}
		e.mu.Unlock()
		close(gate)
	})
}

// HoldPlay blocks plays until the returned function is called.
func (e *Element) HoldPlay() func() {
	gate := make(chan struct{})
	e.mu.Lock()
	e.playGate = gate
	e.mu.Unlock()
	return sync.OnceFunc(func() {
		e.mu.Lock()
		if e.playGate == gate {
			e.playGate = nil
		}
		e.mu.Unlock()
		close(gate)
	})
}

func (e *Element) record(op string) {
	e.log.Add(e.Name + ":" + op)
}

// Load implements media.Element.
func (e *Element) Load(ctx context.Context, url string) (time.Duration, error) {
	e.mu.Lock()
	e.loads++
	e.url = url
	gate := e.loadGate
	e.mu.Unlock()
	e.record("load")

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadErr != nil {
		return 0, e.loadErr
	}
	e.position = 0
	return e.duration, nil
}

// Play implements media.Element.
func (e *Element) Play(ctx context.Context) error {
	e.mu.Lock()
	e.plays++
	gate := e.playGate
	e.mu.Unlock()
	e.record("play")

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playErr != nil {
		return e.playErr
	}
	e.playing = true
	return nil
}

// Pause implements media.Element.
func (e *Element) Pause() {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
	e.record("pause")
}

// Seek implements media.Element.
func (e *Element) Seek(pos time.Duration) {
	e.mu.Lock()
	e.position = pos
	e.mu.Unlock()
	e.record(fmt.Sprintf("seek:%s", pos))
}

// SetVolume implements media.Element.
func (e *Element) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = v
}

// SetLoop implements media.Element.
func (e *Element) SetLoop(loop bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loop = loop
}

// SetListener implements media.Element.
func (e *Element) SetListener(fn func(media.ElementEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = fn
}

// Close implements media.Element.
func (e *Element) Close() error {
	e.mu.Lock()
	e.closed = true
	e.playing = false
	e.mu.Unlock()
	e.record("close")
	return nil
}

// Emit delivers ev to the installed listener.
func (e *Element) Emit(ev media.ElementEvent) {
	e.mu.Lock()
	fn := e.listener
	if ev.Type == media.ElementEnded {
		e.playing = false
		e.position = 0
	}
	if ev.Type == media.ElementTimeUpdate {
		e.position = ev.Position
	}
	e.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Finish simulates the media reaching its end.
func (e *Element) Finish() {
	e.Emit(media.ElementEvent{Type: media.ElementEnded})
}

// Fail simulates a decode or network error during playback.
func (e *Element) Fail(err error) {
	e.Emit(media.ElementEvent{Type: media.ElementError, Err: err})
}

// Playing reports whether the element is producing output.
func (e *Element) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Volume returns the level last applied.
func (e *Element) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// Loop reports whether looping is enabled.
func (e *Element) Loop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loop
}

// Position returns the last seeked or reported position.
func (e *Element) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

// URL returns the most recently loaded url.
func (e *Element) URL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.url
}

// Loads returns how many times Load was called.
func (e *Element) Loads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads
}

// Plays returns how many times Play was called.
func (e *Element) Plays() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plays
}

// Closed reports whether Close was called.
func (e *Element) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Factory builds Elements on demand and remembers them by track and kind.
type Factory struct {
	Log *Log

	mu       sync.Mutex
	elements map[string]*Element
	setup    func(*Element)
}

// NewFactory creates a factory whose elements share log.
func NewFactory(log *Log) *Factory {
	return &Factory{Log: log, elements: make(map[string]*Element)}
}

// OnCreate runs fn on every element created afterwards.
func (f *Factory) OnCreate(fn func(*Element)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setup = fn
}

// New implements media.ElementFactory.
func (f *Factory) New(kind media.Kind, src media.Source) media.Element {
	name := ElementName(src.TrackID, kind)
	el := NewElement(name, f.Log)

	f.mu.Lock()
	setup := f.setup
	// the preview audio element is the second audio element for a track
	if _, exists := f.elements[name]; exists && kind == media.KindAudio {
		name += "-preview"
		el.Name = name
	}
	f.elements[name] = el
	f.mu.Unlock()

	if setup != nil {
		setup(el)
	}
	return el
}

// Get returns the element created for track and kind.
func (f *Factory) Get(trackID string, kind media.Kind) *Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elements[ElementName(trackID, kind)]
}

// Preview returns the companion preview audio element for track.
func (f *Factory) Preview(trackID string) *Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.elements[ElementName(trackID, media.KindAudio)+"-preview"]
}

// ElementName is the log prefix used for a track's element.
func ElementName(trackID string, kind media.Kind) string {
	return trackID + "/" + kind.String()
}
