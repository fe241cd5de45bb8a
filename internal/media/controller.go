package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jfmyers9/nada/internal/playback"
	"github.com/rs/zerolog"
)

// DefaultVolume is used when no volume preference has been stored.
const DefaultVolume = 0.7

// Owner is the ownership arbiter a controller plays under.
// *playback.Coordinator implements it.
type Owner interface {
	RequestOwnership(ownerID string) playback.Grant
	Holds(g playback.Grant) bool
	Release(ownerID string) bool
}

// Options configures a Controller.
type Options struct {
	// TrackID is also the id the controller requests ownership under.
	TrackID string
	Kind    Kind
	URL     string
	Element Element
	Owner   Owner
	// Prefs supplies the initial volume and persists SetVolume. Optional.
	Prefs  VolumePreference
	Logger zerolog.Logger
}

type queuedPlay struct {
	ctx   context.Context
	grant playback.Grant
	seq   uint64
}

type intent int

const (
	intentNone intent = iota
	intentPlay
	intentPause
	intentStop
)

// Controller drives one Element and serializes the requests made against
// it. All methods are safe for concurrent use.
type Controller struct {
	id     string
	kind   Kind
	el     Element
	owner  Owner
	prefs  VolumePreference
	logger zerolog.Logger

	mu          sync.Mutex
	url         string
	state       State
	lastErr     error
	loadSeq     uint64
	playSeq     uint64
	intent      intent
	queued      *queuedPlay
	override    float64
	hasOverride bool
	closed      bool

	nextSub  uint64
	subs     map[uint64]func(Event)
	pending  []Event
	draining bool
}

// NewController wraps opts.Element. The source is not loaded until Load or
// Play is called.
func NewController(opts Options) *Controller {
	vol := DefaultVolume
	if opts.Prefs != nil {
		vol = ClampVolume(opts.Prefs.Volume())
	}

	c := &Controller{
		id:    opts.TrackID,
		kind:  opts.Kind,
		el:    opts.Element,
		owner: opts.Owner,
		prefs: opts.Prefs,
		logger: opts.Logger.With().
			Str("component", "media").
			Str("track", opts.TrackID).
			Str("kind", opts.Kind.String()).
			Logger(),
		url:   opts.URL,
		state: State{Status: StatusIdle, Volume: vol},
		subs:  make(map[uint64]func(Event)),
	}

	c.el.SetVolume(c.effectiveVolumeLocked())
	c.el.SetListener(c.handleElementEvent)
	return c
}

// TrackID returns the id the controller plays under.
func (c *Controller) TrackID() string { return c.id }

// Kind returns whether the controller drives audio or video.
func (c *Controller) Kind() Kind { return c.kind }

// URL returns the most recently requested source.
func (c *Controller) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Volume returns the user volume in [0, 1].
func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Volume
}

// Err returns the error that put the controller into StatusErrored.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Subscribe registers fn for lifecycle events. Events are delivered in
// order; fn must not block.
func (c *Controller) Subscribe(fn func(Event)) func() {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Load starts loading url in the background. A newer Load supersedes any
// load still in flight, and a play queued for a different source is
// dropped. An empty url moves the controller straight to StatusErrored.
func (c *Controller) Load(ctx context.Context, url string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	var dropped *queuedPlay
	if c.queued != nil && url != c.url {
		dropped = c.queued
		c.queued = nil
		c.playSeq++
	}
	defer func() {
		if dropped != nil && c.owner.Holds(dropped.grant) {
			c.logger.Debug().Str("url", url).Msg("Dropping play queued for a replaced source")
			c.owner.Release(c.id)
		}
	}()

	c.loadSeq++
	seq := c.loadSeq
	c.url = url
	c.lastErr = nil
	c.state.Err = ""
	c.state.CurrentTime = 0
	c.state.Duration = 0

	if url == "" {
		q := c.queued
		c.queued = nil
		c.failLocked(&ResourceLoadError{URL: url, Reason: "no source"})
		c.mu.Unlock()
		c.flush()
		if q != nil {
			c.owner.Release(c.id)
		}
		return
	}

	c.state.Status = StatusLoading
	c.enqueueLocked(EventLoadStart, nil)
	c.mu.Unlock()
	c.flush()

	go c.runLoad(ctx, seq, url)
}

func (c *Controller) runLoad(ctx context.Context, seq uint64, url string) {
	duration, err := c.el.Load(ctx, url)

	c.mu.Lock()
	if c.closed || seq != c.loadSeq {
		c.mu.Unlock()
		c.logger.Debug().Str("url", url).Msg("Discarding superseded load")
		return
	}

	q := c.queued
	c.queued = nil

	if err != nil {
		var loadErr *ResourceLoadError
		if !errors.As(err, &loadErr) {
			loadErr = &ResourceLoadError{URL: url, Err: err}
		}
		c.failLocked(loadErr)
		c.mu.Unlock()
		c.flush()
		if q != nil {
			c.owner.Release(c.id)
		}
		return
	}

	c.state.Status = StatusReady
	c.state.Duration = duration
	c.state.CurrentTime = 0
	c.enqueueLocked(EventReady, nil)
	c.mu.Unlock()
	c.flush()

	c.logger.Debug().Dur("duration", duration).Msg("Media ready")

	if q != nil {
		if err := c.start(q.ctx, q.grant, q.seq); err != nil && !errors.Is(err, ErrSuperseded) {
			c.logger.Debug().Err(err).Msg("Queued play failed")
		}
	}
}

// Play requests ownership for the controller's track and starts playback.
func (c *Controller) Play(ctx context.Context) error {
	c.mu.Lock()
	closed, status, lastErr := c.closed, c.state.Status, c.lastErr
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if status == StatusErrored {
		return lastErr
	}

	grant := c.owner.RequestOwnership(c.id)
	return c.PlayAs(ctx, grant)
}

// PlayAs starts playback under a grant obtained by the caller. When the
// source is not loaded yet the play is queued and nil is returned; the
// outcome is reported through events.
func (c *Controller) PlayAs(ctx context.Context, grant playback.Grant) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	c.playSeq++
	seq := c.playSeq
	c.intent = intentPlay

	switch c.state.Status {
	case StatusErrored:
		err := c.lastErr
		c.mu.Unlock()
		if c.owner.Holds(grant) {
			c.owner.Release(c.id)
		}
		return err
	case StatusPlaying:
		c.mu.Unlock()
		return nil
	case StatusLoading:
		c.queued = &queuedPlay{ctx: ctx, grant: grant, seq: seq}
		c.mu.Unlock()
		return nil
	case StatusIdle:
		c.queued = &queuedPlay{ctx: ctx, grant: grant, seq: seq}
		url := c.url
		c.mu.Unlock()
		c.Load(ctx, url)
		return nil
	}
	c.mu.Unlock()

	return c.start(ctx, grant, seq)
}

// start runs the element's play gate for a loaded source.
func (c *Controller) start(ctx context.Context, grant playback.Grant, seq uint64) error {
	if !c.owner.Holds(grant) {
		return ErrSuperseded
	}

	c.mu.Lock()
	if c.state.Status == StatusEnded {
		c.el.Seek(0)
		c.state.CurrentTime = 0
	}
	c.mu.Unlock()

	err := c.el.Play(ctx)

	c.mu.Lock()
	if c.closed || seq != c.playSeq || !c.owner.Holds(grant) {
		// A newer play on this controller owns the element now; anything
		// else means the element must not keep sounding.
		if err == nil && (seq == c.playSeq || c.intent != intentPlay) {
			c.el.Pause()
		}
		c.mu.Unlock()
		c.logger.Debug().Msg("Discarding superseded play")
		return ErrSuperseded
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.mu.Unlock()
			return err
		}
		var rejected *PlaybackRejectedError
		if !errors.As(err, &rejected) {
			rejected = &PlaybackRejectedError{Err: err}
		}
		c.failLocked(rejected)
		c.mu.Unlock()
		c.flush()
		c.owner.Release(c.id)
		return rejected
	}

	c.state.Status = StatusPlaying
	c.enqueueLocked(EventStarted, nil)
	c.mu.Unlock()
	c.flush()
	return nil
}

// Pause pauses playback. Pausing a controller that is not playing does
// nothing and emits no event. A queued or in-flight play is cancelled.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.playSeq++
	c.intent = intentPause
	c.queued = nil

	if c.state.Status != StatusPlaying {
		c.mu.Unlock()
		return
	}

	c.el.Pause()
	c.state.Status = StatusPaused
	c.enqueueLocked(EventPaused, nil)
	c.mu.Unlock()
	c.flush()
}

// Stop pauses and rewinds to the start. It implements playback.Stopper and
// never releases ownership itself.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.playSeq++
	c.intent = intentStop
	c.queued = nil

	status := c.state.Status
	if !status.Loaded() {
		c.mu.Unlock()
		return
	}

	c.el.Pause()
	c.el.Seek(0)
	moved := status != StatusReady || c.state.CurrentTime != 0
	c.state.Status = StatusReady
	c.state.CurrentTime = 0
	if moved {
		c.enqueueLocked(EventStopped, nil)
	}
	c.mu.Unlock()
	c.flush()
}

// Seek moves the playback position, clamped to [0, duration]. Seeking an
// unloaded controller does nothing.
func (c *Controller) Seek(pos time.Duration) time.Duration {
	c.mu.Lock()
	if c.closed || !c.state.Status.Loaded() {
		c.mu.Unlock()
		return 0
	}

	pos = clampPosition(pos, c.state.Duration)
	c.el.Seek(pos)
	c.state.CurrentTime = pos
	c.enqueueLocked(EventTimeUpdate, nil)
	c.mu.Unlock()
	c.flush()
	return pos
}

// SetVolume clamps v to [0, 1], applies it and persists it as the user's
// preference. It returns the applied level.
func (c *Controller) SetVolume(v float64) float64 {
	v = c.ApplyVolume(v)
	if c.prefs != nil {
		if err := c.prefs.SetVolume(v); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to persist volume")
		}
	}
	return v
}

// ApplyVolume sets the user volume without persisting it and returns the
// clamped level.
func (c *Controller) ApplyVolume(v float64) float64 {
	v = ClampVolume(v)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Volume = v
	if !c.closed {
		c.el.SetVolume(c.effectiveVolumeLocked())
	}
	return v
}

// SetVolumeOverride applies a level that is not persisted, such as the
// reduced hover-preview level.
func (c *Controller) SetVolumeOverride(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.override = ClampVolume(v)
	c.hasOverride = true
	if !c.closed {
		c.el.SetVolume(c.effectiveVolumeLocked())
	}
}

// ClearVolumeOverride restores the user volume.
func (c *Controller) ClearVolumeOverride() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasOverride = false
	if !c.closed {
		c.el.SetVolume(c.effectiveVolumeLocked())
	}
}

// SetLoop controls whether the element restarts when it reaches the end.
func (c *Controller) SetLoop(loop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Loop = loop
	if !c.closed {
		c.el.SetLoop(loop)
	}
}

// Close pauses and tears down the element, releasing ownership if the
// controller was playing. Subscribers receive no further events.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.playSeq++
	c.loadSeq++
	c.queued = nil
	wasPlaying := c.state.Status == StatusPlaying
	c.subs = make(map[uint64]func(Event))
	c.pending = nil
	c.el.SetListener(nil)
	c.el.Pause()
	c.mu.Unlock()

	if wasPlaying {
		c.owner.Release(c.id)
	}
	return c.el.Close()
}

func (c *Controller) handleElementEvent(ev ElementEvent) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	release := false
	switch ev.Type {
	case ElementTimeUpdate:
		if c.state.Status != StatusPlaying {
			c.mu.Unlock()
			return
		}
		c.state.CurrentTime = clampPosition(ev.Position, c.state.Duration)
		c.enqueueLocked(EventTimeUpdate, nil)

	case ElementEnded:
		if c.state.Status != StatusPlaying {
			c.mu.Unlock()
			return
		}
		c.playSeq++
		c.intent = intentNone
		c.state.Status = StatusEnded
		c.state.CurrentTime = 0
		c.enqueueLocked(EventEnded, nil)
		release = true

	case ElementError:
		if c.state.Status == StatusErrored {
			c.mu.Unlock()
			return
		}
		release = c.state.Status == StatusPlaying || c.queued != nil
		c.playSeq++
		c.queued = nil
		c.loadSeq++
		var loadErr *ResourceLoadError
		if !errors.As(ev.Err, &loadErr) {
			loadErr = &ResourceLoadError{URL: c.url, Err: ev.Err}
		}
		c.failLocked(loadErr)
	}
	c.mu.Unlock()
	c.flush()

	if release {
		c.owner.Release(c.id)
	}
}

func (c *Controller) effectiveVolumeLocked() float64 {
	switch {
	case c.kind == KindVideo:
		return 0
	case c.hasOverride:
		return c.override
	default:
		return c.state.Volume
	}
}

func (c *Controller) failLocked(err error) {
	c.lastErr = err
	c.state.Status = StatusErrored
	c.state.Err = err.Error()
	c.state.CurrentTime = 0
	c.enqueueLocked(EventError, err)
	c.logger.Warn().Err(err).Msg("Media failed")
}

func (c *Controller) enqueueLocked(t EventType, err error) {
	c.pending = append(c.pending, Event{
		Type:    t,
		TrackID: c.id,
		Kind:    c.kind,
		State:   c.state,
		Err:     err,
	})
}

// flush delivers queued events in order. Only one goroutine drains at a
// time; events queued meanwhile are picked up by the active drainer.
func (c *Controller) flush() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true

	for len(c.pending) > 0 {
		ev := c.pending[0]
		c.pending = c.pending[1:]
		subs := make([]func(Event), 0, len(c.subs))
		for _, fn := range c.subs {
			subs = append(subs, fn)
		}
		c.mu.Unlock()

		for _, fn := range subs {
			fn(ev)
		}

		c.mu.Lock()
	}

	c.draining = false
	c.mu.Unlock()
}
