// Package hover implements the per-card hover-preview state machine: a
// debounced pointer enter starts a muted looping video clip with a quieter
// companion audio track, and leaving stops both.
package hover

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jfmyers9/nada/internal/media"
	"github.com/jfmyers9/nada/internal/playback"
	"github.com/rs/zerolog"
)

const (
	// DefaultDelay is how long the pointer must rest on a card before the
	// preview starts.
	DefaultDelay = 300 * time.Millisecond
	// DefaultVolumeScale is applied to the user volume for preview audio.
	DefaultVolumeScale = 0.6
)

// State is the hover-preview state of a card.
type State int

const (
	StateIdle State = iota
	StatePending
	StatePreviewing
)

// String returns a human-readable representation of the State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StatePreviewing:
		return "previewing"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is the externally visible hover state.
type Snapshot struct {
	State        State `json:"state"`
	Hovering     bool  `json:"hovering"`
	VideoShowing bool  `json:"video_showing"`
}

// Player is the subset of *media.Controller a preview drives.
type Player interface {
	Play(ctx context.Context) error
	PlayAs(ctx context.Context, grant playback.Grant) error
	Pause()
	Stop()
	Seek(pos time.Duration) time.Duration
	SetLoop(loop bool)
	SetVolumeOverride(v float64)
	State() media.State
	Subscribe(fn func(media.Event)) func()
}

// Notifier is told when a preview could not be shown.
type Notifier interface {
	PreviewUnavailable(trackID string)
}

// Options configures a Machine.
type Options struct {
	CardID string

	// Video is the preview clip. When nil, hovering plays Audio directly.
	Video Player
	// PreviewAudio accompanies Video during a preview.
	PreviewAudio Player
	// Audio is the card's regular player.
	Audio Player

	Owner    media.Owner
	Notifier Notifier
	// UserVolume returns the current user volume.
	UserVolume func() float64

	Delay       time.Duration
	VolumeScale float64

	// AfterFunc schedules the debounce timer. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, fn func()) (stop func() bool)

	// OnChange is called after every state transition.
	OnChange func(Snapshot)

	Logger zerolog.Logger
}

// Machine is the hover-preview state machine for one card. It is safe for
// concurrent use; the debounce timer fires on its own goroutine.
type Machine struct {
	id           string
	video        Player
	previewAudio Player
	audio        Player
	owner        media.Owner
	notifier     Notifier
	userVolume   func() float64
	delay        time.Duration
	scale        float64
	afterFunc    func(time.Duration, func()) func() bool
	onChange     func(Snapshot)
	logger       zerolog.Logger

	mu        sync.Mutex
	state     State
	hovering  bool
	showing   bool
	gen       uint64
	stopTimer func() bool
	closed    bool
	unsubs    []func()
}

// New creates a Machine in StateIdle.
func New(opts Options) *Machine {
	m := &Machine{
		id:           opts.CardID,
		video:        opts.Video,
		previewAudio: opts.PreviewAudio,
		audio:        opts.Audio,
		owner:        opts.Owner,
		notifier:     opts.Notifier,
		userVolume:   opts.UserVolume,
		delay:        opts.Delay,
		scale:        opts.VolumeScale,
		afterFunc:    opts.AfterFunc,
		onChange:     opts.OnChange,
		logger:       opts.Logger.With().Str("component", "hover").Str("card", opts.CardID).Logger(),
	}

	if m.delay <= 0 {
		m.delay = DefaultDelay
	}
	if m.scale <= 0 {
		m.scale = DefaultVolumeScale
	}
	if m.afterFunc == nil {
		m.afterFunc = func(d time.Duration, fn func()) func() bool {
			return time.AfterFunc(d, fn).Stop
		}
	}
	if m.userVolume == nil {
		m.userVolume = func() float64 { return media.DefaultVolume }
	}
	if m.video != nil && m.previewAudio == nil {
		m.previewAudio = m.audio
	}

	if m.video != nil {
		m.unsubs = append(m.unsubs, m.video.Subscribe(m.handleEvent))
		if m.previewAudio != nil {
			m.unsubs = append(m.unsubs, m.previewAudio.Subscribe(m.handleEvent))
		}
	}
	return m
}

// HasVideo reports whether the card previews a clip.
func (m *Machine) HasVideo() bool { return m.video != nil }

// Snapshot returns the current hover state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{State: m.state, Hovering: m.hovering, VideoShowing: m.showing}
}

// PointerEnter starts the debounce for a video preview, or plays the
// card's audio right away when it has no clip. A card whose regular
// player is already playing keeps playing and shows no preview.
func (m *Machine) PointerEnter(ctx context.Context) {
	m.mu.Lock()
	if m.closed || m.hovering {
		m.mu.Unlock()
		return
	}
	m.hovering = true
	m.gen++
	gen := m.gen

	if m.audioPlaying() {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.logger.Debug().Msg("Already playing, skipping preview")
		m.changed(snap)
		return
	}

	if m.video == nil {
		m.state = StatePreviewing
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.changed(snap)

		go m.playDirect(ctx, gen)
		return
	}

	m.state = StatePending
	m.stopTimer = m.afterFunc(m.delay, func() { m.fire(ctx, gen) })
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.changed(snap)
}

// PointerLeave cancels a pending preview, or stops a running one and
// releases ownership.
func (m *Machine) PointerLeave() {
	m.mu.Lock()
	if m.closed || !m.hovering {
		m.mu.Unlock()
		return
	}
	m.hovering = false
	prev := m.resetLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if prev == StatePreviewing {
		m.silence()
		m.owner.Release(m.id)
	}
	m.changed(snap)
}

// Interrupt stops a pending or running preview because another card took
// ownership. Ownership is not released since it already moved on.
func (m *Machine) Interrupt() {
	m.mu.Lock()
	if m.closed || (m.state == StateIdle && m.stopTimer == nil) {
		m.mu.Unlock()
		return
	}
	prev := m.resetLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if prev == StatePreviewing {
		m.silence()
	}
	m.changed(snap)
}

// Close cancels the debounce timer, stops any preview and releases
// ownership held by the preview. The machine ignores all later input.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.hovering = false
	prev := m.resetLocked()
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if prev == StatePreviewing {
		m.silence()
		m.owner.Release(m.id)
	}
}

// audioPlaying reports whether the card's regular player is audible.
// Controllers deliver events outside their own lock.
func (m *Machine) audioPlaying() bool {
	return m.audio != nil && m.audio.State().Status == media.StatusPlaying
}

// resetLocked cancels the timer, invalidates in-flight work and returns
// the state that was left.
func (m *Machine) resetLocked() State {
	prev := m.state
	m.gen++
	if m.stopTimer != nil {
		m.stopTimer()
		m.stopTimer = nil
	}
	m.state = StateIdle
	m.showing = false
	return prev
}

func (m *Machine) fire(ctx context.Context, gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.gen || m.state != StatePending {
		m.mu.Unlock()
		return
	}
	m.stopTimer = nil
	if m.audioPlaying() {
		// explicit playback started while the debounce was pending
		m.state = StateIdle
		snap := m.snapshotLocked()
		m.mu.Unlock()
		m.changed(snap)
		return
	}
	m.mu.Unlock()

	grant := m.owner.RequestOwnership(m.id)

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		// the pointer left while ownership was being granted
		if m.owner.Holds(grant) {
			m.owner.Release(m.id)
		}
		return
	}
	m.state = StatePreviewing
	m.showing = true
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.changed(snap)

	m.logger.Debug().Msg("Starting preview")

	m.previewAudio.SetVolumeOverride(m.userVolume() * m.scale)
	for _, p := range []Player{m.video, m.previewAudio} {
		p.SetLoop(true)
		p.Seek(0)
		go m.start(ctx, gen, grant, p)
	}
}

func (m *Machine) start(ctx context.Context, gen uint64, grant playback.Grant, p Player) {
	err := p.PlayAs(ctx, grant)
	if err == nil || errors.Is(err, media.ErrSuperseded) || errors.Is(err, context.Canceled) {
		return
	}
	m.fail(gen, err)
}

func (m *Machine) playDirect(ctx context.Context, gen uint64) {
	err := m.audio.Play(ctx)
	if err == nil || errors.Is(err, media.ErrSuperseded) {
		return
	}

	m.mu.Lock()
	if gen != m.gen || m.state != StatePreviewing {
		m.mu.Unlock()
		return
	}
	m.gen++
	m.state = StateIdle
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Debug().Err(err).Msg("Hover playback failed")
	m.changed(snap)
}

func (m *Machine) handleEvent(ev media.Event) {
	if ev.Type != media.EventError {
		return
	}
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()
	m.fail(gen, ev.Err)
}

// fail falls back to the cover image. A failure reported by both the
// clip and the companion audio is only handled once.
func (m *Machine) fail(gen uint64, err error) {
	m.mu.Lock()
	if m.closed || gen != m.gen || m.state != StatePreviewing {
		m.mu.Unlock()
		return
	}
	m.resetLocked()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Warn().Err(err).Msg("Preview unavailable")

	m.silence()
	m.owner.Release(m.id)
	if m.notifier != nil {
		m.notifier.PreviewUnavailable(m.id)
	}
	m.changed(snap)
}

func (m *Machine) silence() {
	if m.video == nil {
		m.audio.Pause()
		return
	}
	m.video.Stop()
	m.previewAudio.Stop()
}

func (m *Machine) changed(s Snapshot) {
	if m.onChange != nil {
		m.onChange(s)
	}
}
