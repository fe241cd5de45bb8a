// Package media wraps a single playable resource behind a Controller that
// tracks load/play state, sequences concurrent requests and reports
// lifecycle events. Actual decoding and output is delegated to an Element.
package media

import (
	"context"
	"math"
	"time"
)

// Kind distinguishes audible audio elements from muted preview video.
type Kind int

const (
	KindAudio Kind = iota
	KindVideo
)

// String returns a human-readable representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Status is the lifecycle state of a controller's element.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusPlaying
	StatusPaused
	StatusEnded
	StatusErrored
)

// String returns a human-readable representation of the Status
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusEnded:
		return "ended"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Loaded reports whether the element has a known duration and can seek.
func (s Status) Loaded() bool {
	switch s {
	case StatusReady, StatusPlaying, StatusPaused, StatusEnded:
		return true
	}
	return false
}

// State is a snapshot of a controller.
type State struct {
	Status      Status        `json:"status"`
	CurrentTime time.Duration `json:"current_time"`
	Duration    time.Duration `json:"duration"`
	Volume      float64       `json:"volume"`
	Loop        bool          `json:"loop"`
	Err         string        `json:"error,omitempty"`
}

// Progress returns the playback position as a fraction of the duration.
func (s State) Progress() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.CurrentTime) / float64(s.Duration)
}

// Source describes the media attached to one track card.
type Source struct {
	TrackID   string
	AudioURL  string
	VideoURL  string
	PosterURL string

	// LengthHint is the catalog duration, used by elements that cannot
	// probe the resource themselves.
	LengthHint time.Duration
}

// HasVideo reports whether the source carries a preview clip.
func (s Source) HasVideo() bool {
	return s.VideoURL != ""
}

// EventType identifies a controller lifecycle event.
type EventType int

const (
	EventLoadStart EventType = iota
	EventReady
	EventTimeUpdate
	EventStarted
	EventPaused
	EventStopped
	EventEnded
	EventError
)

// String returns a human-readable representation of the EventType
func (t EventType) String() string {
	switch t {
	case EventLoadStart:
		return "loadstart"
	case EventReady:
		return "ready"
	case EventTimeUpdate:
		return "timeupdate"
	case EventStarted:
		return "started"
	case EventPaused:
		return "paused"
	case EventStopped:
		return "stopped"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to controller subscribers.
type Event struct {
	Type    EventType
	TrackID string
	Kind    Kind
	State   State
	Err     error
}

// ElementEventType identifies a notification raised by an Element.
type ElementEventType int

const (
	ElementTimeUpdate ElementEventType = iota
	ElementEnded
	ElementError
)

// ElementEvent is raised by an Element on its own goroutine.
type ElementEvent struct {
	Type     ElementEventType
	Position time.Duration
	Err      error
}

// Element is the platform media primitive a Controller drives. Load and
// Play may block; every other method must return promptly.
type Element interface {
	// Load prepares url for playback and returns its duration.
	Load(ctx context.Context, url string) (time.Duration, error)
	// Play starts or resumes output. It returns once output has started
	// or has been refused.
	Play(ctx context.Context) error
	Pause()
	Seek(pos time.Duration)
	SetVolume(v float64)
	SetLoop(loop bool)
	// SetListener installs the callback for element events. A nil
	// listener discards events.
	SetListener(fn func(ElementEvent))
	Close() error
}

// ElementFactory builds an element for one kind of media of a source.
type ElementFactory func(kind Kind, src Source) Element

// VolumePreference persists the user's volume level.
type VolumePreference interface {
	Volume() float64
	SetVolume(v float64) error
}

// ClampVolume limits v to [0, 1]. NaN is treated as silence.
func ClampVolume(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampPosition(pos, duration time.Duration) time.Duration {
	if pos < 0 {
		return 0
	}
	if pos > duration {
		return duration
	}
	return pos
}
