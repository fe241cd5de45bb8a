// Package notify delivers user-facing playback notifications (toasts).
package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sink receives playback notifications. Implementations must not block.
type Sink interface {
	PlaybackStarted(title string)
	PlaybackFailed(reason string)
	PreviewUnavailable(trackID string)
}

// Level classifies a toast.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Toast is a rendered notification.
type Toast struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	TrackID string    `json:"track_id,omitempty"`
	At      time.Time `json:"at"`
}

// Message formats for each notification.
const (
	startedFormat      = "Now playing: %s"
	previewUnavailable = "Preview unavailable"
)

// Noop discards every notification.
type Noop struct{}

func (Noop) PlaybackStarted(string)    {}
func (Noop) PlaybackFailed(string)     {}
func (Noop) PreviewUnavailable(string) {}

// Log writes notifications to a zerolog logger.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a sink that logs with the given logger.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *Log) PlaybackStarted(title string) {
	l.logger.Info().Str("title", title).Msg("Playback started")
}

func (l *Log) PlaybackFailed(reason string) {
	l.logger.Warn().Str("reason", reason).Msg("Playback failed")
}

func (l *Log) PreviewUnavailable(trackID string) {
	l.logger.Warn().Str("track", trackID).Msg("Preview unavailable")
}

// Multi fans notifications out to several sinks.
type Multi []Sink

func (m Multi) PlaybackStarted(title string) {
	for _, s := range m {
		s.PlaybackStarted(title)
	}
}

func (m Multi) PlaybackFailed(reason string) {
	for _, s := range m {
		s.PlaybackFailed(reason)
	}
}

func (m Multi) PreviewUnavailable(trackID string) {
	for _, s := range m {
		s.PreviewUnavailable(trackID)
	}
}

// Recorder keeps the most recent toasts in memory, oldest first.
type Recorder struct {
	mu       sync.Mutex
	toasts   []Toast
	capacity int
	now      func() time.Time
	onChange func()
}

// NewRecorder keeps at most capacity toasts.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 1
	}
	return &Recorder{capacity: capacity, now: time.Now}
}

// OnChange registers a callback invoked after every new toast.
func (r *Recorder) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

func (r *Recorder) PlaybackStarted(title string) {
	r.add(Started(title, r.now()))
}

func (r *Recorder) PlaybackFailed(reason string) {
	r.add(Failed(reason, r.now()))
}

func (r *Recorder) PreviewUnavailable(trackID string) {
	r.add(Unavailable(trackID, r.now()))
}

// Toasts returns a copy of the recorded toasts.
func (r *Recorder) Toasts() []Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Toast(nil), r.toasts...)
}

// Latest returns the newest toast.
func (r *Recorder) Latest() (Toast, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return Toast{}, false
	}
	return r.toasts[len(r.toasts)-1], true
}

func (r *Recorder) add(t Toast) {
	r.mu.Lock()
	r.toasts = append(r.toasts, t)
	if len(r.toasts) > r.capacity {
		r.toasts = r.toasts[len(r.toasts)-r.capacity:]
	}
	fn := r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn()
	}
}
