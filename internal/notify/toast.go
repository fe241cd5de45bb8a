package notify

import (
	"fmt"
	"time"
)

// Started builds the toast shown when explicit playback begins.
func Started(title string, at time.Time) Toast {
	return Toast{Level: LevelInfo, Message: fmt.Sprintf(startedFormat, title), At: at}
}

// Failed builds the toast shown when playback could not start.
func Failed(reason string, at time.Time) Toast {
	if reason == "" {
		reason = "Failed to play audio"
	}
	return Toast{Level: LevelError, Message: reason, At: at}
}

// Unavailable builds the toast shown when a hover preview fails.
func Unavailable(trackID string, at time.Time) Toast {
	return Toast{Level: LevelError, Message: previewUnavailable, TrackID: trackID, At: at}
}

// Func adapts a single toast handler to the Sink interface.
type Func func(Toast)

func (f Func) PlaybackStarted(title string)      { f(Started(title, time.Now())) }
func (f Func) PlaybackFailed(reason string)      { f(Failed(reason, time.Now())) }
func (f Func) PreviewUnavailable(trackID string) { f(Unavailable(trackID, time.Now())) }
