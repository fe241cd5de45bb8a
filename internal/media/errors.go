package media

import (
	"errors"
	"fmt"
)

var (
	// ErrSuperseded is returned by Play when a newer request replaced it
	// before the element started. The element has been paused again.
	ErrSuperseded = errors.New("play request superseded")

	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("media controller closed")
)

// ResourceLoadError reports a source that could not be fetched or decoded.
type ResourceLoadError struct {
	URL    string
	Reason string
	Err    error
}

func (e *ResourceLoadError) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("failed to load %q: %s: %v", e.URL, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("failed to load %q: %s", e.URL, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("failed to load %q: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("failed to load %q", e.URL)
	}
}

func (e *ResourceLoadError) Unwrap() error { return e.Err }

// Is reports whether target is a *ResourceLoadError
func (e *ResourceLoadError) Is(target error) bool {
	_, ok := target.(*ResourceLoadError)
	return ok
}

// PlaybackRejectedError reports that the element refused to start output,
// such as an autoplay policy or an unavailable audio device.
type PlaybackRejectedError struct {
	Reason string
	Err    error
}

func (e *PlaybackRejectedError) Error() string {
	if e.Err != nil {
		if e.Reason != "" {
			return fmt.Sprintf("playback rejected: %s: %v", e.Reason, e.Err)
		}
		return fmt.Sprintf("playback rejected: %v", e.Err)
	}
	if e.Reason != "" {
		return "playback rejected: " + e.Reason
	}
	return "playback rejected"
}

func (e *PlaybackRejectedError) Unwrap() error { return e.Err }

// Is reports whether target is a *PlaybackRejectedError
func (e *PlaybackRejectedError) Is(target error) bool {
	_, ok := target.(*PlaybackRejectedError)
	return ok
}

// Reason returns a short user-facing explanation for a playback failure.
func Reason(err error) string {
	var loadErr *ResourceLoadError
	var rejected *PlaybackRejectedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &loadErr):
		return "Failed to load audio"
	case errors.As(err, &rejected):
		if rejected.Reason != "" {
			return "Failed to play audio: " + rejected.Reason
		}
		return "Failed to play audio"
	default:
		return "Failed to play audio"
	}
}
