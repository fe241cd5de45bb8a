package server

import (
	"encoding/json"
	"time"

	"github.com/jfmyers9/nada/internal/notify"
	"github.com/jfmyers9/nada/internal/playback"
	"github.com/jfmyers9/nada/internal/storefront"
	"github.com/r3labs/sse/v2"
	"github.com/rs/zerolog"
)

// SSE stream names
const (
	StreamPlayback      = "playback"
	StreamNotifications = "notifications"
)

// Events fans storefront activity out to SSE subscribers.
type Events struct {
	sse    *sse.Server
	logger zerolog.Logger
}

// NewEvents creates the SSE server with its streams.
func NewEvents(logger zerolog.Logger) *Events {
	return newEvents(false, logger)
}

func newEvents(replay bool, logger zerolog.Logger) *Events {
	server := sse.New()
	server.AutoReplay = replay
	server.CreateStream(StreamPlayback)
	server.CreateStream(StreamNotifications)

	return &Events{
		sse:    server,
		logger: logger.With().Str("component", "events").Logger(),
	}
}

// Sink publishes toasts on the notifications stream.
func (e *Events) Sink() notify.Sink {
	return notify.Func(func(t notify.Toast) {
		e.publish(StreamNotifications, "toast", t)
	})
}

// PublishView sends a card snapshot on the playback stream.
func (e *Events) PublishView(v storefront.View) {
	e.publish(StreamPlayback, "card", v)
}

type ownerEvent struct {
	Kind     string            `json:"kind"`
	Previous *playback.Session `json:"previous,omitempty"`
	Current  *playback.Session `json:"current,omitempty"`
	At       time.Time         `json:"at"`
}

// PublishChange sends an ownership change on the playback stream.
func (e *Events) PublishChange(ch playback.Change) {
	e.publish(StreamPlayback, "owner", ownerEvent{
		Kind:     ch.Kind.String(),
		Previous: ch.Previous,
		Current:  ch.Current,
		At:       ch.At,
	})
}

func (e *Events) publish(stream, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		e.logger.Error().Err(err).Str("stream", stream).Msg("Failed to encode event")
		return
	}
	e.sse.Publish(stream, &sse.Event{Event: []byte(event), Data: data})
}

// Close disconnects every subscriber.
func (e *Events) Close() {
	e.sse.Close()
}
