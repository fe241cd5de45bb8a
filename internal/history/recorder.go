package history

import (
	"context"
	"sync"

	"github.com/jfmyers9/nada/internal/playback"
	"github.com/rs/zerolog"
)

// Recorder journals every ownership session once it ends.
type Recorder struct {
	journal  *Journal
	changes  chan playback.Change
	classify func(trackID string) Mode
	title    func(trackID string) string
	logger   zerolog.Logger

	mu          sync.Mutex
	modes       map[string]Mode
	unsubscribe func()
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithClassifier decides, when a session starts, whether it is a preview.
func WithClassifier(fn func(trackID string) Mode) RecorderOption {
	return func(r *Recorder) { r.classify = fn }
}

// WithTitles resolves track titles for journal entries.
func WithTitles(fn func(trackID string) string) RecorderOption {
	return func(r *Recorder) { r.title = fn }
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger.With().Str("component", "history").Logger()
	}
}

// NewRecorder subscribes to coord. Changes are buffered until Run drains
// them.
func NewRecorder(journal *Journal, coord *playback.Coordinator, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		journal:  journal,
		changes:  make(chan playback.Change, 64),
		classify: func(string) Mode { return ModePlay },
		title:    func(string) string { return "" },
		logger:   zerolog.Nop(),
		modes:    make(map[string]Mode),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.unsubscribe = coord.Subscribe(r.observe)
	return r
}

// observe runs inside the coordinator and must not block.
func (r *Recorder) observe(ch playback.Change) {
	if ch.Current != nil {
		mode := r.classify(ch.Current.OwnerID)
		r.mu.Lock()
		r.modes[ch.Current.ID] = mode
		r.mu.Unlock()
	}
	if ch.Previous == nil {
		return
	}

	select {
	case r.changes <- ch:
	default:
		r.logger.Warn().Str("track", ch.Previous.OwnerID).Msg("History buffer full, dropping session")
	}
}

// Run writes finished sessions until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ch := <-r.changes:
			r.record(ctx, ch)
		}
	}
}

func (r *Recorder) record(ctx context.Context, ch playback.Change) {
	prev := ch.Previous

	r.mu.Lock()
	mode, ok := r.modes[prev.ID]
	delete(r.modes, prev.ID)
	r.mu.Unlock()
	if !ok {
		mode = ModePlay
	}

	entry := Entry{
		SessionID: prev.ID,
		TrackID:   prev.OwnerID,
		Title:     r.title(prev.OwnerID),
		Mode:      mode,
		StartedAt: prev.StartedAt,
		EndedAt:   ch.At,
		Listened:  ch.At.Sub(prev.StartedAt),
	}

	if _, err := r.journal.Add(ctx, entry); err != nil {
		r.logger.Error().Err(err).Str("track", entry.TrackID).Msg("Failed to record session")
		return
	}

	r.logger.Debug().
		Str("track", entry.TrackID).
		Str("mode", string(entry.Mode)).
		Dur("listened", entry.Listened).
		Msg("Session recorded")
}

// Flush records every buffered session without waiting for more.
func (r *Recorder) Flush(ctx context.Context) {
	for {
		select {
		case ch := <-r.changes:
			r.record(ctx, ch)
		default:
			return
		}
	}
}

// Close stops observing the coordinator.
func (r *Recorder) Close() {
	r.unsubscribe()
}
