package media_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jfmyers9/nada/internal/media"
	"github.com/jfmyers9/nada/internal/media/mediatest"
	"github.com/jfmyers9/nada/internal/playback"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu   sync.Mutex
	list []media.Event
}

func record(c *media.Controller) *eventLog {
	l := &eventLog{}
	c.Subscribe(func(ev media.Event) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.list = append(l.list, ev)
	})
	return l
}

func (l *eventLog) count(t media.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.list {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (l *eventLog) last(t media.EventType) (media.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.list) - 1; i >= 0; i-- {
		if l.list[i].Type == t {
			return l.list[i], true
		}
	}
	return media.Event{}, false
}

type fixture struct {
	el    *mediatest.Element
	coord *playback.Coordinator
	prefs *mediatest.Prefs
	c     *media.Controller
}

func newFixture(t *testing.T, kind media.Kind) *fixture {
	t.Helper()
	f := &fixture{
		el:    mediatest.NewElement("t1", nil),
		coord: playback.New(),
		prefs: mediatest.NewPrefs(0.7),
	}
	f.c = media.NewController(media.Options{
		TrackID: "t1",
		Kind:    kind,
		URL:     "/audio/t1.mp3",
		Element: f.el,
		Owner:   f.coord,
		Prefs:   f.prefs,
		Logger:  zerolog.Nop(),
	})
	t.Cleanup(func() { _ = f.c.Close() })
	return f
}

func waitStatus(t *testing.T, c *media.Controller, want media.Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State().Status == want
	}, time.Second, time.Millisecond, "controller never reached %s (last %s)", want, c.State().Status)
}

func (f *fixture) load(t *testing.T) {
	t.Helper()
	f.c.Load(context.Background(), "/audio/t1.mp3")
	waitStatus(t, f.c, media.StatusReady)
}

func TestPlay_AcquiresOwnershipAndStarts(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	events := record(f.c)
	f.load(t)

	require.NoError(t, f.c.Play(context.Background()))

	assert.Equal(t, media.StatusPlaying, f.c.State().Status)
	assert.True(t, f.el.Playing())
	owner, ok := f.coord.Owner()
	assert.True(t, ok)
	assert.Equal(t, "t1", owner)
	assert.Equal(t, 1, events.count(media.EventStarted))
}

func TestPlay_FromIdleLoadsThenPlays(t *testing.T) {
	f := newFixture(t, media.KindAudio)

	require.NoError(t, f.c.Play(context.Background()))
	waitStatus(t, f.c, media.StatusPlaying)

	assert.Equal(t, 1, f.el.Loads())
	assert.Equal(t, "/audio/t1.mp3", f.el.URL())
}

func TestPlay_QueuedWhileLoading(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	release := f.el.HoldLoad()

	f.c.Load(context.Background(), "/audio/t1.mp3")
	require.NoError(t, f.c.Play(context.Background()))

	assert.Equal(t, media.StatusLoading, f.c.State().Status)
	assert.Equal(t, 0, f.el.Plays(), "play must wait for readiness")

	release()
	waitStatus(t, f.c, media.StatusPlaying)
	assert.Equal(t, 1, f.el.Plays())
}

func TestPause_CancelsQueuedPlay(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	release := f.el.HoldLoad()

	f.c.Load(context.Background(), "/audio/t1.mp3")
	require.NoError(t, f.c.Play(context.Background()))
	f.c.Pause()
	release()

	waitStatus(t, f.c, media.StatusReady)
	assert.Equal(t, 0, f.el.Plays())
}

func TestPause_Idempotent(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	events := record(f.c)
	f.load(t)
	require.NoError(t, f.c.Play(context.Background()))

	f.c.Pause()
	f.c.Pause()

	assert.Equal(t, media.StatusPaused, f.c.State().Status)
	assert.Equal(t, 1, events.count(media.EventPaused))
	assert.False(t, f.el.Playing())
}

func TestPause_WhenIdleIsNoop(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	events := record(f.c)

	f.c.Pause()

	assert.Equal(t, media.StatusIdle, f.c.State().Status)
	assert.Equal(t, 0, events.count(media.EventPaused))
}

func TestStop_RewindsWithoutReleasing(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	f.load(t)
	require.NoError(t, f.c.Play(context.Background()))
	f.c.Seek(42 * time.Second)

	f.c.Stop()

	st := f.c.State()
	assert.Equal(t, media.StatusReady, st.Status)
	assert.Equal(t, time.Duration(0), st.CurrentTime)
	assert.False(t, f.el.Playing())
	assert.Equal(t, time.Duration(0), f.el.Position())

	owner, _ := f.coord.Owner()
	assert.Equal(t, "t1", owner, "Stop leaves ownership bookkeeping to the caller")
}

func TestSeek_ClampsToDuration(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	f.el.SetDuration(180 * time.Second)
	events := record(f.c)
	f.load(t)

	got := f.c.Seek(9999 * time.Second)
	assert.Equal(t, 180*time.Second, got)
	assert.Equal(t, 180*time.Second, f.c.State().CurrentTime)

	got = f.c.Seek(-5 * time.Second)
	assert.Equal(t, time.Duration(0), got)

	assert.Equal(t, 2, events.count(media.EventTimeUpdate))
}

func TestSeek_UnloadedIsNoop(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	assert.Equal(t, time.Duration(0), f.c.Seek(30*time.Second))
	assert.Equal(t, time.Duration(0), f.el.Position())
}

func TestSetVolume_ClampsAndPersists(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{name: "above range", in: 1.5, want: 1},
		{name: "below range", in: -0.2, want: 0},
		{name: "in range", in: 0.35, want: 0.35},
		{name: "not a number", in: math.NaN(), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, media.KindAudio)

			got := f.c.SetVolume(tt.in)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want, f.c.Volume())
			assert.Equal(t, tt.want, f.el.Volume())
			assert.Equal(t, tt.want, f.prefs.Volume())
		})
	}
}

func TestSetVolume_PersistFailureStillApplies(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	f.prefs.FailWrites(errors.New("disk full"))

	f.c.SetVolume(0.2)

	assert.Equal(t, 0.2, f.c.Volume())
	assert.Equal(t, 0.2, f.el.Volume())
}

func TestVolumeOverride(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	f.c.SetVolume(0.5)

	f.c.SetVolumeOverride(0.3)
	assert.Equal(t, 0.3, f.el.Volume())
	assert.Equal(t, 0.5, f.c.Volume(), "override does not change the user volume")

	f.c.SetVolume(0.8)
	assert.Equal(t, 0.3, f.el.Volume(), "override stays in effect")

	f.c.ClearVolumeOverride()
	assert.Equal(t, 0.8, f.el.Volume())
	assert.Equal(t, 2, f.prefs.Writes(), "override is never persisted")
	assert.Equal(t, 0.8, f.prefs.Volume())
}

func TestVideoIsMuted(t *testing.T) {
	f := newFixture(t, media.KindVideo)
	f.c.SetVolume(0.9)
	assert.Equal(t, float64(0), f.el.Volume())
}

func TestLoad_UnreachableEmitsExactlyOneError(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	f.el.FailLoad(errors.New("connection refused"))
	events := record(f.c)

	f.c.Load(context.Background(), "http://unreachable.invalid/a.mp3")
	waitStatus(t, f.c, media.StatusErrored)

	assert.ErrorIs(t, f.c.Err(), &media.ResourceLoadError{})

	err := f.c.Play(context.Background())
	assert.ErrorIs(t, err, &media.ResourceLoadError{})

	assert.Equal(t, 1, events.count(media.EventError))
	assert.Equal(t, 1, f.el.Loads(), "no automatic retry")
	_, owned := f.coord.Owner()
	assert.False(t, owned)
}

func TestLoad_EmptySource(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	events := record(f.c)

	f.c.Load(context.Background(), "")

	assert.Equal(t, media.StatusErrored, f.c.State().Status)
	assert.Equal(t, 1, events.count(media.EventError))
	assert.Equal(t, 0, f.el.Loads())

	ev, ok := events.last(media.EventError)
	require.True(t, ok)
	var loadErr *media.ResourceLoadError
	require.ErrorAs(t, ev.Err, &loadErr)
	assert.Equal(t, "no source", loadErr.Reason)
}

// slowElement finishes loads of "slow" only when released, so a later
// load can overtake it.
type slowElement struct {
	*mediatest.Element
	gate chan struct{}
}

func (e *slowElement) Load(ctx context.Context, url string) (time.Duration, error) {
	if url == "slow" {
		<-e.gate
		return 10 * time.Second, nil
	}
	return 20 * time.Second, nil
}

func TestLoad_LastWriterWins(t *testing.T) {
	el := &slowElement{Element: mediatest.NewElement("t1", nil), gate: make(chan struct{})}
	c := media.NewController(media.Options{
		TrackID: "t1",
		Element: el,
		Owner:   playback.New(),
		Logger:  zerolog.Nop(),
	})
	defer func() { _ = c.Close() }()

	c.Load(context.Background(), "slow")
	c.Load(context.Background(), "fast")
	waitStatus(t, c, media.StatusReady)
	close(el.gate)

	// give the stale load a chance to land
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 20*time.Second, c.State().Duration)
	assert.Equal(t, "fast", c.URL())
}

func TestLoad_NewSourceDropsQueuedPlay(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	release := f.el.HoldLoad()

	require.NoError(t, f.c.Play(context.Background()))
	assert.Equal(t, media.StatusLoading, f.c.State().Status)
	owner, _ := f.coord.Owner()
	assert.Equal(t, "t1", owner)

	f.c.Load(context.Background(), "/audio/other.mp3")
	_, owned := f.coord.Owner()
	assert.False(t, owned, "the queued play gave up ownership")

	release()
	waitStatus(t, f.c, media.StatusReady)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, "/audio/other.mp3", f.c.URL())
	assert.Equal(t, media.StatusReady, f.c.State().Status)
	assert.False(t, f.el.Playing())
	assert.Equal(t, 0, f.el.Plays())
}

func TestLoad_SameSourceKeepsQueuedPlay(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	release := f.el.HoldLoad()

	require.NoError(t, f.c.Play(context.Background()))
	f.c.Load(context.Background(), "/audio/t1.mp3")
	release()

	waitStatus(t, f.c, media.StatusPlaying)
	assert.True(t, f.el.Playing())
}

func TestPlay_RejectedReleasesOwnership(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	f.el.RejectPlay(errors.New("NotAllowedError"))
	events := record(f.c)
	f.load(t)

	err := f.c.Play(context.Background())

	var rejected *media.PlaybackRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, media.StatusErrored, f.c.State().Status)
	assert.Equal(t, 1, events.count(media.EventError))
	_, owned := f.coord.Owner()
	assert.False(t, owned)
}

func TestPlay_SupersededWhilePending(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	f.load(t)
	release := f.el.HoldPlay()

	errCh := make(chan error, 1)
	go func() { errCh <- f.c.Play(context.Background()) }()
	require.Eventually(t, func() bool { return f.el.Plays() == 1 }, time.Second, time.Millisecond)

	f.coord.RequestOwnership("t2")
	release()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, media.ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("Play did not return")
	}
	assert.False(t, f.el.Playing(), "superseded play must not stay audible")
	assert.NotEqual(t, media.StatusPlaying, f.c.State().Status)
}

func TestPlay_PauseDuringPendingPlay(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	f.load(t)
	release := f.el.HoldPlay()

	errCh := make(chan error, 1)
	go func() { errCh <- f.c.Play(context.Background()) }()
	require.Eventually(t, func() bool { return f.el.Plays() == 1 }, time.Second, time.Millisecond)

	f.c.Pause()
	release()

	assert.ErrorIs(t, <-errCh, media.ErrSuperseded)
	assert.False(t, f.el.Playing())
}

func TestEnded_ResetsAndReleases(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	events := record(f.c)
	f.load(t)
	require.NoError(t, f.c.Play(context.Background()))

	f.el.Emit(media.ElementEvent{Type: media.ElementTimeUpdate, Position: 90 * time.Second})
	assert.Equal(t, 90*time.Second, f.c.State().CurrentTime)

	f.el.Finish()

	st := f.c.State()
	assert.Equal(t, media.StatusEnded, st.Status)
	assert.Equal(t, time.Duration(0), st.CurrentTime)
	assert.Equal(t, 1, events.count(media.EventEnded))
	_, owned := f.coord.Owner()
	assert.False(t, owned)

	// replay after the end starts from the top
	require.NoError(t, f.c.Play(context.Background()))
	assert.Equal(t, media.StatusPlaying, f.c.State().Status)
}

func TestElementError_ReleasesOwnership(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	events := record(f.c)
	f.load(t)
	require.NoError(t, f.c.Play(context.Background()))

	f.el.Fail(errors.New("decode error"))
	f.el.Fail(errors.New("decode error"))

	assert.Equal(t, media.StatusErrored, f.c.State().Status)
	assert.Equal(t, 1, events.count(media.EventError))
	_, owned := f.coord.Owner()
	assert.False(t, owned)
}

func TestClose_ReleasesOwnership(t *testing.T) {
	f := newFixture(t, media.KindAudio)
	f.load(t)
	require.NoError(t, f.c.Play(context.Background()))

	require.NoError(t, f.c.Close())

	assert.True(t, f.el.Closed())
	_, owned := f.coord.Owner()
	assert.False(t, owned)
	assert.ErrorIs(t, f.c.Play(context.Background()), media.ErrClosed)
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", media.Reason(nil))
	assert.Equal(t, "Failed to load audio", media.Reason(&media.ResourceLoadError{URL: "x"}))
	assert.Equal(t, "Failed to play audio", media.Reason(&media.PlaybackRejectedError{}))
	assert.Equal(t, "Failed to play audio: no output device",
		media.Reason(&media.PlaybackRejectedError{Reason: "no output device"}))
}
