package storefront_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jfmyers9/nada/internal/catalog"
	"github.com/jfmyers9/nada/internal/hover"
	"github.com/jfmyers9/nada/internal/media"
	"github.com/jfmyers9/nada/internal/media/mediatest"
	"github.com/jfmyers9/nada/internal/notify"
	"github.com/jfmyers9/nada/internal/playback"
	"github.com/jfmyers9/nada/internal/storefront"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTracks = []catalog.Track{
	{ID: "a", Title: "Alpha", Artist: "Neiland", AudioURL: "/audio/a.mp3"},
	{ID: "b", Title: "Beta", Artist: "Neiland", AudioURL: "/audio/b.mp3", VideoURL: "/video/b.mp4"},
}

type harness struct {
	log     *mediatest.Log
	factory *mediatest.Factory
	clock   *mediatest.Clock
	sink    *notify.Recorder
	coord   *playback.Coordinator
	prefs   *mediatest.Prefs
	grid    *storefront.Grid
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := &mediatest.Log{}
	h := &harness{
		log:     log,
		factory: mediatest.NewFactory(log),
		clock:   &mediatest.Clock{},
		sink:    notify.NewRecorder(20),
		coord:   playback.New(),
		prefs:   mediatest.NewPrefs(0.7),
	}
	h.grid = storefront.NewGrid(storefront.Config{
		Owner:     h.coord,
		Elements:  h.factory.New,
		Prefs:     h.prefs,
		Sink:      h.sink,
		AfterFunc: h.clock.AfterFunc,
		Logger:    zerolog.Nop(),
	})
	t.Cleanup(func() { _ = h.grid.Close() })
	return h
}

func (h *harness) card(t *testing.T, id string) *storefront.Card {
	t.Helper()
	c, ok := h.grid.Card(id)
	require.True(t, ok, "card %s not mounted", id)
	return c
}

func (h *harness) el(trackID string, kind media.Kind) *mediatest.Element {
	return h.factory.Get(trackID, kind)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, time.Second, time.Millisecond, msg)
}

func (h *harness) owner() string {
	id, _ := h.coord.Owner()
	return id
}

func TestSync_MountsInOrderAndUnmountsRemoved(t *testing.T) {
	h := newHarness(t)
	h.grid.Sync(testTracks)

	views := h.grid.Views()
	require.Len(t, views, 2)
	assert.Equal(t, "a", views[0].TrackID)
	assert.Equal(t, "b", views[1].TrackID)
	assert.False(t, views[0].HasVideo)
	assert.True(t, views[1].HasVideo)

	reordered := []catalog.Track{testTracks[1]}
	h.grid.Sync(reordered)

	views = h.grid.Views()
	require.Len(t, views, 1)
	assert.Equal(t, "b", views[0].TrackID)
	assert.True(t, h.el("a", media.KindAudio).Closed())
}

func TestTogglePlay_StartsAndPauses(t *testing.T) {
	h := newHarness(t)
	h.grid.Sync(testTracks)
	a := h.card(t, "a")

	require.NoError(t, a.TogglePlay(context.Background()))
	eventually(t, h.el("a", media.KindAudio).Playing, "a never played")

	latest, ok := h.sink.Latest()
	require.True(t, ok)
	assert.Equal(t, "Now playing: Alpha", latest.Message)
	assert.Equal(t, "a", h.owner())

	np, ok := h.grid.NowPlaying()
	require.True(t, ok)
	assert.Equal(t, "a", np.TrackID)
	assert.True(t, np.NowPlaying)

	require.NoError(t, a.TogglePlay(context.Background()))
	assert.Equal(t, media.StatusPaused, a.View().Status)
	assert.False(t, h.el("a", media.KindAudio).Playing())
	assert.Equal(t, "a", h.owner(), "pausing keeps the mini player on the card")
}

func TestHoverOtherCard_StopsPlayingCardFirst(t *testing.T) {
	h := newHarness(t)
	h.grid.Sync(testTracks)
	a, b := h.card(t, "a"), h.card(t, "b")

	require.NoError(t, a.TogglePlay(context.Background()))
	eventually(t, h.el("a", media.KindAudio).Playing, "a never played")

	b.PointerEnter(context.Background())
	assert.True(t, h.el("a", media.KindAudio).Playing(), "nothing happens before the debounce")

	h.clock.Advance(hover.DefaultDelay)
	eventually(t, h.factory.Preview("b").Playing, "b preview audio never played")
	eventually(t, h.el("b", media.KindVideo).Playing, "b video never played")

	assert.False(t, h.el("a", media.KindAudio).Playing())
	assert.Equal(t, "b", h.owner())

	stopA := h.log.LastIndex("a/audio:pause")
	require.NotEqual(t, -1, stopA)
	assert.Less(t, stopA, h.log.Index("b/video:play"))
	assert.Less(t, stopA, h.log.Index("b/audio-preview:play"))

	av := a.View()
	assert.False(t, av.NowPlaying)
	assert.Equal(t, time.Duration(0), av.Position)

	bv := b.View()
	assert.True(t, bv.NowPlaying)
	assert.Equal(t, hover.StatePreviewing, bv.Hover.State)
}

func TestTogglePlay_ReplacesOwnPreview(t *testing.T) {
	h := newHarness(t)
	h.grid.Sync(testTracks)
	b := h.card(t, "b")

	b.PointerEnter(context.Background())
	h.clock.Advance(hover.DefaultDelay)
	eventually(t, h.factory.Preview("b").Playing, "preview never played")

	require.NoError(t, b.TogglePlay(context.Background()))
	eventually(t, h.el("b", media.KindAudio).Playing, "b never played")

	assert.False(t, h.factory.Preview("b").Playing())
	assert.False(t, h.el("b", media.KindVideo).Playing())
	assert.Equal(t, hover.StateIdle, b.View().Hover.State)
	assert.Equal(t, "b", h.owner())
}

func TestHoverPlayingCard_KeepsExplicitPlayback(t *testing.T) {
	h := newHarness(t)
	h.grid.Sync(testTracks)
	b := h.card(t, "b")

	require.NoError(t, b.TogglePlay(context.Background()))
	eventually(t, func() bool {
		return b.Audio().State().Status == media.StatusPlaying
	}, "b never played")

	b.PointerEnter(context.Background())
	assert.Equal(t, 0, h.clock.Pending(), "no debounce for a card that is already playing")
	h.clock.Advance(hover.DefaultDelay)

	assert.True(t, h.el("b", media.KindAudio).Playing())
	assert.False(t, h.factory.Preview("b").Playing(), "only one audio controller may play")
	assert.False(t, h.el("b", media.KindVideo).Playing())
	assert.Equal(t, hover.StateIdle, b.View().Hover.State)

	b.PointerLeave()
	assert.True(t, h.el("b", media.KindAudio).Playing(), "leaving does not stop explicit playback")
	assert.Equal(t, "b", h.owner())
}

func TestPlayDuringDebounce_SkipsPreview(t *testing.T) {
	h := newHarness(t)
	h.grid.Sync(testTracks)
	b := h.card(t, "b")

	b.PointerEnter(context.Background())
	require.NoError(t, b.Audio().Play(context.Background()))
	eventually(t, func() bool {
		return b.Audio().State().Status == media.StatusPlaying
	}, "b never played")

	h.clock.Advance(hover.DefaultDelay)

	assert.True(t, h.el("b", media.KindAudio).Playing())
	assert.False(t, h.factory.Preview("b").Playing())
	assert.Equal(t, hover.StateIdle, b.View().Hover.State)
	assert.Equal(t, "b", h.owner())
}

func TestUnmount_ReleasesOwnership(t *testing.T) {
	h := newHarness(t)
	h.grid.Sync(testTracks)
	a := h.card(t, "a")

	require.NoError(t, a.TogglePlay(context.Background()))
	eventually(t, h.el("a", media.KindAudio).Playing, "a never played")

	require.True(t, h.grid.Unmount("a"))

	_, owned := h.coord.Owner()
	assert.False(t, owned)
	assert.False(t, h.el("a", media.KindAudio).Playing())
	assert.True(t, h.el("a", media.KindAudio).Closed())
	assert.False(t, h.grid.Unmount("a"))

	_, ok := h.grid.NowPlaying()
	assert.False(t, ok)
}

func TestUnmount_CancelsPendingPreview(t *testing.T) {
	h := newHarness(t)
	h.grid.Sync(testTracks)
	b := h.card(t, "b")

	b.PointerEnter(context.Background())
	require.Equal(t, 1, h.clock.Pending())

	h.grid.Unmount("b")

	assert.Equal(t, 0, h.clock.Pending())
	h.clock.Advance(time.Second)
	_, owned := h.coord.Owner()
	assert.False(t, owned)
	assert.Equal(t, 0, h.el("b", media.KindVideo).Plays())
}

func TestPlaybackFailure_NotifiesOnce(t *testing.T) {
	h := newHarness(t)
	h.factory.OnCreate(func(el *mediatest.Element) {
		if el.Name == "a/audio" {
			el.FailLoad(errors.New("404"))
		}
	})
	h.grid.Sync(testTracks)
	a := h.card(t, "a")

	require.NoError(t, a.TogglePlay(context.Background()))
	eventually(t, func() bool { return a.View().Status == media.StatusErrored }, "a never failed")

	var failures int
	for _, toast := range h.sink.Toasts() {
		if toast.Level == notify.LevelError {
			failures++
			assert.Equal(t, "Failed to load audio", toast.Message)
		}
	}
	assert.Equal(t, 1, failures)
	_, owned := h.coord.Owner()
	assert.False(t, owned)

	// another click reports the stored failure without retrying
	err := a.TogglePlay(context.Background())
	assert.ErrorIs(t, err, &media.ResourceLoadError{})
	assert.Equal(t, 1, h.el("a", media.KindAudio).Loads())
}

func TestPreviewFailure_ShowsCover(t *testing.T) {
	h := newHarness(t)
	h.factory.OnCreate(func(el *mediatest.Element) {
		if el.Name == "b/video" {
			el.FailLoad(errors.New("unsupported codec"))
		}
	})
	h.grid.Sync(testTracks)
	b := h.card(t, "b")

	b.PointerEnter(context.Background())
	h.clock.Advance(hover.DefaultDelay)

	eventually(t, func() bool { return b.View().Hover.State == hover.StateIdle }, "preview never fell back")
	assert.False(t, b.View().Hover.VideoShowing)

	latest, ok := h.sink.Latest()
	require.True(t, ok)
	assert.Equal(t, "Preview unavailable", latest.Message)
	assert.Equal(t, "b", latest.TrackID)
}

func TestSetVolume_AppliesToAllCards(t *testing.T) {
	h := newHarness(t)
	h.grid.Sync(testTracks)
	writes := h.prefs.Writes()

	got := h.grid.SetVolume(1.4)

	assert.Equal(t, float64(1), got)
	for _, v := range h.grid.Views() {
		assert.Equal(t, float64(1), v.Volume)
	}
	assert.Equal(t, float64(1), h.el("a", media.KindAudio).Volume())
	assert.Equal(t, float64(1), h.prefs.Volume())
	assert.Equal(t, writes+1, h.prefs.Writes(), "one change is persisted once")
}

func TestOnChange_ReceivesViews(t *testing.T) {
	h := newHarness(t)
	h.grid.Sync(testTracks)

	views := make(chan storefront.View, 64)
	h.grid.OnChange(func(v storefront.View) {
		select {
		case views <- v:
		default:
		}
	})

	require.NoError(t, h.card(t, "a").TogglePlay(context.Background()))

	deadline := time.After(time.Second)
	for {
		select {
		case v := <-views:
			if v.TrackID == "a" && v.Playing() {
				return
			}
		case <-deadline:
			t.Fatal("never saw a playing view for a")
		}
	}
}

func TestPreviewing_TracksHoverNotPlayback(t *testing.T) {
	h := newHarness(t)
	h.grid.Sync(testTracks)
	b := h.card(t, "b")

	assert.False(t, b.Previewing())

	b.PointerEnter(context.Background())
	assert.True(t, b.Previewing(), "pending preview counts")

	h.clock.Advance(hover.DefaultDelay)
	eventually(t, h.factory.Preview("b").Playing, "preview never played")
	assert.True(t, b.Previewing())

	require.NoError(t, b.TogglePlay(context.Background()))
	assert.False(t, b.Previewing(), "explicit play ends the preview")
}
