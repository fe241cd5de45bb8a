package headless_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jfmyers9/nada/internal/media"
	"github.com/jfmyers9/nada/internal/media/headless"
	"github.com/jfmyers9/nada/internal/playback"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []media.ElementEvent
}

func (r *recorder) add(ev media.ElementEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) count(typ media.ElementEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestLoadProbesHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		if r.URL.Path == "/video/clip.mp4" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	el := headless.New(headless.Options{Client: srv.Client(), Length: 90 * time.Second})

	d, err := el.Load(context.Background(), srv.URL+"/video/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = el.Load(context.Background(), srv.URL+"/video/missing.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestLoadStatsFiles(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.mp3")
	require.NoError(t, os.WriteFile(p, []byte("id3"), 0o644))

	el := headless.New(headless.Options{})
	d, err := el.Load(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, headless.DefaultLength, d)

	_, err = el.Load(context.Background(), filepath.Join(dir, "missing.mp3"))
	assert.Error(t, err)
}

func TestPlayheadFollowsClock(t *testing.T) {
	now := time.Unix(0, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	p := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, os.WriteFile(p, nil, 0o644))

	el := headless.New(headless.Options{Length: time.Minute, Interval: time.Hour, Now: clock})
	_, err := el.Load(context.Background(), p)
	require.NoError(t, err)

	require.NoError(t, el.Play(context.Background()))
	advance(5 * time.Second)
	assert.Equal(t, 5*time.Second, el.Position())

	el.Pause()
	advance(5 * time.Second)
	assert.Equal(t, 5*time.Second, el.Position())

	el.Seek(2 * time.Minute)
	assert.Equal(t, time.Minute, el.Position())
	el.Seek(-time.Second)
	assert.Equal(t, time.Duration(0), el.Position())
}

func TestEndsOnceWithoutLoop(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, os.WriteFile(p, nil, 0o644))

	el := headless.New(headless.Options{Length: 30 * time.Millisecond, Interval: 5 * time.Millisecond})
	rec := &recorder{}
	el.SetListener(rec.add)

	_, err := el.Load(context.Background(), p)
	require.NoError(t, err)
	require.NoError(t, el.Play(context.Background()))

	require.Eventually(t, func() bool { return rec.count(media.ElementEnded) == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, rec.count(media.ElementEnded))
	assert.Positive(t, rec.count(media.ElementTimeUpdate))
}

func TestLoopNeverEnds(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.mp4")
	require.NoError(t, os.WriteFile(p, nil, 0o644))

	el := headless.New(headless.Options{Length: 10 * time.Millisecond, Interval: 2 * time.Millisecond})
	rec := &recorder{}
	el.SetListener(rec.add)
	el.SetLoop(true)

	_, err := el.Load(context.Background(), p)
	require.NoError(t, err)
	require.NoError(t, el.Play(context.Background()))

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, el.Close())
	assert.Equal(t, 0, rec.count(media.ElementEnded))
	assert.Less(t, el.Position(), 10*time.Millisecond)
}

func TestDrivesController(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.mp3")
	require.NoError(t, os.WriteFile(p, nil, 0o644))

	coord := playback.New()
	ctrl := media.NewController(media.Options{
		TrackID: "1",
		Kind:    media.KindAudio,
		URL:     p,
		Element: headless.New(headless.Options{Length: 40 * time.Millisecond, Interval: 5 * time.Millisecond}),
		Owner:   coord,
		Logger:  zerolog.Nop(),
	})
	defer ctrl.Close()

	require.NoError(t, ctrl.Play(context.Background()))
	require.Eventually(t, func() bool { return ctrl.State().Status == media.StatusPlaying }, time.Second, time.Millisecond)

	require.Eventually(t, func() bool { return ctrl.State().Status == media.StatusEnded }, time.Second, time.Millisecond)
	_, owned := coord.Owner()
	assert.False(t, owned, "ending releases ownership")
}
