package speaker

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/wav"
	"github.com/jfmyers9/nada/internal/media"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeWAV renders d of silence to a wav file and returns its path.
func writeWAV(t *testing.T, rate beep.SampleRate, d time.Duration) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()

	format := beep.Format{SampleRate: rate, NumChannels: 2, Precision: 2}
	require.NoError(t, wav.Encode(f, beep.Silence(rate.N(d)), format))
	return p
}

func TestLoadLocalFile(t *testing.T) {
	p := writeWAV(t, SampleRate, 2*time.Second)
	el := New(nil, zerolog.Nop())
	defer el.Close()

	d, err := el.Load(context.Background(), p)
	require.NoError(t, err)
	assert.InDelta(t, float64(2*time.Second), float64(d), float64(10*time.Millisecond))
}

func TestLoadOverHTTP(t *testing.T) {
	p := writeWAV(t, 22050, time.Second)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/clip.wav" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, p)
	}))
	defer srv.Close()

	el := New(srv.Client(), zerolog.Nop())
	defer el.Close()

	d, err := el.Load(context.Background(), srv.URL+"/audio/clip.wav?v=2")
	require.NoError(t, err)
	assert.InDelta(t, float64(time.Second), float64(d), float64(10*time.Millisecond))

	_, err = el.Load(context.Background(), srv.URL+"/audio/missing.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	p := filepath.Join(t.TempDir(), "cover.png")
	require.NoError(t, os.WriteFile(p, []byte("not audio"), 0o644))

	el := New(nil, zerolog.Nop())
	_, err := el.Load(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported audio format")
}

func TestPlayHonoursCancelledContext(t *testing.T) {
	el := New(nil, zerolog.Nop())
	require.NoError(t, el.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, el.Play(ctx), context.Canceled)
}

func TestApplyVolume(t *testing.T) {
	tests := []struct {
		level  float64
		silent bool
		gain   float64
	}{
		{level: 1, gain: 0},
		{level: 0.5, gain: -1},
		{level: 0.25, gain: -2},
		{level: 0, silent: true},
	}

	for _, tt := range tests {
		vol := &effects.Volume{Base: 2}
		applyVolume(vol, tt.level)
		assert.Equal(t, tt.silent, vol.Silent, "level %v", tt.level)
		if !tt.silent {
			assert.InDelta(t, tt.gain, vol.Volume, 1e-9, "level %v", tt.level)
			assert.InDelta(t, tt.level, math.Pow(2, vol.Volume), 1e-9)
		}
	}
}

// seekable is an in-memory StreamSeeker of n silent samples.
type seekable struct {
	n, pos int
}

func (s *seekable) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= s.n {
		return 0, false
	}
	k := min(len(samples), s.n-s.pos)
	for i := range samples[:k] {
		samples[i] = [2]float64{}
	}
	s.pos += k
	return k, true
}

func (s *seekable) Err() error       { return nil }
func (s *seekable) Len() int         { return s.n }
func (s *seekable) Position() int    { return s.pos }
func (s *seekable) Seek(p int) error { s.pos = p; return nil }

func TestTailReportsEndOnce(t *testing.T) {
	ended := make(chan struct{}, 4)
	tl := &tail{src: &seekable{n: 10}, onEnd: func(*tail) { ended <- struct{}{} }}

	buf := make([][2]float64, 8)
	n, ok := tl.Stream(buf)
	assert.Equal(t, 8, n)
	assert.True(t, ok)

	n, ok = tl.Stream(buf)
	assert.Equal(t, 2, n)
	assert.True(t, ok)

	n, ok = tl.Stream(buf)
	assert.Equal(t, 0, n)
	assert.False(t, ok)

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("end never reported")
	}
	assert.Empty(t, ended)
}

func TestTailLoops(t *testing.T) {
	src := &seekable{n: 5}
	tl := &tail{src: src, onEnd: func(*tail) { t.Error("looping tail ended") }}
	tl.setLoop(true)

	buf := make([][2]float64, 12)
	n, ok := tl.Stream(buf)
	assert.Equal(t, 12, n)
	assert.True(t, ok)
	assert.Equal(t, 2, src.Position())
}

func TestFactoryRoutesVideoToFallback(t *testing.T) {
	var got media.Kind = -1
	fallback := func(kind media.Kind, src media.Source) media.Element {
		got = kind
		return New(nil, zerolog.Nop())
	}

	f := Factory(nil, fallback, zerolog.Nop())
	f(media.KindAudio, media.Source{TrackID: "1"})
	assert.Equal(t, media.Kind(-1), got)

	f(media.KindVideo, media.Source{TrackID: "1"})
	assert.Equal(t, media.KindVideo, got)
}
