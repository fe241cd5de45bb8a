package speaker

import (
	"sync/atomic"

	"github.com/gopxl/beep/v2"
)

// tail wraps a decoded stream, restarting it when looping and reporting the
// end or a decode failure exactly once. Stream runs under the speaker lock,
// so callbacks are dispatched on their own goroutines.
type tail struct {
	src     beep.StreamSeeker
	loop    atomic.Bool
	done    bool
	onEnd   func(*tail)
	onError func(*tail, error)
}

func (t *tail) setLoop(loop bool) { t.loop.Store(loop) }

// rewind re-arms a drained tail. Callers hold the speaker lock.
func (t *tail) rewind() { t.done = false }

func (t *tail) Stream(samples [][2]float64) (int, bool) {
	if t.done {
		return 0, false
	}

	filled := 0
	for filled < len(samples) {
		n, ok := t.src.Stream(samples[filled:])
		filled += n
		if ok {
			if n == 0 {
				break
			}
			continue
		}

		if err := t.src.Err(); err != nil {
			t.done = true
			if t.onError != nil {
				go t.onError(t, err)
			}
			return filled, filled > 0
		}
		if t.loop.Load() && t.src.Len() > 0 {
			if err := t.src.Seek(0); err == nil {
				continue
			}
		}

		t.done = true
		if t.onEnd != nil {
			go t.onEnd(t)
		}
		return filled, filled > 0
	}
	return filled, true
}

func (t *tail) Err() error {
	return t.src.Err()
}
