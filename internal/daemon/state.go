package daemon

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jfmyers9/nada/internal/hover"
	"github.com/jfmyers9/nada/internal/storefront"
)

// NowPlaying is the mini-player snapshot the daemon keeps on disk so other
// processes can read it without the HTTP API.
type NowPlaying struct {
	TrackID   string        `json:"track_id"`
	Title     string        `json:"title"`
	Artist    string        `json:"artist"`
	Status    string        `json:"status"`
	Position  time.Duration `json:"position"`
	Duration  time.Duration `json:"duration"`
	Preview   bool          `json:"preview"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Playing reports whether the snapshot describes audible playback.
func (n NowPlaying) Playing() bool {
	return n.Status == "playing" || n.Preview
}

// Remaining returns how much of the track is left.
func (n NowPlaying) Remaining() time.Duration {
	if n.Duration <= n.Position {
		return 0
	}
	return n.Duration - n.Position
}

// FromView converts a card view into a snapshot.
func FromView(v storefront.View, at time.Time) NowPlaying {
	return NowPlaying{
		TrackID:   v.TrackID,
		Title:     v.Title,
		Artist:    v.Artist,
		Status:    v.Status.String(),
		Position:  v.Position,
		Duration:  v.Duration,
		Preview:   v.Hover.State == hover.StatePreviewing,
		UpdatedAt: at,
	}
}

// State manages the now-playing snapshot with thread-safe access and
// persistence
type State struct {
	mu       sync.RWMutex
	current  *NowPlaying
	filePath string // Path to state file for persistence
}

// NewState creates a new State instance
// If filePath is provided, attempts to restore state from disk
func NewState(filePath string) (*State, error) {
	s := &State{
		filePath: filePath,
	}

	// Try to restore state from disk if file exists
	if filePath != "" {
		if err := s.restore(); err != nil && !os.IsNotExist(err) {
			// Not a fatal error - daemon can start fresh
			return s, err
		}
	}

	return s, nil
}

// Update records a new snapshot. It reports whether anything worth
// persisting changed: the track, the status, or the position by a second
// or more.
func (s *State) Update(np NowPlaying) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && !significant(*s.current, np) {
		return false, nil
	}

	s.current = &np
	return true, s.persist()
}

func significant(prev, next NowPlaying) bool {
	if prev.TrackID != next.TrackID || prev.Status != next.Status || prev.Preview != next.Preview {
		return true
	}
	delta := next.Position - prev.Position
	return delta >= time.Second || delta <= -time.Second
}

// Get returns a copy of the current snapshot
func (s *State) Get() (NowPlaying, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return NowPlaying{}, false
	}
	return *s.current, true
}

// Reset clears the current snapshot
func (s *State) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil
	}
	s.current = nil
	return s.persist()
}

// persist saves the current state to disk
// Must be called with lock held
func (s *State) persist() error {
	if s.filePath == "" {
		return nil // No persistence configured
	}

	if s.current == nil {
		if err := os.Remove(s.filePath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// Write atomically via temp file + rename
	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tmpPath, s.filePath)
}

// restore loads state from disk
func (s *State) restore() error {
	np, err := ReadState(s.filePath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = &np
	return nil
}

// ReadState loads a snapshot written by a running daemon.
func ReadState(filePath string) (NowPlaying, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return NowPlaying{}, err
	}

	var np NowPlaying
	if err := json.Unmarshal(data, &np); err != nil {
		return NowPlaying{}, err
	}
	return np, nil
}
