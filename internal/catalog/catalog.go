// Package catalog provides the read-only track list shown in the storefront.
package catalog

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"

	"github.com/jfmyers9/nada/internal/media"
)

// Format is one purchasable encoding of a track.
type Format struct {
	Size    string  `yaml:"size" json:"size"`
	Bitrate string  `yaml:"bitrate" json:"bitrate"`
	Price   float64 `yaml:"price" json:"price"`
}

// Track is a catalog entry. Duration is kept in the "m:ss" form used for
// display; see Length for the parsed value.
type Track struct {
	ID       string            `yaml:"id" json:"id"`
	Title    string            `yaml:"title" json:"title"`
	Artist   string            `yaml:"artist" json:"artist"`
	Label    string            `yaml:"label" json:"label"`
	Genre    string            `yaml:"genre" json:"genre"`
	Duration string            `yaml:"duration" json:"duration"`
	BPM      int               `yaml:"bpm" json:"bpm"`
	Price    float64           `yaml:"price" json:"price"`
	CoverURL string            `yaml:"cover_url" json:"coverUrl"`
	AudioURL string            `yaml:"audio_url" json:"audioUrl"`
	VideoURL string            `yaml:"video_url,omitempty" json:"videoUrl,omitempty"`
	Formats  map[string]Format `yaml:"formats,omitempty" json:"formats,omitempty"`
}

// Length parses Duration. Unparseable values yield zero.
func (t Track) Length() time.Duration {
	d, err := ParseLength(t.Duration)
	if err != nil {
		return 0
	}
	return d
}

// HasVideo reports whether the track has a preview clip.
func (t Track) HasVideo() bool {
	return t.VideoURL != ""
}

// Source resolves the track's media into a media.Source.
func (t Track) Source(r Resolver) media.Source {
	return media.Source{
		TrackID:    t.ID,
		AudioURL:   r.Resolve(t.AudioURL),
		VideoURL:   r.Resolve(t.VideoURL),
		PosterURL:  r.Resolve(t.CoverURL),
		LengthHint: t.Length(),
	}
}

// GenerateID derives a stable id from the fields that identify a track.
func GenerateID(t Track) string {
	hashString := fmt.Sprintf("%s-%s-%s-%s", t.Artist, t.Title, t.Label, t.AudioURL)
	return fmt.Sprintf("%x", xxhash.Sum64String(hashString))
}

// ParseLength parses "m:ss" or "h:mm:ss".
func ParseLength(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	var total time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		if i > 0 && n >= 60 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		total = total*60 + time.Duration(n)
	}
	return total * time.Second, nil
}

// FormatLength renders d as "m:ss".
func FormatLength(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// Catalog is an ordered, immutable list of tracks.
type Catalog struct {
	tracks []Track
	byID   map[string]int
}

type catalogFile struct {
	Tracks []Track `yaml:"tracks"`
}

// New builds a catalog, deriving ids for tracks that lack one. Duplicate
// ids are rejected.
func New(tracks []Track) (*Catalog, error) {
	c := &Catalog{
		tracks: make([]Track, len(tracks)),
		byID:   make(map[string]int, len(tracks)),
	}
	for i, t := range tracks {
		if t.ID == "" {
			t.ID = GenerateID(t)
		}
		if t.AudioURL == "" {
			return nil, fmt.Errorf("track %q has no audio url", t.Title)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate track id %q", t.ID)
		}
		c.tracks[i] = t
		c.byID[t.ID] = i
	}
	return c, nil
}

// Load reads a YAML catalog file with a top-level "tracks" list.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}

	c, err := New(f.Tracks)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	return c, nil
}

// LoadOrDefault loads path, or returns the built-in catalog when path is
// empty.
func LoadOrDefault(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Tracks returns the tracks in display order.
func (c *Catalog) Tracks() []Track {
	return append([]Track(nil), c.tracks...)
}

// Len returns the number of tracks.
func (c *Catalog) Len() int { return len(c.tracks) }

// Get looks a track up by id.
func (c *Catalog) Get(id string) (Track, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Track{}, false
	}
	return c.tracks[i], true
}

// Find looks a track up by id, or by a case-insensitive title prefix.
func (c *Catalog) Find(query string) (Track, bool) {
	if t, ok := c.Get(query); ok {
		return t, true
	}
	q := strings.ToLower(query)
	for _, t := range c.tracks {
		if strings.HasPrefix(strings.ToLower(t.Title), q) {
			return t, true
		}
	}
	return Track{}, false
}
