// Package prefs persists user preferences (volume, cookie consent) in a
// small SQLite key/value table.
package prefs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// KeyVolume holds the preferred volume in [0, 1].
	KeyVolume = "volume"
	// KeyConsent holds the cookie banner choice.
	KeyConsent = "cookies-accepted"

	// DefaultVolume is returned when no volume has been stored.
	DefaultVolume = 0.7
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("preference not found")

// Consent is the cookie banner decision.
type Consent int

const (
	ConsentUnset Consent = iota
	ConsentAll
	ConsentNecessaryOnly
)

// String returns a human-readable representation of the Consent
func (c Consent) String() string {
	switch c {
	case ConsentAll:
		return "all"
	case ConsentNecessaryOnly:
		return "necessary-only"
	default:
		return "unset"
	}
}

// ParseConsent accepts the names printed by String plus a few aliases.
func ParseConsent(s string) (Consent, error) {
	switch s {
	case "all", "true", "accept":
		return ConsentAll, nil
	case "necessary-only", "necessary":
		return ConsentNecessaryOnly, nil
	case "unset", "reset", "":
		return ConsentUnset, nil
	default:
		return ConsentUnset, fmt.Errorf("unknown consent %q", s)
	}
}

// Store is a SQLite-backed preference store. Writes are last-writer-wins.
type Store struct {
	db  *sql.DB
	now func() time.Time

	fallback float64
}

// Open opens or creates the preference database at path. Use ":memory:"
// for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a single connection keeps ":memory:" databases consistent
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, now: time.Now, fallback: DefaultVolume}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get decodes the JSON value stored under key into dst.
func (s *Store) Get(ctx context.Context, key string, dst any) error {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM preferences WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to decode preference %s: %w", key, err)
	}
	return nil
}

// Set stores value under key as JSON.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode preference %s: %w", key, err)
	}

	query := `
		INSERT INTO preferences (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, string(raw), s.now().Unix()); err != nil {
		return fmt.Errorf("failed to write preference %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM preferences WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete preference %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys in alphabetical order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM preferences ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan preference key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating preferences: %w", err)
	}
	return keys, nil
}

// SetDefaultVolume changes the volume reported while none is stored.
func (s *Store) SetDefaultVolume(v float64) {
	s.fallback = clamp(v)
}

// Volume returns the stored volume, or the default volume when none is
// stored or the store cannot be read.
func (s *Store) Volume() float64 {
	var v float64
	if err := s.Get(context.Background(), KeyVolume, &v); err != nil {
		return s.fallback
	}
	return clamp(v)
}

// SetVolume clamps v to [0, 1] and stores it.
func (s *Store) SetVolume(v float64) error {
	return s.Set(context.Background(), KeyVolume, clamp(v))
}

// Consent returns the stored cookie decision. The value is either the JSON
// boolean true or the string "necessary-only".
func (s *Store) Consent(ctx context.Context) (Consent, error) {
	var raw json.RawMessage
	if err := s.Get(ctx, KeyConsent, &raw); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ConsentUnset, nil
		}
		return ConsentUnset, err
	}

	var accepted bool
	if err := json.Unmarshal(raw, &accepted); err == nil {
		if accepted {
			return ConsentAll, nil
		}
		return ConsentUnset, nil
	}

	var s2 string
	if err := json.Unmarshal(raw, &s2); err == nil && s2 == "necessary-only" {
		return ConsentNecessaryOnly, nil
	}
	return ConsentUnset, nil
}

// SetConsent stores the cookie decision. ConsentUnset removes it so the
// banner shows again.
func (s *Store) SetConsent(ctx context.Context, c Consent) error {
	switch c {
	case ConsentAll:
		return s.Set(ctx, KeyConsent, true)
	case ConsentNecessaryOnly:
		return s.Set(ctx, KeyConsent, "necessary-only")
	default:
		return s.Delete(ctx, KeyConsent)
	}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
