// Package history keeps a journal of finished playback sessions, backing
// the "recently previewed" list.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Mode is how a session was started.
type Mode string

const (
	ModePlay    Mode = "play"
	ModePreview Mode = "preview"
)

// Entry is one finished session.
type Entry struct {
	ID        int64         `json:"id"`
	SessionID string        `json:"session_id"`
	TrackID   string        `json:"track_id"`
	Title     string        `json:"title"`
	Mode      Mode          `json:"mode"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Listened  time.Duration `json:"listened_ms"`
}

// Journal stores entries in SQLite.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path. Use ":memory:" in tests.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL UNIQUE,
			track_id TEXT NOT NULL,
			title TEXT,
			mode TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL,
			listened_ms INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_ended ON sessions(ended_at);
		CREATE INDEX IF NOT EXISTS idx_sessions_track ON sessions(track_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Add records a finished session. Recording the same session twice keeps
// the first entry.
func (j *Journal) Add(ctx context.Context, e Entry) (int64, error) {
	query := `
		INSERT INTO sessions (session_id, track_id, title, mode, started_at, ended_at, listened_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING
	`

	result, err := j.db.ExecContext(ctx, query,
		e.SessionID,
		e.TrackID,
		e.Title,
		string(e.Mode),
		e.StartedAt.UnixMilli(),
		e.EndedAt.UnixMilli(),
		e.Listened.Milliseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert id: %w", err)
	}
	return id, nil
}

// Recent returns the newest entries first. A limit of zero returns all.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, session_id, track_id, COALESCE(title, ''), mode, started_at, ended_at, listened_ms
		FROM sessions
		ORDER BY ended_at DESC, id DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var mode string
		var startedMs, endedMs, listenedMs int64

		err := rows.Scan(
			&e.ID,
			&e.SessionID,
			&e.TrackID,
			&e.Title,
			&mode,
			&startedMs,
			&endedMs,
			&listenedMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		e.Mode = Mode(mode)
		e.StartedAt = time.UnixMilli(startedMs)
		e.EndedAt = time.UnixMilli(endedMs)
		e.Listened = time.Duration(listenedMs) * time.Millisecond
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return entries, nil
}

// Count returns the number of recorded sessions, optionally limited to one
// mode. An empty mode counts all.
func (j *Journal) Count(ctx context.Context, mode Mode) (int, error) {
	query := "SELECT COUNT(*) FROM sessions"
	var args []any
	if mode != "" {
		query += " WHERE mode = ?"
		args = append(args, string(mode))
	}

	var count int
	if err := j.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// Cleanup removes sessions that ended more than maxAge ago.
func (j *Journal) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()

	result, err := j.db.ExecContext(ctx, "DELETE FROM sessions WHERE ended_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old sessions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}
