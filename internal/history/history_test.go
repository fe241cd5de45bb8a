package history

import (
	"context"
	"testing"
	"time"

	"github.com/jfmyers9/nada/internal/playback"
)

// createTestJournal creates an in-memory SQLite journal for testing
func createTestJournal(t *testing.T) *Journal {
	t.Helper()

	journal, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to create test journal: %v", err)
	}

	t.Cleanup(func() {
		_ = journal.Close()
	})

	return journal
}

func TestJournalAddAndRecent(t *testing.T) {
	journal := createTestJournal(t)
	ctx := context.Background()
	base := time.Now().Truncate(time.Millisecond)

	entries := []Entry{
		{SessionID: "s1", TrackID: "1", Title: "Soy de Gestión", Mode: ModePreview, StartedAt: base, EndedAt: base.Add(4 * time.Second), Listened: 4 * time.Second},
		{SessionID: "s2", TrackID: "2", Title: "La Ambición del Nada", Mode: ModePlay, StartedAt: base.Add(5 * time.Second), EndedAt: base.Add(65 * time.Second), Listened: time.Minute},
	}
	for _, e := range entries {
		if _, err := journal.Add(ctx, e); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	// a duplicate session is ignored
	if _, err := journal.Add(ctx, entries[0]); err != nil {
		t.Fatalf("Add duplicate: %v", err)
	}

	got, err := journal.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].SessionID != "s2" {
		t.Errorf("newest entry = %q, want s2", got[0].SessionID)
	}
	if got[0].Listened != time.Minute {
		t.Errorf("Listened = %v, want 1m", got[0].Listened)
	}
	if !got[1].StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v, want %v", got[1].StartedAt, base)
	}

	limited, err := journal.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent(1): %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Recent(1) returned %d entries", len(limited))
	}
}

func TestJournalCount(t *testing.T) {
	journal := createTestJournal(t)
	ctx := context.Background()
	now := time.Now()

	for i, mode := range []Mode{ModePlay, ModePreview, ModePreview} {
		e := Entry{SessionID: string(rune('a' + i)), TrackID: "1", Mode: mode, StartedAt: now, EndedAt: now}
		if _, err := journal.Add(ctx, e); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	all, err := journal.Count(ctx, "")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if all != 3 {
		t.Errorf("Count(all) = %d, want 3", all)
	}

	previews, err := journal.Count(ctx, ModePreview)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if previews != 2 {
		t.Errorf("Count(preview) = %d, want 2", previews)
	}
}

func TestJournalCleanup(t *testing.T) {
	journal := createTestJournal(t)
	ctx := context.Background()
	now := time.Now()

	old := Entry{SessionID: "old", TrackID: "1", Mode: ModePlay, StartedAt: now.Add(-48 * time.Hour), EndedAt: now.Add(-47 * time.Hour)}
	fresh := Entry{SessionID: "fresh", TrackID: "1", Mode: ModePlay, StartedAt: now.Add(-time.Minute), EndedAt: now}
	for _, e := range []Entry{old, fresh} {
		if _, err := journal.Add(ctx, e); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	deleted, err := journal.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d, want 1", deleted)
	}

	count, _ := journal.Count(ctx, "")
	if count != 1 {
		t.Errorf("remaining = %d, want 1", count)
	}
}

func TestRecorderJournalsEndedSessions(t *testing.T) {
	journal := createTestJournal(t)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	coord := playback.New(playback.WithClock(func() time.Time { return clock }))

	rec := NewRecorder(journal, coord,
		WithClassifier(func(id string) Mode {
			if id == "1" {
				return ModePreview
			}
			return ModePlay
		}),
		WithTitles(func(id string) string { return "track " + id }),
	)
	defer rec.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	coord.RequestOwnership("1")
	clock = clock.Add(3 * time.Second)
	coord.RequestOwnership("2")
	clock = clock.Add(30 * time.Second)
	coord.Release("2")

	deadline := time.Now().Add(time.Second)
	for {
		n, err := journal.Count(context.Background(), "")
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("journal has %d entries, want 2", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	entries, err := journal.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}

	if entries[0].TrackID != "2" || entries[0].Mode != ModePlay || entries[0].Listened != 30*time.Second {
		t.Errorf("unexpected newest entry: %+v", entries[0])
	}
	if entries[1].TrackID != "1" || entries[1].Mode != ModePreview || entries[1].Listened != 3*time.Second {
		t.Errorf("unexpected oldest entry: %+v", entries[1])
	}
	if entries[1].Title != "track 1" {
		t.Errorf("Title = %q, want track 1", entries[1].Title)
	}
}

func TestRecorderFlush(t *testing.T) {
	journal := createTestJournal(t)
	coord := playback.New()
	rec := NewRecorder(journal, coord)
	defer rec.Close()

	coord.RequestOwnership("1")
	coord.Release("1")

	rec.Flush(context.Background())

	n, err := journal.Count(context.Background(), ModePlay)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}
