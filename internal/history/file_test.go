package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"planbot/pkg/logx"
)

func openFileStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "history.jsonl")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if st == nil {
		t.Fatalf("file driver returned nil store")
	}
	return st
}

func entry(id string, firedAt time.Time) Entry {
	return Entry{PostID: id, ChatID: -1, OwnerID: 7, Items: 2, Sent: 2, FiredAt: firedAt}
}

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", "NONE"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("driver %q: %v", driver, err)
		}
		if st != nil {
			t.Fatalf("driver %q should disable history", driver)
		}
	}
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver accepted")
	}
}

func TestFileAppendAndRecent(t *testing.T) {
	st := openFileStore(t)
	defer st.Close()
	ctx := context.Background()

	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := st.Append(ctx, entry(string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := st.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	// newest first
	if got[0].PostID != "e" || got[2].PostID != "c" {
		t.Fatalf("order wrong: %+v", got)
	}
}

func TestFilePrune(t *testing.T) {
	st := openFileStore(t)
	defer st.Close()
	ctx := context.Background()

	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		if err := st.Append(ctx, entry(string(rune('a'+i)), base.AddDate(0, 0, i))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	removed, err := st.Prune(ctx, base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	left, err := st.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(left) != 2 {
		t.Fatalf("expected 2 left, got %d", len(left))
	}
	if removed, err = st.Prune(ctx, base.AddDate(0, 0, 2)); err != nil || removed != 0 {
		t.Fatalf("second prune: removed=%d err=%v", removed, err)
	}
}

func TestFileRecentSkipsGarbageLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	if err := st.Append(ctx, entry("good", time.Now())); err != nil {
		t.Fatalf("append: %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	if _, err := f.WriteString("{broken\n"); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	f.Close()

	got, err := st.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].PostID != "good" {
		t.Fatalf("garbage line not skipped: %+v", got)
	}
}

func TestFileRecentEmpty(t *testing.T) {
	st := openFileStore(t)
	defer st.Close()
	got, err := st.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent on empty store: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no entries, got %d", len(got))
	}
}
