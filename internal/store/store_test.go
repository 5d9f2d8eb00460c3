package store

import (
	"strings"
	"testing"
	"time"

	"modelsyncd/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenEnablesWALMode(t *testing.T) {
	s := openTestStore(t)
	var mode string
	if err := s.db.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}
}

func TestLoadSnapshotEmptyDatabase(t *testing.T) {
	s := openTestStore(t)
	models, active, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(models) != 0 || active != "" {
		t.Fatalf("expected empty snapshot, got %d models active=%q", len(models), active)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	in := []types.Model{
		{ID: "m1", Name: "Model One", Downloaded: true, SupportsLanguages: true},
		{ID: "m2", Name: "Model Two", SizeBytes: 1 << 20},
	}
	if err := s.SaveSnapshot(in, "m1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	models, active, err := s.LoadSnapshot()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if active != "m1" {
		t.Fatalf("expected active m1, got %q", active)
	}
	if len(models) != 2 || models[0].ID != "m1" || !models[0].Downloaded {
		t.Fatalf("unexpected models: %+v", models)
	}

	// A second save replaces, not appends.
	if err := s.SaveSnapshot(in[:1], ""); err != nil {
		t.Fatalf("save again: %v", err)
	}
	models, active, err = s.LoadSnapshot()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(models) != 1 || active != "" {
		t.Fatalf("expected replaced snapshot, got %d models active=%q", len(models), active)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, outcome := range []string{"completed", "cancelled", "completed"} {
		if err := s.AppendHistory("m1", outcome, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := s.History(2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Outcome != "completed" || got[1].Outcome != "cancelled" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if !got[0].At.After(got[1].At) {
		t.Fatalf("expected newest first, got %v then %v", got[0].At, got[1].At)
	}
}
