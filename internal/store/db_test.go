package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenFileDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.InsertCheckpoint("a", "run", "/tmp/a.checkpoint", time.Now()); err != nil {
		t.Fatalf("InsertCheckpoint() failed: %v", err)
	}
	s.Close()

	// Reopening must not wipe the journal.
	s, err = Open(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	if _, err := s.GetCheckpoint("a"); err != nil {
		t.Errorf("checkpoint lost after reopen: %v", err)
	}
}

func TestNotInitialized(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	_, err = s.ListCheckpoints()
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestCheckpointLifecycle(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	first, err := s.InsertCheckpoint("before-wine", "run-1", "/data/before-wine.checkpoint", now)
	if err != nil {
		t.Fatalf("InsertCheckpoint() failed: %v", err)
	}
	if first.ActionMark != 0 {
		t.Errorf("ActionMark = %d, want 0 on an empty journal", first.ActionMark)
	}

	if _, err := s.InsertUndoAction(UndoRemovePath, "/home/u/.pswine/prefix", "", now); err != nil {
		t.Fatalf("InsertUndoAction() failed: %v", err)
	}

	second, err := s.InsertCheckpoint("before-tricks", "run-1", "/data/before-tricks.checkpoint", now)
	if err != nil {
		t.Fatalf("InsertCheckpoint() failed: %v", err)
	}
	if second.ActionMark != 1 {
		t.Errorf("ActionMark = %d, want 1", second.ActionMark)
	}

	list, err := s.ListCheckpoints()
	if err != nil {
		t.Fatalf("ListCheckpoints() failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].Name != "before-tricks" {
		t.Errorf("list[0] = %s, want newest first", list[0].Name)
	}

	latest, err := s.LatestCheckpoint()
	if err != nil {
		t.Fatalf("LatestCheckpoint() failed: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("latest = %d, want %d", latest.ID, second.ID)
	}

	if _, err := s.InsertCheckpoint("before-wine", "run-2", "/x", now); err == nil {
		t.Error("duplicate checkpoint name accepted")
	}

	if err := s.DeleteCheckpoint("before-wine"); err != nil {
		t.Fatalf("DeleteCheckpoint() failed: %v", err)
	}
	if _, err := s.GetCheckpoint("before-wine"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteCheckpoint("before-wine"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestLatestCheckpointEmpty(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.LatestCheckpoint(); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUndoActionsBindToLatestCheckpoint(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	orphan, err := s.InsertUndoAction(UndoRemoveSymlink, "/home/u/.local/bin/photoshop", "", now)
	if err != nil {
		t.Fatalf("InsertUndoAction() failed: %v", err)
	}
	if orphan.CheckpointID != 0 {
		t.Errorf("CheckpointID = %d, want 0 before any checkpoint", orphan.CheckpointID)
	}

	cp, err := s.InsertCheckpoint("cp", "run", "/x", now)
	if err != nil {
		t.Fatalf("InsertCheckpoint() failed: %v", err)
	}

	bound, err := s.InsertUndoAction(UndoRestoreFile, "/home/u/.profile", AbsentMarker, now)
	if err != nil {
		t.Fatalf("InsertUndoAction() failed: %v", err)
	}
	if bound.CheckpointID != cp.ID {
		t.Errorf("CheckpointID = %d, want %d", bound.CheckpointID, cp.ID)
	}
	if bound.Data != AbsentMarker {
		t.Errorf("Data = %q, want absent marker", bound.Data)
	}
}

func TestInsertUndoActionRejectsUnknownKind(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.InsertUndoAction("chmod", "/x", "", time.Now()); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestPendingActionsAfter(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	var ids []int64
	for _, target := range []string{"/a", "/b", "/c"} {
		a, err := s.InsertUndoAction(UndoRemovePath, target, "", now)
		if err != nil {
			t.Fatalf("InsertUndoAction(%s) failed: %v", target, err)
		}
		ids = append(ids, a.ID)
	}

	pending, err := s.PendingActionsAfter(ids[0])
	if err != nil {
		t.Fatalf("PendingActionsAfter() failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("len(pending) = %d, want 2", len(pending))
	}
	if pending[0].Target != "/c" || pending[1].Target != "/b" {
		t.Errorf("order = %s,%s, want /c,/b", pending[0].Target, pending[1].Target)
	}

	if err := s.MarkUndone(ids[2], now); err != nil {
		t.Fatalf("MarkUndone() failed: %v", err)
	}

	n, err := s.CountPendingAfter(0)
	if err != nil {
		t.Fatalf("CountPendingAfter() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("CountPendingAfter(0) = %d, want 2", n)
	}

	pending, err = s.PendingActionsAfter(0)
	if err != nil {
		t.Fatalf("PendingActionsAfter() failed: %v", err)
	}
	for _, a := range pending {
		if a.ID == ids[2] {
			t.Error("undone action still pending")
		}
		if a.UndoneAt != nil {
			t.Errorf("pending action %d has UndoneAt set", a.ID)
		}
	}
}

func TestCreatedAtRoundTrip(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)

	cp, err := s.InsertCheckpoint("cp", "run", "/x", at)
	if err != nil {
		t.Fatalf("InsertCheckpoint() failed: %v", err)
	}
	if !cp.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", cp.CreatedAt, at)
	}
}
