package clientstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "clients.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTouchAndGet(t *testing.T) {
	s := openTemp(t)
	first := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rec, err := s.Touch(Record{
		Player:     "Notch",
		AppName:    "ClassiCube 1.3.6",
		CPE:        true,
		Extensions: map[string]int32{"FullCP437": 1},
		LastSeen:   first,
	})
	if err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if rec.Visits != 1 || !rec.FirstSeen.Equal(first) {
		t.Errorf("first touch = %+v", rec)
	}

	later := first.Add(time.Hour)
	if _, err := s.Touch(Record{Player: "notch", AppName: "ClassiCube 1.3.7", LastSeen: later}); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	got, err := s.Get("NOTCH")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Visits != 2 {
		t.Errorf("Visits = %d, want 2", got.Visits)
	}
	if !got.FirstSeen.Equal(first) || !got.LastSeen.Equal(later) {
		t.Errorf("seen = %v..%v, want %v..%v", got.FirstSeen, got.LastSeen, first, later)
	}
	if got.AppName != "ClassiCube 1.3.7" {
		t.Errorf("AppName = %q", got.AppName)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTemp(t)
	if _, err := s.Get("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(nobody) = %v, want ErrNotFound", err)
	}
}

func TestTouchEmptyName(t *testing.T) {
	s := openTemp(t)
	if _, err := s.Touch(Record{}); err == nil {
		t.Error("Touch accepted an empty player name")
	}
}

func TestListAndAppCounts(t *testing.T) {
	s := openTemp(t)
	for _, r := range []Record{
		{Player: "zed", AppName: "ClassiCube 1.3.6"},
		{Player: "Alice"},
		{Player: "bob", AppName: "ClassiCube 1.3.6"},
	} {
		if _, err := s.Touch(r); err != nil {
			t.Fatalf("Touch(%s): %v", r.Player, err)
		}
	}

	recs, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var names []string
	for _, r := range recs {
		names = append(names, r.Player)
	}
	if len(names) != 3 || names[0] != "Alice" || names[1] != "bob" || names[2] != "zed" {
		t.Errorf("List order = %v", names)
	}

	counts, err := s.AppCounts()
	if err != nil {
		t.Fatalf("AppCounts: %v", err)
	}
	if counts["ClassiCube 1.3.6"] != 2 || counts["(vanilla)"] != 1 {
		t.Errorf("AppCounts = %v", counts)
	}
}

func TestDeleteAndBackup(t *testing.T) {
	s := openTemp(t)
	if _, err := s.Touch(Record{Player: "Notch"}); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	path := filepath.Join(t.TempDir(), "backup.db")
	if err := s.Backup(path); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if err := s.Delete("notch"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get("Notch"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete = %v", err)
	}

	restored, err := Open(path)
	if err != nil {
		t.Fatalf("Open backup: %v", err)
	}
	defer restored.Close()
	if _, err := restored.Get("Notch"); err != nil {
		t.Errorf("backup missing record: %v", err)
	}
}

func TestBackupReportsWriteErrors(t *testing.T) {
	s := openTemp(t)
	if _, err := s.Touch(Record{Player: "Notch"}); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	if err := s.Backup(filepath.Join(t.TempDir(), "missing", "backup.db")); err == nil {
		t.Error("Backup into a missing directory succeeded")
	}

	// /dev/full accepts the open and fails every write with ENOSPC.
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("no /dev/full on this system")
	}
	if err := s.Backup("/dev/full"); err == nil {
		t.Error("Backup to a full device succeeded")
	}
}
