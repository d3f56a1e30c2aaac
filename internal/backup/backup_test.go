package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/taurus-fleet/taurus/internal/fleetconfig"
)

type alwaysHealthy struct{}

func (alwaysHealthy) Healthy() bool { return true }

type alwaysUnhealthy struct{}

func (alwaysUnhealthy) Healthy() bool { return false }

func intPtr(n int) *int       { return &n }
func int64Ptr(n int64) *int64 { return &n }

func TestArchiveNameFormat(t *testing.T) {
	ts := time.Date(2024, 3, 7, 9, 5, 2, 0, time.Local)
	got := archiveName("srv1", ts)
	want := "srv1_2024-03-07_09_05_02.tar.gz"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBackupRejectsMissingFilePath(t *testing.T) {
	e := NewEngine(context.Background())
	got := e.Backup(alwaysHealthy{}, "srv1", &fleetconfig.Game{}, t.TempDir())
	if got != "Unable to reach file path" {
		t.Fatalf("got %q", got)
	}
}

func TestBackupRejectsWhenUnhealthy(t *testing.T) {
	e := NewEngine(context.Background())
	game := &fleetconfig.Game{FilePath: "/some/path"}
	got := e.Backup(alwaysUnhealthy{}, "srv1", game, t.TempDir())
	if got != "Backup aborted due to system constraints" {
		t.Fatalf("got %q", got)
	}
}

func TestBackupSuppressesConcurrentRequest(t *testing.T) {
	e := NewEngine(context.Background())
	e.inFlight["srv1"] = struct{}{}
	game := &fleetconfig.Game{FilePath: "/some/path"}
	got := e.Backup(alwaysHealthy{}, "srv1", game, t.TempDir())
	if got != "backup already in progress" {
		t.Fatalf("got %q", got)
	}
}

func touchArchive(t *testing.T, dir, name string, age time.Duration) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	modTime := time.Now().Add(-age)
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestDeleteBackupsOlderThan(t *testing.T) {
	dir := t.TempDir()
	touchArchive(t, dir, "srv1_old.tar.gz", 20*time.Second)
	touchArchive(t, dir, "srv1_new.tar.gz", 2*time.Second)
	touchArchive(t, dir, "other_old.tar.gz", 20*time.Second)

	if err := DeleteBackupsOlderThan(dir, "srv1", 10*time.Second); err != nil {
		t.Fatalf("DeleteBackupsOlderThan: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "srv1_old.tar.gz")); !os.IsNotExist(err) {
		t.Fatal("expected aged-out srv1 archive to be deleted")
	}
	if _, err := os.Stat(filepath.Join(dir, "srv1_new.tar.gz")); err != nil {
		t.Fatal("expected fresh srv1 archive to survive")
	}
	if _, err := os.Stat(filepath.Join(dir, "other_old.tar.gz")); err != nil {
		t.Fatal("expected other session's archive to be untouched")
	}
}

// TestSlottedRetentionBoundaryScenario mirrors spec's boundary scenario 5:
// hourly=2, daily=1; archives aged 0.5h, 1.5h, 23h, 25h, 49h. Expected:
// keep the two youngest as hourly, the 25h one as daily; 49h and 23h
// are both deleted as overflow.
func TestSlottedRetentionBoundaryScenario(t *testing.T) {
	dir := t.TempDir()
	touchArchive(t, dir, "srv1_a.tar.gz", 30*time.Minute)
	touchArchive(t, dir, "srv1_b.tar.gz", 90*time.Minute)
	touchArchive(t, dir, "srv1_c.tar.gz", 23*time.Hour)
	touchArchive(t, dir, "srv1_d.tar.gz", 25*time.Hour)
	touchArchive(t, dir, "srv1_e.tar.gz", 49*time.Hour)

	game := &fleetconfig.Game{Hourly: intPtr(2), Daily: intPtr(1)}
	applySlottedRetention(dir, "srv1", game)

	mustExist := []string{"srv1_a.tar.gz", "srv1_b.tar.gz", "srv1_d.tar.gz"}
	mustNotExist := []string{"srv1_c.tar.gz", "srv1_e.tar.gz"}

	for _, f := range mustExist {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("expected %s to survive retention, got err %v", f, err)
		}
	}
	for _, f := range mustNotExist {
		if _, err := os.Stat(filepath.Join(dir, f)); !os.IsNotExist(err) {
			t.Errorf("expected %s to be deleted as overflow", f)
		}
	}
}

func TestGameValidateRejectsMixedMode(t *testing.T) {
	game := &fleetconfig.Game{Hourly: intPtr(1), BackupInterval: int64Ptr(5)}
	if err := game.Validate(); err == nil {
		t.Fatal("expected mutual-exclusion validation error")
	}
}

func TestListBackupsSortsAndFormats(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "srv1_b.tar.gz"), make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "srv1_a.tar.gz"), make([]byte, 10), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := ListBackups([]string{dir})
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if out == "" {
		t.Fatal("expected non-empty listing")
	}
	if out[:len("srv1_a.tar.gz")] != "srv1_a.tar.gz" {
		t.Fatalf("expected lexical sort to put srv1_a first, got %q", out)
	}
}

func TestCopyRegionInvalidDimension(t *testing.T) {
	_, err := CopyRegion(t.TempDir(), t.TempDir(), "http://example.com", "MARS", 0, 0)
	if err == nil {
		t.Fatal("expected error for invalid dimension")
	}
}
