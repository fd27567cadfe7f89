package log

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitWritesLogFile(t *testing.T) {
	dir := t.TempDir()
	if err := Init(false, dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	Infof("Log Info: %s", "hello")
	Sync()

	b, err := os.ReadFile(filepath.Join(dir, LogFile))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(b) == 0 {
		t.Error("log file is empty")
	}
}

func TestBackupsOldestFirst(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"rocketfc-2026-10-02T10-00-00.000.log",
		"rocketfc-2026-10-01T10-00-00.000.log",
		"rocketfc.log",
		"other.log",
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	got := backups(dir)
	if len(got) != 2 {
		t.Fatalf("backups = %v, want 2 files", got)
	}
	if filepath.Base(got[0]) != names[1] {
		t.Errorf("oldest = %s, want %s", got[0], names[1])
	}
}
