package daemonize

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestCheckNotRunningAbsentFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "daemon.pid")
	if err := CheckNotRunning(pidFile); err != nil {
		t.Fatalf("CheckNotRunning: %v", err)
	}
}

func TestCheckNotRunningStaleFileRemoved(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "daemon.pid")
	// A pid essentially guaranteed not to be alive in this test environment.
	if err := os.WriteFile(pidFile, []byte("999999"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CheckNotRunning(pidFile); err != nil {
		t.Fatalf("CheckNotRunning: %v", err)
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Fatal("expected stale pid file to be removed")
	}
}

func TestCheckNotRunningLiveProcessFails(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "daemon.pid")
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatal(err)
	}

	err := CheckNotRunning(pidFile)
	if err == nil {
		t.Fatal("expected error for a live pid")
	}
	if _, ok := err.(*AlreadyRunningError); !ok {
		t.Fatalf("err = %T, want *AlreadyRunningError", err)
	}
}

func TestWriteAndRemovePidFile(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "daemon.pid")
	if err := WritePidFile(pidFile); err != nil {
		t.Fatalf("WritePidFile: %v", err)
	}
	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file content = %q, want %q", data, strconv.Itoa(os.Getpid()))
	}

	if err := RemovePidFile(pidFile); err != nil {
		t.Fatalf("RemovePidFile: %v", err)
	}
	if err := RemovePidFile(pidFile); err != nil {
		t.Fatalf("RemovePidFile on missing file should be a no-op: %v", err)
	}
}
