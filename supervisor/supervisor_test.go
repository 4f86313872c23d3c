package supervisor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pmc-io/pmc/registry"
	"github.com/pmc-io/pmc/spawner"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	dir := t.TempDir()
	reg, err := registry.Open(registry.Config{
		DumpPath:  filepath.Join(dir, "process.dump"),
		LogDir:    filepath.Join(dir, "logs"),
		Shell:     "/bin/sh",
		ShellArgs: []string{"-c"},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return reg
}

func TestTickRestartsDeadProcessWithinBudget(t *testing.T) {
	reg := newTestRegistry(t)
	dir := t.TempDir()

	rec, err := reg.Start(registry.StartOptions{Script: "sleep 30", Cwd: dir})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer spawner.Stop(rec.Pid)

	// Kill the child out-of-band, as a crash would.
	spawner.Stop(rec.Pid)

	sup := New(reg, time.Second, 10)
	sup.Tick()

	got, ok := reg.Info(rec.ID)
	if !ok {
		t.Fatal("Info: not found")
	}
	if !got.Running {
		t.Fatal("expected process restarted and running after tick")
	}
	if got.Restarts != 1 {
		t.Fatalf("Restarts = %d, want 1", got.Restarts)
	}
	if got.Pid == rec.Pid {
		t.Fatal("expected a new pid after restart")
	}
	defer spawner.Stop(got.Pid)
}

func TestTickMarksCrashedPastBudget(t *testing.T) {
	reg := newTestRegistry(t)
	dir := t.TempDir()

	rec, err := reg.Start(registry.StartOptions{Script: "sleep 30", Cwd: dir})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	sup := New(reg, time.Second, 1)

	// First crash: within budget (restarts=0 < 1), gets restarted.
	spawner.Stop(rec.Pid)
	sup.Tick()
	got, _ := reg.Info(rec.ID)
	if got.Restarts != 1 {
		t.Fatalf("after first tick, Restarts = %d, want 1", got.Restarts)
	}
	defer spawner.Stop(got.Pid)

	// Second crash: at budget (restarts=1 >= 1), marked crashed and left down.
	spawner.Stop(got.Pid)
	sup.Tick()
	final, _ := reg.Info(rec.ID)
	if final.Running {
		t.Fatal("expected running=false once the crash budget is exhausted")
	}
	if !final.Crash.Crashed {
		t.Fatal("expected crash.crashed=true once the crash budget is exhausted")
	}
	if final.Restarts != 1 {
		t.Fatalf("Restarts = %d, want unchanged at 1", final.Restarts)
	}
}

func TestTickWatchRestartDoesNotBumpRestarts(t *testing.T) {
	reg := newTestRegistry(t)
	dir := t.TempDir()

	watchDir := filepath.Join(dir, "src")
	if err := os.MkdirAll(watchDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(watchDir, "a.txt"), []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, err := reg.Start(registry.StartOptions{Script: "sleep 30", Cwd: dir, WatchPath: "src"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer spawner.Stop(rec.Pid)

	sup := New(reg, time.Second, 10)

	// No content change yet: tick must not mutate pid or restarts.
	sup.Tick()
	unchanged, _ := reg.Info(rec.ID)
	if unchanged.Pid != rec.Pid || unchanged.Restarts != 0 {
		t.Fatalf("expected no mutation with unchanged watch content, got %+v", unchanged)
	}

	if err := os.WriteFile(filepath.Join(watchDir, "a.txt"), []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}

	sup.Tick()
	changed, _ := reg.Info(rec.ID)
	defer spawner.Stop(changed.Pid)
	if changed.Pid == rec.Pid {
		t.Fatal("expected a new pid after watch-triggered restart")
	}
	if changed.Restarts != 0 {
		t.Fatalf("Restarts = %d, want 0 (watch restarts don't consume the crash budget)", changed.Restarts)
	}
}
