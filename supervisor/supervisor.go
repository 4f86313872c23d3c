// Package supervisor implements the background liveness and watch-hash scan
// (C6) that keeps the registry's belief about running processes honest and
// enforces the crash-restart budget.
package supervisor

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pmc-io/pmc/dirhash"
	"github.com/pmc-io/pmc/registry"
	"github.com/pmc-io/pmc/spawner"
)

// Supervisor runs the periodic scan described in §4.6.
type Supervisor struct {
	reg      *registry.Registry
	interval time.Duration
	budget   int
}

// New creates a Supervisor that ticks every interval and allows up to
// budget lifetime crash-restarts per process before marking it crashed.
func New(reg *registry.Registry, interval time.Duration, budget int) *Supervisor {
	return &Supervisor{reg: reg, interval: interval, budget: budget}
}

// Run blocks, ticking until ctx is cancelled. It also starts an fsnotify
// watcher over every currently-watched directory purely as a latency
// shortcut: an fsnotify event wakes the next tick early, but the hash
// comparison in Tick remains the sole source of truth for whether anything
// actually changed (I6) — fsnotify failures (e.g. on filesystems that don't
// support it) are logged and otherwise ignored, never fatal.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	wake := make(chan struct{}, 1)
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		go s.runNotifier(ctx, watcher, wake)
	} else {
		log.Printf("supervisor: fsnotify unavailable, falling back to pure polling: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		case <-wake:
			s.Tick()
		}
	}
}

// runNotifier keeps an fsnotify watch list in sync with the registry's
// currently-watched directories and forwards any event as an early wake.
func (s *Supervisor) runNotifier(ctx context.Context, watcher *fsnotify.Watcher, wake chan<- struct{}) {
	defer watcher.Close()

	resync := time.NewTicker(s.interval)
	defer resync.Stop()
	watched := map[string]bool{}

	syncWatches := func() {
		for _, rec := range s.reg.List() {
			if !rec.Watch.Enabled {
				continue
			}
			dir := filepath.Join(rec.Path, rec.Watch.Path)
			if watched[dir] {
				continue
			}
			if err := watcher.Add(dir); err == nil {
				watched[dir] = true
			}
		}
	}

	syncWatches()
	for {
		select {
		case <-ctx.Done():
			return
		case <-resync.C:
			syncWatches()
		case _, ok := <-watcher.Events:
			if !ok {
				return
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("supervisor: fsnotify error: %v", err)
		}
	}
}

// Tick runs one scan of the registry: dead processes within budget are
// restarted, processes past budget are marked crashed, and watched
// directories whose content hash changed are restarted without consuming
// the crash budget.
func (s *Supervisor) Tick() {
	for _, rec := range s.reg.List() {
		if !rec.Running {
			continue
		}

		if !spawner.Liveness(rec.Pid) {
			if rec.Restarts < uint64(s.budget) {
				if _, err := s.reg.Restart(rec.ID, "", true); err != nil {
					log.Printf("supervisor: restart %d (%s): %v", rec.ID, rec.Name, err)
					_ = s.reg.MarkDown(rec.ID)
				}
			} else if err := s.reg.SetCrashed(rec.ID); err != nil {
				log.Printf("supervisor: set_crashed %d (%s): %v", rec.ID, rec.Name, err)
			}
			continue
		}

		if !rec.Watch.Enabled {
			continue
		}

		current, err := dirhash.Hash(filepath.Join(rec.Path, rec.Watch.Path))
		if err != nil {
			log.Printf("supervisor: hash watch path for %d (%s): %v", rec.ID, rec.Name, err)
			continue
		}
		if current == rec.Watch.Hash {
			continue
		}

		if _, err := s.reg.Restart(rec.ID, "", false); err != nil {
			log.Printf("supervisor: watch-restart %d (%s): %v", rec.ID, rec.Name, err)
			continue
		}
		// Restart already recomputes and stores the refreshed hash of the
		// record's watch path; nothing further to do here.
	}
}
