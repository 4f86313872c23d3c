// Package registry implements the in-memory, durably-backed catalog of
// managed processes (C5). Every mutator holds a single in-process lock,
// mutates the canonical in-memory copy, and persists it through the dump
// package before returning — giving both the snapshot-per-operation
// durability the specification requires (I3) and freedom from the
// lost-update hazard that re-reading the dump on every mutation would
// otherwise create (see the "Registry persistence" redesign note).
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pmc-io/pmc/dirhash"
	"github.com/pmc-io/pmc/dump"
	"github.com/pmc-io/pmc/idalloc"
	"github.com/pmc-io/pmc/spawner"
)

// Errors the registry distinguishes. HTTP handlers (C8) map these to status
// codes; the CLI (out of scope) would map them to exit codes.
var (
	ErrNotFound     = errors.New("registry: not found")
	ErrMissingPath  = errors.New("registry: watch path does not exist")
)

// Config configures how the registry spawns children.
type Config struct {
	DumpPath  string
	LogDir    string
	Shell     string
	ShellArgs []string
}

// Registry is the durable, in-memory catalog of managed processes.
type Registry struct {
	cfg     Config
	mu      sync.RWMutex
	ids     *idalloc.Allocator
	records map[uint64]*dump.Record
}

// Open loads the dump at cfg.DumpPath (initializing an empty one if
// absent, per C2) and returns a ready Registry.
func Open(cfg Config) (*Registry, error) {
	snap, err := dump.Load(cfg.DumpPath)
	if err != nil {
		return nil, err
	}

	records := make(map[uint64]*dump.Record, len(snap.Records))
	for i := range snap.Records {
		rec := snap.Records[i]
		records[rec.ID] = &rec
	}

	return &Registry{
		cfg:     cfg,
		ids:     idalloc.Restore(snap.NextID),
		records: records,
	}, nil
}

// StartOptions describes a start(...) request (§4.5).
type StartOptions struct {
	Name      string
	Script    string
	Cwd       string
	Env       map[string]string
	WatchPath string // relative to Cwd; empty means no watch
}

// Start allocates an id, spawns the child, and inserts a running record.
func (r *Registry) Start(opts StartOptions) (dump.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := opts.Name
	if name == "" {
		name = firstToken(opts.Script)
	}

	env := opts.Env
	if len(env) == 0 {
		env = environSnapshot()
	}

	cwd := opts.Cwd
	if !filepath.IsAbs(cwd) {
		abs, err := filepath.Abs(cwd)
		if err != nil {
			return dump.Record{}, fmt.Errorf("registry: resolve cwd: %w", err)
		}
		cwd = abs
	}

	id := r.ids.Next()

	pid, err := spawner.Spawn(spawner.Spec{
		Shell:     r.cfg.Shell,
		ShellArgs: r.cfg.ShellArgs,
		Script:    opts.Script,
		Name:      name,
		LogDir:    r.cfg.LogDir,
		Env:       env,
		Cwd:       cwd,
	})
	if err != nil {
		return dump.Record{}, fmt.Errorf("registry: start %q: %w", name, err)
	}

	rec := &dump.Record{
		ID:      id,
		Pid:     pid,
		Name:    name,
		Path:    cwd,
		Script:  opts.Script,
		Env:     env,
		Started: time.Now().UTC().UnixMilli(),
		Running: true,
	}
	if opts.WatchPath != "" {
		hash, _ := dirhash.Hash(filepath.Join(cwd, opts.WatchPath))
		rec.Watch = dump.Watch{Enabled: true, Path: opts.WatchPath, Hash: hash}
	}

	r.records[id] = rec
	if err := r.saveLocked(); err != nil {
		return dump.Record{}, err
	}
	return *rec, nil
}

// Restart stops the current child (if any), respawns it, clears
// crash.crashed, and bumps restarts only when dead is true (a
// supervisor-triggered restart of a process it found dead); when dead is
// false it resets crash.value to 0 instead. newName, if
// non-empty, renames the record. watch is preserved across restart and its
// hash is recomputed against the freshly spawned process — the corrected
// behavior the specification's design notes call for, not the source's
// watch-clobbering bug.
func (r *Registry) Restart(id uint64, newName string, dead bool) (dump.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return dump.Record{}, ErrNotFound
	}

	if newName != "" {
		rec.Name = newName
	}

	spawner.Stop(rec.Pid)

	pid, err := spawner.Spawn(spawner.Spec{
		Shell:     r.cfg.Shell,
		ShellArgs: r.cfg.ShellArgs,
		Script:    rec.Script,
		Name:      rec.Name,
		LogDir:    r.cfg.LogDir,
		Env:       rec.Env,
		Cwd:       rec.Path,
	})
	if err != nil {
		return dump.Record{}, fmt.Errorf("registry: restart %q: %w", rec.Name, err)
	}

	rec.Pid = pid
	rec.Running = true
	rec.Started = time.Now().UTC().UnixMilli()
	rec.Crash.Crashed = false
	if dead {
		rec.Restarts++
	} else {
		rec.Crash.Value = 0
	}
	if rec.Watch.Enabled {
		hash, _ := dirhash.Hash(filepath.Join(rec.Path, rec.Watch.Path))
		rec.Watch.Hash = hash
	}

	if err := r.saveLocked(); err != nil {
		return dump.Record{}, err
	}
	return *rec, nil
}

// Stop SIGTERMs (then, if needed, SIGKILLs) the child, marks the record
// not-running, and clears its crash state (§4.5: stop "clears crash
// state"). Idempotent: stopping an already-stopped process succeeds.
func (r *Registry) Stop(id uint64) (dump.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return dump.Record{}, ErrNotFound
	}

	spawner.Stop(rec.Pid)
	rec.Running = false
	rec.Crash.Value = 0
	rec.Crash.Crashed = false

	if err := r.saveLocked(); err != nil {
		return dump.Record{}, err
	}
	return *rec, nil
}

// Remove stops the child (if running) and deletes its record. The id is
// never reissued (I1).
func (r *Registry) Remove(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}

	spawner.Stop(rec.Pid)
	delete(r.records, id)

	return r.saveLocked()
}

// Rename updates a record's name. It does not reopen log files — new log
// lines keep landing in the old name's files until the next spawn — and it
// does not restart the process (§9's recommended unification: rename never
// restarts; callers that want a live rename POST action:restart themselves).
func (r *Registry) Rename(id uint64, name string) (dump.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return dump.Record{}, ErrNotFound
	}
	rec.Name = name

	if err := r.saveLocked(); err != nil {
		return dump.Record{}, err
	}
	return *rec, nil
}

// Watch enables a directory-content watch on relPath (relative to the
// record's working directory), computing its initial hash.
func (r *Registry) Watch(id uint64, relPath string) (dump.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return dump.Record{}, ErrNotFound
	}

	full := filepath.Join(rec.Path, relPath)
	if _, err := os.Stat(full); err != nil {
		return dump.Record{}, ErrMissingPath
	}

	hash, err := dirhash.Hash(full)
	if err != nil {
		return dump.Record{}, fmt.Errorf("registry: hash %s: %w", full, err)
	}

	rec.Watch = dump.Watch{Enabled: true, Path: relPath, Hash: hash}

	if err := r.saveLocked(); err != nil {
		return dump.Record{}, err
	}
	return *rec, nil
}

// DisableWatch turns off a record's watch without forgetting its path.
func (r *Registry) DisableWatch(id uint64) (dump.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return dump.Record{}, ErrNotFound
	}
	rec.Watch.Enabled = false

	if err := r.saveLocked(); err != nil {
		return dump.Record{}, err
	}
	return *rec, nil
}

// SetCrashed marks a record as having exhausted its restart budget and
// leaves it down (§4.6: "call set_crashed(id) and leave it down") — the
// supervisor must stop re-probing and re-flagging a pid that is never
// coming back on its own.
func (r *Registry) SetCrashed(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Crash.Crashed = true
	rec.Running = false
	return r.saveLocked()
}

// NewCrash increments a record's consecutive-crash counter.
func (r *Registry) NewCrash(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Crash.Value++
	return r.saveLocked()
}

// MarkDown flips a record to not-running without touching its pid history
// — used by the supervisor when a restart attempt itself fails to spawn.
func (r *Registry) MarkDown(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Running = false
	return r.saveLocked()
}

// RefreshWatchHash overwrites a record's stored watch hash — used by the
// supervisor after it observes and acts on a change (I6: "a mismatch
// triggers exactly one restart per observed change").
func (r *Registry) RefreshWatchHash(id uint64, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Watch.Hash = hash
	return r.saveLocked()
}

// Find returns the lowest-id record whose name matches, if any.
func (r *Registry) Find(name string) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best uint64
	found := false
	for id, rec := range r.records {
		if rec.Name != name {
			continue
		}
		if !found || id < best {
			best = id
			found = true
		}
	}
	return best, found
}

// Info returns a read-only snapshot of a single record.
func (r *Registry) Info(id uint64) (dump.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return dump.Record{}, false
	}
	return *rec, true
}

// List returns every record, ordered ascending by id (§3: deterministic
// iteration order).
func (r *Registry) List() []dump.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

// DumpPath exposes the on-disk dump path for the HTTP /dump route.
func (r *Registry) DumpPath() string { return r.cfg.DumpPath }

// LogDir exposes the shared log directory for the HTTP logs routes.
func (r *Registry) LogDir() string { return r.cfg.LogDir }

func (r *Registry) sortedLocked() []dump.Record {
	out := make([]dump.Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) saveLocked() error {
	snap := dump.Snapshot{
		NextID:  r.ids.Peek(),
		Records: r.sortedLocked(),
	}
	return dump.Save(r.cfg.DumpPath, snap)
}

func firstToken(script string) string {
	fields := strings.Fields(script)
	if len(fields) == 0 {
		return "process"
	}
	return fields[0]
}

func environSnapshot() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			env[parts[0]] = parts[1]
		}
	}
	return env
}
