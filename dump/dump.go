// Package dump implements the on-disk binary snapshot of the process
// registry (C2). The encoding is MessagePack, a compact self-describing
// tagged binary format — the same family of encoding the source's binary
// dump uses, without hand-rolling a parser for it.
package dump

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Watch describes a directory-content watch attached to a process record.
type Watch struct {
	Enabled bool   `msgpack:"enabled"`
	Path    string `msgpack:"path"`
	Hash    string `msgpack:"hash"`
}

// Crash tracks the consecutive-crash counter and whether the restart budget
// has been exhausted for a process.
type Crash struct {
	Crashed bool   `msgpack:"crashed"`
	Value   uint64 `msgpack:"value"`
}

// Record is one managed process. Field meanings are defined in §3 of the
// specification.
type Record struct {
	ID       uint64            `msgpack:"id"`
	Pid      int               `msgpack:"pid"`
	Name     string            `msgpack:"name"`
	Path     string            `msgpack:"path"`
	Script   string            `msgpack:"script"`
	Env      map[string]string `msgpack:"env"`
	Started  int64             `msgpack:"started"` // UTC millis
	Restarts uint64            `msgpack:"restarts"`
	Running  bool              `msgpack:"running"`
	Crash    Crash             `msgpack:"crash"`
	Watch    Watch             `msgpack:"watch"`
}

// StartedTime returns Started as a time.Time.
func (r Record) StartedTime() time.Time {
	return time.UnixMilli(r.Started)
}

// Snapshot is the full persisted registry state: the id counter plus every
// record, keyed by id. Records are stored in a slice (not a map) so
// encoding order — and thus iteration order — is deterministic (§3: "Order
// is ascending by id; iteration is deterministic").
type Snapshot struct {
	NextID  uint64   `msgpack:"next_id"`
	Records []Record `msgpack:"records"`
}

// ErrCorrupt is returned when the dump file exists but cannot be decoded
// after exhausting retries.
var ErrCorrupt = errors.New("dump: corrupt snapshot")

const (
	readRetries  = 5
	retryBackoff = time.Second
)

// Load reads the snapshot at path. If the file is absent, it initializes an
// empty snapshot, persists it, and returns it — matching C2's documented
// read policy. Read and decode are each retried up to readRetries times
// with retryBackoff between attempts.
func Load(path string) (Snapshot, error) {
	var snap Snapshot
	var lastErr error

	for attempt := 0; attempt < readRetries; attempt++ {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				snap = Snapshot{Records: []Record{}}
				if werr := Save(path, snap); werr != nil {
					return Snapshot{}, fmt.Errorf("dump: initialize empty snapshot: %w", werr)
				}
				return snap, nil
			}
			lastErr = err
			time.Sleep(retryBackoff)
			continue
		}

		if err := msgpack.Unmarshal(data, &snap); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrCorrupt, err)
			time.Sleep(retryBackoff)
			continue
		}

		if snap.Records == nil {
			snap.Records = []Record{}
		}
		return snap, nil
	}

	return Snapshot{}, fmt.Errorf("dump: load %s after %d attempts: %w", path, readRetries, lastErr)
}

// Save writes snap to path as a whole-file MessagePack encode. Writes are
// best-effort atomic: the file is written in full in one call; callers that
// want rename-based atomicity can wrap this, but plain overwrite is
// sufficient for the single-writer discipline pmcd uses (§5).
func Save(path string, snap Snapshot) error {
	if snap.Records == nil {
		snap.Records = []Record{}
	}
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("dump: encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("dump: write %s: %w", path, err)
	}
	return nil
}

// Raw reads the dump file's bytes verbatim, for the HTTP /dump route (§4.8).
func Raw(path string) ([]byte, error) {
	return os.ReadFile(path)
}
