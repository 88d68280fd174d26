package credits

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Snapshot file names under the data directory. Each document is replaced
// wholesale on every write; there is no append log.
const (
	ledgerFile   = "ledger.json"
	codesFile    = "codes.json"
	trialsFile   = "trials.json"
	paymentsFile = "payments.json"
)

// SnapshotWriter persists store state as independent JSON documents. Writes
// are best-effort: the in-memory state is authoritative for the life of the
// process and a failed write is logged, never propagated.
//
// Writes happen asynchronously, so each document carries a generation number
// assigned at capture time. A write whose generation is older than what is
// already on disk is dropped; a stale snapshot can never overwrite a newer
// one.
type SnapshotWriter struct {
	mu       sync.Mutex
	dir      string
	captured map[string]uint64
	written  map[string]uint64
}

// NewSnapshotWriter returns a writer rooted at dir, or nil when dir is empty
// (in-memory-only operation).
func NewSnapshotWriter(dir string) *SnapshotWriter {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("credits: snapshot dir %s unavailable, running in-memory only: %v", dir, err)
		return nil
	}
	return &SnapshotWriter{
		dir:      dir,
		captured: make(map[string]uint64),
		written:  make(map[string]uint64),
	}
}

// Capture assigns the next generation for name and materializes the snapshot
// under the writer lock, so a higher generation always reflects a later
// store state.
func (w *SnapshotWriter) Capture(name string, materialize func() interface{}) (uint64, interface{}) {
	if w == nil {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.captured[name]++
	return w.captured[name], materialize()
}

// Write marshals v and replaces the named document atomically via a temp
// file rename, unless a newer generation has already been written. Safe for
// concurrent use; errors are returned for logging at the call site.
func (w *SnapshotWriter) Write(name string, gen uint64, v interface{}) error {
	if w == nil {
		return nil
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if gen < w.written[name] {
		return nil
	}

	target := filepath.Join(w.dir, name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		return err
	}
	w.written[name] = gen
	return nil
}

// Load reads the named document into v. A missing file is not an error; the
// caller starts empty.
func (w *SnapshotWriter) Load(name string, v interface{}) error {
	if w == nil {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(w.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}
