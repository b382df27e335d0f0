package wal

import (
	"sync"

	"github.com/zhangyunhao116/skipmap"

	"github.com/driftlake/driftlake/internal/errors"
	"github.com/driftlake/driftlake/internal/logging"
	"github.com/driftlake/driftlake/internal/storage/types"
)

var log = logging.Component("wal")

// entryMap is an LSN-ordered concurrent map. Ascending Range order is
// what makes oldest-first eviction and ordered recovery cheap.
type entryMap = skipmap.FuncMap[uint64, *types.LogEntry]

func newEntryMap() *entryMap {
	return skipmap.NewFunc[uint64, *types.LogEntry](func(a, b uint64) bool {
		return a < b
	})
}

// WAL is an append-only, ordered log of operations with commit tracking,
// capacity-bounded eviction, checkpointing and recovery replay.
//
// All mutating operations share one critical section so LSN allocation,
// insertion, eviction and checkpointing are linearizable with respect to
// one another. The log never evicts an entry at or above the oldest
// uncommitted LSN: the retained set may exceed the soft capacity bound
// when uncommitted entries pin the tail, but an in-flight operation is
// never lost.
type WAL struct {
	mu sync.Mutex

	seq     *Sequencer
	entries *entryMap

	opts Options

	// Statistics
	stats Stats
}

// Options configures the WAL.
type Options struct {
	// MaxEntries is the soft capacity bound. After each append, committed
	// entries below the oldest-uncommitted boundary are evicted oldest
	// first until the count is back at MaxEntries or nothing is eligible.
	MaxEntries int
}

// DefaultOptions returns default WAL options.
func DefaultOptions() Options {
	return Options{
		MaxEntries: 10000,
	}
}

// Stats holds WAL statistics.
type Stats struct {
	EntriesAppended  int64
	EntriesCommitted int64
	EntriesEvicted   int64
	Checkpoints      int64
	Recoveries       int64
}

// New creates a new WAL.
func New(opts Options) *WAL {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultOptions().MaxEntries
	}

	return &WAL{
		seq:     NewSequencer(0),
		entries: newEntryMap(),
		opts:    opts,
	}
}

// Append validates and records an operation as uncommitted, returning its
// newly allocated LSN. Capacity eviction runs before returning.
func (w *WAL) Append(operation, table string, data any) (uint64, error) {
	if operation == "" {
		return 0, errors.NewMissingField("operation")
	}
	if table == "" {
		return 0, errors.NewMissingField("table")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	lsn := w.seq.Next()
	w.entries.Store(lsn, &types.LogEntry{
		LSN:       lsn,
		Operation: operation,
		Table:     table,
		Data:      data,
	})
	w.stats.EntriesAppended++

	w.evictLocked()

	return lsn, nil
}

// Commit marks the entry committed. An unknown or already-evicted LSN is
// a no-op, not an error: eviction only ever removes entries that were
// already safely committed and checkpointed, so a replayed re-commit is
// harmless.
func (w *WAL) Commit(lsn uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries.Load(lsn)
	if !ok {
		return
	}
	if !e.Committed {
		e.Committed = true
		w.stats.EntriesCommitted++
	}
}

// Entry returns a copy of the retained entry for lsn, or false if the
// entry is unknown or has been evicted.
func (w *WAL) Entry(lsn uint64) (types.LogEntry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.entries.Load(lsn)
	if !ok {
		return types.LogEntry{}, false
	}
	return *e, true
}

// Uncommitted returns copies of all uncommitted entries, ascending by LSN.
func (w *WAL) Uncommitted() []types.LogEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []types.LogEntry
	w.entries.Range(func(_ uint64, e *types.LogEntry) bool {
		if !e.Committed {
			out = append(out, *e)
		}
		return true
	})
	return out
}

// Checkpoint computes the durable replay boundary, evicts every committed
// entry at or below it, and returns it. The boundary is one below the
// oldest uncommitted LSN, or the maximum issued LSN when everything is
// committed. An empty log returns the 0 sentinel and is a no-op.
func (w *WAL) Checkpoint() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.entries.Len() == 0 {
		return 0
	}

	oldest, hasUncommitted := w.oldestUncommittedLocked()

	var cp uint64
	if hasUncommitted {
		cp = oldest - 1
	} else {
		cp = w.seq.Current()
	}

	var victims []uint64
	w.entries.Range(func(lsn uint64, e *types.LogEntry) bool {
		if lsn > cp {
			return false
		}
		if e.Committed {
			victims = append(victims, lsn)
		}
		return true
	})

	for _, lsn := range victims {
		w.entries.Delete(lsn)
		w.stats.EntriesEvicted++
	}

	w.stats.Checkpoints++
	log.Debug("checkpoint complete", "lsn", cp, "evicted", len(victims))

	return cp
}

// Recover returns copies of every retained entry with lsn > fromLSN,
// committed or not, ascending by LSN. After a restart a driver replays
// from the last persisted checkpoint; uncommitted entries in the result
// must be re-decided (retried or aborted) by the caller.
func (w *WAL) Recover(fromLSN uint64) []types.LogEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []types.LogEntry
	w.entries.Range(func(lsn uint64, e *types.LogEntry) bool {
		if lsn > fromLSN {
			out = append(out, *e)
		}
		return true
	})

	w.stats.Recoveries++
	return out
}

// Len returns the number of retained entries.
func (w *WAL) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entries.Len()
}

// MaxIssued returns the highest LSN issued so far, or 0 if none.
func (w *WAL) MaxIssued() uint64 {
	return w.seq.Current()
}

// OldestUncommitted returns the lowest uncommitted LSN, or false when
// every retained entry is committed.
func (w *WAL) OldestUncommitted() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.oldestUncommittedLocked()
}

// Stats returns a snapshot of WAL statistics.
func (w *WAL) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// oldestUncommittedLocked scans ascending for the first uncommitted entry.
func (w *WAL) oldestUncommittedLocked() (uint64, bool) {
	var oldest uint64
	found := false
	w.entries.Range(func(lsn uint64, e *types.LogEntry) bool {
		if !e.Committed {
			oldest = lsn
			found = true
			return false
		}
		return true
	})
	return oldest, found
}

// evictLocked enforces the soft capacity bound: oldest-first, committed
// entries below the uncommitted boundary only. The count may stay above
// MaxEntries when uncommitted entries pin the tail; a keep-last-N
// truncation here would silently destroy in-flight operations.
func (w *WAL) evictLocked() {
	excess := w.entries.Len() - w.opts.MaxEntries
	if excess <= 0 {
		return
	}

	boundary, hasUncommitted := w.oldestUncommittedLocked()

	var victims []uint64
	w.entries.Range(func(lsn uint64, e *types.LogEntry) bool {
		if hasUncommitted && lsn >= boundary {
			// Everything from the boundary up is pinned.
			return false
		}
		if !e.Committed {
			// Unreachable while the boundary is computed correctly:
			// every entry below the oldest uncommitted LSN is committed.
			log.Error("eviction scan hit uncommitted entry below boundary",
				"lsn", lsn, "boundary", boundary,
				"error", errors.NewConsistencyViolation("uncommitted entry below oldest-uncommitted boundary"))
			return false
		}
		victims = append(victims, lsn)
		return len(victims) < excess
	})

	for _, lsn := range victims {
		w.entries.Delete(lsn)
		w.stats.EntriesEvicted++
	}

	if len(victims) > 0 {
		log.Debug("capacity eviction", "evicted", len(victims), "retained", w.entries.Len())
	}
}
