package wal

import (
	"testing"

	"github.com/driftlake/driftlake/internal/errors"
)

func newTestWAL(maxEntries int) *WAL {
	return New(Options{MaxEntries: maxEntries})
}

func mustAppend(t *testing.T, w *WAL, op, table string) uint64 {
	t.Helper()
	lsn, err := w.Append(op, table, map[string]any{"v": 1})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	return lsn
}

func TestWAL_AppendAssignsSequentialLSNs(t *testing.T) {
	w := newTestWAL(100)

	for i := 1; i <= 10; i++ {
		lsn := mustAppend(t, w, "insert", "metrics")
		if lsn != uint64(i) {
			t.Fatalf("lsn = %d, want %d", lsn, i)
		}
	}

	if got := w.MaxIssued(); got != 10 {
		t.Errorf("MaxIssued = %d, want 10", got)
	}
	if got := w.Len(); got != 10 {
		t.Errorf("Len = %d, want 10", got)
	}
}

func TestWAL_AppendValidation(t *testing.T) {
	w := newTestWAL(100)

	if _, err := w.Append("", "metrics", nil); err == nil {
		t.Error("append with empty operation should fail")
	}
	if _, err := w.Append("insert", "", nil); err == nil {
		t.Error("append with empty table should fail")
	}
	if _, err := w.Append("insert", "metrics", nil); err != nil {
		t.Errorf("append with nil data should succeed: %v", err)
	}
}

func TestWAL_CommitTransitionsEntry(t *testing.T) {
	w := newTestWAL(100)
	lsn := mustAppend(t, w, "insert", "metrics")

	e, ok := w.Entry(lsn)
	if !ok {
		t.Fatal("entry not found after append")
	}
	if e.Committed {
		t.Error("entry committed before Commit()")
	}

	w.Commit(lsn)

	e, ok = w.Entry(lsn)
	if !ok {
		t.Fatal("entry not found after commit")
	}
	if !e.Committed {
		t.Error("entry not committed after Commit()")
	}
}

func TestWAL_CommitUnknownLSNIsNoOp(t *testing.T) {
	w := newTestWAL(100)
	mustAppend(t, w, "insert", "metrics")

	// Neither issued-but-evicted nor never-issued LSNs should panic
	// or change anything.
	w.Commit(999)
	w.Commit(0)

	if got := w.Len(); got != 1 {
		t.Errorf("Len = %d, want 1", got)
	}
}

func TestWAL_EvictionRespectsCapacity(t *testing.T) {
	w := newTestWAL(5)

	for i := 0; i < 10; i++ {
		lsn := mustAppend(t, w, "insert", "metrics")
		w.Commit(lsn)
	}

	if got := w.Len(); got != 5 {
		t.Errorf("Len = %d, want 5", got)
	}

	// Oldest five must be gone, newest five retained.
	for lsn := uint64(1); lsn <= 5; lsn++ {
		if _, ok := w.Entry(lsn); ok {
			t.Errorf("lsn %d should have been evicted", lsn)
		}
	}
	for lsn := uint64(6); lsn <= 10; lsn++ {
		if _, ok := w.Entry(lsn); !ok {
			t.Errorf("lsn %d should be retained", lsn)
		}
	}
}

func TestWAL_UncommittedEntryPinsLog(t *testing.T) {
	w := newTestWAL(5)

	// Fill to capacity, commit everything except lsn 3.
	for i := 1; i <= 5; i++ {
		lsn := mustAppend(t, w, "insert", "metrics")
		if lsn != 3 {
			w.Commit(lsn)
		}
	}

	// Five more committed appends. Entries 1-2 may go, but 3 and
	// everything after it must survive even though the log exceeds
	// its capacity.
	for i := 0; i < 5; i++ {
		lsn := mustAppend(t, w, "insert", "metrics")
		w.Commit(lsn)
	}

	e, ok := w.Entry(3)
	if !ok {
		t.Fatal("uncommitted lsn 3 was evicted")
	}
	if e.Committed {
		t.Error("lsn 3 reported committed without a Commit call")
	}
	for lsn := uint64(4); lsn <= 10; lsn++ {
		if _, ok := w.Entry(lsn); !ok {
			t.Errorf("lsn %d behind the uncommitted boundary was evicted", lsn)
		}
	}
	if got := w.Len(); got != 8 {
		t.Errorf("Len = %d, want 8 (lsns 3-10 pinned)", got)
	}

	// Committing lsn 3 releases the boundary; the next append brings
	// the log back under capacity.
	w.Commit(3)
	lsn := mustAppend(t, w, "insert", "metrics")
	w.Commit(lsn)

	if got := w.Len(); got != 5 {
		t.Errorf("Len = %d after releasing boundary, want 5", got)
	}
}

func TestWAL_CheckpointEmptyLog(t *testing.T) {
	w := newTestWAL(100)
	if got := w.Checkpoint(); got != 0 {
		t.Errorf("Checkpoint on empty log = %d, want 0", got)
	}
}

func TestWAL_CheckpointStopsAtUncommitted(t *testing.T) {
	w := newTestWAL(100)

	for i := 1; i <= 4; i++ {
		lsn := mustAppend(t, w, "insert", "metrics")
		if i <= 3 {
			w.Commit(lsn)
		}
	}

	// lsn 4 is uncommitted, so the checkpoint is pinned at 3 no
	// matter how often it runs or how much committed work lands after.
	if got := w.Checkpoint(); got != 3 {
		t.Errorf("Checkpoint = %d, want 3", got)
	}
	w.Commit(mustAppend(t, w, "insert", "metrics"))
	w.Commit(mustAppend(t, w, "insert", "metrics"))
	if got := w.Checkpoint(); got != 3 {
		t.Errorf("second Checkpoint = %d, want 3", got)
	}

	unc := w.Uncommitted()
	if len(unc) != 1 || unc[0].LSN != 4 {
		t.Fatalf("Uncommitted = %+v, want single entry with lsn 4", unc)
	}

	// Checkpoint trimmed the committed prefix.
	for lsn := uint64(1); lsn <= 3; lsn++ {
		if _, ok := w.Entry(lsn); ok {
			t.Errorf("lsn %d should have been trimmed by checkpoint", lsn)
		}
	}

	// Committing lsn 4 releases the pin and the checkpoint jumps to
	// the newest committed entry.
	w.Commit(4)
	if got := w.Checkpoint(); got != 6 {
		t.Errorf("Checkpoint after commit = %d, want 6", got)
	}
}

func TestWAL_CheckpointAllCommitted(t *testing.T) {
	w := newTestWAL(100)
	for i := 0; i < 5; i++ {
		w.Commit(mustAppend(t, w, "insert", "metrics"))
	}

	if got := w.Checkpoint(); got != 5 {
		t.Errorf("Checkpoint = %d, want 5", got)
	}
	if got := w.Len(); got != 0 {
		t.Errorf("Len after full checkpoint = %d, want 0", got)
	}

	// LSNs keep climbing after a full trim.
	if lsn := mustAppend(t, w, "insert", "metrics"); lsn != 6 {
		t.Errorf("lsn after checkpoint = %d, want 6", lsn)
	}
}

func TestWAL_RecoverReturnsAscendingTail(t *testing.T) {
	w := newTestWAL(100)
	tables := []string{"metrics", "events", "metrics", "events"}
	for _, table := range tables {
		w.Commit(mustAppend(t, w, "insert", table))
	}

	entries := w.Recover(0)
	if len(entries) != 4 {
		t.Fatalf("Recover(0) returned %d entries, want 4", len(entries))
	}
	for i, e := range entries {
		if e.LSN != uint64(i+1) {
			t.Errorf("entries[%d].LSN = %d, want %d", i, e.LSN, i+1)
		}
		if e.Table != tables[i] {
			t.Errorf("entries[%d].Table = %q, want %q", i, e.Table, tables[i])
		}
	}

	entries = w.Recover(2)
	if len(entries) != 2 {
		t.Fatalf("Recover(2) returned %d entries, want 2", len(entries))
	}
	if entries[0].LSN != 3 || entries[1].LSN != 4 {
		t.Errorf("Recover(2) lsns = %d,%d, want 3,4", entries[0].LSN, entries[1].LSN)
	}

	if entries = w.Recover(10); len(entries) != 0 {
		t.Errorf("Recover past the tail returned %d entries, want 0", len(entries))
	}
}

func TestWAL_RecoverReturnsCopies(t *testing.T) {
	w := newTestWAL(100)
	w.Commit(mustAppend(t, w, "insert", "metrics"))

	entries := w.Recover(0)
	entries[0].Table = "mutated"

	e, _ := w.Entry(1)
	if e.Table != "metrics" {
		t.Error("mutation of recovered entry leaked into the log")
	}
}

func TestWAL_OldestUncommitted(t *testing.T) {
	w := newTestWAL(100)

	if _, ok := w.OldestUncommitted(); ok {
		t.Error("empty log should report no uncommitted entries")
	}

	for i := 1; i <= 3; i++ {
		lsn := mustAppend(t, w, "insert", "metrics")
		if i != 2 {
			w.Commit(lsn)
		}
	}

	lsn, ok := w.OldestUncommitted()
	if !ok || lsn != 2 {
		t.Errorf("OldestUncommitted = %d,%v, want 2,true", lsn, ok)
	}
}

func TestWAL_Stats(t *testing.T) {
	w := newTestWAL(2)

	for i := 0; i < 4; i++ {
		w.Commit(mustAppend(t, w, "insert", "metrics"))
	}
	w.Checkpoint()
	w.Recover(0)

	s := w.Stats()
	if s.EntriesAppended != 4 {
		t.Errorf("EntriesAppended = %d, want 4", s.EntriesAppended)
	}
	if s.EntriesCommitted != 4 {
		t.Errorf("EntriesCommitted = %d, want 4", s.EntriesCommitted)
	}
	if s.EntriesEvicted == 0 {
		t.Error("EntriesEvicted = 0, want > 0")
	}
	if s.Checkpoints != 1 {
		t.Errorf("Checkpoints = %d, want 1", s.Checkpoints)
	}
	if s.Recoveries != 1 {
		t.Errorf("Recoveries = %d, want 1", s.Recoveries)
	}
}

func TestWAL_AppendValidationError(t *testing.T) {
	w := newTestWAL(100)
	_, err := w.Append("", "metrics", nil)
	if !errors.IsInvalidArgument(err) {
		t.Errorf("err = %v, want invalid-argument", err)
	}
}

func TestSequencer(t *testing.T) {
	s := NewSequencer(0)
	if got := s.Current(); got != 0 {
		t.Errorf("Current = %d, want 0", got)
	}
	for i := 1; i <= 3; i++ {
		if got := s.Next(); got != uint64(i) {
			t.Errorf("Next = %d, want %d", got, i)
		}
	}
	if got := s.Current(); got != 3 {
		t.Errorf("Current = %d, want 3", got)
	}
}
