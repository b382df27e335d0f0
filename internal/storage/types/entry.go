package types

// LogEntry represents a single operation recorded in the write-ahead log.
// The LSN is assigned once at append time and never changes; Committed
// transitions false to true at most once (re-commit is a no-op).
type LogEntry struct {
	// LSN is the globally unique, strictly increasing log sequence number.
	LSN uint64

	// Operation names the logical operation (e.g. "insert", "delete").
	Operation string

	// Table is the logical table the operation applies to.
	Table string

	// Data is the opaque operation payload. The WAL never inspects it.
	Data any

	// Committed is true once the operation has been durably applied
	// by the producer and acknowledged via Commit.
	Committed bool
}

// EntryState describes where an entry is in its lifecycle.
// Evicted entries are removed from the log entirely rather than flagged,
// so only the first two states are ever observable on a live entry.
type EntryState int

const (
	// StateUncommitted is the initial state after Append.
	StateUncommitted EntryState = iota

	// StateCommitted means the producer acknowledged durable application.
	StateCommitted
)

// String returns a human-readable representation of the state.
func (s EntryState) String() string {
	switch s {
	case StateUncommitted:
		return "uncommitted"
	case StateCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

// State returns the entry's current lifecycle state.
func (e *LogEntry) State() EntryState {
	if e.Committed {
		return StateCommitted
	}
	return StateUncommitted
}
