// Package recovery replays the write-ahead log after a restart. The
// driver loads the last durable checkpoint, asks the log for every
// entry issued after it and feeds them to an Applier in sequence
// order. Committed entries are re-applied; uncommitted entries are
// surfaced for resolution instead of being silently dropped.
package recovery

import (
	"context"

	"github.com/driftlake/driftlake/internal/errors"
	"github.com/driftlake/driftlake/internal/logging"
	"github.com/driftlake/driftlake/internal/storage/types"
)

var log = logging.Component("recovery")

// Log is the subset of the write-ahead log the driver needs.
type Log interface {
	Recover(fromLSN uint64) []types.LogEntry
}

// Applier consumes replayed entries.
type Applier interface {
	// Apply re-applies a committed entry. Entries arrive in ascending
	// sequence order.
	Apply(ctx context.Context, entry types.LogEntry) error

	// ResolveInFlight decides the fate of an entry that was never
	// committed. Implementations typically discard it or re-queue the
	// operation.
	ResolveInFlight(ctx context.Context, entry types.LogEntry) error
}

// Driver orchestrates one replay pass.
type Driver struct {
	wal         Log
	checkpoints CheckpointStore
}

// Result summarizes a replay pass.
type Result struct {
	FromLSN  uint64
	Applied  int
	InFlight int
	LastLSN  uint64
}

// NewDriver creates a replay driver.
func NewDriver(wal Log, checkpoints CheckpointStore) *Driver {
	return &Driver{
		wal:         wal,
		checkpoints: checkpoints,
	}
}

// Replay loads the checkpoint and feeds every later entry to the
// applier. It stops at the first applier error so a failed replay can
// be retried from the same checkpoint.
func (d *Driver) Replay(ctx context.Context, applier Applier) (*Result, error) {
	if applier == nil {
		return nil, errors.NewMissingField("applier")
	}

	from, err := d.checkpoints.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load checkpoint")
	}

	entries := d.wal.Recover(from)
	result := &Result{FromLSN: from}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if entry.Committed {
			if err := applier.Apply(ctx, entry); err != nil {
				return result, errors.Wrapf(err, "apply entry %d", entry.LSN)
			}
			result.Applied++
		} else {
			if err := applier.ResolveInFlight(ctx, entry); err != nil {
				return result, errors.Wrapf(err, "resolve in-flight entry %d", entry.LSN)
			}
			result.InFlight++
		}
		result.LastLSN = entry.LSN
	}

	log.Info("replay complete",
		"from_lsn", result.FromLSN,
		"applied", result.Applied,
		"in_flight", result.InFlight)

	return result, nil
}

// SaveCheckpoint persists a checkpoint taken by the log so the next
// replay starts after it.
func (d *Driver) SaveCheckpoint(lsn uint64) error {
	if lsn == 0 {
		// Nothing durable yet.
		return nil
	}
	return d.checkpoints.Save(lsn)
}
