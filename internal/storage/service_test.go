package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/driftlake/driftlake/internal/storage/config"
	"github.com/driftlake/driftlake/internal/storage/query"
	"github.com/driftlake/driftlake/internal/storage/recovery"
	"github.com/driftlake/driftlake/internal/storage/types"
)

func newTestService(t *testing.T, mutate func(*config.Config)) *Service {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	if mutate != nil {
		mutate(cfg)
	}

	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Stop() })

	return svc
}

type discardApplier struct {
	applied  int
	inFlight int
}

func (a *discardApplier) Apply(_ context.Context, _ types.LogEntry) error {
	a.applied++
	return nil
}

func (a *discardApplier) ResolveInFlight(_ context.Context, _ types.LogEntry) error {
	a.inFlight++
	return nil
}

func TestService_New(t *testing.T) {
	svc := newTestService(t, nil)

	if svc.IsRunning() {
		t.Error("service should not be running before Start()")
	}
	if svc.Config() == nil {
		t.Error("Config() returned nil")
	}
}

func TestService_NewInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WAL.MaxEntries = 0

	if _, err := New(cfg); err == nil {
		t.Error("New with invalid config should fail")
	}
}

func TestService_StartStop(t *testing.T) {
	svc := newTestService(t, nil)

	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !svc.IsRunning() {
		t.Error("service should be running after Start()")
	}

	if err := svc.Start(); err == nil {
		t.Error("second Start should fail")
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if svc.IsRunning() {
		t.Error("service should not be running after Stop()")
	}

	// Stop is idempotent.
	if err := svc.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestService_LogLifecycle(t *testing.T) {
	svc := newTestService(t, nil)

	lsn1, err := svc.Append("insert", "metrics", map[string]any{"v": 1})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	lsn2, err := svc.Append("insert", "metrics", map[string]any{"v": 2})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if lsn2 != lsn1+1 {
		t.Errorf("lsn2 = %d, want %d", lsn2, lsn1+1)
	}

	svc.Commit(lsn1)

	unc := svc.Uncommitted()
	if len(unc) != 1 || unc[0].LSN != lsn2 {
		t.Fatalf("Uncommitted = %+v, want only lsn %d", unc, lsn2)
	}

	// Checkpoint stops before the uncommitted entry.
	cp, err := svc.Checkpoint()
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if cp != lsn1 {
		t.Errorf("Checkpoint = %d, want %d", cp, lsn1)
	}

	if _, ok := svc.Entry(lsn2); !ok {
		t.Error("uncommitted entry missing after checkpoint")
	}
}

func TestService_CheckpointPersistsForReplay(t *testing.T) {
	dataDir := t.TempDir()

	svc := newTestService(t, func(c *config.Config) { c.DataDir = dataDir })

	for i := 0; i < 3; i++ {
		lsn, err := svc.Append("insert", "metrics", nil)
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
		svc.Commit(lsn)
	}
	if _, err := svc.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	lsn4, err := svc.Append("insert", "metrics", nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	svc.Commit(lsn4)

	// Replay resumes after the persisted checkpoint.
	applier := &discardApplier{}
	result, err := svc.Replay(context.Background(), applier)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if result.FromLSN != 3 {
		t.Errorf("FromLSN = %d, want 3", result.FromLSN)
	}
	if applier.applied != 1 || applier.inFlight != 0 {
		t.Errorf("applied = %d, inFlight = %d, want 1, 0", applier.applied, applier.inFlight)
	}

	// The checkpoint survives on disk for the next process.
	store := recovery.NewFileCheckpointStore(filepath.Join(dataDir, "checkpoint"))
	saved, err := store.Load()
	if err != nil {
		t.Fatalf("Load checkpoint: %v", err)
	}
	if saved != 3 {
		t.Errorf("persisted checkpoint = %d, want 3", saved)
	}
}

func TestService_SegmentLifecycle(t *testing.T) {
	svc := newTestService(t, nil)

	records := []types.Record{
		{Key: "metric-1", Value: 10.0, Timestamp: 10},
	}
	if err := svc.AddSegment(0, records); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	if err := svc.AddSegment(0, []types.Record{{Key: "metric-1", Value: 50.0, Timestamp: 50}}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}

	if v, ok := svc.Lookup("metric-1"); !ok || v != 50.0 {
		t.Errorf("Lookup = %v,%v, want 50,true", v, ok)
	}

	if err := svc.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if got := len(svc.Segments()); got != 1 {
		t.Errorf("segments after compact = %d, want 1", got)
	}

	if err := svc.MarkDeleted("metric-1"); err != nil {
		t.Fatalf("MarkDeleted: %v", err)
	}
	if _, ok := svc.Lookup("metric-1"); ok {
		t.Error("deleted key still visible")
	}
}

func TestService_ExportDisabled(t *testing.T) {
	svc := newTestService(t, nil)

	if _, err := svc.ExportSnapshot(context.Background()); err == nil {
		t.Error("ExportSnapshot with export disabled should fail")
	}
}

func TestService_ExportAndQuery(t *testing.T) {
	svc := newTestService(t, func(c *config.Config) {
		c.Export.Enabled = true
	})

	lsn, err := svc.Append("insert", "metrics", map[string]any{"v": 1})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	svc.Commit(lsn)

	if err := svc.AddSegment(0, []types.Record{{Key: "metric-1", Value: 10.0, Timestamp: 100}}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}

	result, err := svc.ExportSnapshot(context.Background())
	if err != nil {
		t.Fatalf("ExportSnapshot: %v", err)
	}
	if result.EntryRows != 1 || result.SegmentRows != 1 {
		t.Errorf("snapshot rows = %d entries, %d records, want 1 and 1", result.EntryRows, result.SegmentRows)
	}

	history, err := svc.KeyHistory(context.Background(), query.KeyHistoryQuery{Key: "metric-1"})
	if err != nil {
		t.Fatalf("KeyHistory: %v", err)
	}
	if len(history) != 1 || history[0].Timestamp != 100 {
		t.Errorf("history = %+v, want one version at ts 100", history)
	}

	audit, err := svc.Audit(context.Background(), query.AuditQuery{Table: "metrics"})
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(audit) != 1 || audit[0].LSN != lsn {
		t.Errorf("audit = %+v, want one entry at lsn %d", audit, lsn)
	}
}

func TestService_PeriodicCheckpoint(t *testing.T) {
	svc := newTestService(t, func(c *config.Config) {
		c.WAL.CheckpointInterval = 20 * time.Millisecond
	})

	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	lsn, err := svc.Append("insert", "metrics", nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	svc.Commit(lsn)

	deadline := time.After(2 * time.Second)
	for svc.Stats().WAL.Checkpoints == 0 {
		select {
		case <-deadline:
			t.Fatal("no periodic checkpoint within deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestService_Stats(t *testing.T) {
	svc := newTestService(t, nil)

	lsn, err := svc.Append("insert", "metrics", nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	svc.Commit(lsn)
	if err := svc.AddSegment(0, []types.Record{{Key: "k", Value: 1, Timestamp: 1}}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	svc.Lookup("k")

	s := svc.Stats()
	if s.WAL.EntriesAppended != 1 {
		t.Errorf("WAL.EntriesAppended = %d, want 1", s.WAL.EntriesAppended)
	}
	if s.Compaction.SegmentsAdded != 1 {
		t.Errorf("Compaction.SegmentsAdded = %d, want 1", s.Compaction.SegmentsAdded)
	}
	if len(s.Operations) == 0 {
		t.Error("Operations summaries empty with stats enabled")
	}
}

func TestService_OperationDurationsObserved(t *testing.T) {
	svc := newTestService(t, nil)

	if _, err := svc.Append("insert", "metrics", nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := svc.AddSegment(0, []types.Record{{Key: "k", Value: 1, Timestamp: 1}}); err != nil {
		t.Fatalf("AddSegment: %v", err)
	}
	svc.Lookup("k")
	if err := svc.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	// One histogram series per operation label.
	n, err := testutil.GatherAndCount(svc.Metrics().Registry(), "driftlake_operation_duration_seconds")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 3 {
		t.Errorf("operation duration series = %d, want 3 (append, lookup, compact)", n)
	}
}
