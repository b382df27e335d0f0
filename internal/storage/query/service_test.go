package query

import (
	"context"
	"testing"

	"github.com/driftlake/driftlake/internal/storage/config"
	"github.com/driftlake/driftlake/internal/storage/parquet"
	"github.com/driftlake/driftlake/internal/storage/types"
)

func newTestService(t *testing.T) (*Service, *config.Config) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	svc, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	return svc, cfg
}

func exportSnapshot(t *testing.T, cfg *config.Config, entries []types.LogEntry, segments []types.Segment) {
	t.Helper()

	e := parquet.NewExporter(cfg.WALExportDir(), cfg.SegmentExportDir(), parquet.DefaultOptions())
	if _, err := e.ExportSnapshot(context.Background(), entries, segments); err != nil {
		t.Fatalf("ExportSnapshot: %v", err)
	}
}

func TestService_ExecuteSQL(t *testing.T) {
	svc, _ := newTestService(t)

	results, err := svc.ExecuteSQL(context.Background(), "SELECT 42 AS answer")
	if err != nil {
		t.Fatalf("ExecuteSQL: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %v, want one row", results)
	}
	if results[0]["answer"] == nil {
		t.Errorf("row = %v, want answer column", results[0])
	}

	if s := svc.Stats(); s.QueriesExecuted != 1 || s.RowsReturned != 1 {
		t.Errorf("Stats = %+v, want 1 query, 1 row", s)
	}
}

func TestService_ExecuteSQLError(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.ExecuteSQL(context.Background(), "SELECT FROM nowhere"); err == nil {
		t.Fatal("invalid SQL should fail")
	}
	if s := svc.Stats(); s.Errors != 1 {
		t.Errorf("Errors = %d, want 1", s.Errors)
	}
}

func TestService_KeyHistory(t *testing.T) {
	svc, cfg := newTestService(t)

	segments := []types.Segment{
		{ID: "seg-a", Level: 0, Recency: 1, Records: []types.Record{
			{Key: "metric-1", Value: 10.0, Timestamp: 100},
			{Key: "metric-2", Value: 99.0, Timestamp: 100},
		}},
		{ID: "seg-b", Level: 0, Recency: 2, Records: []types.Record{
			{Key: "metric-1", Value: 20.0, Timestamp: 200},
		}},
	}
	exportSnapshot(t, cfg, nil, segments)

	history, err := svc.KeyHistory(context.Background(), KeyHistoryQuery{Key: "metric-1"})
	if err != nil {
		t.Fatalf("KeyHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d versions, want 2", len(history))
	}

	// Newest first.
	if history[0].Recency != 2 || history[0].Timestamp != 200 {
		t.Errorf("history[0] = %+v, want recency 2 at ts 200", history[0])
	}
	if history[1].Recency != 1 || history[1].Timestamp != 100 {
		t.Errorf("history[1] = %+v, want recency 1 at ts 100", history[1])
	}

	// Limit applies.
	history, err = svc.KeyHistory(context.Background(), KeyHistoryQuery{Key: "metric-1", Limit: 1})
	if err != nil {
		t.Fatalf("KeyHistory with limit: %v", err)
	}
	if len(history) != 1 || history[0].Recency != 2 {
		t.Errorf("limited history = %+v, want only recency 2", history)
	}
}

func TestService_KeyHistoryNoSnapshots(t *testing.T) {
	svc, _ := newTestService(t)

	history, err := svc.KeyHistory(context.Background(), KeyHistoryQuery{Key: "metric-1"})
	if err != nil {
		t.Fatalf("KeyHistory: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("history = %v, want empty", history)
	}
}

func TestService_Audit(t *testing.T) {
	svc, cfg := newTestService(t)

	entries := []types.LogEntry{
		{LSN: 1, Operation: "insert", Table: "metrics", Committed: true},
		{LSN: 2, Operation: "update", Table: "metrics", Committed: true},
		{LSN: 3, Operation: "insert", Table: "events", Committed: false},
	}
	exportSnapshot(t, cfg, entries, nil)

	// Unfiltered, ascending by sequence number.
	all, err := svc.Audit(context.Background(), AuditQuery{})
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("audit returned %d entries, want 3", len(all))
	}
	for i, e := range all {
		if e.LSN != uint64(i+1) {
			t.Errorf("all[%d].LSN = %d, want %d", i, e.LSN, i+1)
		}
	}

	// Filter by table.
	metrics, err := svc.Audit(context.Background(), AuditQuery{Table: "metrics"})
	if err != nil {
		t.Fatalf("Audit by table: %v", err)
	}
	if len(metrics) != 2 {
		t.Errorf("metrics audit returned %d entries, want 2", len(metrics))
	}

	// Filter by operation and starting sequence number.
	inserts, err := svc.Audit(context.Background(), AuditQuery{Operation: "insert", FromLSN: 1})
	if err != nil {
		t.Fatalf("Audit by operation: %v", err)
	}
	if len(inserts) != 1 || inserts[0].LSN != 3 {
		t.Errorf("inserts after lsn 1 = %+v, want only lsn 3", inserts)
	}
}
