// Package query provides SQL access to exported Parquet snapshots
// through an embedded DuckDB instance.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/driftlake/driftlake/internal/storage/config"
)

// Service queries exported snapshots with DuckDB's read_parquet.
type Service struct {
	mu sync.Mutex

	config *config.Config
	db     *sql.DB

	// Statistics
	stats Stats
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// KeyHistoryQuery defines parameters for querying a key's record
// history across segment snapshots.
type KeyHistoryQuery struct {
	Key   string
	Since time.Time
	Until time.Time
	Limit int
}

// KeyVersion is one historical record of a key.
type KeyVersion struct {
	SegmentID string
	Level     int
	Recency   int64
	Key       string
	Value     string
	Timestamp int64
}

// AuditQuery defines parameters for querying log entry snapshots.
type AuditQuery struct {
	Table     string
	Operation string
	FromLSN   uint64
	Limit     int
}

// AuditEntry is one log entry row from a snapshot.
type AuditEntry struct {
	LSN       uint64
	Operation string
	Table     string
	Data      string
	Committed bool
}

// New creates a new query service over the configured export
// directories.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// In-memory DuckDB; the data lives in the Parquet files.
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if cfg.Query.MemoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", cfg.Query.MemoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	return &Service{
		config: cfg,
		db:     db,
	}, nil
}

// Close closes the query service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// KeyHistory returns every snapshotted record for a key, newest first.
func (s *Service) KeyHistory(ctx context.Context, q KeyHistoryQuery) ([]KeyVersion, error) {
	pattern, ok := s.snapshotPattern(s.config.SegmentExportDir())
	if !ok {
		return nil, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT segment_id, level, recency, key, coalesce(data.value, '') AS value, timestamp
		FROM read_parquet($1) AS data
		WHERE key = $2
		  AND timestamp >= $3
		  AND timestamp <= $4
		ORDER BY recency DESC, timestamp DESC
		LIMIT $5
	`

	until := q.Until
	if until.IsZero() {
		until = time.Now().Add(24 * time.Hour)
	}

	rows, err := s.db.QueryContext(ctx, query,
		pattern,
		q.Key,
		q.Since.UnixMilli(),
		until.UnixMilli(),
		s.limit(q.Limit),
	)
	if err != nil {
		s.recordError()
		return nil, fmt.Errorf("query key history: %w", err)
	}
	defer rows.Close()

	var results []KeyVersion
	for rows.Next() {
		var v KeyVersion
		if err := rows.Scan(&v.SegmentID, &v.Level, &v.Recency, &v.Key, &v.Value, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, v)
	}
	if err := rows.Err(); err != nil {
		s.recordError()
		return nil, err
	}

	s.recordQuery(len(results))
	return results, nil
}

// Audit returns snapshotted log entries matching the query, ascending
// by sequence number.
func (s *Service) Audit(ctx context.Context, q AuditQuery) ([]AuditEntry, error) {
	pattern, ok := s.snapshotPattern(s.config.WALExportDir())
	if !ok {
		return nil, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT lsn, operation, "table", coalesce(data, '') AS data, committed
		FROM read_parquet($1)
		WHERE lsn > $2
		  AND ($3 = '' OR "table" = $3)
		  AND ($4 = '' OR operation = $4)
		ORDER BY lsn
		LIMIT $5
	`

	rows, err := s.db.QueryContext(ctx, query,
		pattern,
		int64(q.FromLSN),
		q.Table,
		q.Operation,
		s.limit(q.Limit),
	)
	if err != nil {
		s.recordError()
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var results []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var lsn int64
		if err := rows.Scan(&lsn, &e.Operation, &e.Table, &e.Data, &e.Committed); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.LSN = uint64(lsn)
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		s.recordError()
		return nil, err
	}

	s.recordQuery(len(results))
	return results, nil
}

// ExecuteSQL executes a raw SQL query using DuckDB.
// This is useful for ad-hoc queries and debugging.
func (s *Service) ExecuteSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.recordError()
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		s.recordError()
		return nil, err
	}

	s.recordQuery(len(results))
	return results, nil
}

// Stats returns query statistics.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// snapshotPattern returns the glob pattern for a snapshot directory, or
// false when the directory holds no snapshot files yet.
func (s *Service) snapshotPattern(dir string) (string, bool) {
	pattern := filepath.Join(dir, "*.parquet")
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return "", false
	}
	return pattern, true
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Query.Timeout > 0 {
		return context.WithTimeout(ctx, s.config.Query.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Service) limit(requested int) int {
	max := s.config.Query.MaxRows
	if requested <= 0 || requested > max {
		return max
	}
	return requested
}

func (s *Service) recordQuery(rows int) {
	s.mu.Lock()
	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(rows)
	s.mu.Unlock()
}

func (s *Service) recordError() {
	s.mu.Lock()
	s.stats.Errors++
	s.mu.Unlock()
}
