package parquet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/driftlake/driftlake/internal/errors"
	"github.com/driftlake/driftlake/internal/storage/types"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType

	// CompressionLevel for algorithms that support it (zstd: 1-22)
	CompressionLevel int
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression:      CompressionZstd,
		CompressionLevel: 3,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// EntryRow represents a log entry in Parquet format. The opaque payload
// is JSON-encoded so arbitrary operation data survives the round trip.
type EntryRow struct {
	LSN       uint64 `parquet:"lsn"`
	Operation string `parquet:"operation,zstd"`
	Table     string `parquet:"table,zstd"`
	Data      string `parquet:"data,optional,zstd"`
	Committed bool   `parquet:"committed"`
}

// SegmentRow represents one segment record in Parquet format, flattened
// with its segment's identity and recency rank.
type SegmentRow struct {
	SegmentID string `parquet:"segment_id,zstd"`
	Level     int32  `parquet:"level"`
	Recency   int64  `parquet:"recency"`
	Key       string `parquet:"key,zstd"`
	Value     string `parquet:"value,optional,zstd"`
	Timestamp int64  `parquet:"timestamp"`
}

// EntryToRow converts a LogEntry to an EntryRow.
func EntryToRow(e *types.LogEntry) (EntryRow, error) {
	row := EntryRow{
		LSN:       e.LSN,
		Operation: e.Operation,
		Table:     e.Table,
		Committed: e.Committed,
	}

	if e.Data != nil {
		data, err := json.Marshal(e.Data)
		if err != nil {
			return EntryRow{}, fmt.Errorf("encode entry data: %w", err)
		}
		row.Data = string(data)
	}

	return row, nil
}

// RowToEntry converts an EntryRow to a LogEntry.
func RowToEntry(r *EntryRow) (types.LogEntry, error) {
	entry := types.LogEntry{
		LSN:       r.LSN,
		Operation: r.Operation,
		Table:     r.Table,
		Committed: r.Committed,
	}

	if r.Data != "" {
		var data any
		if err := json.Unmarshal([]byte(r.Data), &data); err != nil {
			return types.LogEntry{}, fmt.Errorf("decode entry data: %w", err)
		}
		entry.Data = data
	}

	return entry, nil
}

// SegmentToRows flattens a segment into one row per record.
func SegmentToRows(s *types.Segment) ([]SegmentRow, error) {
	rows := make([]SegmentRow, 0, len(s.Records))
	for i := range s.Records {
		r := &s.Records[i]

		row := SegmentRow{
			SegmentID: s.ID,
			Level:     int32(s.Level),
			Recency:   int64(s.Recency),
			Key:       r.Key,
			Timestamp: r.Timestamp,
		}
		if r.Value != nil {
			value, err := json.Marshal(r.Value)
			if err != nil {
				return nil, fmt.Errorf("encode record value for %q: %w", r.Key, err)
			}
			row.Value = string(value)
		}

		rows = append(rows, row)
	}
	return rows, nil
}

// RowToRecord converts a SegmentRow back to a Record.
func RowToRecord(r *SegmentRow) (types.Record, error) {
	record := types.Record{
		Key:       r.Key,
		Timestamp: r.Timestamp,
	}

	if r.Value != "" {
		var value any
		if err := json.Unmarshal([]byte(r.Value), &value); err != nil {
			return types.Record{}, fmt.Errorf("decode record value for %q: %w", r.Key, err)
		}
		record.Value = value
	}

	return record, nil
}

// EntryWriter writes log entries to a Parquet file.
type EntryWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[EntryRow]
	rowCount int64
	closed   bool
}

// NewEntryWriter creates a new log entry Parquet writer.
func NewEntryWriter(path string, opts Options) (*EntryWriter, error) {
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}

	writer := parquet.NewGenericWriter[EntryRow](f,
		parquet.Compression(getCompression(opts.Compression)))

	return &EntryWriter{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write writes log entries to the Parquet file.
func (w *EntryWriter) Write(entries []types.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.Wrap(errors.ErrClosed, "entry writer")
	}

	rows := make([]EntryRow, len(entries))
	for i := range entries {
		row, err := EntryToRow(&entries[i])
		if err != nil {
			return err
		}
		rows[i] = row
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close closes the writer.
func (w *EntryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *EntryWriter) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *EntryWriter) Path() string {
	return w.path
}

// SegmentWriter writes segment records to a Parquet file.
type SegmentWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[SegmentRow]
	rowCount int64
	closed   bool
}

// NewSegmentWriter creates a new segment record Parquet writer.
func NewSegmentWriter(path string, opts Options) (*SegmentWriter, error) {
	f, err := createFile(path)
	if err != nil {
		return nil, err
	}

	writer := parquet.NewGenericWriter[SegmentRow](f,
		parquet.Compression(getCompression(opts.Compression)))

	return &SegmentWriter{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write writes all of a segment's records to the Parquet file.
func (w *SegmentWriter) Write(segments []types.Segment) error {
	if len(segments) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.Wrap(errors.ErrClosed, "segment writer")
	}

	for i := range segments {
		rows, err := SegmentToRows(&segments[i])
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			continue
		}

		n, err := w.writer.Write(rows)
		if err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
		w.rowCount += int64(n)
	}

	return nil
}

// Close closes the writer.
func (w *SegmentWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *SegmentWriter) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *SegmentWriter) Path() string {
	return w.path
}

func createFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	return f, nil
}
