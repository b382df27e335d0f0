package parquet

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/driftlake/driftlake/internal/storage/types"
)

// EntryReader reads log entries from a Parquet file.
type EntryReader struct {
	file   *os.File
	reader *parquet.GenericReader[EntryRow]
	path   string
}

// NewEntryReader creates a new log entry Parquet reader.
func NewEntryReader(path string) (*EntryReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size(), parquet.ReadBufferSize(1024*1024))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	reader := parquet.NewGenericReader[EntryRow](pf)

	return &EntryReader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// ReadAll reads all log entries from the file, ascending by position.
func (r *EntryReader) ReadAll() ([]types.LogEntry, error) {
	rows := make([]EntryRow, r.reader.NumRows())

	n, err := r.reader.Read(rows)
	if err != nil && n == 0 {
		return nil, err
	}

	entries := make([]types.LogEntry, n)
	for i := 0; i < n; i++ {
		entry, err := RowToEntry(&rows[i])
		if err != nil {
			return nil, err
		}
		entries[i] = entry
	}

	return entries, nil
}

// NumRows returns the total number of rows in the file.
func (r *EntryReader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *EntryReader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *EntryReader) Path() string {
	return r.path
}

// SegmentReader reads segment records from a Parquet file.
type SegmentReader struct {
	file   *os.File
	reader *parquet.GenericReader[SegmentRow]
	path   string
}

// NewSegmentReader creates a new segment record Parquet reader.
func NewSegmentReader(path string) (*SegmentReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	pf, err := parquet.OpenFile(f, stat.Size(), parquet.ReadBufferSize(1024*1024))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	reader := parquet.NewGenericReader[SegmentRow](pf)

	return &SegmentReader{
		file:   f,
		reader: reader,
		path:   path,
	}, nil
}

// ReadAll reads all rows and reassembles them into segments, grouped by
// segment identity in file order.
func (r *SegmentReader) ReadAll() ([]types.Segment, error) {
	rows := make([]SegmentRow, r.reader.NumRows())

	n, err := r.reader.Read(rows)
	if err != nil && n == 0 {
		return nil, err
	}

	var segments []types.Segment
	index := make(map[string]int)
	for i := 0; i < n; i++ {
		row := &rows[i]

		record, err := RowToRecord(row)
		if err != nil {
			return nil, err
		}

		pos, ok := index[row.SegmentID]
		if !ok {
			pos = len(segments)
			index[row.SegmentID] = pos
			segments = append(segments, types.Segment{
				ID:      row.SegmentID,
				Level:   int(row.Level),
				Recency: uint64(row.Recency),
			})
		}
		segments[pos].Records = append(segments[pos].Records, record)
	}

	return segments, nil
}

// NumRows returns the total number of rows in the file.
func (r *SegmentReader) NumRows() int64 {
	return r.reader.NumRows()
}

// Close closes the reader.
func (r *SegmentReader) Close() error {
	if err := r.reader.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// Path returns the file path.
func (r *SegmentReader) Path() string {
	return r.path
}

// FileInfo holds information about a Parquet snapshot file.
type FileInfo struct {
	Path    string
	Size    int64
	NumRows int64
}

// GetFileInfo returns information about a Parquet snapshot file.
func GetFileInfo(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	return &FileInfo{
		Path:    path,
		Size:    stat.Size(),
		NumRows: pf.NumRows(),
	}, nil
}
