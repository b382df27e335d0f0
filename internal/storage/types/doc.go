// Package types defines the core data types used throughout the storage engine.
//
// Key types:
//   - LogEntry: A single write-ahead log record with its LSN and commit state
//   - Record: A key/value/timestamp triple supplied by a segment writer
//   - Segment: An immutable batch of records at a level, ordered by recency
package types
