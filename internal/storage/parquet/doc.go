// Package parquet implements Parquet snapshot reading and writing for
// log entries and segment records.
//
// The package provides:
//   - EntryWriter/EntryReader for write-ahead log snapshots
//   - SegmentWriter/SegmentReader for segment record snapshots
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
//   - An Exporter that snapshots both surfaces concurrently
package parquet
