// Package storage implements the driftlake storage engine: a
// commit-tracked write-ahead log feeding an LSM-style segment store.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  Write-Ahead│────▶│   Segment   │────▶│   Parquet   │
//	│     Log     │     │    Store    │     │  Snapshots  │
//	└─────────────┘     └─────────────┘     └─────────────┘
//	       │                   │                   │
//	       ▼                   ▼                   ▼
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│  Recovery   │     │ Compaction  │     │   DuckDB    │
//	│   Replay    │     │   Manager   │     │   Queries   │
//	└─────────────┘     └─────────────┘     └─────────────┘
//
// The storage engine provides:
//   - Sequenced, commit-tracked logging with capacity-bounded eviction
//   - Checkpointing and replay-based recovery
//   - Leveled segments with tombstone deletion and k-way compaction
//   - Parquet snapshot export for offline analytics
//   - DuckDB query access over exported snapshots
//   - DDSketch-based operation percentiles and Prometheus metrics
package storage
