// Package config provides configuration defaults and utilities
// for the driftlake storage engine.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml.
package config

import "time"

// =============================================================================
// Write-Ahead Log Defaults
// =============================================================================

const (
	// DefaultWALMaxEntries is the soft capacity bound of the log.
	// Uncommitted entries pin the tail, so the log may exceed it.
	// Override via config: wal.max_entries
	DefaultWALMaxEntries = 10000

	// DefaultCheckpointInterval is the periodic checkpoint interval.
	// Zero disables the periodic checkpoint worker.
	// Override via config: wal.checkpoint_interval
	DefaultCheckpointInterval = 0 * time.Second
)

// =============================================================================
// Compaction Defaults
// =============================================================================

const (
	// DefaultMergeThreshold is the per-level segment count that triggers
	// an automatic compaction.
	// Range: 2-64
	// Override via config: compaction.merge_threshold
	DefaultMergeThreshold = 4

	// DefaultAutoCompact enables the automatic threshold trigger.
	// Override via config: compaction.auto_compact
	DefaultAutoCompact = true
)

// =============================================================================
// Snapshot Export Defaults
// =============================================================================

const (
	// DefaultCompressionAlgorithm is the Parquet compression codec.
	// One of: snappy, zstd, lz4, none.
	// Override via config: export.compression.algorithm
	DefaultCompressionAlgorithm = "zstd"

	// DefaultCompressionLevel is the zstd compression level.
	// Range: 0-22
	// Override via config: export.compression.level
	DefaultCompressionLevel = 3
)

// =============================================================================
// Query Defaults
// =============================================================================

const (
	// DefaultQueryMemoryLimit caps DuckDB memory usage.
	// Override via config: query.memory_limit
	DefaultQueryMemoryLimit = "2GB"

	// DefaultQueryTimeout is the per-query timeout.
	// Override via config: query.timeout
	DefaultQueryTimeout = 30 * time.Second

	// DefaultQueryMaxRows is the maximum number of rows a query returns.
	// Override via config: query.max_rows
	DefaultQueryMaxRows = 1000000
)

// =============================================================================
// Statistics Defaults
// =============================================================================

const (
	// DefaultStatsAccuracy is the DDSketch relative accuracy
	// (0.01 = 1% error on reported quantiles).
	// Override via config: stats.accuracy
	DefaultStatsAccuracy = 0.01
)

// =============================================================================
// Daemon Defaults
// =============================================================================

const (
	// DefaultMetricsListen is the metrics HTTP listen address.
	// Override via flag: -metrics-listen
	DefaultMetricsListen = "127.0.0.1:9464"

	// DefaultDrainTimeoutSec is how long shutdown waits for in-flight
	// work. This follows the Kubernetes convention
	// (terminationGracePeriodSeconds = 30s).
	DefaultDrainTimeoutSec = 30
)
