package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	defaults "github.com/driftlake/driftlake/config"
)

// Config represents the complete storage engine configuration.
type Config struct {
	// DataDir is the root directory for exported snapshots.
	DataDir string `yaml:"data_dir"`

	// WAL configures the write-ahead log.
	WAL WALConfig `yaml:"wal"`

	// Compaction configures the segment store and compaction manager.
	Compaction CompactionConfig `yaml:"compaction"`

	// Export configures Parquet snapshot export.
	Export ExportConfig `yaml:"export"`

	// Query configures the query service.
	Query QueryConfig `yaml:"query"`

	// Stats configures percentile statistics tracking.
	Stats StatsConfig `yaml:"stats"`
}

// WALConfig configures the write-ahead log.
type WALConfig struct {
	// MaxEntries is the soft capacity bound. The log may exceed it when
	// uncommitted entries pin the tail; correctness outranks the bound.
	MaxEntries int `yaml:"max_entries"`

	// CheckpointInterval is the interval for the periodic checkpoint
	// worker. Zero disables periodic checkpointing.
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// CompactionConfig configures the segment store and compaction manager.
type CompactionConfig struct {
	// MergeThreshold is the per-level segment count that triggers an
	// automatic compaction.
	MergeThreshold int `yaml:"merge_threshold"`

	// AutoCompact enables the automatic threshold trigger. Manual
	// Compact calls are always permitted.
	AutoCompact bool `yaml:"auto_compact"`
}

// ExportConfig configures Parquet snapshot export.
type ExportConfig struct {
	// Enabled enables snapshot export.
	Enabled bool `yaml:"enabled"`

	// Compression configures Parquet compression.
	Compression CompressionConfig `yaml:"compression"`
}

// CompressionConfig configures Parquet compression.
type CompressionConfig struct {
	// Algorithm is the compression algorithm: snappy, zstd, lz4, none.
	Algorithm string `yaml:"algorithm"`

	// Level is the compression level (for zstd: 1-22).
	Level int `yaml:"level"`
}

// QueryConfig configures the query service.
type QueryConfig struct {
	// MemoryLimit is the DuckDB memory limit.
	MemoryLimit string `yaml:"memory_limit"`

	// Timeout is the query timeout.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRows is the maximum number of rows returned.
	MaxRows int `yaml:"max_rows"`
}

// StatsConfig configures percentile statistics tracking.
type StatsConfig struct {
	// Enabled enables DDSketch operation statistics.
	Enabled bool `yaml:"enabled"`

	// Accuracy is the relative accuracy (0.01 = 1% error).
	Accuracy float64 `yaml:"accuracy"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "/var/lib/driftlake/storage",
		WAL: WALConfig{
			MaxEntries:         defaults.DefaultWALMaxEntries,
			CheckpointInterval: defaults.DefaultCheckpointInterval,
		},
		Compaction: CompactionConfig{
			MergeThreshold: defaults.DefaultMergeThreshold,
			AutoCompact:    defaults.DefaultAutoCompact,
		},
		Export: ExportConfig{
			Enabled: false,
			Compression: CompressionConfig{
				Algorithm: defaults.DefaultCompressionAlgorithm,
				Level:     defaults.DefaultCompressionLevel,
			},
		},
		Query: QueryConfig{
			MemoryLimit: defaults.DefaultQueryMemoryLimit,
			Timeout:     defaults.DefaultQueryTimeout,
			MaxRows:     defaults.DefaultQueryMaxRows,
		},
		Stats: StatsConfig{
			Enabled:  true,
			Accuracy: defaults.DefaultStatsAccuracy,
		},
	}
}

// WALExportDir returns the directory for exported WAL snapshots.
func (c *Config) WALExportDir() string {
	return filepath.Join(c.DataDir, "wal")
}

// SegmentExportDir returns the directory for exported segment snapshots.
func (c *Config) SegmentExportDir() string {
	return filepath.Join(c.DataDir, "segments")
}

// EnsureDirectories creates the export directories if they do not exist.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.DataDir, c.WALExportDir(), c.SegmentExportDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
