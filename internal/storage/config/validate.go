package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	// DataDir
	if c.DataDir == "" && c.Export.Enabled {
		errs = append(errs, errors.New("data_dir is required when export is enabled"))
	}

	// WAL
	if err := c.WAL.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("wal: %w", err))
	}

	// Compaction
	if err := c.Compaction.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("compaction: %w", err))
	}

	// Export
	if err := c.Export.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("export: %w", err))
	}

	// Query
	if err := c.Query.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("query: %w", err))
	}

	// Stats
	if err := c.Stats.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("stats: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the WAL configuration.
func (c *WALConfig) Validate() error {
	var errs []error

	if c.MaxEntries <= 0 {
		errs = append(errs, errors.New("max_entries must be positive"))
	}

	if c.CheckpointInterval < 0 {
		errs = append(errs, errors.New("checkpoint_interval must be non-negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the compaction configuration.
func (c *CompactionConfig) Validate() error {
	var errs []error

	if c.MergeThreshold < 2 {
		errs = append(errs, errors.New("merge_threshold must be at least 2"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the export configuration.
func (c *ExportConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error

	validAlgorithms := map[string]bool{
		"snappy": true,
		"zstd":   true,
		"gzip":   true,
		"lz4":    true,
		"none":   true,
		"":       true, // Empty defaults to zstd
	}
	if !validAlgorithms[c.Compression.Algorithm] {
		errs = append(errs, fmt.Errorf("compression.algorithm must be one of: snappy, zstd, gzip, lz4, none"))
	}

	if c.Compression.Algorithm == "zstd" && (c.Compression.Level < 0 || c.Compression.Level > 22) {
		errs = append(errs, errors.New("compression.level for zstd must be between 0 and 22"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the query configuration.
func (c *QueryConfig) Validate() error {
	var errs []error

	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}

	if c.MaxRows <= 0 {
		errs = append(errs, errors.New("max_rows must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks the stats configuration.
func (c *StatsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error

	if c.Accuracy <= 0 || c.Accuracy > 1 {
		errs = append(errs, errors.New("accuracy must be between 0 and 1"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
