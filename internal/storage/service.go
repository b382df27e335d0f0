package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/driftlake/driftlake/internal/errors"
	"github.com/driftlake/driftlake/internal/logging"
	"github.com/driftlake/driftlake/internal/storage/compaction"
	"github.com/driftlake/driftlake/internal/storage/config"
	"github.com/driftlake/driftlake/internal/storage/metrics"
	"github.com/driftlake/driftlake/internal/storage/parquet"
	"github.com/driftlake/driftlake/internal/storage/query"
	"github.com/driftlake/driftlake/internal/storage/recovery"
	"github.com/driftlake/driftlake/internal/storage/stats"
	"github.com/driftlake/driftlake/internal/storage/types"
	"github.com/driftlake/driftlake/internal/storage/wal"
)

var log = logging.Component("storage")

// Service is the main storage service that orchestrates all components.
type Service struct {
	mu sync.RWMutex

	config *config.Config

	// Components
	wal        *wal.WAL
	compaction *compaction.Manager
	query      *query.Service
	exporter   *parquet.Exporter
	recovery   *recovery.Driver
	stats      *stats.Tracker
	metrics    *metrics.Metrics

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	startTime time.Time
}

// New creates a new storage service.
func New(cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	w := wal.New(wal.Options{MaxEntries: cfg.WAL.MaxEntries})

	comp := compaction.New(compaction.Options{
		MergeThreshold: cfg.Compaction.MergeThreshold,
		AutoCompact:    cfg.Compaction.AutoCompact,
	})

	qry, err := query.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create query: %w", err)
	}

	var exporter *parquet.Exporter
	if cfg.Export.Enabled {
		exporter = parquet.NewExporter(cfg.WALExportDir(), cfg.SegmentExportDir(), parquet.Options{
			Compression:      parquet.ParseCompressionType(cfg.Export.Compression.Algorithm),
			CompressionLevel: cfg.Export.Compression.Level,
		})
	}

	checkpoints := recovery.NewFileCheckpointStore(filepath.Join(cfg.DataDir, "checkpoint"))
	rec := recovery.NewDriver(w, checkpoints)

	var tracker *stats.Tracker
	if cfg.Stats.Enabled {
		tracker = stats.New(cfg.Stats.Accuracy)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		config:     cfg,
		wal:        w,
		compaction: comp,
		query:      qry,
		exporter:   exporter,
		recovery:   rec,
		stats:      tracker,
		metrics:    metrics.New(),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start starts the background workers.
func (s *Service) Start() error {
	if s.running.Load() {
		return errors.ErrAlreadyRunning
	}

	s.running.Store(true)
	s.startTime = time.Now()

	if s.config.WAL.CheckpointInterval > 0 {
		s.wg.Add(1)
		go s.checkpointWorker()
	}

	log.Info("storage service started",
		"max_entries", s.config.WAL.MaxEntries,
		"merge_threshold", s.config.Compaction.MergeThreshold,
		"export_enabled", s.config.Export.Enabled)

	return nil
}

// Stop stops the service gracefully. A final checkpoint is taken and
// persisted before shutdown.
func (s *Service) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	s.cancel()
	s.wg.Wait()

	var errs []error

	if _, err := s.Checkpoint(); err != nil {
		errs = append(errs, fmt.Errorf("final checkpoint: %w", err))
	}

	if err := s.query.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close query: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("stop errors: %v", errs)
	}

	log.Info("storage service stopped")
	return nil
}

// Append logs an operation and returns its sequence number.
func (s *Service) Append(operation, table string, data any) (uint64, error) {
	start := time.Now()

	lsn, err := s.wal.Append(operation, table, data)
	if err != nil {
		return 0, err
	}

	s.metrics.EntryAppended()
	s.metrics.ObserveDuration("append", time.Since(start).Seconds())
	s.observe(stats.ObsAppendMicros, float64(time.Since(start).Microseconds()))
	s.syncGauges()

	return lsn, nil
}

// Commit marks the entry as committed. Unknown sequence numbers are
// ignored.
func (s *Service) Commit(lsn uint64) {
	s.wal.Commit(lsn)
	s.metrics.EntryCommitted()
	s.syncGauges()
}

// Entry returns a copy of the retained entry at the given sequence
// number.
func (s *Service) Entry(lsn uint64) (types.LogEntry, bool) {
	return s.wal.Entry(lsn)
}

// Uncommitted returns copies of all uncommitted entries, ascending.
func (s *Service) Uncommitted() []types.LogEntry {
	return s.wal.Uncommitted()
}

// Checkpoint takes a checkpoint, persists it for recovery and, when
// export is enabled, snapshots the engine state to Parquet.
func (s *Service) Checkpoint() (uint64, error) {
	before := s.wal.Stats().EntriesEvicted

	cp := s.wal.Checkpoint()
	s.metrics.CheckpointTaken()
	s.metrics.EntriesEvicted(int(s.wal.Stats().EntriesEvicted - before))
	s.syncGauges()

	if err := s.recovery.SaveCheckpoint(cp); err != nil {
		return cp, errors.Wrap(err, "persist checkpoint")
	}

	if s.exporter != nil {
		entries := s.wal.Recover(0)
		segments := s.compaction.Segments()
		if _, err := s.exporter.ExportSnapshot(s.ctx, entries, segments); err != nil {
			return cp, errors.Wrap(err, "export snapshot")
		}
	}

	return cp, nil
}

// Replay replays the log from the last persisted checkpoint through
// the applier.
func (s *Service) Replay(ctx context.Context, applier recovery.Applier) (*recovery.Result, error) {
	result, err := s.recovery.Replay(ctx, applier)
	if err == nil {
		s.metrics.RecoveryServed()
		s.observe(stats.ObsRecoveryBatchSize, float64(result.Applied+result.InFlight))
	}
	return result, err
}

// AddSegment adds a segment of records to the given level.
func (s *Service) AddSegment(level int, records []types.Record) error {
	if err := s.compaction.AddSegment(level, records); err != nil {
		return err
	}

	s.metrics.SegmentAdded()
	s.observe(stats.ObsSegmentBatchSize, float64(len(records)))
	s.metrics.SetSegmentCount(s.compaction.SegmentCount())
	return nil
}

// MarkDeleted records a tombstone for the key.
func (s *Service) MarkDeleted(key string) error {
	if err := s.compaction.MarkDeleted(key); err != nil {
		return err
	}
	s.metrics.TombstoneRecorded()
	return nil
}

// Compact merges all levels and applies pending tombstones.
func (s *Service) Compact() error {
	start := time.Now()

	if err := s.compaction.Compact(); err != nil {
		return err
	}

	s.metrics.CompactionRun()
	s.metrics.ObserveDuration("compact", time.Since(start).Seconds())
	s.observe(stats.ObsCompactionMicros, float64(time.Since(start).Microseconds()))
	s.metrics.SetSegmentCount(s.compaction.SegmentCount())
	return nil
}

// Lookup returns the freshest non-deleted value for the key.
func (s *Service) Lookup(key string) (any, bool) {
	start := time.Now()

	value, found := s.compaction.Lookup(key)

	s.metrics.LookupServed(found)
	s.metrics.ObserveDuration("lookup", time.Since(start).Seconds())
	s.observe(stats.ObsLookupMicros, float64(time.Since(start).Microseconds()))
	return value, found
}

// Segments returns copies of all segments, ascending by recency.
func (s *Service) Segments() []types.Segment {
	return s.compaction.Segments()
}

// ExportSnapshot writes an on-demand Parquet snapshot of the current
// state.
func (s *Service) ExportSnapshot(ctx context.Context) (*parquet.SnapshotResult, error) {
	if s.exporter == nil {
		return nil, errors.Wrap(errors.ErrInvalidConfig, "export disabled")
	}
	return s.exporter.ExportSnapshot(ctx, s.wal.Recover(0), s.compaction.Segments())
}

// KeyHistory queries a key's snapshotted record history.
func (s *Service) KeyHistory(ctx context.Context, q query.KeyHistoryQuery) ([]query.KeyVersion, error) {
	return s.query.KeyHistory(ctx, q)
}

// Audit queries snapshotted log entries.
func (s *Service) Audit(ctx context.Context, q query.AuditQuery) ([]query.AuditEntry, error) {
	return s.query.Audit(ctx, q)
}

// QuerySQL executes a raw SQL query against the snapshots.
func (s *Service) QuerySQL(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	return s.query.ExecuteSQL(ctx, sql)
}

// checkpointWorker periodically checkpoints the log.
func (s *Service) checkpointWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.WAL.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if cp, err := s.Checkpoint(); err != nil {
				log.Error("periodic checkpoint failed", "error", err)
			} else {
				log.Debug("periodic checkpoint", "lsn", cp)
			}
		}
	}
}

func (s *Service) observe(name string, value float64) {
	if s.stats != nil {
		s.stats.Record(name, value)
	}
}

func (s *Service) syncGauges() {
	s.metrics.SetRetention(s.wal.Len(), len(s.wal.Uncommitted()))
}

// Stats returns combined statistics.
func (s *Service) Stats() ServiceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var uptime time.Duration
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime)
	}

	combined := ServiceStats{
		Running:    s.running.Load(),
		Uptime:     uptime,
		WAL:        s.wal.Stats(),
		Compaction: s.compaction.Stats(),
		Query:      s.query.Stats(),
	}
	if s.stats != nil {
		combined.Operations = s.stats.Summaries()
	}
	return combined
}

// ServiceStats holds combined statistics.
type ServiceStats struct {
	Running    bool
	Uptime     time.Duration
	WAL        wal.Stats
	Compaction compaction.Stats
	Query      query.Stats
	Operations []stats.Summary
}

// Config returns the current configuration.
func (s *Service) Config() *config.Config {
	return s.config
}

// Metrics returns the engine's Prometheus metrics.
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// IsRunning returns whether the service is running.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}
