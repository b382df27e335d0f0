// Package compaction implements the segment store and LSM-style
// compaction manager: per-level lists of immutable key/value segments,
// tombstone deletion, k-way merge and point lookup.
package compaction

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/driftlake/driftlake/internal/errors"
	"github.com/driftlake/driftlake/internal/logging"
	"github.com/driftlake/driftlake/internal/storage/types"
)

var log = logging.Component("compaction")

// Manager owns the per-level segment lists and the active tombstone set.
//
// Level slices are treated as copy-on-write: mutation always installs a
// freshly built slice under the write lock, so a lookup that snapshots
// the lists under the read lock can scan without holding any lock and
// never observes a partially merged state.
//
// Tombstones are recency-stamped. A tombstone masks every occurrence of
// its key in segments at or below the stamp; a segment added afterwards
// resurrects the key. Compaction applies tombstones and clears them.
type Manager struct {
	mu sync.RWMutex

	levels     map[int][]*types.Segment
	tombstones map[string]uint64
	recency    uint64

	opts Options

	// Coalesces concurrent Compact calls into one merge.
	sf singleflight.Group

	// Statistics
	stats Stats
}

// Options configures the compaction manager.
type Options struct {
	// MergeThreshold is the per-level segment count that triggers an
	// automatic compaction after AddSegment.
	MergeThreshold int

	// AutoCompact enables the automatic threshold trigger. Manual
	// Compact calls are always permitted.
	AutoCompact bool
}

// DefaultOptions returns default compaction options.
func DefaultOptions() Options {
	return Options{
		MergeThreshold: 4,
		AutoCompact:    true,
	}
}

// Stats holds compaction statistics.
type Stats struct {
	SegmentsAdded     int64
	Compactions       int64
	SegmentsMerged    int64
	RecordsScanned    int64
	RecordsKept       int64
	TombstonesApplied int64
	Lookups           int64
	LookupMisses      int64
}

// New creates a new compaction manager.
func New(opts Options) *Manager {
	if opts.MergeThreshold < 2 {
		opts.MergeThreshold = DefaultOptions().MergeThreshold
	}

	return &Manager{
		levels:     make(map[int][]*types.Segment),
		tombstones: make(map[string]uint64),
		opts:       opts,
	}
}

// AddSegment appends an immutable segment built from records to the
// level's list at the next recency rank. Reaching the merge threshold
// triggers an automatic compaction when enabled.
func (m *Manager) AddSegment(level int, records []types.Record) error {
	if level < 0 {
		return errors.NewInvalidValue("level", level, "must be non-negative")
	}
	if len(records) == 0 {
		return errors.NewMissingField("records")
	}
	for i := range records {
		if records[i].Key == "" {
			return errors.NewInvalidValue("records", i, "record key must be non-empty")
		}
	}

	m.mu.Lock()

	m.recency++
	seg := &types.Segment{
		ID:      uuid.NewString(),
		Level:   level,
		Recency: m.recency,
		Records: append([]types.Record(nil), records...),
	}

	// Copy-on-write append keeps existing snapshots valid.
	current := m.levels[level]
	next := make([]*types.Segment, len(current), len(current)+1)
	copy(next, current)
	m.levels[level] = append(next, seg)

	m.stats.SegmentsAdded++
	shouldCompact := m.opts.AutoCompact && len(m.levels[level]) >= m.opts.MergeThreshold

	m.mu.Unlock()

	if shouldCompact {
		return m.Compact()
	}
	return nil
}

// MarkDeleted records a tombstone for key. The tombstone masks every
// occurrence of the key in lookups and in the next compaction until a
// segment added after this call supplies a fresh record for the key.
func (m *Manager) MarkDeleted(key string) error {
	if key == "" {
		return errors.NewMissingField("key")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.tombstones[key] = m.recency
	return nil
}

// Compact merges every level's segments: a single pass keeps the
// maximum-timestamp record per key among non-tombstoned occurrences,
// omits tombstoned keys from the output, replaces each level's inputs
// with one merged segment at the inputs' newest recency rank, and
// clears the applied tombstones. Concurrent callers share one merge.
func (m *Manager) Compact() error {
	_, err, _ := m.sf.Do("compact", func() (interface{}, error) {
		m.compact()
		return nil, nil
	})
	return err
}

func (m *Manager) compact() {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := 0
	for level, segs := range m.levels {
		if len(segs) == 0 {
			continue
		}
		out := m.mergeLevelLocked(level, segs)
		if out == nil {
			// Every record was tombstoned away; the level is now empty.
			m.levels[level] = nil
			continue
		}
		m.levels[level] = []*types.Segment{out}
		merged += len(segs)
	}

	// Deletions are now durably applied everywhere.
	m.stats.TombstonesApplied += int64(len(m.tombstones))
	m.tombstones = make(map[string]uint64)

	m.stats.Compactions++
	m.stats.SegmentsMerged += int64(merged)

	log.Debug("compaction complete", "segments_merged", merged)
}

// mergeLevelLocked reduces a level's segments to one. Segments are
// scanned in ascending recency so that, for equal timestamps, the
// later-added record wins, matching the newest-first lookup order.
// The merged segment inherits the newest input recency: a level merge
// must not reorder its output relative to segments in other levels.
func (m *Manager) mergeLevelLocked(level int, segs []*types.Segment) *types.Segment {
	best := make(map[string]types.Record)
	var maxRecency uint64

	for _, seg := range segs {
		if seg.Recency > maxRecency {
			maxRecency = seg.Recency
		}
		for i := range seg.Records {
			r := &seg.Records[i]
			m.stats.RecordsScanned++

			if stamp, dead := m.tombstones[r.Key]; dead && seg.Recency <= stamp {
				continue
			}
			if prev, ok := best[r.Key]; !ok || r.Timestamp >= prev.Timestamp {
				best[r.Key] = *r
			}
		}
	}

	if len(best) == 0 {
		return nil
	}

	records := make([]types.Record, 0, len(best))
	for _, r := range best {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Key < records[j].Key
	})

	m.stats.RecordsKept += int64(len(records))

	return &types.Segment{
		ID:      uuid.NewString(),
		Level:   level,
		Recency: maxRecency,
		Records: records,
	}
}

// Lookup scans segments newest-recency-first and returns the first
// matching, non-tombstoned record's value. It is correct on uncompacted
// data: the newest-first order guarantees the freshest write is found
// first even across duplicate keys in separate un-merged segments.
func (m *Manager) Lookup(key string) (any, bool) {
	m.mu.RLock()
	segs := m.flattenLocked()
	stamp, dead := m.tombstones[key]
	m.mu.RUnlock()

	m.recordLookup()

	// Newest first.
	for i := len(segs) - 1; i >= 0; i-- {
		seg := segs[i]
		r, ok := seg.Best(key)
		if !ok {
			continue
		}
		if dead && seg.Recency <= stamp {
			// The newest occurrence predates the tombstone, so every
			// older one does too.
			break
		}
		return r.Value, true
	}

	m.recordMiss()
	return nil, false
}

// Segments returns copies of all segments across levels, ascending by
// recency.
func (m *Manager) Segments() []types.Segment {
	m.mu.RLock()
	segs := m.flattenLocked()
	m.mu.RUnlock()

	out := make([]types.Segment, len(segs))
	for i, s := range segs {
		out[i] = s.Clone()
	}
	return out
}

// SegmentCount returns the total number of segments across levels.
func (m *Manager) SegmentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, segs := range m.levels {
		n += len(segs)
	}
	return n
}

// LevelCount returns the number of segments in a level.
func (m *Manager) LevelCount(level int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.levels[level])
}

// Tombstones returns the currently active tombstoned keys.
func (m *Manager) Tombstones() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.tombstones))
	for k := range m.tombstones {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns a snapshot of compaction statistics.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// flattenLocked collects every segment across levels, ascending by
// recency. The returned slice holds pointers to immutable segments, so
// it stays valid after the lock is released.
func (m *Manager) flattenLocked() []*types.Segment {
	var segs []*types.Segment
	for _, ls := range m.levels {
		segs = append(segs, ls...)
	}
	sort.Slice(segs, func(i, j int) bool {
		return segs[i].Recency < segs[j].Recency
	})
	return segs
}

func (m *Manager) recordLookup() {
	m.mu.Lock()
	m.stats.Lookups++
	m.mu.Unlock()
}

func (m *Manager) recordMiss() {
	m.mu.Lock()
	m.stats.LookupMisses++
	m.mu.Unlock()
}
