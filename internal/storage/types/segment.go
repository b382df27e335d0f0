package types

import "time"

// Record is a single key/value write supplied to the segment store.
type Record struct {
	// Key identifies the series or row the value belongs to.
	Key string

	// Value is the opaque stored value.
	Value any

	// Timestamp is the write time in Unix milliseconds. Compaction keeps
	// the record with the maximum timestamp per key.
	Timestamp int64
}

// Time returns the record timestamp as a time.Time.
func (r *Record) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// Segment is an immutable batch of records, analogous to an SSTable.
// Once constructed, its record slice is never mutated; compaction
// replaces whole segments instead of editing them.
type Segment struct {
	// ID uniquely identifies the segment.
	ID string

	// Level is the tier the segment belongs to.
	Level int

	// Recency is the monotonically increasing insertion rank. Lookups
	// scan segments in descending recency so the freshest write wins.
	Recency uint64

	// Records holds the segment's key/value/timestamp rows.
	Records []Record
}

// Clone returns a deep copy of the segment's record slice wrapped in a
// new Segment value, so callers can hold results without aliasing
// store-internal state.
func (s *Segment) Clone() Segment {
	out := Segment{
		ID:      s.ID,
		Level:   s.Level,
		Recency: s.Recency,
	}
	if len(s.Records) > 0 {
		out.Records = make([]Record, len(s.Records))
		copy(out.Records, s.Records)
	}
	return out
}

// Best returns the record with the maximum timestamp for key within the
// segment, or false if the segment does not contain the key. A segment
// may legitimately carry duplicate keys when a producer batches several
// writes to the same series.
func (s *Segment) Best(key string) (Record, bool) {
	var best Record
	found := false
	for i := range s.Records {
		r := &s.Records[i]
		if r.Key != key {
			continue
		}
		if !found || r.Timestamp >= best.Timestamp {
			best = *r
			found = true
		}
	}
	return best, found
}

// Len returns the number of records in the segment.
func (s *Segment) Len() int {
	return len(s.Records)
}
