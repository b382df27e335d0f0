// Package stats provides percentile tracking for engine operations
// using DDSketch. It backs the engine's observability surface with
// cheap, mergeable quantile summaries instead of raw samples.
package stats

import (
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"
)

// Well-known observation names recorded by the engine service.
const (
	ObsAppendMicros      = "append_micros"
	ObsLookupMicros      = "lookup_micros"
	ObsCompactionMicros  = "compaction_micros"
	ObsSegmentBatchSize  = "segment_batch_size"
	ObsRecoveryBatchSize = "recovery_batch_size"
)

// Tracker maintains one DDSketch per named observation series.
type Tracker struct {
	mu sync.Mutex

	accuracy float64
	sketches map[string]*ddsketch.DDSketch
	counts   map[string]int64
}

// New creates a tracker with the given relative accuracy
// (0.01 = 1% error).
func New(accuracy float64) *Tracker {
	if accuracy <= 0 || accuracy > 1 {
		accuracy = 0.01
	}
	return &Tracker{
		accuracy: accuracy,
		sketches: make(map[string]*ddsketch.DDSketch),
		counts:   make(map[string]int64),
	}
}

// Record adds a value to the named series.
func (t *Tracker) Record(name string, value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sketches[name]
	if !ok {
		created, err := ddsketch.NewDefaultDDSketch(t.accuracy)
		if err != nil {
			return
		}
		s = created
		t.sketches[name] = s
	}

	if err := s.Add(value); err != nil {
		return
	}
	t.counts[name]++
}

// Quantile returns the value at quantile q (0.0-1.0) for the named
// series, or false when the series is empty.
func (t *Tracker) Quantile(name string, q float64) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sketches[name]
	if !ok || t.counts[name] == 0 {
		return 0, false
	}

	v, err := s.GetValueAtQuantile(q)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Count returns the number of values recorded for the named series.
func (t *Tracker) Count(name string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[name]
}

// Summary holds common percentiles for one series.
type Summary struct {
	Name  string
	Count int64
	P50   float64
	P90   float64
	P99   float64
}

// Summaries returns a summary per recorded series.
func (t *Tracker) Summaries() []Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Summary, 0, len(t.sketches))
	for name, s := range t.sketches {
		if t.counts[name] == 0 {
			continue
		}
		p50, _ := s.GetValueAtQuantile(0.50)
		p90, _ := s.GetValueAtQuantile(0.90)
		p99, _ := s.GetValueAtQuantile(0.99)
		out = append(out, Summary{
			Name:  name,
			Count: t.counts[name],
			P50:   p50,
			P90:   p90,
			P99:   p99,
		})
	}
	return out
}

// Reset drops all recorded series.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sketches = make(map[string]*ddsketch.DDSketch)
	t.counts = make(map[string]int64)
}
