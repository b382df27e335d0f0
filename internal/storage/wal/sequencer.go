package wal

import "sync/atomic"

// Sequencer issues strictly increasing, globally unique log sequence
// numbers starting at 1. It is safe for concurrent use on its own, but
// indivisibility of allocation and entry insertion is provided by the
// WAL's critical section, not by the sequencer.
type Sequencer struct {
	atomic.Uint64
}

// NewSequencer creates a sequencer whose first Next returns init+1.
func NewSequencer(init uint64) *Sequencer {
	var s Sequencer
	s.Store(init)
	return &s
}

// Next returns a new LSN one greater than the previous.
func (s *Sequencer) Next() uint64 {
	return s.Add(1)
}

// Current returns the highest LSN issued so far, or 0 if none.
func (s *Sequencer) Current() uint64 {
	return s.Load()
}
