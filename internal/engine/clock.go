package engine

import "sync/atomic"

// Clock is a monotonic logical clock for pipeline events.
//
// Every event of a run is stamped with a strictly increasing seq number from
// this clock, so the recorded order of events never depends on wall-clock
// time and two runs over the same input produce the same sequence.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// The pipeline itself is single-threaded and is the only caller of Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
