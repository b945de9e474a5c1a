// Package rtqueue implements the lock-free ring buffers that carry
// realtime events between the audio callback thread and the non-realtime
// controller world: a single-producer-single-consumer ring buffer using
// two atomic indices plus cache-line padding, and a multi-producer variant
// built from one SPSC ring per producer, merged at the consumer.
package rtqueue

import (
	"sync/atomic"

	"github.com/rjarnstrom/plexus"
)

// cacheLinePad separates the head and tail counters onto their own cache
// lines to avoid false sharing between the producer and consumer.
type cacheLinePad struct {
	_ [64 - 8]byte
}

// SPSC is a fixed-capacity single-producer-single-consumer ring buffer of
// plexus.RTEvent. Capacity must be a power of two. Push is safe from
// exactly one producer goroutine; Pop is safe from exactly one (possibly
// different) consumer goroutine; neither allocates.
type SPSC struct {
	mask uint64
	buf  []plexus.RTEvent

	head    atomic.Uint64 // next slot to write; producer-owned
	_       cacheLinePad
	tail    atomic.Uint64 // next slot to read; consumer-owned
	_       cacheLinePad

	drops atomic.Uint64
}

// NewSPSC constructs a ring buffer with capacity rounded up to the next
// power of two.
func NewSPSC(capacity int) *SPSC {
	capacity = nextPow2(capacity)
	return &SPSC{mask: uint64(capacity - 1), buf: make([]plexus.RTEvent, capacity)}
}

func nextPow2(n int) int {
	if n < 2 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// TryPush enqueues ev. On overflow, the newest event is dropped and the
// drop is counted; TryPush still returns false in that case.
func (q *SPSC) TryPush(ev plexus.RTEvent) bool {
	head := q.head.Load()
	tail := q.tail.Load()
	if head-tail >= uint64(len(q.buf)) {
		q.drops.Add(1)
		return false
	}
	q.buf[head&q.mask] = ev
	q.head.Store(head + 1)
	return true
}

// TryPop dequeues one event, if any is available.
func (q *SPSC) TryPop() (plexus.RTEvent, bool) {
	tail := q.tail.Load()
	head := q.head.Load()
	if tail >= head {
		return plexus.RTEvent{}, false
	}
	ev := q.buf[tail&q.mask]
	q.tail.Store(tail + 1)
	return ev, true
}

// Len reports the (approximate, racy against concurrent Push/Pop) number
// of queued events.
func (q *SPSC) Len() int { return int(q.head.Load() - q.tail.Load()) }

// Drops reports how many events have been dropped due to overflow since
// construction.
func (q *SPSC) Drops() uint64 { return q.drops.Load() }

// MPSC is a multi-producer-single-consumer queue built from one SPSC lane
// per producer, merged at the single consumer by round-robin draining.
// Producers register once (via Lane) and keep using the returned lane;
// this keeps every producer's push allocation-free.
type MPSC struct {
	laneCap int
	lanes   []*SPSC
	next    atomic.Uint64 // consumer-only round-robin cursor
}

// NewMPSC constructs an MPSC queue with the given number of producer lanes
// (an upper bound on concurrent producers) and per-lane capacity.
func NewMPSC(numLanes, laneCapacity int) *MPSC {
	m := &MPSC{laneCap: laneCapacity, lanes: make([]*SPSC, numLanes)}
	for i := range m.lanes {
		m.lanes[i] = NewSPSC(laneCapacity)
	}
	return m
}

// Lane returns the dedicated SPSC producer lane for producer index i. The
// caller (typically one dispatcher worker per lane) always pushes through
// the same lane.
func (m *MPSC) Lane(i int) *SPSC { return m.lanes[i%len(m.lanes)] }

// TryPop drains lanes round-robin, returning the first available event.
// Called only from the single consumer (the realtime engine).
func (m *MPSC) TryPop() (plexus.RTEvent, bool) {
	n := uint64(len(m.lanes))
	start := m.next.Load()
	for i := uint64(0); i < n; i++ {
		idx := (start + i) % n
		if ev, ok := m.lanes[idx].TryPop(); ok {
			m.next.Store(idx + 1)
			return ev, true
		}
	}
	return plexus.RTEvent{}, false
}

// Drops sums the drop counters across every lane.
func (m *MPSC) Drops() uint64 {
	var total uint64
	for _, l := range m.lanes {
		total += l.Drops()
	}
	return total
}
