// Package timing implements rolling CPU-timing statistics for the
// controller's Timings service: per-engine, per-track and per-processor
// {avg, min, max} over a rolling window (default 1024 blocks), accumulated
// without per-sample allocation and without a blocking lock on the write
// path, since Window.Add and Registry.Record both run on the realtime
// render thread once timing collection is enabled.
package timing

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rjarnstrom/plexus"
)

// DefaultWindow is the default rolling-window size, in blocks.
const DefaultWindow = 1024

// Stats is a snapshot of {avg, min, max} over the current window.
type Stats struct {
	Avg, Min, Max time.Duration
	Samples       int
}

// Window accumulates a fixed-size rolling window of durations. Add is
// lock-free: each sample lands in samples[idx%len(samples)] via an atomic
// slot swap, and the running sum is kept up to date with an atomic add of
// (new - evicted). Multiple goroutines may call Add on the same Window
// concurrently (the engine-wide window is fed by every render worker), so
// the slot index itself comes from an atomic counter rather than a plain
// field. Snapshot, which never runs on the realtime thread, rescans the
// ring for min/max under no lock at all.
type Window struct {
	samples []atomic.Int64 // nanoseconds; slot 0 is written before slot i>0 ever is
	next    atomic.Uint64
	total   atomic.Int64
	sum     atomic.Int64
}

// NewWindow constructs a rolling window of the given size in samples.
func NewWindow(size int) *Window {
	if size < 1 {
		size = DefaultWindow
	}
	return &Window{samples: make([]atomic.Int64, size)}
}

// Add records one block's duration. Safe to call concurrently and never
// blocks.
func (w *Window) Add(d time.Duration) {
	idx := w.next.Add(1) - 1
	slot := int(idx % uint64(len(w.samples)))
	old := w.samples[slot].Swap(int64(d))
	w.sum.Add(int64(d) - old)
	w.total.Add(1)
}

// Snapshot returns the current {avg, min, max} over the window.
func (w *Window) Snapshot() Stats {
	total := w.total.Load()
	n := len(w.samples)
	if int64(n) > total {
		n = int(total)
	}
	if n == 0 {
		return Stats{}
	}
	min := time.Duration(w.samples[0].Load())
	max := min
	for i := 1; i < n; i++ {
		d := time.Duration(w.samples[i].Load())
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return Stats{Avg: time.Duration(w.sum.Load()) / time.Duration(n), Min: min, Max: max, Samples: n}
}

// Reset clears the window. Only ever called from outside the render path.
func (w *Window) Reset() {
	for i := range w.samples {
		w.samples[i].Store(0)
	}
	w.sum.Store(0)
	w.total.Store(0)
	w.next.Store(0)
}

// Registry tracks rolling windows for the engine as a whole plus one per
// track and one per processor, keyed by numeric id (0 for the engine-wide
// window). windows is a sync.Map rather than a plain map behind a mutex:
// once a window exists for an id, every subsequent Record for that id hits
// sync.Map's read-only fast path (an atomic pointer load, no lock), which
// is the steady-state case on every render block; only the first Record for
// a never-before-seen id pays for a map mutation.
type Registry struct {
	enabled  atomic.Bool
	windows  sync.Map // uint32 -> *Window
	size     int
	overruns atomic.Int64
}

// NewRegistry constructs a timing registry with the given window size (in
// blocks); statistics collection starts disabled until toggled on.
func NewRegistry(windowSize int) *Registry {
	return &Registry{size: windowSize}
}

// SetEnabled toggles whether Record actually accumulates samples.
func (r *Registry) SetEnabled(enabled bool) { r.enabled.Store(enabled) }

// Enabled reports the current toggle state.
func (r *Registry) Enabled() bool { return r.enabled.Load() }

// Record adds one duration sample to id's window (creating it on first
// use). A no-op when statistics are disabled. Lock-free once id's window
// has been created.
func (r *Registry) Record(id uint32, d time.Duration) {
	if !r.enabled.Load() {
		return
	}
	v, ok := r.windows.Load(id)
	if !ok {
		v, _ = r.windows.LoadOrStore(id, NewWindow(r.size))
	}
	v.(*Window).Add(d)
}

// Snapshot returns id's current statistics, or the zero Stats if nothing
// has been recorded for it yet.
func (r *Registry) Snapshot(id uint32) Stats {
	v, ok := r.windows.Load(id)
	if !ok {
		return Stats{}
	}
	return v.(*Window).Snapshot()
}

// Overruns reports how many block-deadline overshoots have been recorded
// since the registry was constructed (or last reset).
func (r *Registry) Overruns() int64 { return r.overruns.Load() }

// GraphRecorder adapts a Registry to the AudioGraph's OverrunReporter
// interface, giving the multicore renderer a real destination for
// per-block CPU timing samples instead of the test-only spy it previously
// shipped with.
type GraphRecorder struct {
	reg *Registry
}

// NewGraphRecorder wraps reg for use as an AudioGraph's OverrunReporter.
func NewGraphRecorder(reg *Registry) *GraphRecorder { return &GraphRecorder{reg: reg} }

// ReportBlock records one track's (or, for the engine-wide id 0, one
// worker's) block duration into the matching rolling window.
func (g *GraphRecorder) ReportBlock(id plexus.ID, d time.Duration) {
	g.reg.Record(uint32(id), d)
}

// ReportOverrun counts a deadline overshoot toward the registry's overrun
// tally; the graph itself never aborts a block over this.
func (g *GraphRecorder) ReportOverrun(worker int, over time.Duration) {
	g.reg.overruns.Add(1)
}

// Reset clears every window's accumulated statistics.
func (r *Registry) Reset() {
	r.windows.Range(func(_, v any) bool {
		v.(*Window).Reset()
		return true
	})
	r.overruns.Store(0)
}
