package plexus

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// TrackProcessor is the subset of Track that the graph needs to render a
// block. It exists so the graph package can be tested against a stub
// without pulling in the full Track/chain machinery.
type TrackProcessor interface {
	ID() ID
	ProcessAudio(in, out Buffer)
}

// OverrunReporter receives realtime timing samples for the Timings
// controller service: ReportBlock is called once per track after every
// ProcessAudio call (and once per worker under id 0 for the engine-wide
// window), and ReportOverrun whenever a worker's render of its track list
// overshoots the block deadline. The graph never aborts a block over an
// overrun — it only reports it via the timings component.
type OverrunReporter interface {
	ReportBlock(id ID, d time.Duration)
	ReportOverrun(worker int, over time.Duration)
}

// AudioGraph owns the partitioning of tracks across worker cores — a
// vector per worker of track references — but never owns the tracks
// themselves.
type AudioGraph struct {
	deadline time.Duration
	reporter OverrunReporter

	// mu guards byWorker against WorkerOf, which is a diagnostic accessor
	// that may legitimately be called from a non-realtime goroutine while
	// a block is in flight. AddTrack/RemoveTrack/Render never contend on
	// mu in practice: the engine only ever calls them from drainInbound
	// and Render on the same goroutine, back to back, so they take mu with
	// TryLock and panic on failure instead of blocking — a blocked lock
	// there would mean the same-goroutine invariant had already been
	// broken elsewhere.
	mu       sync.Mutex
	byWorker [][]TrackProcessor
	roundRobinNext int

	// Multicore machinery, unused when len(byWorker) == 1.
	sems []*semaphore.Weighted // one per worker index 1..N-1, guarding that worker's start signal
	wg   sync.WaitGroup
	quit chan struct{}

	// Handed to worker goroutines by Render for the block currently in
	// flight; see the comment on workerLoop for the happens-before
	// argument that makes this safe without extra locking.
	pendingLists      [][]TrackProcessor
	pendingGetBuffers func(ID) (Buffer, Buffer)
}

// NewAudioGraph constructs a graph with numWorkers cores (N >= 1) and a
// per-block deadline used only for overrun reporting.
func NewAudioGraph(numWorkers int, deadline time.Duration, reporter OverrunReporter) *AudioGraph {
	if numWorkers < 1 {
		numWorkers = 1
	}
	g := &AudioGraph{
		deadline: deadline,
		reporter: reporter,
		byWorker: make([][]TrackProcessor, numWorkers),
		quit:     make(chan struct{}),
	}
	if numWorkers > 1 {
		g.sems = make([]*semaphore.Weighted, numWorkers)
		for w := 1; w < numWorkers; w++ {
			g.sems[w] = semaphore.NewWeighted(1)
			g.sems[w].Acquire(context.Background(), 1) // start empty: worker blocks until Render releases it
			go g.workerLoop(w)
		}
	}
	return g
}

// NumWorkers reports N.
func (g *AudioGraph) NumWorkers() int { return len(g.byWorker) }

// Close stops the worker pool. Must not be called concurrently with
// Render.
func (g *AudioGraph) Close() {
	if len(g.byWorker) <= 1 {
		return
	}
	close(g.quit)
	for w := 1; w < len(g.byWorker); w++ {
		g.sems[w].Release(1) // wake the worker so it observes quit
	}
}

// AddTrack places t on a worker's list. If core is nil, placement is
// round-robin across workers; otherwise it pins t to the given worker
// index. Must not be called concurrently with Render.
func (g *AudioGraph) AddTrack(t TrackProcessor, core *int) Status {
	if !g.mu.TryLock() {
		panic("plexus: AudioGraph.AddTrack contended mu; must run on the same goroutine as Render")
	}
	defer g.mu.Unlock()
	w := g.roundRobinNext % len(g.byWorker)
	g.roundRobinNext++
	if core != nil {
		if *core < 0 || *core >= len(g.byWorker) {
			return StatusOutOfRange
		}
		w = *core
	}
	g.byWorker[w] = append(g.byWorker[w], t)
	return StatusOK
}

// RemoveTrack removes the track with the given id from whichever worker
// holds it. Must not be called concurrently with Render.
func (g *AudioGraph) RemoveTrack(id ID) Status {
	if !g.mu.TryLock() {
		panic("plexus: AudioGraph.RemoveTrack contended mu; must run on the same goroutine as Render")
	}
	defer g.mu.Unlock()
	for w, list := range g.byWorker {
		for i, t := range list {
			if t.ID() == id {
				g.byWorker[w] = append(list[:i], list[i+1:]...)
				return StatusOK
			}
		}
	}
	return StatusNotFound
}

// WorkerOf returns which worker index currently holds the track with the
// given id.
func (g *AudioGraph) WorkerOf(id ID) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for w, list := range g.byWorker {
		for _, t := range list {
			if t.ID() == id {
				return w, true
			}
		}
	}
	return 0, false
}

// Render renders one block. In single-core mode it walks the sole
// worker's list in order on the calling goroutine. In multi-core mode it
// signals every worker's semaphore, processes worker 0's list itself, then
// waits on a barrier for every worker to finish — track rendering within
// one block is fully independent, so no ordering assumption holds between
// tracks in different workers' lists.
//
// getBuffers must return the (input, output) Buffer pair for a given
// track id; it is called concurrently from every worker goroutine and
// must itself be safe for concurrent read-only use (the engine's plain
// buffer maps, written only when a track is registered or unregistered,
// satisfy this).
func (g *AudioGraph) Render(getBuffers func(ID) (Buffer, Buffer)) {
	if !g.mu.TryLock() { // held only long enough to snapshot; renderList below runs unlocked
		panic("plexus: AudioGraph.Render contended mu; must run on the same goroutine as AddTrack/RemoveTrack")
	}
	lists := make([][]TrackProcessor, len(g.byWorker))
	copy(lists, g.byWorker)
	g.mu.Unlock()

	if len(lists) == 1 {
		g.renderList(0, lists[0], getBuffers)
		return
	}

	g.pendingLists = lists
	g.pendingGetBuffers = getBuffers
	g.wg.Add(len(lists) - 1)
	for w := 1; w < len(lists); w++ {
		g.sems[w].Release(1)
	}
	g.renderList(0, lists[0], getBuffers)
	g.wg.Wait()
}

// workerLoop parks worker w on its semaphore and, each time Render
// releases it, renders that worker's list for the current block.
// pendingLists/pendingGetBuffers are only ever written by Render and only
// ever read here after Render has released this worker's semaphore, so
// the semaphore's release/acquire pair establishes the happens-before
// edge and no additional synchronization is needed.
func (g *AudioGraph) workerLoop(w int) {
	for {
		if err := g.sems[w].Acquire(context.Background(), 1); err != nil {
			return
		}
		select {
		case <-g.quit:
			return
		default:
		}
		g.renderList(w, g.pendingLists[w], g.pendingGetBuffers)
		g.wg.Done()
	}
}

func (g *AudioGraph) renderList(worker int, list []TrackProcessor, getBuffers func(ID) (Buffer, Buffer)) {
	start := time.Now()
	for _, t := range list {
		in, out := getBuffers(t.ID())
		trackStart := time.Now()
		t.ProcessAudio(in, out)
		if g.reporter != nil {
			g.reporter.ReportBlock(t.ID(), time.Since(trackStart))
		}
	}
	// An empty list still observes the semaphore and acknowledges the
	// barrier: the reporting below and the wg.Done() in workerLoop run
	// unconditionally even when list is empty.
	elapsed := time.Since(start)
	if g.reporter != nil {
		g.reporter.ReportBlock(InvalidID, elapsed) // id 0: engine-wide window
	}
	if g.deadline > 0 && g.reporter != nil && elapsed > g.deadline {
		g.reporter.ReportOverrun(worker, elapsed-g.deadline)
	}
}
