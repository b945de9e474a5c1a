// Package dispatcher implements the non-realtime event loop: a single
// worker thread that polls the outbound realtime queue, maintains a
// priority-by-timestamp heap of scheduled non-realtime events, fans
// notifications out to subscribers, and resolves completions for
// returnable events posted into the realtime world.
package dispatcher

import (
	"container/heap"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rjarnstrom/plexus"
	"github.com/rjarnstrom/plexus/notify"
	"github.com/rjarnstrom/plexus/rtqueue"
)

// DefaultDeadline is the default per-command timeout.
const DefaultDeadline = 500 * time.Millisecond

// pendingCommand tracks one in-flight returnable command awaiting a
// completion from the realtime thread.
type pendingCommand struct {
	done    chan plexus.Status
	expires time.Time
}

// scheduledEvent is one entry in the dispatcher's timestamp-ordered heap
// of non-realtime events awaiting processing.
type scheduledEvent struct {
	ev    plexus.NonRealtimeEvent
	index int
}

type eventHeap []*scheduledEvent

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return h[i].ev.TimestampNanos < h[j].ev.TimestampNanos }
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *eventHeap) Push(x any) {
	se := x.(*scheduledEvent)
	se.index = len(*h)
	*h = append(*h, se)
}
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	se := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return se
}

// Dispatcher bridges controller commands into the realtime world and
// resolves their completions. It owns no lock-free queue itself: Inbound
// is the MPSC lane set the realtime engine drains, Outbound is the SPSC
// queue the realtime thread posts completions and telemetry onto.
type Dispatcher struct {
	Inbound  *rtqueue.MPSC
	Outbound *rtqueue.SPSC
	Notify   *notify.Registry

	laneAssign atomic.Uint64 // round-robins callers across inbound lanes
	nextReturnableID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]*pendingCommand
	heapMu  sync.Mutex
	sched   eventHeap

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a dispatcher wired to the given queues and notification
// registry.
func New(inbound *rtqueue.MPSC, outbound *rtqueue.SPSC, reg *notify.Registry) *Dispatcher {
	d := &Dispatcher{
		Inbound:  inbound,
		Outbound: outbound,
		Notify:   reg,
		pending:  map[uint64]*pendingCommand{},
		stop:     make(chan struct{}),
	}
	heap.Init(&d.sched)
	return d
}

// Run starts the dispatcher's single worker goroutine. It returns
// immediately; call Stop to shut it down.
func (d *Dispatcher) Run() {
	d.wg.Add(1)
	go d.loop()
}

// Stop signals the worker goroutine to exit and waits for it.
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	ticker := time.NewTicker(500 * time.Microsecond)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			d.failAllPending(plexus.StatusError)
			return
		case <-ticker.C:
			d.drainOutbound()
			d.runDueScheduled()
			d.expireOverdue()
		}
	}
}

func (d *Dispatcher) drainOutbound() {
	for {
		ev, ok := d.Outbound.TryPop()
		if !ok {
			return
		}
		d.handleOutbound(ev)
	}
}

func (d *Dispatcher) handleOutbound(ev plexus.RTEvent) {
	switch ev.Kind {
	case plexus.EventCompletion:
		d.resolve(ev.ReturnableID, ev.Status)
	case plexus.EventParameterChange:
		d.Notify.Publish(notify.ParameterChange, ev)
	default:
		d.Notify.Publish(notify.ProcessorUpdate, ev)
	}
}

func (d *Dispatcher) resolve(id uint64, status plexus.Status) {
	if id == 0 {
		return
	}
	d.mu.Lock()
	pc, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
	}
	d.mu.Unlock()
	if !ok {
		return // late completion for an already-timed-out command; discarded
	}
	pc.done <- status
}

func (d *Dispatcher) expireOverdue() {
	now := time.Now()
	var expired []*pendingCommand
	d.mu.Lock()
	for id, pc := range d.pending {
		if now.After(pc.expires) {
			expired = append(expired, pc)
			delete(d.pending, id)
		}
	}
	d.mu.Unlock()
	for _, pc := range expired {
		pc.done <- plexus.StatusTimeout
	}
}

func (d *Dispatcher) failAllPending(status plexus.Status) {
	d.mu.Lock()
	pending := d.pending
	d.pending = map[uint64]*pendingCommand{}
	d.mu.Unlock()
	for _, pc := range pending {
		pc.done <- status
	}
}

// NextReturnableID hands out a monotonic, process-unique id for a
// returnable event.
func (d *Dispatcher) NextReturnableID() uint64 {
	return d.nextReturnableID.Add(1)
}

// PostReturnable enqueues ev (with ReturnableID already set by the caller
// via NextReturnableID) into an inbound lane and blocks until either the
// realtime thread posts a matching completion, or deadline elapses — in
// which case the command fails with StatusTimeout and any later
// completion is discarded.
func (d *Dispatcher) PostReturnable(ev plexus.RTEvent, deadline time.Duration) plexus.Status {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	pc := &pendingCommand{done: make(chan plexus.Status, 1), expires: time.Now().Add(deadline)}
	d.mu.Lock()
	d.pending[ev.ReturnableID] = pc
	d.mu.Unlock()

	lane := d.laneAssign.Add(1)
	if !d.Inbound.Lane(int(lane)).TryPush(ev) {
		d.mu.Lock()
		delete(d.pending, ev.ReturnableID)
		d.mu.Unlock()
		return plexus.StatusError
	}

	select {
	case status := <-pc.done:
		return status
	case <-time.After(deadline):
		d.mu.Lock()
		delete(d.pending, ev.ReturnableID)
		d.mu.Unlock()
		return plexus.StatusTimeout
	}
}

// PostFireAndForget enqueues ev without waiting for a completion, for
// events that carry no ReturnableID (pure fire-and-forget realtime
// actions like a note-on).
func (d *Dispatcher) PostFireAndForget(ev plexus.RTEvent) plexus.Status {
	lane := d.laneAssign.Add(1)
	if !d.Inbound.Lane(int(lane)).TryPush(ev) {
		return plexus.StatusError
	}
	return plexus.StatusOK
}

// Schedule enqueues a non-realtime event to be processed once its
// TimestampNanos has passed. Used for e.g. delayed or externally
// time-stamped controller operations; most controller commands go through
// PostReturnable directly instead.
func (d *Dispatcher) Schedule(ev plexus.NonRealtimeEvent) {
	d.heapMu.Lock()
	heap.Push(&d.sched, &scheduledEvent{ev: ev})
	d.heapMu.Unlock()
}

func (d *Dispatcher) runDueScheduled() {
	now := time.Now().UnixNano()
	for {
		d.heapMu.Lock()
		if len(d.sched) == 0 || d.sched[0].ev.TimestampNanos > now {
			d.heapMu.Unlock()
			return
		}
		se := heap.Pop(&d.sched).(*scheduledEvent)
		d.heapMu.Unlock()
		d.runScheduled(se.ev)
	}
}

func (d *Dispatcher) runScheduled(ev plexus.NonRealtimeEvent) {
	status := d.PostFireAndForget(ev.RTPayload)
	if ev.Callback != nil {
		ev.Callback(status, nil)
	}
}

// LogDrop records a non-critical error — a notification subscriber
// falling behind, or an inbound-queue overflow — that is logged and does
// not fail the command.
func LogDrop(context string) {
	log.Printf("plexus/dispatcher: dropped event: %s", context)
}
