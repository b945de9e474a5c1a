package plexus

import (
	"fmt"
	"sync/atomic"
)

// InboundQueue is what the engine drains at the top of every block.
type InboundQueue interface {
	TryPop() (RTEvent, bool)
}

// OutboundQueue is what the engine posts notifications and completions to.
type OutboundQueue interface {
	TryPush(ev RTEvent) bool
}

// EngineTrack is the subset of Track the engine needs: routing input/
// output busses and delivering events, in addition to the TrackProcessor
// interface the graph renders against.
type EngineTrack interface {
	TrackProcessor
	ProcessEvent(ev RTEvent)
	InputChannels() int
	OutputChannels() int
}

// AudioEngine orchestrates one block: drain the inbound realtime event
// queue, advance the transport, route input channels to track input
// busses, render the graph, route track output busses to the output
// chunk, and collect outbound events.
type AudioEngine struct {
	Transport *Transport
	Graph     *AudioGraph
	Inbound   InboundQueue
	Outbound  OutboundQueue

	tracks map[ID]EngineTrack
	inBuf  map[ID]Buffer
	outBuf map[ID]Buffer

	// owner maps a chain processor's id to the id of the track that holds
	// it, so an event addressed to a processor nested inside a track's
	// chain (rather than the track itself) can still be routed to the
	// right track for Track.ProcessEvent's broadcast-then-self-filter
	// delivery (see track.go).
	owner map[ID]ID

	// inputRouting/outputRouting map input/output channel index to
	// (track id, track channel index), published read-copy-update behind an
	// atomic pointer the same way midi.Router publishes its connection
	// tables: the dispatcher builds a new slice and swaps the pointer
	// wholesale, so routeInput/routeOutput on the realtime thread only ever
	// take one atomic load, never a lock.
	inputRouting  atomic.Pointer[[]ChannelRoute]
	outputRouting atomic.Pointer[[]ChannelRoute]

	// outAccum is a per-hardware-channel accumulator reused across blocks
	// by routeOutput so summing multiple tracks onto one output channel
	// never allocates.
	outAccum Buffer

	shutdown bool
}

// ChannelRoute connects one hardware channel index to one channel of a
// track's input or output bus.
type ChannelRoute struct {
	HardwareChannel int
	Track           ID
	TrackChannel    int
}

// NewAudioEngine constructs an engine bound to the given transport and
// graph. Tracks must be registered with RegisterTrack before they can be
// routed to or rendered.
func NewAudioEngine(transport *Transport, graph *AudioGraph, inbound InboundQueue, outbound OutboundQueue) *AudioEngine {
	e := &AudioEngine{
		Transport: transport,
		Graph:     graph,
		Inbound:   inbound,
		Outbound:  outbound,
		tracks:    map[ID]EngineTrack{},
		inBuf:     map[ID]Buffer{},
		outBuf:    map[ID]Buffer{},
		owner:     map[ID]ID{},
	}
	empty := []ChannelRoute{}
	e.inputRouting.Store(&empty)
	empty2 := []ChannelRoute{}
	e.outputRouting.Store(&empty2)
	return e
}

// RegisterProcessorOwner records that processor belongs to track, so events
// addressed to processor route through track's ProcessEvent. drainInbound
// keeps this in sync with the track's own chain as insert/remove events are
// applied; it is exported so tests can seed it directly.
func (e *AudioEngine) RegisterProcessorOwner(processor, track ID) { e.owner[processor] = track }

// UnregisterProcessorOwner removes a processor's owning-track entry.
func (e *AudioEngine) UnregisterProcessorOwner(processor ID) { delete(e.owner, processor) }

// RegisterTrack makes a track's input/output buffers available to routing
// and rendering. Must be called only at a block boundary (never
// concurrently with Process).
func (e *AudioEngine) RegisterTrack(t EngineTrack) {
	e.tracks[t.ID()] = t
	e.inBuf[t.ID()] = NewBuffer(t.InputChannels())
	e.outBuf[t.ID()] = NewBuffer(t.OutputChannels())
}

// UnregisterTrack removes a track's buffers. Must be called only at a
// block boundary.
func (e *AudioEngine) UnregisterTrack(id ID) {
	delete(e.tracks, id)
	delete(e.inBuf, id)
	delete(e.outBuf, id)
	for proc, track := range e.owner {
		if track == id {
			delete(e.owner, proc)
		}
	}
}

// SetInputRouting/SetOutputRouting publish a new routing table wholesale via
// an atomic pointer swap: the realtime thread reading through routeInput/
// routeOutput never observes a partially-written table and never blocks.
func (e *AudioEngine) SetInputRouting(routes []ChannelRoute) {
	cp := append([]ChannelRoute(nil), routes...)
	e.inputRouting.Store(&cp)
}

func (e *AudioEngine) SetOutputRouting(routes []ChannelRoute) {
	cp := append([]ChannelRoute(nil), routes...)
	e.outputRouting.Store(&cp)
}

// ErrInvalidChunkSize is returned by Process when the caller-supplied
// buffer's frame count is not a multiple of ChunkSize.
type ErrInvalidChunkSize struct{ NFrames int }

func (e ErrInvalidChunkSize) Error() string {
	return fmt.Sprintf("plexus: %d frames is not a multiple of chunk size %d", e.NFrames, ChunkSize)
}

// Process is the audio backend's entry point: it drives the engine by
// calling Process(in, out, nFrames), where nFrames must be a multiple of
// ChunkSize; the engine splits the call into back-to-back chunk renders.
// in/out are sized [hardwareChannels][nFrames]float32.
func (e *AudioEngine) Process(in, out [][]float32, nFrames int) Status {
	if nFrames%ChunkSize != 0 {
		return StatusInvalidArguments
	}
	if e.shutdown {
		return StatusError
	}
	for offset := 0; offset < nFrames; offset += ChunkSize {
		e.processChunk(in, out, offset)
	}
	return StatusOK
}

func (e *AudioEngine) processChunk(in, out [][]float32, offset int) {
	e.drainInbound()
	e.Transport.Advance()
	e.routeInput(in, offset)
	e.Graph.Render(e.getBuffers)
	e.routeOutput(out, offset)
}

// drainInbound delivers every event queued at block-start to its target
// processor before rendering: all events in the inbound RT queue at
// block-start are delivered to their processors before audio render.
// Events arriving mid-block are deferred to the next block. Draining
// until empty, rather than draining N events queued at the moment we
// started, satisfies this because nothing can be mid-block yet — the
// block has not started rendering.
//
// This is also the only place structural graph/chain mutations
// (EventCreateTrack/EventDeleteTrack/EventInsertProcessor/
// EventRemoveProcessor/EventMoveProcessor/EventBypass) are ever applied:
// it runs on the same goroutine as, and strictly before, AudioGraph.Render
// for this block, so a track's chain or the graph's worker partitions can
// be mutated here without racing a concurrent render.
func (e *AudioEngine) drainInbound() {
	if e.Inbound == nil {
		return
	}
	for {
		ev, ok := e.Inbound.TryPop()
		if !ok {
			return
		}
		switch ev.Kind {
		case EventCreateTrack:
			e.applyCreateTrack(ev)
		case EventDeleteTrack:
			e.applyDeleteTrack(ev)
		default:
			e.applyTrackEvent(ev)
		}
		if ev.ReturnableID != 0 {
			e.postCompletion(ev.ReturnableID, StatusOK)
		}
	}
}

func (e *AudioEngine) applyTrackEvent(ev RTEvent) {
	target := ev.Target
	if owner, ok := e.owner[target]; ok {
		target = owner
	}
	t, found := e.tracks[target]
	if !found {
		return
	}
	t.ProcessEvent(ev)
	switch ev.Kind {
	case EventInsertProcessor:
		if p := ev.Processor(); p != nil {
			e.RegisterProcessorOwner(p.ID(), target)
		}
	case EventRemoveProcessor:
		e.UnregisterProcessorOwner(ev.Target)
	}
}

func (e *AudioEngine) applyCreateTrack(ev RTEvent) {
	handle := ev.TrackHandle()
	if handle == nil {
		return
	}
	if st := e.Graph.AddTrack(handle, ev.Core()); st != StatusOK {
		return
	}
	e.RegisterTrack(handle)
}

func (e *AudioEngine) applyDeleteTrack(ev RTEvent) {
	if st := e.Graph.RemoveTrack(ev.Target); st != StatusOK {
		return
	}
	e.UnregisterTrack(ev.Target)
}

func (e *AudioEngine) postCompletion(returnableID uint64, status Status) {
	if e.Outbound == nil {
		return
	}
	e.Outbound.TryPush(Completion(returnableID, status))
}

func (e *AudioEngine) routeInput(in [][]float32, offset int) {
	for id, buf := range e.inBuf {
		_ = id
		buf.Clear()
	}
	for _, r := range *e.inputRouting.Load() {
		if r.HardwareChannel >= len(in) {
			continue
		}
		buf, ok := e.inBuf[r.Track]
		if !ok || r.TrackChannel >= buf.Channels() {
			continue
		}
		src := in[r.HardwareChannel]
		var frame [ChunkSize]float32
		n := ChunkSize
		if offset+n > len(src) {
			n = len(src) - offset
		}
		if n > 0 {
			copy(frame[:n], src[offset:offset+n])
		}
		buf[r.TrackChannel] = frame
	}
}

// routeOutput sums every track output bus channel routed onto a hardware
// channel into e.outAccum, then flushes the accumulator into out. Summing
// through outAccum first (rather than adding straight into out) lets the
// per-channel add run through Buffer.MixFrom's vectorized kernel instead of
// a scalar loop, since out itself is a flat []float32 the Buffer type
// cannot alias directly.
func (e *AudioEngine) routeOutput(out [][]float32, offset int) {
	if e.outAccum.Channels() != len(out) {
		e.outAccum = NewBuffer(len(out)) // rare: only when hardware channel count changes
	}
	e.outAccum.Clear()
	for _, r := range *e.outputRouting.Load() {
		if r.HardwareChannel >= len(out) {
			continue
		}
		buf, ok := e.outBuf[r.Track]
		if !ok || r.TrackChannel >= buf.Channels() {
			continue
		}
		e.outAccum[r.HardwareChannel : r.HardwareChannel+1].MixFrom(buf[r.TrackChannel : r.TrackChannel+1])
	}
	for hw, dst := range out {
		n := ChunkSize
		if offset+n > len(dst) {
			n = len(dst) - offset
		}
		if n > 0 {
			copy(dst[offset:offset+n], e.outAccum[hw][:n])
		}
	}
}

func (e *AudioEngine) getBuffers(id ID) (Buffer, Buffer) {
	return e.inBuf[id], e.outBuf[id]
}

// Shutdown stops the engine from accepting new blocks. It neither fails
// outstanding returnable commands nor emits a notice; Controller.Shutdown
// publishes the shutdown notice.
func (e *AudioEngine) Shutdown() { e.shutdown = true }

// IsShutdown reports whether Shutdown has been called.
func (e *AudioEngine) IsShutdown() bool { return e.shutdown }
