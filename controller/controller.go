// Package controller implements the composed command surface: a facade
// grouped into system, transport, timings, keyboard, audio-graph,
// parameters/properties, programs, MIDI-routing, audio-routing and
// notifications services. Keyboard notes, track creation/deletion,
// processor insert/remove/move, bypass and parameter sets funnel through
// the dispatcher so they are resolved against the realtime thread the same
// way an externally received command would be; the other setters
// (transport, properties, programs, state, routing) act on their
// collaborator directly, and queries read the current state directly since
// they carry no ordering requirement against the audio block boundary.
package controller

import (
	"time"

	"github.com/rjarnstrom/plexus"
	"github.com/rjarnstrom/plexus/dispatcher"
	"github.com/rjarnstrom/plexus/midi"
	"github.com/rjarnstrom/plexus/notify"
	"github.com/rjarnstrom/plexus/timing"
)

// Controller is the single entry point external callers (an RPC server, a
// UI, a test harness) use to drive the host. All of its methods are safe to
// call from one goroutine at a time — typically the dispatcher's own
// goroutine, or a caller that serializes its own calls — matching the
// single non-realtime worker model the dispatcher implements.
type Controller struct {
	Dispatcher *dispatcher.Dispatcher
	Transport  *plexus.Transport
	Graph      *plexus.AudioGraph
	Engine     *plexus.AudioEngine
	MIDI       *midi.Router
	Timing     *timing.Registry
	Notify     *notify.Registry
	IDs        *plexus.IDAllocator

	tracks     map[plexus.ID]*plexus.Track
	processors map[plexus.ID]plexus.Processor

	// currentOutputRouting mirrors what has been handed to
	// SetOutputRouting, so DisconnectAllAudioOutputsFromTrack has
	// something to filter — the engine treats its routing tables as
	// write-only from the realtime side and exposes no getter.
	currentOutputRouting []plexus.ChannelRoute
}

// New constructs a controller bound to the given collaborators. reg may be
// shared with a dispatcher already wired to the same notify.Registry.
func New(d *dispatcher.Dispatcher, transport *plexus.Transport, graph *plexus.AudioGraph, engine *plexus.AudioEngine, router *midi.Router, timings *timing.Registry, reg *notify.Registry, ids *plexus.IDAllocator) *Controller {
	return &Controller{
		Dispatcher: d,
		Transport:  transport,
		Graph:      graph,
		Engine:     engine,
		MIDI:       router,
		Timing:     timings,
		Notify:     reg,
		IDs:        ids,
		tracks:     map[plexus.ID]*plexus.Track{},
		processors: map[plexus.ID]plexus.Processor{},
	}
}

// postReturnable stamps ev with a fresh returnable id and waits on the
// dispatcher for the realtime thread's completion. The engine completes
// every returnable event with StatusOK once it has handled it, so the
// status reports delivery (ok, or a dispatcher-side failure such as a
// timeout); it does not report whether the realtime thread found the
// target.
func (c *Controller) postReturnable(ev plexus.RTEvent, deadline time.Duration) plexus.Status {
	ev.ReturnableID = c.Dispatcher.NextReturnableID()
	return c.Dispatcher.PostReturnable(ev, deadline)
}

// ---- System -----------------------------------------------------------

// Shutdown stops the engine from accepting further blocks and publishes a
// "shutdown" notice on TrackUpdate. It does not resolve outstanding
// returnable commands; each of those ends at its own deadline.
func (c *Controller) Shutdown() plexus.Status {
	c.Engine.Shutdown()
	c.Notify.Publish(notify.TrackUpdate, "shutdown")
	return plexus.StatusOK
}

// IsShutdown reports whether Shutdown has already been called.
func (c *Controller) IsShutdown() bool { return c.Engine.IsShutdown() }

// NumWorkers reports the graph's fixed worker-core count; the host does
// not support resizing the worker pool at runtime (a new pool would
// require re-partitioning every track without a render in flight, so it
// is a restart-time configuration choice).
func (c *Controller) NumWorkers() int { return c.Graph.NumWorkers() }

// ---- Transport ----------------------------------------------------------

// TransportState is a read-only snapshot of the transport for query
// callers.
type TransportState struct {
	Tempo          float64
	TimeSignature  plexus.TimeSignature
	PlayingMode    plexus.PlayingMode
	SyncMode       plexus.SyncMode
	SamplePosition int64
	WallClock      float64
	CurrentBeats   float64
	BarBeats       float64
}

// TransportSnapshot returns the transport's current state.
func (c *Controller) TransportSnapshot() TransportState {
	t := c.Transport
	return TransportState{
		Tempo:          t.Tempo(),
		TimeSignature:  t.TimeSignature(),
		PlayingMode:    t.PlayingMode(),
		SyncMode:       t.SyncMode(),
		SamplePosition: t.SamplePosition(),
		WallClock:      t.WallClock(),
		CurrentBeats:   t.CurrentBeats(),
		BarBeats:       t.BarBeats(),
	}
}

// SetPlayingMode transitions the transport's play state.
func (c *Controller) SetPlayingMode(m plexus.PlayingMode) plexus.Status {
	c.Transport.SetPlayingMode(m)
	c.Notify.Publish(notify.TransportUpdate, c.TransportSnapshot())
	return plexus.StatusOK
}

// SetTempo sets tempo in BPM, optionally queued to the next bar boundary.
func (c *Controller) SetTempo(bpm float64, atBarBoundary bool) plexus.Status {
	st := c.Transport.SetTempo(bpm, atBarBoundary)
	if st == plexus.StatusOK {
		c.Notify.Publish(notify.TransportUpdate, c.TransportSnapshot())
	}
	return st
}

// SetTimeSignature sets the time signature, optionally queued.
func (c *Controller) SetTimeSignature(ts plexus.TimeSignature, atBarBoundary bool) plexus.Status {
	st := c.Transport.SetTimeSignature(ts, atBarBoundary)
	if st == plexus.StatusOK {
		c.Notify.Publish(notify.TransportUpdate, c.TransportSnapshot())
	}
	return st
}

// SetSyncMode selects the transport's sync source.
func (c *Controller) SetSyncMode(m plexus.SyncMode) plexus.Status {
	st := c.Transport.SetSyncMode(m)
	if st == plexus.StatusOK {
		c.Notify.Publish(notify.TransportUpdate, c.TransportSnapshot())
	}
	return st
}

// SetTime seeks the transport directly to a sample position.
func (c *Controller) SetTime(samplePos int64) plexus.Status {
	c.Transport.SetTime(samplePos)
	c.Notify.Publish(notify.TransportUpdate, c.TransportSnapshot())
	return plexus.StatusOK
}

// PushSync feeds one external sync-source update to the transport.
func (c *Controller) PushSync(u plexus.SyncUpdate) plexus.Status {
	c.Transport.PushSync(u)
	return plexus.StatusOK
}

// ---- Timings --------------------------------------------------------------

// SetTimingsEnabled toggles CPU-timing statistics collection.
func (c *Controller) SetTimingsEnabled(enabled bool) plexus.Status {
	c.Timing.SetEnabled(enabled)
	return plexus.StatusOK
}

// TimingsSnapshot returns the current {avg, min, max} for the engine-wide
// window (id 0) or a track/processor-specific window.
func (c *Controller) TimingsSnapshot(id plexus.ID) (timing.Stats, plexus.Status) {
	return c.Timing.Snapshot(uint32(id)), plexus.StatusOK
}

// ---- Notifications ---------------------------------------------------------

// Subscribe registers a new subscriber for one of the five notification
// streams (transport, cpu-timing, track, processor, parameter). The
// caller drains Subscriber.Ch and calls Cancel when done.
func (c *Controller) Subscribe(kind notify.Kind) *notify.Subscriber {
	return c.Notify.Subscribe(kind)
}

// ---- Keyboard -------------------------------------------------------------

// NoteOn posts a fire-and-forget note-on to a track. A host UI or
// virtual-keyboard backend drives note input this way rather than
// through the MIDI decode path.
func (c *Controller) NoteOn(track plexus.ID, channel, note, velocity uint8) plexus.Status {
	return c.Dispatcher.PostFireAndForget(plexus.NoteOn(track, 0, channel, note, velocity))
}

// NoteOff posts a fire-and-forget note-off to a track.
func (c *Controller) NoteOff(track plexus.ID, channel, note uint8) plexus.Status {
	return c.Dispatcher.PostFireAndForget(plexus.NoteOff(track, 0, channel, note, 0))
}

// ---- Audio graph ------------------------------------------------------

// CreateTrack allocates a new track and posts it through the dispatcher so
// the realtime thread admits it into the graph and engine at the next
// block boundary — Render may be running concurrently on another worker at
// the moment this is called, so the graph's worker partitions are never
// touched directly from this goroutine. If core is non-nil, the track is
// pinned to that worker; otherwise placement is round-robin.
func (c *Controller) CreateTrack(name string, outputBuses, maxChainLen int, core *int) (plexus.ID, plexus.Status) {
	id := c.IDs.Next()
	t := plexus.NewTrack(id, name, outputBuses, maxChainLen, c.IDs)
	if st := c.postReturnable(plexus.CreateTrackEvent(t, core), 0); st != plexus.StatusOK {
		return plexus.InvalidID, st
	}
	c.tracks[id] = t
	c.Notify.Publish(notify.TrackUpdate, id)
	return id, plexus.StatusOK
}

// DeleteTrack removes a track from the graph and engine, applied by the
// realtime thread at the next block boundary.
func (c *Controller) DeleteTrack(id plexus.ID) plexus.Status {
	if _, ok := c.tracks[id]; !ok {
		return plexus.StatusNotFound
	}
	if st := c.postReturnable(plexus.DeleteTrackEvent(id), 0); st != plexus.StatusOK {
		return st
	}
	delete(c.tracks, id)
	c.Notify.Publish(notify.TrackUpdate, id)
	return plexus.StatusOK
}

// AddProcessor inserts processor into track's chain (before beforeID, or
// appended if nil). The insert itself, and the processor-ownership
// bookkeeping used for event routing, are applied by the engine at the
// next block boundary rather than here, since t.chain is read unsynchronized
// by ProcessAudio.
func (c *Controller) AddProcessor(track plexus.ID, p plexus.Processor, beforeID *plexus.ID) plexus.Status {
	if _, ok := c.tracks[track]; !ok {
		return plexus.StatusNotFound
	}
	if st := c.postReturnable(plexus.InsertProcessorEvent(track, p, beforeID), 0); st != plexus.StatusOK {
		return st
	}
	c.processors[p.ID()] = p
	c.Notify.Publish(notify.ProcessorUpdate, p.ID())
	return plexus.StatusOK
}

// RemoveProcessor removes a processor from track's chain, applied by the
// engine at the next block boundary.
func (c *Controller) RemoveProcessor(track plexus.ID, processor plexus.ID) plexus.Status {
	if _, ok := c.tracks[track]; !ok {
		return plexus.StatusNotFound
	}
	if _, ok := c.processors[processor]; !ok {
		return plexus.StatusNotFound
	}
	if st := c.postReturnable(plexus.RemoveProcessorEvent(processor), 0); st != plexus.StatusOK {
		return st
	}
	delete(c.processors, processor)
	c.MIDI.DisconnectAllForProcessor(processor)
	c.Notify.Publish(notify.ProcessorUpdate, processor)
	return plexus.StatusOK
}

// MoveProcessor relocates a processor within track's chain, applied by the
// engine at the next block boundary.
func (c *Controller) MoveProcessor(track plexus.ID, processor plexus.ID, newIndex int) plexus.Status {
	if _, ok := c.tracks[track]; !ok {
		return plexus.StatusNotFound
	}
	if _, ok := c.processors[processor]; !ok {
		return plexus.StatusNotFound
	}
	return c.postReturnable(plexus.MoveProcessorEvent(processor, newIndex), 0)
}

// SetBypass sets a processor's (or track's) bypass flag, applied by the
// engine at the next block boundary alongside the other chain-mutating
// commands, rather than written to the bool directly from this goroutine.
func (c *Controller) SetBypass(processor plexus.ID, bypass bool) plexus.Status {
	if _, ok := c.lookupProcessor(processor); !ok {
		return plexus.StatusNotFound
	}
	if st := c.postReturnable(plexus.BypassEvent(processor, bypass), 0); st != plexus.StatusOK {
		return st
	}
	c.Notify.Publish(notify.ProcessorUpdate, processor)
	return plexus.StatusOK
}

// Info returns a processor's descriptive snapshot.
func (c *Controller) Info(processor plexus.ID) (plexus.ProcessorInfo, plexus.Status) {
	p, ok := c.lookupProcessor(processor)
	if !ok {
		return plexus.ProcessorInfo{}, plexus.StatusNotFound
	}
	return plexus.ProcessorInfo{
		ID:                p.ID(),
		Name:              p.Name(),
		Label:             p.Label(),
		InputChannels:     p.InputChannels(),
		OutputChannels:    p.OutputChannels(),
		MaxInputChannels:  p.MaxInputChannels(),
		MaxOutputChannels: p.MaxOutputChannels(),
		Bypass:            p.Bypass(),
		Parameters:        p.Parameters(),
		Properties:        p.Properties(),
		Programs:          p.Programs(),
		CurrentProgram:    p.CurrentProgram(),
	}, plexus.StatusOK
}

// lookupProcessor resolves a track or a nested chain processor by id — the
// controller treats tracks and chain processors uniformly wherever the
// Processor interface suffices.
func (c *Controller) lookupProcessor(id plexus.ID) (plexus.Processor, bool) {
	if t, ok := c.tracks[id]; ok {
		return t, true
	}
	p, ok := c.processors[id]
	return p, ok
}

// ---- Parameters and properties -----------------------------------------

// SetParameter posts a parameter change through the dispatcher so it is
// applied on the realtime thread at the next block, and waits for the
// realtime thread's completion before returning a status.
func (c *Controller) SetParameter(processor plexus.ID, param plexus.ID, normalized float32, deadline time.Duration) plexus.Status {
	if _, ok := c.lookupProcessor(processor); !ok {
		return plexus.StatusNotFound
	}
	return c.postReturnable(plexus.ParamChangeFloat(processor, 0, param, normalized), deadline)
}

// ParameterValue reads a processor's current normalized parameter value.
func (c *Controller) ParameterValue(processor, param plexus.ID) (float32, plexus.Status) {
	p, ok := c.lookupProcessor(processor)
	if !ok {
		return 0, plexus.StatusNotFound
	}
	return p.ParameterValue(param)
}

// SetProperty sets a processor's string-valued property directly, without
// a realtime round trip (properties are opaque state slots read outside the
// audio render path, e.g. a plugin's preset-file path).
func (c *Controller) SetProperty(processor, property plexus.ID, value string) plexus.Status {
	p, ok := c.lookupProcessor(processor)
	if !ok {
		return plexus.StatusNotFound
	}
	return p.SetPropertyValue(property, value)
}

// PropertyValue reads a processor's current property value.
func (c *Controller) PropertyValue(processor, property plexus.ID) (string, plexus.Status) {
	p, ok := c.lookupProcessor(processor)
	if !ok {
		return "", plexus.StatusNotFound
	}
	return p.PropertyValue(property)
}

// ---- Programs -----------------------------------------------------------

// Programs lists a processor's program (preset) list.
func (c *Controller) Programs(processor plexus.ID) ([]plexus.Program, plexus.Status) {
	p, ok := c.lookupProcessor(processor)
	if !ok {
		return nil, plexus.StatusNotFound
	}
	return p.Programs(), plexus.StatusOK
}

// SetProgram selects a processor's current program by index.
func (c *Controller) SetProgram(processor plexus.ID, index int) plexus.Status {
	p, ok := c.lookupProcessor(processor)
	if !ok {
		return plexus.StatusNotFound
	}
	st := p.SetProgram(index)
	if st == plexus.StatusOK {
		c.Notify.Publish(notify.ProcessorUpdate, processor)
	}
	return st
}

// ---- State export/apply ---------------------------------------------------

// StateExport bundles a processor's persistable state.
func (c *Controller) StateExport(processor plexus.ID) (plexus.ProcessorState, plexus.Status) {
	p, ok := c.lookupProcessor(processor)
	if !ok {
		return plexus.ProcessorState{}, plexus.StatusNotFound
	}
	return p.StateExport(), plexus.StatusOK
}

// StateApply restores a processor's state from a bundle.
func (c *Controller) StateApply(processor plexus.ID, state plexus.ProcessorState) plexus.Status {
	p, ok := c.lookupProcessor(processor)
	if !ok {
		return plexus.StatusNotFound
	}
	st := p.StateApply(state)
	if st == plexus.StatusOK {
		c.Notify.Publish(notify.ProcessorUpdate, processor)
	}
	return st
}

// ---- MIDI routing -------------------------------------------------------

// ConnectKBIn adds an incoming-note routing table entry.
func (c *Controller) ConnectKBIn(route midi.KBInRoute) plexus.Status { return c.MIDI.AddKBIn(route) }

// DisconnectKBIn removes an incoming-note routing table entry.
func (c *Controller) DisconnectKBIn(port, channel int) plexus.Status {
	return c.MIDI.RemoveKBIn(port, channel)
}

// ConnectKBOut adds an outgoing-note routing table entry.
func (c *Controller) ConnectKBOut(route midi.KBOutRoute) plexus.Status {
	return c.MIDI.AddKBOut(route)
}

// DisconnectKBOut removes an outgoing-note routing table entry.
func (c *Controller) DisconnectKBOut(port, channel int) plexus.Status {
	return c.MIDI.RemoveKBOut(port, channel)
}

// ConnectCCIn adds a CC-to-parameter routing table entry.
func (c *Controller) ConnectCCIn(route midi.CCInRoute) plexus.Status { return c.MIDI.AddCCIn(route) }

// DisconnectCCIn removes a CC-to-parameter routing table entry.
func (c *Controller) DisconnectCCIn(port, channel, cc int) plexus.Status {
	return c.MIDI.RemoveCCIn(port, channel, cc)
}

// ConnectPCIn adds a program-change routing table entry.
func (c *Controller) ConnectPCIn(route midi.PCInRoute) plexus.Status { return c.MIDI.AddPCIn(route) }

// DisconnectPCIn removes a program-change routing table entry.
func (c *Controller) DisconnectPCIn(port, channel int) plexus.Status {
	return c.MIDI.RemovePCIn(port, channel)
}

// DisconnectAllMIDIForProcessor bulk-removes every MIDI route addressed at
// a processor, e.g. as part of deleting it.
func (c *Controller) DisconnectAllMIDIForProcessor(processor plexus.ID) plexus.Status {
	c.MIDI.DisconnectAllForProcessor(processor)
	return plexus.StatusOK
}

// ---- Audio routing --------------------------------------------------------

// SetInputRouting replaces the hardware-input-to-track-bus routing table.
func (c *Controller) SetInputRouting(routes []plexus.ChannelRoute) plexus.Status {
	c.Engine.SetInputRouting(routes)
	return plexus.StatusOK
}

// SetOutputRouting replaces the track-bus-to-hardware-output routing table.
func (c *Controller) SetOutputRouting(routes []plexus.ChannelRoute) plexus.Status {
	c.currentOutputRouting = routes
	c.Engine.SetOutputRouting(routes)
	return plexus.StatusOK
}

// DisconnectAllAudioOutputsFromTrack removes every output routing entry
// whose Track field matches track: a single track-scoped audio-output
// disconnect, since a track's output busses are always addressed the same
// way regardless of bus direction.
func (c *Controller) DisconnectAllAudioOutputsFromTrack(track plexus.ID) plexus.Status {
	kept := c.currentOutputRouting[:0:0]
	for _, r := range c.currentOutputRouting {
		if r.Track != track {
			kept = append(kept, r)
		}
	}
	c.currentOutputRouting = kept
	c.Engine.SetOutputRouting(kept)
	return plexus.StatusOK
}
