package plexus

import "errors"

// busWidth is the channel width of one output bus. A bus is typically
// stereo; this host only supports stereo busses, which keeps the pan law
// well-defined.
const busWidth = 2

// EventSink is the lock-free FIFO a track forwards its (re-tagged) events
// onto. Concrete implementations live in rtqueue; this is declared here to
// avoid a dependency cycle.
type EventSink interface {
	TryPush(ev RTEvent) bool
}

// Track is a Processor that composes an ordered chain of child processors,
// with its own input/output bus grouping, per-bus gain and pan, and an
// optional event output for forwarding note-on/note-off events upstream.
type Track struct {
	BaseProcessor

	chain    []Processor // preallocated capacity; add/remove/move never grow past cap on the RT thread

	inputBuses  int
	outputBuses int

	busGain []busGainPan // len == outputBuses

	eventOut EventSink // nil if this track has no event output configured

	scratch Buffer // preallocated per-processor intermediate buffer, reused when the width matches
}

type busGainPan struct {
	gainID, panID ID
	gainTarget    float32 // linear, 0..2
	gainCurrent   float32
	panTarget     float32 // -1..1
	panCurrent    float32
}

// NewTrack constructs a track with one input bus and outputBuses output
// busses (each stereo), and preallocated chain capacity for maxChainLen
// processors, so add/remove/move never allocate on the realtime thread.
func NewTrack(id ID, name string, outputBuses, maxChainLen int, ids *IDAllocator) *Track {
	if outputBuses < 1 {
		outputBuses = 1
	}
	t := &Track{
		BaseProcessor: NewBaseProcessor(id, name, "Track", busWidth, outputBuses*busWidth),
		chain:         make([]Processor, 0, maxChainLen),
		inputBuses:    1,
		outputBuses:   outputBuses,
		busGain:       make([]busGainPan, outputBuses),
		scratch:       NewBuffer(busWidth),
	}
	for i := range t.busGain {
		gainID, panID := ids.Next(), ids.Next()
		t.busGain[i] = busGainPan{
			gainID: gainID, panID: panID,
			gainTarget: 1, gainCurrent: 1,
		}
		t.AddParameter(ParameterDescriptor{ID: gainID, Name: "gain", Label: "Gain", Type: ParameterFloat, Min: 0, Max: 2, Automatable: true}, 0.5)
		t.AddParameter(ParameterDescriptor{ID: panID, Name: "pan", Label: "Pan", Type: ParameterFloat, Min: -1, Max: 1, Automatable: true}, 0.5)
	}
	return t
}

// SetParameterValue clamps and stores normalized as usual, and — for the
// track's own bus gain/pan parameters — also updates the smoothing target
// consumed by ProcessAudio, so a direct (non-realtime) set takes effect on
// the next block without waiting for a matching RTEvent.
func (t *Track) SetParameterValue(id ID, normalized float32) Status {
	st := t.BaseProcessor.SetParameterValue(id, normalized)
	if st != StatusOK {
		return st
	}
	for i := range t.busGain {
		bg := &t.busGain[i]
		switch id {
		case bg.gainID:
			bg.gainTarget = clampf32(normalized, 0, 1) * 2
		case bg.panID:
			bg.panTarget = clampf32(normalized, 0, 1)*2 - 1
		}
	}
	return StatusOK
}

// NewMultibusTrack is an alias for NewTrack documenting the multibus
// creation entry point on the controller's track-creation surface.
func NewMultibusTrack(id ID, name string, outputBuses, maxChainLen int, ids *IDAllocator) *Track {
	return NewTrack(id, name, outputBuses, maxChainLen, ids)
}

// BusGainParameterID returns the parameter id of the given output bus's
// gain control.
func (t *Track) BusGainParameterID(bus int) (ID, Status) {
	if bus < 0 || bus >= len(t.busGain) {
		return InvalidID, StatusOutOfRange
	}
	return t.busGain[bus].gainID, StatusOK
}

// BusPanParameterID returns the parameter id of the given output bus's pan
// control.
func (t *Track) BusPanParameterID(bus int) (ID, Status) {
	if bus < 0 || bus >= len(t.busGain) {
		return InvalidID, StatusOutOfRange
	}
	return t.busGain[bus].panID, StatusOK
}

// SetEventOutput installs (or clears, with nil) the track's event output
// FIFO. Must not be called concurrently with ProcessAudio/ProcessEvent.
func (t *Track) SetEventOutput(sink EventSink) { t.eventOut = sink }

// Chain returns the current processor chain in order. The returned slice
// aliases internal storage and must not be retained past the next mutating
// call.
func (t *Track) Chain() []Processor { return t.chain }

// ErrChainFull names the condition of an exhausted preallocated chain
// capacity. Add reports that condition as StatusOutOfRange and does not
// return this error.
var ErrChainFull = errors.New("track chain is at capacity")

// Add inserts processor into the chain. If beforeID is non-nil, the
// processor is inserted immediately before the processor with that id (nil
// means append). Add renegotiates channel counts through the chain and
// never allocates beyond the track's preallocated chain capacity.
func (t *Track) Add(p Processor, beforeID *ID) Status {
	if len(t.chain) >= cap(t.chain) {
		return StatusOutOfRange
	}
	idx := len(t.chain)
	if beforeID != nil {
		found := false
		for i, existing := range t.chain {
			if existing.ID() == *beforeID {
				idx = i
				found = true
				break
			}
		}
		if !found {
			return StatusNotFound
		}
	}
	t.chain = append(t.chain, nil)
	copy(t.chain[idx+1:], t.chain[idx:])
	t.chain[idx] = p
	t.renegotiate()
	return StatusOK
}

// Remove deletes the processor with the given id from the chain.
func (t *Track) Remove(id ID) Status {
	for i, p := range t.chain {
		if p.ID() == id {
			copy(t.chain[i:], t.chain[i+1:])
			t.chain[len(t.chain)-1] = nil
			t.chain = t.chain[:len(t.chain)-1]
			t.renegotiate()
			return StatusOK
		}
	}
	return StatusNotFound
}

// Move relocates the processor with the given id to newIndex in the chain.
func (t *Track) Move(id ID, newIndex int) Status {
	from := -1
	for i, p := range t.chain {
		if p.ID() == id {
			from = i
			break
		}
	}
	if from < 0 {
		return StatusNotFound
	}
	if newIndex < 0 || newIndex >= len(t.chain) {
		return StatusOutOfRange
	}
	p := t.chain[from]
	copy(t.chain[from:], t.chain[from+1:])
	t.chain = t.chain[:len(t.chain)-1]
	t.chain = append(t.chain, nil)
	copy(t.chain[newIndex+1:], t.chain[newIndex:])
	t.chain[newIndex] = p
	t.renegotiate()
	return StatusOK
}

// renegotiate walks the chain from the track's input channel count
// forward: each processor is asked for its preferred output count given
// its input, which becomes the next processor's input channel count. The
// final pad/truncate to the track's declared output channel count happens
// in ProcessAudio via applyBusGainPan.
func (t *Track) renegotiate() {
	cur := t.InputChannels()
	for _, p := range t.chain {
		p.SetInputChannels(cur)
		want := p.PreferredOutputChannels(cur)
		cur = p.SetOutputChannels(want)
	}
}

func (t *Track) PreferredOutputChannels(int) int { return t.OutputChannels() }

// ProcessEvent applies ev to the track's own bus gain/pan parameters when
// the track is its target, and otherwise hands it to every non-bypassed
// child processor in the chain. If the
// track is bypassed, all in-flight events (including parameter changes
// targeting a bypassed unit inside the chain) are discarded for the
// remainder of the block.
//
// EventInsertProcessor/EventRemoveProcessor/EventMoveProcessor/EventBypass
// mutate the chain itself, so they run ahead of the bypass check and the
// per-block event forwarding below: the engine only ever delivers them at
// a block boundary (see AudioEngine.drainInbound), which is what makes
// t.chain safe to mutate here without any lock against ProcessAudio.
func (t *Track) ProcessEvent(ev RTEvent) {
	switch ev.Kind {
	case EventInsertProcessor:
		var beforeID *ID
		if id := ev.BeforeID(); id != InvalidID {
			beforeID = &id
		}
		t.Add(ev.Processor(), beforeID)
		return
	case EventRemoveProcessor:
		t.Remove(ev.Target)
		return
	case EventMoveProcessor:
		t.Move(ev.Target, ev.NewIndex())
		return
	case EventBypass:
		if ev.Target == t.ID() {
			t.SetBypass(ev.Bypassed())
		} else if p := t.findChild(ev.Target); p != nil {
			p.SetBypass(ev.Bypassed())
		}
		return
	}

	if t.Bypass() {
		return
	}
	if ev.Kind == EventParameterChange && ev.Target == t.ID() {
		t.SetParameterValue(ev.ParamID(), ev.FloatValue())
		return
	}
	for _, p := range t.chain {
		if p.Bypass() {
			continue // bypass flushes in-flight events for that unit
		}
		p.ProcessEvent(ev)
	}
	if ev.Kind == EventNoteOn || ev.Kind == EventNoteOff {
		t.forward(ev)
	}
}

// findChild looks up a chain processor by id.
func (t *Track) findChild(id ID) Processor {
	for _, p := range t.chain {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

// forward re-tags ev with the track's own id and pushes it to the event
// output FIFO, so external consumers see the track (not the inner
// processor) as the event source.
func (t *Track) forward(ev RTEvent) {
	if t.eventOut == nil {
		return
	}
	ev.Target = t.ID()
	t.eventOut.TryPush(ev)
}

// ProcessAudio walks the chain in order, then applies per-bus gain/pan and
// writes the result into out. in/out are sized to the track's declared
// input/output channel counts.
func (t *Track) ProcessAudio(in, out Buffer) {
	if t.Bypass() {
		bypassProcessAudio(in, out)
		return
	}
	cur := in
	for _, p := range t.chain {
		next := t.scratch
		if p.OutputChannels() != next.Channels() {
			next = NewBuffer(p.OutputChannels()) // rare: only on a channel-count change, off the steady-state hot path
		}
		p.ProcessAudio(cur, next)
		cur = next
	}
	applyBusGainPan(cur, out, t.busGain)
}

// StateExport bundles the track's own parameters (bus gains/pans) — a
// track's chain state is exported per-processor by the controller facade,
// not folded into the track's own bundle.
func (t *Track) StateExport() ProcessorState { return t.BaseProcessor.StateExport(t.Name()) }
