package plexus

import "math"

// EventKind tags the payload carried by an RTEvent.
type EventKind uint8

const (
	EventNoteOn EventKind = iota
	EventNoteOff
	EventAftertouch
	EventChannelAftertouch
	EventPitchBend
	EventModulation
	EventParameterChange
	EventRawMIDI
	EventBypass
	EventInsertProcessor
	EventRemoveProcessor
	EventMoveProcessor
	EventCreateTrack
	EventDeleteTrack
	EventCompletion
)

// rtValue packs whichever scalar payload the enclosing RTEvent's Kind calls
// for (note/aftertouch, pitch bend/modulation/channel aftertouch, parameter
// change, raw MIDI) into two words via bit-packing rather than one
// always-present field per variant, so no Kind pays for the storage of the
// others and no Kind ever needs to box a value onto the heap to carry it.
type rtValue struct {
	a, b uint64
}

func newNoteValue(channel, note, velocity uint8) rtValue {
	return rtValue{a: uint64(channel) | uint64(note)<<8 | uint64(velocity)<<16}
}

func (v rtValue) note() (channel, note, velocity uint8) {
	return uint8(v.a), uint8(v.a >> 8), uint8(v.a >> 16)
}

// newLevelValue packs a MIDI channel alongside a normalized level: pitch
// bend, channel aftertouch and modulation all carry both.
func newLevelValue(channel uint8, f float64) rtValue {
	return rtValue{a: math.Float64bits(f), b: uint64(channel)}
}

func (v rtValue) level() (channel uint8, f float64) {
	return uint8(v.b), math.Float64frombits(v.a)
}

func newParamValue(kind ParameterType, id ID, f float32, i int32, b bool) rtValue {
	var bb uint64
	if b {
		bb = 1
	}
	return rtValue{
		a: uint64(id) | uint64(kind)<<32 | bb<<40,
		b: uint64(math.Float32bits(f)) | uint64(uint32(i))<<32,
	}
}

func (v rtValue) param() (id ID, kind ParameterType, f float32, i int32, b bool) {
	id = ID(uint32(v.a))
	kind = ParameterType((v.a >> 32) & 0xff)
	b = (v.a>>40)&1 == 1
	f = math.Float32frombits(uint32(v.b))
	i = int32(uint32(v.b >> 32))
	return
}

func newRawMIDIValue(raw []byte) rtValue {
	var a uint64 = uint64(len(raw))
	for i := 0; i < len(raw) && i < 3; i++ {
		a |= uint64(raw[i]) << (8 * (i + 1))
	}
	return rtValue{a: a}
}

func (v rtValue) rawMIDI() (raw [3]byte, n uint8) {
	n = uint8(v.a)
	for i := 0; i < 3; i++ {
		raw[i] = byte(v.a >> (8 * (i + 1)))
	}
	return
}

// structuralPayload carries the pointer-typed fields used only by the rare,
// non-per-sample structural mutation kinds: insert/remove/move processor,
// bypass, create/delete track. Every one of these is always posted through
// Dispatcher.PostReturnable and resolved synchronously by the caller before
// the next such event is built, so boxing this small struct once per call
// is nowhere near the per-sample hot path rtValue above is sized for.
type structuralPayload struct {
	Processor   Processor
	TrackHandle EngineTrack
	BeforeID    ID
	NewIndex    int
	Core        *int
	Bypassed    bool
}

// RTEvent is a compact, copyable, trivially-destructible tagged record
// carrying one realtime event, sized to fit in a single cache line so
// pushing and popping it through rtqueue is a plain value copy with no
// allocation. Kind/Target/SampleOffset/ReturnableID are always meaningful
// and Status is meaningful for EventCompletion; every payload that varies
// by Kind lives in the value union
// (or, for the rare pointer-carrying structural mutation kinds, behind the
// structural pointer) rather than as its own always-present field — that
// union is what keeps the record this small despite carrying half a dozen
// different event shapes.
type RTEvent struct {
	Kind         EventKind
	SampleOffset uint16 // offset within the current chunk, [0, ChunkSize)
	Target       ID     // processor (or track) this event addresses
	ReturnableID uint64 // 0 unless posted via PostReturnable, valid for any Kind
	Status       Status // completion status, meaningful only for EventCompletion

	value      rtValue
	structural *structuralPayload
}

// Channel/Note/Velocity read back the note or channel-level payload.
func (e RTEvent) Channel() uint8 {
	switch e.Kind {
	case EventPitchBend, EventChannelAftertouch, EventModulation:
		c, _ := e.value.level()
		return c
	default:
		c, _, _ := e.value.note()
		return c
	}
}

func (e RTEvent) Note() uint8 { _, n, _ := e.value.note(); return n }

func (e RTEvent) Velocity() uint8 { _, _, v := e.value.note(); return v }

// Float64 reads back the pitch-bend/modulation/channel-aftertouch payload:
// normalized to [-1,1] for pitch bend, [0,1] otherwise.
func (e RTEvent) Float64() float64 { _, f := e.value.level(); return f }

// ParamID/ParamKind/FloatValue/IntValue/BoolValue read back the
// parameter-change payload.
func (e RTEvent) ParamID() ID              { id, _, _, _, _ := e.value.param(); return id }
func (e RTEvent) ParamKind() ParameterType { _, k, _, _, _ := e.value.param(); return k }
func (e RTEvent) FloatValue() float32      { _, _, f, _, _ := e.value.param(); return f }
func (e RTEvent) IntValue() int32          { _, _, _, i, _ := e.value.param(); return i }
func (e RTEvent) BoolValue() bool          { _, _, _, _, b := e.value.param(); return b }

// RawMIDI/RawMIDILen read back the raw-MIDI payload.
func (e RTEvent) RawMIDI() [3]byte  { raw, _ := e.value.rawMIDI(); return raw }
func (e RTEvent) RawMIDILen() uint8 { _, n := e.value.rawMIDI(); return n }

// Bypassed/BeforeID/NewIndex/Processor/TrackHandle/Core read back the
// structural-mutation payload. They report zero values when this event
// does not carry one; Kind determines which are actually meaningful.
func (e RTEvent) Bypassed() bool {
	if e.structural == nil {
		return false
	}
	return e.structural.Bypassed
}

func (e RTEvent) BeforeID() ID {
	if e.structural == nil {
		return InvalidID
	}
	return e.structural.BeforeID
}

func (e RTEvent) NewIndex() int {
	if e.structural == nil {
		return 0
	}
	return e.structural.NewIndex
}

func (e RTEvent) Processor() Processor {
	if e.structural == nil {
		return nil
	}
	return e.structural.Processor
}

func (e RTEvent) TrackHandle() EngineTrack {
	if e.structural == nil {
		return nil
	}
	return e.structural.TrackHandle
}

func (e RTEvent) Core() *int {
	if e.structural == nil {
		return nil
	}
	return e.structural.Core
}

// NoteOn builds a note-on RTEvent.
func NoteOn(target ID, offset uint16, channel, note, velocity uint8) RTEvent {
	return RTEvent{Kind: EventNoteOn, Target: target, SampleOffset: offset, value: newNoteValue(channel, note, velocity)}
}

// NoteOff builds a note-off RTEvent.
func NoteOff(target ID, offset uint16, channel, note, velocity uint8) RTEvent {
	return RTEvent{Kind: EventNoteOff, Target: target, SampleOffset: offset, value: newNoteValue(channel, note, velocity)}
}

// PitchBendEvent builds a pitch-bend RTEvent; normalized is in [-1, 1].
func PitchBendEvent(target ID, offset uint16, channel uint8, normalized float64) RTEvent {
	return RTEvent{Kind: EventPitchBend, Target: target, SampleOffset: offset, value: newLevelValue(channel, normalized)}
}

// ChannelAftertouchEvent builds a channel-aftertouch RTEvent; normalized is
// in [0, 1].
func ChannelAftertouchEvent(target ID, offset uint16, channel uint8, normalized float64) RTEvent {
	return RTEvent{Kind: EventChannelAftertouch, Target: target, SampleOffset: offset, value: newLevelValue(channel, normalized)}
}

// ModulationEvent builds a modulation-wheel RTEvent; normalized is in [0, 1].
func ModulationEvent(target ID, offset uint16, channel uint8, normalized float64) RTEvent {
	return RTEvent{Kind: EventModulation, Target: target, SampleOffset: offset, value: newLevelValue(channel, normalized)}
}

// ParamChangeFloat builds a float parameter-change RTEvent. value is
// normalized to [0,1]; callers are expected to have already clamped it.
func ParamChangeFloat(target ID, offset uint16, param ID, value float32) RTEvent {
	return RTEvent{Kind: EventParameterChange, Target: target, SampleOffset: offset, value: newParamValue(ParameterFloat, param, value, 0, false)}
}

// ParamChangeInt builds an int parameter-change RTEvent.
func ParamChangeInt(target ID, offset uint16, param ID, value int32) RTEvent {
	return RTEvent{Kind: EventParameterChange, Target: target, SampleOffset: offset, value: newParamValue(ParameterInt, param, 0, value, false)}
}

// ParamChangeBool builds a bool parameter-change RTEvent.
func ParamChangeBool(target ID, offset uint16, param ID, value bool) RTEvent {
	return RTEvent{Kind: EventParameterChange, Target: target, SampleOffset: offset, value: newParamValue(ParameterBool, param, 0, 0, value)}
}

// RawMIDIEvent wraps a 1-3 byte raw MIDI message.
func RawMIDIEvent(target ID, offset uint16, raw []byte) RTEvent {
	return RTEvent{Kind: EventRawMIDI, Target: target, SampleOffset: offset, value: newRawMIDIValue(raw)}
}

// Completion builds the RTEvent the realtime thread pushes to the outbound
// queue once it has finished handling a returnable event.
func Completion(returnableID uint64, status Status) RTEvent {
	return RTEvent{Kind: EventCompletion, ReturnableID: returnableID, Status: status}
}

// InsertProcessorEvent builds the RTEvent that inserts p into track's chain
// at the next block boundary. beforeID nil means append.
func InsertProcessorEvent(track ID, p Processor, beforeID *ID) RTEvent {
	before := InvalidID
	if beforeID != nil {
		before = *beforeID
	}
	return RTEvent{Kind: EventInsertProcessor, Target: track, structural: &structuralPayload{Processor: p, BeforeID: before}}
}

// RemoveProcessorEvent builds the RTEvent that removes processor from its
// owning track's chain at the next block boundary.
func RemoveProcessorEvent(processor ID) RTEvent {
	return RTEvent{Kind: EventRemoveProcessor, Target: processor}
}

// MoveProcessorEvent builds the RTEvent that relocates processor to
// newIndex within its owning track's chain at the next block boundary.
func MoveProcessorEvent(processor ID, newIndex int) RTEvent {
	return RTEvent{Kind: EventMoveProcessor, Target: processor, structural: &structuralPayload{NewIndex: newIndex}}
}

// BypassEvent builds the RTEvent that sets target's (a track's or a chain
// processor's) bypass flag at the next block boundary.
func BypassEvent(target ID, bypass bool) RTEvent {
	return RTEvent{Kind: EventBypass, Target: target, structural: &structuralPayload{Bypassed: bypass}}
}

// CreateTrackEvent builds the RTEvent that admits t into the graph and
// engine at the next block boundary. core pins t to a worker (nil for
// round-robin placement).
func CreateTrackEvent(t EngineTrack, core *int) RTEvent {
	return RTEvent{Kind: EventCreateTrack, Target: t.ID(), structural: &structuralPayload{TrackHandle: t, Core: core}}
}

// DeleteTrackEvent builds the RTEvent that removes track id from the graph
// and engine at the next block boundary.
func DeleteTrackEvent(id ID) RTEvent {
	return RTEvent{Kind: EventDeleteTrack, Target: id}
}

// NRTOp tags the payload of a NonRealtimeEvent.
type NRTOp int

const (
	OpNone NRTOp = iota
	OpCreateTrack
	OpDeleteTrack
	OpConnectAudioRoute
	OpConnectMIDIRoute
	OpConnectCVRoute
	OpApplyProcessorState
	OpEnumerate
	OpRTEvent // wraps a plain RTEvent for posting into the inbound queue
)

// NonRealtimeEvent is a heap-allocated, polymorphic record constructed in
// controller code, enqueued into the dispatcher, and released after its
// completion callback (if any) has fired. TimestampNanos is wall-clock time
// at construction, used by the dispatcher's scheduled-event heap.
type NonRealtimeEvent struct {
	Op             NRTOp
	TimestampNanos int64
	ReturnableID   uint64 // 0 if this event carries no completion
	RTPayload      RTEvent
	StringPayload  string
	IntPayload     int
	BytesPayload   []byte
	Callback       func(Status, any)
}
