package midi

import (
	"gitlab.com/gomidi/midi/v2"

	"github.com/rjarnstrom/plexus"
)

// Decode turns one raw incoming (port, timestamp, raw MIDI bytes) tuple
// from the MIDI backend interface into zero or one realtime event,
// consulting the current routing tables for where it should land.
// sampleOffset is the caller-computed position of timestamp within the
// current chunk.
func Decode(tables *Tables, port int, sampleOffset uint16, raw []byte) (plexus.RTEvent, bool) {
	msg := midi.Message(raw)

	var channel, key, velocity uint8
	if msg.GetNoteOn(&channel, &key, &velocity) {
		route, ok := tables.LookupKBIn(port, int(channel))
		if !ok {
			return plexus.RTEvent{}, false
		}
		if route.RawMIDI {
			return plexus.RawMIDIEvent(route.Target, sampleOffset, raw), true
		}
		if velocity == 0 {
			return plexus.NoteOff(route.Target, sampleOffset, channel, key, 0), true
		}
		return plexus.NoteOn(route.Target, sampleOffset, channel, key, velocity), true
	}
	if msg.GetNoteOff(&channel, &key, &velocity) {
		route, ok := tables.LookupKBIn(port, int(channel))
		if !ok {
			return plexus.RTEvent{}, false
		}
		if route.RawMIDI {
			return plexus.RawMIDIEvent(route.Target, sampleOffset, raw), true
		}
		return plexus.NoteOff(route.Target, sampleOffset, channel, key, velocity), true
	}
	var cc, value uint8
	if msg.GetControlChange(&channel, &cc, &value) {
		route, ok := tables.LookupCCIn(port, int(channel), int(cc))
		if !ok {
			return plexus.RTEvent{}, false
		}
		// CC value=64 on a [0,1] range normalizes to ~0.504 (64/127).
		normalized := float64(value) / 127
		domain := route.Min + normalized*(route.Max-route.Min)
		clamped := clampFloat(domain, route.Min, route.Max)
		return plexus.ParamChangeFloat(route.Processor, sampleOffset, route.Parameter, float32(route.normalizeToUnit(clamped))), true
	}
	var program uint8
	if msg.GetProgramChange(&channel, &program) {
		route, ok := tables.LookupPCIn(port, int(channel))
		if !ok {
			return plexus.RTEvent{}, false
		}
		return plexus.ParamChangeInt(route.Processor, sampleOffset, plexus.InvalidID, int32(program)), true
	}
	var bend int16
	if msg.GetPitchBend(&channel, &bend, nil) {
		route, ok := tables.LookupKBIn(port, int(channel))
		if !ok {
			return plexus.RTEvent{}, false
		}
		return plexus.PitchBendEvent(route.Target, sampleOffset, channel, float64(bend)/8192), true
	}
	var pressure uint8
	if msg.GetAfterTouch(&channel, &pressure) {
		route, ok := tables.LookupKBIn(port, int(channel))
		if !ok {
			return plexus.RTEvent{}, false
		}
		return plexus.ChannelAftertouchEvent(route.Target, sampleOffset, channel, float64(pressure)/127), true
	}
	return plexus.RTEvent{}, false
}

func clampFloat(v, lo, hi float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeToUnit maps a domain value on route's [Min,Max] range back to
// [0,1], matching plexus.ParameterDescriptor.Normalize's convention — the
// event carries a normalized value, and the target processor's own
// descriptor decides how to denormalize it back into its domain.
func (r CCInRoute) normalizeToUnit(domain float64) float64 {
	if r.Max <= r.Min {
		return 0
	}
	n := (domain - r.Min) / (r.Max - r.Min)
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// EncodeKBOut turns a re-tagged track event forwarded to a kb-out route
// back into raw MIDI bytes for the MIDI backend to send.
func EncodeKBOut(route KBOutRoute, ev plexus.RTEvent) ([]byte, bool) {
	switch ev.Kind {
	case plexus.EventNoteOn:
		return midi.NoteOn(channelOf(route.Channel), ev.Note(), ev.Velocity()), true
	case plexus.EventNoteOff:
		return midi.NoteOff(channelOf(route.Channel), ev.Note()), true
	default:
		return nil, false
	}
}

func channelOf(c int) uint8 { return uint8(c) }
