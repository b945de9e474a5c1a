package midi

import (
	"math"
	"testing"

	"github.com/rjarnstrom/plexus"
)

func TestDecodeNoteOnRoutesToTarget(t *testing.T) {
	r := NewRouter()
	r.AddKBIn(KBInRoute{Port: 0, Channel: 0, Target: 7})

	raw := []byte{0x90, 60, 100} // note-on, channel 0, key 60, velocity 100
	ev, ok := Decode(r.Current(), 0, 5, raw)
	if !ok {
		t.Fatalf("expected note-on to decode")
	}
	if ev.Kind != plexus.EventNoteOn || ev.Target != 7 || ev.Note() != 60 || ev.Velocity() != 100 || ev.SampleOffset != 5 {
		t.Fatalf("unexpected decoded event: %+v", ev)
	}
}

func TestDecodeNoteOnWithZeroVelocityIsNoteOff(t *testing.T) {
	r := NewRouter()
	r.AddKBIn(KBInRoute{Port: 0, Channel: 0, Target: 7})

	raw := []byte{0x90, 60, 0}
	ev, ok := Decode(r.Current(), 0, 0, raw)
	if !ok || ev.Kind != plexus.EventNoteOff {
		t.Fatalf("expected note-on with velocity 0 to decode as note-off, got %+v ok=%v", ev, ok)
	}
}

func TestDecodeUnroutedNoteIsDropped(t *testing.T) {
	r := NewRouter()
	raw := []byte{0x90, 60, 100}
	if _, ok := Decode(r.Current(), 0, 0, raw); ok {
		t.Fatalf("expected an unrouted (port,channel) note to be dropped")
	}
}

func TestDecodeControlChangeNormalizesToRouteRange(t *testing.T) {
	r := NewRouter()
	r.AddCCIn(CCInRoute{Port: 0, Channel: 0, CC: 1, Processor: 9, Parameter: 20, Min: 0, Max: 1})

	raw := []byte{0xB0, 1, 64} // control change, channel 0, cc 1, value 64
	ev, ok := Decode(r.Current(), 0, 0, raw)
	if !ok || ev.Kind != plexus.EventParameterChange {
		t.Fatalf("expected control change to decode as a parameter change, got %+v ok=%v", ev, ok)
	}
	want := float32(64.0 / 127.0)
	if math.Abs(float64(ev.FloatValue()-want)) > 1e-6 {
		t.Fatalf("expected normalized value ~%v, got %v", want, ev.FloatValue())
	}
	if ev.Target != 9 || ev.ParamID() != 20 {
		t.Fatalf("expected routed target/param, got target=%v param=%v", ev.Target, ev.ParamID())
	}
}

func TestDecodeProgramChangeRoutesToProcessor(t *testing.T) {
	r := NewRouter()
	r.AddPCIn(PCInRoute{Port: 0, Channel: 0, Processor: 3})

	raw := []byte{0xC0, 5} // program change, channel 0, program 5
	ev, ok := Decode(r.Current(), 0, 0, raw)
	if !ok || ev.Kind != plexus.EventParameterChange || ev.Target != 3 || ev.IntValue() != 5 {
		t.Fatalf("unexpected decoded program change: %+v ok=%v", ev, ok)
	}
}
