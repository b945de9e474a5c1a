package plexus

import "testing"

type fakeInbound struct{ events []RTEvent }

func (f *fakeInbound) TryPop() (RTEvent, bool) {
	if len(f.events) == 0 {
		return RTEvent{}, false
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, true
}

type fakeOutbound struct{ events []RTEvent }

func (f *fakeOutbound) TryPush(ev RTEvent) bool {
	f.events = append(f.events, ev)
	return true
}

func newTestEngine(t *testing.T, inbound *fakeInbound, outbound *fakeOutbound) (*AudioEngine, *IDAllocator) {
	t.Helper()
	ids := &IDAllocator{}
	transport := NewTransport(48000)
	graph := NewAudioGraph(1, 0, nil)
	t.Cleanup(graph.Close)
	e := NewAudioEngine(transport, graph, inbound, outbound)
	return e, ids
}

func TestEngineProcessRejectsNonMultipleChunkSize(t *testing.T) {
	e, _ := newTestEngine(t, &fakeInbound{}, &fakeOutbound{})
	in := [][]float32{make([]float32, ChunkSize+1)}
	out := [][]float32{make([]float32, ChunkSize+1)}
	if st := e.Process(in, out, ChunkSize+1); st != StatusInvalidArguments {
		t.Fatalf("expected invalid-arguments for non-multiple frame count, got %v", st)
	}
}

func TestEngineProcessFailsAfterShutdown(t *testing.T) {
	e, _ := newTestEngine(t, &fakeInbound{}, &fakeOutbound{})
	e.Shutdown()
	in := [][]float32{make([]float32, ChunkSize)}
	out := [][]float32{make([]float32, ChunkSize)}
	if st := e.Process(in, out, ChunkSize); st != StatusError {
		t.Fatalf("expected error after shutdown, got %v", st)
	}
}

func TestEngineRoutesInputThroughTrackToOutput(t *testing.T) {
	inbound := &fakeInbound{}
	outbound := &fakeOutbound{}
	e, ids := newTestEngine(t, inbound, outbound)

	track := NewTrack(ids.Next(), "t", 1, 4, ids)
	e.RegisterTrack(track)
	e.Graph.AddTrack(track, nil)
	e.SetInputRouting([]ChannelRoute{
		{HardwareChannel: 0, Track: track.ID(), TrackChannel: 0},
		{HardwareChannel: 1, Track: track.ID(), TrackChannel: 1},
	})
	e.SetOutputRouting([]ChannelRoute{
		{HardwareChannel: 0, Track: track.ID(), TrackChannel: 0},
		{HardwareChannel: 1, Track: track.ID(), TrackChannel: 1},
	})

	nFrames := ChunkSize
	in := [][]float32{make([]float32, nFrames), make([]float32, nFrames)}
	for i := range in[0] {
		in[0][i] = 1
		in[1][i] = 1
	}
	out := [][]float32{make([]float32, nFrames), make([]float32, nFrames)}
	if st := e.Process(in, out, nFrames); st != StatusOK {
		t.Fatalf("process failed: %v", st)
	}

	// Track has unity gain, centered pan by default -> input passes through
	// at unity into both output channels.
	if out[0][0] == 0 && out[1][0] == 0 {
		t.Fatalf("expected non-silent routed output, got %v %v", out[0][0], out[1][0])
	}
}

func TestEngineEventToNestedProcessorRoutesViaOwner(t *testing.T) {
	inbound := &fakeInbound{}
	outbound := &fakeOutbound{}
	e, ids := newTestEngine(t, inbound, outbound)

	track := NewTrack(ids.Next(), "t", 1, 4, ids)
	e.RegisterTrack(track)
	e.Graph.AddTrack(track, nil)

	gainID := ids.Next()
	gain := NewGainProcessor(ids.Next(), "gain", gainID)
	track.Add(gain, nil)
	e.RegisterProcessorOwner(gain.ID(), track.ID())

	// Address the event to the nested processor, not the owning track.
	inbound.events = append(inbound.events, ParamChangeFloat(gain.ID(), 0, gainID, 1))

	nFrames := ChunkSize
	in := [][]float32{make([]float32, nFrames), make([]float32, nFrames)}
	out := [][]float32{make([]float32, nFrames), make([]float32, nFrames)}
	if st := e.Process(in, out, nFrames); st != StatusOK {
		t.Fatalf("process failed: %v", st)
	}

	v, _ := gain.ParameterValue(gainID)
	if v != 1 {
		t.Fatalf("expected event routed through owner to reach nested processor, got parameter value %v", v)
	}
}

func TestEngineAppliesCreateTrackEventAtBlockBoundary(t *testing.T) {
	inbound := &fakeInbound{}
	outbound := &fakeOutbound{}
	e, ids := newTestEngine(t, inbound, outbound)

	track := NewTrack(ids.Next(), "t", 1, 4, ids)
	inbound.events = append(inbound.events, CreateTrackEvent(track, nil))

	nFrames := ChunkSize
	in := [][]float32{make([]float32, nFrames)}
	out := [][]float32{make([]float32, nFrames)}
	if st := e.Process(in, out, nFrames); st != StatusOK {
		t.Fatalf("process failed: %v", st)
	}

	if _, ok := e.Graph.WorkerOf(track.ID()); !ok {
		t.Fatalf("expected track admitted into the graph")
	}

	inbound.events = append(inbound.events, DeleteTrackEvent(track.ID()))
	if st := e.Process(in, out, nFrames); st != StatusOK {
		t.Fatalf("process failed: %v", st)
	}
	if _, ok := e.Graph.WorkerOf(track.ID()); ok {
		t.Fatalf("expected track removed from the graph")
	}
}

func TestEngineAppliesInsertRemoveMoveAndBypassEvents(t *testing.T) {
	inbound := &fakeInbound{}
	outbound := &fakeOutbound{}
	e, ids := newTestEngine(t, inbound, outbound)

	track := NewTrack(ids.Next(), "t", 1, 4, ids)
	e.RegisterTrack(track)
	e.Graph.AddTrack(track, nil)

	firstID := ids.Next()
	first := NewGainProcessor(ids.Next(), "first", firstID)
	secondID := ids.Next()
	second := NewGainProcessor(ids.Next(), "second", secondID)

	nFrames := ChunkSize
	in := [][]float32{make([]float32, nFrames), make([]float32, nFrames)}
	out := [][]float32{make([]float32, nFrames), make([]float32, nFrames)}

	inbound.events = append(inbound.events, InsertProcessorEvent(track.ID(), first, nil))
	if st := e.Process(in, out, nFrames); st != StatusOK {
		t.Fatalf("process failed: %v", st)
	}
	inbound.events = append(inbound.events, InsertProcessorEvent(track.ID(), second, nil))
	if st := e.Process(in, out, nFrames); st != StatusOK {
		t.Fatalf("process failed: %v", st)
	}
	if chain := track.Chain(); len(chain) != 2 || chain[0].ID() != first.ID() || chain[1].ID() != second.ID() {
		t.Fatalf("expected chain [first, second], got %v", chain)
	}

	inbound.events = append(inbound.events, MoveProcessorEvent(second.ID(), 0))
	if st := e.Process(in, out, nFrames); st != StatusOK {
		t.Fatalf("process failed: %v", st)
	}
	if chain := track.Chain(); len(chain) != 2 || chain[0].ID() != second.ID() {
		t.Fatalf("expected second moved to front, got %v", chain)
	}

	inbound.events = append(inbound.events, BypassEvent(first.ID(), true))
	if st := e.Process(in, out, nFrames); st != StatusOK {
		t.Fatalf("process failed: %v", st)
	}
	if !first.Bypass() {
		t.Fatalf("expected first processor bypassed")
	}

	inbound.events = append(inbound.events, RemoveProcessorEvent(first.ID()))
	if st := e.Process(in, out, nFrames); st != StatusOK {
		t.Fatalf("process failed: %v", st)
	}
	if chain := track.Chain(); len(chain) != 1 || chain[0].ID() != second.ID() {
		t.Fatalf("expected only second processor left, got %v", chain)
	}
}

func TestEngineDrainsInboundBeforeRenderAndPostsCompletion(t *testing.T) {
	inbound := &fakeInbound{}
	outbound := &fakeOutbound{}
	e, ids := newTestEngine(t, inbound, outbound)

	track := NewTrack(ids.Next(), "t", 1, 4, ids)
	e.RegisterTrack(track)
	e.Graph.AddTrack(track, nil)

	gainID, _ := track.BusGainParameterID(0)
	ev := ParamChangeFloat(track.ID(), 0, gainID, 0.5)
	ev.ReturnableID = 42
	inbound.events = append(inbound.events, ev)

	nFrames := ChunkSize
	in := [][]float32{make([]float32, nFrames), make([]float32, nFrames)}
	out := [][]float32{make([]float32, nFrames), make([]float32, nFrames)}
	e.Process(in, out, nFrames)

	if len(outbound.events) != 1 || outbound.events[0].Kind != EventCompletion || outbound.events[0].ReturnableID != 42 {
		t.Fatalf("expected a completion event for the returnable, got %v", outbound.events)
	}
}
