package controller

import (
	"testing"
	"time"

	"github.com/rjarnstrom/plexus"
	"github.com/rjarnstrom/plexus/dispatcher"
	"github.com/rjarnstrom/plexus/midi"
	"github.com/rjarnstrom/plexus/notify"
	"github.com/rjarnstrom/plexus/rtqueue"
	"github.com/rjarnstrom/plexus/timing"
)

// newTestController wires a full controller stack. CreateTrack/AddProcessor
// and the other chain-mutating commands are returnable events resolved by
// the realtime thread, so callers must have started processing (see
// startProcessing) before issuing them.
func newTestController(t *testing.T) (*Controller, func()) {
	t.Helper()
	ids := &plexus.IDAllocator{}
	transport := plexus.NewTransport(48000)
	timings := timing.NewRegistry(timing.DefaultWindow)
	graph := plexus.NewAudioGraph(1, 0, timing.NewGraphRecorder(timings))
	inbound := rtqueue.NewMPSC(4, 64)
	outbound := rtqueue.NewSPSC(64)
	engine := plexus.NewAudioEngine(transport, graph, inbound, outbound)
	reg := notify.NewRegistry()
	d := dispatcher.New(inbound, outbound, reg)
	d.Run()
	router := midi.NewRouter()
	c := New(d, transport, graph, engine, router, timings, reg, ids)

	cleanup := func() {
		d.Stop()
		graph.Close()
	}
	return c, cleanup
}

// startProcessing spins up a background goroutine that repeatedly calls
// AudioEngine.Process, standing in for the realtime audio callback thread so
// returnable commands posted after this point actually resolve. Callers
// must finish all track/processor registration first.
func startProcessing(c *Controller) (stop func()) {
	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		in := [][]float32{make([]float32, plexus.ChunkSize), make([]float32, plexus.ChunkSize)}
		out := [][]float32{make([]float32, plexus.ChunkSize), make([]float32, plexus.ChunkSize)}
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				c.Engine.Process(in, out, plexus.ChunkSize)
			}
		}
	}()
	return func() {
		close(stopCh)
		<-done
	}
}

func TestCreateTrackAddProcessorAndDelete(t *testing.T) {
	c, cleanup := newTestController(t)
	defer cleanup()
	stopProcessing := startProcessing(c)
	defer stopProcessing()

	trackID, st := c.CreateTrack("lead", 1, 4, nil)
	if st != plexus.StatusOK {
		t.Fatalf("create track: %v", st)
	}

	gainID := c.IDs.Next()
	gain := plexus.NewGainProcessor(c.IDs.Next(), "gain", gainID)
	if st := c.AddProcessor(trackID, gain, nil); st != plexus.StatusOK {
		t.Fatalf("add processor: %v", st)
	}

	info, st := c.Info(gain.ID())
	if st != plexus.StatusOK || info.Name != "gain" {
		t.Fatalf("expected processor info, got %+v %v", info, st)
	}

	if st := c.RemoveProcessor(trackID, gain.ID()); st != plexus.StatusOK {
		t.Fatalf("remove processor: %v", st)
	}
	if _, st := c.Info(gain.ID()); st != plexus.StatusNotFound {
		t.Fatalf("expected not-found after removal, got %v", st)
	}

	if st := c.DeleteTrack(trackID); st != plexus.StatusOK {
		t.Fatalf("delete track: %v", st)
	}
	if st := c.DeleteTrack(trackID); st != plexus.StatusNotFound {
		t.Fatalf("expected not-found deleting twice, got %v", st)
	}
}

func TestSetParameterRoundTripsThroughDispatcherAndEngine(t *testing.T) {
	c, cleanup := newTestController(t)
	defer cleanup()
	stopProcessing := startProcessing(c)
	defer stopProcessing()

	trackID, _ := c.CreateTrack("lead", 1, 4, nil)
	gainID := c.IDs.Next()
	gain := plexus.NewGainProcessor(c.IDs.Next(), "gain", gainID)
	c.AddProcessor(trackID, gain, nil)

	st := c.SetParameter(gain.ID(), gainID, 1, 200*time.Millisecond)
	if st != plexus.StatusOK {
		t.Fatalf("expected parameter set to resolve ok, got %v", st)
	}
	v, _ := c.ParameterValue(gain.ID(), gainID)
	if v != 1 {
		t.Fatalf("expected parameter value updated to 1, got %v", v)
	}
}

func TestSetParameterUnknownProcessorIsNotFound(t *testing.T) {
	c, cleanup := newTestController(t)
	defer cleanup()
	if st := c.SetParameter(999, 1, 0.5, time.Second); st != plexus.StatusNotFound {
		t.Fatalf("expected not-found for unknown processor, got %v", st)
	}
}

func TestDisconnectAllAudioOutputsFromTrackFiltersByTrack(t *testing.T) {
	c, cleanup := newTestController(t)
	defer cleanup()
	stopProcessing := startProcessing(c)
	defer stopProcessing()

	trackA, _ := c.CreateTrack("a", 1, 2, nil)
	trackB, _ := c.CreateTrack("b", 1, 2, nil)
	c.SetOutputRouting([]plexus.ChannelRoute{
		{HardwareChannel: 0, Track: trackA, TrackChannel: 0},
		{HardwareChannel: 1, Track: trackA, TrackChannel: 1},
		{HardwareChannel: 0, Track: trackB, TrackChannel: 0},
	})

	c.DisconnectAllAudioOutputsFromTrack(trackA)

	if len(c.currentOutputRouting) != 1 || c.currentOutputRouting[0].Track != trackB {
		t.Fatalf("expected only track b's route to remain, got %v", c.currentOutputRouting)
	}
}

func TestSetTempoPublishesTransportUpdate(t *testing.T) {
	c, cleanup := newTestController(t)
	defer cleanup()

	sub := c.Subscribe(notify.TransportUpdate)
	if st := c.SetTempo(140, false); st != plexus.StatusOK {
		t.Fatalf("set tempo: %v", st)
	}
	select {
	case n := <-sub.Ch:
		state, ok := n.Data.(TransportState)
		if !ok || state.Tempo != 140 {
			t.Fatalf("expected transport update with tempo 140, got %v", n.Data)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for transport update notification")
	}
}

func TestShutdownStopsFurtherProcessing(t *testing.T) {
	c, cleanup := newTestController(t)
	defer cleanup()

	if c.IsShutdown() {
		t.Fatalf("expected controller not shut down initially")
	}
	c.Shutdown()
	if !c.IsShutdown() {
		t.Fatalf("expected shutdown to be observed")
	}
}

func TestMoveProcessorAndSetBypassRoundTripThroughEngine(t *testing.T) {
	c, cleanup := newTestController(t)
	defer cleanup()
	stopProcessing := startProcessing(c)
	defer stopProcessing()

	trackID, _ := c.CreateTrack("lead", 1, 4, nil)
	firstID := c.IDs.Next()
	first := plexus.NewGainProcessor(c.IDs.Next(), "first", firstID)
	secondID := c.IDs.Next()
	second := plexus.NewGainProcessor(c.IDs.Next(), "second", secondID)
	if st := c.AddProcessor(trackID, first, nil); st != plexus.StatusOK {
		t.Fatalf("add first: %v", st)
	}
	if st := c.AddProcessor(trackID, second, nil); st != plexus.StatusOK {
		t.Fatalf("add second: %v", st)
	}

	if st := c.MoveProcessor(trackID, second.ID(), 0); st != plexus.StatusOK {
		t.Fatalf("move processor: %v", st)
	}
	track := c.tracks[trackID]
	chain := track.Chain()
	if len(chain) != 2 || chain[0].ID() != second.ID() {
		t.Fatalf("expected second processor moved to front, got %v", chain)
	}

	if st := c.SetBypass(first.ID(), true); st != plexus.StatusOK {
		t.Fatalf("set bypass: %v", st)
	}
	if !first.Bypass() {
		t.Fatalf("expected first processor to be bypassed")
	}
}

func TestTimingsSnapshotRecordsRealBlockDurations(t *testing.T) {
	c, cleanup := newTestController(t)
	defer cleanup()
	c.SetTimingsEnabled(true)

	stopProcessing := startProcessing(c)
	defer stopProcessing()

	if _, st := c.CreateTrack("lead", 1, 4, nil); st != plexus.StatusOK {
		t.Fatalf("create track: %v", st)
	}

	deadline := time.After(time.Second)
	for {
		stats, _ := c.TimingsSnapshot(0)
		if stats.Samples > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for engine-wide timing samples")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestMIDIRoutingRoundTrip(t *testing.T) {
	c, cleanup := newTestController(t)
	defer cleanup()

	route := midi.KBInRoute{Port: 0, Channel: 0, Target: 42}
	if st := c.ConnectKBIn(route); st != plexus.StatusOK {
		t.Fatalf("connect kb-in: %v", st)
	}
	if _, ok := c.MIDI.Current().LookupKBIn(0, 0); !ok {
		t.Fatalf("expected route to be visible")
	}
	if st := c.DisconnectKBIn(0, 0); st != plexus.StatusOK {
		t.Fatalf("disconnect kb-in: %v", st)
	}
}
