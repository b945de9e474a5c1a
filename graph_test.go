package plexus

import (
	"sync"
	"testing"
	"time"
)

type stubTrack struct {
	id ID
	fn func(in, out Buffer)
}

func (s *stubTrack) ID() ID                       { return s.id }
func (s *stubTrack) ProcessAudio(in, out Buffer)  { s.fn(in, out) }

func TestAudioGraphSingleWorkerRendersInOrder(t *testing.T) {
	g := NewAudioGraph(1, 0, nil)
	defer g.Close()

	var order []ID
	var mu sync.Mutex
	for i := ID(1); i <= 3; i++ {
		id := i
		g.AddTrack(&stubTrack{id: id, fn: func(in, out Buffer) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		}}, nil)
	}

	bufs := map[ID]Buffer{1: NewBuffer(2), 2: NewBuffer(2), 3: NewBuffer(2)}
	g.Render(func(id ID) (Buffer, Buffer) { return bufs[id], bufs[id] })

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected single-worker render to preserve insertion order, got %v", order)
	}
}

func TestAudioGraphMultiWorkerRendersAllTracks(t *testing.T) {
	g := NewAudioGraph(4, 0, nil)
	defer g.Close()

	var mu sync.Mutex
	seen := map[ID]bool{}
	for i := ID(1); i <= 8; i++ {
		id := i
		g.AddTrack(&stubTrack{id: id, fn: func(in, out Buffer) {
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}}, nil)
	}

	bufs := map[ID]Buffer{}
	for i := ID(1); i <= 8; i++ {
		bufs[i] = NewBuffer(2)
	}
	g.Render(func(id ID) (Buffer, Buffer) { return bufs[id], bufs[id] })

	if len(seen) != 8 {
		t.Fatalf("expected all 8 tracks rendered across workers, got %d", len(seen))
	}
}

func TestAudioGraphPinnedTrackStaysOnItsWorker(t *testing.T) {
	g := NewAudioGraph(3, 0, nil)
	defer g.Close()
	core := 2
	g.AddTrack(&stubTrack{id: 1, fn: func(in, out Buffer) {}}, &core)

	w, ok := g.WorkerOf(1)
	if !ok || w != 2 {
		t.Fatalf("expected track pinned to worker 2, got %d ok=%v", w, ok)
	}
}

type overrunSpy struct {
	mu     sync.Mutex
	calls  int
	blocks int
}

func (s *overrunSpy) ReportBlock(id ID, d time.Duration) {
	s.mu.Lock()
	s.blocks++
	s.mu.Unlock()
}

func (s *overrunSpy) ReportOverrun(worker int, over time.Duration) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func TestAudioGraphReportsOverrunWithoutAbortingBlock(t *testing.T) {
	spy := &overrunSpy{}
	g := NewAudioGraph(1, time.Nanosecond, spy)
	defer g.Close()

	rendered := false
	g.AddTrack(&stubTrack{id: 1, fn: func(in, out Buffer) {
		time.Sleep(time.Millisecond)
		rendered = true
	}}, nil)

	buf := NewBuffer(2)
	g.Render(func(id ID) (Buffer, Buffer) { return buf, buf })

	if !rendered {
		t.Fatalf("expected block to complete despite exceeding deadline")
	}
	spy.mu.Lock()
	defer spy.mu.Unlock()
	if spy.calls == 0 {
		t.Fatalf("expected an overrun to be reported")
	}
	if spy.blocks == 0 {
		t.Fatalf("expected block durations to be reported alongside the overrun")
	}
}

func TestAudioGraphReportsPerTrackAndEngineWideBlocks(t *testing.T) {
	spy := &overrunSpy{}
	g := NewAudioGraph(1, 0, spy)
	defer g.Close()

	for i := ID(1); i <= 3; i++ {
		g.AddTrack(&stubTrack{id: i, fn: func(in, out Buffer) {}}, nil)
	}
	buf := NewBuffer(2)
	g.Render(func(id ID) (Buffer, Buffer) { return buf, buf })

	spy.mu.Lock()
	defer spy.mu.Unlock()
	// One ReportBlock per track plus one engine-wide sample (id 0) for
	// the worker's whole list.
	if spy.blocks != 4 {
		t.Fatalf("expected 4 block samples (3 tracks + engine-wide), got %d", spy.blocks)
	}
}

func TestAudioGraphRemoveTrack(t *testing.T) {
	g := NewAudioGraph(2, 0, nil)
	defer g.Close()
	g.AddTrack(&stubTrack{id: 1, fn: func(in, out Buffer) {}}, nil)
	if st := g.RemoveTrack(1); st != StatusOK {
		t.Fatalf("expected remove ok, got %v", st)
	}
	if st := g.RemoveTrack(1); st != StatusNotFound {
		t.Fatalf("expected not-found on second remove, got %v", st)
	}
}
