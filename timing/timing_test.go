package timing

import (
	"testing"
	"time"
)

func TestWindowAveragesMinMax(t *testing.T) {
	w := NewWindow(4)
	w.Add(10 * time.Millisecond)
	w.Add(20 * time.Millisecond)
	w.Add(30 * time.Millisecond)

	s := w.Snapshot()
	if s.Samples != 3 {
		t.Fatalf("expected 3 samples, got %d", s.Samples)
	}
	if s.Min != 10*time.Millisecond || s.Max != 30*time.Millisecond {
		t.Fatalf("expected min/max 10ms/30ms, got %v/%v", s.Min, s.Max)
	}
	if s.Avg != 20*time.Millisecond {
		t.Fatalf("expected avg 20ms, got %v", s.Avg)
	}
}

func TestWindowEvictsOldestOnOverflow(t *testing.T) {
	w := NewWindow(2)
	w.Add(10 * time.Millisecond)
	w.Add(20 * time.Millisecond)
	w.Add(30 * time.Millisecond) // evicts the 10ms sample

	s := w.Snapshot()
	if s.Samples != 2 {
		t.Fatalf("expected window capped at 2 samples, got %d", s.Samples)
	}
	if s.Min != 20*time.Millisecond {
		t.Fatalf("expected 10ms sample evicted, min now 20ms, got %v", s.Min)
	}
	if s.Avg != 25*time.Millisecond {
		t.Fatalf("expected avg of remaining 20ms/30ms = 25ms, got %v", s.Avg)
	}
}

func TestWindowResetClearsSamples(t *testing.T) {
	w := NewWindow(4)
	w.Add(10 * time.Millisecond)
	w.Reset()
	s := w.Snapshot()
	if s.Samples != 0 {
		t.Fatalf("expected reset window to report zero samples, got %d", s.Samples)
	}
}

func TestRegistryDisabledByDefaultDoesNotRecord(t *testing.T) {
	r := NewRegistry(DefaultWindow)
	r.Record(1, 5*time.Millisecond)
	if s := r.Snapshot(1); s.Samples != 0 {
		t.Fatalf("expected disabled registry to record nothing, got %d samples", s.Samples)
	}
}

func TestRegistryRecordsWhenEnabled(t *testing.T) {
	r := NewRegistry(DefaultWindow)
	r.SetEnabled(true)
	r.Record(1, 5*time.Millisecond)
	r.Record(1, 15*time.Millisecond)
	s := r.Snapshot(1)
	if s.Samples != 2 {
		t.Fatalf("expected 2 recorded samples, got %d", s.Samples)
	}
}

func TestRegistryTracksEachIDIndependently(t *testing.T) {
	r := NewRegistry(DefaultWindow)
	r.SetEnabled(true)
	r.Record(1, 5*time.Millisecond)
	r.Record(2, 50*time.Millisecond)
	if s := r.Snapshot(1); s.Max != 5*time.Millisecond {
		t.Fatalf("expected id 1's window unaffected by id 2, got max %v", s.Max)
	}
	if s := r.Snapshot(2); s.Max != 50*time.Millisecond {
		t.Fatalf("expected id 2's window recorded, got max %v", s.Max)
	}
}
