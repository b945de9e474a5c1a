package plexus

import "testing"

func fill(v float32) [ChunkSize]float32 {
	var f [ChunkSize]float32
	for i := range f {
		f[i] = v
	}
	return f
}

func TestBufferCopyFromClipsAndZeros(t *testing.T) {
	dst := NewBuffer(4)
	src := NewBuffer(2)
	src[0] = fill(1)
	src[1] = fill(2)
	dst.CopyFrom(src)
	if dst[0] != fill(1) || dst[1] != fill(2) {
		t.Fatalf("expected first two channels copied from src")
	}
	if dst[2] != fill(0) || dst[3] != fill(0) {
		t.Fatalf("expected remaining channels zeroed, got %v %v", dst[2], dst[3])
	}
}

func TestBufferMixFromAdds(t *testing.T) {
	dst := NewBuffer(2)
	dst[0] = fill(1)
	dst[1] = fill(1)
	src := NewBuffer(2)
	src[0] = fill(2)
	src[1] = fill(3)
	dst.MixFrom(src)
	if dst[0] != fill(3) || dst[1] != fill(4) {
		t.Fatalf("expected sample-wise sum, got %v %v", dst[0], dst[1])
	}
}

func TestBufferDownmixMonoFromAverages(t *testing.T) {
	dst := NewBuffer(1)
	src := NewBuffer(2)
	src[0] = fill(1)
	src[1] = fill(3)
	dst.DownmixMonoFrom(src)
	if dst[0] != fill(2) {
		t.Fatalf("expected average of 1 and 3 to be 2, got %v", dst[0])
	}
}

func TestBufferDuplicateMonoFromCopiesToEveryChannel(t *testing.T) {
	dst := NewBuffer(3)
	src := NewBuffer(1)
	src[0] = fill(5)
	dst.DuplicateMonoFrom(src)
	for c := 0; c < 3; c++ {
		if dst[c] != fill(5) {
			t.Fatalf("channel %d not duplicated: %v", c, dst[c])
		}
	}
}

func TestBufferClear(t *testing.T) {
	b := NewBuffer(2)
	b[0] = fill(1)
	b[1] = fill(1)
	b.Clear()
	if b[0] != fill(0) || b[1] != fill(0) {
		t.Fatalf("expected cleared buffer, got %v %v", b[0], b[1])
	}
}
