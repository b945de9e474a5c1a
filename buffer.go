package plexus

import "github.com/viterin/vek/vek32"

// Buffer is a fixed-ChunkSize, per-channel-interleaved-as-slices audio
// block: Buffer[channel][frame]. Buffers are owned by whoever allocated
// them; the realtime path only ever passes references to preallocated
// buffers and never allocates one itself.
type Buffer [][ChunkSize]float32

// NewBuffer allocates a Buffer with the given channel count. This must
// only be called off the realtime thread (track/graph construction time).
func NewBuffer(channels int) Buffer {
	return make(Buffer, channels)
}

// Channels reports the buffer's channel count.
func (b Buffer) Channels() int { return len(b) }

// Clear zeroes every sample in every channel.
func (b Buffer) Clear() {
	for c := range b {
		b[c] = [ChunkSize]float32{}
	}
}

// CopyFrom copies min(b.Channels(), src.Channels()) channels from src into
// b sample-for-sample; if b has more channels than src, the remainder is
// zeroed rather than left stale.
func (b Buffer) CopyFrom(src Buffer) {
	n := len(b)
	if len(src) < n {
		n = len(src)
	}
	for c := 0; c < n; c++ {
		b[c] = src[c]
	}
	for c := n; c < len(b); c++ {
		b[c] = [ChunkSize]float32{}
	}
}

// MixFrom adds src into b sample-for-sample, over min(b.Channels(),
// src.Channels()) channels. Used by the engine to sum track outputs into the
// hardware output channels (see AudioEngine.routeOutput); the per-channel
// add runs through vek32's vectorized
// kernel rather than a scalar loop.
func (b Buffer) MixFrom(src Buffer) {
	n := len(b)
	if len(src) < n {
		n = len(src)
	}
	for c := 0; c < n; c++ {
		vek32.Add_Inplace(b[c][:], src[c][:])
	}
}

// DownmixMonoFrom averages every channel of src into b's single channel.
// Used by the bypass down-mix policy when going from N>1 channels to 1.
func (b Buffer) DownmixMonoFrom(src Buffer) {
	if len(b) == 0 {
		return
	}
	if len(src) == 0 {
		b[0] = [ChunkSize]float32{}
		return
	}
	var acc [ChunkSize]float32
	for c := range src {
		for i := 0; i < ChunkSize; i++ {
			acc[i] += src[c][i]
		}
	}
	inv := float32(1) / float32(len(src))
	for i := 0; i < ChunkSize; i++ {
		acc[i] *= inv
	}
	b[0] = acc
	for c := 1; c < len(b); c++ {
		b[c] = [ChunkSize]float32{}
	}
}

// DuplicateMonoFrom copies src's single channel into every channel of b.
// Used by the bypass up-mix policy when going from mono to N>1 channels.
func (b Buffer) DuplicateMonoFrom(src Buffer) {
	var mono [ChunkSize]float32
	if len(src) > 0 {
		mono = src[0]
	}
	for c := range b {
		b[c] = mono
	}
}
