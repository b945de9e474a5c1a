package plexus

import "github.com/chewxy/math32"

// applyBusGainPan writes src (the track chain's final output) into dst,
// applying each output bus's gain and stereo pan law:
//
//	left  = g * cos((pan+1)*pi/4) * sqrt(2)
//	right = g * sin((pan+1)*pi/4) * sqrt(2)
//
// so a centered pan yields unity gain in both channels and a hard pan
// yields sqrt(2) (~+3dB) in the live channel, 0 in the other. Gain and pan
// are ramped linearly, sample by sample, across the block to avoid zipper
// noise. dst is sized to len(state)*busWidth channels; src is padded with
// silence or duplicated-mono to fit the channel-count invariants.
func applyBusGainPan(src, dst Buffer, state []busGainPan) {
	const sqrt2 = float32(1.41421356237)
	for bus := range state {
		bg := &state[bus]
		l := bus * busWidth
		r := l + 1
		var srcL, srcR [ChunkSize]float32
		if l < src.Channels() {
			srcL = src[l]
		}
		if r < src.Channels() {
			srcR = src[r]
		} else if l < src.Channels() {
			srcR = src[l] // mono source duplicated into this bus's right channel
		}

		gainStep := (bg.gainTarget - bg.gainCurrent) / float32(ChunkSize)
		panStep := (bg.panTarget - bg.panCurrent) / float32(ChunkSize)
		gain, pan := bg.gainCurrent, bg.panCurrent

		var outL, outR [ChunkSize]float32
		for i := 0; i < ChunkSize; i++ {
			gain += gainStep
			pan += panStep
			angle := (pan + 1) * (math32.Pi / 4)
			outL[i] = srcL[i] * gain * math32.Cos(angle) * sqrt2
			outR[i] = srcR[i] * gain * math32.Sin(angle) * sqrt2
		}
		bg.gainCurrent = bg.gainTarget
		bg.panCurrent = bg.panTarget

		if l < dst.Channels() {
			dst[l] = outL
		}
		if r < dst.Channels() {
			dst[r] = outR
		}
	}
	for c := len(state) * busWidth; c < dst.Channels(); c++ {
		dst[c] = [ChunkSize]float32{}
	}
}
