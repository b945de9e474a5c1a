package plexus

// bypassProcessAudio implements the bypass policy: when bypassed, forward
// input to output with matching channel count, up/down mixing
// deterministically when the counts differ. Every built-in processor and
// Track route ProcessAudio through this before doing any DSP; plugin.Wrapper
// applies the same policy through its own bypassThrough.
func bypassProcessAudio(in, out Buffer) {
	switch {
	case in.Channels() == out.Channels():
		out.CopyFrom(in)
	case in.Channels() == 1 && out.Channels() > 1:
		out.DuplicateMonoFrom(in)
	case in.Channels() > 1 && out.Channels() == 1:
		out.DownmixMonoFrom(in)
	default:
		out.CopyFrom(in) // copies min-channel subset, zeros the remainder
	}
}

// GainProcessor is a minimal built-in DSP unit exposing a single "gain"
// parameter, domain-mapped 0..2 (linear amplitude; 0.5 normalized is unity
// and 1.0 normalized is 2x, approximately +6dB, matching the track
// output-bus gain law). It exists
// primarily to exercise the Processor contract end to end, independent of
// Track's own built-in bus gain/pan.
type GainProcessor struct {
	BaseProcessor
	gainID ID
	target float32 // smoothing target, linear
	current float32 // current smoothed linear gain
}

// NewGainProcessor constructs a stereo-in/stereo-out gain unit.
func NewGainProcessor(id ID, name string, gainParamID ID) *GainProcessor {
	g := &GainProcessor{BaseProcessor: NewBaseProcessor(id, name, "Gain", 2, 2), gainID: gainParamID}
	g.AddParameter(ParameterDescriptor{ID: gainParamID, Name: "gain", Label: "Gain", Unit: "", Type: ParameterFloat, Min: 0, Max: 2, Automatable: true}, 0.5)
	g.current = 1
	g.target = 1
	return g
}

func (g *GainProcessor) PreferredOutputChannels(inputChannels int) int { return inputChannels }

func (g *GainProcessor) ProcessEvent(ev RTEvent) {
	if g.Bypass() {
		return // bypass flushes all in-flight events
	}
	if ev.Kind == EventParameterChange && ev.Target == g.ID() && ev.ParamID() == g.gainID {
		g.SetParameterValue(g.gainID, ev.FloatValue())
		domain, _ := g.DomainValue(g.gainID)
		g.target = float32(domain)
	}
}

func (g *GainProcessor) ProcessAudio(in, out Buffer) {
	if g.Bypass() {
		bypassProcessAudio(in, out)
		return
	}
	out.CopyFrom(in)
	// Ramp current -> target linearly across the block to avoid zipper
	// noise.
	step := (g.target - g.current) / float32(ChunkSize)
	gain := g.current
	for i := 0; i < ChunkSize; i++ {
		gain += step
		for c := range out {
			out[c][i] *= gain
		}
	}
	g.current = g.target
}

func (g *GainProcessor) StateExport() ProcessorState { return g.BaseProcessor.StateExport(g.Name()) }
func (g *GainProcessor) StateApply(s ProcessorState) Status {
	st := g.BaseProcessor.StateApply(s)
	if st == StatusOK {
		domain, _ := g.DomainValue(g.gainID)
		g.current = float32(domain)
		g.target = g.current
	}
	return st
}

// PassthroughProcessor forwards input to output unchanged (subject to the
// same channel-mismatch handling as bypass). It has no parameters and is
// useful as a chain placeholder and in tests.
type PassthroughProcessor struct {
	BaseProcessor
}

func NewPassthroughProcessor(id ID, name string, channels int) *PassthroughProcessor {
	return &PassthroughProcessor{BaseProcessor: NewBaseProcessor(id, name, "Passthrough", channels, channels)}
}

func (p *PassthroughProcessor) PreferredOutputChannels(inputChannels int) int { return inputChannels }
func (p *PassthroughProcessor) ProcessEvent(RTEvent)                          {}
func (p *PassthroughProcessor) ProcessAudio(in, out Buffer)                   { bypassProcessAudio(in, out) }
func (p *PassthroughProcessor) StateExport() ProcessorState                   { return p.BaseProcessor.StateExport(p.Name()) }
