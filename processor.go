package plexus

import "errors"

// Processor is any audio-processing unit: a track, a built-in effect, or a
// wrapped third-party plugin module. It is a plain interface plus, for
// externally loaded plugins, the PluginCapable trait below.
type Processor interface {
	ID() ID
	Name() string
	Label() string

	// ProcessAudio is called once per block on the realtime thread.
	ProcessAudio(in, out Buffer)
	// ProcessEvent is called zero or more times before each ProcessAudio.
	ProcessEvent(ev RTEvent)

	Bypass() bool
	SetBypass(bool)

	InputChannels() int
	OutputChannels() int
	MaxInputChannels() int
	MaxOutputChannels() int
	// SetInputChannels and SetOutputChannels renegotiate the processor's
	// channel configuration; they return the channel count the processor
	// actually settled on (which may differ from requested, but never
	// exceeds the processor's maximum).
	SetInputChannels(n int) int
	SetOutputChannels(n int) int
	// PreferredOutputChannels reports what output channel count this
	// processor would pick given a hypothetical input channel count,
	// without mutating state. Used by Track chain renegotiation.
	PreferredOutputChannels(inputChannels int) int

	Parameters() []ParameterDescriptor
	ParameterValue(id ID) (normalized float32, status Status)
	SetParameterValue(id ID, normalized float32) Status

	Properties() []PropertyDescriptor
	PropertyValue(id ID) (value string, status Status)
	SetPropertyValue(id ID, value string) Status

	Programs() []Program
	CurrentProgram() int // -1 if none
	SetProgram(index int) Status

	StateExport() ProcessorState
	StateApply(state ProcessorState) Status
}

// PluginCapable is the trait surface an externally loaded plugin module
// bridges to satisfy Processor. A Processor that wraps a native plugin
// implements both Processor and PluginCapable; PluginCapable exists
// separately so host code can distinguish "built-in DSP unit" from
// "third-party plugin module" without a type switch on every kind.
type PluginCapable interface {
	PluginURI() string
	PluginFormat() string
}

// ErrNoPrograms names the empty-program-list condition. BaseProcessor's
// SetProgram reports that condition as StatusUnsupported and does not
// return this error.
var ErrNoPrograms = errors.New("processor has no programs")

// BaseProcessor implements the bookkeeping every Processor needs
// (identity, bypass, channel bookkeeping, parameter/property storage,
// programs) so that concrete DSP units only need to supply ProcessAudio,
// ProcessEvent and PreferredOutputChannels. It is not itself a Processor;
// concrete units embed it, keeping static parameter metadata separate from
// per-instance parameter storage.
type BaseProcessor struct {
	id    ID
	name  string
	label string

	bypass bool

	inCh, outCh       int
	maxInCh, maxOutCh int

	paramDescs []ParameterDescriptor
	paramIndex map[ID]int
	paramVals  []float32 // normalized [0,1], parallel to paramDescs

	propDescs []PropertyDescriptor
	propIndex map[ID]int
	propVals  []string

	programs       []Program
	currentProgram int
}

// NewBaseProcessor constructs a BaseProcessor. maxIn/maxOut bound the
// channel counts the concrete unit will ever request via SetInputChannels/
// SetOutputChannels.
func NewBaseProcessor(id ID, name, label string, maxIn, maxOut int) BaseProcessor {
	return BaseProcessor{
		id: id, name: name, label: label,
		maxInCh: maxIn, maxOutCh: maxOut,
		inCh: maxIn, outCh: maxOut,
		paramIndex:     map[ID]int{},
		propIndex:      map[ID]int{},
		currentProgram: -1,
	}
}

func (p *BaseProcessor) ID() ID      { return p.id }
func (p *BaseProcessor) Name() string  { return p.name }
func (p *BaseProcessor) Label() string { return p.label }

func (p *BaseProcessor) Bypass() bool     { return p.bypass }
func (p *BaseProcessor) SetBypass(b bool) { p.bypass = b }

func (p *BaseProcessor) InputChannels() int     { return p.inCh }
func (p *BaseProcessor) OutputChannels() int    { return p.outCh }
func (p *BaseProcessor) MaxInputChannels() int  { return p.maxInCh }
func (p *BaseProcessor) MaxOutputChannels() int { return p.maxOutCh }

func (p *BaseProcessor) SetInputChannels(n int) int {
	if n < 0 {
		n = 0
	}
	if n > p.maxInCh {
		n = p.maxInCh
	}
	p.inCh = n
	return p.inCh
}

func (p *BaseProcessor) SetOutputChannels(n int) int {
	if n < 0 {
		n = 0
	}
	if n > p.maxOutCh {
		n = p.maxOutCh
	}
	p.outCh = n
	return p.outCh
}

// AddParameter registers a parameter descriptor at construction time; it
// must not be called once the processor is live on the realtime thread.
func (p *BaseProcessor) AddParameter(d ParameterDescriptor, initialNormalized float32) {
	p.paramIndex[d.ID] = len(p.paramDescs)
	p.paramDescs = append(p.paramDescs, d)
	p.paramVals = append(p.paramVals, clampf32(initialNormalized, 0, 1))
}

// AddProperty registers a property descriptor at construction time.
func (p *BaseProcessor) AddProperty(d PropertyDescriptor, initial string) {
	p.propIndex[d.ID] = len(p.propDescs)
	p.propDescs = append(p.propDescs, d)
	p.propVals = append(p.propVals, initial)
}

// SetPrograms replaces the program list at construction time.
func (p *BaseProcessor) SetPrograms(programs []Program) {
	p.programs = programs
	if len(programs) == 0 {
		p.currentProgram = -1
	} else if p.currentProgram >= len(programs) {
		p.currentProgram = 0
	}
}

func (p *BaseProcessor) Parameters() []ParameterDescriptor { return p.paramDescs }
func (p *BaseProcessor) Properties() []PropertyDescriptor  { return p.propDescs }
func (p *BaseProcessor) Programs() []Program               { return p.programs }
func (p *BaseProcessor) CurrentProgram() int                { return p.currentProgram }

func (p *BaseProcessor) SetProgram(index int) Status {
	if len(p.programs) == 0 {
		return StatusUnsupported
	}
	if index < 0 || index >= len(p.programs) {
		return StatusOutOfRange
	}
	p.currentProgram = index
	return StatusOK
}

func (p *BaseProcessor) ParameterValue(id ID) (float32, Status) {
	i, ok := p.paramIndex[id]
	if !ok {
		return 0, StatusNotFound
	}
	return p.paramVals[i], StatusOK
}

// SetParameterValue always clamps into [0,1] and returns ok; only an
// unknown id yields not-found.
func (p *BaseProcessor) SetParameterValue(id ID, normalized float32) Status {
	i, ok := p.paramIndex[id]
	if !ok {
		return StatusNotFound
	}
	p.paramVals[i] = clampf32(normalized, 0, 1)
	return StatusOK
}

// DomainValue returns a parameter's current value mapped through its
// descriptor's declared domain range.
func (p *BaseProcessor) DomainValue(id ID) (float64, Status) {
	i, ok := p.paramIndex[id]
	if !ok {
		return 0, StatusNotFound
	}
	return p.paramDescs[i].Denormalize(float64(p.paramVals[i])), StatusOK
}

func (p *BaseProcessor) PropertyValue(id ID) (string, Status) {
	i, ok := p.propIndex[id]
	if !ok {
		return "", StatusNotFound
	}
	return p.propVals[i], StatusOK
}

func (p *BaseProcessor) SetPropertyValue(id ID, value string) Status {
	i, ok := p.propIndex[id]
	if !ok {
		return StatusNotFound
	}
	p.propVals[i] = value
	return StatusOK
}

// StateExport bundles program, bypass, parameters and properties into the
// persisted state layout.
func (p *BaseProcessor) StateExport(uid string) ProcessorState {
	bypass := p.bypass
	var prog *int
	if p.currentProgram >= 0 {
		v := p.currentProgram
		prog = &v
	}
	params := make([]ParameterValue, len(p.paramDescs))
	for i, d := range p.paramDescs {
		params[i] = ParameterValue{ID: d.ID, Value: p.paramVals[i]}
	}
	props := make([]PropertyValue, len(p.propDescs))
	for i, d := range p.propDescs {
		props[i] = PropertyValue{ID: d.ID, Value: p.propVals[i]}
	}
	return ProcessorState{
		FormatVersion: CurrentStateFormatVersion,
		ProcessorUID:  uid,
		Program:       prog,
		Bypass:        &bypass,
		Parameters:    params,
		Properties:    props,
	}
}

// StateApply restores program, bypass, parameters and properties from a
// previously exported state. Unknown ids are skipped rather than failing
// the whole operation, since a state bundle produced by a newer version of
// a processor may carry ids this instance does not have.
func (p *BaseProcessor) StateApply(state ProcessorState) Status {
	if state.Bypass != nil {
		p.bypass = *state.Bypass
	}
	if state.Program != nil {
		if st := p.SetProgram(*state.Program); st != StatusOK && st != StatusUnsupported {
			return st
		}
	}
	for _, pv := range state.Parameters {
		if i, ok := p.paramIndex[pv.ID]; ok {
			p.paramVals[i] = clampf32(pv.Value, 0, 1)
		}
	}
	for _, pv := range state.Properties {
		if i, ok := p.propIndex[pv.ID]; ok {
			p.propVals[i] = pv.Value
		}
	}
	return StatusOK
}

func clampf32(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
