// Package plugin implements the plugin backend interface contract: a
// per-format backend exposing load/unload/state export-apply/program
// enumeration, plus a generic Processor wrapper (Wrapper) that bridges a
// loaded plugin handle's block-processing calls to the plexus.Processor
// contract: process_audio, process_event, set_enabled, set_channels,
// state_export, state_apply, parameter_ops, property_ops.
//
// Backend is deliberately format-agnostic: a concrete implementation (VST2,
// LV2, CLAP, ...) lives outside this package and is supplied by the host
// application, wrapping a native plugin implementation behind a
// handle-based load/unload contract.
package plugin

import (
	"github.com/rjarnstrom/plexus"
)

// Handle identifies one loaded plugin instance to its Backend. Concrete
// backends define their own underlying type (a pointer, a C handle, a file
// descriptor); Wrapper never inspects it.
type Handle any

// Backend is the per-format bridge to a native plugin implementation.
type Backend interface {
	Load(uri, path string, sampleRate float64) (Handle, error)
	Unload(h Handle)
	ProcessAudio(h Handle, in, out plexus.Buffer)
	ProcessEvent(h Handle, ev plexus.RTEvent)
	StateExport(h Handle) ([]byte, error)
	StateApply(h Handle, data []byte) error
	EnumeratePrograms(h Handle) []plexus.Program
	SetProgram(h Handle, index int) error
	Parameters(h Handle) []plexus.ParameterDescriptor
	ParameterValue(h Handle, id plexus.ID) (float32, bool)
	SetParameterValue(h Handle, id plexus.ID, normalized float32) bool
}

// ErrLoadFailed wraps a backend's Load error with the uri/path that failed.
type ErrLoadFailed struct {
	URI, Path string
	Err       error
}

func (e ErrLoadFailed) Error() string {
	return "plugin: load " + e.URI + " (" + e.Path + "): " + e.Err.Error()
}

func (e ErrLoadFailed) Unwrap() error { return e.Err }

// Wrapper adapts one loaded plugin handle to the plexus.Processor
// interface. Unlike BaseProcessor-embedding built-in units, Wrapper stores
// no parameter/property values itself: every read or write is forwarded to
// the backend, since the native plugin is the authority on its own state.
type Wrapper struct {
	id    plexus.ID
	name  string
	label string

	backend Backend
	handle  Handle
	uri     string
	format  string

	bypass bool

	inCh, outCh       int
	maxInCh, maxOutCh int
}

// NewWrapper loads uri via backend and returns a Wrapper bound to the
// resulting handle. maxIn/maxOut bound the channel counts the wrapper will
// ever request.
func NewWrapper(id plexus.ID, name, label, format, uri, path string, sampleRate float64, maxIn, maxOut int, backend Backend) (*Wrapper, error) {
	h, err := backend.Load(uri, path, sampleRate)
	if err != nil {
		return nil, ErrLoadFailed{URI: uri, Path: path, Err: err}
	}
	return &Wrapper{
		id: id, name: name, label: label,
		backend: backend, handle: h, uri: uri, format: format,
		maxInCh: maxIn, maxOutCh: maxOut, inCh: maxIn, outCh: maxOut,
	}, nil
}

// Close unloads the wrapped plugin instance. Must be called exactly once,
// after the wrapper has been removed from any track chain.
func (w *Wrapper) Close() { w.backend.Unload(w.handle) }

func (w *Wrapper) ID() plexus.ID  { return w.id }
func (w *Wrapper) Name() string   { return w.name }
func (w *Wrapper) Label() string  { return w.label }

// PluginURI/PluginFormat satisfy plexus.PluginCapable.
func (w *Wrapper) PluginURI() string    { return w.uri }
func (w *Wrapper) PluginFormat() string { return w.format }

func (w *Wrapper) Bypass() bool     { return w.bypass }
func (w *Wrapper) SetBypass(b bool) { w.bypass = b }

func (w *Wrapper) InputChannels() int     { return w.inCh }
func (w *Wrapper) OutputChannels() int    { return w.outCh }
func (w *Wrapper) MaxInputChannels() int  { return w.maxInCh }
func (w *Wrapper) MaxOutputChannels() int { return w.maxOutCh }

func (w *Wrapper) SetInputChannels(n int) int {
	if n < 0 {
		n = 0
	}
	if n > w.maxInCh {
		n = w.maxInCh
	}
	w.inCh = n
	return w.inCh
}

func (w *Wrapper) SetOutputChannels(n int) int {
	if n < 0 {
		n = 0
	}
	if n > w.maxOutCh {
		n = w.maxOutCh
	}
	w.outCh = n
	return w.outCh
}

// PreferredOutputChannels reports the wrapped plugin's own channel count,
// since a native plugin plumbs input/output width itself rather than
// negotiating through the track chain the way a built-in unit does.
func (w *Wrapper) PreferredOutputChannels(int) int { return w.maxOutCh }

func (w *Wrapper) ProcessAudio(in, out plexus.Buffer) {
	if w.bypass {
		bypassThrough(in, out)
		return
	}
	w.backend.ProcessAudio(w.handle, in, out)
}

func (w *Wrapper) ProcessEvent(ev plexus.RTEvent) {
	if w.bypass {
		return
	}
	w.backend.ProcessEvent(w.handle, ev)
}

func (w *Wrapper) Parameters() []plexus.ParameterDescriptor { return w.backend.Parameters(w.handle) }

func (w *Wrapper) ParameterValue(id plexus.ID) (float32, plexus.Status) {
	v, ok := w.backend.ParameterValue(w.handle, id)
	if !ok {
		return 0, plexus.StatusNotFound
	}
	return v, plexus.StatusOK
}

func (w *Wrapper) SetParameterValue(id plexus.ID, normalized float32) plexus.Status {
	if !w.backend.SetParameterValue(w.handle, id, normalized) {
		return plexus.StatusNotFound
	}
	return plexus.StatusOK
}

// Properties/PropertyValue/SetPropertyValue: most native plugin formats
// expose no separate string-property surface distinct from parameters and
// opaque chunk state, so Wrapper reports none — a format that does (e.g. a
// plugin with a file-path property) can extend Backend with a matching
// method set in a format-specific subtype.
func (w *Wrapper) Properties() []plexus.PropertyDescriptor { return nil }

func (w *Wrapper) PropertyValue(plexus.ID) (string, plexus.Status) {
	return "", plexus.StatusUnsupported
}

func (w *Wrapper) SetPropertyValue(plexus.ID, string) plexus.Status {
	return plexus.StatusUnsupported
}

func (w *Wrapper) Programs() []plexus.Program { return w.backend.EnumeratePrograms(w.handle) }

// CurrentProgram always reports -1: the generic Backend contract has no
// "current program" query, since not every plugin format exposes one
// separately from SetProgram's side effect. A format-specific Backend that
// can track this itself should be queried directly by callers that need it.
func (w *Wrapper) CurrentProgram() int { return -1 }

func (w *Wrapper) SetProgram(index int) plexus.Status {
	if err := w.backend.SetProgram(w.handle, index); err != nil {
		return plexus.StatusOutOfRange
	}
	return plexus.StatusOK
}

func (w *Wrapper) StateExport() plexus.ProcessorState {
	data, err := w.backend.StateExport(w.handle)
	bypass := w.bypass
	state := plexus.ProcessorState{
		FormatVersion: plexus.CurrentStateFormatVersion,
		ProcessorUID:  w.uri,
		Bypass:        &bypass,
	}
	if err == nil {
		state.Properties = []plexus.PropertyValue{{ID: plexus.InvalidID, Value: string(data)}}
	}
	return state
}

func (w *Wrapper) StateApply(state plexus.ProcessorState) plexus.Status {
	if state.Bypass != nil {
		w.bypass = *state.Bypass
	}
	for _, pv := range state.Properties {
		if pv.ID == plexus.InvalidID {
			if err := w.backend.StateApply(w.handle, []byte(pv.Value)); err != nil {
				return plexus.StatusError
			}
		}
	}
	return plexus.StatusOK
}

func bypassThrough(in, out plexus.Buffer) {
	switch {
	case in.Channels() == out.Channels():
		out.CopyFrom(in)
	case in.Channels() == 1 && out.Channels() > 1:
		out.DuplicateMonoFrom(in)
	case in.Channels() > 1 && out.Channels() == 1:
		out.DownmixMonoFrom(in)
	default:
		out.CopyFrom(in)
	}
}
