// Package plexus is a headless, pluggable multicore audio and MIDI
// processing host. It defines the realtime audio graph, the event and
// transport subsystem, and the controller command protocol that together
// form the core of the host; audio/MIDI I/O backends and native plugin
// loaders are external collaborators that satisfy the interfaces declared
// here.
package plexus

import (
	"math"
	"sync/atomic"
)

// ChunkSize is the compile-time realtime block size, in frames. The
// realtime path never allocates and never processes a partial chunk; the
// audio backend is required to hand the engine buffers that are a multiple
// of ChunkSize.
const ChunkSize = 64

// ID is a process-unique, monotonically assigned identifier for a
// processor, track, parameter or property.
type ID uint32

// InvalidID never gets handed out by an IDAllocator.
const InvalidID ID = 0

// IDAllocator hands out monotonically increasing, process-unique
// identifiers. It is safe to share between goroutines.
type IDAllocator struct {
	next uint32
}

// Next returns the next identifier, starting from 1.
func (a *IDAllocator) Next() ID {
	return ID(atomic.AddUint32(&a.next, 1))
}

// Status is the taxonomy every mutating or query command in the controller
// facade returns. It carries no language- or
// transport-specific meaning by itself.
type Status int

const (
	// StatusOK indicates success.
	StatusOK Status = iota
	// StatusError is an internal failure: a DSP unit reported an error, or
	// a backend returned non-ok.
	StatusError
	// StatusInvalidArguments means the caller-provided value is
	// syntactically bad: out-of-enum, negative where positive is required,
	// an empty name.
	StatusInvalidArguments
	// StatusOutOfRange means the value has a valid shape but exceeds its
	// domain: a parameter outside its declared range, a channel count
	// above the maximum.
	StatusOutOfRange
	// StatusNotFound means the referenced id or name does not exist.
	StatusNotFound
	// StatusUnsupported means the operation is valid in general but not
	// applicable here, e.g. set-program on a processor without programs.
	StatusUnsupported
	// StatusTimeout means a dispatcher deadline was exceeded before a
	// completion arrived.
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusInvalidArguments:
		return "invalid-arguments"
	case StatusOutOfRange:
		return "out-of-range"
	case StatusNotFound:
		return "not-found"
	case StatusUnsupported:
		return "unsupported"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ParameterType is the domain type of a parameter's *displayed* value; the
// underlying stored value is always a float normalized to [0,1].
type ParameterType int

const (
	ParameterFloat ParameterType = iota
	ParameterInt
	ParameterBool
)

// ParameterDescriptor documents one parameter a processor exposes.
type ParameterDescriptor struct {
	ID           ID
	Name         string
	Label        string
	Unit         string // e.g. "dB", "Hz", "" for unitless
	Type         ParameterType
	Min, Max     float64 // domain-mapped bounds, for display/clamping of DomainValue
	Automatable  bool
}

// Normalize maps a domain value into [0,1] using the descriptor's declared
// linear range. Processors with a non-linear mapping (dB, log) override
// this by not calling Normalize and doing their own preprocessor math; the
// descriptor's Min/Max always describes the domain-facing bounds regardless
// of curve.
func (p ParameterDescriptor) Normalize(domain float64) float64 {
	if p.Max <= p.Min {
		return 0
	}
	n := (domain - p.Min) / (p.Max - p.Min)
	return clamp01(n)
}

// Denormalize maps a normalized [0,1] value into the descriptor's domain
// range.
func (p ParameterDescriptor) Denormalize(normalized float64) float64 {
	normalized = clamp01(normalized)
	return p.Min + normalized*(p.Max-p.Min)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// clampf clamps v into [lo, hi].
func clampf(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// PropertyDescriptor documents one string-valued opaque state slot a
// processor exposes, complementing its numeric Parameters.
type PropertyDescriptor struct {
	ID    ID
	Name  string
	Label string
}

// Program is a named preset within a processor.
type Program struct {
	Index int
	Name  string
}

// ProcessorInfo is the read-only descriptive snapshot of a processor,
// returned by the controller facade's audio-graph service.
type ProcessorInfo struct {
	ID                          ID
	Name                        string
	Label                       string
	InputChannels               int
	OutputChannels              int
	MaxInputChannels            int
	MaxOutputChannels           int
	Bypass                      bool
	Parameters                  []ParameterDescriptor
	Properties                  []PropertyDescriptor
	Programs                    []Program
	CurrentProgram              int // -1 if the processor has no programs
}

// ProcessorState is a bundle capturing everything needed to restore a
// processor to an observably equivalent configuration: an optional current
// program, an optional bypass flag, and every parameter/property value.
// This is also the layout used for persisted state.
type ProcessorState struct {
	FormatVersion    uint32
	ProcessorUID     string
	Program          *int
	Bypass           *bool
	Parameters       []ParameterValue
	Properties       []PropertyValue
}

// ParameterValue is one (id, normalized value) pair.
type ParameterValue struct {
	ID    ID
	Value float32
}

// PropertyValue is one (id, string value) pair.
type PropertyValue struct {
	ID    ID
	Value string
}

// CurrentStateFormatVersion is the format-version stamped into every
// ProcessorState produced by StateExport.
const CurrentStateFormatVersion uint32 = 1
