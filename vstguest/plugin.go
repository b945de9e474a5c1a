//go:build plugin

// Package vstguest exposes an AudioEngine as an embeddable VST2 instrument,
// bridging pipelined.dev/audio/vst2's host callbacks to the engine's fixed
// ChunkSize block interface, and routing incoming MIDI through the midi
// package's decode tables.
package vstguest

import (
	"github.com/rjarnstrom/plexus"
	"github.com/rjarnstrom/plexus/dispatcher"
	"github.com/rjarnstrom/plexus/midi"
	"pipelined.dev/audio/vst2"
)

// Config describes the plugin identity a build embeds via linker flags or a
// generated const file.
type Config struct {
	UniqueID       int32
	Version        int32
	Name           string
	Vendor         string
	InputChannels  int
	OutputChannels int
	MIDIPort       int // port index used to look up routes in the MIDI tables
}

// guest bridges one VST2 host instance to the engine. A host may call
// ProcessFloatFunc with any block size, while the engine only ever renders
// whole ChunkSize blocks, so guest reconciles the two with an input
// accumulator (fills to one full chunk before rendering) and an output
// ring (holds rendered samples not yet claimed by the host), at the cost of
// up to ChunkSize-1 frames of added latency — the same block-size
// reconciliation any hardware audio backend has to do against this host.
type guest struct {
	cfg    Config
	engine *plexus.AudioEngine
	router *midi.Router
	host   vst2.Host
	events []vst2.MIDIEvent

	inAccum   [][]float32
	inFilled  int

	outRing      [][]float32 // ring buffer per output channel, capacity ChunkSize
	outRingStart int
	outRingLen   int
}

// NewPlugin constructs a vst2.Plugin/vst2.Dispatcher pair wired to engine.
// d is used to post decoded note/CC events into the engine's inbound queue.
// The VST2 audio callback is the realtime thread here, so events decoded
// from the host's MIDI buffer are posted with PostFireAndForget from
// directly inside ProcessFloatFunc,
// mirroring how a native MIDI backend would feed the same queue from its
// own realtime callback.
func NewPlugin(cfg Config, engine *plexus.AudioEngine, router *midi.Router, d *dispatcher.Dispatcher, host vst2.Host) (vst2.Plugin, vst2.Dispatcher) {
	g := &guest{
		cfg:     cfg,
		engine:  engine,
		router:  router,
		inAccum: make([][]float32, cfg.InputChannels),
		outRing: make([][]float32, cfg.OutputChannels),
		host:    host,
	}
	for i := range g.inAccum {
		g.inAccum[i] = make([]float32, plexus.ChunkSize)
	}
	for i := range g.outRing {
		g.outRing[i] = make([]float32, plexus.ChunkSize)
	}

	plugin := vst2.Plugin{
		UniqueID:       cfg.UniqueID,
		Version:        cfg.Version,
		InputChannels:  cfg.InputChannels,
		OutputChannels: cfg.OutputChannels,
		Name:           cfg.Name,
		Vendor:         cfg.Vendor,
		Category:       vst2.PluginCategorySynth,
		Flags:          vst2.PluginIsSynth,
		ProcessFloatFunc: func(in, out vst2.FloatBuffer) {
			g.process(d, in, out)
		},
	}
	disp := vst2.Dispatcher{
		CanDoFunc: func(pcds vst2.PluginCanDoString) vst2.CanDoResponse {
			switch pcds {
			case vst2.PluginCanReceiveEvents, vst2.PluginCanReceiveMIDIEvent, vst2.PluginCanReceiveTimeInfo:
				return vst2.YesCanDo
			}
			return vst2.NoCanDo
		},
		ProcessEventsFunc: func(ev *vst2.EventsPtr) {
			for i := 0; i < ev.NumEvents(); i++ {
				if v, ok := ev.Event(i).(*vst2.MIDIEvent); ok {
					g.events = append(g.events, *v)
				}
			}
		},
	}
	return plugin, disp
}

// process feeds the host's raw MIDI events through the MIDI decode tables,
// posts each decoded event, then services out of the output ring — pulling
// input into inAccum and rendering a fresh chunk through the engine
// whenever the ring runs dry — until out is fully written. When the host's
// input runs out before a chunk fills, the frames not yet rendered are
// written as silence; this costs up to ChunkSize-1 frames of latency when
// the host's block size doesn't divide evenly into ChunkSize.
func (g *guest) process(d *dispatcher.Dispatcher, in, out vst2.FloatBuffer) {
	tables := g.router.Current()
	for _, ev := range g.events {
		if rt, ok := midi.Decode(tables, g.cfg.MIDIPort, uint16(ev.DeltaFrames%plexus.ChunkSize), ev.Data[:]); ok {
			d.PostFireAndForget(rt)
		}
	}
	g.events = g.events[:0]

	frames := out.Frames
	consumedIn := 0
	produced := 0
	for produced < frames {
		if g.outRingLen == 0 {
			room := plexus.ChunkSize - g.inFilled
			n := room
			if remaining := in.Frames - consumedIn; remaining < n {
				n = remaining
			}
			for c := 0; c < g.cfg.InputChannels && c < in.Channels; c++ {
				copy(g.inAccum[c][g.inFilled:g.inFilled+n], in.Channel(c)[consumedIn:consumedIn+n])
			}
			for c := g.cfg.InputChannels; c < len(g.inAccum); c++ {
				for i := 0; i < n; i++ {
					g.inAccum[c][g.inFilled+i] = 0
				}
			}
			g.inFilled += n
			consumedIn += n
			if g.inFilled < plexus.ChunkSize {
				break // host ran out of input before filling a chunk; nothing more to render this call
			}
			g.engine.Process(g.inAccum, g.outRing, plexus.ChunkSize)
			g.inFilled = 0
			g.outRingStart = 0
			g.outRingLen = plexus.ChunkSize
		}

		n := g.outRingLen
		if remaining := frames - produced; remaining < n {
			n = remaining
		}
		for c := 0; c < g.cfg.OutputChannels && c < out.Channels; c++ {
			dst := out.Channel(c)
			src := g.outRing[c]
			for i := 0; i < n; i++ {
				dst[produced+i] = src[g.outRingStart+i]
			}
		}
		g.outRingStart += n
		g.outRingLen -= n
		produced += n
	}
	for produced < frames {
		for c := 0; c < g.cfg.OutputChannels && c < out.Channels; c++ {
			out.Channel(c)[produced] = 0
		}
		produced++
	}
}
