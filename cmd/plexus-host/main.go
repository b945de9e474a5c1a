// Command plexus-host wires a full plexus engine together and renders a
// fixed duration to a .wav file. It exists as a reference driver and smoke
// test for the host's wiring — a real deployment supplies its own audio/
// MIDI backend and drives AudioEngine.Process from a callback instead. It
// writes through github.com/go-audio/wav rather than a hand-rolled encoder.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/rjarnstrom/plexus"
	"github.com/rjarnstrom/plexus/controller"
	"github.com/rjarnstrom/plexus/dispatcher"
	"github.com/rjarnstrom/plexus/midi"
	"github.com/rjarnstrom/plexus/notify"
	"github.com/rjarnstrom/plexus/rtqueue"
	"github.com/rjarnstrom/plexus/timing"
	"github.com/rjarnstrom/plexus/version"
)

const sampleRate = 48000

func main() {
	out := flag.String("o", "out.wav", "Output .wav file path.")
	seconds := flag.Float64("t", 4, "Seconds of audio to render.")
	workers := flag.Int("workers", 2, "Number of render worker cores.")
	tracks := flag.Int("tracks", 4, "Number of tracks to create.")
	bpm := flag.Float64("bpm", 120, "Starting tempo in BPM.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}

	ids := &plexus.IDAllocator{}
	transport := plexus.NewTransport(sampleRate)
	transport.SetTempo(*bpm, false)

	timings := timing.NewRegistry(timing.DefaultWindow)
	timings.SetEnabled(true)
	blockDeadline := time.Second * plexus.ChunkSize / sampleRate
	graph := plexus.NewAudioGraph(*workers, blockDeadline, timing.NewGraphRecorder(timings))
	defer graph.Close()

	inbound := rtqueue.NewMPSC(*tracks+1, 256)
	outbound := rtqueue.NewSPSC(256)
	engine := plexus.NewAudioEngine(transport, graph, inbound, outbound)

	reg := notify.NewRegistry()
	d := dispatcher.New(inbound, outbound, reg)
	d.Run()
	defer d.Stop()

	router := midi.NewRouter()
	ctl := controller.New(d, transport, graph, engine, router, timings, reg, ids)

	trackIDs := make([]plexus.ID, *tracks)
	for i := range trackIDs {
		id, st := ctl.CreateTrack(fmt.Sprintf("track-%d", i), 1, 8, nil)
		if st != plexus.StatusOK {
			fmt.Fprintf(os.Stderr, "plexus-host: create track %d: %s\n", i, st)
			os.Exit(1)
		}
		gainID := ids.Next()
		gain := plexus.NewGainProcessor(ids.Next(), fmt.Sprintf("gain-%d", i), gainID)
		if st := ctl.AddProcessor(id, gain, nil); st != plexus.StatusOK {
			fmt.Fprintf(os.Stderr, "plexus-host: add processor to track %d: %s\n", i, st)
			os.Exit(1)
		}
		trackIDs[i] = id
	}

	routes := make([]plexus.ChannelRoute, 0, *tracks*2)
	for _, id := range trackIDs {
		routes = append(routes, plexus.ChannelRoute{HardwareChannel: 0, Track: id, TrackChannel: 0})
		routes = append(routes, plexus.ChannelRoute{HardwareChannel: 1, Track: id, TrackChannel: 1})
	}
	ctl.SetOutputRouting(routes)
	ctl.SetPlayingMode(plexus.Playing)

	nFrames := int(*seconds*sampleRate) / plexus.ChunkSize * plexus.ChunkSize
	in := [][]float32{make([]float32, nFrames), make([]float32, nFrames)}
	outBufs := [][]float32{make([]float32, nFrames), make([]float32, nFrames)}
	if st := engine.Process(in, outBufs, nFrames); st != plexus.StatusOK {
		fmt.Fprintf(os.Stderr, "plexus-host: render failed: %s\n", st)
		os.Exit(1)
	}

	if err := writeWav(*out, outBufs, sampleRate); err != nil {
		fmt.Fprintf(os.Stderr, "plexus-host: write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d frames, %v)\n", *out, nFrames, time.Duration(nFrames)*time.Second/sampleRate)
}

func writeWav(path string, chans [][]float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sampleRate, 16, len(chans), 1)
	defer enc.Close()

	nFrames := len(chans[0])
	data := make([]int, nFrames*len(chans))
	for i := 0; i < nFrames; i++ {
		for c, ch := range chans {
			v := ch[i]
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			data[i*len(chans)+c] = int(v * 32767)
		}
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: len(chans), SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	return enc.Write(buf)
}
