package plexus

// PlayingMode is the transport's play/stop/record state.
type PlayingMode int

const (
	Stopped PlayingMode = iota
	Playing
	Recording
)

// SyncMode selects what drives the transport's beat timeline.
type SyncMode int

const (
	SyncInternal SyncMode = iota
	SyncExternalMIDIClock
	SyncExternalLink
)

// StateChange is latched for exactly one block after a play-state
// transition.
type StateChange int

const (
	StateUnchanged StateChange = iota
	StateStarting
	StateStopping
)

// TimeSignature is numerator/denominator, e.g. 4/4.
type TimeSignature struct {
	Numerator, Denominator int
}

// BeatsPerBar returns numerator * 4 / denominator.
func (ts TimeSignature) BeatsPerBar() float64 {
	if ts.Denominator == 0 {
		return 4
	}
	return float64(ts.Numerator) * 4 / float64(ts.Denominator)
}

// SyncUpdate is one (beat_pos, confidence, wall_time) tuple an external
// sync source pushes to the transport.
type SyncUpdate struct {
	BeatPos    float64
	Confidence float64 // 0..1
	WallTime   float64 // seconds
}

// maxPhaseCorrectionPerBlock bounds how much a single external sync update
// may move the timeline in one block, keeping sync corrections from
// producing an audible jump.
const maxPhaseCorrectionPerBlock = 1.0 / 16.0

// Transport tracks tempo, time signature, play state, the derived bar/beat
// timeline, and sample/wall-clock position.
type Transport struct {
	SampleRate float64

	tempo         float64
	pendingTempo  *float64 // queued to land at the next bar boundary
	timeSig       TimeSignature
	pendingTimeSig *TimeSignature

	mode     PlayingMode
	syncMode SyncMode

	samplePos  int64
	wallClock  float64
	latencyOffsetSamples int64

	currentBeats    float64
	barStartBeats   float64
	stateChange     StateChange
}

// NewTransport constructs a transport at 120 BPM, 4/4, stopped, internal
// sync.
func NewTransport(sampleRate float64) *Transport {
	return &Transport{
		SampleRate: sampleRate,
		tempo:      120,
		timeSig:    TimeSignature{4, 4},
		mode:       Stopped,
		syncMode:   SyncInternal,
	}
}

func (t *Transport) Tempo() float64            { return t.tempo }
func (t *Transport) TimeSignature() TimeSignature { return t.timeSig }
func (t *Transport) PlayingMode() PlayingMode  { return t.mode }
func (t *Transport) SyncMode() SyncMode        { return t.syncMode }
func (t *Transport) SamplePosition() int64     { return t.samplePos }
func (t *Transport) WallClock() float64        { return t.wallClock }
func (t *Transport) CurrentBeats() float64     { return t.currentBeats }
func (t *Transport) BarStartBeats() float64    { return t.barStartBeats }
func (t *Transport) BarBeats() float64         { return t.currentBeats - t.barStartBeats }
func (t *Transport) CurrentStateChange() StateChange { return t.stateChange }
func (t *Transport) LatencyOffsetSamples() int64 { return t.latencyOffsetSamples }

func (t *Transport) SetLatencyOffsetSamples(n int64) { t.latencyOffsetSamples = n }

// SetPlayingMode transitions play state, latching StateStarting/
// StateStopping for the next Advance call.
func (t *Transport) SetPlayingMode(m PlayingMode) {
	wasPlaying := t.mode != Stopped
	isPlaying := m != Stopped
	t.mode = m
	switch {
	case !wasPlaying && isPlaying:
		t.stateChange = StateStarting
	case wasPlaying && !isPlaying:
		t.stateChange = StateStopping
	default:
		t.stateChange = StateUnchanged
	}
}

// SetTempo sets the tempo. If atBarBoundary is true, the change is queued
// to land at the next bar boundary; otherwise it applies immediately.
func (t *Transport) SetTempo(bpm float64, atBarBoundary bool) Status {
	if bpm <= 0 {
		return StatusInvalidArguments
	}
	if atBarBoundary {
		t.pendingTempo = &bpm
	} else {
		t.tempo = bpm
		t.pendingTempo = nil
	}
	return StatusOK
}

// SetTimeSignature sets the time signature, optionally queued to the next
// bar boundary.
func (t *Transport) SetTimeSignature(ts TimeSignature, atBarBoundary bool) Status {
	if ts.Numerator <= 0 || ts.Denominator <= 0 {
		return StatusInvalidArguments
	}
	if atBarBoundary {
		t.pendingTimeSig = &ts
	} else {
		t.timeSig = ts
		t.pendingTimeSig = nil
	}
	return StatusOK
}

// SetSyncMode selects the sync source, returning invalid-arguments for
// anything outside the declared enum.
func (t *Transport) SetSyncMode(m SyncMode) Status {
	switch m {
	case SyncInternal, SyncExternalMIDIClock, SyncExternalLink:
		t.syncMode = m
		return StatusOK
	default:
		return StatusInvalidArguments
	}
}

// Advance moves the transport forward by exactly one chunk. It must be
// called once per audio block by the engine, after inbound events for the
// block have been delivered.
func (t *Transport) Advance() {
	t.stateChange = StateUnchanged // latched for exactly the block right after the transition

	beatsBefore := t.currentBeats
	crossedBar := t.applyPendingAtBarBoundary(beatsBefore)
	_ = crossedBar

	t.samplePos += ChunkSize
	t.wallClock += float64(ChunkSize) / t.SampleRate

	if t.mode == Playing || t.mode == Recording {
		t.currentBeats += float64(ChunkSize) * t.tempo / (60 * t.SampleRate)
	}
	t.updateBarBoundary()
}

// applyPendingAtBarBoundary lands a queued tempo/time-signature change if
// beatsBefore is at (or has just crossed) a bar boundary.
func (t *Transport) applyPendingAtBarBoundary(beatsBefore float64) bool {
	if t.pendingTempo == nil && t.pendingTimeSig == nil {
		return false
	}
	bpb := t.timeSig.BeatsPerBar()
	if bpb <= 0 {
		return false
	}
	relative := beatsBefore - t.barStartBeats
	// Less than one chunk's worth of beats past the bar start while rolling
	// means the previous Advance crossed the boundary.
	chunkBeats := float64(ChunkSize) * t.tempo / (60 * t.SampleRate)
	rolling := t.mode == Playing || t.mode == Recording
	atBoundary := relative <= 1e-9 || (rolling && relative < chunkBeats)
	if !atBoundary {
		return false
	}
	if t.pendingTempo != nil {
		t.tempo = *t.pendingTempo
		t.pendingTempo = nil
	}
	if t.pendingTimeSig != nil {
		t.timeSig = *t.pendingTimeSig
		t.pendingTimeSig = nil
	}
	return true
}

// updateBarBoundary advances barStartBeats whenever currentBeats has
// crossed a multiple of beatsPerBar.
func (t *Transport) updateBarBoundary() {
	bpb := t.timeSig.BeatsPerBar()
	if bpb <= 0 {
		return
	}
	for t.currentBeats-t.barStartBeats >= bpb {
		t.barStartBeats += bpb
	}
	for t.currentBeats-t.barStartBeats < 0 {
		t.barStartBeats -= bpb
	}
}

// SetTime directly sets sample position (and the derived beat timeline)
// without changing tempo/time signature, e.g. for a controller-driven
// locate. sample_pos must be monotonically non-decreasing across a
// sequence of calls for downstream timeline math to hold; SetTime itself does
// not enforce this (a seek backwards is a legitimate transport operation),
// but it recomputes currentBeats consistently from scratch either way.
func (t *Transport) SetTime(samplePos int64) {
	t.samplePos = samplePos
	t.wallClock = float64(samplePos) / t.SampleRate
	t.currentBeats = float64(samplePos) * t.tempo / (60 * t.SampleRate)
	t.barStartBeats = 0
	t.updateBarBoundary()
}

// PushSync feeds one external sync-source update into the transport. Only
// meaningful when SyncMode is not SyncInternal; the transport
// phase-aligns to the pushed beat position, but never moves by more than
// maxPhaseCorrectionPerBlock beats in a single call.
func (t *Transport) PushSync(u SyncUpdate) {
	if t.syncMode == SyncInternal {
		return
	}
	delta := u.BeatPos - t.currentBeats
	if delta > maxPhaseCorrectionPerBlock {
		delta = maxPhaseCorrectionPerBlock
	} else if delta < -maxPhaseCorrectionPerBlock {
		delta = -maxPhaseCorrectionPerBlock
	}
	t.currentBeats += delta * u.Confidence
	t.updateBarBoundary()
}
