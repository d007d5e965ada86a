package analysis

import (
	"sync/atomic"

	"beatbox/internal/metronome"
)

// OnTimeWindowMs is the timing tolerance: a hit within this many
// milliseconds of the nearest beat, on either side, counts as on time.
const OnTimeWindowMs = 50.0

// TimingClassification places a hit relative to the nearest beat.
type TimingClassification int

const (
	TimingOnTime TimingClassification = iota
	TimingEarly
	TimingLate
)

func (t TimingClassification) String() string {
	switch t {
	case TimingOnTime:
		return "ON_TIME"
	case TimingEarly:
		return "EARLY"
	default:
		return "LATE"
	}
}

// TimingFeedback is the quantizer's verdict for a single hit. ErrorMs is
// signed: negative means the hit landed before the beat.
type TimingFeedback struct {
	Classification TimingClassification `json:"classification"`
	ErrorMs        float64              `json:"error_ms"`
}

// Quantizer maps onset timestamps onto the metronome's beat grid.
//
// It reads the live BPM through a shared atomic so tempo changes from the
// control surface take effect mid-stream without locking the analysis
// thread.
type Quantizer struct {
	sampleRate uint32
	bpm        *atomic.Uint32
}

// NewQuantizer creates a quantizer against the shared BPM cell.
func NewQuantizer(sampleRate uint32, bpm *atomic.Uint32) *Quantizer {
	return &Quantizer{sampleRate: sampleRate, bpm: bpm}
}

// Quantize classifies a hit at the given absolute sample position against
// the nearest beat. Symmetric window: |error| <= OnTimeWindowMs is OnTime,
// boundary inclusive on both sides.
func (q *Quantizer) Quantize(onsetSample uint64) TimingFeedback {
	bpm := q.bpm.Load()
	if bpm == 0 {
		return TimingFeedback{Classification: TimingOnTime}
	}
	spb := metronome.SamplesPerBeat(bpm, q.sampleRate)

	// Nearest beat by rounding the beat phase.
	beat := (onsetSample + spb/2) / spb
	errSamples := int64(onsetSample) - int64(beat*spb)
	errMs := float64(errSamples) * 1000.0 / float64(q.sampleRate)

	fb := TimingFeedback{ErrorMs: errMs}
	switch {
	case errMs < -OnTimeWindowMs:
		fb.Classification = TimingEarly
	case errMs > OnTimeWindowMs:
		fb.Classification = TimingLate
	default:
		fb.Classification = TimingOnTime
	}
	return fb
}
