package calibration

import (
	"fmt"
	"time"

	"beatbox/internal/analysis"
	"beatbox/internal/log"
)

const (
	// DefaultSamplesNeeded is how many validated samples each sound phase
	// collects before advancing.
	DefaultSamplesNeeded = 10

	// DefaultNoiseFloorSamples is how many per-buffer RMS readings the
	// noise floor phase averages (roughly a second of audio).
	DefaultNoiseFloorSamples = 20

	// DefaultMinSampleInterval debounces acceptance so one physical hit
	// cannot be counted twice.
	DefaultMinSampleInterval = 250 * time.Millisecond

	// guidanceInterval rate-limits guidance emission per §6-style UX: at
	// most one hint every few seconds while the condition persists.
	guidanceInterval = 5 * time.Second

	// RMS at or above this level is treated as clipped input.
	clippedRMSLevel = 0.7
)

// Phase is the calibration state machine position. Transitions are linear
// and forward-only.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseMeasuringNoiseFloor
	PhaseCollectingKick
	PhaseCollectingSnare
	PhaseCollectingHiHat
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "NOT_STARTED"
	case PhaseMeasuringNoiseFloor:
		return "MEASURING_NOISE_FLOOR"
	case PhaseCollectingKick:
		return "COLLECTING_KICK"
	case PhaseCollectingSnare:
		return "COLLECTING_SNARE"
	case PhaseCollectingHiHat:
		return "COLLECTING_HIHAT"
	default:
		return "COMPLETE"
	}
}

func phaseForSound(s Sound) Phase {
	switch s {
	case SoundKick:
		return PhaseCollectingKick
	case SoundSnare:
		return PhaseCollectingSnare
	case SoundHiHat:
		return PhaseCollectingHiHat
	default:
		return PhaseMeasuringNoiseFloor
	}
}

// Procedure is the mutable calibration workflow. It is not safe for
// concurrent use; the engine serializes access behind a single mutex.
type Procedure struct {
	samplesNeeded     int
	noiseFloorNeeded  int
	minSampleInterval time.Duration

	phase Phase

	kick  []analysis.Features
	snare []analysis.Features
	hihat []analysis.Features

	noiseFloor          []float64
	noiseFloorThreshold float64

	backoff    *adaptiveBackoff
	candidates [3]*analysis.Features

	lastSampleTime time.Time
	lastGuidance   time.Time
	guidance       *Guidance

	now func() time.Time
}

// NewProcedure creates a workflow collecting samplesNeeded samples per
// sound. Zero or negative means the default of 10.
func NewProcedure(samplesNeeded int) *Procedure {
	if samplesNeeded <= 0 {
		samplesNeeded = DefaultSamplesNeeded
	}
	return &Procedure{
		samplesNeeded:     samplesNeeded,
		noiseFloorNeeded:  DefaultNoiseFloorSamples,
		minSampleInterval: DefaultMinSampleInterval,
		phase:             PhaseNotStarted,
		kick:              make([]analysis.Features, 0, samplesNeeded),
		snare:             make([]analysis.Features, 0, samplesNeeded),
		hihat:             make([]analysis.Features, 0, samplesNeeded),
		noiseFloor:        make([]float64, 0, DefaultNoiseFloorSamples),
		backoff:           newAdaptiveBackoff(0),
		now:               time.Now,
	}
}

// Start moves the workflow into the noise floor phase.
func (p *Procedure) Start() error {
	if p.phase != PhaseNotStarted {
		return ErrAlreadyInProgress
	}
	p.phase = PhaseMeasuringNoiseFloor
	log.Infof("calibration: started, measuring noise floor (%d readings)", p.noiseFloorNeeded)
	return nil
}

// Phase returns the current state machine position.
func (p *Procedure) Phase() Phase {
	return p.phase
}

// CurrentSound returns the sound being collected, or false outside the
// sound phases.
func (p *Procedure) CurrentSound() (Sound, bool) {
	switch p.phase {
	case PhaseCollectingKick:
		return SoundKick, true
	case PhaseCollectingSnare:
		return SoundSnare, true
	case PhaseCollectingHiHat:
		return SoundHiHat, true
	default:
		return SoundNoiseFloor, false
	}
}

// InNoiseFloorPhase reports whether per-buffer RMS should be fed in instead
// of onset features.
func (p *Procedure) InNoiseFloorPhase() bool {
	return p.phase == PhaseMeasuringNoiseFloor
}

// NoiseFloorThreshold returns the measured ambient RMS, 0 before the noise
// floor phase has finished.
func (p *Procedure) NoiseFloorThreshold() float64 {
	return p.noiseFloorThreshold
}

// AddNoiseFloorSample records one ambient RMS reading. Returns true when
// the noise floor phase completes and kick collection begins.
func (p *Procedure) AddNoiseFloorSample(rms float64) (bool, error) {
	if p.phase != PhaseMeasuringNoiseFloor {
		return false, fmt.Errorf("noise floor sample in phase %s: %w", p.phase, ErrNotCalibrating)
	}

	p.noiseFloor = append(p.noiseFloor, rms)
	if len(p.noiseFloor) < p.noiseFloorNeeded {
		return false, nil
	}

	var sum float64
	for _, v := range p.noiseFloor {
		sum += v
	}
	p.noiseFloorThreshold = sum / float64(len(p.noiseFloor))
	p.backoff.setNoiseFloor(p.noiseFloorThreshold)
	p.phase = PhaseCollectingKick
	log.Infof("calibration: noise floor %.5f rms, collecting kick samples", p.noiseFloorThreshold)
	return true, nil
}

// AddSample offers one onset's features plus its window RMS to the current
// sound phase. Structural failures and gate misses return a typed error and
// count toward adaptive backoff; gate misses additionally retain the sample
// as a manual-accept candidate.
func (p *Procedure) AddSample(f analysis.Features, rms float64) error {
	sound, ok := p.CurrentSound()
	if !ok {
		return ErrNotCalibrating
	}

	now := p.now()
	if p.minSampleInterval > 0 && !p.lastSampleTime.IsZero() &&
		now.Sub(p.lastSampleTime) < p.minSampleInterval {
		// Debounced hits are ignored entirely: no miss, no candidate.
		return &RejectedSampleError{Sound: sound, Reason: "within debounce interval"}
	}

	if err := ValidateFeatures(f); err != nil {
		p.backoff.recordMiss(sound, "invalid features")
		p.updateGuidance(sound, rms, now)
		return err
	}

	if gate := p.backoff.rmsGate(sound); rms < gate {
		p.backoff.recordMiss(sound, "below rms gate")
		p.storeCandidate(sound, f)
		p.updateGuidance(sound, rms, now)
		return &RejectedSampleError{
			Sound:  sound,
			Reason: fmt.Sprintf("rms %.4f below gate %.4f", rms, gate),
		}
	}

	if !p.backoff.passesFeatureGates(sound, f) {
		p.backoff.recordMiss(sound, "outside feature gates")
		p.storeCandidate(sound, f)
		p.updateGuidance(sound, rms, now)
		return &RejectedSampleError{
			Sound:  sound,
			Reason: fmt.Sprintf("features outside gates (centroid %.0f Hz, zcr %.3f)", f.Centroid, f.ZCR),
		}
	}

	p.accept(sound, f, now)
	return nil
}

// AcceptLastCandidate promotes the retained near-miss for the current sound
// into an accepted sample, bypassing the adaptive gates.
func (p *Procedure) AcceptLastCandidate() error {
	sound, ok := p.CurrentSound()
	if !ok {
		return ErrNotCalibrating
	}
	idx, _ := gateIndex(sound)
	cand := p.candidates[idx]
	if cand == nil {
		return ErrNoCandidate
	}
	if err := ValidateFeatures(*cand); err != nil {
		return err
	}

	p.candidates[idx] = nil
	p.accept(sound, *cand, p.now())
	log.Infof("calibration: manual accept used for %s", sound.DisplayName())
	return nil
}

// IsComplete reports whether all three sound phases have finished.
func (p *Procedure) IsComplete() bool {
	return p.phase == PhaseComplete
}

// Finalize converts the collected samples into a calibrated State.
func (p *Procedure) Finalize() (State, error) {
	if !p.IsComplete() {
		return State{}, &InsufficientSamplesError{
			Required:  p.samplesNeeded * 3,
			Collected: len(p.kick) + len(p.snare) + len(p.hihat),
		}
	}
	return FromSamples(p.kick, p.snare, p.hihat, p.samplesNeeded)
}

// Progress returns the current step description for the UI, including any
// pending guidance and the manual-accept availability flag.
func (p *Procedure) Progress() Progress {
	switch p.phase {
	case PhaseNotStarted, PhaseMeasuringNoiseFloor:
		return Progress{
			CurrentSound:     SoundNoiseFloor,
			SamplesCollected: len(p.noiseFloor),
			SamplesNeeded:    p.noiseFloorNeeded,
		}
	case PhaseComplete:
		return Progress{
			CurrentSound:     SoundHiHat,
			SamplesCollected: len(p.hihat),
			SamplesNeeded:    p.samplesNeeded,
		}
	}

	sound, _ := p.CurrentSound()
	idx, _ := gateIndex(sound)
	return Progress{
		CurrentSound:          sound,
		SamplesCollected:      len(p.collection(sound)),
		SamplesNeeded:         p.samplesNeeded,
		Guidance:              p.guidance,
		ManualAcceptAvailable: p.candidates[idx] != nil,
	}
}

// Reset discards all collected data and returns to NotStarted.
func (p *Procedure) Reset() {
	p.phase = PhaseNotStarted
	p.kick = p.kick[:0]
	p.snare = p.snare[:0]
	p.hihat = p.hihat[:0]
	p.noiseFloor = p.noiseFloor[:0]
	p.noiseFloorThreshold = 0
	p.backoff = newAdaptiveBackoff(0)
	p.candidates = [3]*analysis.Features{}
	p.lastSampleTime = time.Time{}
	p.lastGuidance = time.Time{}
	p.guidance = nil
}

func (p *Procedure) collection(sound Sound) []analysis.Features {
	switch sound {
	case SoundKick:
		return p.kick
	case SoundSnare:
		return p.snare
	default:
		return p.hihat
	}
}

func (p *Procedure) storeCandidate(sound Sound, f analysis.Features) {
	if idx, ok := gateIndex(sound); ok {
		c := f
		p.candidates[idx] = &c
	}
}

func (p *Procedure) accept(sound Sound, f analysis.Features, now time.Time) {
	switch sound {
	case SoundKick:
		p.kick = append(p.kick, f)
	case SoundSnare:
		p.snare = append(p.snare, f)
	case SoundHiHat:
		p.hihat = append(p.hihat, f)
	}

	p.backoff.recordAccept(sound)
	idx, _ := gateIndex(sound)
	p.candidates[idx] = nil
	p.guidance = nil
	p.lastSampleTime = now

	collected := len(p.collection(sound))
	log.Debugf("calibration: %s sample %d/%d accepted", sound.DisplayName(), collected, p.samplesNeeded)
	if collected >= p.samplesNeeded {
		p.advance(sound)
	}
}

func (p *Procedure) advance(sound Sound) {
	next, ok := sound.Next()
	if !ok {
		p.phase = PhaseComplete
		log.Infof("calibration: all sounds collected")
		return
	}
	p.phase = phaseForSound(next)
	p.backoff.resetForSound(next)
	if idx, ok := gateIndex(next); ok {
		p.candidates[idx] = nil
	}
	p.guidance = nil
	log.Infof("calibration: %s complete, collecting %s", sound.DisplayName(), next.DisplayName())
}

// updateGuidance attaches a rate-limited hint once the miss counter shows
// the user is stuck.
func (p *Procedure) updateGuidance(sound Sound, rms float64, now time.Time) {
	misses := p.backoff.missCount(sound)
	if misses < backoffTrigger {
		return
	}
	if !p.lastGuidance.IsZero() && now.Sub(p.lastGuidance) < guidanceInterval {
		return
	}

	reason := GuidanceStagnation
	switch {
	case rms >= clippedRMSLevel:
		reason = GuidanceClipped
	case rms < p.backoff.rmsGate(sound):
		reason = GuidanceTooQuiet
	}

	p.guidance = &Guidance{Sound: sound, Reason: reason, Level: rms, Misses: misses}
	p.lastGuidance = now
	log.Infof("calibration: guidance %s for %s after %d misses (level %.4f)",
		reason, sound.DisplayName(), misses, rms)
}
