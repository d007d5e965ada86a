package calibration

import (
	"beatbox/internal/analysis"
	"beatbox/internal/log"
)

const (
	// Fallback RMS reference when no noise floor has been measured.
	minRMSThreshold = 0.005

	rmsGateStartMultiplier = 1.6
	rmsGateFloorMultiplier = 1.2

	// backoffTrigger consecutive misses relax the gates one step; never
	// more than maxBackoffSteps steps per sound.
	backoffTrigger  = 3
	maxBackoffSteps = 3

	// Feature gate bounds widen by this fraction per backoff step.
	featureBackoffPct = 0.10
)

// Per-sound centroid acceptance windows [min, max] in Hz, before backoff.
var baseCentroidGates = [3][2]float64{
	{60.0, 2000.0},    // kick
	{500.0, 7000.0},   // snare
	{3500.0, 14000.0}, // hi-hat
}

// Per-sound ZCR acceptance windows [min, max], before backoff.
var baseZCRGates = [3][2]float64{
	{0.0, 0.3},  // kick
	{0.02, 0.6}, // snare
	{0.18, 1.0}, // hi-hat
}

// gateState holds the live acceptance gates for one sound.
type gateState struct {
	misses      int
	step        int
	rmsGate     float64
	centroidMin float64
	centroidMax float64
	zcrMin      float64
	zcrMax      float64
}

// adaptiveBackoff relaxes per-sound acceptance gates after repeated misses.
// The RMS gate shrinks toward a floor tied to the measured noise floor so
// relaxation can never let ambient noise through as signal.
type adaptiveBackoff struct {
	gates      [3]gateState
	noiseFloor float64 // measured noise floor RMS, 0 when not yet measured
}

func newAdaptiveBackoff(noiseFloor float64) *adaptiveBackoff {
	b := &adaptiveBackoff{noiseFloor: noiseFloor}
	for i := range b.gates {
		b.gates[i] = b.initialGate(i)
	}
	return b
}

// setNoiseFloor re-seeds every gate from a freshly measured noise floor.
func (b *adaptiveBackoff) setNoiseFloor(noiseFloor float64) {
	b.noiseFloor = noiseFloor
	for i := range b.gates {
		b.gates[i] = b.initialGate(i)
	}
}

func (b *adaptiveBackoff) reference() float64 {
	if b.noiseFloor > 0 {
		return b.noiseFloor
	}
	return minRMSThreshold
}

func (b *adaptiveBackoff) gateFloor() float64 {
	return b.reference() * rmsGateFloorMultiplier
}

func (b *adaptiveBackoff) initialGate(idx int) gateState {
	return gateState{
		rmsGate:     b.reference() * rmsGateStartMultiplier,
		centroidMin: baseCentroidGates[idx][0],
		centroidMax: baseCentroidGates[idx][1],
		zcrMin:      baseZCRGates[idx][0],
		zcrMax:      baseZCRGates[idx][1],
	}
}

func gateIndex(sound Sound) (int, bool) {
	switch sound {
	case SoundKick:
		return 0, true
	case SoundSnare:
		return 1, true
	case SoundHiHat:
		return 2, true
	default:
		return 0, false
	}
}

// recordMiss counts a rejection and applies one backoff step every
// backoffTrigger consecutive misses.
func (b *adaptiveBackoff) recordMiss(sound Sound, reason string) {
	idx, ok := gateIndex(sound)
	if !ok {
		return
	}
	g := &b.gates[idx]
	g.misses++
	if g.misses%backoffTrigger != 0 || g.step >= maxBackoffSteps {
		return
	}

	g.step++
	g.rmsGate = max(g.rmsGate*0.85, b.gateFloor())
	g.centroidMin = max(g.centroidMin*(1-featureBackoffPct), MinCentroidHz)
	g.centroidMax = min(g.centroidMax*(1+featureBackoffPct), MaxCentroidHz)
	g.zcrMin = max(g.zcrMin*(1-featureBackoffPct), 0)
	g.zcrMax = min(g.zcrMax*(1+featureBackoffPct), 1)

	log.Infof("calibration: backoff step %d for %s after %d misses (%s), rms gate %.4f, centroid %.0f-%.0f, zcr %.3f-%.3f",
		g.step, sound.DisplayName(), g.misses, reason,
		g.rmsGate, g.centroidMin, g.centroidMax, g.zcrMin, g.zcrMax)
}

// recordAccept resets the sound's gates and miss counter.
func (b *adaptiveBackoff) recordAccept(sound Sound) {
	b.resetForSound(sound)
}

func (b *adaptiveBackoff) resetForSound(sound Sound) {
	if idx, ok := gateIndex(sound); ok {
		b.gates[idx] = b.initialGate(idx)
	}
}

// passesFeatureGates checks a sample against the sound's current windows.
func (b *adaptiveBackoff) passesFeatureGates(sound Sound, f analysis.Features) bool {
	idx, ok := gateIndex(sound)
	if !ok {
		return true
	}
	g := &b.gates[idx]
	return f.Centroid >= g.centroidMin && f.Centroid <= g.centroidMax &&
		f.ZCR >= g.zcrMin && f.ZCR <= g.zcrMax
}

// rmsGate returns the sound's current RMS acceptance threshold.
func (b *adaptiveBackoff) rmsGate(sound Sound) float64 {
	if idx, ok := gateIndex(sound); ok {
		return b.gates[idx].rmsGate
	}
	return 0
}

// missCount returns the sound's consecutive-miss counter.
func (b *adaptiveBackoff) missCount(sound Sound) int {
	if idx, ok := gateIndex(sound); ok {
		return b.gates[idx].misses
	}
	return 0
}
