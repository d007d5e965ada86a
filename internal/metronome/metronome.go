// Package metronome provides sample-accurate beat timing and click synthesis.
//
// The timing functions are pure integer arithmetic over the engine frame
// counter, so a beat lands on exactly one frame with zero jitter. The click
// waveform is precomputed at startup; only a sample-by-sample copy happens
// inside the audio callback.
package metronome

import (
	"math"
	"math/rand"
)

// ClickDurationMs is the length of the metronome click.
const ClickDurationMs = 20.0

// clickSeed fixes the noise generator so every run produces an identical
// click waveform.
const clickSeed = 42

// SamplesPerBeat returns the rounded number of samples between consecutive
// beats: round(sampleRate * 60 / bpm). bpm must be validated > 0 by the
// caller; this function is on the real-time path and does not check.
func SamplesPerBeat(bpm uint32, sampleRate uint32) uint64 {
	return (uint64(sampleRate)*60 + uint64(bpm)/2) / uint64(bpm)
}

// IsOnBeat reports whether frame lies exactly on a beat boundary for the
// given beat interval. Allocation-free; safe in the audio callback.
func IsOnBeat(frame, samplesPerBeat uint64) bool {
	return frame%samplesPerBeat == 0
}

// GenerateClick returns a 20 ms seeded white-noise burst with a linear
// fade-out. Deterministic across calls and platforms using the same
// generator. Allocates, so it must run at startup, never in the callback.
func GenerateClick(sampleRate uint32) []float32 {
	numSamples := int(float64(sampleRate) * ClickDurationMs / 1000.0)
	rng := rand.New(rand.NewSource(clickSeed))

	samples := make([]float32, numSamples)
	for i := range samples {
		// Fade avoids a click tail discontinuity at the burst edge.
		fade := 1.0 - float64(i)/float64(numSamples)
		samples[i] = float32((rng.Float64()*2 - 1) * fade)
	}
	return samples
}

// GenerateSineClick returns a 20 ms 1 kHz sine burst as an alternative click
// voice for listeners who find the noise burst harsh.
func GenerateSineClick(sampleRate uint32) []float32 {
	numSamples := int(float64(sampleRate) * ClickDurationMs / 1000.0)

	samples := make([]float32, numSamples)
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		fade := 1.0 - float64(i)/float64(numSamples)
		samples[i] = float32(math.Sin(2*math.Pi*1000*t) * fade)
	}
	return samples
}
