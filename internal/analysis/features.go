// Package analysis implements the per-buffer DSP pipeline: spectral-flux
// onset detection, feature extraction, heuristic classification, and timing
// quantization against the metronome grid.
package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// FeatureWindowSize is the FFT size for feature extraction. Larger than the
// onset window for better frequency resolution.
const FeatureWindowSize = 1024

// rolloffThreshold is the cumulative-energy fraction defining spectral rolloff.
const rolloffThreshold = 0.85

// Features are the five scalar descriptors of one onset window. Immutable
// once extracted.
type Features struct {
	// Centroid is the energy-weighted mean frequency in Hz.
	Centroid float64 `json:"centroid"`
	// ZCR is the normalized zero-crossing rate in [0, 1].
	ZCR float64 `json:"zcr"`
	// Flatness is geometric/arithmetic spectral mean in [0, 1];
	// 0 is a pure tone, values near 1 are noise-like.
	Flatness float64 `json:"flatness"`
	// Rolloff is the frequency in Hz below which 85% of energy lies.
	Rolloff float64 `json:"rolloff"`
	// DecayTimeMs is the time for the envelope to fall 20 dB from its peak.
	DecayTimeMs float64 `json:"decay_time_ms"`
}

// FeatureExtractor computes Features from a 1024-sample window centered on an
// onset. All buffers are pre-allocated; Extract itself does not allocate.
// Not safe for concurrent use — it belongs to the analysis thread.
type FeatureExtractor struct {
	fft        *fourier.FFT
	sampleRate float64

	win      []float64    // Hann coefficients
	shortWin []float64    // scratch for re-deriving a window over short inputs
	input    []float64    // windowed input
	coeffs   []complex128 // FFT output
	mag      []float64    // magnitude spectrum, FeatureWindowSize/2+1 bins
}

// NewFeatureExtractor pre-computes the window and workspace for the given
// sample rate.
func NewFeatureExtractor(sampleRate float64) *FeatureExtractor {
	win := make([]float64, FeatureWindowSize)
	for i := range win {
		win[i] = 1.0
	}
	window.Hann(win)

	bins := FeatureWindowSize/2 + 1
	return &FeatureExtractor{
		fft:        fourier.NewFFT(FeatureWindowSize),
		sampleRate: sampleRate,
		win:        win,
		shortWin:   make([]float64, FeatureWindowSize),
		input:      make([]float64, FeatureWindowSize),
		coeffs:     make([]complex128, bins),
		mag:        make([]float64, bins),
	}
}

// Extract computes all five features from the window. Windows shorter than
// FeatureWindowSize are tapered by a window of their own length and then
// zero-padded, so the truncation edge adds no spectral splatter; longer
// inputs are truncated.
func (fe *FeatureExtractor) Extract(audio []float32) Features {
	n := len(audio)
	if n > FeatureWindowSize {
		n = FeatureWindowSize
		audio = audio[:n]
	}

	win := fe.win
	if n < FeatureWindowSize {
		win = fe.shortWin[:n]
		for i := range win {
			win[i] = 1.0
		}
		if n > 1 {
			window.Hann(win)
		}
	}

	for i := 0; i < FeatureWindowSize; i++ {
		if i < n {
			fe.input[i] = float64(audio[i]) * win[i]
		} else {
			fe.input[i] = 0
		}
	}

	fe.fft.Coefficients(fe.coeffs, fe.input)
	for i, c := range fe.coeffs {
		fe.mag[i] = cmplx.Abs(c)
	}

	return Features{
		Centroid:    fe.centroid(),
		ZCR:         zeroCrossingRate(audio),
		Flatness:    flatness(fe.mag),
		Rolloff:     fe.rolloff(),
		DecayTimeMs: decayTimeMs(audio, fe.sampleRate),
	}
}

// centroid is Σ(f_i·|X[i]|) / Σ|X[i]|, or 0 for silence.
func (fe *FeatureExtractor) centroid() float64 {
	binWidth := fe.sampleRate / FeatureWindowSize

	var weighted, total float64
	for i, m := range fe.mag {
		weighted += float64(i) * binWidth * m
		total += m
	}
	if total <= 1e-10 {
		return 0
	}
	return weighted / total
}

// zeroCrossingRate counts sign changes normalized by window length.
func zeroCrossingRate(audio []float32) float64 {
	if len(audio) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(audio); i++ {
		if (audio[i] >= 0) != (audio[i-1] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(audio)-1)
}

// flatness is the geometric mean of the non-silent magnitude bins divided by
// their arithmetic mean, clamped to [0, 1].
func flatness(mag []float64) float64 {
	var logSum, sum float64
	count := 0
	for _, m := range mag {
		if m > 1e-10 {
			logSum += math.Log(m)
			sum += m
			count++
		}
	}
	if count == 0 || sum <= 1e-10 {
		return 0
	}
	geo := math.Exp(logSum / float64(count))
	arith := sum / float64(count)
	return math.Min(geo/arith, 1.0)
}

// rolloff finds the lowest bin frequency at which cumulative energy reaches
// 85% of the total. Returns 0 for silence.
func (fe *FeatureExtractor) rolloff() float64 {
	var total float64
	for _, m := range fe.mag {
		total += m * m
	}
	if total < 1e-10 {
		return 0
	}

	binWidth := fe.sampleRate / FeatureWindowSize
	threshold := rolloffThreshold * total
	var cumulative float64
	for i, m := range fe.mag {
		cumulative += m * m
		if cumulative >= threshold {
			return float64(i) * binWidth
		}
	}
	return float64(len(fe.mag)-1) * binWidth
}

// decayTimeMs measures the time from the envelope peak to the first sample
// 20 dB (10x) below it. If the window ends before that point, the remaining
// duration is reported.
func decayTimeMs(audio []float32, sampleRate float64) float64 {
	if len(audio) == 0 {
		return 0
	}

	peakIdx := 0
	var peak float64
	for i, s := range audio {
		a := math.Abs(float64(s))
		if a > peak {
			peak = a
			peakIdx = i
		}
	}
	if peak < 1e-6 {
		return 0
	}

	threshold := peak * 0.1
	for i := peakIdx; i < len(audio); i++ {
		if math.Abs(float64(audio[i])) < threshold {
			return float64(i-peakIdx) / sampleRate * 1000.0
		}
	}
	return float64(len(audio)-peakIdx) / sampleRate * 1000.0
}
