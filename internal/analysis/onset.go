package analysis

import (
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"beatbox/pkg/bitint"
)

// Onset detection defaults. The 256/64 window/hop pair (75% overlap) targets
// onset accuracy within one hop of the true transient; the threshold offset
// keeps room noise below the adaptive threshold.
const (
	DefaultOnsetWindowSize   = 256
	DefaultOnsetHopSize      = 64
	DefaultMedianHalfWindow  = 50
	DefaultThresholdOffset   = 0.15
	fluxHistorySlack         = 100 // extra flux values kept beyond the median window
)

// OnsetConfig holds the tunable parameters of the detector.
type OnsetConfig struct {
	WindowSize       int     // FFT window in samples, power of 2
	HopSize          int     // hop between windows in samples
	MedianHalfWindow int     // half-size of the adaptive threshold median window
	ThresholdOffset  float64 // offset added to the median flux
}

// DefaultOnsetConfig returns the standard detector parameters.
func DefaultOnsetConfig() OnsetConfig {
	return OnsetConfig{
		WindowSize:       DefaultOnsetWindowSize,
		HopSize:          DefaultOnsetHopSize,
		MedianHalfWindow: DefaultMedianHalfWindow,
		ThresholdOffset:  DefaultThresholdOffset,
	}
}

// OnsetDetector finds percussive onsets via half-wave rectified spectral flux
// with a windowed-median adaptive threshold and local-maximum peak picking.
//
// The detector is stateful across buffers: the previous spectrum, the flux
// history, and the stream hop counter carry over so onsets near buffer edges
// are still found. Owned by the analysis thread; not safe for concurrent use.
type OnsetDetector struct {
	cfg OnsetConfig
	fft *fourier.FFT

	win    []float64
	input  []float64
	coeffs []complex128
	mag    []float64
	prev   []float64

	flux     []float64 // bounded history of flux values
	fluxBase uint64    // absolute hop index of flux[0]
	hops     uint64    // total hops processed since stream start

	medianScratch []float64
	lastOnsetHop  uint64
	haveOnset     bool
}

// NewOnsetDetector creates a detector with the given configuration. Zero or
// invalid fields fall back to defaults.
func NewOnsetDetector(cfg OnsetConfig) *OnsetDetector {
	def := DefaultOnsetConfig()
	if !bitint.IsPowerOfTwo(cfg.WindowSize) {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.HopSize <= 0 {
		cfg.HopSize = def.HopSize
	}
	if cfg.MedianHalfWindow <= 0 {
		cfg.MedianHalfWindow = def.MedianHalfWindow
	}

	win := make([]float64, cfg.WindowSize)
	for i := range win {
		win[i] = 1.0
	}
	window.Hann(win)

	bins := cfg.WindowSize/2 + 1
	histCap := 2*cfg.MedianHalfWindow + fluxHistorySlack
	return &OnsetDetector{
		cfg:           cfg,
		fft:           fourier.NewFFT(cfg.WindowSize),
		win:           win,
		input:         make([]float64, cfg.WindowSize),
		coeffs:        make([]complex128, bins),
		mag:           make([]float64, bins),
		prev:          make([]float64, bins),
		flux:          make([]float64, 0, histCap),
		medianScratch: make([]float64, 0, 2*cfg.MedianHalfWindow+1),
	}
}

// Process consumes one audio buffer and returns the absolute sample
// timestamps (since stream start) of onsets confirmed by this buffer, in
// strictly increasing order. A peak needs its successor flux value to be
// confirmed, so an onset in the final hop of a buffer is reported on the
// next call.
func (d *OnsetDetector) Process(audio []float32) []uint64 {
	hopsBefore := d.hops

	for pos := 0; pos+d.cfg.WindowSize <= len(audio); pos += d.cfg.HopSize {
		d.pushFlux(d.spectralFlux(audio[pos : pos+d.cfg.WindowSize]))
		d.hops++
	}

	// Scan hops added by this call plus the previous call's final hop,
	// which was skipped then because its lookahead value did not exist yet.
	start := int(hopsBefore-d.fluxBase) - 1
	if start < 1 {
		start = 1
	}

	var onsets []uint64
	for i := start; i < len(d.flux)-1; i++ {
		curr := d.flux[i]
		if curr <= d.flux[i-1] || curr <= d.flux[i+1] {
			continue
		}
		if curr <= d.threshold(i) {
			continue
		}

		hop := d.fluxBase + uint64(i)
		ts := hop * uint64(d.cfg.HopSize)
		// Debounce: one window length of dead time after each onset.
		if d.haveOnset && ts < d.lastOnsetHop*uint64(d.cfg.HopSize)+uint64(d.cfg.WindowSize) {
			continue
		}
		d.lastOnsetHop = hop
		d.haveOnset = true
		onsets = append(onsets, ts)
	}
	return onsets
}

// SamplesProcessed returns the number of samples consumed so far, i.e. the
// stream position of the next buffer's first sample (modulo the final
// partial window).
func (d *OnsetDetector) SamplesProcessed() uint64 {
	return d.hops * uint64(d.cfg.HopSize)
}

// LastFlux returns the most recent spectral flux value, for debug display.
func (d *OnsetDetector) LastFlux() float64 {
	if len(d.flux) == 0 {
		return 0
	}
	return d.flux[len(d.flux)-1]
}

// spectralFlux windows the frame, takes its magnitude spectrum, and returns
// the half-wave rectified difference against the previous frame.
func (d *OnsetDetector) spectralFlux(frame []float32) float64 {
	for i := range d.input {
		d.input[i] = float64(frame[i]) * d.win[i]
	}
	d.fft.Coefficients(d.coeffs, d.input)

	var flux float64
	for i, c := range d.coeffs {
		m := cmplx.Abs(c)
		if diff := m - d.prev[i]; diff > 0 {
			flux += diff
		}
		d.mag[i] = m
	}
	copy(d.prev, d.mag)
	return flux
}

// pushFlux appends one flux value, shifting the bounded history down when
// full. No allocation: the slice stays within its original capacity.
func (d *OnsetDetector) pushFlux(f float64) {
	if len(d.flux) == cap(d.flux) {
		copy(d.flux, d.flux[1:])
		d.flux = d.flux[:len(d.flux)-1]
		d.fluxBase++
	}
	d.flux = append(d.flux, f)
}

// threshold computes median(flux[i-N .. i+N]) + offset over the available
// history. The median is evaluated only at candidate peaks, not per hop.
func (d *OnsetDetector) threshold(i int) float64 {
	lo := i - d.cfg.MedianHalfWindow
	if lo < 0 {
		lo = 0
	}
	hi := i + d.cfg.MedianHalfWindow + 1
	if hi > len(d.flux) {
		hi = len(d.flux)
	}
	if lo >= hi {
		return d.cfg.ThresholdOffset
	}

	d.medianScratch = d.medianScratch[:0]
	d.medianScratch = append(d.medianScratch, d.flux[lo:hi]...)
	sort.Float64s(d.medianScratch)

	n := len(d.medianScratch)
	var median float64
	if n%2 == 0 {
		median = (d.medianScratch[n/2-1] + d.medianScratch[n/2]) / 2
	} else {
		median = d.medianScratch[n/2]
	}
	return median + d.cfg.ThresholdOffset
}
