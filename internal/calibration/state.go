package calibration

import (
	"beatbox/internal/analysis"
)

// thresholdMargin scales per-sound feature means into decision boundaries.
const thresholdMargin = 1.2

// State is the finished calibration: a flat set of named thresholds plus a
// calibrated flag. It is handed to the classifier and to whatever external
// collaborator persists it.
type State struct {
	KickCentroidMax  float64 `json:"kick_centroid_max" yaml:"kick_centroid_max"`
	KickZCRMax       float64 `json:"kick_zcr_max" yaml:"kick_zcr_max"`
	SnareCentroidMax float64 `json:"snare_centroid_max" yaml:"snare_centroid_max"`
	HiHatZCRMin      float64 `json:"hihat_zcr_min" yaml:"hihat_zcr_min"`
	Calibrated       bool    `json:"calibrated" yaml:"calibrated"`
}

// DefaultState returns the hardcoded thresholds used before any calibration
// run has completed.
func DefaultState() State {
	return State{
		KickCentroidMax:  1500.0,
		KickZCRMax:       0.1,
		SnareCentroidMax: 4000.0,
		HiHatZCRMin:      0.3,
	}
}

// Thresholds converts the state into the classifier's boundary set.
func (s State) Thresholds() analysis.Thresholds {
	return analysis.Thresholds{
		KickCentroidMax:  s.KickCentroidMax,
		KickZCRMax:       s.KickZCRMax,
		SnareCentroidMax: s.SnareCentroidMax,
		HiHatZCRMin:      s.HiHatZCRMin,
	}
}

// Export flattens the state into named values for an external store.
func (s State) Export() map[string]float64 {
	calibrated := 0.0
	if s.Calibrated {
		calibrated = 1.0
	}
	return map[string]float64{
		"kick_centroid_max":  s.KickCentroidMax,
		"kick_zcr_max":       s.KickZCRMax,
		"snare_centroid_max": s.SnareCentroidMax,
		"hihat_zcr_min":      s.HiHatZCRMin,
		"calibrated":         calibrated,
	}
}

// ImportState rebuilds a state from exported values, falling back to the
// defaults for any missing key.
func ImportState(values map[string]float64) State {
	s := DefaultState()
	if v, ok := values["kick_centroid_max"]; ok {
		s.KickCentroidMax = v
	}
	if v, ok := values["kick_zcr_max"]; ok {
		s.KickZCRMax = v
	}
	if v, ok := values["snare_centroid_max"]; ok {
		s.SnareCentroidMax = v
	}
	if v, ok := values["hihat_zcr_min"]; ok {
		s.HiHatZCRMin = v
	}
	s.Calibrated = values["calibrated"] != 0
	return s
}

// FromSamples derives thresholds from collected samples: per-feature mean
// scaled by the margin, clamped to the structural safety bounds. Every sound
// must have at least required samples; required values below 1 fall back to
// DefaultSamplesNeeded.
func FromSamples(kick, snare, hihat []analysis.Features, required int) (State, error) {
	if required < 1 {
		required = DefaultSamplesNeeded
	}
	for _, set := range [][]analysis.Features{kick, snare, hihat} {
		if len(set) < required {
			return State{}, &InsufficientSamplesError{Required: required, Collected: len(set)}
		}
	}

	return State{
		KickCentroidMax:  clamp(meanCentroid(kick)*thresholdMargin, MinCentroidHz, MaxCentroidHz),
		KickZCRMax:       clamp(meanZCR(kick)*thresholdMargin, 0, 1),
		SnareCentroidMax: clamp(meanCentroid(snare)*thresholdMargin, MinCentroidHz, MaxCentroidHz),
		HiHatZCRMin:      clamp(meanZCR(hihat)*thresholdMargin, 0, 1),
		Calibrated:       true,
	}, nil
}

func meanCentroid(samples []analysis.Features) float64 {
	var sum float64
	for _, f := range samples {
		sum += f.Centroid
	}
	return sum / float64(len(samples))
}

func meanZCR(samples []analysis.Features) float64 {
	var sum float64
	for _, f := range samples {
		sum += f.ZCR
	}
	return sum / float64(len(samples))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
