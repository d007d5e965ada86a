package calibration

import (
	"errors"
	"math"
	"testing"

	"beatbox/internal/analysis"
)

func repeatFeatures(centroid, zcr float64, n int) []analysis.Features {
	out := make([]analysis.Features, n)
	for i := range out {
		out[i] = analysis.Features{Centroid: centroid, ZCR: zcr, Flatness: 0.5, Rolloff: 5000, DecayTimeMs: 50}
	}
	return out
}

func TestDefaultState(t *testing.T) {
	s := DefaultState()
	if s.KickCentroidMax != 1500 || s.KickZCRMax != 0.1 ||
		s.SnareCentroidMax != 4000 || s.HiHatZCRMin != 0.3 {
		t.Errorf("unexpected defaults: %+v", s)
	}
	if s.Calibrated {
		t.Error("default state must not be flagged calibrated")
	}
}

func TestFromSamples(t *testing.T) {
	s, err := FromSamples(
		repeatFeatures(500, 0.05, 10),
		repeatFeatures(3000, 0.15, 10),
		repeatFeatures(8000, 0.5, 10),
		10,
	)
	if err != nil {
		t.Fatalf("FromSamples: %v", err)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"kick centroid", s.KickCentroidMax, 600},
		{"kick zcr", s.KickZCRMax, 0.06},
		{"snare centroid", s.SnareCentroidMax, 3600},
		{"hihat zcr", s.HiHatZCRMin, 0.6},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 0.01 {
			t.Errorf("%s threshold = %v, want %v", c.name, c.got, c.want)
		}
	}
	if !s.Calibrated {
		t.Error("finalized state must be flagged calibrated")
	}
}

func TestFromSamplesEmptySet(t *testing.T) {
	_, err := FromSamples(repeatFeatures(500, 0.05, 10), nil, repeatFeatures(8000, 0.5, 10), 10)
	var insufficient *InsufficientSamplesError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientSamplesError", err)
	}
}

func TestFromSamplesRejectsShortSet(t *testing.T) {
	// One short of the quota for a single sound is still insufficient.
	_, err := FromSamples(
		repeatFeatures(500, 0.05, 9),
		repeatFeatures(3000, 0.15, 10),
		repeatFeatures(8000, 0.5, 10),
		10,
	)
	var insufficient *InsufficientSamplesError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientSamplesError", err)
	}
	if insufficient.Required != 10 || insufficient.Collected != 9 {
		t.Errorf("error reports %d/%d, want 9/10", insufficient.Collected, insufficient.Required)
	}
}

func TestFromSamplesDefaultQuota(t *testing.T) {
	// required < 1 falls back to the standard per-sound quota.
	_, err := FromSamples(
		repeatFeatures(500, 0.05, DefaultSamplesNeeded-1),
		repeatFeatures(3000, 0.15, DefaultSamplesNeeded),
		repeatFeatures(8000, 0.5, DefaultSamplesNeeded),
		0,
	)
	var insufficient *InsufficientSamplesError
	if !errors.As(err, &insufficient) {
		t.Fatalf("err = %v, want InsufficientSamplesError", err)
	}
}

func TestFromSamplesClampsToSafetyBounds(t *testing.T) {
	s, err := FromSamples(
		repeatFeatures(500, 0.05, 10),
		repeatFeatures(18000, 0.15, 10), // mean*1.2 would exceed 20 kHz
		repeatFeatures(8000, 0.9, 10),   // mean*1.2 would exceed 1.0
		10,
	)
	if err != nil {
		t.Fatalf("FromSamples: %v", err)
	}
	if s.SnareCentroidMax != MaxCentroidHz {
		t.Errorf("snare centroid = %v, want clamped to %v", s.SnareCentroidMax, MaxCentroidHz)
	}
	if s.HiHatZCRMin != 1 {
		t.Errorf("hihat zcr = %v, want clamped to 1", s.HiHatZCRMin)
	}
}

func TestStateExportImportRoundTrip(t *testing.T) {
	orig := State{
		KickCentroidMax:  1200,
		KickZCRMax:       0.08,
		SnareCentroidMax: 3500,
		HiHatZCRMin:      0.45,
		Calibrated:       true,
	}
	got := ImportState(orig.Export())
	if got != orig {
		t.Errorf("round trip = %+v, want %+v", got, orig)
	}
}

func TestImportStateMissingKeysFallBack(t *testing.T) {
	got := ImportState(map[string]float64{"kick_centroid_max": 1800})
	if got.KickCentroidMax != 1800 {
		t.Errorf("kick centroid = %v, want 1800", got.KickCentroidMax)
	}
	if got.SnareCentroidMax != 4000 {
		t.Errorf("snare centroid = %v, want default 4000", got.SnareCentroidMax)
	}
	if got.Calibrated {
		t.Error("missing calibrated key should default to false")
	}
}

func TestStateThresholds(t *testing.T) {
	s := DefaultState()
	want := analysis.DefaultThresholds()
	if s.Thresholds() != want {
		t.Errorf("Thresholds() = %+v, want %+v", s.Thresholds(), want)
	}
}

func TestValidateFeatures(t *testing.T) {
	tests := []struct {
		name    string
		f       analysis.Features
		wantErr bool
	}{
		{"valid", analysis.Features{Centroid: 1000, ZCR: 0.05}, false},
		{"centroid too low", analysis.Features{Centroid: 30, ZCR: 0.05}, true},
		{"centroid too high", analysis.Features{Centroid: 25000, ZCR: 0.05}, true},
		{"zcr negative", analysis.Features{Centroid: 1000, ZCR: -0.1}, true},
		{"zcr too high", analysis.Features{Centroid: 1000, ZCR: 1.5}, true},
		{"low boundary", analysis.Features{Centroid: 50, ZCR: 0}, false},
		{"high boundary", analysis.Features{Centroid: 20000, ZCR: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFeatures(tt.f)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFeatures(%+v) error = %v, wantErr %v", tt.f, err, tt.wantErr)
			}
			if err != nil {
				var invalid *InvalidFeaturesError
				if !errors.As(err, &invalid) {
					t.Errorf("error type = %T, want InvalidFeaturesError", err)
				}
			}
		})
	}
}
