package analysis

import (
	"testing"

	"beatbox/pkg/utils"
)

const testSampleRate = 48000.0

func TestCentroidLowForBassSine(t *testing.T) {
	fe := NewFeatureExtractor(testSampleRate)
	f := fe.Extract(utils.GenerateSineWave(FeatureWindowSize, testSampleRate, 100))

	if f.Centroid <= 0 {
		t.Fatalf("centroid = %v, want > 0 for a 100 Hz sine", f.Centroid)
	}
	if f.Centroid >= 500 {
		t.Errorf("centroid = %v Hz for a 100 Hz sine, want < 500", f.Centroid)
	}
}

func TestCentroidTracksFrequency(t *testing.T) {
	fe := NewFeatureExtractor(testSampleRate)
	low := fe.Extract(utils.GenerateSineWave(FeatureWindowSize, testSampleRate, 200))
	high := fe.Extract(utils.GenerateSineWave(FeatureWindowSize, testSampleRate, 4000))

	if high.Centroid <= low.Centroid {
		t.Errorf("centroid ordering wrong: 4 kHz sine %v <= 200 Hz sine %v",
			high.Centroid, low.Centroid)
	}
}

func TestZeroCrossingRate(t *testing.T) {
	fe := NewFeatureExtractor(testSampleRate)

	noise := fe.Extract(utils.GenerateWhiteNoise(FeatureWindowSize, 7))
	if noise.ZCR <= 0.3 {
		t.Errorf("white noise ZCR = %v, want > 0.3", noise.ZCR)
	}

	sine := fe.Extract(utils.GenerateSineWave(FeatureWindowSize, testSampleRate, 100))
	if sine.ZCR >= 0.05 {
		t.Errorf("100 Hz sine ZCR = %v, want < 0.05", sine.ZCR)
	}
}

func TestFlatnessSeparatesTonalFromNoisy(t *testing.T) {
	fe := NewFeatureExtractor(testSampleRate)

	sine := fe.Extract(utils.GenerateSineWave(FeatureWindowSize, testSampleRate, 440))
	noise := fe.Extract(utils.GenerateWhiteNoise(FeatureWindowSize, 7))

	if noise.Flatness <= sine.Flatness {
		t.Errorf("flatness ordering wrong: noise %v <= sine %v", noise.Flatness, sine.Flatness)
	}
	for _, f := range []Features{sine, noise} {
		if f.Flatness < 0 || f.Flatness > 1 {
			t.Errorf("flatness = %v out of [0,1]", f.Flatness)
		}
	}
}

func TestRolloff(t *testing.T) {
	fe := NewFeatureExtractor(testSampleRate)

	sine := fe.Extract(utils.GenerateSineWave(FeatureWindowSize, testSampleRate, 100))
	if sine.Rolloff >= 1000 {
		t.Errorf("100 Hz sine rolloff = %v Hz, want < 1000", sine.Rolloff)
	}

	noise := fe.Extract(utils.GenerateWhiteNoise(FeatureWindowSize, 7))
	if noise.Rolloff <= sine.Rolloff {
		t.Errorf("rolloff ordering wrong: noise %v <= sine %v", noise.Rolloff, sine.Rolloff)
	}
}

func TestDecayTime(t *testing.T) {
	fe := NewFeatureExtractor(testSampleRate)

	// 1/e every 5 ms puts the -20 dB point near ln(10)*5 = 11.5 ms,
	// comfortably inside the 1024-sample window.
	f := fe.Extract(utils.GenerateDecay(FeatureWindowSize, testSampleRate, 5))
	if f.DecayTimeMs < 8 || f.DecayTimeMs > 16 {
		t.Errorf("decay time = %v ms, want roughly 11.5", f.DecayTimeMs)
	}

	fast := fe.Extract(utils.GenerateDecay(FeatureWindowSize, testSampleRate, 1))
	if fast.DecayTimeMs >= f.DecayTimeMs {
		t.Errorf("faster decay should measure shorter: %v >= %v", fast.DecayTimeMs, f.DecayTimeMs)
	}
}

func TestSilenceYieldsZeroCentroid(t *testing.T) {
	fe := NewFeatureExtractor(testSampleRate)
	f := fe.Extract(make([]float32, FeatureWindowSize))

	if f.Centroid != 0 {
		t.Errorf("silence centroid = %v, want 0", f.Centroid)
	}
	if f.ZCR != 0 {
		t.Errorf("silence ZCR = %v, want 0", f.ZCR)
	}
}

func TestShortInputZeroPadded(t *testing.T) {
	fe := NewFeatureExtractor(testSampleRate)

	// Half a window of sine should still give a sane low centroid.
	f := fe.Extract(utils.GenerateSineWave(FeatureWindowSize/2, testSampleRate, 100))
	if f.Centroid <= 0 || f.Centroid >= 1000 {
		t.Errorf("centroid = %v for short 100 Hz input, want (0, 1000)", f.Centroid)
	}
}

func BenchmarkExtract(b *testing.B) {
	fe := NewFeatureExtractor(testSampleRate)
	signal := utils.GenerateWhiteNoise(FeatureWindowSize, 7)
	b.ReportAllocs()
	for b.Loop() {
		fe.Extract(signal)
	}
}
