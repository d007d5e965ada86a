package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beatbox.yaml")
	data := []byte(`
log_level: debug
audio:
  input_device: 3
  sample_rate: 44100
metronome:
  bpm: 90
calibration:
  samples_needed: 5
transport:
  websocket_enabled: false
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
	if cfg.Audio.InputDevice != 3 || cfg.Audio.SampleRate != 44100 {
		t.Errorf("audio config = %+v", cfg.Audio)
	}
	if cfg.Metronome.BPM != 90 {
		t.Errorf("bpm = %d, want 90", cfg.Metronome.BPM)
	}
	if cfg.Calibration.SamplesNeeded != 5 {
		t.Errorf("samples needed = %d, want 5", cfg.Calibration.SamplesNeeded)
	}
	// Unset file fields keep their defaults.
	if cfg.Audio.FramesPerBuffer != 512 {
		t.Errorf("frames per buffer = %d, want default 512", cfg.Audio.FramesPerBuffer)
	}
	if !cfg.Classifier.Level2 {
		t.Error("level-2 classification should default on")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("loading a missing explicit path must fail")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BEATBOX_LOG_LEVEL", "error")
	t.Setenv("BEATBOX_BPM", "150")
	t.Setenv("BEATBOX_WS_ENABLED", "false")
	t.Setenv("BEATBOX_DEVICE", "2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("log level = %q, want error", cfg.LogLevel)
	}
	if cfg.Metronome.BPM != 150 {
		t.Errorf("bpm = %d, want 150", cfg.Metronome.BPM)
	}
	if cfg.Transport.WebSocketEnabled {
		t.Error("websocket should be disabled by env")
	}
	if cfg.Audio.InputDevice != 2 {
		t.Errorf("device = %d, want 2", cfg.Audio.InputDevice)
	}
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("BEATBOX_BPM", "fast")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Metronome.BPM != 120 {
		t.Errorf("bpm = %d, want default 120", cfg.Metronome.BPM)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"device below minimum", func(c *Config) { c.Audio.InputDevice = -2 }},
		{"sample rate too low", func(c *Config) { c.Audio.SampleRate = 4000 }},
		{"sample rate too high", func(c *Config) { c.Audio.SampleRate = 200000 }},
		{"zero frames per buffer", func(c *Config) { c.Audio.FramesPerBuffer = 0 }},
		{"oversized buffer", func(c *Config) { c.Audio.FramesPerBuffer = 16384 }},
		{"bpm too low", func(c *Config) { c.Metronome.BPM = 10 }},
		{"bpm too high", func(c *Config) { c.Metronome.BPM = 400 }},
		{"window not power of two", func(c *Config) { c.Onset.WindowSize = 300 }},
		{"hop does not divide window", func(c *Config) { c.Onset.HopSize = 96 }},
		{"zero median window", func(c *Config) { c.Onset.MedianHalfWindow = 0 }},
		{"negative threshold offset", func(c *Config) { c.Onset.ThresholdOffset = -0.1 }},
		{"zero calibration samples", func(c *Config) { c.Calibration.SamplesNeeded = 0 }},
		{"websocket enabled without addr", func(c *Config) { c.Transport.WebSocketAddr = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestBPMZeroDisablesMetronome(t *testing.T) {
	cfg := Default()
	cfg.Metronome.BPM = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("bpm 0 must be valid: %v", err)
	}
}

func TestOnsetDetectorConfig(t *testing.T) {
	cfg := Default()
	cfg.Onset.WindowSize = 512
	cfg.Onset.HopSize = 128

	oc := cfg.OnsetDetectorConfig()
	if oc.WindowSize != 512 || oc.HopSize != 128 {
		t.Errorf("detector config = %+v", oc)
	}
	if oc.MedianHalfWindow != cfg.Onset.MedianHalfWindow || oc.ThresholdOffset != cfg.Onset.ThresholdOffset {
		t.Error("detector config dropped threshold fields")
	}
}

func TestHotConfigReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beatbox.yaml")
	if err := os.WriteFile(path, []byte("metronome:\n  bpm: 100\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	hc, err := NewHotConfig(path)
	if err != nil {
		t.Fatalf("NewHotConfig: %v", err)
	}
	defer hc.Close()

	if hc.Get().Metronome.BPM != 100 {
		t.Fatalf("initial bpm = %d, want 100", hc.Get().Metronome.BPM)
	}

	reloaded := make(chan *Config, 1)
	hc.OnReload(func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	if err := hc.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("metronome:\n  bpm: 140\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Metronome.BPM != 140 {
			t.Errorf("reloaded bpm = %d, want 140", cfg.Metronome.BPM)
		}
		if hc.Get().Metronome.BPM != 140 {
			t.Error("Get did not observe the reload")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
}

func TestHotConfigKeepsPreviousOnBadReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beatbox.yaml")
	if err := os.WriteFile(path, []byte("metronome:\n  bpm: 100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	hc, err := NewHotConfig(path)
	if err != nil {
		t.Fatalf("NewHotConfig: %v", err)
	}

	if err := os.WriteFile(path, []byte("metronome:\n  bpm: 9999\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	hc.reload()

	if got := hc.Get().Metronome.BPM; got != 100 {
		t.Errorf("bpm after invalid reload = %d, want previous 100", got)
	}
}
