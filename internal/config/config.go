// SPDX-License-Identifier: MIT

// Package config loads trainer configuration from YAML with environment
// variable overrides, and can watch the file for live changes.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"beatbox/internal/analysis"
	"beatbox/pkg/bitint"
)

// Limits for validation.
const (
	MinDeviceID     = -1 // -1 selects the system default device
	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MaxBufferFrames = 8192

	MinBPM = 20
	MaxBPM = 300
)

// Config is the full application configuration, loaded from YAML.
type Config struct {
	LogLevel    string            `yaml:"log_level"`
	Audio       AudioConfig       `yaml:"audio"`
	Metronome   MetronomeConfig   `yaml:"metronome"`
	Onset       OnsetConfig       `yaml:"onset"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Recording   RecordingConfig   `yaml:"recording"`
	Transport   TransportConfig   `yaml:"transport"`
}

// AudioConfig holds the PortAudio stream settings.
type AudioConfig struct {
	InputDevice     int    `yaml:"input_device"`      // PortAudio device index, -1 for default
	SampleRate      uint32 `yaml:"sample_rate"`       // Hz
	FramesPerBuffer int    `yaml:"frames_per_buffer"` // audio period size
	LowLatency      bool   `yaml:"low_latency"`
}

// MetronomeConfig holds the click track settings.
type MetronomeConfig struct {
	BPM uint32 `yaml:"bpm"` // 0 disables the metronome and timing feedback
}

// OnsetConfig holds the spectral flux detector tuning.
type OnsetConfig struct {
	WindowSize       int     `yaml:"window_size"`
	HopSize          int     `yaml:"hop_size"`
	MedianHalfWindow int     `yaml:"median_half_window"`
	ThresholdOffset  float64 `yaml:"threshold_offset"`
}

// ClassifierConfig selects the classification depth.
type ClassifierConfig struct {
	Level2 bool `yaml:"level2"` // refine hi-hats and ksnare using decay and flatness
}

// CalibrationConfig holds the calibration procedure settings.
type CalibrationConfig struct {
	SamplesNeeded int    `yaml:"samples_needed"` // accepted hits per sound
	StateFile     string `yaml:"state_file"`     // persisted thresholds, empty to skip
}

// RecordingConfig holds the session capture settings.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	OutputFile string `yaml:"output_file"` // empty auto-generates a name
}

// TransportConfig holds the WebSocket feedback server settings.
type TransportConfig struct {
	WebSocketEnabled bool   `yaml:"websocket_enabled"`
	WebSocketAddr    string `yaml:"websocket_addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     -1,
			SampleRate:      48000,
			FramesPerBuffer: 512,
			LowLatency:      true,
		},
		Metronome: MetronomeConfig{
			BPM: 120,
		},
		Onset: OnsetConfig{
			WindowSize:       analysis.DefaultOnsetWindowSize,
			HopSize:          analysis.DefaultOnsetHopSize,
			MedianHalfWindow: analysis.DefaultMedianHalfWindow,
			ThresholdOffset:  analysis.DefaultThresholdOffset,
		},
		Classifier: ClassifierConfig{
			Level2: true,
		},
		Calibration: CalibrationConfig{
			SamplesNeeded: 10,
			StateFile:     "",
		},
		Recording: RecordingConfig{
			Enabled:    false,
			OutputFile: "",
		},
		Transport: TransportConfig{
			WebSocketEnabled: true,
			WebSocketAddr:    "127.0.0.1:8765",
		},
	}
}

// Load reads configuration from the YAML file at path. An empty path falls
// back to "beatbox.yaml" in the working directory if present, otherwise the
// defaults. Environment overrides apply after the file, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat("beatbox.yaml"); err == nil {
			path = "beatbox.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration against hardware and algorithm limits.
func (c *Config) Validate() error {
	if c.Audio.InputDevice < MinDeviceID {
		return fmt.Errorf("audio.input_device %d is below %d", c.Audio.InputDevice, MinDeviceID)
	}
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %d outside [%d, %d]", c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.FramesPerBuffer <= 0 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer %d outside (0, %d]", c.Audio.FramesPerBuffer, MaxBufferFrames)
	}
	if c.Metronome.BPM != 0 && (c.Metronome.BPM < MinBPM || c.Metronome.BPM > MaxBPM) {
		return fmt.Errorf("metronome.bpm %d outside [%d, %d] (0 disables)", c.Metronome.BPM, MinBPM, MaxBPM)
	}
	if !bitint.IsPowerOfTwo(c.Onset.WindowSize) {
		return fmt.Errorf("onset.window_size %d is not a power of two", c.Onset.WindowSize)
	}
	if c.Onset.HopSize <= 0 || c.Onset.WindowSize%c.Onset.HopSize != 0 {
		return fmt.Errorf("onset.hop_size %d must evenly divide window_size %d", c.Onset.HopSize, c.Onset.WindowSize)
	}
	if c.Onset.MedianHalfWindow <= 0 {
		return fmt.Errorf("onset.median_half_window must be positive")
	}
	if c.Onset.ThresholdOffset < 0 {
		return fmt.Errorf("onset.threshold_offset must be non-negative")
	}
	if c.Calibration.SamplesNeeded <= 0 {
		return fmt.Errorf("calibration.samples_needed must be positive")
	}
	if c.Transport.WebSocketEnabled && c.Transport.WebSocketAddr == "" {
		return fmt.Errorf("transport.websocket_addr must be set when the server is enabled")
	}
	return nil
}

// OnsetDetectorConfig converts the YAML block to the analysis package form.
func (c *Config) OnsetDetectorConfig() analysis.OnsetConfig {
	return analysis.OnsetConfig{
		WindowSize:       c.Onset.WindowSize,
		HopSize:          c.Onset.HopSize,
		MedianHalfWindow: c.Onset.MedianHalfWindow,
		ThresholdOffset:  c.Onset.ThresholdOffset,
	}
}

// applyEnvOverrides applies BEATBOX_* environment variables on top of the
// loaded configuration. Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("BEATBOX_LOG_LEVEL"); ok {
		c.LogLevel = val
	}
	if val, ok := os.LookupEnv("BEATBOX_DEVICE"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Audio.InputDevice = n
		}
	}
	if val, ok := os.LookupEnv("BEATBOX_BPM"); ok {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			c.Metronome.BPM = uint32(n)
		}
	}
	if val, ok := os.LookupEnv("BEATBOX_WS_ADDR"); ok {
		c.Transport.WebSocketAddr = val
	}
	if val, ok := os.LookupEnv("BEATBOX_WS_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.WebSocketEnabled = b
		}
	}
	if val, ok := os.LookupEnv("BEATBOX_RECORD"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Recording.Enabled = b
		}
	}
}
