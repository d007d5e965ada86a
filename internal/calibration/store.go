package calibration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadStateFile reads a persisted calibration state. A missing file is not
// an error: the defaults come back so a fresh install runs uncalibrated.
func LoadStateFile(path string) (State, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultState(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("reading calibration state: %w", err)
	}

	s := DefaultState()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("parsing calibration state: %w", err)
	}
	return s, nil
}

// SaveStateFile persists the state as YAML.
func SaveStateFile(path string, s State) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding calibration state: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing calibration state: %w", err)
	}
	return nil
}
