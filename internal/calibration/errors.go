package calibration

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyInProgress is returned when starting a procedure twice.
	ErrAlreadyInProgress = errors.New("calibration already in progress")
	// ErrNotCalibrating is returned for commands that need an active
	// sound-collection phase.
	ErrNotCalibrating = errors.New("no calibration sound phase active")
	// ErrNoCandidate is returned by manual accept when nothing was buffered.
	ErrNoCandidate = errors.New("no candidate available for manual accept")
)

// InsufficientSamplesError reports a finalize or collection attempt with the
// wrong number of samples.
type InsufficientSamplesError struct {
	Required  int
	Collected int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("insufficient calibration samples: %d collected, %d required",
		e.Collected, e.Required)
}

// InvalidFeaturesError reports a sample outside the structural safety bounds.
type InvalidFeaturesError struct {
	Reason string
}

func (e *InvalidFeaturesError) Error() string {
	return "invalid features: " + e.Reason
}

// RejectedSampleError reports a structurally valid sample that failed the
// current acceptance gates. These count toward adaptive backoff.
type RejectedSampleError struct {
	Sound  Sound
	Reason string
}

func (e *RejectedSampleError) Error() string {
	return fmt.Sprintf("%s sample rejected: %s", e.Sound.DisplayName(), e.Reason)
}
