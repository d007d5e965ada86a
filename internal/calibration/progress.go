// Package calibration implements the guided threshold-learning workflow:
// measure the room's noise floor, collect ten validated samples each for
// kick, snare and hi-hat, then derive per-sound classification thresholds.
//
// Acceptance gates adapt to the user: repeated rejections relax the RMS and
// feature gates in bounded steps, and the last near-miss is kept around so
// the control surface can promote it manually.
package calibration

// Sound is one step of the calibration sequence.
type Sound int

const (
	SoundNoiseFloor Sound = iota
	SoundKick
	SoundSnare
	SoundHiHat
)

// Next returns the following step, or false after the last one.
func (s Sound) Next() (Sound, bool) {
	switch s {
	case SoundNoiseFloor:
		return SoundKick, true
	case SoundKick:
		return SoundSnare, true
	case SoundSnare:
		return SoundHiHat, true
	default:
		return s, false
	}
}

// DisplayName is the human-readable step name for the UI.
func (s Sound) DisplayName() string {
	switch s {
	case SoundNoiseFloor:
		return "NOISE FLOOR"
	case SoundKick:
		return "KICK"
	case SoundSnare:
		return "SNARE"
	case SoundHiHat:
		return "HI-HAT"
	default:
		return "UNKNOWN"
	}
}

// IsSoundPhase reports whether this step collects feature samples.
func (s Sound) IsSoundPhase() bool {
	return s != SoundNoiseFloor
}

// GuidanceReason explains why the workflow is not making progress.
type GuidanceReason int

const (
	// GuidanceStagnation: sustained audio but nothing passes the gates.
	GuidanceStagnation GuidanceReason = iota
	// GuidanceTooQuiet: the level is below the RMS gate.
	GuidanceTooQuiet
	// GuidanceClipped: the input looks clipped or overdriven.
	GuidanceClipped
)

func (r GuidanceReason) String() string {
	switch r {
	case GuidanceStagnation:
		return "STAGNATION"
	case GuidanceTooQuiet:
		return "TOO_QUIET"
	default:
		return "CLIPPED"
	}
}

// Guidance is a rate-limited hint attached to progress updates when sample
// collection stalls.
type Guidance struct {
	Sound  Sound          `json:"sound"`
	Reason GuidanceReason `json:"reason"`
	Level  float64        `json:"level"`
	Misses int            `json:"misses"`
}

// Progress describes the current calibration step for the UI.
type Progress struct {
	CurrentSound          Sound     `json:"current_sound"`
	SamplesCollected      int       `json:"samples_collected"`
	SamplesNeeded         int       `json:"samples_needed"`
	Guidance              *Guidance `json:"guidance,omitempty"`
	ManualAcceptAvailable bool      `json:"manual_accept_available"`
}

// IsSoundComplete reports whether the current step has all its samples.
func (p Progress) IsSoundComplete() bool {
	return p.SamplesCollected >= p.SamplesNeeded
}

// Percentage is the current step's completion in [0, 100].
func (p Progress) Percentage() int {
	if p.SamplesNeeded == 0 {
		return 0
	}
	return p.SamplesCollected * 100 / p.SamplesNeeded
}
