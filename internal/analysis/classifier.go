package analysis

import "sync"

// BeatboxHit is a classified beatbox sound.
type BeatboxHit int

const (
	// Level 1 categories.
	HitKick BeatboxHit = iota
	HitSnare
	HitHiHat
	// Level 2 subcategories.
	HitClosedHiHat
	HitOpenHiHat
	HitKSnare
	// HitUnknown means the features matched no rule.
	HitUnknown
)

func (h BeatboxHit) String() string {
	switch h {
	case HitKick:
		return "KICK"
	case HitSnare:
		return "SNARE"
	case HitHiHat:
		return "HIHAT"
	case HitClosedHiHat:
		return "CLOSED_HIHAT"
	case HitOpenHiHat:
		return "OPEN_HIHAT"
	case HitKSnare:
		return "KSNARE"
	default:
		return "UNKNOWN"
	}
}

// Level 2 refinement thresholds. These are fixed: calibration tunes the
// level 1 boundaries, while subcategory splits use absolute physics
// (tonal-vs-noisy spectra, closed-vs-open decay envelopes).
const (
	ksnareFlatnessMin = 0.3   // above: noisy kick+snare hybrid, below: kick
	closedDecayMaxMs  = 50.0  // below: closed hi-hat
	openDecayMinMs    = 150.0 // above: open hi-hat
)

// Thresholds are the calibrated decision boundaries for level 1
// classification.
type Thresholds struct {
	KickCentroidMax  float64 `json:"kick_centroid_max" yaml:"kick_centroid_max"`
	KickZCRMax       float64 `json:"kick_zcr_max" yaml:"kick_zcr_max"`
	SnareCentroidMax float64 `json:"snare_centroid_max" yaml:"snare_centroid_max"`
	HiHatZCRMin      float64 `json:"hihat_zcr_min" yaml:"hihat_zcr_min"`
}

// DefaultThresholds returns the uncalibrated boundaries, usable before the
// user has run a calibration pass.
func DefaultThresholds() Thresholds {
	return Thresholds{
		KickCentroidMax:  1500.0,
		KickZCRMax:       0.1,
		SnareCentroidMax: 4000.0,
		HiHatZCRMin:      0.3,
	}
}

// Classifier applies the heuristic decision tree to extracted features.
//
// Thresholds are replaced wholesale when a calibration pass completes;
// classification itself only takes the read lock and never mutates, so
// Classify stays sub-millisecond on the analysis thread.
type Classifier struct {
	mu         sync.RWMutex
	thresholds Thresholds
	level2     bool
}

// NewClassifier creates a classifier with the given level 1 boundaries.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{thresholds: t}
}

// SetThresholds swaps in a new set of calibrated boundaries.
func (c *Classifier) SetThresholds(t Thresholds) {
	c.mu.Lock()
	c.thresholds = t
	c.mu.Unlock()
}

// CurrentThresholds returns a copy of the active boundaries.
func (c *Classifier) CurrentThresholds() Thresholds {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.thresholds
}

// SetLevel2 enables or disables subcategory classification.
func (c *Classifier) SetLevel2(enabled bool) {
	c.mu.Lock()
	c.level2 = enabled
	c.mu.Unlock()
}

// Classify runs the decision tree at the configured difficulty level and
// returns the hit category with a confidence score.
func (c *Classifier) Classify(f Features) (BeatboxHit, float64) {
	c.mu.RLock()
	t := c.thresholds
	level2 := c.level2
	c.mu.RUnlock()

	if level2 {
		return classifyLevel2(t, f)
	}
	return classifyLevel1(t, f)
}

// classifyLevel1 implements the base decision tree:
//
//	centroid < kickMax AND zcr < kickZcrMax        -> Kick
//	centroid < snareMax                            -> Snare
//	centroid >= snareMax AND zcr > hihatZcrMin     -> HiHat
//	otherwise                                      -> Unknown
func classifyLevel1(t Thresholds, f Features) (BeatboxHit, float64) {
	if f.Centroid < t.KickCentroidMax && f.ZCR < t.KickZCRMax {
		return HitKick, confidence(
			marginBelow(f.Centroid, t.KickCentroidMax),
			marginBelow(f.ZCR, t.KickZCRMax),
		)
	}
	if f.Centroid < t.SnareCentroidMax {
		return HitSnare, confidence(marginBelow(f.Centroid, t.SnareCentroidMax))
	}
	if f.ZCR > t.HiHatZCRMin {
		return HitHiHat, confidence(marginAbove(f.ZCR, t.HiHatZCRMin))
	}
	return HitUnknown, 0
}

// classifyLevel2 follows the same tree but splits the kick branch on
// spectral flatness and the hi-hat branch on decay time. Intermediate
// values fall back to the level 1 category.
func classifyLevel2(t Thresholds, f Features) (BeatboxHit, float64) {
	hit, conf := classifyLevel1(t, f)
	switch hit {
	case HitKick:
		if f.Flatness > ksnareFlatnessMin {
			return HitKSnare, conf
		}
		return HitKick, conf
	case HitHiHat:
		if f.DecayTimeMs < closedDecayMaxMs {
			return HitClosedHiHat, conf
		}
		if f.DecayTimeMs > openDecayMinMs {
			return HitOpenHiHat, conf
		}
		return HitHiHat, conf
	default:
		return hit, conf
	}
}

// confidence folds per-rule margins into a single [0,1] score: the weakest
// margin dominates, so a hit barely inside one boundary scores low even when
// far inside another.
func confidence(margins ...float64) float64 {
	min := 1.0
	for _, m := range margins {
		if m < min {
			min = m
		}
	}
	if min < 0 {
		return 0
	}
	if min > 1 {
		return 1
	}
	return min
}

// marginBelow is the relative distance of v below the threshold.
func marginBelow(v, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	return (threshold - v) / threshold
}

// marginAbove is the relative distance of v above the threshold.
func marginAbove(v, threshold float64) float64 {
	if threshold <= 0 {
		return 1
	}
	return (v - threshold) / threshold
}
