package calibration

import (
	"fmt"

	"beatbox/internal/analysis"
)

// Structural safety bounds. A sample outside these is malformed regardless
// of how far the adaptive gates have been relaxed.
const (
	MinCentroidHz = 50.0
	MaxCentroidHz = 20000.0
)

// ValidateFeatures checks a sample against the safety bounds. Boundary
// values are accepted.
func ValidateFeatures(f analysis.Features) error {
	if f.Centroid < MinCentroidHz || f.Centroid > MaxCentroidHz {
		return &InvalidFeaturesError{
			Reason: fmt.Sprintf("centroid %.1f Hz out of range [%.0f, %.0f]",
				f.Centroid, MinCentroidHz, MaxCentroidHz),
		}
	}
	if f.ZCR < 0 || f.ZCR > 1 {
		return &InvalidFeaturesError{
			Reason: fmt.Sprintf("zcr %.3f out of range [0, 1]", f.ZCR),
		}
	}
	return nil
}
