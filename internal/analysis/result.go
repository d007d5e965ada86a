package analysis

// ClassificationResult is the unit of output delivered downstream for each
// detected onset. Created once on the analysis thread and never mutated.
type ClassificationResult struct {
	Hit        BeatboxHit     `json:"hit"`
	Timing     TimingFeedback `json:"timing"`
	Timestamp  uint64         `json:"timestamp"` // absolute sample index since stream start
	Confidence float64        `json:"confidence"`
}
