package source

import "time"

// NeutralPrior is the documented default score for sources without history.
const NeutralPrior = 0.5

// Metrics is an immutable composite reliability snapshot for one source.
// Every component score lives in [0,1].
type Metrics struct {
	Accuracy       float64
	Consistency    float64
	Freshness      float64
	Verification   float64
	Authority      float64
	CrossReference float64
	Overall        float64
	// SampleCount totals the observations behind Accuracy and
	// Consistency: decided validation events plus comparison results.
	SampleCount int
	// InsufficientHistory flags that neutral priors filled in for missing
	// history rather than observed behavior.
	InsufficientHistory bool
	ComputedAt          time.Time
}

// NeutralMetrics returns the snapshot used before any history exists.
func NeutralMetrics(computedAt time.Time) Metrics {
	return Metrics{
		Accuracy:            NeutralPrior,
		Consistency:         NeutralPrior,
		Freshness:           NeutralPrior,
		Verification:        0,
		Authority:           NeutralPrior,
		CrossReference:      NeutralPrior,
		Overall:             NeutralPrior,
		InsufficientHistory: true,
		ComputedAt:          computedAt.UTC(),
	}
}

// Bounded reports whether every component score sits inside [0,1].
func (m Metrics) Bounded() bool {
	for _, score := range []float64{
		m.Accuracy, m.Consistency, m.Freshness,
		m.Verification, m.Authority, m.CrossReference, m.Overall,
	} {
		if score < 0 || score > 1 {
			return false
		}
	}
	return true
}
