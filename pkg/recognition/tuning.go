package recognition

import "time"

// Tuning carries the optimizer and reconciliation scalars. Zero values are
// replaced by the defaults via Normalize, so a partially filled literal is
// safe to pass around.
type Tuning struct {
	// CacheSize bounds the number of groups, the members per group and the
	// header-cache window length.
	CacheSize int
	// ConfidenceThreshold is the minimum combined confidence for attaching
	// a position to an existing group.
	ConfidenceThreshold int
	// StabilityThreshold is the minimum stability percentage for a group to
	// count as stable.
	StabilityThreshold int
	// InvalidateInterval is how long a group may go without a new
	// observation before it is evicted, whatever its quality.
	InvalidateInterval time.Duration
	// EWMAAlpha smooths the learned vertical order position.
	EWMAAlpha float64
	// AboveCountDecayThreshold triggers halving of the pairwise order
	// counters once their sum exceeds it.
	AboveCountDecayThreshold int
	// LoopThreshold is the number of identical-fingerprint frames before
	// the optimizer gives up; a forced regroup happens at half of it.
	LoopThreshold int
	// TotalTolerance is the absolute tolerance for total equality.
	TotalTolerance float64
	// SumConfirmationThreshold is the number of confirmations needed before
	// a sum candidate is trusted by the thresholder.
	SumConfirmationThreshold int

	// ProductWeight and PriceWeight weight the two confidence halves when
	// they are combined.
	ProductWeight int
	PriceWeight   int

	// Outlier-removal bounds.
	LowConfidenceThreshold int
	MinSamples             int
	MaxCandidates          int
	BeamWidth              int
}

// DefaultTuning returns the tuning table from the optimizer design.
func DefaultTuning() Tuning {
	return Tuning{
		CacheSize:                20,
		ConfidenceThreshold:      70,
		StabilityThreshold:       50,
		InvalidateInterval:       2 * time.Second,
		EWMAAlpha:                0.3,
		AboveCountDecayThreshold: 50,
		LoopThreshold:            10,
		TotalTolerance:           0.01,
		SumConfirmationThreshold: 2,
		ProductWeight:            2,
		PriceWeight:              1,
		LowConfidenceThreshold:   60,
		MinSamples:               3,
		MaxCandidates:            12,
		BeamWidth:                256,
	}
}

// Normalize fills unset fields with defaults and clamps the rest into
// sane ranges.
func (t Tuning) Normalize() Tuning {
	def := DefaultTuning()
	if t.CacheSize <= 0 {
		t.CacheSize = def.CacheSize
	}
	if t.ConfidenceThreshold <= 0 {
		t.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if t.ConfidenceThreshold > 100 {
		t.ConfidenceThreshold = 100
	}
	if t.StabilityThreshold <= 0 {
		t.StabilityThreshold = def.StabilityThreshold
	}
	if t.StabilityThreshold > 100 {
		t.StabilityThreshold = 100
	}
	if t.InvalidateInterval <= 0 {
		t.InvalidateInterval = def.InvalidateInterval
	}
	if t.EWMAAlpha <= 0 || t.EWMAAlpha > 1 {
		t.EWMAAlpha = def.EWMAAlpha
	}
	if t.AboveCountDecayThreshold <= 0 {
		t.AboveCountDecayThreshold = def.AboveCountDecayThreshold
	}
	if t.LoopThreshold <= 1 {
		t.LoopThreshold = def.LoopThreshold
	}
	if t.TotalTolerance <= 0 {
		t.TotalTolerance = def.TotalTolerance
	}
	if t.SumConfirmationThreshold <= 0 {
		t.SumConfirmationThreshold = def.SumConfirmationThreshold
	}
	if t.ProductWeight <= 0 {
		t.ProductWeight = def.ProductWeight
	}
	if t.PriceWeight <= 0 {
		t.PriceWeight = def.PriceWeight
	}
	if t.LowConfidenceThreshold <= 0 {
		t.LowConfidenceThreshold = def.LowConfidenceThreshold
	}
	if t.MinSamples <= 0 {
		t.MinSamples = def.MinSamples
	}
	if t.MaxCandidates <= 0 {
		t.MaxCandidates = def.MaxCandidates
	}
	if t.BeamWidth <= 0 {
		t.BeamWidth = def.BeamWidth
	}
	return t
}
