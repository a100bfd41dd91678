package recognition

// Thresholder adapts the confidence threshold used for group attachment
// from sum feedback: when the position sum keeps confirming the recognized
// total the threshold relaxes, when it keeps missing it tightens. The
// value never leaves a ±10 band around the configured base.
type Thresholder struct {
	base          int
	value         float64
	confirmations int
	required      int
}

// NewThresholder builds a thresholder around the given base threshold.
func NewThresholder(base, sumConfirmations int) *Thresholder {
	if base < 1 {
		base = 1
	}
	if sumConfirmations < 1 {
		sumConfirmations = 1
	}
	return &Thresholder{
		base:     base,
		value:    float64(base),
		required: sumConfirmations,
	}
}

// Value returns the current threshold.
func (t *Thresholder) Value() int {
	return int(t.value + 0.5)
}

// Feedback folds one frame's sum outcome into the threshold. A confirmed
// sum only counts after the configured number of consecutive
// confirmations.
func (t *Thresholder) Feedback(sumMatched bool) {
	if sumMatched {
		t.confirmations++
		if t.confirmations >= t.required {
			t.value -= 1
		}
	} else {
		t.confirmations = 0
		t.value += 0.5
	}
	lo, hi := float64(t.base-10), float64(t.base+10)
	if t.value < lo {
		t.value = lo
	}
	if t.value > hi {
		t.value = hi
	}
}

// Reset restores the base threshold.
func (t *Thresholder) Reset() {
	t.value = float64(t.base)
	t.confirmations = 0
}
