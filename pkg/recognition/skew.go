package recognition

import "math"

// SkewEstimator fits the drift of a text column (x as a function of y)
// with weighted least squares and reports the resulting skew angle in
// degrees. Geometry helpers can use the angle to compensate tilted frames.
type SkewEstimator struct {
	sumW, sumX, sumY, sumXY, sumYY float64
	n                              int
}

// Observe adds one (x, y) sample with the given weight. Non-positive
// weights are ignored.
func (s *SkewEstimator) Observe(x, y, weight float64) {
	if weight <= 0 {
		return
	}
	s.sumW += weight
	s.sumX += weight * x
	s.sumY += weight * y
	s.sumXY += weight * x * y
	s.sumYY += weight * y * y
	s.n++
}

// ObserveLine adds a text line's horizontal edge, weighted by the line's
// OCR confidence (weight 1 when the engine supplied none).
func (s *SkewEstimator) ObserveLine(line TextLine, leftEdge bool) {
	w := line.Confidence
	if w <= 0 {
		w = 1
	}
	x := line.BBox.Right
	if leftEdge {
		x = line.BBox.Left
	}
	s.Observe(x, line.BBox.CenterY(), w)
}

// Samples returns the number of observations folded in so far.
func (s *SkewEstimator) Samples() int { return s.n }

// Angle returns the fitted skew in degrees, zero when fewer than two
// samples were observed or the column is degenerate.
func (s *SkewEstimator) Angle() float64 {
	if s.n < 2 || s.sumW == 0 {
		return 0
	}
	den := s.sumW*s.sumYY - s.sumY*s.sumY
	if math.Abs(den) < 1e-9 {
		return 0
	}
	slope := (s.sumW*s.sumXY - s.sumX*s.sumY) / den
	return math.Atan(slope) * 180 / math.Pi
}

// Reset discards all observations.
func (s *SkewEstimator) Reset() {
	*s = SkewEstimator{}
}
