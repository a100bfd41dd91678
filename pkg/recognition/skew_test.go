package recognition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSkewEstimatorStraightColumn(t *testing.T) {
	var s SkewEstimator
	for y := 0.0; y < 100; y += 10 {
		s.Observe(50, y, 1)
	}
	assert.InDelta(t, 0, s.Angle(), 1e-9)
}

func TestSkewEstimatorTiltedColumn(t *testing.T) {
	var s SkewEstimator
	// x drifts one pixel per pixel of y: a 45 degree skew.
	for y := 0.0; y < 100; y += 10 {
		s.Observe(y, y, 1)
	}
	assert.InDelta(t, 45, s.Angle(), 1e-6)
}

func TestSkewEstimatorWeighting(t *testing.T) {
	var s SkewEstimator
	for y := 0.0; y < 100; y += 10 {
		s.Observe(50, y, 10)
	}
	// One heavily mistrusted outlier barely moves the fit.
	s.Observe(500, 50, 0.01)
	assert.Less(t, math.Abs(s.Angle()), 1.0)
}

func TestSkewEstimatorDegenerate(t *testing.T) {
	var s SkewEstimator
	assert.Equal(t, 0.0, s.Angle())
	s.Observe(10, 10, 1)
	assert.Equal(t, 0.0, s.Angle())
	s.Observe(20, 10, 1)
	assert.Equal(t, 0.0, s.Angle())

	s.Reset()
	assert.Equal(t, 0, s.Samples())
}

func TestSkewEstimatorObserveLine(t *testing.T) {
	var s SkewEstimator
	s.ObserveLine(line("Milch", 0, 0, 60, 10), true)
	s.ObserveLine(line("Brot", 2, 20, 62, 30), true)
	assert.Equal(t, 2, s.Samples())
	assert.Greater(t, s.Angle(), 0.0)
}
