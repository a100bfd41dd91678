package recognition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThresholderRelaxesOnConfirmedSums(t *testing.T) {
	th := NewThresholder(70, 2)
	assert.Equal(t, 70, th.Value())

	th.Feedback(true)
	assert.Equal(t, 70, th.Value())
	th.Feedback(true)
	assert.Equal(t, 69, th.Value())
}

func TestThresholderTightensOnMismatch(t *testing.T) {
	th := NewThresholder(70, 2)
	th.Feedback(false)
	th.Feedback(false)
	assert.Equal(t, 71, th.Value())
}

func TestThresholderStaysInBand(t *testing.T) {
	th := NewThresholder(70, 1)
	for i := 0; i < 100; i++ {
		th.Feedback(true)
	}
	assert.Equal(t, 60, th.Value())

	for i := 0; i < 100; i++ {
		th.Feedback(false)
	}
	assert.Equal(t, 80, th.Value())
}

func TestThresholderReset(t *testing.T) {
	th := NewThresholder(70, 1)
	th.Feedback(true)
	th.Reset()
	assert.Equal(t, 70, th.Value())
}
