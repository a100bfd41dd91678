package recognition

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func position(text string, price float64, ts time.Time) *Position {
	product := &Product{
		Line:           line(text, 0, 0, 60, 10),
		Text:           text,
		NormalizedText: NormalizeText(text),
	}
	return NewPosition(product, &Price{Line: line(FormatAmount(price), 160, 0, 200, 10), Value: price}, ts)
}

func TestGroupEvictsOldestInsertedMember(t *testing.T) {
	tuning := DefaultTuning()
	tuning.CacheSize = 3
	g := NewGroup(tuning)

	var first *Position
	for i := 0; i < 4; i++ {
		p := position("Milch", 1.99, frameTS.Add(time.Duration(i)*time.Second))
		if i == 0 {
			first = p
		}
		g.Add(p)
	}

	assert.Equal(t, 3, g.Len())
	for _, m := range g.Members() {
		assert.NotSame(t, first, m)
	}
	assert.Nil(t, first.Group())
}

func TestGroupNeverExceedsCapacity(t *testing.T) {
	tuning := DefaultTuning()
	g := NewGroup(tuning)
	for i := 0; i < tuning.CacheSize*2; i++ {
		g.Add(position("Brot", 2.49, frameTS.Add(time.Duration(i)*time.Second)))
	}
	assert.Equal(t, tuning.CacheSize, g.Len())
}

func TestGroupRecomputesConfidenceOnAdd(t *testing.T) {
	g := NewGroup(DefaultTuning())
	a := position("Milch", 1.99, frameTS)
	g.Add(a)
	require.NotNil(t, a.Product.Confidence)
	assert.Equal(t, 100, a.Product.Confidence.Value)
	assert.Equal(t, 100, a.Price.Confidence.Value)

	b := position("Milch", 1.99, frameTS.Add(time.Second))
	g.Add(b)
	assert.Equal(t, 100, b.Product.Confidence.Value)
	assert.Equal(t, 100, g.Confidence())
}

func TestGroupStability(t *testing.T) {
	g := NewGroup(DefaultTuning())
	g.Add(position("Milch", 1.99, frameTS))
	g.Add(position("Milch", 1.99, frameTS.Add(time.Second)))
	g.Add(position("Mllch", 1.99, frameTS.Add(2*time.Second)))
	assert.Equal(t, 66, g.Stability())
}

func TestGroupPriceConfidence(t *testing.T) {
	g := NewGroup(DefaultTuning())
	g.Add(position("Milch", 1.99, frameTS))

	match := g.CalculatePriceConfidence(&Price{Value: 1.99})
	assert.Equal(t, 100, match.Value)
	miss := g.CalculatePriceConfidence(&Price{Value: 2.99})
	assert.Equal(t, 0, miss.Value)
}

func TestGroupAlternativeTexts(t *testing.T) {
	g := NewGroup(DefaultTuning())
	g.Add(position("Milch", 1.99, frameTS))
	g.Add(position("Mllch", 1.99, frameTS.Add(time.Second)))
	latest := g.LatestMember()
	assert.Equal(t, []string{"Milch"}, latest.Product.AlternativeTexts)
}

func TestGroupRepresentativeText(t *testing.T) {
	g := NewGroup(DefaultTuning())
	g.Add(position("Milch 1L", 1.99, frameTS))
	g.Add(position("Milch 1L", 1.99, frameTS.Add(time.Second)))
	g.Add(position("Mllch 1L", 1.99, frameTS.Add(2*time.Second)))
	assert.Equal(t, "Milch 1L", g.RepresentativeText())
}

func TestGroupTimestamps(t *testing.T) {
	g := NewGroup(DefaultTuning())
	for i := 0; i < 3; i++ {
		g.Add(position(fmt.Sprintf("Item %d", i), 1, frameTS.Add(time.Duration(i)*time.Minute)))
	}
	assert.True(t, g.Timestamp().Equal(frameTS.Add(2*time.Minute)))
	assert.True(t, g.FirstTimestamp().Equal(frameTS))
	assert.True(t, g.HasTimestamp(frameTS.Add(time.Minute)))
	assert.False(t, g.HasTimestamp(frameTS.Add(30*time.Second)))
}
