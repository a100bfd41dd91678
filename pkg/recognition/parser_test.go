package recognition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(text string, left, top, right, bottom float64) TextLine {
	return TextLine{Text: text, BBox: Rect{Left: left, Top: top, Right: right, Bottom: bottom}}
}

func frame(lines ...TextLine) RecognizedText {
	return RecognizedText{Blocks: []Block{{Lines: lines}}}
}

var frameTS = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func parseAt(t *testing.T, rec RecognizedText, ts time.Time) *Receipt {
	t.Helper()
	return NewParser(nil).ProcessAt(rec, DefaultOptions(), ts)
}

func TestProcessEmptyFrame(t *testing.T) {
	r := ParseFrame(RecognizedText{}, DefaultOptions())
	require.NotNil(t, r)
	assert.True(t, r.IsEmpty())
	assert.False(t, r.IsValid())
}

func TestProcessSimpleGermanReceipt(t *testing.T) {
	rec := frame(
		line("Aldi", 0, 0, 60, 10),
		line("Milch", 0, 50, 60, 60),
		line("1,99", 160, 50, 200, 60),
		line("Summe", 0, 90, 60, 100),
		line("1,99", 160, 90, 200, 100),
	)
	r := parseAt(t, rec, frameTS)

	assert.Equal(t, "Aldi", r.StoreName())
	require.Len(t, r.Positions, 1)
	assert.Equal(t, "Milch", r.Positions[0].Product.Text)
	assert.InDelta(t, 1.99, r.Positions[0].Price.Value, 1e-9)

	require.NotNil(t, r.TotalLabel)
	assert.Equal(t, "Summe", r.TotalLabel.Text)
	total, ok := r.TotalValue()
	require.True(t, ok)
	assert.InDelta(t, 1.99, total, 1e-9)
	assert.True(t, r.IsValid())
}

func TestProcessJapaneseInlineReceipt(t *testing.T) {
	rec := frame(
		line("TTOもちチーズ ¥702", 0, 10, 200, 20),
		line("値引", 0, 30, 40, 40),
		line("-100", 160, 30, 200, 40),
		line("合計", 0, 50, 40, 60),
		line("¥602", 160, 50, 200, 60),
	)
	r := parseAt(t, rec, frameTS)

	require.Len(t, r.Positions, 2)
	assert.InDelta(t, 702, r.Positions[0].Price.Value, 1e-9)
	assert.InDelta(t, -100, r.Positions[1].Price.Value, 1e-9)

	total, ok := r.TotalValue()
	require.True(t, ok)
	assert.InDelta(t, 602, total, 1e-9)
	assert.True(t, r.IsValid())
}

func TestProcessStopKeywordTruncates(t *testing.T) {
	rec := frame(
		line("Milch", 0, 10, 60, 20),
		line("1,99", 160, 10, 200, 20),
		line("Bar", 0, 30, 40, 40),
		line("Brot", 0, 50, 60, 60),
		line("2,49", 160, 50, 200, 60),
	)
	r := parseAt(t, rec, frameTS)

	require.Len(t, r.Positions, 1)
	assert.Equal(t, "Milch", r.Positions[0].Product.Text)
}

func TestStopKeywordNeedsWordBoundary(t *testing.T) {
	rec := frame(
		line("Barilla Penne", 0, 10, 80, 20),
		line("1,79", 160, 10, 200, 20),
	)
	r := parseAt(t, rec, frameTS)
	require.Len(t, r.Positions, 1)
	assert.Equal(t, "Barilla Penne", r.Positions[0].Product.Text)
}

func TestProcessDetectsPurchaseDate(t *testing.T) {
	rec := frame(
		line("15.01.2025", 0, 0, 80, 10),
		line("Milch", 0, 30, 60, 40),
		line("1,99", 160, 30, 200, 40),
	)
	r := parseAt(t, rec, frameTS)
	require.NotNil(t, r.PurchaseDate)
	assert.True(t, r.PurchaseDate.Date.Equal(date(2025, time.January, 15)))
	// The date line must not become a position.
	require.Len(t, r.Positions, 1)
	assert.Equal(t, "Milch", r.Positions[0].Product.Text)
}

func TestProcessBindsUnits(t *testing.T) {
	rec := frame(
		line("Apfel 3 x 0,99", 0, 10, 100, 20),
		line("2,97", 160, 10, 200, 20),
	)
	r := parseAt(t, rec, frameTS)

	require.Len(t, r.Positions, 1)
	require.NotNil(t, r.Positions[0].Unit)
	assert.Equal(t, 3, r.Positions[0].Unit.Quantity)
	assert.InDelta(t, 0.99, r.Positions[0].Unit.Price, 1e-9)
}

func TestProcessIsPure(t *testing.T) {
	rec := frame(
		line("Aldi", 0, 0, 60, 10),
		line("Milch", 0, 50, 60, 60),
		line("1,99", 160, 50, 200, 60),
		line("Summe", 0, 90, 60, 100),
		line("1,99", 160, 90, 200, 100),
	)
	opts := DefaultOptions()
	p := NewParser(nil)
	a := p.ProcessAt(rec, opts, frameTS)
	b := p.ProcessAt(rec, opts, frameTS)
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Equal(t, a.StoreName(), b.StoreName())
	assert.Len(t, b.Positions, len(a.Positions))
}

func TestProductAlwaysLeftOfPrice(t *testing.T) {
	rec := frame(
		line("Milch", 0, 10, 60, 20),
		line("1,99", 160, 10, 200, 20),
		line("Brot", 0, 30, 55, 40),
		line("2,49", 160, 30, 200, 40),
	)
	r := parseAt(t, rec, frameTS)
	require.NotEmpty(t, r.Positions)
	for _, p := range r.Positions {
		assert.LessOrEqual(t, p.Product.Line.BBox.Right, p.Price.Line.BBox.Left)
	}
}

func TestOrphanTotalLabelIsDemoted(t *testing.T) {
	// A label with no amount anywhere must not survive as a total pair.
	rec := frame(
		line("Summe", 0, 10, 60, 20),
		line("Karte", 120, 30, 200, 40),
	)
	r := parseAt(t, rec, frameTS)
	assert.Nil(t, r.TotalLabel)
	assert.Nil(t, r.Total)
}

func TestLabelThresholdBounds(t *testing.T) {
	assert.Equal(t, 75, labelThreshold(2))
	assert.Equal(t, 78, labelThreshold(5))
	assert.GreaterOrEqual(t, labelThreshold(30), 75)
	assert.LessOrEqual(t, labelThreshold(200), 98)
}
