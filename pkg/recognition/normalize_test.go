package recognition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFoldWidth(t *testing.T) {
	assert.Equal(t, "ABC123", FoldWidth("ＡＢＣ１２３"))
	assert.Equal(t, "a b", FoldWidth("a　b"))
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "gesamtbetrag", NormalizeKey("Gesamt-Betrag:"))
	assert.Equal(t, "summe", NormalizeKey("  SUMME  "))
	assert.Equal(t, "total123", NormalizeKey("Ｔｏｔａｌ 123"))
}

func TestNormalizeAmount(t *testing.T) {
	cases := map[string]string{
		"1,99":      "1.99",
		"10.000,00": "10000.00",
		"7,500.00":  "7500.00",
		"1,234":     "1234",
		"100.000":   "100000",
		"€ 2,49":    "2.49",
		"¥702":      "702",
		"702円":      "702",
		"−100":      "-100",
		"0,50":      "0.50",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeAmount(in), "input %q", in)
	}
}

func TestDigitRatio(t *testing.T) {
	assert.Equal(t, 1.0, DigitRatio("1234"))
	assert.Equal(t, 0.5, DigitRatio("ab12"))
	assert.Equal(t, 0.0, DigitRatio(""))
}

func TestContainsCJK(t *testing.T) {
	assert.True(t, ContainsCJK("合計"))
	assert.True(t, ContainsCJK("もちチーズ"))
	assert.False(t, ContainsCJK("Summe 1,99"))
}

func TestBestRepresentative(t *testing.T) {
	// Majority spelling wins.
	got := BestRepresentative([]string{"Milch 1L", "Milch 1L", "Mllch 1L"})
	assert.Equal(t, "Milch 1L", got)

	// Within a frequency tie the more specific text wins.
	got = BestRepresentative([]string{"Joghurt", "Joghurt Natur 500g"})
	assert.Equal(t, "Joghurt Natur 500g", got)

	assert.Equal(t, "", BestRepresentative(nil))
}

func TestTokenSpecificity(t *testing.T) {
	assert.Greater(t, TokenSpecificity("Joghurt Natur 500g"), TokenSpecificity("Joghurt"))
	assert.Equal(t, 0.0, TokenSpecificity("   "))
}
