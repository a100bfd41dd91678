package recognition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsMapRoundTrip(t *testing.T) {
	opts := DefaultOptions()
	again := OptionsFromMap(opts.ToMap())

	assert.Equal(t, opts.StoreNames, again.StoreNames)
	assert.Equal(t, opts.TotalLabels, again.TotalLabels)
	assert.Equal(t, opts.IgnoreKeywords, again.IgnoreKeywords)
	assert.Equal(t, opts.StopKeywords, again.StopKeywords)
	assert.Equal(t, opts.FoodKeywords, again.FoodKeywords)
	assert.Equal(t, opts.NonFoodKeywords, again.NonFoodKeywords)
	assert.Equal(t, opts.DiscountKeywords, again.DiscountKeywords)
	assert.Equal(t, opts.DepositKeywords, again.DepositKeywords)
}

func TestOptionsFromMapDropsNonStrings(t *testing.T) {
	opts := OptionsFromMap(map[string]any{
		FieldStoreNames: map[string]any{
			"aldi": "Aldi",
			"bad":  42,
		},
		FieldStopKeywords: []any{"bar", 7, nil, "cash"},
		"unknownKey":      "ignored",
	})

	assert.Equal(t, map[string]string{"aldi": "Aldi"}, opts.StoreNames)
	assert.Equal(t, []string{"bar", "cash"}, opts.StopKeywords)
}

func TestOptionsWithDefaultsExtend(t *testing.T) {
	user := OptionsFromMap(map[string]any{
		FieldStoreNames:   map[string]any{"spar": "SPAR", "aldi": "ALDI Markt"},
		FieldStopKeywords: []any{"quittung"},
	})
	merged := user.WithDefaults(nil)

	// User entry wins on key clash, defaults survive otherwise.
	assert.Equal(t, "ALDI Markt", merged.StoreNames["aldi"])
	assert.Equal(t, "SPAR", merged.StoreNames["spar"])
	assert.Equal(t, "Lidl", merged.StoreNames["lidl"])
	assert.Contains(t, merged.StopKeywords, "quittung")
	assert.Contains(t, merged.StopKeywords, "bar")
}

func TestOptionsWithDefaultsReplace(t *testing.T) {
	user := OptionsFromMap(map[string]any{
		FieldStopKeywords: []any{"quittung"},
	})
	merged := user.WithDefaults(map[string]MergePolicy{
		FieldStopKeywords: MergeReplace,
	})

	assert.Equal(t, []string{"quittung"}, merged.StopKeywords)
	// Untouched fields still extend.
	assert.Equal(t, "Lidl", merged.StoreNames["lidl"])
}

func TestKeywordMatchingUsesWordBoundaries(t *testing.T) {
	opts := DefaultOptions()
	assert.True(t, opts.MatchesStop("Bar"))
	assert.True(t, opts.MatchesStop("BAR 10,00"))
	assert.False(t, opts.MatchesStop("Barilla Penne"))
}

func TestKeywordMatchingCJKSubstring(t *testing.T) {
	opts := DefaultOptions()
	assert.True(t, opts.MatchesDiscount("値引"))
	assert.True(t, opts.MatchesDiscount("お値引き 100"))
	assert.True(t, opts.MatchesStop("お預り ¥1000"))
}

func TestLookupStore(t *testing.T) {
	opts := DefaultOptions()

	canonical, ok := opts.LookupStore("  ALDI ")
	require.True(t, ok)
	assert.Equal(t, "Aldi", canonical)

	_, ok = opts.LookupStore("Unbekannter Laden")
	assert.False(t, ok)
}

func TestCanonicalLabelLookup(t *testing.T) {
	opts := DefaultOptions()

	canonical, ok := opts.CanonicalLabel("summe")
	require.True(t, ok)
	assert.Equal(t, "Summe", canonical)

	canonical, ok = opts.CanonicalLabel("合計")
	require.True(t, ok)
	assert.Equal(t, "合計", canonical)
}

func TestEmptyKeywordSetNeverMatches(t *testing.T) {
	opts := NewOptions(nil, nil, nil, nil, nil, nil, nil, nil)
	assert.False(t, opts.MatchesStop("bar"))
	assert.False(t, opts.MatchesIgnore("mwst"))
}
