package recognition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1,99", 1.99},
		{"10.000,00", 10000},
		{"7,500.00", 7500},
		{"¥702", 702},
		{"-100", -100},
		{"€ 2,49", 2.49},
		{"0,50", 0.5},
	}
	for _, c := range cases {
		got, ok := ParseAmount(c.in)
		require.True(t, ok, "input %q", c.in)
		assert.InDelta(t, c.want, got, 1e-9, "input %q", c.in)
	}

	for _, in := range []string{"", "abc", "1,2,3,4", "--5", "1.2.3"} {
		_, ok := ParseAmount(in)
		assert.False(t, ok, "input %q", in)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.99", FormatAmount(1.99))
	assert.Equal(t, "-100.00", FormatAmount(-100))
	assert.Equal(t, "0.50", FormatAmount(0.5))
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseDateFamilies(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"令和5年1月15日", date(2023, time.January, 15)},
		{"平成31年4月30日", date(2019, time.April, 30)},
		{"令和元年5月1日", date(2019, time.May, 1)},
		{"2023年1月5日", date(2023, time.January, 5)},
		{"2023-01-15 12:34", date(2023, time.January, 15)},
		{"2025/01/15", date(2025, time.January, 15)},
		{"15.01.2025", date(2025, time.January, 15)},
		{"Jan 15, 2025", date(2025, time.January, 15)},
		{"15 January 2025", date(2025, time.January, 15)},
		{"15. Januar 2025", date(2025, time.January, 15)},
	}
	for _, c := range cases {
		got, ok := ParseDate(c.in)
		require.True(t, ok, "input %q", c.in)
		assert.True(t, got.Equal(c.want), "input %q: got %v", c.in, got)
	}
}

func TestParseDateRejectsInvalid(t *testing.T) {
	for _, in := range []string{"", "Summe 1,99", "2023-13-02 10:00", "31.02.2025", "0999/01/01"} {
		_, ok := ParseDate(in)
		assert.False(t, ok, "input %q", in)
	}
}

func TestParseDateIsUTCCalendarDate(t *testing.T) {
	got, ok := ParseDate("15.01.2025")
	require.True(t, ok)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 0, got.Hour())
}
