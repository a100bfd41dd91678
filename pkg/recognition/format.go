package recognition

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var numericAmountPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// ParseAmount parses a raw OCR amount string into a currency value. The
// string is normalized first (width folding, separator unification,
// currency glyph removal); parsing itself goes through decimal arithmetic
// so cent values survive exactly. Returns false for anything that is not
// a plain signed number after normalization.
func ParseAmount(s string) (float64, bool) {
	s = NormalizeAmount(s)
	if !numericAmountPattern.MatchString(s) {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// FormatAmount renders a currency value with two fixed decimals. Price
// equality throughout the optimizer compares these formatted strings.
func FormatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Japanese era bases: era year 1 maps to the base year.
var eraBases = map[string]int{
	"令和": 2019,
	"平成": 1989,
	"昭和": 1926,
	"大正": 1912,
	"明治": 1868,
}

var monthNames = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4, "may": 5,
	"june": 6, "july": 7, "august": 8, "september": 9, "october": 10,
	"november": 11, "december": 12,
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "jun": 6, "jul": 7,
	"aug": 8, "sep": 9, "sept": 9, "oct": 10, "nov": 11, "dec": 12,
	"januar": 1, "februar": 2, "märz": 3, "maerz": 3, "mai": 5,
	"juni": 6, "juli": 7, "oktober": 10, "dezember": 12,
}

var (
	eraDatePattern      = regexp.MustCompile(`(令和|平成|昭和|大正|明治)\s*(元|\d{1,2})年\s*(\d{1,2})月\s*(\d{1,2})日`)
	kanjiDatePattern    = regexp.MustCompile(`(\d{4})年\s*(\d{1,2})月\s*(\d{1,2})日`)
	isoTimeDatePattern  = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})\s+\d{1,2}:\d{2}`)
	numericYMDPattern   = regexp.MustCompile(`(\d{4})[./-](\d{1,2})[./-](\d{1,2})`)
	numericDMYPattern   = regexp.MustCompile(`(\d{1,2})[./-](\d{1,2})[./-](\d{4})`)
	englishMDYPattern   = regexp.MustCompile(`(?i)([A-Za-z]{3,9})\.?\s+(\d{1,2})(?:st|nd|rd|th)?\s*,?\s*(\d{4})`)
	englishDMYPattern   = regexp.MustCompile(`(?i)(\d{1,2})(?:st|nd|rd|th)?\.?\s+([A-Za-z]{3,9})\.?\s*,?\s*(\d{4})`)
	germanDMonthPattern = regexp.MustCompile(`(?i)(\d{1,2})\.\s*([A-Za-zäöü]{3,9})\s+(\d{4})`)
)

// ParseDate extracts a purchase date from a line of OCR text, trying the
// regex families in a fixed priority: Japanese era, kanji Y-M-D, ISO Y-M-D
// followed by a time, numeric Y-M-D, numeric D-M-Y, English month-day-year,
// English day-month-year, German day-month-year. The first family that
// yields a valid calendar date wins. The result is a UTC calendar date.
func ParseDate(text string) (time.Time, bool) {
	text = FoldWidth(text)

	if m := eraDatePattern.FindStringSubmatch(text); m != nil {
		year := eraBases[m[1]]
		if m[2] != "元" {
			n, _ := strconv.Atoi(m[2])
			year += n - 1
		}
		if d, ok := makeDate(year, atoi(m[3]), atoi(m[4])); ok {
			return d, true
		}
	}
	if m := kanjiDatePattern.FindStringSubmatch(text); m != nil {
		if d, ok := makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return d, true
		}
	}
	if m := isoTimeDatePattern.FindStringSubmatch(text); m != nil {
		if d, ok := makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return d, true
		}
	}
	if m := numericYMDPattern.FindStringSubmatch(text); m != nil {
		if d, ok := makeDate(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return d, true
		}
	}
	if m := numericDMYPattern.FindStringSubmatch(text); m != nil {
		if d, ok := makeDate(atoi(m[3]), atoi(m[2]), atoi(m[1])); ok {
			return d, true
		}
	}
	if m := englishMDYPattern.FindStringSubmatch(text); m != nil {
		if month, ok := monthNames[strings.ToLower(m[1])]; ok {
			if d, ok := makeDate(atoi(m[3]), month, atoi(m[2])); ok {
				return d, true
			}
		}
	}
	if m := englishDMYPattern.FindStringSubmatch(text); m != nil {
		if month, ok := monthNames[strings.ToLower(m[2])]; ok {
			if d, ok := makeDate(atoi(m[3]), month, atoi(m[1])); ok {
				return d, true
			}
		}
	}
	if m := germanDMonthPattern.FindStringSubmatch(text); m != nil {
		if month, ok := monthNames[strings.ToLower(m[2])]; ok {
			if d, ok := makeDate(atoi(m[3]), month, atoi(m[1])); ok {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// makeDate validates and builds a UTC calendar date. Years below 1000 are
// rejected, as are month/day combinations the calendar normalizes away.
func makeDate(year, month, day int) (time.Time, bool) {
	if year < 1000 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}
