package recognition

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"golang.org/x/text/width"
)

var (
	nonAlnumPattern   = regexp.MustCompile(`[^a-z0-9]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	currencyPattern   = regexp.MustCompile(`[€$£¥₫₩]|円|EUR|USD|JPY|Rp\.?`)
	minusReplacer     = strings.NewReplacer("−", "-", "–", "-", "—", "-", "ー", "-")
	decimalReplacer   = strings.NewReplacer("‚", ".", "،", ".", "٫", ".", "·", ".")
)

// FoldWidth maps CJK full-width digits, letters and symbols to their ASCII
// counterparts and the ideographic space to a plain space.
func FoldWidth(s string) string {
	return width.Fold.String(s)
}

// NormalizeKey lowers a string to a dictionary key: width-folded,
// lowercased, every run of characters other than ASCII letters and digits
// removed (umlauts and CJK characters are dropped as well).
func NormalizeKey(s string) string {
	s = strings.ToLower(FoldWidth(s))
	return nonAlnumPattern.ReplaceAllString(s, "")
}

// NormalizeText produces the comparison form of a product text:
// width-folded, lowercased, whitespace collapsed.
func NormalizeText(s string) string {
	s = strings.ToLower(FoldWidth(s))
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeAmount prepares a raw OCR amount string for numeric parsing:
// width folding, Unicode minus and decimal-separator unification, currency
// glyph removal, and thousands-separator resolution. The result uses '.'
// as the only decimal separator.
func NormalizeAmount(s string) string {
	s = FoldWidth(s)
	s = minusReplacer.Replace(s)
	s = decimalReplacer.Replace(s)
	s = currencyPattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
	case hasComma:
		// A 3-digit group after the first comma is a thousands separator,
		// otherwise the comma is the decimal point.
		if isThousandsGrouped(s, ",") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	case hasDot:
		if isThousandsGrouped(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}

func isThousandsGrouped(s, sep string) bool {
	parts := strings.Split(strings.TrimLeft(s, "-"), sep)
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}

// DigitRatio returns the share of digit runes in the string.
func DigitRatio(s string) float64 {
	runes := []rune(s)
	if len(runes) == 0 {
		return 0
	}
	digits := 0
	for _, r := range runes {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return float64(digits) / float64(len(runes))
}

// ContainsCJK reports whether the string carries any CJK rune.
func ContainsCJK(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			return true
		}
	}
	return false
}

// TokenSpecificity scores how much identifying information a product text
// carries: the token count scaled by the log of the summed token length.
func TokenSpecificity(s string) float64 {
	tokens := strings.Fields(NormalizeText(s))
	if len(tokens) == 0 {
		return 0
	}
	total := 0
	for _, t := range tokens {
		total += len([]rune(t))
	}
	return float64(len(tokens)) * math.Log(1+float64(total))
}

// BestRepresentative picks the text that best represents a bag of observed
// spellings of the same product. Candidates are ranked by observation
// frequency; within the top-frequency cluster the candidate with the
// highest token specificity wins, using the mean pairwise token-set
// similarity, then string length, then insertion order as tie-breakers.
func BestRepresentative(texts []string) string {
	if len(texts) == 0 {
		return ""
	}
	type candidate struct {
		text      string
		freq      int
		insertion int
	}
	seen := make(map[string]*candidate)
	var order []*candidate
	for i, t := range texts {
		if c, ok := seen[t]; ok {
			c.freq++
			continue
		}
		c := &candidate{text: t, freq: 1, insertion: i}
		seen[t] = c
		order = append(order, c)
	}

	maxFreq := 0
	for _, c := range order {
		if c.freq > maxFreq {
			maxFreq = c.freq
		}
	}
	var cluster []*candidate
	for _, c := range order {
		if c.freq == maxFreq {
			cluster = append(cluster, c)
		}
	}
	if len(cluster) == 1 {
		return cluster[0].text
	}

	meanSim := func(s string) float64 {
		sum, n := 0, 0
		for _, other := range order {
			if other.text == s {
				continue
			}
			sum += fuzzy.TokenSetRatio(s, other.text)
			n++
		}
		if n == 0 {
			return 0
		}
		return float64(sum) / float64(n)
	}

	sort.SliceStable(cluster, func(i, j int) bool {
		si, sj := TokenSpecificity(cluster[i].text), TokenSpecificity(cluster[j].text)
		if si != sj {
			return si > sj
		}
		mi, mj := meanSim(cluster[i].text), meanSim(cluster[j].text)
		if mi != mj {
			return mi > mj
		}
		li, lj := len([]rune(cluster[i].text)), len([]rune(cluster[j].text))
		if li != lj {
			return li > lj
		}
		return cluster[i].insertion < cluster[j].insertion
	})
	return cluster[0].text
}
