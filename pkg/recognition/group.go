package recognition

import (
	"math"
	"time"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// Group is a capacity-bounded bag of cross-frame observations of the same
// line item. Adding beyond capacity evicts the oldest inserted member
// (FIFO by insertion, not by timestamp). Every add recomputes the product
// and price confidence of all members against the new bag.
type Group struct {
	members  []*Position
	capacity int
	tuning   Tuning
	// Test marks a group that the merge step includes regardless of
	// stability, used by the optimizer's test entry point.
	Test bool
}

// NewGroup builds an empty group with the given member capacity.
func NewGroup(tuning Tuning) *Group {
	tuning = tuning.Normalize()
	return &Group{capacity: tuning.CacheSize, tuning: tuning}
}

// Members returns the bag in insertion order. The slice is shared; callers
// must not mutate it.
func (g *Group) Members() []*Position { return g.members }

// Len returns the current member count.
func (g *Group) Len() int { return len(g.members) }

// Add inserts a position, evicting the oldest inserted member when the bag
// is full, and refreshes every member's confidence against the new bag.
func (g *Group) Add(p *Position) {
	if len(g.members) >= g.capacity {
		evicted := g.members[0]
		g.members = g.members[1:]
		if evicted.Group() == g {
			evicted.SetGroup(nil)
		}
	}
	g.members = append(g.members, p)
	p.SetGroup(g)
	g.refresh()
}

// Remove drops a position from the bag, if present.
func (g *Group) Remove(p *Position) {
	for i, m := range g.members {
		if m == p {
			g.members = append(g.members[:i], g.members[i+1:]...)
			if p.Group() == g {
				p.SetGroup(nil)
			}
			g.refresh()
			return
		}
	}
}

// refresh re-derives every member's confidences and alternative texts from
// the current bag.
func (g *Group) refresh() {
	for _, m := range g.members {
		if m.Product != nil {
			m.Product.Confidence = g.CalculateProductConfidence(m.Product)
			m.Product.AlternativeTexts = g.alternativeTexts(m.Product.Text)
		}
		if m.Price != nil {
			m.Price.Confidence = g.CalculatePriceConfidence(m.Price)
		}
	}
}

func (g *Group) alternativeTexts(except string) []string {
	var alts []string
	seen := map[string]bool{except: true}
	for _, m := range g.members {
		if m.Product == nil || seen[m.Product.Text] {
			continue
		}
		seen[m.Product.Text] = true
		alts = append(alts, m.Product.Text)
	}
	return alts
}

// CalculateProductConfidence scores how well a product text fits the bag:
// the mean token-set similarity against all members, damped when the bag
// itself is inconsistent (high similarity spread).
func (g *Group) CalculateProductConfidence(p *Product) *Confidence {
	if len(g.members) == 0 {
		return NewConfidence(100, g.tuning.ProductWeight)
	}
	scores := make([]float64, 0, len(g.members))
	for _, m := range g.members {
		if m.Product == nil {
			continue
		}
		scores = append(scores, float64(fuzzy.TokenSetRatio(p.NormalizedText, m.Product.NormalizedText)))
	}
	if len(scores) == 0 {
		return NewConfidence(100, g.tuning.ProductWeight)
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	avg := sum / float64(len(scores))
	var variance float64
	for _, s := range scores {
		variance += (s - avg) * (s - avg)
	}
	variance /= float64(len(scores))
	stddev := math.Sqrt(math.Max(0, variance))
	weight := 1.0
	if stddev >= 10 {
		weight = (100 - stddev) / 100
	}
	return NewConfidence(int(math.Round(math.Max(0, math.Min(100, avg*weight)))), g.tuning.ProductWeight)
}

// CalculatePriceConfidence scores a price against the bag by formatted
// equality: any exact member match yields 100, otherwise the share of
// matching members.
func (g *Group) CalculatePriceConfidence(p *Price) *Confidence {
	if len(g.members) == 0 {
		return NewConfidence(100, g.tuning.PriceWeight)
	}
	formatted := FormatAmount(p.Value)
	matches := 0
	total := 0
	for _, m := range g.members {
		if m.Price == nil {
			continue
		}
		total++
		if FormatAmount(m.Price.Value) == formatted {
			matches++
		}
	}
	if total == 0 {
		return NewConfidence(100, g.tuning.PriceWeight)
	}
	if matches > 0 {
		return NewConfidence(100, g.tuning.PriceWeight)
	}
	return NewConfidence(0, g.tuning.PriceWeight)
}

// Stability is the consensus percentage: how many members agree on the
// most common normalized product text.
func (g *Group) Stability() int {
	if len(g.members) == 0 {
		return 0
	}
	counts := map[string]int{}
	best := 0
	for _, m := range g.members {
		if m.Product == nil {
			continue
		}
		counts[m.Product.NormalizedText]++
		if counts[m.Product.NormalizedText] > best {
			best = counts[m.Product.NormalizedText]
		}
	}
	return best * 100 / len(g.members)
}

// Confidence is the average combined confidence over all members.
func (g *Group) Confidence() int {
	if len(g.members) == 0 {
		return 0
	}
	sum := 0
	for _, m := range g.members {
		sum += m.ConfidenceValue()
	}
	return sum / len(g.members)
}

// Timestamp is the newest member timestamp, zero for an empty bag.
func (g *Group) Timestamp() time.Time {
	var ts time.Time
	for _, m := range g.members {
		if m.Timestamp.After(ts) {
			ts = m.Timestamp
		}
	}
	return ts
}

// FirstTimestamp is the oldest member timestamp, zero for an empty bag.
func (g *Group) FirstTimestamp() time.Time {
	var ts time.Time
	for _, m := range g.members {
		if ts.IsZero() || m.Timestamp.Before(ts) {
			ts = m.Timestamp
		}
	}
	return ts
}

// BestMember returns the member with the highest combined confidence,
// breaking ties toward the newer observation. Nil for an empty bag.
func (g *Group) BestMember() *Position {
	var best *Position
	for _, m := range g.members {
		if best == nil {
			best = m
			continue
		}
		if m.ConfidenceValue() > best.ConfidenceValue() ||
			(m.ConfidenceValue() == best.ConfidenceValue() && m.Timestamp.After(best.Timestamp)) {
			best = m
		}
	}
	return best
}

// LatestMember returns the member with the newest timestamp.
func (g *Group) LatestMember() *Position {
	var latest *Position
	for _, m := range g.members {
		if latest == nil || m.Timestamp.After(latest.Timestamp) {
			latest = m
		}
	}
	return latest
}

// HasTimestamp reports whether any member was ingested at exactly ts,
// which the optimizer uses to avoid double-counting within one frame.
func (g *Group) HasTimestamp(ts time.Time) bool {
	for _, m := range g.members {
		if m.Timestamp.Equal(ts) {
			return true
		}
	}
	return false
}

// MedianProductY returns the median vertical center of the members'
// product lines, used as a late order tie-breaker.
func (g *Group) MedianProductY() float64 {
	ys := make([]float64, 0, len(g.members))
	for _, m := range g.members {
		if m.Product != nil {
			ys = append(ys, m.Product.Line.BBox.CenterY())
		}
	}
	if len(ys) == 0 {
		return 0
	}
	for i := 1; i < len(ys); i++ {
		for j := i; j > 0 && ys[j] < ys[j-1]; j-- {
			ys[j], ys[j-1] = ys[j-1], ys[j]
		}
	}
	mid := len(ys) / 2
	if len(ys)%2 == 1 {
		return ys[mid]
	}
	return (ys[mid-1] + ys[mid]) / 2
}

// RepresentativeText derives the best product spelling across the bag.
func (g *Group) RepresentativeText() string {
	texts := make([]string, 0, len(g.members))
	for _, m := range g.members {
		if m.Product != nil {
			texts = append(texts, m.Product.Text)
		}
	}
	return BestRepresentative(texts)
}
