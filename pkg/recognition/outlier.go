package recognition

import (
	"math"
	"sort"

	"go.uber.org/zap"
)

// centsSlack is the subset-sum closeness tolerance in cents.
const centsSlack = int64(1)

// OutlierRemover reconciles a receipt's position sum to its recognized
// total by removing a minimal low-confidence subset whose prices close the
// gap. It never removes more than the deletion gate allows and leaves the
// receipt untouched when no acceptable subset exists.
type OutlierRemover struct {
	tuning Tuning
	logger *zap.Logger
}

// NewOutlierRemover builds a remover. A nil logger disables logging.
func NewOutlierRemover(tuning Tuning, logger *zap.Logger) *OutlierRemover {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutlierRemover{tuning: tuning.Normalize(), logger: logger}
}

type outlierCandidate struct {
	pos        *Position
	cents      int64
	confidence int
	suspect    bool
	score      int
}

type subsetSolution struct {
	indexes []int
	score   int
	diff    int64
}

// Reconcile removes outlier positions in place. No-op when no total was
// recognized, at most one position exists, the gap is already within
// tolerance, or the early feasibility check rules out any subset.
func (o *OutlierRemover) Reconcile(r *Receipt, opts *Options) {
	total, ok := r.TotalValue()
	if !ok || len(r.Positions) <= 1 {
		return
	}

	calcC := Cents(r.CalculatedTotal())
	totC := Cents(total)
	delta := calcC - totC
	if absInt64(delta) <= Cents(o.tuning.TotalTolerance) {
		return
	}

	var posSum, negSum int64
	for _, p := range r.Positions {
		c := p.PriceCents()
		if c > 0 {
			posSum += c
		} else {
			negSum += c
		}
	}
	// Removing all negatives is the highest reachable sum, removing all
	// positives the lowest; outside that band no subset can help.
	if calcC-negSum < totC-centsSlack || calcC-posSum > totC+centsSlack {
		return
	}
	if delta < 0 {
		// Only positive-price removal is supported; a negative gap would
		// need the symmetric path.
		return
	}

	candidates := o.selectCandidates(r, delta, opts)
	if len(candidates) == 0 {
		return
	}

	solution := o.search(candidates, delta)
	if solution == nil {
		return
	}
	if len(solution.indexes) > o.allowedDeletions(len(r.Positions)) {
		return
	}

	drop := map[*Position]bool{}
	for _, i := range solution.indexes {
		drop[candidates[i].pos] = true
	}
	o.logger.Debug("removing outlier positions",
		zap.Int("count", len(solution.indexes)),
		zap.Int64("delta_cents", delta),
	)
	kept := r.Positions[:0]
	for _, p := range r.Positions {
		if drop[p] {
			if g := p.Group(); g != nil {
				g.Remove(p)
			}
			continue
		}
		kept = append(kept, p)
	}
	r.Positions = kept
}

// selectCandidates keeps removable positions: price inside the gap,
// low confidence or too few corroborating spellings, scored by how
// suspicious they look.
func (o *OutlierRemover) selectCandidates(r *Receipt, delta int64, opts *Options) []outlierCandidate {
	var out []outlierCandidate
	for _, p := range r.Positions {
		c := p.PriceCents()
		if c <= 0 || c > delta+centsSlack {
			continue
		}
		conf := p.ConfidenceValue()
		alternatives := 0
		if p.Product != nil {
			alternatives = len(p.Product.AlternativeTexts)
		}
		if conf > o.tuning.LowConfidenceThreshold && alternatives >= o.tuning.MinSamples {
			continue
		}
		suspect := p.Product != nil && opts != nil && looksLikeLabel(p.Product.Text, opts)
		score := 100 - conf
		if suspect {
			score += 50
		}
		out = append(out, outlierCandidate{pos: p, cents: c, confidence: conf, suspect: suspect, score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].confidence != out[j].confidence {
			return out[i].confidence < out[j].confidence
		}
		if out[i].suspect != out[j].suspect {
			return out[i].suspect
		}
		return absInt64(out[i].cents) > absInt64(out[j].cents)
	})
	if len(out) > o.tuning.MaxCandidates {
		out = out[:o.tuning.MaxCandidates]
	}
	return out
}

func looksLikeLabel(text string, opts *Options) bool {
	norm := normalizeLabelKey(text)
	if norm == "" {
		return false
	}
	for _, key := range opts.LabelKeys() {
		if labelScore(norm, key) >= labelThreshold(len([]rune(key))) {
			return true
		}
	}
	return false
}

// search runs the three stages: single candidate, best pair, bounded DFS.
// Solutions compare by fewer items, then higher score, then smaller gap.
func (o *OutlierRemover) search(candidates []outlierCandidate, delta int64) *subsetSolution {
	var best *subsetSolution
	consider := func(s *subsetSolution) {
		if best == nil || betterSolution(s, best) {
			best = s
		}
	}

	// Stage 1: a single candidate that closes the gap.
	for i, c := range candidates {
		if diff := absInt64(c.cents - delta); diff <= centsSlack {
			return &subsetSolution{indexes: []int{i}, score: c.score, diff: diff}
		}
	}

	// Stage 2: the best pair.
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			sum := candidates[i].cents + candidates[j].cents
			if diff := absInt64(sum - delta); diff <= centsSlack {
				consider(&subsetSolution{
					indexes: []int{i, j},
					score:   candidates[i].score + candidates[j].score,
					diff:    diff,
				})
			}
		}
	}
	if best != nil {
		return best
	}

	// Stage 3: bounded DFS with reachability pruning. Candidates that are
	// both confident and backed by a stable group stay untouchable.
	allowed := make([]bool, len(candidates))
	for i, c := range candidates {
		allowed[i] = true
		if c.confidence > o.tuning.LowConfidenceThreshold {
			if g := c.pos.Group(); g != nil && g.Stability() >= o.tuning.StabilityThreshold {
				allowed[i] = false
			}
		}
	}
	maxTail := make([]int64, len(candidates)+1)
	for i := len(candidates) - 1; i >= 0; i-- {
		maxTail[i] = maxTail[i+1]
		if allowed[i] && candidates[i].cents > 0 {
			maxTail[i] += candidates[i].cents
		}
	}

	var dfs func(i int, sum int64, picked []int, score int)
	dfs = func(i int, sum int64, picked []int, score int) {
		if diff := absInt64(sum - delta); len(picked) > 0 && diff <= centsSlack {
			consider(&subsetSolution{indexes: append([]int(nil), picked...), score: score, diff: diff})
		}
		if i >= len(candidates) {
			return
		}
		if sum-delta > centsSlack {
			return
		}
		if sum+maxTail[i] < delta-centsSlack {
			return
		}
		if allowed[i] {
			dfs(i+1, sum+candidates[i].cents, append(picked, i), score+candidates[i].score)
		}
		dfs(i+1, sum, picked, score)
	}
	dfs(0, 0, nil, 0)
	return best
}

func betterSolution(a, b *subsetSolution) bool {
	if len(a.indexes) != len(b.indexes) {
		return len(a.indexes) < len(b.indexes)
	}
	if a.score != b.score {
		return a.score > b.score
	}
	return a.diff < b.diff
}

// allowedDeletions is the deletion gate: a hard cap of n-1 and a soft cap
// scaling with the receipt size.
func (o *OutlierRemover) allowedDeletions(n int) int {
	var soft int
	switch {
	case n <= 1:
		soft = 0
	case n <= 3:
		soft = 1
	default:
		soft = int(math.Floor(0.3 * float64(n)))
		if soft < 2 {
			soft = 2
		}
	}
	if hard := n - 1; soft > hard {
		soft = hard
	}
	return soft
}

// BeamReconcile is the optimizer's reconciliation pass: a width-bounded
// beam over the positions sorted by ascending group-membership size. When
// the beam finds nothing it falls back to a single greedy member swap.
func (o *OutlierRemover) BeamReconcile(r *Receipt, opts *Options) {
	total, ok := r.TotalValue()
	if !ok || len(r.Positions) <= 1 {
		return
	}
	delta := Cents(r.CalculatedTotal()) - Cents(total)
	tolC := Cents(o.tuning.TotalTolerance)
	if absInt64(delta) <= tolC {
		return
	}
	if delta < 0 {
		o.greedySwap(r, Cents(total))
		return
	}

	ordered := append([]*Position(nil), r.Positions...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return groupSize(ordered[i]) < groupSize(ordered[j])
	})

	type beamState struct {
		sum     int64
		dropped []*Position
	}
	states := []beamState{{}}
	for _, p := range ordered {
		c := p.PriceCents()
		if c <= 0 || c > delta+centsSlack {
			continue
		}
		var next []beamState
		for _, s := range states {
			next = append(next, s)
			if s.sum+c <= delta+centsSlack {
				next = append(next, beamState{
					sum:     s.sum + c,
					dropped: append(append([]*Position(nil), s.dropped...), p),
				})
			}
		}
		sort.SliceStable(next, func(i, j int) bool {
			di := absInt64(next[i].sum - delta)
			dj := absInt64(next[j].sum - delta)
			if di != dj {
				return di < dj
			}
			return len(next[i].dropped) < len(next[j].dropped)
		})
		if len(next) > o.tuning.BeamWidth {
			next = next[:o.tuning.BeamWidth]
		}
		states = next
	}

	var winner *beamState
	for i := range states {
		s := &states[i]
		if len(s.dropped) == 0 || absInt64(s.sum-delta) > centsSlack {
			continue
		}
		if winner == nil || len(s.dropped) < len(winner.dropped) {
			winner = s
		}
	}
	if winner == nil || len(winner.dropped) > o.allowedDeletions(len(r.Positions)) {
		o.greedySwap(r, Cents(total))
		return
	}

	drop := map[*Position]bool{}
	for _, p := range winner.dropped {
		drop[p] = true
	}
	kept := r.Positions[:0]
	for _, p := range r.Positions {
		if drop[p] {
			if g := p.Group(); g != nil {
				g.Remove(p)
			}
			continue
		}
		kept = append(kept, p)
	}
	r.Positions = kept
}

// greedySwap tries one member swap: replacing a single position's price
// with another observation from its group when that moves the sum closer
// to the target.
func (o *OutlierRemover) greedySwap(r *Receipt, targetC int64) {
	calcC := Cents(r.CalculatedTotal())
	bestGap := absInt64(calcC - targetC)

	var bestPos *Position
	var bestPrice *Price
	for _, p := range r.Positions {
		g := p.Group()
		if g == nil {
			continue
		}
		for _, m := range g.Members() {
			if m.Price == nil || m == p {
				continue
			}
			swapped := calcC - p.PriceCents() + m.PriceCents()
			if gap := absInt64(swapped - targetC); gap < bestGap {
				bestGap = gap
				bestPos = p
				bestPrice = m.Price
			}
		}
	}
	if bestPos != nil {
		o.logger.Debug("greedy price swap",
			zap.Float64("from", bestPos.Price.Value),
			zap.Float64("to", bestPrice.Value),
		)
		bestPos.Price = bestPrice
	}
}

func groupSize(p *Position) int {
	if g := p.Group(); g != nil {
		return g.Len()
	}
	return 0
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
