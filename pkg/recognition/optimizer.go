package recognition

import (
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// earlyOutlierAge is how old a group must be before the early-outlier
// cleanup may evict it.
const earlyOutlierAge = time.Second

// Optimizer fuses per-frame receipts into one stable receipt. It keeps a
// working set of groups (one per distinct line item), caches for the
// header fields, learned vertical ordering, and convergence tracking. One
// optimizer instance serves exactly one receipt stream and is not safe
// for concurrent use.
type Optimizer struct {
	tuning  Tuning
	logger  *zap.Logger
	remover *OutlierRemover

	groups      []*Group
	order       *orderTracker
	thresholder *Thresholder

	storeCache []*Entity
	totalCache []*Entity
	labelCache []*Entity
	dateCache  []*Entity

	lastFingerprint string
	unchangedCount  int
	needsRegrouping bool
	needsInit       bool

	freshStore bool
	freshTotal bool
	freshLabel bool
	freshDate  bool
}

// NewOptimizer builds an optimizer with the given tuning. A nil logger
// disables logging.
func NewOptimizer(tuning Tuning, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	tuning = tuning.Normalize()
	o := &Optimizer{tuning: tuning, logger: logger}
	o.remover = NewOutlierRemover(tuning, logger)
	o.reset()
	return o
}

// Init flags the optimizer to rebuild its state before the next frame.
func (o *Optimizer) Init() {
	o.needsInit = true
}

// Close drops all accumulated state. A closed optimizer behaves exactly
// like a fresh instance on the next frame.
func (o *Optimizer) Close() {
	o.reset()
}

func (o *Optimizer) reset() {
	o.groups = nil
	o.order = newOrderTracker(o.tuning.EWMAAlpha, o.tuning.AboveCountDecayThreshold)
	o.thresholder = NewThresholder(o.tuning.ConfidenceThreshold, o.tuning.SumConfirmationThreshold)
	o.storeCache = nil
	o.totalCache = nil
	o.labelCache = nil
	o.dateCache = nil
	o.lastFingerprint = ""
	o.unchangedCount = 0
	o.needsRegrouping = false
	o.needsInit = false
	o.freshStore, o.freshTotal, o.freshLabel, o.freshDate = false, false, false, false
}

// UnchangedCount exposes how many consecutive identical frames were seen.
func (o *Optimizer) UnchangedCount() int { return o.unchangedCount }

// Groups exposes the working set, newest assignment order. The slice is
// shared; callers must not mutate it.
func (o *Optimizer) Groups() []*Group { return o.groups }

// Optimize folds one frame's receipt into the working set and returns the
// merged receipt. The input receipt's positions may be mutated (group
// back-links and operations).
func (o *Optimizer) Optimize(r *Receipt, opts *Options) *Receipt {
	return o.optimize(r, opts, false)
}

// OptimizeTest behaves like Optimize but marks every group touched by this
// frame as a test group, which the merge step includes regardless of
// stability.
func (o *Optimizer) OptimizeTest(r *Receipt, opts *Options) *Receipt {
	return o.optimize(r, opts, true)
}

func (o *Optimizer) optimize(r *Receipt, opts *Options, test bool) *Receipt {
	if r == nil {
		return nil
	}
	if o.needsInit {
		o.reset()
	}
	o.freshStore, o.freshTotal, o.freshLabel, o.freshDate = false, false, false, false

	fp := Fingerprint(r)
	if fp == o.lastFingerprint {
		o.unchangedCount++
		if o.unchangedCount >= o.tuning.LoopThreshold {
			// Converged for good; stop reshuffling and hand the frame back.
			return r
		}
		if o.unchangedCount >= o.tuning.LoopThreshold/2 {
			o.needsRegrouping = true
		}
	} else {
		o.unchangedCount = 0
		o.lastFingerprint = fp
	}

	o.updateHeaderCaches(r)
	o.cleanupGroups(r.Timestamp)
	o.resetOperations()
	o.assignPositions(r.Positions, test)

	if o.needsRegrouping {
		o.regroup(test)
		o.needsRegrouping = false
	}

	o.learnOrder(r.Positions)

	merged := o.buildMerged(r, test)

	if merged.Total != nil {
		o.remover.BeamReconcile(merged, opts)
		sumMatched := math.Abs(merged.CalculatedTotal()-merged.Total.Number) <= o.tuning.TotalTolerance
		o.thresholder.Feedback(sumMatched)
	}

	if r.IsValid() && !merged.IsValid() {
		return r
	}
	return merged
}

// Fingerprint renders a receipt into the deterministic convergence key:
// every position as normalized-product:price, plus the total.
func Fingerprint(r *Receipt) string {
	var b strings.Builder
	for _, p := range r.Positions {
		if p.Product != nil {
			b.WriteString(p.Product.NormalizedText)
		}
		b.WriteByte(':')
		if p.Price != nil {
			b.WriteString(FormatAmount(p.Price.Value))
		}
		b.WriteByte(';')
	}
	b.WriteByte('|')
	if total, ok := r.TotalValue(); ok {
		b.WriteString(FormatAmount(total))
	}
	return b.String()
}

// updateHeaderCaches appends this frame's header observations and trims
// the FIFO windows.
func (o *Optimizer) updateHeaderCaches(r *Receipt) {
	push := func(cache []*Entity, e *Entity) []*Entity {
		cache = append(cache, e)
		if len(cache) > o.tuning.CacheSize {
			cache = cache[len(cache)-o.tuning.CacheSize:]
		}
		return cache
	}
	if r.Store != nil {
		o.storeCache = push(o.storeCache, r.Store)
		o.freshStore = true
	}
	if r.Total != nil {
		o.totalCache = push(o.totalCache, r.Total)
		o.freshTotal = true
	}
	if r.TotalLabel != nil {
		o.labelCache = push(o.labelCache, r.TotalLabel)
		o.freshLabel = true
	}
	if r.PurchaseDate != nil {
		o.dateCache = push(o.dateCache, r.PurchaseDate)
		o.freshDate = true
	}
}

// resolveHeader picks the majority observation over the cache window,
// preferring the current frame's observation on ties.
func resolveHeader(cache []*Entity, key func(*Entity) string, current *Entity) *Entity {
	if len(cache) == 0 {
		return nil
	}
	counts := map[string]int{}
	last := map[string]*Entity{}
	for _, e := range cache {
		k := key(e)
		counts[k]++
		last[k] = e
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	bestCount := 0
	var bestKey string
	for _, k := range keys {
		if counts[k] > bestCount {
			bestCount = counts[k]
			bestKey = k
		}
	}
	if current != nil && counts[key(current)] == bestCount {
		return current
	}
	return last[bestKey]
}

// cleanupGroups drops empty groups, early outliers and groups that have
// not been seen within the invalidation interval.
func (o *Optimizer) cleanupGroups(now time.Time) {
	threshold := o.tuning.ConfidenceThreshold
	kept := o.groups[:0]
	for _, g := range o.groups {
		if g.Len() == 0 {
			o.order.Remove(g)
			continue
		}
		age := now.Sub(g.FirstTimestamp())
		idle := now.Sub(g.Timestamp())
		earlyOutlier := age > earlyOutlierAge &&
			g.Stability() < o.tuning.StabilityThreshold/2 &&
			g.Confidence() < threshold/2 &&
			g.Len() <= 2
		if earlyOutlier || idle > o.tuning.InvalidateInterval {
			o.detach(g)
			continue
		}
		kept = append(kept, g)
	}
	o.groups = kept
}

func (o *Optimizer) detach(g *Group) {
	for _, m := range g.Members() {
		if m.Group() == g {
			m.SetGroup(nil)
		}
	}
	o.order.Remove(g)
}

func (o *Optimizer) resetOperations() {
	for _, g := range o.groups {
		for _, m := range g.Members() {
			m.Operation = OpNone
		}
	}
}

// assignPositions routes every input position to its best-matching group,
// or opens a new one.
func (o *Optimizer) assignPositions(positions []*Position, test bool) {
	for _, pos := range positions {
		best := o.bestGroup(pos)
		if best == nil {
			best = NewGroup(o.tuning)
			best.Test = test
			o.groups = append(o.groups, best)
			pos.Operation = OpAdded
		} else {
			pos.Operation = OpUpdated
			if test {
				best.Test = true
			}
		}
		best.Add(pos)
		if len(o.groups) > o.tuning.CacheSize {
			o.evictOldestGroup()
		}
	}
}

// bestGroup scores the position against every group: fuzzy product
// similarity combined with formatted-price equality, weighted per tuning.
// Groups already fed by this frame are not candidates.
func (o *Optimizer) bestGroup(pos *Position) *Group {
	threshold := o.thresholder.Value()
	var best *Group
	bestScore := -1
	for _, g := range o.groups {
		if g.HasTimestamp(pos.Timestamp) {
			continue
		}
		productConf := g.CalculateProductConfidence(pos.Product)
		priceConf := g.CalculatePriceConfidence(pos.Price)
		combined := CombineConfidences(productConf, priceConf)
		if combined == nil || combined.Value < threshold {
			continue
		}
		if combined.Value > bestScore {
			bestScore = combined.Value
			best = g
		}
	}
	return best
}

func (o *Optimizer) evictOldestGroup() {
	if len(o.groups) == 0 {
		return
	}
	oldest := 0
	for i, g := range o.groups {
		if g.Timestamp().Before(o.groups[oldest].Timestamp()) {
			oldest = i
		}
	}
	g := o.groups[oldest]
	o.groups = append(o.groups[:oldest], o.groups[oldest+1:]...)
	o.detach(g)
}

// regroup rebuilds the whole working set by re-assigning every member.
func (o *Optimizer) regroup(test bool) {
	var members []*Position
	for _, g := range o.groups {
		for _, m := range g.Members() {
			m.SetGroup(nil)
			members = append(members, m)
		}
		o.order.Remove(g)
	}
	o.groups = nil
	o.logger.Debug("forced regroup", zap.Int("members", len(members)))
	sort.SliceStable(members, func(i, j int) bool {
		return members[i].Timestamp.Before(members[j].Timestamp)
	})
	o.assignPositions(members, test)
}

// learnOrder feeds this frame's (group, y) pairs into the order tracker.
func (o *Optimizer) learnOrder(positions []*Position) {
	var obs []orderObservation
	for _, pos := range positions {
		g := pos.Group()
		if g == nil || pos.Product == nil {
			continue
		}
		obs = append(obs, orderObservation{
			group: g,
			y:     pos.Product.Line.BBox.CenterY(),
			ts:    pos.Timestamp,
		})
	}
	if len(obs) > 0 {
		o.order.Observe(obs)
	}
}

// buildMerged assembles the output receipt from the stable groups and the
// resolved header fields.
func (o *Optimizer) buildMerged(r *Receipt, test bool) *Receipt {
	merged := NewReceipt(r.Timestamp)

	stable := make([]*Group, 0, len(o.groups))
	minStability := o.tuning.StabilityThreshold / 2
	minMembers := o.tuning.CacheSize / 2
	for _, g := range o.groups {
		if g.Test || (g.Stability() >= minStability && g.Len() >= minMembers) {
			stable = append(stable, g)
		}
	}
	sort.SliceStable(stable, func(i, j int) bool { return o.order.Less(stable[i], stable[j]) })

	for _, g := range stable {
		best := g.BestMember()
		if best == nil {
			continue
		}
		latest := g.LatestMember()

		product := &Product{
			Line:             latest.Product.Line,
			Text:             g.RepresentativeText(),
			Confidence:       best.Product.Confidence,
			AlternativeTexts: best.Product.AlternativeTexts,
		}
		product.NormalizedText = NormalizeText(product.Text)
		price := &Price{
			Line:       latest.Price.Line,
			Value:      best.Price.Value,
			Confidence: best.Price.Confidence,
		}
		out := NewPosition(product, price, latest.Timestamp)
		out.Unit = best.Unit
		out.Operation = best.Operation
		out.SetGroup(g)
		merged.Positions = append(merged.Positions, out)
	}

	merged.Store = resolveHeader(o.storeCache, func(e *Entity) string { return e.Text }, r.Store)
	merged.TotalLabel = resolveHeader(o.labelCache, func(e *Entity) string { return e.Text }, r.TotalLabel)
	merged.Total = resolveHeader(o.totalCache, func(e *Entity) string { return FormatAmount(e.Number) }, r.Total)
	merged.PurchaseDate = resolveHeader(o.dateCache, func(e *Entity) string { return e.Date.Format("2006-01-02") }, r.PurchaseDate)
	merged.Bounds = r.Bounds
	return merged
}
