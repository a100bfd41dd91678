package recognition

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"go.uber.org/zap"
)

var (
	amountPattern = regexp.MustCompile(`^-?\s*[€$¥]?\s*\d{1,3}(?:[.,\s]\d{3})*(?:[.,]\d{1,2})?\s*[€$¥]?\s*[A-B*]?$`)
	yenPattern    = regexp.MustCompile(`^[¥\\]?\d{1,3}(?:,\d{3})*円?$`)
	// A leading 4 with a trailing % is the classic mis-read of the yen sign
	// on CJK receipts ("¥702" seen as "4702%").
	misreadYenPattern  = regexp.MustCompile(`^4(\d{2,})%$`)
	inlineCJKPattern   = regexp.MustCompile(`^(.+?)\s*[¥\\]\s*(-?\d[\d,]*)\s*$`)
	inlinePricePattern = regexp.MustCompile(`^(.+?)\s+(-?\d[\d,]*(?:[.,]\d{1,2})?円?)\s*$`)
	unitQtyPattern     = regexp.MustCompile(`(\d+)\s*[xX×]`)
	unitPricePattern   = regexp.MustCompile(`(\d+[.,]\d{1,2})`)
	leadingTextPattern = regexp.MustCompile(`^[^\d]+`)
)

// Parser turns one frame's OCR into a provisional receipt using geometry,
// fuzzy label matching and the regex taxonomies from the options. A
// parser is stateless between calls and safe for concurrent use as long
// as each call gets its own options view.
type Parser struct {
	logger *zap.Logger
}

// NewParser builds a parser. A nil logger disables logging.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// ParseFrame is the package-level convenience wrapper around Parser.
func ParseFrame(rec RecognizedText, opts *Options) *Receipt {
	return NewParser(nil).Process(rec, opts)
}

// Process parses a single frame. The input is never mutated; all failures
// degrade to skipping the offending line. Empty OCR yields an empty
// receipt.
func (p *Parser) Process(rec RecognizedText, opts *Options) *Receipt {
	return p.ProcessAt(rec, opts, time.Now())
}

// ProcessAt parses a frame with an explicit ingest timestamp. Every
// position of the frame shares the timestamp, which the optimizer relies
// on to spot same-frame duplicates.
func (p *Parser) ProcessAt(rec RecognizedText, opts *Options, ts time.Time) *Receipt {
	receipt := NewReceipt(ts)
	lines := rec.Lines()
	if len(lines) == 0 {
		return receipt
	}
	if opts == nil {
		opts = DefaultOptions()
	}

	lines = scanOrder(lines)

	frame := &frameState{
		parser: p,
		opts:   opts,
		ts:     ts,
	}
	frame.detectFrameEntities(lines)
	frame.classify(lines)
	frame.filterEntities()
	frame.assemblePositions()
	frame.bindUnits()

	receipt.Positions = frame.positions
	receipt.Store = frame.store
	receipt.TotalLabel = frame.totalLabel
	receipt.Total = frame.total
	receipt.PurchaseDate = frame.purchaseDate
	receipt.Bounds = frame.bounds
	receipt.Entities = frame.entities
	return receipt
}

// scanOrder sorts lines for scanning: first by (top, left), then by line
// center so drifting rows keep a stable reading order. Ties break on x.
func scanOrder(lines []TextLine) []TextLine {
	sorted := append([]TextLine(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].BBox.Top != sorted[j].BBox.Top {
			return sorted[i].BBox.Top < sorted[j].BBox.Top
		}
		return sorted[i].BBox.Left < sorted[j].BBox.Left
	})
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].BBox.CenterY() != sorted[j].BBox.CenterY() {
			return sorted[i].BBox.CenterY() < sorted[j].BBox.CenterY()
		}
		return sorted[i].BBox.CenterX() < sorted[j].BBox.CenterX()
	})
	return sorted
}

// frameState carries the per-call parser workspace.
type frameState struct {
	parser *Parser
	opts   *Options
	ts     time.Time

	entities     []*Entity
	store        *Entity
	totalLabel   *Entity
	total        *Entity
	purchaseDate *Entity
	bounds       *Entity

	positions []*Position

	left, right, diff       float64
	rightBound, centerBound float64
	hasCJK                  bool
	dateLineText            string
	seenAmount              bool
}

// detectFrameEntities finds the frame-wide purchase date and bounds and
// sets up the column reference frame.
func (f *frameState) detectFrameEntities(lines []TextLine) {
	bounds := lines[0].BBox
	for _, l := range lines[1:] {
		bounds = bounds.Union(l.BBox)
	}
	f.bounds = NewBounds(bounds)
	f.entities = append(f.entities, f.bounds)

	for _, l := range lines {
		if f.purchaseDate == nil {
			if d, ok := ParseDate(l.Text); ok {
				f.purchaseDate = NewPurchaseDate(l, d)
				f.dateLineText = l.Text
				f.entities = append(f.entities, f.purchaseDate)
			}
		}
		if !f.hasCJK && ContainsCJK(l.Text) {
			f.hasCJK = true
		}
	}

	f.left = bounds.Left
	f.right = bounds.Right
	f.diff = f.right - f.left
	f.rightBound = f.left + 0.75*f.diff
	f.centerBound = f.left + 0.5*f.diff
}

// classify runs the per-line classification loop in scan order,
// short-circuiting on the first matching rule per line.
func (f *frameState) classify(lines []TextLine) {
	for _, line := range lines {
		if f.totalLabel != nil {
			f.reassignTotal()
		}
		if f.sumConfirmed() {
			break
		}

		text := strings.TrimSpace(line.Text)
		if text == "" {
			continue
		}
		if f.opts.MatchesStop(text) {
			break
		}
		if f.opts.MatchesIgnore(text) {
			continue
		}
		if f.purchaseDate != nil && line.Text == f.dateLineText {
			continue
		}

		if f.detectTotalLabel(line, text) {
			continue
		}
		if f.detectStore(line, text) {
			continue
		}
		if f.hasCJK && f.splitInlinePrice(line, text) {
			continue
		}
		if f.detectAmount(line, text) {
			continue
		}
		if f.detectUnit(line, text) {
			continue
		}
		f.detectUnknown(line, text)
	}
	if f.totalLabel != nil {
		f.reassignTotal()
	}
}

// reassignTotal promotes the amount geometrically closest below the total
// label to the Total slot, demoting any earlier pick back to Amount. The
// score prefers amounts sharing the label's row via vertical overlap.
func (f *frameState) reassignTotal() {
	label := f.totalLabel
	var best *Entity
	bestScore := math.MaxFloat64
	for _, e := range f.entities {
		if e.Kind != KindAmount && e.Kind != KindTotal {
			continue
		}
		if e.Line.BBox.CenterY() < label.Line.BBox.Top {
			continue
		}
		score := math.Abs(e.Line.BBox.CenterY()-label.Line.BBox.CenterY()) -
			e.Line.BBox.VerticalOverlap(label.Line.BBox)
		if score < bestScore {
			bestScore = score
			best = e
		}
	}
	if best == nil || best == f.total {
		return
	}
	if f.total != nil {
		f.total.Kind = KindAmount
	}
	best.Kind = KindTotal
	f.total = best
}

// sumConfirmed reports whether the recognized amounts already add up to
// the recognized total, compared over formatted strings.
func (f *frameState) sumConfirmed() bool {
	if f.totalLabel == nil || f.total == nil {
		return false
	}
	var cents int64
	for _, e := range f.entities {
		if e.Kind == KindAmount {
			cents += Cents(e.Number)
		}
	}
	return FormatAmount(float64(cents)/100) == FormatAmount(f.total.Number)
}

// labelThreshold is the adaptive fuzzy acceptance threshold for a label
// key of length l.
func labelThreshold(l int) int {
	k := 4
	switch {
	case l <= 5:
		k = 1
	case l <= 10:
		k = 2
	case l <= 20:
		k = 3
	}
	v := int(math.Round(100*(1-float64(k)/float64(l)))) - 2
	if v < 75 {
		return 75
	}
	if v > 98 {
		return 98
	}
	return v
}

// labelScore is the similarity of a normalized line against a label key.
func labelScore(norm, key string) int {
	partial := fuzzy.PartialRatio(norm, key)
	tokenSet := fuzzy.TokenSetRatio(norm, key)
	if tokenSet > partial {
		return tokenSet
	}
	return partial
}

// detectTotalLabel matches the line against the configured total labels,
// geometry first: the label must sit in the left product column.
func (f *frameState) detectTotalLabel(line TextLine, text string) bool {
	if line.BBox.Right > f.rightBound {
		return false
	}
	norm := normalizeLabelKey(text)
	if norm == "" {
		return false
	}

	var bestKey string
	bestScore := -1
	for _, key := range f.opts.LabelKeys() {
		if strings.HasPrefix(norm, key) && len(norm) <= 2*len(key) {
			bestKey = key
			bestScore = 100
			break
		}
		score := labelScore(norm, key)
		if score >= labelThreshold(len([]rune(key))) && score > bestScore {
			bestKey = key
			bestScore = score
		}
	}
	if bestKey == "" {
		return false
	}
	canonical, ok := f.opts.CanonicalLabel(bestKey)
	if !ok {
		return false
	}
	if f.totalLabel != nil {
		f.removeEntity(f.totalLabel)
	}
	f.totalLabel = NewTotalLabel(line, canonical)
	f.entities = append(f.entities, f.totalLabel)
	return true
}

// detectStore resolves the line against the store dictionary. Stores only
// appear in the header, so nothing matches once an amount was seen.
func (f *frameState) detectStore(line TextLine, text string) bool {
	if f.store != nil || f.seenAmount {
		return false
	}
	canonical, ok := f.opts.LookupStore(text)
	if !ok {
		return false
	}
	f.store = NewStore(line, canonical)
	f.entities = append(f.entities, f.store)
	return true
}

// splitInlinePrice handles CJK receipts that print product and price on a
// single line ("TTOもちチーズ ¥702"): the line splits into an Unknown and
// an Amount with proportionally divided boxes.
func (f *frameState) splitInlinePrice(line TextLine, text string) bool {
	folded := FoldWidth(text)
	m := inlineCJKPattern.FindStringSubmatch(folded)
	if m == nil {
		if m = inlinePricePattern.FindStringSubmatch(folded); m == nil {
			return false
		}
		if !ContainsCJK(m[1]) {
			return false
		}
	}
	name := strings.TrimSpace(m[1])
	if name == "" || DigitRatio(name) >= 0.5 {
		return false
	}
	value, ok := ParseAmount(m[2])
	if !ok {
		return false
	}

	split := line.BBox.Left + line.BBox.Width()*float64(len([]rune(m[1])))/float64(len([]rune(folded)))
	nameLine := line
	nameLine.Text = name
	nameLine.BBox.Right = split
	priceLine := line
	priceLine.Text = m[2]
	priceLine.BBox.Left = split

	f.entities = append(f.entities, NewUnknown(nameLine, name))
	f.entities = append(f.entities, NewAmount(priceLine, value))
	f.seenAmount = true
	return true
}

// detectAmount recognizes right-aligned numeric candidates.
func (f *frameState) detectAmount(line TextLine, text string) bool {
	if line.BBox.Right <= f.rightBound {
		return false
	}
	folded := strings.TrimSpace(FoldWidth(text))
	if f.hasCJK {
		if m := misreadYenPattern.FindStringSubmatch(folded); m != nil {
			if value, ok := ParseAmount(m[1]); ok {
				f.entities = append(f.entities, NewAmount(line, value))
				f.seenAmount = true
				return true
			}
		}
	}
	if !amountPattern.MatchString(folded) && !yenPattern.MatchString(folded) {
		return false
	}
	value, ok := ParseAmount(strings.TrimRight(folded, "AB* "))
	if !ok {
		return false
	}
	f.entities = append(f.entities, NewAmount(line, value))
	f.seenAmount = true
	return true
}

// detectUnit recognizes "N x price" rows on the left side, emitting unit
// quantity/price entities plus the leading text fragment as an Unknown
// candidate for the same row.
func (f *frameState) detectUnit(line TextLine, text string) bool {
	if line.BBox.Right > f.rightBound {
		return false
	}
	folded := FoldWidth(text)
	qtyMatch := unitQtyPattern.FindStringSubmatch(folded)
	priceMatch := unitPricePattern.FindStringSubmatch(folded)
	if qtyMatch == nil && priceMatch == nil {
		return false
	}
	if qtyMatch == nil && priceMatch != nil && DigitRatio(folded) < 0.3 {
		// A lone decimal inside mostly-text is not a unit row.
		return false
	}

	matched := false
	if qtyMatch != nil {
		if qty := atoi(qtyMatch[1]); qty >= 1 {
			f.entities = append(f.entities, NewUnitQuantity(line, qty))
			matched = true
		}
	}
	if priceMatch != nil {
		if value, ok := ParseAmount(priceMatch[1]); ok {
			f.entities = append(f.entities, NewUnitPrice(line, value))
			matched = true
		}
	}
	if !matched {
		return false
	}
	if prefix := strings.TrimSpace(leadingTextPattern.FindString(folded)); len([]rune(prefix)) >= 2 {
		f.entities = append(f.entities, NewUnknown(line, prefix))
	}
	return true
}

// detectUnknown records left-column text candidates that are not
// dominantly numeric.
func (f *frameState) detectUnknown(line TextLine, text string) {
	if line.BBox.CenterX() >= f.centerBound {
		return
	}
	if DigitRatio(text) >= 0.5 {
		return
	}
	f.entities = append(f.entities, NewUnknown(line, text))
}

func (f *frameState) removeEntity(e *Entity) {
	for i, other := range f.entities {
		if other == e {
			f.entities = append(f.entities[:i], f.entities[i+1:]...)
			return
		}
	}
}

// filterEntities prunes middle-column artifacts, everything below the
// total pair, and demotes orphan total labels/totals.
func (f *frameState) filterEntities() {
	var leftmostUnknown, rightmostAmount *Entity
	for _, e := range f.entities {
		switch e.Kind {
		case KindUnknown:
			if leftmostUnknown == nil || e.Line.BBox.Left < leftmostUnknown.Line.BBox.Left {
				leftmostUnknown = e
			}
		case KindAmount:
			if rightmostAmount == nil || e.Line.BBox.Right > rightmostAmount.Line.BBox.Right {
				rightmostAmount = e
			}
		}
	}

	keep := f.entities[:0]
	for _, e := range f.entities {
		if f.dropEntity(e, leftmostUnknown, rightmostAmount) {
			continue
		}
		keep = append(keep, e)
	}
	f.entities = keep

	// Orphans: a label without a total, or a total without a label, is
	// demoted rather than trusted.
	if f.totalLabel != nil && f.total == nil {
		f.totalLabel.Kind = KindUnknown
		f.totalLabel.Text = f.totalLabel.Line.Text
		f.totalLabel = nil
	}
	if f.total != nil && f.totalLabel == nil {
		f.total.Kind = KindAmount
		f.total = nil
	}
}

func (f *frameState) dropEntity(e *Entity, leftmostUnknown, rightmostAmount *Entity) bool {
	switch e.Kind {
	case KindUnknown, KindAmount:
	default:
		return false
	}

	// Middle-column artifact: strictly between the product and amount
	// columns while sharing a row with either edge entity.
	if leftmostUnknown != nil && rightmostAmount != nil &&
		e != leftmostUnknown && e != rightmostAmount &&
		e.Line.BBox.Left > leftmostUnknown.Line.BBox.Right &&
		e.Line.BBox.Right < rightmostAmount.Line.BBox.Left &&
		(e.Line.BBox.VerticalOverlap(leftmostUnknown.Line.BBox) > 0 ||
			e.Line.BBox.VerticalOverlap(rightmostAmount.Line.BBox) > 0) {
		return true
	}

	// Footer noise: nothing meaningful sits below both the label and the
	// total.
	if f.totalLabel != nil && f.total != nil &&
		e.Line.BBox.Top > f.totalLabel.Line.BBox.Bottom &&
		e.Line.BBox.Top > f.total.Line.BBox.Bottom {
		return true
	}
	return false
}

// labelLike reports whether a product candidate actually reads like a
// configured total label.
func (f *frameState) labelLike(text string) bool {
	norm := normalizeLabelKey(text)
	if norm == "" {
		return false
	}
	for _, key := range f.opts.LabelKeys() {
		if strings.HasPrefix(norm, key) && len(norm) <= 2*len(key) {
			return true
		}
		if labelScore(norm, key) >= labelThreshold(len([]rune(key))) {
			return true
		}
	}
	return false
}

// assemblePositions pairs each amount with its mutual-nearest unknown to
// the left, strict geometry first and a relaxed retry without the
// vertical-alignment requirement.
func (f *frameState) assemblePositions() {
	consumed := map[*Entity]bool{}
	var unknowns, amounts []*Entity
	for _, e := range f.entities {
		switch e.Kind {
		case KindUnknown:
			unknowns = append(unknowns, e)
		case KindAmount:
			amounts = append(amounts, e)
		}
	}

	for _, amount := range amounts {
		unknown := f.matchUnknown(amount, unknowns, consumed, true)
		if unknown == nil {
			unknown = f.matchUnknown(amount, unknowns, consumed, false)
		}
		if unknown == nil {
			continue
		}
		consumed[unknown] = true

		product := &Product{
			Line:           unknown.Line,
			Text:           strings.TrimSpace(unknown.Text),
			NormalizedText: NormalizeText(unknown.Text),
		}
		price := &Price{Line: amount.Line, Value: amount.Number}
		f.positions = append(f.positions, NewPosition(product, price, f.ts))
	}
}

// matchUnknown finds the nearest unconsumed unknown left of the amount
// that mutually prefers this amount.
func (f *frameState) matchUnknown(amount *Entity, unknowns []*Entity, consumed map[*Entity]bool, strict bool) *Entity {
	best := f.nearestUnknown(amount, unknowns, consumed, strict)
	if best == nil {
		return nil
	}
	// Cross-check: the unknown's own nearest amount must be this amount.
	if back := f.nearestAmount(best, strict); back != nil && back != amount {
		return nil
	}
	return best
}

func (f *frameState) nearestUnknown(amount *Entity, unknowns []*Entity, consumed map[*Entity]bool, strict bool) *Entity {
	lineHeight := amount.Line.BBox.Height()
	var best *Entity
	bestScore := math.MaxFloat64
	for _, u := range unknowns {
		if consumed[u] || f.labelLike(u.Text) {
			continue
		}
		if u.Line.BBox.Right > amount.Line.BBox.Left {
			continue
		}
		dy := math.Abs(u.Line.BBox.CenterY() - amount.Line.BBox.CenterY())
		if strict && dy > lineHeight {
			continue
		}
		dx := amount.Line.BBox.Left - u.Line.BBox.Right
		score := dy*10 + dx
		if score < bestScore {
			bestScore = score
			best = u
		}
	}
	return best
}

func (f *frameState) nearestAmount(unknown *Entity, strict bool) *Entity {
	var best *Entity
	bestScore := math.MaxFloat64
	for _, e := range f.entities {
		if e.Kind != KindAmount {
			continue
		}
		if unknown.Line.BBox.Right > e.Line.BBox.Left {
			continue
		}
		dy := math.Abs(unknown.Line.BBox.CenterY() - e.Line.BBox.CenterY())
		if strict && dy > e.Line.BBox.Height() {
			continue
		}
		dx := e.Line.BBox.Left - unknown.Line.BBox.Right
		score := dy*10 + dx
		if score < bestScore {
			bestScore = score
			best = e
		}
	}
	return best
}

// bindUnits attaches quantity/unit-price detail to positions whose price
// reconciles with quantity*unit price.
func (f *frameState) bindUnits() {
	var unitPrices, unitQtys []*Entity
	for _, e := range f.entities {
		switch e.Kind {
		case KindUnitPrice:
			unitPrices = append(unitPrices, e)
		case KindUnitQuantity:
			unitQtys = append(unitQtys, e)
		}
	}
	if len(unitPrices) == 0 && len(unitQtys) == 0 {
		return
	}

	// Unit rows sit above or below their item depending on the receipt
	// layout; prefer whichever direction dominates this frame.
	preferAbove := f.countDirection(unitPrices, unitQtys)

	for _, pos := range f.positions {
		price := pos.Price.Value
		qtyEnt := nearestEntity(unitQtys, pos.Product.Line.BBox.CenterY(), preferAbove)
		priceEnt := nearestEntity(unitPrices, pos.Product.Line.BBox.CenterY(), preferAbove)

		var qty int
		var unitPrice float64
		if qtyEnt != nil {
			qty = qtyEnt.Count
		}
		if priceEnt != nil {
			unitPrice = priceEnt.Number
		}

		if qty >= 1 && unitPrice != 0 && approxEqual(float64(qty)*unitPrice, price) {
			pos.Unit = &Unit{Quantity: qty, Price: unitPrice}
			continue
		}
		if unitPrice != 0 {
			if derived := int(math.Round(price / unitPrice)); derived >= 1 && approxEqual(float64(derived)*unitPrice, price) {
				pos.Unit = &Unit{Quantity: derived, Price: unitPrice}
				continue
			}
		}
		if qty > 1 {
			if derived := math.Round(price/float64(qty)*100) / 100; approxEqual(float64(qty)*derived, price) {
				pos.Unit = &Unit{Quantity: qty, Price: derived}
			}
		}
	}
}

func (f *frameState) countDirection(unitPrices, unitQtys []*Entity) bool {
	above, below := 0, 0
	for _, pos := range f.positions {
		y := pos.Product.Line.BBox.CenterY()
		for _, e := range append(append([]*Entity(nil), unitPrices...), unitQtys...) {
			if e.Line.BBox.CenterY() < y {
				above++
			} else if e.Line.BBox.CenterY() > y {
				below++
			}
		}
	}
	return above >= below
}

func nearestEntity(entities []*Entity, y float64, preferAbove bool) *Entity {
	var best *Entity
	bestScore := math.MaxFloat64
	for _, e := range entities {
		dy := math.Abs(e.Line.BBox.CenterY() - y)
		above := e.Line.BBox.CenterY() < y
		score := dy
		if above != preferAbove {
			score += 1e6
		}
		if score < bestScore {
			bestScore = score
			best = e
		}
	}
	return best
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= TotalTolerance+1e-9
}
