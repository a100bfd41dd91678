package recognition

import (
	"math"
	"time"
)

// TotalTolerance is the absolute tolerance for total equality, in currency
// units.
const TotalTolerance = 0.01

// Confidence is a 0-100 score with an integer weight used for weighted
// averaging across sources.
type Confidence struct {
	Value  int `json:"value"`
	Weight int `json:"weight"`
}

// NewConfidence clamps value into [0,100] and weight to at least 1.
func NewConfidence(value, weight int) *Confidence {
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	if weight < 1 {
		weight = 1
	}
	return &Confidence{Value: value, Weight: weight}
}

// CombineConfidences returns the weighted average of the given confidences,
// skipping nils. Returns nil when nothing contributes.
func CombineConfidences(cs ...*Confidence) *Confidence {
	sum, weight := 0, 0
	for _, c := range cs {
		if c == nil {
			continue
		}
		sum += c.Value * c.Weight
		weight += c.Weight
	}
	if weight == 0 {
		return nil
	}
	return NewConfidence(int(math.Round(float64(sum)/float64(weight))), weight)
}

// Product is the textual half of a line item.
type Product struct {
	Line             TextLine    `json:"line"`
	Text             string      `json:"text"`
	NormalizedText   string      `json:"normalized_text"`
	Confidence       *Confidence `json:"confidence,omitempty"`
	AlternativeTexts []string    `json:"alternative_texts,omitempty"`
}

// Price is the numeric half of a line item. Value is signed; discounts are
// negative.
type Price struct {
	Line       TextLine    `json:"line"`
	Value      float64     `json:"value"`
	Confidence *Confidence `json:"confidence,omitempty"`
}

// Unit carries the auxiliary quantity/unit-price detail of a line item.
// It is only constructed when quantity*price reconciles with the position
// price within tolerance.
type Unit struct {
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Operation records what the optimizer did with a position this frame.
type Operation int

const (
	OpNone Operation = iota
	OpAdded
	OpUpdated
)

// Position is one receipt line item: exactly one product and one price,
// an optional unit, the frame ingest time, and a lookup reference to the
// group that owns its cross-frame history. The group reference is never
// ownership.
type Position struct {
	Product   *Product  `json:"product"`
	Price     *Price    `json:"price"`
	Unit      *Unit     `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Operation Operation `json:"-"`

	group *Group
}

// NewPosition builds a position from its product and price halves.
func NewPosition(product *Product, price *Price, ts time.Time) *Position {
	return &Position{Product: product, Price: price, Timestamp: ts}
}

// Group returns the group this position belongs to, nil when unassigned.
func (p *Position) Group() *Group { return p.group }

// SetGroup updates the back-reference to the owning group.
func (p *Position) SetGroup(g *Group) { p.group = g }

// Confidence is the weighted average of product and price confidence.
func (p *Position) Confidence() *Confidence {
	var pc, rc *Confidence
	if p.Product != nil {
		pc = p.Product.Confidence
	}
	if p.Price != nil {
		rc = p.Price.Confidence
	}
	return CombineConfidences(pc, rc)
}

// ConfidenceValue returns the combined confidence value, 0 when unscored.
func (p *Position) ConfidenceValue() int {
	if c := p.Confidence(); c != nil {
		return c.Value
	}
	return 0
}

// PriceCents returns the price in integer cents.
func (p *Position) PriceCents() int64 {
	if p.Price == nil {
		return 0
	}
	return Cents(p.Price.Value)
}

// Cents converts a currency value to integer cents.
func Cents(v float64) int64 {
	return int64(math.Round(v * 100))
}

// Receipt is a frame's parsed structure, or the optimizer's fused output.
// Header fields are nil when not recognized.
type Receipt struct {
	Positions    []*Position `json:"positions"`
	Store        *Entity     `json:"store,omitempty"`
	TotalLabel   *Entity     `json:"total_label,omitempty"`
	Total        *Entity     `json:"total,omitempty"`
	PurchaseDate *Entity     `json:"purchase_date,omitempty"`
	Bounds       *Entity     `json:"bounds,omitempty"`
	Entities     []*Entity   `json:"-"`
	Timestamp    time.Time   `json:"timestamp"`
}

// NewReceipt returns an empty receipt stamped with the given ingest time.
func NewReceipt(ts time.Time) *Receipt {
	return &Receipt{Timestamp: ts}
}

// CalculatedTotal is the sum of all position prices.
func (r *Receipt) CalculatedTotal() float64 {
	var cents int64
	for _, p := range r.Positions {
		cents += p.PriceCents()
	}
	return float64(cents) / 100
}

// IsValid reports whether a total was recognized and the position sum
// matches it within tolerance.
func (r *Receipt) IsValid() bool {
	if r.Total == nil {
		return false
	}
	return math.Abs(r.CalculatedTotal()-r.Total.Number) <= TotalTolerance
}

// IsEmpty reports whether nothing at all was recognized.
func (r *Receipt) IsEmpty() bool {
	return len(r.Positions) == 0 && r.Total == nil
}

// StoreName returns the canonical store name, empty when unrecognized.
func (r *Receipt) StoreName() string {
	if r.Store == nil {
		return ""
	}
	return r.Store.Text
}

// TotalValue returns the recognized total and whether one exists.
func (r *Receipt) TotalValue() (float64, bool) {
	if r.Total == nil {
		return 0, false
	}
	return r.Total.Number, true
}
