package recognition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiptWithTotal(total float64, prices ...float64) *Receipt {
	r := NewReceipt(frameTS)
	for i, v := range prices {
		p := position("Artikel", v, frameTS)
		p.Product.Text = p.Product.Text + " " + FormatAmount(v)
		p.Product.NormalizedText = NormalizeText(p.Product.Text)
		p.Product.Line.BBox.Top = float64(i * 10)
		r.Positions = append(r.Positions, p)
	}
	r.Total = NewTotal(line(FormatAmount(total), 160, 100, 200, 110), total)
	return r
}

func TestReconcileRemovesMatchingPair(t *testing.T) {
	r := receiptWithTotal(5.00, 2.00, 3.00, 0.50, 1.00)
	NewOutlierRemover(DefaultTuning(), nil).Reconcile(r, DefaultOptions())

	require.Len(t, r.Positions, 2)
	assert.InDelta(t, 2.00, r.Positions[0].Price.Value, 1e-9)
	assert.InDelta(t, 3.00, r.Positions[1].Price.Value, 1e-9)
	assert.True(t, r.IsValid())
}

func TestReconcileNoopWithoutTotal(t *testing.T) {
	r := receiptWithTotal(0, 2.00, 3.00)
	r.Total = nil
	NewOutlierRemover(DefaultTuning(), nil).Reconcile(r, DefaultOptions())
	assert.Len(t, r.Positions, 2)
}

func TestReconcileNoopForSinglePosition(t *testing.T) {
	r := receiptWithTotal(5.00, 2.00)
	NewOutlierRemover(DefaultTuning(), nil).Reconcile(r, DefaultOptions())
	assert.Len(t, r.Positions, 1)
}

func TestReconcileNoopWhenAlreadyBalanced(t *testing.T) {
	r := receiptWithTotal(5.00, 2.00, 3.00)
	NewOutlierRemover(DefaultTuning(), nil).Reconcile(r, DefaultOptions())
	assert.Len(t, r.Positions, 2)
}

func TestReconcileInfeasibleGapLeavesReceipt(t *testing.T) {
	// The gap is larger than every removable combination.
	r := receiptWithTotal(1.00, 2.00, 3.00)
	NewOutlierRemover(DefaultTuning(), nil).Reconcile(r, DefaultOptions())
	assert.Len(t, r.Positions, 2)
}

func TestReconcileSkipsHighConfidencePositions(t *testing.T) {
	r := receiptWithTotal(5.00, 2.00, 3.00, 0.50, 1.00)
	for _, p := range r.Positions {
		p.Product.Confidence = NewConfidence(95, 2)
		p.Price.Confidence = NewConfidence(95, 1)
		p.Product.AlternativeTexts = []string{"a", "b", "c"}
	}
	NewOutlierRemover(DefaultTuning(), nil).Reconcile(r, DefaultOptions())
	assert.Len(t, r.Positions, 4)
}

func TestReconcileSingleCandidate(t *testing.T) {
	r := receiptWithTotal(5.00, 2.00, 3.00, 1.50)
	NewOutlierRemover(DefaultTuning(), nil).Reconcile(r, DefaultOptions())

	require.Len(t, r.Positions, 2)
	assert.True(t, r.IsValid())
}

func TestReconcilePrefersSuspectLabelRows(t *testing.T) {
	// Two candidates close the 1.50 gap on their own; the one reading like
	// a total label must go first.
	r := receiptWithTotal(5.00, 2.00, 3.00, 1.50)
	extra := position("Summe", 1.50, frameTS)
	r.Positions = append(r.Positions, extra)
	r.Total = NewTotal(line("6.50", 160, 100, 200, 110), 6.50)

	NewOutlierRemover(DefaultTuning(), nil).Reconcile(r, DefaultOptions())
	require.Len(t, r.Positions, 3)
	for _, p := range r.Positions {
		assert.NotEqual(t, "Summe", p.Product.Text)
	}
}

func TestReconcileDeletionGate(t *testing.T) {
	remover := NewOutlierRemover(DefaultTuning(), nil)
	assert.Equal(t, 0, remover.allowedDeletions(1))
	assert.Equal(t, 1, remover.allowedDeletions(2))
	assert.Equal(t, 1, remover.allowedDeletions(3))
	assert.Equal(t, 2, remover.allowedDeletions(4))
	assert.Equal(t, 3, remover.allowedDeletions(10))
}

func TestBeamReconcileDropsOutlier(t *testing.T) {
	r := receiptWithTotal(5.00, 2.00, 3.00, 0.75)
	NewOutlierRemover(DefaultTuning(), nil).BeamReconcile(r, DefaultOptions())

	require.Len(t, r.Positions, 2)
	assert.True(t, r.IsValid())
}

func TestGreedySwapUsesGroupHistory(t *testing.T) {
	tuning := DefaultTuning()
	g := NewGroup(tuning)
	good := position("Milch", 1.99, frameTS)
	bad := position("Milch", 7.99, frameTS.Add(time.Second))
	g.Add(good)
	g.Add(bad)

	r := NewReceipt(frameTS.Add(time.Second))
	r.Positions = []*Position{bad}
	other := position("Brot", 2.49, frameTS.Add(time.Second))
	r.Positions = append(r.Positions, other)
	r.Total = NewTotal(line("4.48", 160, 100, 200, 110), 4.48)

	// Gap is negative-free but no removable subset matches; the swap path
	// replaces the misread 7.99 with the group's 1.99.
	NewOutlierRemover(tuning, nil).BeamReconcile(r, DefaultOptions())
	assert.True(t, r.IsValid())
	assert.InDelta(t, 1.99, r.Positions[0].Price.Value, 1e-9)
}
