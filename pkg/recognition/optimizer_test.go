package recognition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleFrame() RecognizedText {
	return frame(
		line("Aldi", 0, 0, 60, 10),
		line("Milch", 0, 50, 60, 60),
		line("1,99", 160, 50, 200, 60),
		line("Summe", 0, 90, 60, 100),
		line("1,99", 160, 90, 200, 100),
	)
}

func TestOptimizeConvergence(t *testing.T) {
	tuning := DefaultTuning()
	tuning.LoopThreshold = 10
	opt := NewOptimizer(tuning, nil)
	opts := DefaultOptions()
	p := NewParser(nil)

	var outputs []*Receipt
	for i := 0; i < 10; i++ {
		r := p.ProcessAt(simpleFrame(), opts, frameTS.Add(time.Duration(i)*100*time.Millisecond))
		outputs = append(outputs, opt.Optimize(r, opts))
	}

	assert.Equal(t, 9, opt.UnchangedCount())
	assert.Equal(t, Fingerprint(outputs[1]), Fingerprint(outputs[9]))
}

func TestOptimizeBailsOutWhenStuck(t *testing.T) {
	tuning := DefaultTuning()
	tuning.LoopThreshold = 4
	opt := NewOptimizer(tuning, nil)
	opts := DefaultOptions()
	p := NewParser(nil)

	var last *Receipt
	var in *Receipt
	for i := 0; i < 6; i++ {
		in = p.ProcessAt(simpleFrame(), opts, frameTS.Add(time.Duration(i)*100*time.Millisecond))
		last = opt.Optimize(in, opts)
	}
	// Past the loop threshold the incoming receipt comes back unchanged.
	assert.Same(t, in, last)
}

func TestOptimizeAfterCloseMatchesFreshInstance(t *testing.T) {
	tuning := DefaultTuning()
	opts := DefaultOptions()
	p := NewParser(nil)

	used := NewOptimizer(tuning, nil)
	for i := 0; i < 3; i++ {
		r := p.ProcessAt(simpleFrame(), opts, frameTS.Add(time.Duration(i)*100*time.Millisecond))
		used.Optimize(r, opts)
	}
	used.Close()

	fresh := NewOptimizer(tuning, nil)

	ra := p.ProcessAt(simpleFrame(), opts, frameTS)
	rb := p.ProcessAt(simpleFrame(), opts, frameTS)
	a := used.Optimize(ra, opts)
	b := fresh.Optimize(rb, opts)

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Equal(t, used.UnchangedCount(), fresh.UnchangedCount())
	assert.Len(t, used.Groups(), len(fresh.Groups()))
}

func TestOptimizeTestModeEmitsUnstableGroups(t *testing.T) {
	opt := NewOptimizer(DefaultTuning(), nil)
	opts := DefaultOptions()
	r := NewParser(nil).ProcessAt(simpleFrame(), opts, frameTS)

	merged := opt.OptimizeTest(r, opts)
	require.Len(t, merged.Positions, 1)
	assert.Equal(t, "Milch", merged.Positions[0].Product.Text)
}

func TestOptimizeResolvesHeadersByMajority(t *testing.T) {
	tuning := DefaultTuning()
	// A small cache lets groups stabilize within a handful of frames.
	tuning.CacheSize = 4
	opt := NewOptimizer(tuning, nil)
	opts := DefaultOptions()
	p := NewParser(nil)

	misread := frame(
		line("Lidl", 0, 0, 60, 10),
		line("Milch", 0, 50, 60, 60),
		line("1,99", 160, 50, 200, 60),
		line("Summe", 0, 90, 60, 100),
		line("1,99", 160, 90, 200, 100),
	)

	var merged *Receipt
	for i := 0; i < 4; i++ {
		merged = opt.Optimize(p.ProcessAt(simpleFrame(), opts, frameTS.Add(time.Duration(i)*time.Second/10)), opts)
	}
	merged = opt.Optimize(p.ProcessAt(misread, opts, frameTS.Add(time.Second)), opts)

	// In the four-entry window, three Aldi observations outvote one Lidl.
	assert.Equal(t, "Aldi", merged.StoreName())
}

func TestOptimizeHeaderTiePrefersCurrentFrame(t *testing.T) {
	tuning := DefaultTuning()
	tuning.CacheSize = 4
	opt := NewOptimizer(tuning, nil)
	opts := DefaultOptions()
	p := NewParser(nil)

	lidl := frame(
		line("Lidl", 0, 0, 60, 10),
		line("Milch", 0, 50, 60, 60),
		line("1,99", 160, 50, 200, 60),
		line("Summe", 0, 90, 60, 100),
		line("1,99", 160, 90, 200, 100),
	)
	opt.Optimize(p.ProcessAt(simpleFrame(), opts, frameTS), opts)
	merged := opt.Optimize(p.ProcessAt(lidl, opts, frameTS.Add(100*time.Millisecond)), opts)

	assert.Equal(t, "Lidl", merged.StoreName())
}

func TestOptimizeAssignsOperations(t *testing.T) {
	opt := NewOptimizer(DefaultTuning(), nil)
	opts := DefaultOptions()
	p := NewParser(nil)

	r1 := p.ProcessAt(simpleFrame(), opts, frameTS)
	opt.Optimize(r1, opts)
	require.Len(t, r1.Positions, 1)
	assert.Equal(t, OpAdded, r1.Positions[0].Operation)

	r2 := p.ProcessAt(simpleFrame(), opts, frameTS.Add(100*time.Millisecond))
	opt.Optimize(r2, opts)
	require.Len(t, r2.Positions, 1)
	assert.Equal(t, OpUpdated, r2.Positions[0].Operation)
	assert.Same(t, r1.Positions[0].Group(), r2.Positions[0].Group())
}

func TestOptimizeFingerprintDeterministic(t *testing.T) {
	opts := DefaultOptions()
	p := NewParser(nil)
	a := p.ProcessAt(simpleFrame(), opts, frameTS)
	b := p.ProcessAt(simpleFrame(), opts, frameTS)
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestOrderComparatorPrefersAboveVotes(t *testing.T) {
	tuning := DefaultTuning()
	a := NewGroup(tuning)
	b := NewGroup(tuning)
	tr := newOrderTracker(tuning.EWMAAlpha, tuning.AboveCountDecayThreshold)

	// Nearly equal learned y, but A was seen above B far more often.
	sa := tr.ensure(a, frameTS)
	sa.orderY = 100
	sa.hasY = true
	sa.aboveCounts[b] = 5
	sb := tr.ensure(b, frameTS.Add(time.Second))
	sb.orderY = 102
	sb.hasY = true
	sb.aboveCounts[a] = 2

	assert.True(t, tr.Less(a, b))
	assert.False(t, tr.Less(b, a))
}

func TestOrderTrackerLearnsVerticalOrder(t *testing.T) {
	tuning := DefaultTuning()
	a := NewGroup(tuning)
	b := NewGroup(tuning)
	tr := newOrderTracker(tuning.EWMAAlpha, tuning.AboveCountDecayThreshold)

	for i := 0; i < 3; i++ {
		ts := frameTS.Add(time.Duration(i) * time.Second)
		tr.Observe([]orderObservation{
			{group: b, y: 200, ts: ts},
			{group: a, y: 50, ts: ts},
		})
	}

	assert.True(t, tr.Less(a, b))
	assert.Equal(t, 3, tr.above(a, b))
	assert.Equal(t, 0, tr.above(b, a))
}

func TestOrderTrackerDecayHalvesCounts(t *testing.T) {
	a := NewGroup(DefaultTuning())
	b := NewGroup(DefaultTuning())
	tr := newOrderTracker(0.3, 4)

	for i := 0; i < 6; i++ {
		ts := frameTS.Add(time.Duration(i) * time.Second)
		tr.Observe([]orderObservation{
			{group: a, y: 50, ts: ts},
			{group: b, y: 200, ts: ts},
		})
	}
	assert.Less(t, tr.above(a, b), 6)
	assert.GreaterOrEqual(t, tr.above(a, b), 1)
}

func TestOrderTrackerRemovePurgesCounters(t *testing.T) {
	a := NewGroup(DefaultTuning())
	b := NewGroup(DefaultTuning())
	tr := newOrderTracker(0.3, 50)
	tr.Observe([]orderObservation{
		{group: a, y: 50, ts: frameTS},
		{group: b, y: 200, ts: frameTS},
	})
	tr.Remove(b)
	assert.Equal(t, 0, tr.above(a, b))
	_, ok := tr.stats[b]
	assert.False(t, ok)
}
