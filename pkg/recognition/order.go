package recognition

import (
	"sort"
	"time"
)

// orderYTolerance is the vertical slack (in image pixels) below which two
// learned order positions count as equal and the pairwise votes decide.
const orderYTolerance = 5.0

type orderStats struct {
	orderY      float64
	hasY        bool
	firstSeen   time.Time
	aboveCounts map[*Group]int
}

// orderTracker learns the vertical ordering of groups across frames: an
// EWMA of each group's observed y plus pairwise above/below vote counts
// with soft aging.
type orderTracker struct {
	stats          map[*Group]*orderStats
	alpha          float64
	decayThreshold int
}

func newOrderTracker(alpha float64, decayThreshold int) *orderTracker {
	return &orderTracker{
		stats:          make(map[*Group]*orderStats),
		alpha:          alpha,
		decayThreshold: decayThreshold,
	}
}

type orderObservation struct {
	group *Group
	y     float64
	ts    time.Time
}

// Observe folds one frame's (group, y) pairs into the learned order.
func (t *orderTracker) Observe(obs []orderObservation) {
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].y < obs[j].y })

	for _, o := range obs {
		s := t.ensure(o.group, o.ts)
		if !s.hasY {
			s.orderY = o.y
			s.hasY = true
		} else {
			s.orderY = (1-t.alpha)*s.orderY + t.alpha*o.y
		}
	}

	for i := 0; i < len(obs); i++ {
		for j := i + 1; j < len(obs); j++ {
			above, below := obs[i].group, obs[j].group
			if above == below {
				continue
			}
			s := t.ensure(above, obs[i].ts)
			s.aboveCounts[below]++
		}
	}

	t.decay()
}

func (t *orderTracker) ensure(g *Group, ts time.Time) *orderStats {
	s, ok := t.stats[g]
	if !ok {
		s = &orderStats{firstSeen: ts, aboveCounts: make(map[*Group]int)}
		t.stats[g] = s
	}
	return s
}

// decay halves every group's pairwise counters (floored at 1) once their
// sum crosses the configured threshold, so stale votes age out.
func (t *orderTracker) decay() {
	for _, s := range t.stats {
		sum := 0
		for _, c := range s.aboveCounts {
			sum += c
		}
		if sum <= t.decayThreshold {
			continue
		}
		for g, c := range s.aboveCounts {
			half := c / 2
			if half < 1 {
				half = 1
			}
			s.aboveCounts[g] = half
		}
	}
}

// Remove purges a group from the learned order, including every counter
// that referenced it.
func (t *orderTracker) Remove(g *Group) {
	delete(t.stats, g)
	for _, s := range t.stats {
		delete(s.aboveCounts, g)
	}
}

// Reset drops all learned order state.
func (t *orderTracker) Reset() {
	t.stats = make(map[*Group]*orderStats)
}

func (t *orderTracker) above(a, b *Group) int {
	if s, ok := t.stats[a]; ok {
		return s.aboveCounts[b]
	}
	return 0
}

// Less is the group order comparator: learned y first, pairwise votes
// second, discovery time third, then geometric and temporal fallbacks.
func (t *orderTracker) Less(a, b *Group) bool {
	sa, sb := t.stats[a], t.stats[b]

	if sa != nil && sb != nil && sa.hasY && sb.hasY {
		if diff := sa.orderY - sb.orderY; diff < -orderYTolerance || diff > orderYTolerance {
			return sa.orderY < sb.orderY
		}
	}

	if ab, ba := t.above(a, b), t.above(b, a); ab != ba {
		return ab > ba
	}

	if sa != nil && sb != nil && !sa.firstSeen.Equal(sb.firstSeen) {
		return sa.firstSeen.Before(sb.firstSeen)
	}

	if ya, yb := a.MedianProductY(), b.MedianProductY(); ya != yb {
		return ya < yb
	}

	return a.FirstTimestamp().Before(b.FirstTimestamp())
}
