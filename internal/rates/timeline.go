package rates

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Timeline is the ordered tax rate history for one corporation. The zero value
// is an empty timeline. Construction sorts the points, so resolution never
// depends on the caller's input order.
type Timeline struct {
	points []TimelinePoint
}

// NewTimeline builds a timeline from points in any order.
func NewTimeline(points []TimelinePoint) Timeline {
	sorted := make([]TimelinePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EffectiveAt.Before(sorted[j].EffectiveAt)
	})
	return Timeline{points: sorted}
}

// RateAt resolves the rate in effect at the given instant: the rate of the
// point with the latest EffectiveAt strictly before date. A rate takes effect
// the instant after its recorded change, never at the change itself. When no
// point predates the instant the caller-supplied default is returned.
func (t Timeline) RateAt(date time.Time, def decimal.Decimal) decimal.Decimal {
	// Index of the first point with EffectiveAt >= date; everything before it
	// is strictly earlier.
	idx := sort.Search(len(t.points), func(i int) bool {
		return !t.points[i].EffectiveAt.Before(date)
	})
	if idx == 0 {
		return def
	}
	return t.points[idx-1].Rate
}

// Points returns the ordered points backing the timeline.
func (t Timeline) Points() []TimelinePoint {
	out := make([]TimelinePoint, len(t.points))
	copy(out, t.points)
	return out
}

// Len reports the number of points.
func (t Timeline) Len() int {
	return len(t.points)
}
