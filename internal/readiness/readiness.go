// Package readiness aggregates per-card retrievability into a single
// exam readiness score. It is a read-only consumer of scheduling state
// and never mutates a card.
package readiness

import (
	"math"
	"time"

	"github.com/p-n-ai/pai-sched/internal/fsrs"
)

// Confidence weighting. A card's vote counts fully once its stability
// reaches fullConfidenceStability days; below that the weight scales
// down linearly, but never under minWeight, so brand-new material still
// drags an inflated score toward reality.
const (
	fullConfidenceStability = 30.0
	minWeight               = 0.1
)

// Estimate returns the learner's readiness on a 0..100 scale: the
// confidence-weighted average of each card's retrievability at now,
// scaled and rounded. Zero cards yields 0, never NaN.
func Estimate(cards []fsrs.Card, now time.Time) int {
	if len(cards) == 0 {
		return 0
	}

	var weighted, total float64
	for _, c := range cards {
		w := math.Min(c.Stability/fullConfidenceStability, 1)
		if w < minWeight {
			w = minWeight
		}
		weighted += w * fsrs.Retrievability(c, now)
		total += w
	}
	return int(math.Round(weighted / total * 100))
}

// EstimateAt simulates readiness on a future exam date by letting every
// card's memory decay until then before weighting. An examDate at or
// before now degenerates to Estimate. The projection is a pure
// computation over copies of the cards.
func EstimateAt(cards []fsrs.Card, now, examDate time.Time) int {
	if examDate.After(now) {
		now = examDate
	}
	return Estimate(cards, now)
}
