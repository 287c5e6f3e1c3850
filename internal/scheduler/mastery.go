package scheduler

import "github.com/p-n-ai/pai-sched/internal/fsrs"

// Mastery is the coarse display label shown next to an item. It is
// derived from scheduling state but is strictly one-way: nothing reads it
// back into the memory model.
type Mastery string

const (
	MasteryBeginner     Mastery = "beginner"
	MasteryIntermediate Mastery = "intermediate"
	MasteryAdvanced     Mastery = "advanced"
	MasteryMastered     Mastery = "mastered"
)

// masteryOf buckets a card by stability, repetition count and the
// learner's recent accuracy.
func masteryOf(c fsrs.Card, recentAccuracy float64) Mastery {
	switch {
	case c.State == fsrs.Review && c.Stability >= 30 && c.Reps >= 5 && recentAccuracy >= 0.9:
		return MasteryMastered
	case c.State == fsrs.Review && c.Stability >= 10 && c.Reps >= 4 && recentAccuracy >= 0.7:
		return MasteryAdvanced
	case c.Reps >= 2 && c.Stability >= 2:
		return MasteryIntermediate
	default:
		return MasteryBeginner
	}
}
