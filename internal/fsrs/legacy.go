package fsrs

// FromLegacy estimates an initial memory state from a record produced by
// the retired ease-factor scheduler. It is a one-shot import adapter: the
// old algorithm's update path is not carried forward, only this mapping
// of its (ease, interval) pair into a starting stability and difficulty.
//
// Ease factors ran in roughly [1.3, 3.0] with 2.5 as the neutral start,
// so neutral ease maps to the middle of the difficulty scale and each
// 0.1 of ease below neutral adds 0.35 difficulty. The last scheduled
// interval is the best available proxy for stability.
func FromLegacy(ease float64, intervalDays int, reps uint32) Card {
	if reps == 0 || intervalDays <= 0 {
		return NewCard()
	}

	difficulty := clampDifficulty(5 + (2.5-ease)*3.5)
	stability := clampStability(float64(intervalDays))

	return Card{
		Stability:  stability,
		Difficulty: difficulty,
		State:      Review,
		Reps:       reps,
	}
}
