package fsrs

import "time"

// Learning-step delays for cards that have not yet graduated to Review.
const (
	againStep = 1 * time.Minute
	hardStep  = 5 * time.Minute
	goodStep  = 10 * time.Minute
	lapseStep = 5 * time.Minute
)

// Schedule applies one review to the card and returns the updated card.
// It is the only state-transition entry point and the input is not
// mutated. Deterministic given (card, now, rating, weights).
func Schedule(c Card, now time.Time, rating Rating, w Weights) Card {
	next := c
	next.ElapsedDays = c.elapsedDaysSince(now)
	next.Reps++

	if !c.Seen() {
		scheduleNew(&next, now, rating, w)
	} else {
		scheduleSeen(&next, c, now, rating, w)
	}

	t := now
	next.LastReview = &t
	return next
}

// scheduleNew initializes stability and difficulty from the first rating.
// Again/Hard/Good enter the Learning state on minute steps; Easy
// graduates straight to Review.
func scheduleNew(next *Card, now time.Time, rating Rating, w Weights) {
	next.Difficulty = w.initialDifficulty(rating)
	next.Stability = w.initialStability(rating)

	switch rating {
	case Again:
		next.Lapses++
		toLearningStep(next, Learning, now, againStep)
	case Hard:
		toLearningStep(next, Learning, now, hardStep)
	case Good:
		toLearningStep(next, Learning, now, goodStep)
	case Easy:
		toReview(next, now)
	}
}

// scheduleSeen handles every card that has been reviewed before.
// Retrievability is computed against the pre-update card so the formulas
// see the memory state as it was at the moment of the attempt.
func scheduleSeen(next *Card, prev Card, now time.Time, rating Rating, w Weights) {
	r := Retrievability(prev, now)

	if rating == Again {
		next.Lapses++
		next.Stability = nextForgetStability(w, prev.Difficulty, prev.Stability, r)
		next.Difficulty = nextDifficulty(w, prev.Difficulty, rating)
		toLearningStep(next, Relearning, now, lapseStep)
		return
	}

	next.Stability = nextRecallStability(w, prev.Difficulty, prev.Stability, r, rating)
	next.Difficulty = nextDifficulty(w, prev.Difficulty, rating)
	toReview(next, now)
}

func toLearningStep(next *Card, state State, now time.Time, step time.Duration) {
	next.State = state
	next.Due = now.Add(step)
	next.ScheduledDays = 0
}

func toReview(next *Card, now time.Time) {
	days := NextInterval(next.Stability, DefaultRetention)
	next.State = Review
	next.Due = now.AddDate(0, 0, days)
	next.ScheduledDays = float64(days)
}
