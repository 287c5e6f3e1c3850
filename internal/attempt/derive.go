// Package attempt converts raw attempt outcomes into scheduling ratings.
// It is deliberately decoupled from the memory model: behavioral signals
// can only change which discrete rating is fed in, never the scheduling
// math itself.
package attempt

import (
	"math"

	"github.com/p-n-ai/pai-sched/internal/fsrs"
)

// DefaultAverageResponseMs is assumed for learners with no response-time
// history yet.
const DefaultAverageResponseMs = 30000

// FocusUnknown marks an absent focus score in Context.
const FocusUnknown = -1

// Context carries the per-attempt signals surrounding correctness. The
// focus score is the session-level 0-100 aggregate produced by the
// behavior analytics collaborator; the raw event stream never reaches
// this package.
type Context struct {
	AverageResponseTimeMs float64
	AnswerChanges         int
	WasSkipped            bool
	FocusScore            int // 0-100, FocusUnknown when not reported
	IntegrityEvents       int
}

// Rating scale endpoints for a correct answer. Demotions move the score
// down in half steps with a floor at Hard; a correct answer never derives
// Again no matter how many signals stack.
const (
	scoreEasy = 4.0
	scoreGood = 3.0
	scoreHard = 2.0

	demotionStep = 0.5
)

// Derive maps one attempt to a rating. Incorrect answers are always
// Again, unconditionally. Correct answers start from a speed-based score
// and are demoted, never promoted, by behavioral signals.
func Derive(isCorrect bool, responseTimeMs int, ctx Context) fsrs.Rating {
	if !isCorrect {
		return fsrs.Again
	}

	avg := ctx.AverageResponseTimeMs
	if avg <= 0 {
		avg = DefaultAverageResponseMs
	}
	ratio := float64(responseTimeMs) / avg

	score := scoreHard
	switch {
	case ratio < 0.5:
		score = scoreEasy
	case ratio < 0.8:
		score = scoreGood
	}

	score -= demotionStep * float64(demotions(ctx))

	// Round half-down so a single demotion already costs a tier, then
	// clamp to the Hard floor.
	rounded := math.Ceil(score - 0.5)
	if rounded < scoreHard {
		rounded = scoreHard
	}
	return fsrs.Rating(rounded)
}

// demotions counts the independent behavioral signals present on this
// attempt. Counting first and decrementing once keeps stacked signals
// from double-penalizing past the floor.
func demotions(ctx Context) int {
	n := 0
	if ctx.AnswerChanges > 2 {
		n++
	}
	if ctx.WasSkipped {
		n++
	}
	if ctx.FocusScore != FocusUnknown && ctx.FocusScore < 70 {
		n++
	}
	if ctx.IntegrityEvents > 0 {
		n++
	}
	return n
}
