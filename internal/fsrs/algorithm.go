package fsrs

import (
	"math"
	"time"
)

const (
	// decay is the fixed exponent of the forgetting curve.
	decay = -0.5

	// factor is derived from decay and the target retention so that a card
	// reviewed exactly at t = S has retrievability DefaultRetention:
	// factor = DefaultRetention^(1/decay) - 1 (19/81 for 0.9 / -0.5).
	factor = 19.0 / 81.0

	// DefaultRetention is the target recall probability the interval
	// computation solves for.
	DefaultRetention = 0.9

	// MaxIntervalDays caps any scheduled interval at one year.
	MaxIntervalDays = 365

	// minStability keeps stability strictly positive; it appears as a
	// denominator in the forgetting curve.
	minStability = 0.1
)

// Retrievability returns the probability that the learner still recalls
// the card at the given time, per the forgetting curve
//
//	R(t, S) = (1 + factor * t / S) ^ decay
//
// where t is days elapsed since the last review. A never-reviewed card
// has retrievability 0.
func Retrievability(c Card, now time.Time) float64 {
	if !c.Seen() || c.Stability <= 0 {
		return 0
	}
	return forgettingCurve(c.elapsedDaysSince(now), c.Stability)
}

func forgettingCurve(elapsedDays, stability float64) float64 {
	return math.Pow(1+factor*elapsedDays/stability, decay)
}

// NextInterval solves the forgetting curve for the elapsed time at which
// retrievability drops to the requested retention:
//
//	I(S) = (S / factor) * (retention^(1/decay) - 1)
//
// rounded to the nearest whole day and clamped to [1, MaxIntervalDays].
// With the default retention the interval equals the stability.
func NextInterval(stability, retention float64) int {
	ivl := stability / factor * (math.Pow(retention, 1.0/decay) - 1)
	days := int(math.Round(ivl))
	if days < 1 {
		days = 1
	}
	if days > MaxIntervalDays {
		days = MaxIntervalDays
	}
	return days
}

// nextRecallStability is the post-review stability after a successful
// recall (Hard, Good or Easy):
//
//	S' = S * (1 + e^w8 * (11 - D) * S^(-w9) * (e^((1-R)*w10) - 1) * hard * easy)
//
// Hard applies the w15 penalty multiplier, Easy the w16 bonus.
func nextRecallStability(w Weights, difficulty, stability, retrievability float64, r Rating) float64 {
	hardPenalty := 1.0
	if r == Hard {
		hardPenalty = w.HardPenalty
	}
	easyBonus := 1.0
	if r == Easy {
		easyBonus = w.EasyBonus
	}
	s := stability * (1 + math.Exp(w.RecallFactor)*
		(11-difficulty)*
		math.Pow(stability, -w.RecallStabilityDecay)*
		(math.Exp((1-retrievability)*w.RecallRetrievabilityGain)-1)*
		hardPenalty*easyBonus)
	return clampStability(s)
}

// nextForgetStability is the post-lapse stability after an Again rating:
//
//	S' = w11 * D^(-w12) * ((S+1)^w13 - 1) * e^((1-R)*w14)
func nextForgetStability(w Weights, difficulty, stability, retrievability float64) float64 {
	s := w.ForgetFactor *
		math.Pow(difficulty, -w.ForgetDifficultyDecay) *
		(math.Pow(stability+1, w.ForgetStabilityGain) - 1) *
		math.Exp((1-retrievability)*w.ForgetRetrievabilityGain)
	return clampStability(s)
}

// nextDifficulty applies the linear rating step followed by mean
// reversion toward the neutral-rating anchor:
//
//	D'  = D - w6 * (G - 3)
//	D'' = w7 * w4 + (1 - w7) * D'
//
// clamped to [1, 10].
func nextDifficulty(w Weights, difficulty float64, r Rating) float64 {
	raw := difficulty - w.DifficultyDelta*float64(r-Good)
	blended := w.MeanReversionWeight*w.InitialDifficulty + (1-w.MeanReversionWeight)*raw
	return clampDifficulty(blended)
}

func clampStability(s float64) float64 {
	if math.IsNaN(s) || s < minStability {
		return minStability
	}
	return s
}

func clampDifficulty(d float64) float64 {
	switch {
	case math.IsNaN(d), d < 1:
		return 1
	case d > 10:
		return 10
	default:
		return d
	}
}
