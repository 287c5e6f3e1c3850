package fsrs

import "fmt"

// ErrInvalidWeights is returned when a weight vector is outside its bounds.
var ErrInvalidWeights = fmt.Errorf("fsrs: invalid weights")

// Weights holds the 17 tunable coefficients controlling every formula in
// the model. The ordering matches the flat w[0..16] array used by the
// offline tuner; the named fields exist so the formulas read as formulas
// rather than index arithmetic.
//
// Weights are an opaque parameter set: callers pass either the global
// defaults or a per-learner tuned vector. Tuning itself is an offline
// concern and does not happen in this package.
type Weights struct {
	InitialStabilityAgain float64 // w0: S0 for a first rating of Again
	InitialStabilityHard  float64 // w1: S0 for Hard
	InitialStabilityGood  float64 // w2: S0 for Good
	InitialStabilityEasy  float64 // w3: S0 for Easy

	InitialDifficulty      float64 // w4: D0 for a neutral (Good) first rating; mean-reversion anchor
	InitialDifficultySlope float64 // w5: per-rating-step offset from InitialDifficulty

	DifficultyDelta     float64 // w6: linear difficulty step per rating distance from Good
	MeanReversionWeight float64 // w7: blend factor pulling difficulty back toward the anchor

	RecallFactor             float64 // w8: exponent scale of the recall stability gain
	RecallStabilityDecay     float64 // w9: stability saturation exponent (higher S grows slower)
	RecallRetrievabilityGain float64 // w10: gain from reviewing at low retrievability

	ForgetFactor             float64 // w11: base scale of post-lapse stability
	ForgetDifficultyDecay    float64 // w12: difficulty exponent in the forgetting formula
	ForgetStabilityGain      float64 // w13: prior-stability exponent in the forgetting formula
	ForgetRetrievabilityGain float64 // w14: retrievability exponent in the forgetting formula

	HardPenalty float64 // w15: stability multiplier for Hard (< 1)
	EasyBonus   float64 // w16: stability multiplier for Easy (> 1)
}

// DefaultWeights returns the globally tuned default vector.
func DefaultWeights() Weights {
	return FromSlice([17]float64{
		0.4, 0.6, 2.4, 5.8,
		4.93, 0.94,
		0.86, 0.01,
		1.49, 0.14, 0.94,
		2.18, 0.05, 0.34, 1.26,
		0.29, 2.61,
	})
}

// FromSlice builds a Weights from the flat w[0..16] ordering.
func FromSlice(w [17]float64) Weights {
	return Weights{
		InitialStabilityAgain:    w[0],
		InitialStabilityHard:     w[1],
		InitialStabilityGood:     w[2],
		InitialStabilityEasy:     w[3],
		InitialDifficulty:        w[4],
		InitialDifficultySlope:   w[5],
		DifficultyDelta:          w[6],
		MeanReversionWeight:      w[7],
		RecallFactor:             w[8],
		RecallStabilityDecay:     w[9],
		RecallRetrievabilityGain: w[10],
		ForgetFactor:             w[11],
		ForgetDifficultyDecay:    w[12],
		ForgetStabilityGain:      w[13],
		ForgetRetrievabilityGain: w[14],
		HardPenalty:              w[15],
		EasyBonus:                w[16],
	}
}

// Slice returns the flat w[0..16] ordering, the interchange format with
// the offline tuner.
func (w Weights) Slice() [17]float64 {
	return [17]float64{
		w.InitialStabilityAgain,
		w.InitialStabilityHard,
		w.InitialStabilityGood,
		w.InitialStabilityEasy,
		w.InitialDifficulty,
		w.InitialDifficultySlope,
		w.DifficultyDelta,
		w.MeanReversionWeight,
		w.RecallFactor,
		w.RecallStabilityDecay,
		w.RecallRetrievabilityGain,
		w.ForgetFactor,
		w.ForgetDifficultyDecay,
		w.ForgetStabilityGain,
		w.ForgetRetrievabilityGain,
		w.HardPenalty,
		w.EasyBonus,
	}
}

// weightBounds are the allowed [min, max] per coefficient, in flat order.
var weightBounds = [17][2]float64{
	{0.01, 100}, {0.01, 100}, {0.01, 100}, {0.01, 100},
	{1, 10}, {0.01, 5},
	{0.01, 4}, {0, 0.75},
	{0, 4.5}, {0, 0.8}, {0.01, 3.5},
	{0.01, 5}, {0.01, 0.25}, {0.01, 0.9}, {0.01, 4},
	{0, 1}, {1, 6},
}

// Validate checks every coefficient against its bounds.
func (w Weights) Validate() error {
	s := w.Slice()
	for i, v := range s {
		if v < weightBounds[i][0] || v > weightBounds[i][1] {
			return fmt.Errorf("%w: w[%d] = %g, bounds [%g, %g]",
				ErrInvalidWeights, i, v, weightBounds[i][0], weightBounds[i][1])
		}
	}
	return nil
}

// initialStability returns S0 for the first rating of a card, floored at
// the global stability minimum.
func (w Weights) initialStability(r Rating) float64 {
	var s float64
	switch r {
	case Again:
		s = w.InitialStabilityAgain
	case Hard:
		s = w.InitialStabilityHard
	case Good:
		s = w.InitialStabilityGood
	case Easy:
		s = w.InitialStabilityEasy
	}
	return clampStability(s)
}

// initialDifficulty returns D0(G) = w4 - w5*(G-3), clamped to [1, 10].
// A Good first answer lands exactly on InitialDifficulty.
func (w Weights) initialDifficulty(r Rating) float64 {
	return clampDifficulty(w.InitialDifficulty - w.InitialDifficultySlope*float64(r-Good))
}
