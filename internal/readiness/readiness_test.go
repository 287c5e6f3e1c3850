package readiness

import (
	"testing"
	"time"

	"github.com/p-n-ai/pai-sched/internal/fsrs"
)

var readyNow = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func reviewCard(stability float64, elapsedDays int) fsrs.Card {
	last := readyNow.AddDate(0, 0, -elapsedDays)
	return fsrs.Card{
		Stability:  stability,
		Difficulty: 5,
		State:      fsrs.Review,
		Reps:       4,
		LastReview: &last,
	}
}

func TestEstimate_ZeroCards(t *testing.T) {
	if got := Estimate(nil, readyNow); got != 0 {
		t.Errorf("Estimate(nil) = %d, want 0", got)
	}
	if got := Estimate([]fsrs.Card{}, readyNow); got != 0 {
		t.Errorf("Estimate(empty) = %d, want 0", got)
	}
}

func TestEstimate_SingleCardAtStabilityHorizon(t *testing.T) {
	// Elapsed time equal to stability means retrievability is exactly
	// the target retention, so the score is 90.
	cards := []fsrs.Card{reviewCard(10, 10)}
	if got := Estimate(cards, readyNow); got != 90 {
		t.Errorf("Estimate() = %d, want 90", got)
	}
}

func TestEstimate_StableCardOutweighsShakyCard(t *testing.T) {
	// One fully-confident card near perfect recall against one
	// low-stability card that has decayed: the average must sit much
	// closer to the stable card.
	cards := []fsrs.Card{
		reviewCard(60, 1),
		reviewCard(1, 10),
	}
	got := Estimate(cards, readyNow)
	if got < 80 {
		t.Errorf("Estimate() = %d, want >= 80 (stable card dominates)", got)
	}

	// Equal weighting would land near the midpoint; verify we are above
	// the unweighted mean of the two retrievabilities.
	r0 := fsrs.Retrievability(cards[0], readyNow)
	r1 := fsrs.Retrievability(cards[1], readyNow)
	unweighted := int((r0 + r1) / 2 * 100)
	if got <= unweighted {
		t.Errorf("Estimate() = %d, want > unweighted mean %d", got, unweighted)
	}
}

func TestEstimate_NewCardsCountAtFloorWeight(t *testing.T) {
	// A brand-new card has zero retrievability. It must pull the score
	// down, but at the 0.1 floor weight, not as a full vote.
	stable := []fsrs.Card{reviewCard(60, 1)}
	withNew := append([]fsrs.Card{fsrs.NewCard()}, stable...)

	base := Estimate(stable, readyNow)
	got := Estimate(withNew, readyNow)
	if got >= base {
		t.Errorf("Estimate(with new card) = %d, want < %d", got, base)
	}
	// Full-vote dilution would roughly halve the score.
	if got < base/2 {
		t.Errorf("Estimate(with new card) = %d, dropped more than a floor-weight vote should", got)
	}
}

func TestEstimate_BoundedByScale(t *testing.T) {
	cards := []fsrs.Card{
		reviewCard(60, 0),
		fsrs.NewCard(),
		reviewCard(0.5, 30),
	}
	got := Estimate(cards, readyNow)
	if got < 0 || got > 100 {
		t.Errorf("Estimate() = %d, want within [0, 100]", got)
	}
}

func TestEstimateAt_FutureExamLowersScore(t *testing.T) {
	cards := []fsrs.Card{
		reviewCard(10, 2),
		reviewCard(5, 1),
	}
	today := Estimate(cards, readyNow)
	exam := EstimateAt(cards, readyNow, readyNow.AddDate(0, 0, 21))
	if exam >= today {
		t.Errorf("EstimateAt(+21d) = %d, want < today's %d", exam, today)
	}
}

func TestEstimateAt_PastExamDateDegeneratesToNow(t *testing.T) {
	cards := []fsrs.Card{reviewCard(10, 2)}
	want := Estimate(cards, readyNow)
	if got := EstimateAt(cards, readyNow, readyNow.AddDate(0, 0, -3)); got != want {
		t.Errorf("EstimateAt(past) = %d, want %d", got, want)
	}
}
