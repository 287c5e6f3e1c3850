// Package fsrs implements the memory-decay scheduling model: the forgetting
// curve, stability/difficulty update formulas, and the four-state card
// transition machine. Everything here is pure: no I/O, no clocks, no
// mutable package state. Persistence and rating derivation live elsewhere.
package fsrs

import "time"

// State is the scheduling state of a card.
type State int

const (
	New        State = 0
	Learning   State = 1
	Review     State = 2
	Relearning State = 3
)

func (s State) String() string {
	switch s {
	case New:
		return "new"
	case Learning:
		return "learning"
	case Review:
		return "review"
	case Relearning:
		return "relearning"
	default:
		return "unknown"
	}
}

// Rating is the discrete per-attempt signal fed into Schedule.
// It is ephemeral: derived fresh for every attempt, never persisted.
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

func (r Rating) String() string {
	switch r {
	case Again:
		return "again"
	case Hard:
		return "hard"
	case Good:
		return "good"
	case Easy:
		return "easy"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the four defined ratings.
func (r Rating) Valid() bool {
	return r >= Again && r <= Easy
}

// Card is the per-(learner,item) memory state. The zero value is a valid
// never-reviewed card: State New, Stability 0, LastReview nil.
//
// Invariants maintained by Schedule:
//   - State == New implies Stability == 0 and LastReview == nil
//   - Difficulty is in [1, 10] after every transition
//   - Stability is at least 0.1 after every transition (it is a
//     denominator in the forgetting curve and must never reach zero)
//   - Due is never before LastReview
type Card struct {
	Stability     float64    `json:"stability"`
	Difficulty    float64    `json:"difficulty"`
	State         State      `json:"state"`
	Due           time.Time  `json:"due"`
	ElapsedDays   float64    `json:"elapsed_days"`
	ScheduledDays float64    `json:"scheduled_days"`
	Reps          uint32     `json:"reps"`
	Lapses        uint32     `json:"lapses"`
	LastReview    *time.Time `json:"last_review,omitempty"`
}

// NewCard returns a never-reviewed card.
func NewCard() Card {
	return Card{State: New}
}

// Seen reports whether the card has been reviewed at least once.
func (c Card) Seen() bool {
	return c.State != New && c.LastReview != nil
}

// elapsedDaysSince returns fractional days between the card's last review
// and now, floored at 0 so clock skew never produces negative elapsed time.
func (c Card) elapsedDaysSince(now time.Time) float64 {
	if c.LastReview == nil {
		return 0
	}
	d := now.Sub(*c.LastReview).Hours() / 24.0
	if d < 0 {
		return 0
	}
	return d
}
