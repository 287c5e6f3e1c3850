// Package queue builds bounded, topic-interleaved practice queues from
// scheduling state. It is strictly read-only: it observes a snapshot of
// the learner's cards and never mutates them, so queue builds run with
// unlimited concurrency and never block the write path.
package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/p-n-ai/pai-sched/internal/fsrs"
	"github.com/p-n-ai/pai-sched/internal/scheduler"
)

// ErrInvalidInput marks boundary validation failures.
var ErrInvalidInput = errors.New("queue: invalid input")

// Bucket names the reason an item was selected.
type Bucket string

const (
	BucketDueReview     Bucket = "due_review"
	BucketLowRetention  Bucket = "low_retention"
	BucketNewContent    Bucket = "new_content"
	BucketReinforcement Bucket = "reinforcement"
)

// bucketOrder is the fill priority; quota shortfall rolls downward.
var bucketOrder = []Bucket{BucketDueReview, BucketLowRetention, BucketNewContent, BucketReinforcement}

// bucketQuotaPct is each bucket's share of the target count.
var bucketQuotaPct = map[Bucket]int{
	BucketDueReview:     40,
	BucketLowRetention:  30,
	BucketNewContent:    20,
	BucketReinforcement: 10,
}

// Scoring constants. Base scores keep the buckets in separate bands;
// behavior adjustments can promote across band edges deliberately.
const (
	dueReviewBase       = 100.0
	dueReviewSpread     = 20.0
	lowRetentionBase    = 80.0
	lowRetentionSpread  = 50.0
	newContentBase      = 30.0
	newContentJitterMax = 5.0
	reinforcementScore  = 10.0

	lowRetentionThreshold = 0.7

	// A card counts as long-mastered when it is stable, high-retention
	// Review state; such items only surface as reinforcement.
	masteredStability      = 30.0
	masteredRetrievability = 0.9

	lowBehaviorScore = 50

	confidenceAdvancedPenalty = 15.0
	confidenceBeginnerBoost   = 10.0
	focusNewContentPenalty    = 20.0
	focusDueReviewBoost       = 10.0
)

// Selection is one queue entry with its selection metadata.
type Selection struct {
	ItemID         string  `json:"item_id"`
	Topic          string  `json:"topic"`
	Bucket         Bucket  `json:"bucket_reason"`
	Score          float64 `json:"score"`
	Retrievability float64 `json:"retrievability"`
}

// CardReader is the read-only slice of the card store the builder needs.
type CardReader interface {
	List(ctx context.Context, learnerID string) ([]*scheduler.StoredCard, error)
}

// StatsReader supplies learner aggregates and behavior scores.
type StatsReader interface {
	Get(ctx context.Context, learnerID string) (scheduler.LearnerStats, error)
}

// LabelSource maps item IDs to authored difficulty labels
// (beginner/intermediate/advanced). The catalog package implements it.
type LabelSource interface {
	DifficultyLabel(itemID string) string
}

// Options tune one queue build.
type Options struct {
	// ExcludeRecentDays removes items reviewed within the window from
	// new-content and reinforcement consideration (never from due
	// reviews). Zero means the default of 1 day; negative disables.
	ExcludeRecentDays int

	// Rand is the jitter source for new-content scores. Nil disables
	// jitter and makes the build fully deterministic, which tests rely
	// on. Jitter only exists so the unseen-content order does not become
	// a de facto fixed curriculum.
	Rand *rand.Rand
}

// Builder computes practice queues.
type Builder struct {
	cards  CardReader
	stats  StatsReader
	labels LabelSource
}

// NewBuilder creates a Builder. labels may be nil when no authored
// difficulty tags exist; confidence adjustments are skipped then.
func NewBuilder(cards CardReader, stats StatsReader, labels LabelSource) (*Builder, error) {
	if cards == nil {
		return nil, fmt.Errorf("card reader is required")
	}
	if stats == nil {
		return nil, fmt.Errorf("stats reader is required")
	}
	return &Builder{cards: cards, stats: stats, labels: labels}, nil
}

// Build returns at most targetCount items chosen from the pool, grouped
// by topic, scored per bucket and interleaved across topics. Fewer
// candidates than targetCount is not an error; the shorter list is
// returned.
func (b *Builder) Build(ctx context.Context, learnerID string, pool map[string][]string, targetCount int, now time.Time, opts Options) ([]Selection, error) {
	if learnerID == "" {
		return nil, fmt.Errorf("%w: empty learner id", ErrInvalidInput)
	}
	if targetCount < 0 {
		return nil, fmt.Errorf("%w: negative target count %d", ErrInvalidInput, targetCount)
	}
	if targetCount == 0 || len(pool) == 0 {
		return nil, nil
	}

	excludeRecent := time.Duration(0)
	switch {
	case opts.ExcludeRecentDays == 0:
		excludeRecent = 24 * time.Hour
	case opts.ExcludeRecentDays > 0:
		excludeRecent = time.Duration(opts.ExcludeRecentDays) * 24 * time.Hour
	}

	cards, err := b.cards.List(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	byItem := make(map[string]*scheduler.StoredCard, len(cards))
	for _, c := range cards {
		byItem[c.Key.ItemID] = c
	}

	stats, err := b.stats.Get(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}

	candidates := b.classify(pool, byItem, now, excludeRecent, opts.Rand)
	b.adjustForBehavior(candidates, stats)

	ordered := orderByQuota(candidates, targetCount)
	return interleave(ordered, targetCount), nil
}

// candidate is the ephemeral per-item scoring record; recomputed on every
// build, never persisted.
type candidate struct {
	Selection
	order int // insertion order, the final tie-breaker
}

// classify walks the pool in deterministic topic order and assigns each
// item to a bucket, or drops it.
func (b *Builder) classify(pool map[string][]string, byItem map[string]*scheduler.StoredCard, now time.Time, excludeRecent time.Duration, rng *rand.Rand) []*candidate {
	topics := make([]string, 0, len(pool))
	for t := range pool {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	var out []*candidate
	seen := make(map[string]bool)
	add := func(itemID, topic string, bucket Bucket, score, retr float64) {
		if seen[itemID] {
			return
		}
		seen[itemID] = true
		out = append(out, &candidate{
			Selection: Selection{
				ItemID:         itemID,
				Topic:          topic,
				Bucket:         bucket,
				Score:          score,
				Retrievability: retr,
			},
			order: len(out),
		})
	}

	for _, topic := range topics {
		for _, itemID := range pool[topic] {
			stored, ok := byItem[itemID]
			if !ok || stored.Card.State == fsrs.New {
				// A card row can exist with no review behind it. No review
				// means no schedule, so the item competes as new content
				// rather than as an overdue review with zero retrievability.
				score := newContentBase
				if rng != nil {
					score += rng.Float64() * newContentJitterMax
				}
				add(itemID, topic, BucketNewContent, score, 0)
				continue
			}

			card := stored.Card
			retr := fsrs.Retrievability(card, now)
			recent := card.LastReview != nil && excludeRecent > 0 &&
				now.Sub(*card.LastReview) < excludeRecent
			mastered := card.State == fsrs.Review &&
				card.Stability >= masteredStability &&
				retr >= masteredRetrievability

			switch {
			case !card.Due.After(now) && !mastered:
				// Due-ness already encodes timing; recency never excludes
				// a due review.
				add(itemID, topic, BucketDueReview, dueReviewBase+(1-retr)*dueReviewSpread, retr)
			case !mastered && card.Seen() && retr < lowRetentionThreshold:
				add(itemID, topic, BucketLowRetention, lowRetentionBase+(lowRetentionThreshold-retr)*lowRetentionSpread, retr)
			case mastered && !recent:
				add(itemID, topic, BucketReinforcement, reinforcementScore, retr)
			}
		}
	}
	return out
}

// adjustForBehavior applies the confidence and focus heuristics. Zero
// scores mean the analytics pipeline has not reported yet; no adjustment
// happens then.
func (b *Builder) adjustForBehavior(candidates []*candidate, stats scheduler.LearnerStats) {
	lowConfidence := stats.Confidence > 0 && stats.Confidence < lowBehaviorScore
	lowFocus := stats.FocusScore > 0 && stats.FocusScore < lowBehaviorScore
	if !lowConfidence && !lowFocus {
		return
	}

	for _, c := range candidates {
		if lowConfidence && b.labels != nil {
			switch b.labels.DifficultyLabel(c.ItemID) {
			case "advanced":
				c.Score -= confidenceAdvancedPenalty
			case "beginner":
				c.Score += confidenceBeginnerBoost
			}
		}
		if lowFocus {
			// Novel material under low focus is wasted; push the session
			// toward consolidating due reviews instead.
			switch c.Bucket {
			case BucketNewContent:
				c.Score -= focusNewContentPenalty
			case BucketDueReview:
				c.Score += focusDueReviewBoost
			}
		}
	}
}

// orderByQuota orders candidates by the fixed bucket distribution: each
// bucket contributes its quota in score order, shortfall rolls to the
// next bucket in priority order, and rounding leftovers are topped up
// the same way. Candidates past the quota stay in the list, sorted by
// score, so the topic round-robin has material to balance with when the
// quota picks skew toward one topic.
func orderByQuota(candidates []*candidate, targetCount int) []*candidate {
	byBucket := make(map[Bucket][]*candidate)
	for _, c := range candidates {
		byBucket[c.Bucket] = append(byBucket[c.Bucket], c)
	}
	for _, list := range byBucket {
		sortByScore(list)
	}

	quotas := make(map[Bucket]int, len(bucketOrder))
	assigned := 0
	for _, bucket := range bucketOrder {
		quotas[bucket] = targetCount * bucketQuotaPct[bucket] / 100
		assigned += quotas[bucket]
	}
	// Integer division remainder goes to the highest-priority bucket.
	quotas[BucketDueReview] += targetCount - assigned

	var ordered []*candidate
	carry := 0
	for _, bucket := range bucketOrder {
		want := quotas[bucket] + carry
		take := min(want, len(byBucket[bucket]))
		ordered = append(ordered, byBucket[bucket][:take]...)
		byBucket[bucket] = byBucket[bucket][take:]
		carry = want - take
	}

	// Rolled-over demand can pass buckets that still had spare
	// candidates; a second pass in the same order uses them up.
	for _, bucket := range bucketOrder {
		if len(ordered) >= targetCount {
			break
		}
		take := min(targetCount-len(ordered), len(byBucket[bucket]))
		ordered = append(ordered, byBucket[bucket][:take]...)
		byBucket[bucket] = byBucket[bucket][take:]
	}

	var rest []*candidate
	for _, bucket := range bucketOrder {
		rest = append(rest, byBucket[bucket]...)
	}
	sortByScore(rest)
	return append(ordered, rest...)
}

// interleave round-robins across topics until targetCount items are
// chosen or every topic is exhausted. Topics take turns in the priority
// order produced by orderByQuota, but within a topic the highest score
// goes first even when a behavior adjustment lifted it across a bucket
// band. A dominant topic cannot produce a long unbroken run: the next
// topic's candidate is taken even when it ranked past the quota.
func interleave(ordered []*candidate, targetCount int) []Selection {
	var topicOrder []string
	perTopic := make(map[string][]*candidate)
	for _, c := range ordered {
		if _, ok := perTopic[c.Topic]; !ok {
			topicOrder = append(topicOrder, c.Topic)
		}
		perTopic[c.Topic] = append(perTopic[c.Topic], c)
	}
	for _, topic := range topicOrder {
		sortByScore(perTopic[topic])
	}

	out := make([]Selection, 0, min(targetCount, len(ordered)))
	for len(out) < targetCount {
		progressed := false
		for _, topic := range topicOrder {
			if len(out) >= targetCount {
				break
			}
			items := perTopic[topic]
			if len(items) == 0 {
				continue
			}
			out = append(out, items[0].Selection)
			perTopic[topic] = items[1:]
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}

// sortByScore sorts descending by score with insertion order as the
// stable tie-breaker; output order never depends on randomness.
func sortByScore(list []*candidate) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		return list[i].order < list[j].order
	})
}
