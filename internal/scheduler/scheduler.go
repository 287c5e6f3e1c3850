package scheduler

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/p-n-ai/pai-sched/internal/attempt"
	"github.com/p-n-ai/pai-sched/internal/fsrs"
)

const (
	maxIDLength = 128

	// weakTopicAccuracy marks a topic as a weak area once the learner has
	// enough attempts in it and is below this correct ratio.
	weakTopicAccuracy    = 0.6
	weakTopicMinAttempts = 3
)

// WeightsSource resolves the weight vector for a learner. Personalized
// vectors come from offline tuning; the default implementation serves one
// static vector to everyone.
type WeightsSource interface {
	WeightsFor(ctx context.Context, learnerID string) fsrs.Weights
}

// StaticWeights is a WeightsSource serving the same vector to all learners.
type StaticWeights struct {
	W fsrs.Weights
}

func (s StaticWeights) WeightsFor(context.Context, string) fsrs.Weights {
	return s.W
}

// TopicSource maps item IDs to their content tags. The catalog package
// implements it.
type TopicSource interface {
	Topic(itemID string) string
}

// Behavior carries the non-correctness attempt signals supplied by the
// quiz front end and the behavior analytics pipeline.
type Behavior struct {
	AnswerChanges   int
	WasSkipped      bool
	FocusScore      int // 0-100, attempt.FocusUnknown when not reported
	IntegrityEvents int
}

// Result is what RecordAttempt returns to the caller.
type Result struct {
	Key          CardKey
	Rating       fsrs.Rating
	State        fsrs.State
	Due          time.Time
	IntervalDays int
	Mastery      Mastery
	IsWeakArea   bool
}

// Config holds Scheduler dependencies. Cards is required; nil Stats,
// Weights and Now fall back to an in-memory store, the default vector and
// the wall clock.
type Config struct {
	Cards   CardStore
	Stats   StatsStore
	Weights WeightsSource
	Topics  TopicSource
	Now     func() time.Time
}

// Scheduler is the single write path for scheduling state.
type Scheduler struct {
	cards   CardStore
	stats   StatsStore
	weights WeightsSource
	topics  TopicSource
	now     func() time.Time
	locks   keyLocks
}

// New creates a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Cards == nil {
		return nil, fmt.Errorf("card store is required")
	}
	stats := cfg.Stats
	if stats == nil {
		stats = NewMemoryStatsStore()
	}
	weights := cfg.Weights
	if weights == nil {
		weights = StaticWeights{W: fsrs.DefaultWeights()}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		cards:   cfg.Cards,
		stats:   stats,
		weights: weights,
		topics:  cfg.Topics,
		now:     now,
	}, nil
}

// RecordAttempt applies one submitted answer to the learner's card for
// the item: derive rating, run the memory-model transition, persist, and
// fold the attempt into the learner's rolling aggregates.
//
// Calls are linearizable per (learner, item): the second of two
// concurrent attempts on the same key observes the first's write before
// computing its own transition.
func (s *Scheduler) RecordAttempt(ctx context.Context, learnerID, itemID string, isCorrect bool, responseTimeMs int, behavior Behavior) (*Result, error) {
	if err := validateAttempt(learnerID, itemID, responseTimeMs); err != nil {
		return nil, err
	}
	key := CardKey{LearnerID: learnerID, ItemID: itemID}

	unlock := s.locks.lock(key)
	defer unlock()

	stats, err := s.stats.Get(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load learner stats: %w", err)
	}

	rating := attempt.Derive(isCorrect, responseTimeMs, attempt.Context{
		AverageResponseTimeMs: stats.AvgResponseMs,
		AnswerChanges:         behavior.AnswerChanges,
		WasSkipped:            behavior.WasSkipped,
		FocusScore:            behavior.FocusScore,
		IntegrityEvents:       behavior.IntegrityEvents,
	})

	stored, err := s.transition(ctx, key, rating)
	if err != nil {
		return nil, err
	}

	topic := ""
	if s.topics != nil {
		topic = s.topics.Topic(itemID)
	}
	stats, err = s.stats.RecordAttempt(ctx, learnerID, topic, isCorrect, responseTimeMs)
	if err != nil {
		// The card write is the source of truth; a failed aggregate
		// update degrades heuristics, not scheduling.
		slog.Warn("learner stats update failed", "learner_id", learnerID, "error", err)
	}

	res := &Result{
		Key:          key,
		Rating:       rating,
		State:        stored.Card.State,
		Due:          stored.Card.Due,
		IntervalDays: int(stored.Card.ScheduledDays),
		Mastery:      masteryOf(stored.Card, stats.RecentAccuracy),
		IsWeakArea:   isWeakTopic(stats, topic),
	}

	slog.Info("attempt recorded",
		"learner_id", learnerID,
		"item_id", itemID,
		"rating", rating.String(),
		"state", stored.Card.State.String(),
		"due", stored.Card.Due,
	)
	return res, nil
}

// transition runs load -> schedule -> persist for the key, retrying once
// on a version conflict so a concurrent writer's result is observed
// before this attempt's transition is recomputed.
func (s *Scheduler) transition(ctx context.Context, key CardKey, rating fsrs.Rating) (*StoredCard, error) {
	weights := s.weights.WeightsFor(ctx, key.LearnerID)
	now := s.now()

	for tries := 0; ; tries++ {
		stored, err := s.cards.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load card: %w", err)
		}
		if stored == nil {
			stored = &StoredCard{Key: key, Card: fsrs.NewCard()}
		}

		stored.Card = fsrs.Schedule(stored.Card, now, rating, weights)

		err = s.cards.Put(ctx, stored)
		if err == nil {
			return stored, nil
		}
		if !errors.Is(err, ErrVersionConflict) || tries >= 1 {
			return nil, fmt.Errorf("persist card: %w", err)
		}
	}
}

func validateAttempt(learnerID, itemID string, responseTimeMs int) error {
	if !validID(learnerID) {
		return fmt.Errorf("%w: learner id %q", ErrInvalidInput, learnerID)
	}
	if !validID(itemID) {
		return fmt.Errorf("%w: item id %q", ErrInvalidInput, itemID)
	}
	if responseTimeMs < 0 {
		return fmt.Errorf("%w: negative response time %d", ErrInvalidInput, responseTimeMs)
	}
	return nil
}

func validID(id string) bool {
	return id != "" && len(id) <= maxIDLength && strings.TrimSpace(id) == id
}

func isWeakTopic(stats LearnerStats, topic string) bool {
	if topic == "" {
		return false
	}
	ts := stats.Topics[topic]
	return ts.Attempts >= weakTopicMinAttempts && ts.Accuracy() < weakTopicAccuracy
}

// keyLocks serializes writers per card key with a fixed set of striped
// mutexes. Two distinct keys can share a stripe; that costs contention,
// never correctness.
type keyLocks struct {
	stripes [64]sync.Mutex
}

func (k *keyLocks) lock(key CardKey) (unlock func()) {
	h := fnv.New32a()
	h.Write([]byte(key.LearnerID))
	h.Write([]byte{0})
	h.Write([]byte(key.ItemID))
	m := &k.stripes[h.Sum32()%uint32(len(k.stripes))]
	m.Lock()
	return m.Unlock
}
