package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore keeps learner aggregates in one Redis hash per learner.
// Counters use HINCRBY so concurrent writers from different items never
// lose attempts; the derived fields (average, recent accuracy) are
// recomputed from the counters on write and are last-writer-wins, which
// is acceptable for heuristic state.
type RedisStatsStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStatsStore creates a Redis-backed stats store.
func NewRedisStatsStore(client *redis.Client) *RedisStatsStore {
	return &RedisStatsStore{client: client, prefix: "sched:stats:"}
}

func (r *RedisStatsStore) key(learnerID string) string {
	return r.prefix + learnerID
}

func (r *RedisStatsStore) Get(ctx context.Context, learnerID string) (LearnerStats, error) {
	fields, err := r.client.HGetAll(ctx, r.key(learnerID)).Result()
	if err != nil {
		return LearnerStats{}, fmt.Errorf("get stats for %s: %w", learnerID, err)
	}
	return statsFromHash(fields), nil
}

func (r *RedisStatsStore) RecordAttempt(ctx context.Context, learnerID, topic string, correct bool, responseTimeMs int) (LearnerStats, error) {
	key := r.key(learnerID)

	pipe := r.client.TxPipeline()
	attempts := pipe.HIncrBy(ctx, key, "attempts", 1)
	pipe.HIncrBy(ctx, key, "sum_response_ms", int64(responseTimeMs))
	if correct {
		pipe.HIncrBy(ctx, key, "correct", 1)
	}
	if topic != "" {
		pipe.HIncrBy(ctx, key, "topic_attempts:"+topic, 1)
		if correct {
			pipe.HIncrBy(ctx, key, "topic_correct:"+topic, 1)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return LearnerStats{}, fmt.Errorf("record attempt for %s: %w", learnerID, err)
	}

	// Fold the exponential recent-accuracy estimate. Read-modify-write
	// without a watch: a lost update here skews a heuristic by one
	// attempt, which does not justify a retry loop.
	hit := 0.0
	if correct {
		hit = 1.0
	}
	recent := hit
	if attempts.Val() > 1 {
		prev, err := r.client.HGet(ctx, key, "recent_accuracy").Float64()
		if err == nil {
			recent = recentAccuracyAlpha*hit + (1-recentAccuracyAlpha)*prev
		}
	}
	if err := r.client.HSet(ctx, key, "recent_accuracy", recent).Err(); err != nil {
		return LearnerStats{}, fmt.Errorf("record recent accuracy for %s: %w", learnerID, err)
	}

	return r.Get(ctx, learnerID)
}

func (r *RedisStatsStore) SetBehaviorScores(ctx context.Context, learnerID string, focus, confidence int) error {
	err := r.client.HSet(ctx, r.key(learnerID), "focus", focus, "confidence", confidence).Err()
	if err != nil {
		return fmt.Errorf("set behavior scores for %s: %w", learnerID, err)
	}
	return nil
}

func statsFromHash(fields map[string]string) LearnerStats {
	s := LearnerStats{
		Attempts:       hashInt(fields, "attempts"),
		Correct:        hashInt(fields, "correct"),
		RecentAccuracy: hashFloat(fields, "recent_accuracy"),
		FocusScore:     int(hashInt(fields, "focus")),
		Confidence:     int(hashInt(fields, "confidence")),
	}
	if s.Attempts > 0 {
		s.AvgResponseMs = float64(hashInt(fields, "sum_response_ms")) / float64(s.Attempts)
	}

	for field, raw := range fields {
		topic, isAttempts := strings.CutPrefix(field, "topic_attempts:")
		if !isAttempts {
			continue
		}
		n, _ := strconv.ParseInt(raw, 10, 64)
		if s.Topics == nil {
			s.Topics = make(map[string]TopicStats)
		}
		ts := s.Topics[topic]
		ts.Attempts = n
		ts.Correct = hashInt(fields, "topic_correct:"+topic)
		s.Topics[topic] = ts
	}
	return s
}

func hashInt(fields map[string]string, name string) int64 {
	n, _ := strconv.ParseInt(fields[name], 10, 64)
	return n
}

func hashFloat(fields map[string]string, name string) float64 {
	f, _ := strconv.ParseFloat(fields[name], 64)
	return f
}
