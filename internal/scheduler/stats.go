package scheduler

import (
	"context"
	"sync"
)

// recentAccuracyAlpha is the smoothing factor for the exponentially
// weighted recent-accuracy estimate.
const recentAccuracyAlpha = 0.2

// TopicStats are per-topic attempt counters.
type TopicStats struct {
	Attempts int64
	Correct  int64
}

// Accuracy returns the topic's correct ratio, 0 with no attempts.
func (t TopicStats) Accuracy() float64 {
	if t.Attempts == 0 {
		return 0
	}
	return float64(t.Correct) / float64(t.Attempts)
}

// LearnerStats are the rolling aggregates kept per learner. They feed
// rating derivation (average response time) and queue adjustments
// (behavior scores, weak topics); they are display-and-heuristic state,
// never inputs to the memory-model formulas.
type LearnerStats struct {
	Attempts       int64
	Correct        int64
	AvgResponseMs  float64
	RecentAccuracy float64
	FocusScore     int // 0-100, written by the behavior analytics pipeline
	Confidence     int // 0-100, same origin
	Topics         map[string]TopicStats
}

// Accuracy returns the all-time correct ratio, 0 with no attempts.
func (s LearnerStats) Accuracy() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Attempts)
}

// StatsStore persists learner rolling aggregates.
type StatsStore interface {
	// Get returns the learner's aggregates; a learner with no history
	// yields the zero value, not an error.
	Get(ctx context.Context, learnerID string) (LearnerStats, error)

	// RecordAttempt folds one attempt into the aggregates and returns the
	// updated value. The average response time is an incremental mean.
	RecordAttempt(ctx context.Context, learnerID, topic string, correct bool, responseTimeMs int) (LearnerStats, error)

	// SetBehaviorScores stores the externally produced focus/confidence
	// scores (0-100).
	SetBehaviorScores(ctx context.Context, learnerID string, focus, confidence int) error
}

// MemoryStatsStore is an in-memory StatsStore.
type MemoryStatsStore struct {
	mu    sync.RWMutex
	stats map[string]LearnerStats
}

// NewMemoryStatsStore creates an empty in-memory stats store.
func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{stats: make(map[string]LearnerStats)}
}

func (m *MemoryStatsStore) Get(_ context.Context, learnerID string) (LearnerStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyStats(m.stats[learnerID]), nil
}

func (m *MemoryStatsStore) RecordAttempt(_ context.Context, learnerID, topic string, correct bool, responseTimeMs int) (LearnerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats[learnerID]
	foldAttempt(&s, topic, correct, responseTimeMs)
	m.stats[learnerID] = s
	return copyStats(s), nil
}

func (m *MemoryStatsStore) SetBehaviorScores(_ context.Context, learnerID string, focus, confidence int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stats[learnerID]
	s.FocusScore = focus
	s.Confidence = confidence
	m.stats[learnerID] = s
	return nil
}

// foldAttempt applies one attempt to the aggregates in place.
func foldAttempt(s *LearnerStats, topic string, correct bool, responseTimeMs int) {
	s.Attempts++
	hit := 0.0
	if correct {
		s.Correct++
		hit = 1.0
	}
	s.AvgResponseMs += (float64(responseTimeMs) - s.AvgResponseMs) / float64(s.Attempts)

	if s.Attempts == 1 {
		s.RecentAccuracy = hit
	} else {
		s.RecentAccuracy = recentAccuracyAlpha*hit + (1-recentAccuracyAlpha)*s.RecentAccuracy
	}

	if topic != "" {
		if s.Topics == nil {
			s.Topics = make(map[string]TopicStats)
		}
		ts := s.Topics[topic]
		ts.Attempts++
		if correct {
			ts.Correct++
		}
		s.Topics[topic] = ts
	}
}

func copyStats(s LearnerStats) LearnerStats {
	out := s
	if s.Topics != nil {
		out.Topics = make(map[string]TopicStats, len(s.Topics))
		for k, v := range s.Topics {
			out.Topics[k] = v
		}
	}
	return out
}
