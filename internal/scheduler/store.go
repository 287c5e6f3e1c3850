// Package scheduler owns the write path for spaced-repetition state: it
// loads a learner's card, derives a rating from the attempt, applies the
// memory-model transition and persists the result. All scheduling writes
// go through Scheduler.RecordAttempt; everything else in the system reads.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/p-n-ai/pai-sched/internal/fsrs"
)

var (
	// ErrInvalidInput marks boundary validation failures; they never reach
	// the memory model.
	ErrInvalidInput = errors.New("scheduler: invalid input")

	// ErrVersionConflict is returned by CardStore.Put when the stored
	// version no longer matches the one the caller read.
	ErrVersionConflict = errors.New("scheduler: version conflict")
)

// CardKey identifies one learner's scheduling state for one item.
type CardKey struct {
	LearnerID string
	ItemID    string
}

func (k CardKey) String() string {
	return k.LearnerID + "/" + k.ItemID
}

// StoredCard is a card plus its persistence envelope. Version implements
// optimistic concurrency: Put succeeds only when the stored version still
// matches, and bumps it on success.
type StoredCard struct {
	Key     CardKey
	Card    fsrs.Card
	Version int64
}

// CardStore persists scheduling cards keyed by (learner, item).
type CardStore interface {
	// Get returns the card for key, or (nil, nil) when none exists yet.
	// An unseen item is the New-state initialization path, not an error.
	Get(ctx context.Context, key CardKey) (*StoredCard, error)

	// Put inserts (Version == 0) or updates the card. It returns
	// ErrVersionConflict when another writer got there first.
	Put(ctx context.Context, card *StoredCard) error

	// List returns all cards belonging to a learner. Reads observe a
	// consistent, possibly slightly stale snapshot and never block
	// writers to other keys.
	List(ctx context.Context, learnerID string) ([]*StoredCard, error)
}

// MemoryCardStore is an in-memory CardStore used in tests and single-node
// deployments.
type MemoryCardStore struct {
	mu    sync.RWMutex
	cards map[CardKey]StoredCard
}

// NewMemoryCardStore creates an empty in-memory card store.
func NewMemoryCardStore() *MemoryCardStore {
	return &MemoryCardStore{cards: make(map[CardKey]StoredCard)}
}

func (s *MemoryCardStore) Get(_ context.Context, key CardKey) (*StoredCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cards[key]
	if !ok {
		return nil, nil
	}
	out := c
	return &out, nil
}

func (s *MemoryCardStore) Put(_ context.Context, card *StoredCard) error {
	if card.Key.LearnerID == "" || card.Key.ItemID == "" {
		return fmt.Errorf("%w: empty card key", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.cards[card.Key]
	switch {
	case !exists && card.Version != 0:
		return fmt.Errorf("%w: card %s disappeared", ErrVersionConflict, card.Key)
	case exists && current.Version != card.Version:
		return fmt.Errorf("%w: card %s at version %d, caller has %d",
			ErrVersionConflict, card.Key, current.Version, card.Version)
	}

	stored := *card
	stored.Version++
	s.cards[card.Key] = stored
	card.Version = stored.Version
	return nil
}

func (s *MemoryCardStore) List(_ context.Context, learnerID string) ([]*StoredCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*StoredCard
	for key, c := range s.cards {
		if key.LearnerID != learnerID {
			continue
		}
		copied := c
		out = append(out, &copied)
	}
	return out, nil
}
