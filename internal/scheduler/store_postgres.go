package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-sched/internal/fsrs"
)

const dbTimeout = 5 * time.Second

// PostgresCardStore is a PostgreSQL-backed CardStore. One row per
// (learner, item); the version column carries the optimistic check.
type PostgresCardStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCardStore creates a PostgreSQL-backed card store.
func NewPostgresCardStore(pool *pgxpool.Pool) (*PostgresCardStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresCardStore{pool: pool}, nil
}

// Schema returns the DDL for the scheduler_cards table. Callers apply it
// through their migration tooling; tests apply it directly.
func Schema() string {
	return `
CREATE TABLE IF NOT EXISTS scheduler_cards (
	learner_id     TEXT             NOT NULL,
	item_id        TEXT             NOT NULL,
	stability      DOUBLE PRECISION NOT NULL,
	difficulty     DOUBLE PRECISION NOT NULL,
	state          SMALLINT         NOT NULL,
	due            TIMESTAMPTZ      NOT NULL,
	elapsed_days   DOUBLE PRECISION NOT NULL,
	scheduled_days DOUBLE PRECISION NOT NULL,
	reps           INTEGER          NOT NULL,
	lapses         INTEGER          NOT NULL,
	last_review    TIMESTAMPTZ,
	version        BIGINT           NOT NULL,
	updated_at     TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
	PRIMARY KEY (learner_id, item_id)
);
CREATE INDEX IF NOT EXISTS scheduler_cards_learner_due_idx
	ON scheduler_cards (learner_id, due);
`
}

func (s *PostgresCardStore) Get(ctx context.Context, key CardKey) (*StoredCard, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := s.pool.QueryRow(ctx,
		`SELECT stability, difficulty, state, due, elapsed_days, scheduled_days,
		        reps, lapses, last_review, version
		 FROM scheduler_cards
		 WHERE learner_id = $1 AND item_id = $2`,
		key.LearnerID, key.ItemID,
	)

	card, err := scanCard(row, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get card %s: %w", key, err)
	}
	return card, nil
}

func (s *PostgresCardStore) Put(ctx context.Context, card *StoredCard) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if card.Version == 0 {
		return s.insert(ctx, card)
	}
	return s.update(ctx, card)
}

func (s *PostgresCardStore) insert(ctx context.Context, card *StoredCard) error {
	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO scheduler_cards
		   (learner_id, item_id, stability, difficulty, state, due,
		    elapsed_days, scheduled_days, reps, lapses, last_review, version, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, NOW())
		 ON CONFLICT (learner_id, item_id) DO NOTHING`,
		card.Key.LearnerID, card.Key.ItemID,
		card.Card.Stability, card.Card.Difficulty, int16(card.Card.State), card.Card.Due,
		card.Card.ElapsedDays, card.Card.ScheduledDays,
		int32(card.Card.Reps), int32(card.Card.Lapses), card.Card.LastReview,
	)
	if err != nil {
		return fmt.Errorf("insert card %s: %w", card.Key, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: card %s already exists", ErrVersionConflict, card.Key)
	}
	card.Version = 1
	return nil
}

func (s *PostgresCardStore) update(ctx context.Context, card *StoredCard) error {
	cmd, err := s.pool.Exec(ctx,
		`UPDATE scheduler_cards
		 SET stability = $3, difficulty = $4, state = $5, due = $6,
		     elapsed_days = $7, scheduled_days = $8, reps = $9, lapses = $10,
		     last_review = $11, version = version + 1, updated_at = NOW()
		 WHERE learner_id = $1 AND item_id = $2 AND version = $12`,
		card.Key.LearnerID, card.Key.ItemID,
		card.Card.Stability, card.Card.Difficulty, int16(card.Card.State), card.Card.Due,
		card.Card.ElapsedDays, card.Card.ScheduledDays,
		int32(card.Card.Reps), int32(card.Card.Lapses), card.Card.LastReview,
		card.Version,
	)
	if err != nil {
		return fmt.Errorf("update card %s: %w", card.Key, err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: card %s moved past version %d", ErrVersionConflict, card.Key, card.Version)
	}
	card.Version++
	return nil
}

func (s *PostgresCardStore) List(ctx context.Context, learnerID string) ([]*StoredCard, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT item_id, stability, difficulty, state, due, elapsed_days,
		        scheduled_days, reps, lapses, last_review, version
		 FROM scheduler_cards
		 WHERE learner_id = $1`,
		learnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list cards for %s: %w", learnerID, err)
	}
	defer rows.Close()

	var out []*StoredCard
	for rows.Next() {
		card := &StoredCard{Key: CardKey{LearnerID: learnerID}}
		var state int16
		var reps, lapses int32
		if err := rows.Scan(
			&card.Key.ItemID,
			&card.Card.Stability, &card.Card.Difficulty, &state, &card.Card.Due,
			&card.Card.ElapsedDays, &card.Card.ScheduledDays,
			&reps, &lapses, &card.Card.LastReview, &card.Version,
		); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		card.Card.State = fsrs.State(state)
		card.Card.Reps = uint32(reps)
		card.Card.Lapses = uint32(lapses)
		out = append(out, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return out, nil
}

func scanCard(row pgx.Row, key CardKey) (*StoredCard, error) {
	card := &StoredCard{Key: key}
	var state int16
	var reps, lapses int32
	if err := row.Scan(
		&card.Card.Stability, &card.Card.Difficulty, &state, &card.Card.Due,
		&card.Card.ElapsedDays, &card.Card.ScheduledDays,
		&reps, &lapses, &card.Card.LastReview, &card.Version,
	); err != nil {
		return nil, err
	}
	card.Card.State = fsrs.State(state)
	card.Card.Reps = uint32(reps)
	card.Card.Lapses = uint32(lapses)
	return card, nil
}
