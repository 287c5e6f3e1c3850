// Package importer performs the one-time migration of legacy
// ease-factor scheduling records, exported as an Excel workbook, into
// memory-model cards. The legacy algorithm itself is not carried
// forward; each record is converted once and the old export is then
// retired.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-sched/internal/fsrs"
	"github.com/p-n-ai/pai-sched/internal/scheduler"
)

// DefaultSheet is the workbook sheet read when none is named.
const DefaultSheet = "Sheet1"

// Expected column order: learner_id, item_id, ease, interval_days, reps.
const minColumns = 5

// Result summarizes one import run.
type Result struct {
	Processed int
	Created   int
	Skipped   int
	Errors    []string
}

// ImportWorkbook reads legacy records from the workbook at path and
// creates a card for each one, skipping rows whose card already exists
// so re-running a partially failed import is safe. Rows without any
// review history behind them are skipped as well. The first row is
// treated as a header. Malformed rows are collected in Result.Errors
// rather than aborting the run.
func ImportWorkbook(ctx context.Context, path, sheet string, store scheduler.CardStore, now time.Time) (*Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = DefaultSheet
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	result := &Result{}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		result.Processed++
		if err := importRow(ctx, row, store, now); err != nil {
			if errors.Is(err, errRowExists) || errors.Is(err, errRowNoHistory) {
				result.Skipped++
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		result.Created++
	}

	slog.Info("legacy import finished",
		"path", path,
		"processed", result.Processed,
		"created", result.Created,
		"skipped", result.Skipped,
		"errors", len(result.Errors))
	return result, nil
}

var (
	errRowExists    = errors.New("card already exists")
	errRowNoHistory = errors.New("no review history")
)

func importRow(ctx context.Context, row []string, store scheduler.CardStore, now time.Time) error {
	if len(row) < minColumns {
		return fmt.Errorf("want %d columns, got %d", minColumns, len(row))
	}

	learnerID := strings.TrimSpace(row[0])
	itemID := strings.TrimSpace(row[1])
	if learnerID == "" || itemID == "" {
		return fmt.Errorf("empty learner or item id")
	}

	ease, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
	if err != nil {
		return fmt.Errorf("ease %q: %w", row[2], err)
	}
	intervalDays, err := strconv.Atoi(strings.TrimSpace(row[3]))
	if err != nil {
		return fmt.Errorf("interval_days %q: %w", row[3], err)
	}
	reps, err := strconv.ParseUint(strings.TrimSpace(row[4]), 10, 32)
	if err != nil {
		return fmt.Errorf("reps %q: %w", row[4], err)
	}

	key := scheduler.CardKey{LearnerID: learnerID, ItemID: itemID}
	existing, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("check existing card: %w", err)
	}
	if existing != nil {
		return errRowExists
	}

	card := fsrs.FromLegacy(ease, intervalDays, uint32(reps))
	if card.State == fsrs.New {
		// Zero reps or no interval means the item was never actually
		// reviewed under the old algorithm. There is no history to
		// migrate; the item enters through the normal new-content path.
		return errRowNoHistory
	}
	// The export carries no timestamps; the import moment is the best
	// anchor for the converted schedule.
	card.LastReview = &now
	card.ScheduledDays = float64(intervalDays)
	card.Due = now.AddDate(0, 0, intervalDays)

	if err := store.Put(ctx, &scheduler.StoredCard{Key: key, Card: card}); err != nil {
		if errors.Is(err, scheduler.ErrVersionConflict) {
			// A concurrent import of the same export won the race.
			return errRowExists
		}
		return fmt.Errorf("store card: %w", err)
	}
	return nil
}
