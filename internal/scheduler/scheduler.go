// Package scheduler implements the daily fanout: list all active categories
// and dispatch one independent ingestion job per category.
package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Inserter enqueues one category ingestion job on the dispatch facility.
type Inserter interface {
	InsertCategoryScrape(ctx context.Context, categoryID string) error
}

// CategoryLister is the slice of the store the scheduler needs.
type CategoryLister interface {
	ListActiveCategoryIDs(ctx context.Context) ([]string, error)
}

// Scheduler fans out the daily ingestion run.
type Scheduler struct {
	cats CategoryLister
	log  *zap.SugaredLogger
}

// New constructs a Scheduler.
func New(cats CategoryLister) *Scheduler {
	return &Scheduler{cats: cats, log: zap.S().Named("scheduler")}
}

// RunDaily lists active categories and dispatches one job per category,
// returning the count dispatched. A listing failure fails the whole run with
// nothing dispatched; the next day's schedule is the recovery path. Fanout
// is unordered and each dispatched job runs independently.
func (s *Scheduler) RunDaily(ctx context.Context, ins Inserter) (int, error) {
	ids, err := s.cats.ListActiveCategoryIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active categories: %w", err)
	}
	if len(ids) == 0 {
		s.log.Info("no active categories, nothing to dispatch")
		return 0, nil
	}

	dispatched := 0
	for _, id := range ids {
		if err := ins.InsertCategoryScrape(ctx, id); err != nil {
			// Duplicate dispatch on retry is tolerated: upserts are
			// idempotent per dedup key.
			return dispatched, fmt.Errorf("dispatch category %s: %w", id, err)
		}
		dispatched++
	}

	s.log.Infow("fanout dispatched", "categories", dispatched)
	return dispatched, nil
}
