package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/robfig/cron/v3"
)

// Client wraps the River client with the workers and periodic schedule of
// the ingestion pipeline registered.
type Client struct {
	*river.Client[pgx.Tx]
}

// NewClient builds the River client: the per-category scrape worker, the
// daily schedule worker, and a periodic job driven by the parsed cron
// expression (robfig cron.Schedule satisfies River's PeriodicSchedule).
func NewClient(pool *pgxpool.Pool, runner CategoryRunner, sched DailyScheduler, cronExpr string) (*Client, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", cronExpr, err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewCategoryScrapeWorker(runner))
	river.AddWorker(workers, NewScheduleWorker(sched))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 1},
			ScrapeQueue:        {MaxWorkers: 8},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				schedule,
				func() (river.JobArgs, *river.InsertOpts) {
					return DailyScheduleArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: false},
			),
		},
		CompletedJobRetentionPeriod: 24 * time.Hour,
		DiscardedJobRetentionPeriod: 7 * 24 * time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("river.NewClient: %w", err)
	}

	return &Client{Client: riverClient}, nil
}

// InsertCategoryScrape enqueues one category ingestion run, used by the
// manual trigger path.
func (c *Client) InsertCategoryScrape(ctx context.Context, categoryID string) error {
	_, err := c.Insert(ctx, CategoryScrapeArgs{CategoryID: categoryID}, nil)
	return err
}
