package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"careerpilot/ingest-service/internal/model"
	"careerpilot/ingest-service/internal/scheduler"
)

const scrapeTimeout = 10 * time.Minute

// CategoryRunner runs one ingestion cycle for a category. An empty
// categoryID means "claim the next category round-robin".
type CategoryRunner interface {
	Run(ctx context.Context, categoryID string) model.IngestResult
}

// DailyScheduler fans out one category-scrape job per active category.
type DailyScheduler interface {
	RunDaily(ctx context.Context, ins scheduler.Inserter) (int, error)
}

// CategoryScrapeWorker executes one fanned-out category ingestion run.
type CategoryScrapeWorker struct {
	river.WorkerDefaults[CategoryScrapeArgs]
	runner CategoryRunner
	log    *zap.SugaredLogger
}

// NewCategoryScrapeWorker constructs a CategoryScrapeWorker.
func NewCategoryScrapeWorker(runner CategoryRunner) *CategoryScrapeWorker {
	return &CategoryScrapeWorker{runner: runner, log: zap.S().Named("scrape_job")}
}

func (w *CategoryScrapeWorker) Timeout(job *river.Job[CategoryScrapeArgs]) time.Duration {
	return scrapeTimeout
}

// Work runs the category worker. Soft outcomes — skipped claims and
// rate-limit aborts — complete the job so River does not re-deliver a run
// that would skip or burn the rate limit again; only infrastructure errors
// are retried.
func (w *CategoryScrapeWorker) Work(ctx context.Context, job *river.Job[CategoryScrapeArgs]) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := w.runner.Run(ctx, job.Args.CategoryID)
	w.log.Infow("category scrape finished",
		"jobId", job.ID, "categoryId", job.Args.CategoryID,
		"created", res.Created, "updated", res.Updated,
		"skipped", res.Skipped, "error", res.Err)

	if res.Err != "" && res.Err != model.ErrRateLimited {
		return fmt.Errorf("category %s: %s", job.Args.CategoryID, res.Err)
	}
	return nil
}

// ScheduleWorker runs the daily fanout. The River client is taken from the
// work context, so the scheduler can enqueue without a circular dependency
// on this package's client.
type ScheduleWorker struct {
	river.WorkerDefaults[DailyScheduleArgs]
	sched DailyScheduler
	log   *zap.SugaredLogger
}

// NewScheduleWorker constructs a ScheduleWorker.
func NewScheduleWorker(sched DailyScheduler) *ScheduleWorker {
	return &ScheduleWorker{sched: sched, log: zap.S().Named("schedule_job")}
}

func (w *ScheduleWorker) Work(ctx context.Context, job *river.Job[DailyScheduleArgs]) error {
	client := river.ClientFromContext[pgx.Tx](ctx)
	n, err := w.sched.RunDaily(ctx, riverInserter{client: client})
	if err != nil {
		return err
	}
	w.log.Infow("daily fanout complete", "jobId", job.ID, "dispatched", n)
	return nil
}

// riverInserter adapts a River client to the scheduler's Inserter.
type riverInserter struct {
	client *river.Client[pgx.Tx]
}

func (r riverInserter) InsertCategoryScrape(ctx context.Context, categoryID string) error {
	_, err := r.client.Insert(ctx, CategoryScrapeArgs{CategoryID: categoryID}, nil)
	return err
}
