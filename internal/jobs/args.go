// Package jobs provides the River workers and client that form the durable
// dispatch facility: a daily periodic job fans out one category-scrape job
// per active category, with at-least-once delivery.
package jobs

import "github.com/riverqueue/river"

const (
	// ScrapeQueue carries the fanned-out per-category jobs.
	ScrapeQueue = "ingest"

	scrapeMaxAttempts = 3
)

// CategoryScrapeArgs is the fanout event payload: one ingestion run for one
// category. Stored in river_job.args as JSON.
type CategoryScrapeArgs struct {
	CategoryID string `json:"categoryId"`
}

// Kind returns the job kind for River registration.
func (CategoryScrapeArgs) Kind() string { return "category_scrape" }

// InsertOpts returns the default insert options for this job type.
func (CategoryScrapeArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       ScrapeQueue,
		MaxAttempts: scrapeMaxAttempts,
	}
}

// DailyScheduleArgs triggers one daily fanout run. It carries no payload;
// the schedule worker lists active categories itself.
type DailyScheduleArgs struct{}

// Kind returns the job kind for River registration.
func (DailyScheduleArgs) Kind() string { return "daily_schedule" }
