package ingest

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"careerpilot/ingest-service/internal/model"
)

// PageFetcher retrieves one page of postings for a category.
type PageFetcher interface {
	FetchPage(ctx context.Context, query, location string, page int) ([]model.Posting, error)
}

// JobStore is the slice of the store the worker needs.
type JobStore interface {
	ClaimCategory(ctx context.Context, id string) (*model.Category, error)
	ClaimNextCategory(ctx context.Context) (*model.Category, error)
	UpsertPostings(ctx context.Context, postings []model.Posting) (created, updated int, err error)
}

// Worker runs the full ingestion cycle for a single category: claim,
// paginate, extract bullets, batch-embed, store, accumulate counters.
type Worker struct {
	store    JobStore
	fetcher  PageFetcher
	embedder Embedder
	guard    CooldownGuard
	maxPages int
	log      *zap.SugaredLogger
}

// NewWorker constructs a Worker. A nil guard disables the cooldown check.
func NewWorker(store JobStore, fetcher PageFetcher, embedder Embedder, guard CooldownGuard, maxPages int) *Worker {
	if guard == nil {
		guard = noopGuard{}
	}
	if maxPages < 1 {
		maxPages = 3
	}
	return &Worker{
		store:    store,
		fetcher:  fetcher,
		embedder: embedder,
		guard:    guard,
		maxPages: maxPages,
		log:      zap.S().Named("worker"),
	}
}

// Run executes one ingestion run. With a categoryID the claim is scoped to
// that row; without one the oldest-cursor active category is claimed
// (round-robin fairness). Claim-not-found and no-eligible-category are soft
// outcomes, not errors.
func (w *Worker) Run(ctx context.Context, categoryID string) model.IngestResult {
	var (
		cat *model.Category
		err error
	)
	if categoryID != "" {
		cat, err = w.store.ClaimCategory(ctx, categoryID)
	} else {
		cat, err = w.store.ClaimNextCategory(ctx)
	}
	if err != nil {
		w.log.Errorw("claim failed", "categoryId", categoryID, "error", err)
		return model.IngestResult{Err: err.Error()}
	}
	if cat == nil {
		w.log.Infow("no category to claim", "categoryId", categoryID)
		return model.IngestResult{Skipped: true}
	}

	if active, err := w.guard.Active(ctx); err != nil {
		// Cooldown is advisory; a broken guard must not stop ingestion.
		w.log.Warnw("cooldown check failed", "error", err)
	} else if active {
		w.log.Infow("rate-limit cooldown active, skipping fetch", "category", cat.ID)
		return model.IngestResult{Err: model.ErrRateLimited}
	}

	res := model.IngestResult{}
	for page := 1; page <= w.maxPages; page++ {
		postings, err := w.fetcher.FetchPage(ctx, cat.Name, cat.Location, page)
		if errors.Is(err, ErrRateLimited) {
			if err := w.guard.Trip(ctx); err != nil {
				w.log.Warnw("failed to set cooldown", "error", err)
			}
			w.log.Warnw("rate limited, aborting run", "category", cat.ID, "page", page)
			res.Err = model.ErrRateLimited
			return res
		}
		if err != nil {
			w.log.Errorw("fetch failed, stopping pagination", "category", cat.ID, "page", page, "error", err)
			break
		}
		if len(postings) == 0 {
			w.log.Infow("no more postings", "category", cat.ID, "page", page)
			break
		}

		// Flatten all bullets across the page into two flat lists, embed
		// them, then re-attach by consuming the vectors in the exact order
		// the bullets were flattened. The two walks must stay in lock-step.
		var respTexts, skillTexts []string
		for i := range postings {
			ExtractBullets(&postings[i])
			for _, b := range postings[i].Responsibilities {
				respTexts = append(respTexts, b.Text)
			}
			for _, b := range postings[i].Skills {
				skillTexts = append(skillTexts, b.Text)
			}
		}

		respVecs, err := w.embedder.EmbedMany(ctx, respTexts)
		if err != nil {
			w.log.Errorw("embedding responsibilities failed, stopping pagination",
				"category", cat.ID, "page", page, "error", err)
			break
		}
		skillVecs, err := w.embedder.EmbedMany(ctx, skillTexts)
		if err != nil {
			w.log.Errorw("embedding skills failed, stopping pagination",
				"category", cat.ID, "page", page, "error", err)
			break
		}

		ri, si := 0, 0
		for i := range postings {
			for j := range postings[i].Responsibilities {
				postings[i].Responsibilities[j].Embedding = respVecs[ri]
				ri++
			}
			for j := range postings[i].Skills {
				postings[i].Skills[j].Embedding = skillVecs[si]
				si++
			}
		}

		created, updated, err := w.store.UpsertPostings(ctx, postings)
		res.Created += created
		res.Updated += updated
		if err != nil {
			// A failed page is logged and skipped; pagination continues.
			w.log.Errorw("store failed for page", "category", cat.ID, "page", page, "error", err)
			continue
		}
		w.log.Infow("page stored", "category", cat.ID, "page", page,
			"created", created, "updated", updated)
	}

	w.log.Infow("run complete", "category", cat.ID,
		"created", res.Created, "updated", res.Updated)
	return res
}
