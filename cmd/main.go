// ingest-service — job-ingestion pipeline.
//
// Periodically pulls postings from the external job-search API for a
// rotating set of categories, embeds extracted skill/responsibility bullets,
// and upserts the results into PostgreSQL. A River-backed durable queue
// provides the daily cron trigger and the per-category fanout.
//
// Daemon mode runs the queue and a health endpoint. With -run-once the
// process performs a single ingestion run inline and prints the result as
// JSON — the same result shape the scheduled path produces.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"careerpilot/ingest-service/internal/config"
	"careerpilot/ingest-service/internal/db"
	"careerpilot/ingest-service/internal/ingest"
	"careerpilot/ingest-service/internal/jobs"
	"careerpilot/ingest-service/internal/scheduler"
	logpkg "careerpilot/ingest-service/pkg/log"
)

const version = "1.0.0"

func main() {
	var (
		runOnce      = flag.Bool("run-once", false, "run one ingestion cycle inline and exit")
		categoryID   = flag.String("category", "", "explicit category id (default: round-robin claim)")
		seed         = flag.Bool("seed", false, "with -run-once and -category: create the category if missing")
		seedName     = flag.String("seed-name", "", "category name used with -seed")
		seedLocation = flag.String("seed-location", "", "category location used with -seed")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[ingest-service] Config error: %v", err)
	}

	logger, err := logpkg.Setup(cfg.LogLevel)
	if err != nil {
		log.Fatalf("[ingest-service] Logger error: %v", err)
	}
	defer logger.Sync()
	slog := zap.S().Named("ingest_service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Fatalf("PostgreSQL: %v", err)
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Fatalf("Redis: %v", err)
	}
	defer rdb.Close()

	store := ingest.NewPgStore(pool)
	fetcher := ingest.NewFetcher(cfg.JobSearchBaseURL, cfg.JobSearchAPIKey)
	embedder := ingest.NewBatchEmbedder(ingest.EmbedConfig{
		BaseURL:   cfg.EmbeddingBaseURL,
		APIKey:    cfg.EmbeddingAPIKey,
		Model:     cfg.EmbeddingModel,
		BatchSize: cfg.EmbedBatchSize,
	})
	guard := ingest.NewRedisCooldown(rdb, cfg.RateLimitCooldown)
	worker := ingest.NewWorker(store, fetcher, embedder, guard, cfg.MaxPages)

	if *runOnce {
		if *seed {
			if *categoryID == "" || *seedName == "" {
				slog.Fatal("-seed requires -category and -seed-name")
			}
			if err := store.SeedCategory(ctx, *categoryID, *seedName, *seedLocation); err != nil {
				slog.Fatalf("seed category: %v", err)
			}
		}
		result := worker.Run(ctx, *categoryID)
		out, _ := json.Marshal(result)
		fmt.Println(string(out))
		return
	}

	sched := scheduler.New(store)
	queue, err := jobs.NewClient(pool, worker, sched, cfg.IngestCron)
	if err != nil {
		slog.Fatalf("job queue: %v", err)
	}
	if err := queue.Start(ctx); err != nil {
		slog.Fatalf("start job queue: %v", err)
	}
	slog.Infow("job queue started", "cron", cfg.IngestCron)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Infof("v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warnf("HTTP shutdown error: %v", err)
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		slog.Warnf("job queue stop error: %v", err)
	}
	slog.Info("stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "ingest-service",
		"version": version,
	})
}
